// Package workflow implements the WorkflowOrchestrator from spec.md
// §4.10: Sequential, Parallel, and Router composition over AgentCore
// instances. Unlike internal/multiagent's handoff-based orchestrator
// (one shared agent set, runtime-to-runtime handoffs mid-conversation),
// a workflow is a fixed composition decided up front by the caller, each
// variant a small struct implementing Workflow in the same
// one-struct-one-concern idiom as internal/guardrail/detectors.
package workflow

import (
	"context"

	"github.com/haasonsaas/agentcore/internal/agentcore"
	"github.com/haasonsaas/agentcore/internal/reasoning"
)

// Workflow is the composition contract every variant implements: run one
// task end to end and report the terminal result.
type Workflow interface {
	Run(ctx context.Context, query, sessionID string) (reasoning.RunResult, error)
}

// Member names one child agent participating in a Parallel or Router
// composition, carrying the description a Router's classifier needs to
// pick among candidates.
type Member struct {
	Name        string
	Description string
	Agent       *agentcore.AgentCore
}

// Result pairs one Parallel child's outcome with its member name.
// Parallel reports every child's Result, success or error, rather than
// failing the whole run on one child's error ("join-all" semantics).
type Result struct {
	Name string
	Run  reasoning.RunResult
	Err  error
}

// childSessionID derives a per-child session key from a shared workflow
// session so concurrent children never collide on one history stream
// even when they share a memory backend.
func childSessionID(sessionID, name string) string {
	if sessionID == "" {
		return ""
	}
	return sessionID + "/" + name
}
