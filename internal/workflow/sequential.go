package workflow

import (
	"context"
	"fmt"

	"github.com/haasonsaas/agentcore/internal/agentcore"
	"github.com/haasonsaas/agentcore/internal/reasoning"
)

// Sequential threads the output of step i as the user input to step
// i+1, aborting the chain on the first step that errors or returns a
// terminal RunResult.Error. It has no direct teacher analog — the
// teacher's own orchestrator (internal/multiagent) is handoff-based, not
// chain-based — so it's written fresh in the same struct-implements-
// Workflow shape as Parallel and Router.
type Sequential struct {
	Steps []*agentcore.AgentCore
}

// NewSequential builds a Sequential workflow over steps, run in order.
func NewSequential(steps ...*agentcore.AgentCore) *Sequential {
	return &Sequential{Steps: steps}
}

func (s *Sequential) Run(ctx context.Context, query, sessionID string) (reasoning.RunResult, error) {
	if len(s.Steps) == 0 {
		return reasoning.RunResult{}, fmt.Errorf("workflow: sequential has no steps")
	}

	input := query
	var last reasoning.RunResult
	for i, step := range s.Steps {
		result, err := step.Run(ctx, input, sessionID)
		if err != nil {
			return result, fmt.Errorf("workflow: sequential step %d: %w", i, err)
		}
		if result.Error != nil {
			return result, fmt.Errorf("workflow: sequential step %d: %s", i, result.Error.Message)
		}
		input = result.Response
		last = result
	}
	return last, nil
}
