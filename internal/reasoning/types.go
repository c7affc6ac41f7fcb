// Package reasoning implements the ReasoningEngine: the core
// observe-think-act loop that turns one (query, session_id) pair into a
// response, driving the guardrail, memory, context, tool, and LLM layers
// in the fixed sequence START → GUARD → LOAD_HISTORY → PLAN_CONTEXT →
// LLM_CALL → PARSE → (FINAL_ANSWER|TOOL_DISPATCH|ABORT) → ... → PERSIST →
// METRICS → END.
//
// Grounded on internal/agent/loop.go's AgenticLoop (iteration budget,
// phase-by-phase state struct, sanitizeLoopConfig default-filling) and
// internal/agent/executor.go's ExecuteAll (concurrent dispatch with
// per-call timeout, ordered results, panic recovery via defer+recover).
package reasoning

import (
	"time"

	"github.com/haasonsaas/agentcore/internal/errs"
	"github.com/haasonsaas/agentcore/internal/guardrail"
)

// Config mirrors spec.md §6's agent config record, the portion that
// governs a single run() call.
type Config struct {
	MaxSteps            int
	ToolCallTimeoutS    int
	MaxExecutionTimeS   int // 0 = unbounded
	TotalTokensLimit    int // 0 = unbounded
	FailFast            bool
	AdvancedToolUse     bool
	AdvancedToolUseTopK int
	SystemPrompt        string
	ToolOffload         ToolOffloadConfig
	SubAgentMaxDepth    int
}

// ToolOffloadConfig mirrors spec.md §6's tool_offload record.
type ToolOffloadConfig struct {
	Enabled          bool
	ThresholdTokens  int
	MaxPreviewTokens int
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxSteps:            15,
		ToolCallTimeoutS:    30,
		MaxExecutionTimeS:   0,
		TotalTokensLimit:    0,
		FailFast:            false,
		AdvancedToolUse:     false,
		AdvancedToolUseTopK: 8,
		SystemPrompt:        "You are a helpful assistant.",
		ToolOffload: ToolOffloadConfig{
			Enabled:          true,
			ThresholdTokens:  500,
			MaxPreviewTokens: 150,
		},
		SubAgentMaxDepth: 3,
	}
}

// Outcome classifies how a run ended, carried in StepMetrics.Outcome and
// the agentcore_runs_total metric label.
type Outcome string

const (
	OutcomeFinalAnswer Outcome = "final_answer"
	OutcomeAbort       Outcome = "abort"
	OutcomeError       Outcome = "error"
)

// StepMetrics reports per-run accounting, aggregated into AgentMetrics by
// the caller (internal/agentcore).
type StepMetrics struct {
	Steps        int
	ToolCalls    int
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
	Outcome      Outcome
}

// RunResult is what run() returns across the public API boundary: never a
// bare error, always a structured result.
type RunResult struct {
	Response        string
	Metric          StepMetrics
	GuardrailResult *guardrail.Result
	Error           *errs.CoreError
	PersistError    bool
}
