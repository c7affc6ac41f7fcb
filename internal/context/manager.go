// Package context implements the ContextManager: the component that runs
// immediately before every LLM call to keep the live prompt within a
// token or message budget, either by truncation or by delegating to the
// MemorySummarizer for a summarize-and-truncate pass.
//
// Grounded on internal/agent/context/packer.go (backwards-from-newest
// selection under a message/char budget) for the truncate strategy, and
// internal/agent/context/pruning.go's ratio-based soft/hard threshold
// style for when truncation triggers.
package context

import (
	"context"
	"fmt"

	"github.com/haasonsaas/agentcore/internal/store"
)

// Mode selects how the budget is measured.
type Mode string

const (
	ModeTokenBudget   Mode = "token_budget"
	ModeSlidingWindow Mode = "sliding_window"
)

// Strategy selects how an over-budget prompt is reduced.
type Strategy string

const (
	StrategyTruncate             Strategy = "truncate"
	StrategySummarizeAndTruncate Strategy = "summarize_and_truncate"
)

// Config mirrors spec.md §6's context_management record.
type Config struct {
	Enabled          bool     `yaml:"enabled"`
	Mode             Mode     `yaml:"mode"`
	Value            int      `yaml:"value"` // token budget (ModeTokenBudget) or message count (ModeSlidingWindow)
	ThresholdPercent int      `yaml:"threshold_percent"` // percent of Value that triggers truncation in token_budget mode
	Strategy         Strategy `yaml:"strategy"`
	PreserveRecent   int      `yaml:"preserve_recent"`
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		Mode:             ModeTokenBudget,
		Value:            8000,
		ThresholdPercent: 75,
		Strategy:         StrategyTruncate,
		PreserveRecent:   4,
	}
}

// Summarizer is the narrow capability ContextManager needs from
// MemorySummarizer to implement summarize_and_truncate without importing
// the whole summarize package (which itself depends on memory.Router).
type Summarizer interface {
	SummarizeSpan(ctx context.Context, sessionID string, toSummarize []store.Message) (store.Message, error)
}

// Result reports what PlanContext did to the prompt.
type Result struct {
	Messages      []store.Message
	Dropped       int
	Summarized    bool
	SummaryError  error
	TokenEstimate int
}

// Manager enforces the configured budget on a prompt immediately before
// it is sent to the LLM.
type Manager struct {
	cfg        Config
	summarizer Summarizer
}

// New builds a Manager. summarizer may be nil; summarize_and_truncate then
// falls back to pure truncation as spec.md §4.6 requires on summarization
// failure.
func New(cfg Config, summarizer Summarizer) *Manager {
	return &Manager{cfg: cfg, summarizer: summarizer}
}

// EstimateTokens is the shared conservative token estimator (chars/4)
// used throughout the module wherever a message's token_estimate field
// isn't already populated.
func EstimateTokens(s string) int {
	n := len(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

func totalTokens(messages []store.Message) int {
	total := 0
	for _, m := range messages {
		if m.TokenEstimate > 0 {
			total += m.TokenEstimate
		} else {
			total += EstimateTokens(m.Content)
		}
	}
	return total
}

// shouldTrigger reports whether the current prompt exceeds the configured
// budget and needs reduction.
func (m *Manager) shouldTrigger(system store.Message, history []store.Message) bool {
	switch m.cfg.Mode {
	case ModeSlidingWindow:
		return len(history) > m.cfg.Value
	default: // ModeTokenBudget
		tokens := totalTokens(history) + EstimateTokens(system.Content)
		threshold := m.cfg.Value * m.cfg.ThresholdPercent / 100
		return tokens > threshold
	}
}

// PlanContext runs before each LLM call. It always retains the system
// instruction, the newest PreserveRecent messages, and never splits a
// tool-call/tool-result pair across the cut.
func (m *Manager) PlanContext(ctx context.Context, sessionID string, system store.Message, history []store.Message) (Result, error) {
	if !m.cfg.Enabled || !m.shouldTrigger(system, history) {
		return Result{Messages: history, TokenEstimate: totalTokens(history) + EstimateTokens(system.Content)}, nil
	}

	dropSet, keepSet := m.splitAtCut(history)

	switch m.cfg.Strategy {
	case StrategySummarizeAndTruncate:
		if m.summarizer != nil {
			summary, err := m.summarizer.SummarizeSpan(ctx, sessionID, dropSet)
			if err == nil {
				kept := append([]store.Message{summary}, keepSet...)
				return Result{
					Messages:      kept,
					Dropped:       len(dropSet),
					Summarized:    true,
					TokenEstimate: totalTokens(kept) + EstimateTokens(system.Content),
				}, nil
			}
			// Summarization failure: fall back to pure truncation, per
			// spec.md §4.6, and surface the error for the caller to log.
			return Result{
				Messages:      keepSet,
				Dropped:       len(dropSet),
				SummaryError:  err,
				TokenEstimate: totalTokens(keepSet) + EstimateTokens(system.Content),
			}, nil
		}
		fallthrough
	default: // StrategyTruncate
		return Result{
			Messages:      keepSet,
			Dropped:       len(dropSet),
			TokenEstimate: totalTokens(keepSet) + EstimateTokens(system.Content),
		}, nil
	}
}

// splitAtCut finds the oldest cut point that keeps at least PreserveRecent
// messages and never separates a tool-call message from its tool-result
// messages. Returns (dropped, kept) in original order.
func (m *Manager) splitAtCut(history []store.Message) (dropped, kept []store.Message) {
	preserve := m.cfg.PreserveRecent
	if preserve < 0 {
		preserve = 0
	}
	if preserve >= len(history) {
		return nil, history
	}

	cut := len(history) - preserve
	cut = m.adjustForToolPairs(history, cut)

	return history[:cut], history[cut:]
}

// adjustForToolPairs walks the candidate cut point backwards past any
// assistant tool-call message whose results would otherwise be split off,
// so a tool-call/tool-result pair is always kept or dropped together.
func (m *Manager) adjustForToolPairs(history []store.Message, cut int) int {
	if cut <= 0 || cut >= len(history) {
		return cut
	}
	// If the message right before the cut is a tool result, walk back to
	// include its originating assistant tool-call message too.
	for cut > 0 && history[cut].Role == store.RoleTool {
		cut--
	}
	// If the message at the cut boundary is an assistant message with
	// pending tool calls, and the very next kept message is one of its
	// results, pull the assistant message into the kept set as well.
	if cut > 0 && history[cut-1].Role == store.RoleAssistant && len(history[cut-1].ToolCalls) > 0 {
		if cut < len(history) && history[cut].Role == store.RoleTool {
			cut--
		}
	}
	return cut
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Mode != ModeTokenBudget && c.Mode != ModeSlidingWindow {
		return fmt.Errorf("context: invalid mode %q", c.Mode)
	}
	if c.Strategy != StrategyTruncate && c.Strategy != StrategySummarizeAndTruncate {
		return fmt.Errorf("context: invalid strategy %q", c.Strategy)
	}
	if c.Value <= 0 {
		return fmt.Errorf("context: value must be positive")
	}
	return nil
}
