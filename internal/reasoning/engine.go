package reasoning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/agentcore/internal/artifacts"
	ctxmgr "github.com/haasonsaas/agentcore/internal/context"
	"github.com/haasonsaas/agentcore/internal/errs"
	"github.com/haasonsaas/agentcore/internal/events"
	"github.com/haasonsaas/agentcore/internal/guardrail"
	"github.com/haasonsaas/agentcore/internal/llm"
	"github.com/haasonsaas/agentcore/internal/memory"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/store"
	"github.com/haasonsaas/agentcore/internal/tools"
)

// PostPersistSummarizer is the narrow capability the Engine needs from
// MemorySummarizer: a hook run after turns are durably persisted, outside
// the prompt path. *summarize.Summarizer implements this; kept as an
// interface here to avoid reasoning depending on summarize's full
// construction surface.
type PostPersistSummarizer interface {
	MaybeSummarize(ctx context.Context, sessionID string) error
}

// Engine drives the ReasoningEngine state machine described in spec §4.8:
// GUARD → LOAD_HISTORY → PLAN_CONTEXT → LLM_CALL → PARSE → (FINAL_ANSWER |
// TOOL_DISPATCH | ABORT), looping TOOL_DISPATCH back to PLAN_CONTEXT.
//
// Grounded on internal/agent/loop.go's AgenticLoop for the overall phase
// structure and budget bookkeeping.
type Engine struct {
	cfg Config

	memory     *memory.Router
	events     *events.Router
	tools      *tools.Registry
	artifacts  artifacts.Repository
	guard      *guardrail.Guardrail
	ctxMgr     *ctxmgr.Manager
	summarizer PostPersistSummarizer
	llm        llm.Client

	metrics *observability.Metrics
	logger  *observability.Logger

	nowFn func() time.Time
	idFn  func() string
}

// New builds an Engine. summarizer, metrics, and logger may be nil.
func New(
	memRouter *memory.Router,
	evtRouter *events.Router,
	toolRegistry *tools.Registry,
	artifactRepo artifacts.Repository,
	guard *guardrail.Guardrail,
	ctxMgr *ctxmgr.Manager,
	summarizer PostPersistSummarizer,
	llmClient llm.Client,
	cfg Config,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		memory:     memRouter,
		events:     evtRouter,
		tools:      toolRegistry,
		artifacts:  artifactRepo,
		guard:      guard,
		ctxMgr:     ctxMgr,
		summarizer: summarizer,
		llm:        llmClient,
		metrics:    metrics,
		logger:     logger,
		nowFn:      func() time.Time { return time.Now().UTC() },
		idFn:       func() string { return uuid.NewString() },
	}
}

func (e *Engine) now() time.Time {
	if e.nowFn != nil {
		return e.nowFn()
	}
	return time.Now().UTC()
}

func (e *Engine) newID() string {
	if e.idFn != nil {
		return e.idFn()
	}
	return uuid.NewString()
}

// Run executes one full state-machine pass for (sessionID, query).
func (e *Engine) Run(ctx context.Context, sessionID, query string) (RunResult, error) {
	started := time.Now()

	if e.cfg.MaxExecutionTimeS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.MaxExecutionTimeS)*time.Second)
		defer cancel()
	}

	userMsg := store.Message{
		ID:        e.newID(),
		SessionID: sessionID,
		Role:      store.RoleUser,
		Content:   query,
		CreatedAt: e.now(),
		Active:    true,
	}
	persistError := !e.appendWithRetry(ctx, sessionID, userMsg)
	e.emit(ctx, sessionID, "user_message", map[string]any{"content": query})

	// GUARD
	if e.guard != nil {
		result := e.guard.Screen(ctx, query)
		if result.Blocked {
			e.emit(ctx, sessionID, "guardrail_blocked", map[string]any{"threat": result.Threat, "kind": result.Kind})
			refusal := store.Message{
				ID:        e.newID(),
				SessionID: sessionID,
				Role:      store.RoleAssistant,
				Content:   guardrail.RefusalResponse,
				CreatedAt: e.now(),
				Active:    true,
			}
			if !e.appendWithRetry(ctx, sessionID, refusal) {
				persistError = true
			}
			metric := StepMetrics{Outcome: OutcomeAbort, Duration: time.Since(started)}
			e.recordRun(metric)
			return RunResult{
				Response:        guardrail.RefusalResponse,
				Metric:          metric,
				GuardrailResult: &result,
				PersistError:    persistError,
			}, nil
		}
	}

	// LOAD_HISTORY
	history, err := e.memory.Load(ctx, sessionID, store.Filter{ActiveOnly: true})
	if err != nil {
		return e.abort(ctx, sessionID, started, errs.Wrap(errs.KindStoreUnavailable, "load session history", err))
	}

	systemMsg := store.Message{Role: store.RoleSystem, Content: e.cfg.SystemPrompt}

	var (
		step         int
		inputTokens  int
		outputTokens int
		toolCalls    int
	)

	for {
		if step >= e.cfg.MaxSteps {
			return e.abortBudget(ctx, sessionID, started, step, toolCalls, inputTokens, outputTokens, "max_steps exceeded")
		}
		if err := ctx.Err(); err != nil {
			return e.abortCancelled(ctx, sessionID, started, step, toolCalls, inputTokens, outputTokens, "deadline exceeded")
		}
		if e.cfg.TotalTokensLimit > 0 && inputTokens+outputTokens > e.cfg.TotalTokensLimit {
			return e.abortBudget(ctx, sessionID, started, step, toolCalls, inputTokens, outputTokens, "total_tokens_limit exceeded")
		}

		// PLAN_CONTEXT
		planResult, err := e.ctxMgr.PlanContext(ctx, sessionID, systemMsg, history)
		if err != nil {
			return e.abort(ctx, sessionID, started, errs.Wrap(errs.KindInternal, "plan context", err))
		}
		if planResult.Summarized || planResult.Dropped > 0 {
			e.emit(ctx, sessionID, "context_truncated", map[string]any{
				"dropped":    planResult.Dropped,
				"summarized": planResult.Summarized,
			})
		}
		if planResult.SummaryError != nil && e.logger != nil {
			e.logger.Warn(ctx, "context summarization failed, fell back to truncation", "error", planResult.SummaryError)
		}

		// LLM_CALL
		messages := buildPrompt(e.cfg.SystemPrompt, planResult.Messages, "")
		schemas := toolSchemas(e.tools, query, e.cfg)

		llmStarted := time.Now()
		completion, err := e.llm.Complete(ctx, messages, schemas, llm.Params{})
		if e.metrics != nil {
			e.metrics.LLMRequestDuration.WithLabelValues("provider", "model").Observe(time.Since(llmStarted).Seconds())
		}
		if err != nil {
			return e.abort(ctx, sessionID, started, errs.Wrap(errs.KindLLMUnavailable, "llm call failed", err))
		}
		inputTokens += completion.Usage.InputTokens
		outputTokens += completion.Usage.OutputTokens
		step++
		e.emit(ctx, sessionID, "agent_thought", map[string]any{"step": step, "content": completion.Text})

		// PARSE
		if len(completion.ToolCalls) == 0 {
			// FINAL_ANSWER
			assistantMsg := store.Message{
				ID:        e.newID(),
				SessionID: sessionID,
				Role:      store.RoleAssistant,
				Content:   completion.Text,
				CreatedAt: e.now(),
				Active:    true,
			}
			if !e.appendWithRetry(ctx, sessionID, assistantMsg) {
				persistError = true
			}
			e.postPersist(ctx, sessionID)
			e.emit(ctx, sessionID, "final_answer", map[string]any{"steps": step})

			metric := StepMetrics{
				Steps: step, ToolCalls: toolCalls,
				InputTokens: inputTokens, OutputTokens: outputTokens,
				Duration: time.Since(started), Outcome: OutcomeFinalAnswer,
			}
			e.recordRun(metric)
			return RunResult{Response: completion.Text, Metric: metric, PersistError: persistError}, nil
		}

		// TOOL_DISPATCH
		storeToolCalls := make([]store.ToolCall, len(completion.ToolCalls))
		for i, tc := range completion.ToolCalls {
			storeToolCalls[i] = store.ToolCall{ID: tc.ID, ToolName: tc.ToolName, Arguments: tc.Arguments}
		}
		assistantMsg := store.Message{
			ID:        e.newID(),
			SessionID: sessionID,
			Role:      store.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: storeToolCalls,
			CreatedAt: e.now(),
			Active:    true,
		}
		if !e.appendWithRetry(ctx, sessionID, assistantMsg) {
			persistError = true
		}
		history = append(history, assistantMsg)

		// WAIT_TOOLS (join-all)
		resultMsgs, anyError := e.dispatchTools(ctx, sessionID, storeToolCalls, SubAgentDepth(ctx))
		toolCalls += len(storeToolCalls)

		if anyError && e.cfg.FailFast {
			for _, m := range resultMsgs {
				if !e.appendWithRetry(ctx, sessionID, m) {
					persistError = true
				}
			}
			return e.abort(ctx, sessionID, started, errs.New(errs.KindToolError, "tool call failed with fail_fast enabled"))
		}

		// INTEGRATE
		for _, m := range resultMsgs {
			if !e.appendWithRetry(ctx, sessionID, m) {
				persistError = true
			}
			history = append(history, m)
		}
	}
}

// abort persists a best-effort assistant error message and returns an
// ABORT-outcome result, per spec.md §7's "fatal to the run" policy.
func (e *Engine) abort(ctx context.Context, sessionID string, started time.Time, cerr *errs.CoreError) (RunResult, error) {
	msg := "I couldn't complete that request: " + cerr.Message
	assistantMsg := store.Message{
		ID:        e.newID(),
		SessionID: sessionID,
		Role:      store.RoleAssistant,
		Content:   msg,
		CreatedAt: e.now(),
		Active:    true,
	}
	persistError := !e.appendWithRetry(ctx, sessionID, assistantMsg)
	if cerr.Kind == errs.KindCancelled {
		e.emit(ctx, sessionID, "cancelled", map[string]any{"message": cerr.Message})
	}

	metric := StepMetrics{Duration: time.Since(started), Outcome: OutcomeAbort}
	e.recordRun(metric)
	if e.metrics != nil {
		e.metrics.ErrorCounter.WithLabelValues("reasoning", string(cerr.Kind)).Inc()
	}
	return RunResult{Response: msg, Metric: metric, Error: cerr, PersistError: persistError}, nil
}

func (e *Engine) abortBudget(ctx context.Context, sessionID string, started time.Time, step, toolCalls, inputTokens, outputTokens int, reason string) (RunResult, error) {
	return e.abortWithFields(ctx, sessionID, started, step, toolCalls, inputTokens, outputTokens, errs.New(errs.KindBudgetExceeded, reason))
}

// abortCancelled records the run as cancelled rather than budget-exceeded,
// per spec's "on cancellation, an ABORT record is persisted and a
// cancelled event emitted" — distinct from max_steps/total_tokens
// exhaustion, which are genuine budget_exceeded outcomes.
func (e *Engine) abortCancelled(ctx context.Context, sessionID string, started time.Time, step, toolCalls, inputTokens, outputTokens int, reason string) (RunResult, error) {
	return e.abortWithFields(ctx, sessionID, started, step, toolCalls, inputTokens, outputTokens, errs.New(errs.KindCancelled, reason))
}

func (e *Engine) abortWithFields(ctx context.Context, sessionID string, started time.Time, step, toolCalls, inputTokens, outputTokens int, cerr *errs.CoreError) (RunResult, error) {
	result, _ := e.abort(ctx, sessionID, started, cerr)
	result.Metric.Steps = step
	result.Metric.ToolCalls = toolCalls
	result.Metric.InputTokens = inputTokens
	result.Metric.OutputTokens = outputTokens
	return result, nil
}

// appendWithRetry persists a message with the store-error retry policy
// from spec.md §7: up to 3 retries with backoff 50ms, 200ms, 800ms.
// Returns false if every attempt failed, signalling the caller to set
// persist_error on the run result.
func (e *Engine) appendWithRetry(ctx context.Context, sessionID string, msg store.Message) bool {
	backoffs := []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 800 * time.Millisecond}
	var err error
	for attempt := 0; attempt <= len(backoffs); attempt++ {
		err = e.memory.Append(ctx, sessionID, msg)
		if err == nil {
			return true
		}
		if attempt < len(backoffs) {
			select {
			case <-time.After(backoffs[attempt]):
			case <-ctx.Done():
				return false
			}
		}
	}
	if e.logger != nil {
		e.logger.Error(ctx, "persist failed after retries", "session_id", sessionID, "error", err)
	}
	return false
}

// postPersist invokes the summarizer's post-persist hook (outside the
// prompt path) after a final answer has been durably appended. Failures
// are logged, not surfaced: summarization is advisory housekeeping, never
// a reason to fail a run that already produced a response.
func (e *Engine) postPersist(ctx context.Context, sessionID string) {
	if e.summarizer == nil {
		return
	}
	if err := e.summarizer.MaybeSummarize(ctx, sessionID); err != nil && e.logger != nil {
		e.logger.Warn(ctx, "post-persist summarization failed", "session_id", sessionID, "error", err)
	}
}

func (e *Engine) emit(ctx context.Context, sessionID, eventType string, payload map[string]any) {
	if e.events == nil {
		return
	}
	_ = e.events.Emit(ctx, store.Event{
		EventID:   e.newID(),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: e.now(),
		Payload:   payload,
	})
}

func (e *Engine) recordRun(metric StepMetrics) {
	if e.metrics == nil {
		return
	}
	e.metrics.RunCounter.WithLabelValues(string(metric.Outcome)).Inc()
	e.metrics.LLMTokensUsed.WithLabelValues("provider", "model", "input").Add(float64(metric.InputTokens))
	e.metrics.LLMTokensUsed.WithLabelValues("provider", "model", "output").Add(float64(metric.OutputTokens))
}
