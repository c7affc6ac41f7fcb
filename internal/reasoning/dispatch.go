package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	ctxmgr "github.com/haasonsaas/agentcore/internal/context"
	"github.com/haasonsaas/agentcore/internal/errs"
	"github.com/haasonsaas/agentcore/internal/store"
)

type subAgentDepthKey struct{}
type parentSessionKey struct{}

// withSubAgentDepth records how many sub_agent tool hops deep the current
// run is, so a sub_agent tool handler invoked from within this run can
// read it back (via SubAgentDepth) and refuse once SubAgentMaxDepth is
// reached, rather than recursing unbounded.
func withSubAgentDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, subAgentDepthKey{}, depth)
}

// SubAgentDepth reports the current sub_agent nesting depth, 0 at the
// top-level run. A sub_agent tool handler should call this to decide
// whether it is allowed to recurse further.
func SubAgentDepth(ctx context.Context) int {
	d, _ := ctx.Value(subAgentDepthKey{}).(int)
	return d
}

// WithIncrementedSubAgentDepth returns a context recording one more
// sub_agent hop than ctx currently carries. A sub_agent tool handler
// calls this before invoking the child engine's Run, so the child (and
// anything it in turn delegates to) sees the deeper count.
func WithIncrementedSubAgentDepth(ctx context.Context) context.Context {
	return withSubAgentDepth(ctx, SubAgentDepth(ctx)+1)
}

// ParentSessionID reports the session that dispatched the tool call
// currently executing under ctx, so a sub_agent tool handler can emit
// its sub_agent_started/result/error events onto the delegating
// session's stream rather than the child's own.
func ParentSessionID(ctx context.Context) string {
	id, _ := ctx.Value(parentSessionKey{}).(string)
	return id
}

// errorPayload is the {error, kind} shape a failed tool call reports back
// to the model as its tool-result content, per spec.md §4.8.
type errorPayload struct {
	Error string   `json:"error"`
	Kind  errs.Kind `json:"kind"`
}

// dispatchTools runs every requested tool call concurrently with a
// per-call timeout, joining on all of them (join-all) before returning.
// Results are returned in request order regardless of completion order.
// The bool return reports whether any call errored, for fail_fast.
func (e *Engine) dispatchTools(ctx context.Context, sessionID string, calls []store.ToolCall, depth int) ([]store.Message, bool) {
	results := make([]store.Message, len(calls))
	var anyError int32

	callCtx := withSubAgentDepth(ctx, depth)
	callCtx = context.WithValue(callCtx, parentSessionKey{}, sessionID)

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call store.ToolCall) {
			defer wg.Done()
			msg, errored := e.executeOne(callCtx, sessionID, call)
			results[i] = msg
			if errored {
				atomic.AddInt32(&anyError, 1)
			}
		}(i, call)
	}
	wg.Wait()

	return results, anyError > 0
}

// executeOne runs a single tool call under its own timeout, recovering
// any panic from the handler and converting it into a tool_error result
// exactly as the teacher's executeWithTimeout does, then applies offload
// if the result exceeds the configured token threshold.
func (e *Engine) executeOne(ctx context.Context, sessionID string, call store.ToolCall) (store.Message, bool) {
	started := time.Now()
	timeout := time.Duration(e.cfg.ToolCallTimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.emit(ctx, sessionID, "tool_call_started", map[string]any{
		"tool_call_id": call.ID,
		"tool_name":    call.ToolName,
		"arguments":    call.Arguments,
	})

	if _, ok := e.tools.Get(call.ToolName); !ok {
		return e.emitToolResult(ctx, sessionID, e.toolErrorMessage(sessionID, call, errs.KindToolNotFound, fmt.Errorf("tool not found: %s", call.ToolName))), true
	}

	type execResult struct {
		result json.RawMessage
		err    error
	}
	resultCh := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- execResult{err: fmt.Errorf("tool panic: %v\n%s", r, debug.Stack())}
			}
		}()
		out, err := e.tools.Execute(execCtx, call.ToolName, json.RawMessage(call.Arguments))
		resultCh <- execResult{result: out, err: err}
	}()

	select {
	case res := <-resultCh:
		if e.metrics != nil {
			status := "ok"
			if res.err != nil {
				status = "error"
			}
			e.metrics.ToolExecutionCounter.WithLabelValues(call.ToolName, status).Inc()
			e.metrics.ToolExecutionDuration.WithLabelValues(call.ToolName).Observe(time.Since(started).Seconds())
		}
		if res.err != nil {
			return e.emitToolResult(ctx, sessionID, e.toolErrorMessage(sessionID, call, errs.KindToolError, res.err)), true
		}
		return e.emitToolResult(ctx, sessionID, e.toolResultMessage(ctx, sessionID, call, res.result)), false
	case <-execCtx.Done():
		if e.metrics != nil {
			e.metrics.ToolExecutionCounter.WithLabelValues(call.ToolName, "timeout").Inc()
		}
		kind := errs.KindToolTimeout
		err := fmt.Errorf("tool call timed out after %s", timeout)
		if ctx.Err() != nil {
			kind = errs.KindCancelled
			err = ctx.Err()
		}
		return e.emitToolResult(ctx, sessionID, e.toolErrorMessage(sessionID, call, kind, err)), true
	}
}

// emitToolResult publishes the tool_call_result event for a completed
// call and returns the message unchanged, so it can wrap each return
// path in executeOne without duplicating the emit call.
func (e *Engine) emitToolResult(ctx context.Context, sessionID string, msg store.Message) store.Message {
	e.emit(ctx, sessionID, "tool_call_result", map[string]any{
		"tool_call_id": msg.ToolCallID,
		"content":      msg.Content,
	})
	return msg
}

func (e *Engine) toolErrorMessage(sessionID string, call store.ToolCall, kind errs.Kind, cause error) store.Message {
	payload, _ := json.Marshal(errorPayload{Error: cause.Error(), Kind: kind})
	return store.Message{
		ID:         e.newID(),
		SessionID:  sessionID,
		Role:       store.RoleTool,
		Content:    string(payload),
		ToolCallID: call.ID,
		CreatedAt:  e.now(),
		Active:     true,
	}
}

// toolResultMessage applies offload-on-threshold: when tool_offload is
// enabled and the raw result's token estimate exceeds the configured
// threshold, the payload is diverted to the artifact store and replaced
// with a handle the model can follow up on via read_artifact.
func (e *Engine) toolResultMessage(ctx context.Context, sessionID string, call store.ToolCall, raw json.RawMessage) store.Message {
	content := string(raw)
	tokenEstimate := ctxmgr.EstimateTokens(content)

	if e.cfg.ToolOffload.Enabled && e.artifacts != nil && tokenEstimate > e.cfg.ToolOffload.ThresholdTokens {
		ref, err := e.artifacts.StoreArtifact(ctx, sessionID, raw, "application/json")
		if err == nil {
			handle := map[string]any{
				"artifact_id": ref.ArtifactID,
				"preview":     ref.Preview,
				"hint":        "use read_artifact to load full content",
			}
			if encoded, merr := json.Marshal(handle); merr == nil {
				content = string(encoded)
				tokenEstimate = ctxmgr.EstimateTokens(content)
			}
		} else if e.logger != nil {
			e.logger.Warn(ctx, "tool offload failed", "tool", call.ToolName, "error", err)
		}
	}

	return store.Message{
		ID:            e.newID(),
		SessionID:     sessionID,
		Role:          store.RoleTool,
		Content:       content,
		ToolCallID:    call.ID,
		CreatedAt:     e.now(),
		TokenEstimate: tokenEstimate,
		Active:        true,
	}
}
