package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/agentcore/internal/reasoning"
	"github.com/haasonsaas/agentcore/internal/store"
	"github.com/haasonsaas/agentcore/internal/tools"
)

type subAgentArgs struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type subAgentResult struct {
	Response string `json:"response"`
}

// emitSubAgentEvent publishes a sub_agent_started|result|error event onto
// the delegating session's stream. A no-op when sessionID is unknown
// (e.g. the handler invoked outside a dispatched tool call) or a's
// events router was never wired.
func (a *AgentCore) emitSubAgentEvent(ctx context.Context, sessionID, eventType string, payload map[string]any) {
	if a.events == nil || sessionID == "" {
		return
	}
	_ = a.events.Emit(ctx, store.Event{
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// RegisterSubAgent exposes child as a sub_agent-kind tool on a's
// registry, so the model can delegate a sub-task to it mid-run. The
// handler refuses once the delegation chain reaches a's own
// SubAgentMaxDepth, rather than recursing unbounded: depth is carried on
// the context the tool handler runs under (reasoning.dispatchTools sets
// it per spec.md §4.8), and bumped by one before handing off to child.
func (a *AgentCore) RegisterSubAgent(name, description string, child *AgentCore) error {
	maxDepth := a.reasoningCfg.SubAgentMaxDepth
	return a.tools.Register(tools.Descriptor{
		Name:        name,
		Description: description,
		Parameters: []tools.Parameter{
			{Name: "session_id", Type: tools.ParamString, Required: true, Description: "sub-agent session to continue or start"},
			{Name: "query", Type: tools.ParamString, Required: true},
		},
		Kind: tools.KindSubAgent,
	}, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		depth := reasoning.SubAgentDepth(ctx)
		if maxDepth > 0 && depth >= maxDepth {
			return nil, fmt.Errorf("sub_agent delegation refused: max depth %d reached", maxDepth)
		}

		var args subAgentArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("sub_agent: invalid arguments: %w", err)
		}

		parentSessionID := reasoning.ParentSessionID(ctx)
		a.emitSubAgentEvent(ctx, parentSessionID, "sub_agent_started", map[string]any{
			"child_session_id": args.SessionID,
		})

		childCtx := reasoning.WithIncrementedSubAgentDepth(ctx)
		result, err := child.Run(childCtx, args.Query, args.SessionID)
		if err != nil {
			a.emitSubAgentEvent(ctx, parentSessionID, "sub_agent_error", map[string]any{
				"child_session_id": args.SessionID,
				"error":            err.Error(),
			})
			return nil, err
		}
		if result.Error != nil {
			a.emitSubAgentEvent(ctx, parentSessionID, "sub_agent_error", map[string]any{
				"child_session_id": args.SessionID,
				"error":            result.Error.Message,
			})
			return nil, fmt.Errorf("sub_agent run failed: %s", result.Error.Message)
		}
		a.emitSubAgentEvent(ctx, parentSessionID, "sub_agent_result", map[string]any{
			"child_session_id": args.SessionID,
			"response":         result.Response,
		})
		return json.Marshal(subAgentResult{Response: result.Response})
	})
}
