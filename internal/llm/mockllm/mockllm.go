// Package mockllm provides a scripted llm.Client for ReasoningEngine
// tests, grounded on the teacher's pattern of constructor-injected
// interfaces for testability (ExecutorConfig.Tools map[string]Tool in
// internal/agent/executor_test.go): canned, turn-indexed responses
// instead of a live provider call.
package mockllm

import (
	"context"
	"sync"

	"github.com/haasonsaas/agentcore/internal/llm"
)

// Turn is one scripted response, returned in order as Complete is called.
type Turn struct {
	Completion llm.Completion
	Err        error
}

// Client replays a fixed script of Turns, one per call to Complete. Calls
// past the end of the script repeat the last turn. It also records every
// call's messages/tools for assertions.
type Client struct {
	mu     sync.Mutex
	script []Turn
	calls  []Call
}

// Call captures one Complete invocation for test assertions.
type Call struct {
	Messages []llm.Message
	Tools    []llm.ToolSchema
	Params   llm.Params
}

// New builds a Client that plays back the given turns in order.
func New(turns ...Turn) *Client {
	return &Client{script: turns}
}

// Echo returns a single-turn Client whose completion echoes the last user
// message's content verbatim, for the "basic run" scenario.
func Echo() *Client {
	return &Client{script: nil}
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema, params llm.Params) (llm.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Messages: messages, Tools: tools, Params: params})

	if len(c.script) == 0 {
		// Echo mode: no script configured, mirror the newest user turn.
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == "user" {
				return llm.Completion{Text: messages[i].Content}, nil
			}
		}
		return llm.Completion{}, nil
	}

	idx := len(c.calls) - 1
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	turn := c.script[idx]
	return turn.Completion, turn.Err
}

// Calls returns every recorded Complete invocation, in order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}
