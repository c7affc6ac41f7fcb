// Package llm defines the provider-agnostic LLMClient contract the
// ReasoningEngine calls against. Concrete wire adapters (anthropic, openai,
// bedrock) and the mockllm test double all implement Client identically;
// the reasoning loop never imports a provider package directly.
package llm

import (
	"context"
	"encoding/json"
)

// Message is one turn in the prompt sent to the model. It mirrors
// store.Message's shape closely enough to convert without loss, but stays
// independent of the store package so provider adapters don't need to
// import storage internals.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string `json:"id"`
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"`
}

// ToolSchema is one entry of the tool catalog carried in a Complete call,
// built from a tools.Descriptor.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Params configures a single completion call.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting for a completion call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Completion is the model's response to one Complete call. Exactly one of
// Text (final answer, no further tool calls requested) or ToolCalls
// (the model wants to act before answering) is meaningful; both may be
// present if a provider emits reasoning text alongside tool calls.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// Client is the single abstraction every provider wire adapter implements.
// ReasoningEngine depends only on this interface.
type Client interface {
	Complete(ctx context.Context, messages []Message, tools []ToolSchema, params Params) (Completion, error)
}
