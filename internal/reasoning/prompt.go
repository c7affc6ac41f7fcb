package reasoning

import (
	"github.com/haasonsaas/agentcore/internal/llm"
	"github.com/haasonsaas/agentcore/internal/store"
	"github.com/haasonsaas/agentcore/internal/tools"
)

// buildPrompt assembles the message list sent to the LLM: system
// instruction, active history (which PlanContext has already trimmed and
// possibly prefixed with a rolling summary), then the current user turn.
// Deterministic: history arrives in storage order, never map order.
func buildPrompt(system string, history []store.Message, query string) []llm.Message {
	out := make([]llm.Message, 0, len(history)+2)
	out = append(out, llm.Message{Role: string(store.RoleSystem), Content: system})
	for _, m := range history {
		out = append(out, toLLMMessage(m))
	}
	if query != "" {
		out = append(out, llm.Message{Role: string(store.RoleUser), Content: query})
	}
	return out
}

func toLLMMessage(m store.Message) llm.Message {
	out := llm.Message{
		Role:       string(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			ToolName:  tc.ToolName,
			Arguments: tc.Arguments,
		})
	}
	return out
}

// toolSchemas builds the tool catalog carried in a Complete call: the
// full, deterministically sorted catalog when advanced_tool_use is off,
// or the top-k BM25 matches against the query when it's on.
func toolSchemas(registry *tools.Registry, query string, cfg Config) []llm.ToolSchema {
	var descriptors []tools.Descriptor
	if cfg.AdvancedToolUse {
		descriptors = registry.Search(query, cfg.AdvancedToolUseTopK)
	} else {
		descriptors = registry.Catalog()
	}

	out := make([]llm.ToolSchema, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, llm.ToolSchema{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.ParametersSchema,
		})
	}
	return out
}
