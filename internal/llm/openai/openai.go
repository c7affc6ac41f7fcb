// Package openai adapts the OpenAI chat-completions API to the llm.Client
// contract, grounded on the teacher's internal/agent/providers/openai.go
// message/tool conversion helpers, collapsed to a single non-streaming call.
package openai

import (
	"context"
	"encoding/json"
	"errors"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agentcore/internal/llm"
)

// Config configures the OpenAI client.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Client implements llm.Client against the OpenAI chat-completions API.
type Client struct {
	sdk          *openaisdk.Client
	defaultModel string
}

// New builds a Client. APIKey is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	oaiCfg := openaisdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{sdk: openaisdk.NewClientWithConfig(oaiCfg), defaultModel: cfg.DefaultModel}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema, params llm.Params) (llm.Completion, error) {
	model := params.Model
	if model == "" {
		model = c.defaultModel
	}

	chatMessages := make([]openaisdk.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		switch role {
		case "summary":
			role = openaisdk.ChatMessageRoleSystem
		}
		oaiMsg := openaisdk.ChatCompletionMessage{Role: role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openaisdk.ToolCall{
				ID:   tc.ID,
				Type: openaisdk.ToolTypeFunction,
				Function: openaisdk.FunctionCall{
					Name:      tc.ToolName,
					Arguments: tc.Arguments,
				},
			})
		}
		chatMessages = append(chatMessages, oaiMsg)
	}

	req := openaisdk.ChatCompletionRequest{
		Model:    model,
		Messages: chatMessages,
	}
	if params.Temperature > 0 {
		req.Temperature = float32(params.Temperature)
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}
	for _, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		req.Tools = append(req.Tools, openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}

	resp, err := c.sdk.CreateChatCompletion(ctx, req)
	if err != nil {
		return llm.Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.Completion{}, errors.New("openai: empty response")
	}
	choice := resp.Choices[0]

	out := llm.Completion{
		Text: choice.Message.Content,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			ToolName:  tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}
