// Package anthropic adapts the Anthropic Messages API to the llm.Client
// contract, grounded on the teacher's internal/agent/providers/anthropic.go
// (client construction, retry/default conventions) but collapsed from a
// streaming chunk-channel provider into the single non-streaming
// Complete call the reasoning loop needs.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/agentcore/internal/llm"
)

// Config configures the Anthropic client.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// Client implements llm.Client against the Anthropic Messages API.
type Client struct {
	sdk          anthropicsdk.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// New builds a Client. APIKey is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		sdk:          anthropicsdk.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema, params llm.Params) (llm.Completion, error) {
	model := params.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := int64(params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	req := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: maxTokens,
	}
	if params.Temperature > 0 {
		req.Temperature = anthropicsdk.Float(params.Temperature)
	}

	var sdkMessages []anthropicsdk.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			req.System = []anthropicsdk.TextBlockParam{{Text: m.Content}}
		case "assistant":
			sdkMessages = append(sdkMessages, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		case "tool":
			sdkMessages = append(sdkMessages, anthropicsdk.NewUserMessage(
				anthropicsdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			sdkMessages = append(sdkMessages, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}
	req.Messages = sdkMessages

	for _, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		req.Tools = append(req.Tools, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
			},
		})
	}

	var lastErr error
	delay := c.retryDelay
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.sdk.Messages.New(ctx, req)
		if err == nil {
			return toCompletion(resp), nil
		}
		lastErr = err
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return llm.Completion{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return llm.Completion{}, lastErr
}

func toCompletion(resp *anthropicsdk.Message) llm.Completion {
	out := llm.Completion{
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			out.Text += b.Text
		case anthropicsdk.ToolUseBlock:
			args, _ := json.Marshal(b.Input)
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        b.ID,
				ToolName:  b.Name,
				Arguments: string(args),
			})
		}
	}
	return out
}
