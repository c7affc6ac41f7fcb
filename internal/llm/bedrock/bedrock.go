// Package bedrock adapts the AWS Bedrock Converse API to the llm.Client
// contract, grounded on the teacher's internal/agent/providers/bedrock.go
// (Converse request shape, types.Tool construction), collapsed from the
// streaming ConverseStream call to the single non-streaming Converse call.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/agentcore/internal/llm"
)

// Config configures the Bedrock client.
type Config struct {
	Region       string
	DefaultModel string
}

// Client implements llm.Client against the AWS Bedrock Converse API.
type Client struct {
	sdk          *bedrockruntime.Client
	defaultModel string
}

// New builds a Client using ambient AWS credentials resolution.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{sdk: bedrockruntime.NewFromConfig(awsCfg), defaultModel: cfg.DefaultModel}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema, params llm.Params) (llm.Completion, error) {
	model := params.Model
	if model == "" {
		model = c.defaultModel
	}

	var system []types.SystemContentBlock
	var converseMessages []types.Message
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
		case "assistant":
			converseMessages = append(converseMessages, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		case "tool":
			converseMessages = append(converseMessages, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: &m.ToolCallID,
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content}},
					},
				}},
			})
		default:
			converseMessages = append(converseMessages, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}

	req := &bedrockruntime.ConverseInput{
		ModelId:  &model,
		Messages: converseMessages,
		System:   system,
	}
	if params.MaxTokens > 0 || params.Temperature > 0 {
		cfg := &types.InferenceConfiguration{}
		if params.MaxTokens > 0 {
			mt := int32(params.MaxTokens)
			cfg.MaxTokens = &mt
		}
		if params.Temperature > 0 {
			t := float32(params.Temperature)
			cfg.Temperature = &t
		}
		req.InferenceConfig = cfg
	}
	if len(tools) > 0 {
		toolCfg := &types.ToolConfiguration{}
		for _, t := range tools {
			var schema map[string]any
			_ = json.Unmarshal(t.Parameters, &schema)
			toolCfg.Tools = append(toolCfg.Tools, &types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name:        &t.Name,
					Description: &t.Description,
					InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
				},
			})
		}
		req.ToolConfig = toolCfg
	}

	resp, err := c.sdk.Converse(ctx, req)
	if err != nil {
		return llm.Completion{}, err
	}
	out := llm.Completion{}
	if resp.Usage != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(*resp.Usage.InputTokens),
			OutputTokens: int(*resp.Usage.OutputTokens),
		}
	}
	outputMember, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return out, errors.New("bedrock: unexpected converse output")
	}
	for _, block := range outputMember.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			out.Text += b.Value
		case *types.ContentBlockMemberToolUse:
			args, _ := json.Marshal(b.Value.Input)
			id := ""
			if b.Value.ToolUseId != nil {
				id = *b.Value.ToolUseId
			}
			name := ""
			if b.Value.Name != nil {
				name = *b.Value.Name
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: id, ToolName: name, Arguments: string(args)})
		}
	}
	return out, nil
}
