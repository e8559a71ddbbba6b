package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/hindsightdb/hindsight/internal/logging"
)

// AnthropicConfig configures the Anthropic-backed client.
type AnthropicConfig struct {
	APIKey             string
	Model              string
	BaseURL            string
	RequestsPerSecond  float64
	Burst              int
}

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	sdk     anthropic.Client
	model   string
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewAnthropicClient builds an AnthropicClient from cfg.
func NewAnthropicClient(cfg AnthropicConfig, logger *logging.Logger) *AnthropicClient {
	if logger == nil {
		logger = logging.NewNop()
	}
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	return &AnthropicClient{
		sdk:     anthropic.NewClient(opts...),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

func (c *AnthropicClient) Call(ctx context.Context, opts CallOptions) (Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Message{}, fmt.Errorf("llm: rate limiter: %w", err)
	}

	sys, converted, err := adaptMessages(opts.Messages)
	if err != nil {
		return Message{}, errCallFailed(opts.Scope, err)
	}

	tools := opts.Tools
	wantsStructured := opts.ResponseSchema != nil
	if wantsStructured {
		tools = append(append([]ToolSchema{}, tools...), ToolSchema{
			Name:        emitResultTool,
			Description: "Emit the final structured result matching the required schema.",
			Parameters:  opts.ResponseSchema,
		})
	}

	toolDefs, err := adaptTools(tools)
	if err != nil {
		return Message{}, errCallFailed(opts.Scope, err)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  converted,
		System:    sys,
		MaxTokens: int64(maxTokens),
	}
	if len(toolDefs) > 0 {
		params.Tools = toolDefs
		if wantsStructured {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: emitResultTool},
			}
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return Message{}, errCallFailed(opts.Scope, err)
	}

	if resp.StopReason == anthropic.StopReasonMaxTokens {
		return Message{}, errOutputTooLong(opts.Scope)
	}

	out := messageFromResponse(resp)
	if wantsStructured {
		for _, tc := range out.ToolCalls {
			if tc.Name == emitResultTool {
				return Message{Role: "assistant", Content: string(tc.Args)}, nil
			}
		}
	}
	return out, nil
}

func adaptMessages(msgs []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))

	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case "user":
			if strings.TrimSpace(m.Content) != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case "assistant":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, decodeArgs(tc.Args), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case "tool":
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			return nil, nil, fmt.Errorf("llm: unsupported role %q", m.Role)
		}
	}
	return system, out, nil
}

func adaptTools(tools []ToolSchema) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("llm: tool name required")
		}
		schema := anthropic.ToolInputSchemaParam{}
		params := t.Parameters
		if props, ok := params["properties"]; ok {
			schema.Properties = props
		}
		if req, ok := params["required"].([]string); ok {
			schema.Required = req
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}})
	}
	return out, nil
}

func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	return map[string]any{}
}

func messageFromResponse(resp *anthropic.Message) Message {
	if resp == nil {
		return Message{}
	}
	var sb strings.Builder
	var calls []ToolCall
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(v.Input)
			calls = append(calls, ToolCall{ID: v.ID, Name: v.Name, Args: args})
		}
	}
	return Message{Role: "assistant", Content: sb.String(), ToolCalls: calls}
}

var _ Client = (*AnthropicClient)(nil)
