// Package providers implements LLMProvider integrations for the agent core.
//
// Each provider converts between the core's internal request/response shape
// (agent.CompletionRequest/CompletionResponse, a single non-streaming
// request/response) and the target SDK's wire format, and applies the
// shared retry policy in base.go.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/dbagent/internal/agent"
	"github.com/haasonsaas/dbagent/pkg/models"
)

// AnthropicProvider implements agent.LLMProvider over Anthropic's Messages API.
type AnthropicProvider struct {
	BaseProvider
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicProvider validates config and constructs a ready-to-use provider.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", config.MaxRetries, config.RetryDelay),
		client:       anthropic.NewClient(opts...),
		defaultModel: config.DefaultModel,
	}, nil
}

// Name identifies this provider for routing and logging.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Model returns the default model this provider completes against absent an
// explicit override on the request.
func (p *AnthropicProvider) Model() string { return p.defaultModel }

// Complete sends req to Anthropic's Messages API and returns exactly one
// completion: either textual content or a single tool call, per
// agent.CompletionResponse's contract. Retries transient failures per
// BaseProvider.Retry.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params, err := p.buildParams(req, model, maxTokens)
	if err != nil {
		return nil, NewProviderError(p.Name(), model, err)
	}

	var msg *anthropic.Message
	err = p.Retry(ctx, IsRetryable, func() error {
		resp, callErr := p.client.Messages.New(ctx, params)
		if callErr != nil {
			return callErr
		}
		msg = resp
		return nil
	})
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	return convertAnthropicMessage(msg)
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest, model string, maxTokens int) (anthropic.MessageNewParams, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	for _, m := range req.Messages {
		if m.Role == "system" && m.Content != "" {
			params.System = []anthropic.TextBlockParam{{Text: m.Content}}
			break
		}
	}

	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}

	return params, nil
}

func convertAnthropicMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			continue
		case "tool":
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		case "assistant":
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return result, nil
}

func convertAnthropicTools(tools []agent.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
			}
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		result = append(result, param)
	}
	return result, nil
}

// convertAnthropicMessage normalizes a Messages API response into exactly
// one agent.CompletionResponse. A response carrying a tool_use block
// surfaces it via ToolCall; otherwise the concatenated text blocks become
// Content.
func convertAnthropicMessage(msg *anthropic.Message) (*agent.CompletionResponse, error) {
	resp := &agent.CompletionResponse{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			input, err := json.Marshal(variant.Input)
			if err != nil {
				return nil, fmt.Errorf("marshal tool_use input: %w", err)
			}
			resp.ToolCall = &models.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: input,
			}
		}
	}
	resp.Content = text.String()
	return resp, nil
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	return NewProviderError(p.Name(), model, err).WithMessage(err.Error())
}
