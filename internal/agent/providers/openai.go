package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/dbagent/internal/agent"
	"github.com/haasonsaas/dbagent/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements agent.LLMProvider over OpenAI's chat completions API.
type OpenAIProvider struct {
	BaseProvider
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewOpenAIProvider validates config and constructs a ready-to-use provider.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		BaseProvider: NewBaseProvider("openai", config.MaxRetries, config.RetryDelay),
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: config.DefaultModel,
	}, nil
}

// Name identifies this provider for routing and logging.
func (p *OpenAIProvider) Name() string { return "openai" }

// Model returns the default model this provider completes against absent an
// explicit override on the request.
func (p *OpenAIProvider) Model() string { return p.defaultModel }

// Complete sends req to the chat completions API (non-streaming) and
// returns exactly one completion per agent.CompletionResponse's contract.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	var resp openai.ChatCompletionResponse
	err := p.Retry(ctx, IsRetryable, func() error {
		r, callErr := p.client.CreateChatCompletion(ctx, chatReq)
		if callErr != nil {
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, NewProviderError(p.Name(), model, err)
	}

	return convertOpenAIResponse(resp)
}

func convertOpenAIMessages(messages []agent.CompletionMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: m.Content,
			})
		case "tool":
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case "assistant":
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			})
		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		}
	}
	return result
}

func convertOpenAITools(tools []agent.ToolSchema) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

// convertOpenAIResponse normalizes a ChatCompletionResponse into exactly
// one agent.CompletionResponse: the first choice's tool call, if present,
// else its message content.
func convertOpenAIResponse(resp openai.ChatCompletionResponse) (*agent.CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response contained no choices")
	}
	msg := resp.Choices[0].Message

	out := &agent.CompletionResponse{
		Content:      msg.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		out.ToolCall = &models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}
	}

	return out, nil
}
