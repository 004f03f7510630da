package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/dbagent/internal/agent"
	"github.com/haasonsaas/dbagent/pkg/models"
)

// BedrockProvider implements agent.LLMProvider over AWS Bedrock's Converse API
// (non-streaming variant), giving access to any foundation model the AWS
// account has enabled (Anthropic Claude, Titan, Llama, Mistral, Cohere...).
type BedrockProvider struct {
	BaseProvider
	client       *bedrockruntime.Client
	defaultModel string
}

// BedrockConfig configures a BedrockProvider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
	RetryDelay      time.Duration
}

// NewBedrockProvider loads AWS credentials (explicit or default chain) and
// constructs a ready-to-use provider.
func NewBedrockProvider(cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(context.Background(), config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		BaseProvider: NewBaseProvider("bedrock", cfg.MaxRetries, cfg.RetryDelay),
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name identifies this provider for routing and logging.
func (p *BedrockProvider) Name() string { return "bedrock" }

// Model returns the default model this provider completes against absent an
// explicit override on the request.
func (p *BedrockProvider) Model() string { return p.defaultModel }

// Complete sends req to Bedrock's Converse API and returns exactly one
// completion per agent.CompletionResponse's contract.
func (p *BedrockProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletionResponse, error) {
	if p.client == nil {
		return nil, NewProviderError("bedrock", req.Model, errors.New("bedrock client not initialized"))
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages, system := convertBedrockMessages(req.Messages)

	converseReq := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if system != "" {
		converseReq.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		converseReq.InferenceConfig = &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)),
		}
	}
	if len(req.Tools) > 0 {
		toolConfig, err := convertBedrockTools(req.Tools)
		if err != nil {
			return nil, NewProviderError("bedrock", model, err)
		}
		converseReq.ToolConfig = toolConfig
	}

	var out *bedrockruntime.ConverseOutput
	err := p.Retry(ctx, IsRetryable, func() error {
		resp, callErr := p.client.Converse(ctx, converseReq)
		if callErr != nil {
			return callErr
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	return convertBedrockOutput(out)
}

func convertBedrockMessages(messages []agent.CompletionMessage) ([]types.Message, string) {
	var result []types.Message
	var system string
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "tool":
			result = append(result, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberToolResult{
						Value: types.ToolResultBlock{
							ToolUseId: aws.String(m.ToolCallID),
							Content: []types.ToolResultContentBlock{
								&types.ToolResultContentBlockMemberText{Value: m.Content},
							},
						},
					},
				},
			})
		case "assistant":
			result = append(result, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		default:
			result = append(result, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}
	return result, system
}

func convertBedrockTools(tools []agent.ToolSchema) (*types.ToolConfiguration, error) {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
			}
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schema),
				},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}, nil
}

// convertBedrockOutput normalizes a Converse response into exactly one
// agent.CompletionResponse: the first tool-use block, if present, else the
// concatenated text blocks.
func convertBedrockOutput(out *bedrockruntime.ConverseOutput) (*agent.CompletionResponse, error) {
	msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock: unexpected output type %T", out.Output)
	}

	resp := &agent.CompletionResponse{}
	if out.Usage != nil {
		resp.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		resp.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}

	var text string
	for _, block := range msgOutput.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text += b.Value
		case *types.ContentBlockMemberToolUse:
			input, err := json.Marshal(b.Value.Input)
			if err != nil {
				return nil, fmt.Errorf("marshal tool use input: %w", err)
			}
			resp.ToolCall = &models.ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: input,
			}
		}
	}
	resp.Content = text
	return resp, nil
}

func (p *BedrockProvider) wrapError(err error, model string) error {
	return NewProviderError(p.Name(), model, err).WithMessage(err.Error())
}
