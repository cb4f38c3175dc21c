package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/botirk38/llmtopics/llmjson"
	"github.com/botirk38/llmtopics/types"
	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

const (
	DefaultOpenAIModel = "gpt-4o"

	// DefaultTopLogprobs is the number of alternatives requested per token
	// when a request asks for logprobs without naming a count.
	DefaultTopLogprobs = 20
)

// OpenAIProvider completes prompts with OpenAI chat completions in JSON mode.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// OpenAIConfig provides configuration options for the OpenAI completer
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	OrgID   string
	Model   string

	// MaxRetries is handed to the SDK. Retrying is normally done one layer
	// up, so the default is 0.
	MaxRetries int
}

// NewOpenAIProvider creates a completion provider for OpenAI.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("OpenAI API key is required")
		}
	}

	model := config.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(config.MaxRetries),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.OrgID != "" {
		opts = append(opts, option.WithOrganization(config.OrgID))
	}

	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, model: model}, nil
}

// Model returns the default model used when a request names none.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Complete sends the chat completion request to OpenAI and decodes the
// message content as a JSON object. In logprobs mode the whole response
// envelope is returned instead.
func (p *OpenAIProvider) Complete(ctx context.Context, req types.Request) (types.Object, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Logprobs {
		top := req.TopLogprobs
		if top <= 0 {
			top = DefaultTopLogprobs
		}
		params.Logprobs = openai.Bool(true)
		params.TopLogprobs = openai.Int(int64(top))
	}

	var reqOpts []option.RequestOption
	if req.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(req.Timeout))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}

	if req.Logprobs {
		obj, err := llmjson.DecodeObject(resp.RawJSON())
		if err != nil {
			return nil, fmt.Errorf("openai response envelope: %w", err)
		}
		return obj, nil
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, types.ErrEmptyResponse
	}
	obj, err := llmjson.DecodeObject(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("openai message content: %w", err)
	}
	return obj, nil
}

func (p *OpenAIProvider) Close() {}
