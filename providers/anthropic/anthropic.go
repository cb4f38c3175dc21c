package anthropic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/botirk38/llmtopics/llmjson"
	"github.com/botirk38/llmtopics/types"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-5"

	// DefaultMaxTokens is sent when a request leaves MaxTokens unset; the
	// Messages API requires a value.
	DefaultMaxTokens = 2000
)

// AnthropicProvider completes prompts with the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// AnthropicConfig provides configuration options for the Anthropic completer
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
}

// NewAnthropicProvider creates a completion provider for Anthropic.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("Anthropic API key is required")
		}
	}

	model := config.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: model}, nil
}

// Model returns the default model used when a request names none.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Complete sends req as a single user message and decodes the text reply
// as a JSON object. Anthropic has no logprobs mode.
func (p *AnthropicProvider) Complete(ctx context.Context, req types.Request) (types.Object, error) {
	if req.Logprobs {
		return nil, fmt.Errorf("anthropic logprobs: %w", types.ErrUnsupported)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var reqOpts []option.RequestOption
	if req.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(req.Timeout))
	}

	message, err := p.client.Messages.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, types.ErrEmptyResponse
	}

	obj, err := llmjson.DecodeObject(text.String())
	if err != nil {
		return nil, fmt.Errorf("anthropic message content: %w", err)
	}
	return obj, nil
}

func (p *AnthropicProvider) Close() {}
