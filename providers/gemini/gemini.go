package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/botirk38/llmtopics/llmjson"
	"github.com/botirk38/llmtopics/types"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider completes prompts with the Gemini API in JSON mode.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiConfig provides configuration options for the Gemini completer
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewGeminiProvider creates a completion provider for Gemini.
func NewGeminiProvider(ctx context.Context, config GeminiConfig) (*GeminiProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("Gemini API key is required")
		}
	}

	model := config.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Model returns the default model used when a request names none.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Complete sends req with an application/json response MIME type and
// decodes the reply text.
func (p *GeminiProvider) Complete(ctx context.Context, req types.Request) (types.Object, error) {
	if req.Logprobs {
		return nil, fmt.Errorf("gemini logprobs: %w", types.ErrUnsupported)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(req.Temperature)),
		ResponseMIMEType: "application/json",
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, types.ErrEmptyResponse
	}
	obj, err := llmjson.DecodeObject(text)
	if err != nil {
		return nil, fmt.Errorf("gemini content: %w", err)
	}
	return obj, nil
}

func (p *GeminiProvider) Close() {}
