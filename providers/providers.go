// Package providers builds completion backends and wraps them with an
// optional response cache.
package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/botirk38/llmtopics/providers/anthropic"
	"github.com/botirk38/llmtopics/providers/gemini"
	"github.com/botirk38/llmtopics/providers/openai"
	"github.com/botirk38/llmtopics/types"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported provider type")

	ErrEmptyResponse = types.ErrEmptyResponse
	ErrUnsupported   = types.ErrUnsupported
)

// Config carries the settings shared by every provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config openai.OpenAIConfig) (types.Completer, error) {
	return openai.NewOpenAIProvider(config)
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(config anthropic.AnthropicConfig) (types.Completer, error) {
	return anthropic.NewAnthropicProvider(config)
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, config gemini.GeminiConfig) (types.Completer, error) {
	return gemini.NewGeminiProvider(ctx, config)
}

// NewProvider creates a completer of the given type.
func NewProvider(ctx context.Context, providerType types.ProviderType, config Config) (types.Completer, error) {
	switch providerType {
	case types.ProviderOpenAI, "":
		return NewOpenAIProvider(openai.OpenAIConfig{APIKey: config.APIKey, BaseURL: config.BaseURL, Model: config.Model})
	case types.ProviderAnthropic:
		return NewAnthropicProvider(anthropic.AnthropicConfig{APIKey: config.APIKey, BaseURL: config.BaseURL, Model: config.Model})
	case types.ProviderGemini:
		return NewGeminiProvider(ctx, gemini.GeminiConfig{APIKey: config.APIKey, BaseURL: config.BaseURL, Model: config.Model})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, providerType)
	}
}

// CachedCompleter serves repeated deterministic requests from a cache
// backend. Only temperature-0 requests without logprobs are cached.
type CachedCompleter struct {
	inner   types.Completer
	backend types.CacheBackend
}

// NewCachedCompleter wraps inner with backend.
func NewCachedCompleter(inner types.Completer, backend types.CacheBackend) (*CachedCompleter, error) {
	if inner == nil {
		return nil, errors.New("completer cannot be nil")
	}
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	return &CachedCompleter{inner: inner, backend: backend}, nil
}

// CacheKey returns the cache key for req.
func CacheKey(req types.Request) string {
	h := sha256.New()
	for _, part := range []string{req.Model, req.System, req.Prompt, strconv.Itoa(req.MaxTokens)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func cacheable(req types.Request) bool {
	return req.Temperature == 0 && !req.Logprobs
}

// Complete returns a cached object when one exists, otherwise calls the
// wrapped completer and stores a successful result. Cache errors never
// fail the request.
func (c *CachedCompleter) Complete(ctx context.Context, req types.Request) (types.Object, error) {
	if !cacheable(req) {
		return c.inner.Complete(ctx, req)
	}

	key := CacheKey(req)
	if obj, found, err := c.backend.Get(ctx, key); err == nil && found {
		return obj, nil
	}

	obj, err := c.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	_ = c.backend.Set(ctx, key, obj)
	return obj, nil
}

// Close closes the wrapped completer and the backend.
func (c *CachedCompleter) Close() {
	c.inner.Close()
	_ = c.backend.Close()
}
