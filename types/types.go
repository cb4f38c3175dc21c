package types

import (
	"context"
	"time"
)

// Object is a decoded JSON object produced by a completion endpoint.
// A nil Object marks a request that failed entirely.
type Object map[string]any

// Request describes a single completion call.
type Request struct {
	// Prompt is the user message.
	Prompt string

	// System is the system message. Empty means provider default.
	System string

	// Model identifies the remote model.
	Model string

	// Temperature is the sampling temperature.
	Temperature float64

	// MaxTokens caps the completion length (0 = provider default).
	MaxTokens int

	// Timeout bounds the wall-clock duration of this call (0 = none).
	Timeout time.Duration

	// Logprobs requests token log-probabilities. Providers that support it
	// return the whole response envelope instead of the decoded content.
	Logprobs bool

	// TopLogprobs is the number of alternatives per token in Logprobs mode.
	TopLogprobs int
}

// Completer defines the interface all completion backends must satisfy.
type Completer interface {
	// Complete sends req and returns the decoded JSON object from the reply.
	Complete(ctx context.Context, req Request) (Object, error)
	// Close frees any resources held by the completer.
	Close()
}

// CacheBackend defines the interface for response cache storage.
// This allows for pluggable storage systems including in-memory and Redis.
type CacheBackend interface {
	// Set stores a response under key
	Set(ctx context.Context, key string, obj Object) error

	// Get retrieves a response by key
	Get(ctx context.Context, key string) (Object, bool, error)

	// Delete removes a response by key
	Delete(ctx context.Context, key string) error

	// Contains checks if a key exists without retrieving the value
	Contains(ctx context.Context, key string) (bool, error)

	// Flush clears all entries from the cache
	Flush(ctx context.Context) error

	// Len returns the number of entries in the cache
	Len(ctx context.Context) (int, error)

	// Close closes the backend and releases resources
	Close() error
}

// BackendConfig provides configuration options for backends
type BackendConfig struct {
	// For in-memory caches
	Capacity int
	TTL      time.Duration

	// For Redis
	ConnectionString string
	Username         string
	Password         string
	Database         int

	// Additional options
	Options map[string]any
}

// BackendType represents the type of cache backend
type BackendType string

const (
	BackendLRU   BackendType = "lru"
	BackendRedis BackendType = "redis"
)

// ProviderType represents the type of completion provider
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGemini    ProviderType = "gemini"
)
