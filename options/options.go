// Package options provides functional options for configuring topic models.
package options

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/botirk38/llmtopics/backends"
	"github.com/botirk38/llmtopics/dispatch"
	"github.com/botirk38/llmtopics/oneshot"
	"github.com/botirk38/llmtopics/providers"
	"github.com/botirk38/llmtopics/providers/anthropic"
	"github.com/botirk38/llmtopics/providers/gemini"
	"github.com/botirk38/llmtopics/providers/openai"
	"github.com/botirk38/llmtopics/reduce"
	"github.com/botirk38/llmtopics/retry"
	"github.com/botirk38/llmtopics/store"
	"github.com/botirk38/llmtopics/tokenizer"
	"github.com/botirk38/llmtopics/types"
)

// Strategy selects how candidate topics are reduced.
type Strategy string

const (
	// StrategyIterative merges topics pairwise until the target is reached.
	StrategyIterative Strategy = "iterative"
	// StrategyOneShot condenses all candidates with one request and repairs
	// failed classifications afterwards.
	StrategyOneShot Strategy = "oneshot"
)

const (
	DefaultTokenLimit                     = 4000
	DefaultCreationBatchSize              = 10
	DefaultIterativeClassificationBatch   = 50
	DefaultOneShotClassificationBatchSize = 100
)

// ParseStrategy maps a strategy name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyIterative, "":
		return StrategyIterative, nil
	case StrategyOneShot, "one-shot":
		return StrategyOneShot, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", name)
	}
}

// Option represents a configuration option for a topic model
type Option func(*Config) error

// Config holds the configuration for building a topic model
type Config struct {
	Completer types.Completer
	Backend   types.CacheBackend
	Tokenizer tokenizer.Codec

	Model    string
	Strategy Strategy

	// Topics is the requested topic count. The one-shot strategy accepts 0
	// to let the service decide.
	Topics int

	TokenLimit int
	// MaxDocuments caps documents per creation chunk. 0 derives the cap
	// from the corpus size.
	MaxDocuments int
	DocumentKind string

	CreationBatchSize int
	// ClassificationBatchSize 0 picks the strategy default.
	ClassificationBatchSize int

	Timeout      time.Duration
	WindowPause  time.Duration
	MaxTokens    int
	SystemPrompt string
	Logprobs     bool
	SyncRetry    retry.Policy
	AsyncRetry   retry.Policy

	MaxStalls int
	Weighted  bool

	CombineAttempts   int
	RepairPasses      int
	RepairTemperature float64

	HistoryPath string
	Store       *store.Store

	Logger  *slog.Logger
	Sleeper func(time.Duration)
	Rand    *rand.Rand
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	dispatchDefaults := dispatch.DefaultConfig()
	return &Config{
		Model:             dispatchDefaults.Model,
		Strategy:          StrategyIterative,
		TokenLimit:        DefaultTokenLimit,
		CreationBatchSize: DefaultCreationBatchSize,
		Timeout:           dispatchDefaults.Timeout,
		WindowPause:       dispatchDefaults.WindowPause,
		MaxTokens:         dispatchDefaults.MaxTokens,
		SystemPrompt:      dispatchDefaults.System,
		SyncRetry:         dispatchDefaults.SyncRetry,
		AsyncRetry:        dispatchDefaults.AsyncRetry,
		MaxStalls:         reduce.DefaultMaxStalls,
		CombineAttempts:   oneshot.DefaultAttempts,
		RepairPasses:      oneshot.DefaultRepairPasses,
		RepairTemperature: oneshot.DefaultRepairTemperature,
	}
}

// Apply applies all the given options to the config
func (c *Config) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Completer == nil {
		return errors.New("completion provider is required - use WithOpenAIProvider, WithAnthropicProvider, etc.")
	}
	switch c.Strategy {
	case StrategyIterative:
		if c.Topics < 1 {
			return errors.New("iterative strategy needs a positive topic count - use WithTopics")
		}
	case StrategyOneShot:
		if c.Topics < 0 {
			return errors.New("topic count cannot be negative")
		}
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	if c.TokenLimit < 1 {
		return errors.New("token limit must be positive")
	}
	if c.MaxDocuments < 0 {
		return errors.New("max documents cannot be negative")
	}
	if c.CreationBatchSize < 1 || c.ClassificationBatchSize < 0 {
		return errors.New("batch sizes must be positive")
	}
	return nil
}

// ClassificationBatch returns the classification window size in effect.
func (c *Config) ClassificationBatch() int {
	if c.ClassificationBatchSize > 0 {
		return c.ClassificationBatchSize
	}
	if c.Strategy == StrategyOneShot {
		return DefaultOneShotClassificationBatchSize
	}
	return DefaultIterativeClassificationBatch
}

// Dispatch returns the dispatcher settings derived from c.
func (c *Config) Dispatch() dispatch.Config {
	return dispatch.Config{
		Model:       c.Model,
		Timeout:     c.Timeout,
		BatchSize:   c.CreationBatchSize,
		WindowPause: c.WindowPause,
		MaxTokens:   c.MaxTokens,
		System:      c.SystemPrompt,
		SyncRetry:   c.SyncRetry,
		AsyncRetry:  c.AsyncRetry,
		Logger:      c.Logger,
		Sleeper:     c.Sleeper,
	}
}

// WithOpenAIProvider sets up the OpenAI completion provider
func WithOpenAIProvider(apiKey string, model ...string) Option {
	return func(cfg *Config) error {
		config := openai.OpenAIConfig{APIKey: apiKey}
		if len(model) > 0 {
			config.Model = model[0]
		}

		provider, err := openai.NewOpenAIProvider(config)
		if err != nil {
			return err
		}
		cfg.Completer = provider
		cfg.Model = provider.Model()
		return nil
	}
}

// WithAnthropicProvider sets up the Anthropic completion provider
func WithAnthropicProvider(apiKey string, model ...string) Option {
	return func(cfg *Config) error {
		config := anthropic.AnthropicConfig{APIKey: apiKey}
		if len(model) > 0 {
			config.Model = model[0]
		}

		provider, err := anthropic.NewAnthropicProvider(config)
		if err != nil {
			return err
		}
		cfg.Completer = provider
		cfg.Model = provider.Model()
		return nil
	}
}

// WithGeminiProvider sets up the Gemini completion provider
func WithGeminiProvider(apiKey string, model ...string) Option {
	return func(cfg *Config) error {
		config := gemini.GeminiConfig{APIKey: apiKey}
		if len(model) > 0 {
			config.Model = model[0]
		}

		provider, err := gemini.NewGeminiProvider(context.Background(), config)
		if err != nil {
			return err
		}
		cfg.Completer = provider
		cfg.Model = provider.Model()
		return nil
	}
}

// WithProvider builds a completer of the given type, for example an
// OpenAI-compatible endpoint at a custom base URL
func WithProvider(providerType types.ProviderType, config providers.Config) Option {
	return func(cfg *Config) error {
		provider, err := providers.NewProvider(context.Background(), providerType, config)
		if err != nil {
			return err
		}
		cfg.Completer = provider
		if named, ok := provider.(interface{ Model() string }); ok {
			cfg.Model = named.Model()
		}
		return nil
	}
}

// WithCustomProvider allows using a pre-configured completer
func WithCustomProvider(provider types.Completer) Option {
	return func(cfg *Config) error {
		if provider == nil {
			return errors.New("provider cannot be nil")
		}
		cfg.Completer = provider
		return nil
	}
}

// WithLRUCache caches deterministic completions in memory
func WithLRUCache(capacity int) Option {
	return func(cfg *Config) error {
		backend, err := backends.NewLRUBackend(types.BackendConfig{Capacity: capacity})
		if err != nil {
			return err
		}
		cfg.Backend = backend
		return nil
	}
}

// WithRedisCache caches deterministic completions in Redis
func WithRedisCache(addr string, db int, ttl time.Duration) Option {
	return func(cfg *Config) error {
		backend, err := backends.NewRedisBackend(types.BackendConfig{
			ConnectionString: addr,
			Database:         db,
			TTL:              ttl,
		})
		if err != nil {
			return err
		}
		cfg.Backend = backend
		return nil
	}
}

// WithCustomBackend allows using a pre-configured cache backend
func WithCustomBackend(backend types.CacheBackend) Option {
	return func(cfg *Config) error {
		if backend == nil {
			return errors.New("backend cannot be nil")
		}
		cfg.Backend = backend
		return nil
	}
}

// WithTokenizer sets the codec used for chunking
func WithTokenizer(codec tokenizer.Codec) Option {
	return func(cfg *Config) error {
		if codec == nil {
			return errors.New("tokenizer cannot be nil")
		}
		cfg.Tokenizer = codec
		return nil
	}
}

// WithModel sets the model identifier sent with every request
func WithModel(model string) Option {
	return func(cfg *Config) error {
		if model == "" {
			return errors.New("model cannot be empty")
		}
		cfg.Model = model
		return nil
	}
}

// WithTopics sets the requested number of topics
func WithTopics(n int) Option {
	return func(cfg *Config) error {
		if n < 0 {
			return errors.New("topic count cannot be negative")
		}
		cfg.Topics = n
		return nil
	}
}

// WithStrategy selects the reduction strategy
func WithStrategy(strategy Strategy) Option {
	return func(cfg *Config) error {
		parsed, err := ParseStrategy(string(strategy))
		if err != nil {
			return err
		}
		cfg.Strategy = parsed
		return nil
	}
}

// WithTokenLimit sets the per-chunk token budget
func WithTokenLimit(limit int) Option {
	return func(cfg *Config) error {
		if limit < 1 {
			return errors.New("token limit must be positive")
		}
		cfg.TokenLimit = limit
		return nil
	}
}

// WithMaxDocuments caps the documents per creation chunk
func WithMaxDocuments(n int) Option {
	return func(cfg *Config) error {
		if n < 1 {
			return errors.New("max documents must be positive")
		}
		cfg.MaxDocuments = n
		return nil
	}
}

// WithDocumentKind names the corpus in the creation prompt, e.g. "tweets"
func WithDocumentKind(kind string) Option {
	return func(cfg *Config) error {
		cfg.DocumentKind = kind
		return nil
	}
}

// WithBatchSizes sets the dispatch window sizes for topic creation and
// classification. A classification size of 0 keeps the strategy default.
func WithBatchSizes(creation, classification int) Option {
	return func(cfg *Config) error {
		if creation < 1 || classification < 0 {
			return errors.New("batch sizes must be positive")
		}
		cfg.CreationBatchSize = creation
		cfg.ClassificationBatchSize = classification
		return nil
	}
}

// WithWindowPause sets the pause between dispatch windows
func WithWindowPause(d time.Duration) Option {
	return func(cfg *Config) error {
		if d < 0 {
			return errors.New("window pause cannot be negative")
		}
		cfg.WindowPause = d
		return nil
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(cfg *Config) error {
		cfg.Timeout = d
		return nil
	}
}

// WithRetryPolicies sets the synchronous and concurrent retry policies
func WithRetryPolicies(sync, async retry.Policy) Option {
	return func(cfg *Config) error {
		cfg.SyncRetry = sync
		cfg.AsyncRetry = async
		return nil
	}
}

// WithMaxStalls caps consecutive rejected merges (0 = unbounded)
func WithMaxStalls(n int) Option {
	return func(cfg *Config) error {
		if n < 0 {
			return errors.New("max stalls cannot be negative")
		}
		cfg.MaxStalls = n
		return nil
	}
}

// WithWeightedElimination lists absorbed-topic weights in merge prompts
func WithWeightedElimination() Option {
	return func(cfg *Config) error {
		cfg.Weighted = true
		return nil
	}
}

// WithCombineAttempts sets the one-shot combination attempt budget
func WithCombineAttempts(n int) Option {
	return func(cfg *Config) error {
		if n < 1 {
			return errors.New("combine attempts must be positive")
		}
		cfg.CombineAttempts = n
		return nil
	}
}

// WithRepair sets the one-shot repair passes and sampling temperature
func WithRepair(passes int, temperature float64) Option {
	return func(cfg *Config) error {
		if passes < 1 {
			return errors.New("repair passes must be positive")
		}
		cfg.RepairPasses = passes
		cfg.RepairTemperature = temperature
		return nil
	}
}

// WithLogprobs requests token log-probabilities on classification calls.
// Topic creation and reduction always use the plain response mode.
func WithLogprobs() Option {
	return func(cfg *Config) error {
		cfg.Logprobs = true
		return nil
	}
}

// WithHistoryPath writes the reduction history to path after each fit
func WithHistoryPath(path string) Option {
	return func(cfg *Config) error {
		cfg.HistoryPath = path
		return nil
	}
}

// WithStore persists every finished fit
func WithStore(s *store.Store) Option {
	return func(cfg *Config) error {
		if s == nil {
			return errors.New("store cannot be nil")
		}
		cfg.Store = s
		return nil
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) error {
		cfg.Logger = logger
		return nil
	}
}

// WithSleeper replaces real waits (window pauses and retry delays)
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(cfg *Config) error {
		cfg.Sleeper = sleeper
		return nil
	}
}

// WithRand sets the random source used for reshuffling topics
func WithRand(rng *rand.Rand) Option {
	return func(cfg *Config) error {
		cfg.Rand = rng
		return nil
	}
}
