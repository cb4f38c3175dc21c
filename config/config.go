// Package config loads llmtopics CLI settings from a YAML or TOML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/botirk38/llmtopics/dispatch"
	"github.com/botirk38/llmtopics/logging"
	"github.com/botirk38/llmtopics/oneshot"
	"github.com/botirk38/llmtopics/options"
	"github.com/botirk38/llmtopics/providers"
	"github.com/botirk38/llmtopics/reduce"
	"github.com/botirk38/llmtopics/types"
)

// DefaultHistoryPath is where the merge history is written unless
// configured otherwise.
const DefaultHistoryPath = "topic_history.json"

// Cache selects the response cache.
type Cache struct {
	// Type is "", "lru" or "redis". Empty disables caching.
	Type       string `yaml:"type" toml:"type"`
	Capacity   int    `yaml:"capacity" toml:"capacity"`
	RedisURL   string `yaml:"redis_url" toml:"redis_url"`
	RedisDB    int    `yaml:"redis_db" toml:"redis_db"`
	TTLSeconds int    `yaml:"ttl_seconds" toml:"ttl_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Config is the root CLI configuration.
type Config struct {
	Provider string `yaml:"provider" toml:"provider"`
	Model    string `yaml:"model" toml:"model"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
	BaseURL  string `yaml:"base_url" toml:"base_url"`

	Strategy     string `yaml:"strategy" toml:"strategy"`
	Topics       int    `yaml:"topics" toml:"topics"`
	DocumentKind string `yaml:"document_kind" toml:"document_kind"`

	TokenLimit              int `yaml:"token_limit" toml:"token_limit"`
	MaxDocuments            int `yaml:"max_documents" toml:"max_documents"`
	CreationBatchSize       int `yaml:"creation_batch_size" toml:"creation_batch_size"`
	ClassificationBatchSize int `yaml:"classification_batch_size" toml:"classification_batch_size"`

	TimeoutSeconds     int     `yaml:"timeout_seconds" toml:"timeout_seconds"`
	WindowPauseSeconds float64 `yaml:"window_pause_seconds" toml:"window_pause_seconds"`

	MaxStalls         int     `yaml:"max_stalls" toml:"max_stalls"`
	Weighted          bool    `yaml:"weighted" toml:"weighted"`
	CombineAttempts   int     `yaml:"combine_attempts" toml:"combine_attempts"`
	RepairPasses      int     `yaml:"repair_passes" toml:"repair_passes"`
	RepairTemperature float64 `yaml:"repair_temperature" toml:"repair_temperature"`

	HistoryPath string `yaml:"history_path" toml:"history_path"`
	DBPath      string `yaml:"db_path" toml:"db_path"`

	Cache   Cache   `yaml:"cache" toml:"cache"`
	Logging Logging `yaml:"logging" toml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Provider:           string(types.ProviderOpenAI),
		Strategy:           string(options.StrategyIterative),
		TokenLimit:         options.DefaultTokenLimit,
		CreationBatchSize:  options.DefaultCreationBatchSize,
		TimeoutSeconds:     int(dispatch.DefaultTimeout / time.Second),
		WindowPauseSeconds: dispatch.DefaultWindowPause.Seconds(),
		MaxStalls:          reduce.DefaultMaxStalls,
		CombineAttempts:    oneshot.DefaultAttempts,
		RepairPasses:       oneshot.DefaultRepairPasses,
		RepairTemperature:  oneshot.DefaultRepairTemperature,
		HistoryPath:        DefaultHistoryPath,
		Cache:              Cache{Capacity: 10000},
		Logging:            Logging{Level: "info", Format: "auto"},
	}
}

// Load reads path on top of the defaults and applies environment overrides.
// An empty path skips the file. The format follows the extension: .yaml,
// .yml or .toml.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func (c *Config) applyEnv() {
	envOverride(&c.Provider, "LLMTOPICS_PROVIDER")
	envOverride(&c.Model, "LLMTOPICS_MODEL")
	if url := strings.TrimSpace(os.Getenv("REDIS_URL")); url != "" {
		c.Cache.RedisURL = url
		if c.Cache.Type == "" {
			c.Cache.Type = string(types.BackendRedis)
		}
	}
	if c.APIKey == "" {
		switch types.ProviderType(c.Provider) {
		case types.ProviderAnthropic:
			envOverride(&c.APIKey, "ANTHROPIC_API_KEY")
		case types.ProviderGemini:
			envOverride(&c.APIKey, "GEMINI_API_KEY")
		default:
			envOverride(&c.APIKey, "OPENAI_API_KEY")
		}
	}
}

func envOverride(target *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}

// Validate checks the configuration for values no fit could run with.
func (c *Config) Validate() error {
	var errs []error
	switch types.ProviderType(c.Provider) {
	case types.ProviderOpenAI, types.ProviderAnthropic, types.ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("provider: %w: %q", providers.ErrUnsupportedProvider, c.Provider))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("api_key is required (or set the provider's API key variable)"))
	}
	strategy, err := options.ParseStrategy(c.Strategy)
	if err != nil {
		errs = append(errs, err)
	}
	if c.Topics < 0 || (strategy == options.StrategyIterative && c.Topics == 0) {
		errs = append(errs, fmt.Errorf("topics must be positive for the %s strategy", strategy))
	}
	if c.TokenLimit < 1 {
		errs = append(errs, errors.New("token_limit must be positive"))
	}
	if c.MaxDocuments < 0 || c.CreationBatchSize < 1 || c.ClassificationBatchSize < 0 {
		errs = append(errs, errors.New("max_documents and batch sizes must not be negative, creation_batch_size must be positive"))
	}
	if c.TimeoutSeconds < 0 || c.WindowPauseSeconds < 0 || c.MaxStalls < 0 {
		errs = append(errs, errors.New("timeout_seconds, window_pause_seconds and max_stalls must not be negative"))
	}
	if c.CombineAttempts < 1 || c.RepairPasses < 1 {
		errs = append(errs, errors.New("combine_attempts and repair_passes must be positive"))
	}
	if c.RepairTemperature < 0 || c.RepairTemperature > 2 {
		errs = append(errs, fmt.Errorf("repair_temperature %v outside [0, 2]", c.RepairTemperature))
	}
	switch types.BackendType(c.Cache.Type) {
	case "", types.BackendLRU:
	case types.BackendRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache.redis_url is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.type: unknown backend %q", c.Cache.Type))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Options converts the configuration into model options. Logger and store
// are left to the caller, which owns their lifetimes.
func (c *Config) Options() []options.Option {
	opts := []options.Option{
		options.WithProvider(types.ProviderType(c.Provider), providers.Config{
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.Model,
		}),
		options.WithStrategy(options.Strategy(c.Strategy)),
		options.WithTopics(c.Topics),
		options.WithDocumentKind(c.DocumentKind),
		options.WithTokenLimit(c.TokenLimit),
		options.WithBatchSizes(c.CreationBatchSize, c.ClassificationBatchSize),
		options.WithTimeout(time.Duration(c.TimeoutSeconds) * time.Second),
		options.WithWindowPause(time.Duration(c.WindowPauseSeconds * float64(time.Second))),
		options.WithMaxStalls(c.MaxStalls),
		options.WithCombineAttempts(c.CombineAttempts),
		options.WithRepair(c.RepairPasses, c.RepairTemperature),
		options.WithHistoryPath(c.HistoryPath),
	}
	if c.MaxDocuments > 0 {
		opts = append(opts, options.WithMaxDocuments(c.MaxDocuments))
	}
	if c.Weighted {
		opts = append(opts, options.WithWeightedElimination())
	}

	ttl := time.Duration(c.Cache.TTLSeconds) * time.Second
	switch types.BackendType(c.Cache.Type) {
	case types.BackendLRU:
		opts = append(opts, options.WithLRUCache(c.Cache.Capacity))
	case types.BackendRedis:
		opts = append(opts, options.WithRedisCache(c.Cache.RedisURL, c.Cache.RedisDB, ttl))
	}
	return opts
}
