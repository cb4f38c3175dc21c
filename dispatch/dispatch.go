// Package dispatch issues completion requests against a Completer, either
// one at a time with synchronous retries or many at once in bounded
// concurrent windows.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/botirk38/llmtopics/logging"
	"github.com/botirk38/llmtopics/retry"
	"github.com/botirk38/llmtopics/types"
)

const (
	DefaultModel        = "gpt-4o"
	DefaultTimeout      = 30 * time.Second
	DefaultBatchSize    = 10
	DefaultWindowPause  = 5 * time.Second
	DefaultMaxTokens    = 2000
	DefaultSystemPrompt = "You are a helpful assistant designed to output JSON."
)

// Config controls request construction, windowing and retries.
type Config struct {
	Model       string
	Timeout     time.Duration
	BatchSize   int
	WindowPause time.Duration
	Temperature float64
	MaxTokens   int
	System      string

	// TopLogprobs is the number of alternatives per token requested by
	// CompleteManyLogprobs. 0 leaves the provider default.
	TopLogprobs int

	// SyncRetry wraps Complete and CompleteAt.
	SyncRetry retry.Policy

	// AsyncRetry wraps each task of CompleteMany.
	AsyncRetry retry.Policy

	Logger *slog.Logger

	// Sleeper replaces real waits for window pauses and, unless the retry
	// policies set their own, for retry delays.
	Sleeper func(time.Duration)
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Model:       DefaultModel,
		Timeout:     DefaultTimeout,
		BatchSize:   DefaultBatchSize,
		WindowPause: DefaultWindowPause,
		MaxTokens:   DefaultMaxTokens,
		System:      DefaultSystemPrompt,
		SyncRetry:   retry.Policy{BaseDelay: 5 * time.Second, MaxAttempts: 2, Multiplier: 1},
		AsyncRetry:  retry.Policy{BaseDelay: 5 * time.Second, MaxAttempts: 30, Multiplier: 1},
	}
}

// Stats counts dispatcher activity since construction.
type Stats struct {
	Windows  int
	Pauses   int
	Requests int
	Failures int
}

// Dispatcher fans prompts out to a Completer. It is safe for concurrent use.
type Dispatcher struct {
	completer types.Completer
	config    Config
	logger    *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Dispatcher. Zero-valued fields of config are not filled in;
// start from DefaultConfig to get the standard settings.
func New(completer types.Completer, config Config) (*Dispatcher, error) {
	if completer == nil {
		return nil, errors.New("dispatch: completer cannot be nil")
	}
	if config.BatchSize < 1 {
		return nil, errors.New("dispatch: batch size must be positive")
	}

	logger := logging.OrDiscard(config.Logger).With(slog.String("component", "dispatch"))
	for _, p := range []*retry.Policy{&config.SyncRetry, &config.AsyncRetry} {
		if p.Logger == nil {
			p.Logger = logger
		}
		if p.Sleeper == nil {
			p.Sleeper = config.Sleeper
		}
	}

	return &Dispatcher{completer: completer, config: config, logger: logger}, nil
}

// Config returns the dispatcher settings.
func (d *Dispatcher) Config() Config {
	return d.config
}

// Stats returns a snapshot of the activity counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) record(fn func(*Stats)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.stats)
}

func (d *Dispatcher) request(prompt string, temperature float64) types.Request {
	return types.Request{
		Prompt:      prompt,
		System:      d.config.System,
		Model:       d.config.Model,
		Temperature: temperature,
		MaxTokens:   d.config.MaxTokens,
		Timeout:     d.config.Timeout,
	}
}

// attempt performs one timed call. A nil object without an error counts as
// a failure so callers can rely on nil meaning "no response".
func (d *Dispatcher) attempt(req types.Request) func(context.Context) (types.Object, error) {
	return func(ctx context.Context) (types.Object, error) {
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		obj, err := d.completer.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			return nil, types.ErrEmptyResponse
		}
		return obj, nil
	}
}

// Complete issues prompt at the configured temperature with synchronous
// retries. It returns nil when every attempt failed.
func (d *Dispatcher) Complete(ctx context.Context, prompt string) types.Object {
	return d.CompleteAt(ctx, prompt, d.config.Temperature)
}

// CompleteAt is Complete with an explicit sampling temperature.
func (d *Dispatcher) CompleteAt(ctx context.Context, prompt string, temperature float64) types.Object {
	obj := retry.Do(ctx, d.config.SyncRetry, types.Object(nil), d.attempt(d.request(prompt, temperature)))
	d.record(func(s *Stats) {
		s.Requests++
		if obj == nil {
			s.Failures++
		}
	})
	return obj
}

// CompleteMany issues every prompt and returns one slot per prompt, in
// input order. Prompts run in windows of batchSize (the configured size
// when batchSize < 1): all tasks of a window start before any is awaited,
// the next window starts only after the whole window resolved and the
// window pause elapsed. A prompt whose retries are exhausted yields nil in
// its slot without affecting any other slot.
func (d *Dispatcher) CompleteMany(ctx context.Context, prompts []string, batchSize int) []types.Object {
	return d.completeMany(ctx, prompts, batchSize, false)
}

// CompleteManyLogprobs is CompleteMany in the extended response mode: every
// request asks for token log-probabilities and each slot holds the whole
// response envelope instead of the decoded content. Windowing, retries and
// slot pairing are unchanged.
func (d *Dispatcher) CompleteManyLogprobs(ctx context.Context, prompts []string, batchSize int) []types.Object {
	return d.completeMany(ctx, prompts, batchSize, true)
}

func (d *Dispatcher) completeMany(ctx context.Context, prompts []string, batchSize int, logprobs bool) []types.Object {
	if batchSize < 1 {
		batchSize = d.config.BatchSize
	}
	results := make([]types.Object, len(prompts))

	for start, window := 0, 0; start < len(prompts); start, window = start+batchSize, window+1 {
		if start > 0 {
			d.record(func(s *Stats) { s.Pauses++ })
			if err := retry.Wait(ctx, d.config.Sleeper, d.config.WindowPause); err != nil {
				d.logger.Warn("dispatch cancelled",
					slog.Int("window", window),
					slog.Int("remaining", len(prompts)-start),
					slog.String("error", err.Error()),
				)
				d.record(func(s *Stats) {
					s.Requests += len(prompts) - start
					s.Failures += len(prompts) - start
				})
				break
			}
		}

		end := min(start+batchSize, len(prompts))
		pending := make([]<-chan types.Object, end-start)
		for i := range pending {
			req := d.request(prompts[start+i], d.config.Temperature)
			if logprobs {
				req.Logprobs = true
				req.TopLogprobs = d.config.TopLogprobs
			}
			pending[i] = retry.DoAsync(ctx, d.config.AsyncRetry, types.Object(nil), d.attempt(req))
		}

		failures := 0
		for i, ch := range pending {
			obj := <-ch
			results[start+i] = obj
			if obj == nil {
				failures++
			}
		}

		d.record(func(s *Stats) {
			s.Windows++
			s.Requests += end - start
			s.Failures += failures
		})
		d.logger.Info("dispatch window complete",
			slog.Int("window", window),
			slog.Int("size", end-start),
			slog.Int("failures", failures),
		)
	}

	return results
}

// CompleteManyAsync runs CompleteMany on its own goroutine.
func (d *Dispatcher) CompleteManyAsync(ctx context.Context, prompts []string, batchSize int) <-chan []types.Object {
	resultCh := make(chan []types.Object, 1)
	go func() {
		defer close(resultCh)
		resultCh <- d.CompleteMany(ctx, prompts, batchSize)
	}()
	return resultCh
}
