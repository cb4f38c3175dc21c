// Package llmtopics distills a document collection into a small set of named
// topics with a remote language model and assigns every document to one of
// them.
package llmtopics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/botirk38/llmtopics/chunker"
	"github.com/botirk38/llmtopics/classify"
	"github.com/botirk38/llmtopics/dispatch"
	"github.com/botirk38/llmtopics/llmjson"
	"github.com/botirk38/llmtopics/logging"
	"github.com/botirk38/llmtopics/oneshot"
	"github.com/botirk38/llmtopics/options"
	"github.com/botirk38/llmtopics/prompts"
	"github.com/botirk38/llmtopics/providers"
	"github.com/botirk38/llmtopics/reduce"
	"github.com/botirk38/llmtopics/store"
	"github.com/botirk38/llmtopics/tokenizer"
	"github.com/botirk38/llmtopics/topics"
	"github.com/botirk38/llmtopics/types"
)

// Model fits topics to documents. A Model may be reused for several fits but
// not concurrently.
type Model struct {
	config     *options.Config
	completer  types.Completer
	dispatcher *dispatch.Dispatcher
	codec      tokenizer.Codec
	logger     *slog.Logger
}

// Result is the outcome of a fit. Assignments and Names hold one entry per
// input document, in input order. A negative assignment is one of the
// classify sentinels and its name is classify.Placeholder.
type Result struct {
	Assignments []int    `json:"topic_assignments"`
	Names       []string `json:"topic_names"`
	TopicCount  int      `json:"topic_count"`
	Topics      []string `json:"topics"`

	// History is the merge lineage of an iterative fit, nil for one-shot.
	History reduce.History `json:"history,omitempty"`

	// Repair summarizes the one-shot repair passes, nil for iterative.
	Repair *oneshot.Report `json:"repair,omitempty"`

	// Stalls counts rejected merge replies.
	Stalls int `json:"stalls"`

	// Logprobs holds the raw classification envelopes, one per document,
	// when the fit ran with token log-probabilities. Failed calls are nil.
	Logprobs []types.Object `json:"logprobs,omitempty"`

	// RunID is set when the run was persisted.
	RunID string `json:"run_id,omitempty"`
}

// New creates a Model with functional options.
func New(opts ...options.Option) (*Model, error) {
	cfg := options.NewConfig()

	if err := cfg.Apply(opts...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return NewModel(cfg)
}

// NewModel creates a Model from a validated configuration.
func NewModel(cfg *options.Config) (*Model, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Completer == nil {
		return nil, errors.New("completer cannot be nil")
	}

	var completer types.Completer = cfg.Completer
	if cfg.Backend != nil {
		cached, err := providers.NewCachedCompleter(cfg.Completer, cfg.Backend)
		if err != nil {
			return nil, err
		}
		completer = cached
	}

	codec := cfg.Tokenizer
	if codec == nil {
		tk, err := tokenizer.ForModel(cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: %w", err)
		}
		codec = tk
	}

	dispatcher, err := dispatch.New(completer, cfg.Dispatch())
	if err != nil {
		return nil, err
	}

	return &Model{
		config:     cfg,
		completer:  completer,
		dispatcher: dispatcher,
		codec:      codec,
		logger:     logging.OrDiscard(cfg.Logger).With(slog.String("component", "model")),
	}, nil
}

// Stats returns the dispatcher counters accumulated over every fit.
func (m *Model) Stats() dispatch.Stats {
	return m.dispatcher.Stats()
}

// FitTransform creates candidate topics from chunks of documents, reduces
// them with the configured strategy and classifies every document.
//
// Failed remote calls never fail the fit: they surface as placeholder names.
// The errors returned are ErrNoDocuments, ErrNoTopics, reduce.ErrStalled,
// oneshot.ErrCombinationFailed, context errors and history or store I/O
// errors.
func (m *Model) FitTransform(ctx context.Context, documents []string) (*Result, error) {
	if len(documents) == 0 {
		return nil, ErrNoDocuments
	}
	start := time.Now()

	candidates, err := m.createTopics(ctx, documents)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	final, err := m.reduceTopics(ctx, candidates, result)
	if err != nil {
		return nil, err
	}

	classifications := prompts.Classifications(documents, final.Topics())
	responses := m.classify(ctx, classifications, result)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	assignments := classify.AssignAll(responses, final.Len())

	if m.config.Strategy == options.StrategyOneShot {
		repairer, err := oneshot.NewRepairer(m.dispatcher, oneshot.RepairConfig{
			Passes:      m.config.RepairPasses,
			Temperature: m.config.RepairTemperature,
			Logger:      m.config.Logger,
		})
		if err != nil {
			return nil, err
		}
		repaired, report := repairer.Repair(ctx, classifications, assignments, final.Len())
		assignments = repaired
		result.Repair = &report
	}

	result.Assignments = assignments
	result.Names = classify.Names(assignments, final.Topics())
	result.Topics = final.Topics()
	result.TopicCount = final.Len()

	if m.config.Store != nil {
		run := &store.Run{
			Strategy:    string(m.config.Strategy),
			Model:       m.config.Model,
			Topics:      result.Topics,
			Assignments: result.Assignments,
			Names:       result.Names,
			History:     result.History,
		}
		if err := m.config.Store.SaveRun(ctx, run); err != nil {
			return nil, err
		}
		result.RunID = run.ID
	}

	m.logger.Info("fit complete",
		slog.Int("documents", len(documents)),
		slog.Int("topic_count", result.TopicCount),
		slog.Int("unresolved", len(classify.Unresolved(assignments))),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (m *Model) createTopics(ctx context.Context, documents []string) (topics.Set, error) {
	maxDocs := m.config.MaxDocuments
	if maxDocs == 0 {
		maxDocs = chunker.MaxDocumentsFor(len(documents))
	}
	ch, err := chunker.NewDocumentChunker(chunker.ChunkConfig{
		TokenLimit:   m.config.TokenLimit,
		MaxDocuments: maxDocs,
	}, m.codec)
	if err != nil {
		return topics.Set{}, err
	}
	chunks, err := ch.ChunkDocuments(documents)
	if err != nil {
		return topics.Set{}, err
	}

	batches := make([][]string, len(chunks))
	for i, c := range chunks {
		batches[i] = c.Documents
	}
	responses := m.dispatcher.CompleteMany(ctx, prompts.Creations(batches, m.config.DocumentKind), m.config.CreationBatchSize)
	if err := ctx.Err(); err != nil {
		return topics.Set{}, err
	}

	set := topics.FromResponses(responses)
	m.logger.Info("candidate topics created",
		slog.Int("chunks", len(chunks)),
		slog.Int("topics", set.Len()),
	)
	if set.Len() == 0 {
		return topics.Set{}, ErrNoTopics
	}
	return set, nil
}

func (m *Model) reduceTopics(ctx context.Context, candidates topics.Set, result *Result) (topics.Set, error) {
	if m.config.Strategy == options.StrategyOneShot {
		combiner, err := oneshot.NewCombiner(m.dispatcher, oneshot.CombineConfig{
			Attempts: m.config.CombineAttempts,
			Logger:   m.config.Logger,
			Rand:     m.config.Rand,
		})
		if err != nil {
			return topics.Set{}, err
		}
		return combiner.Combine(ctx, candidates, m.config.Topics)
	}

	reducer, err := reduce.NewReducer(m.dispatcher, reduce.Config{
		Target:    m.config.Topics,
		MaxStalls: m.config.MaxStalls,
		Weighted:  m.config.Weighted,
		Logger:    m.config.Logger,
		Rand:      m.config.Rand,
	})
	if err != nil {
		return topics.Set{}, err
	}
	reduced, err := reducer.Reduce(ctx, candidates)
	result.History = reduced.History
	result.Stalls = reduced.Stalls

	// A failed reduction still leaves its partial lineage on disk.
	if m.config.HistoryPath != "" && reduced.History != nil {
		if werr := reduced.History.WriteFile(m.config.HistoryPath); werr != nil {
			return topics.Set{}, errors.Join(err, werr)
		}
	}
	if err != nil {
		return topics.Set{}, err
	}
	return reduced.Topics, nil
}

// classify runs the classification prompts. In the log-probability mode the
// envelopes are kept on result and their message content is what gets
// assigned.
func (m *Model) classify(ctx context.Context, classifications []string, result *Result) []types.Object {
	batch := m.config.ClassificationBatch()
	if !m.config.Logprobs {
		return m.dispatcher.CompleteMany(ctx, classifications, batch)
	}

	envelopes := m.dispatcher.CompleteManyLogprobs(ctx, classifications, batch)
	result.Logprobs = envelopes
	responses := make([]types.Object, len(envelopes))
	for i, envelope := range envelopes {
		if envelope == nil {
			continue
		}
		content, err := llmjson.EnvelopeContent(envelope)
		if err != nil {
			m.logger.Warn("classification envelope unreadable",
				slog.Int("document", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		responses[i] = content
	}
	return responses
}

// FitResult represents the result of an async fit
type FitResult struct {
	Result *Result
	Error  error
}

// FitTransformAsync runs FitTransform on its own goroutine.
// Returns a channel that will receive the result.
func (m *Model) FitTransformAsync(ctx context.Context, documents []string) <-chan FitResult {
	resultCh := make(chan FitResult, 1)

	go func() {
		defer close(resultCh)
		result, err := m.FitTransform(ctx, documents)
		resultCh <- FitResult{Result: result, Error: err}
	}()

	return resultCh
}

// Close releases the completer and any cache backend it owns.
func (m *Model) Close() {
	m.completer.Close()
}
