// Package reduce merges a topic set pairwise until it reaches a target
// size, recording the lineage of every merge.
package reduce

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/botirk38/llmtopics/llmjson"
	"github.com/botirk38/llmtopics/logging"
	"github.com/botirk38/llmtopics/prompts"
	"github.com/botirk38/llmtopics/topics"
	"github.com/botirk38/llmtopics/types"
)

// DefaultMaxStalls caps consecutive rejected merge replies.
const DefaultMaxStalls = 100

// Caller issues one prompt and returns the decoded reply, or nil when the
// request failed.
type Caller interface {
	Complete(ctx context.Context, prompt string) types.Object
}

// Config controls a reduction run.
type Config struct {
	// Target is the topic count at which the loop stops.
	Target int

	// MaxStalls is the number of consecutive rejected replies tolerated
	// before giving up with ErrStalled. 0 disables the cap.
	MaxStalls int

	// Weighted lists, per topic, how many origin topics it absorbed.
	Weighted bool

	Logger *slog.Logger

	// Rand drives the reshuffle after a rejected reply.
	Rand *rand.Rand
}

// Result is the outcome of Reduce.
type Result struct {
	Topics  topics.Set
	History History
	// Stalls counts every rejected reply over the whole run.
	Stalls int
}

// Reducer runs the pairwise merge loop. A Reducer is not safe for
// concurrent use.
type Reducer struct {
	caller Caller
	config Config
	logger *slog.Logger
	rng    *rand.Rand
}

// NewReducer creates a Reducer.
func NewReducer(caller Caller, config Config) (*Reducer, error) {
	if caller == nil {
		return nil, fmt.Errorf("reduce: caller cannot be nil")
	}
	if config.Target < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTarget, config.Target)
	}
	rng := config.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Reducer{
		caller: caller,
		config: config,
		logger: logging.OrDiscard(config.Logger).With(slog.String("component", "reduce")),
		rng:    rng,
	}, nil
}

// mergeInstruction is a validated-shape merge reply.
type mergeInstruction struct {
	first, second int
	name          string
}

func parseMerge(resp types.Object) (mergeInstruction, error) {
	if resp == nil {
		return mergeInstruction{}, fmt.Errorf("%w: no response", ErrMalformedMerge)
	}
	pair, ok := resp["topic_pair"].([]any)
	if !ok {
		return mergeInstruction{}, fmt.Errorf("%w: topic_pair missing or not a list", ErrMalformedMerge)
	}
	if len(pair) != 2 {
		return mergeInstruction{}, fmt.Errorf("%w: topic_pair has %d indices", ErrMalformedMerge, len(pair))
	}
	first, ok1 := llmjson.Int(pair[0])
	second, ok2 := llmjson.Int(pair[1])
	if !ok1 || !ok2 {
		return mergeInstruction{}, fmt.Errorf("%w: topic_pair indices are not integers", ErrMalformedMerge)
	}
	name, ok := resp["new_topic"].(string)
	if !ok {
		return mergeInstruction{}, fmt.Errorf("%w: new_topic missing or not a string", ErrMalformedMerge)
	}
	return mergeInstruction{first: first, second: second, name: name}, nil
}

func (r *Reducer) prompt(set topics.Set, weights map[string]int) string {
	if !r.config.Weighted {
		return prompts.Elimination(set.Topics())
	}
	list := set.Topics()
	w := make([]int, len(list))
	for i, t := range list {
		w[i] = weights[t]
	}
	return prompts.WeightedElimination(list, w)
}

// Reduce merges pairs from set until at most Target topics remain. A reply
// that cannot be applied leaves the set unchanged apart from a reshuffle
// and is not recorded in the history.
//
// On ErrStalled or context cancellation the Result carries the last good
// set and the history so far.
func (r *Reducer) Reduce(ctx context.Context, set topics.Set) (Result, error) {
	history := History{originEntry(set)}
	current := set

	var weights map[string]int
	if r.config.Weighted {
		weights = make(map[string]int, set.Len())
		for _, t := range set.Topics() {
			weights[t] = 1
		}
	}

	stalls, consecutive := 0, 0
	for current.Len() > r.config.Target {
		if err := ctx.Err(); err != nil {
			return Result{Topics: current, History: history, Stalls: stalls}, fmt.Errorf("reduce: %w", err)
		}

		resp := r.caller.Complete(ctx, r.prompt(current, weights))
		instruction, err := parseMerge(resp)
		var next topics.Set
		if err == nil {
			next, err = current.Merge(instruction.first, instruction.second, instruction.name)
		}
		if err != nil {
			stalls++
			consecutive++
			r.logger.Warn("merge rejected",
				slog.String("reason", err.Error()),
				slog.Int("consecutive_stalls", consecutive),
				slog.Int("topics", current.Len()),
			)
			if r.config.MaxStalls > 0 && consecutive >= r.config.MaxStalls {
				return Result{Topics: current, History: history, Stalls: stalls},
					fmt.Errorf("%w after %d consecutive rejected merges", ErrStalled, consecutive)
			}
			current = current.Shuffle(r.rng)
			continue
		}
		consecutive = 0

		first, _ := current.At(instruction.first)
		second, _ := current.At(instruction.second)
		all := next.Topics()
		merged := all[len(all)-1]

		if weights != nil {
			w := weights[first] + weights[second]
			delete(weights, first)
			delete(weights, second)
			weights[merged] = w
		}

		step := len(history)
		history = append(history, mergeEntry(step, next, merged, first, second))
		current = next

		r.logger.Info("topics merged",
			slog.Int("step", step),
			slog.String("first", first),
			slog.String("second", second),
			slog.String("new_topic", merged),
			slog.Int("steps_to_go", current.Len()-r.config.Target),
		)
	}

	return Result{Topics: current, History: history, Stalls: stalls}, nil
}
