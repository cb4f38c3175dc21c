// Package oneshot reduces a topic set with a single combination request
// and repairs failed classifications by re-asking at a higher temperature.
package oneshot

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

// DefaultAttempts is the combination attempt budget.
const DefaultAttempts = 10

// Caller issues one prompt and returns the decoded reply, or nil when the
// request failed.
type Caller interface {
	Complete(ctx context.Context, prompt string) types.Object
}

// CombineConfig controls a Combiner.
type CombineConfig struct {
	Attempts int
	Logger   *slog.Logger
	Rand     *rand.Rand
}

// Combiner asks for the whole candidate set to be condensed at once.
type Combiner struct {
	caller   Caller
	attempts int
	logger   *slog.Logger
	rng      *rand.Rand
}

// NewCombiner creates a Combiner. Attempts below 1 use DefaultAttempts.
func NewCombiner(caller Caller, config CombineConfig) (*Combiner, error) {
	if caller == nil {
		return nil, fmt.Errorf("oneshot: caller cannot be nil")
	}
	attempts := config.Attempts
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	rng := config.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Combiner{
		caller:   caller,
		attempts: attempts,
		logger:   logging.OrDiscard(config.Logger).With(slog.String("component", "combine")),
		rng:      rng,
	}, nil
}

// Combine condenses set to about target topics. A target below 1 lets the
// service choose the count. The reply is normalized and deduplicated; a
// list longer than target is cut to target, a shorter one is kept as is.
// A missing, malformed or empty list counts as a failed attempt and the
// next attempt lists the candidates in a new order.
func (c *Combiner) Combine(ctx context.Context, set topics.Set, target int) (topics.Set, error) {
	current := set
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return topics.Set{}, fmt.Errorf("%w: %w", ErrCombinationFailed, err)
		}

		var prompt string
		if target > 0 {
			prompt = prompts.Combination(current.Topics(), target)
		} else {
			prompt = prompts.CombinationNoPrior(current.Topics())
		}

		resp := c.caller.Complete(ctx, prompt)
		var list []string
		ok := false
		if resp != nil {
			list, ok = llmjson.Strings(resp["topics"])
		}
		combined := topics.NewSet(list)
		if ok && combined.Len() > 0 {
			if target > 0 {
				combined = combined.Truncate(target)
			}
			c.logger.Info("topics combined",
				slog.Int("attempt", attempt),
				slog.Int("candidates", set.Len()),
				slog.Int("requested", target),
				slog.Int("returned", combined.Len()),
			)
			return combined, nil
		}

		c.logger.Warn("combination attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.attempts),
		)
		current = current.Shuffle(c.rng)
	}
	return topics.Set{}, fmt.Errorf("%w after %d attempts", ErrCombinationFailed, c.attempts)
}
