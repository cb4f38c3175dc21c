package oneshot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/botirk38/llmtopics/classify"
	"github.com/botirk38/llmtopics/logging"
	"github.com/botirk38/llmtopics/types"
)

const (
	DefaultRepairPasses      = 10
	DefaultRepairTemperature = 0.7
)

// TemperatureCaller issues one prompt at a given sampling temperature.
type TemperatureCaller interface {
	CompleteAt(ctx context.Context, prompt string, temperature float64) types.Object
}

// RepairConfig controls a Repairer. Zero values select the defaults.
type RepairConfig struct {
	Passes      int
	Temperature float64
	Logger      *slog.Logger
}

// Report summarizes a repair run.
type Report struct {
	Passes     int `json:"passes"`
	Repaired   int `json:"repaired"`
	Unresolved int `json:"unresolved"`
}

// Repairer re-asks classification prompts whose assignment is a sentinel.
type Repairer struct {
	caller      TemperatureCaller
	passes      int
	temperature float64
	logger      *slog.Logger
}

// NewRepairer creates a Repairer.
func NewRepairer(caller TemperatureCaller, config RepairConfig) (*Repairer, error) {
	if caller == nil {
		return nil, fmt.Errorf("oneshot: caller cannot be nil")
	}
	passes := config.Passes
	if passes < 1 {
		passes = DefaultRepairPasses
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = DefaultRepairTemperature
	}
	return &Repairer{
		caller:      caller,
		passes:      passes,
		temperature: temperature,
		logger:      logging.OrDiscard(config.Logger).With(slog.String("component", "repair")),
	}, nil
}

// Repair returns a copy of assignments in which negative entries were
// re-asked, one prompt at a time, for up to the configured number of full
// passes or until none remain. prompts[i] must be the prompt that produced
// assignments[i].
func (r *Repairer) Repair(ctx context.Context, prompts []string, assignments []int, nTopics int) ([]int, Report) {
	out := make([]int, len(assignments))
	copy(out, assignments)

	initial := len(classify.Unresolved(out))
	report := Report{}
	for pass := 1; pass <= r.passes; pass++ {
		pending := classify.Unresolved(out)
		if len(pending) == 0 || ctx.Err() != nil {
			break
		}
		r.logger.Info("repair pass", slog.Int("pass", pass), slog.Int("pending", len(pending)))
		for _, idx := range pending {
			if idx >= len(prompts) {
				continue
			}
			out[idx] = classify.Assign(r.caller.CompleteAt(ctx, prompts[idx], r.temperature), nTopics)
		}
		report.Passes = pass
	}

	report.Unresolved = len(classify.Unresolved(out))
	report.Repaired = initial - report.Unresolved
	if report.Unresolved > 0 {
		r.logger.Warn("classifications left unresolved",
			slog.Int("unresolved", report.Unresolved),
			slog.Int("passes", report.Passes),
		)
	}
	return out, report
}
