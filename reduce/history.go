package reduce

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/botirk38/llmtopics/topics"
)

// HistoryEntry is a snapshot of the topic set after one reduction step.
// Parents maps every topic to the topics it came from: nil at step 0, the
// topic itself for survivors, the two merged topics for the new one.
type HistoryEntry struct {
	Step    int                 `json:"step"`
	Topics  []string            `json:"topics"`
	Parents map[string][]string `json:"parents"`
}

// History is the append-only sequence of entries, step 0 first.
type History []HistoryEntry

func originEntry(set topics.Set) HistoryEntry {
	parents := make(map[string][]string, set.Len())
	for _, t := range set.Topics() {
		parents[t] = nil
	}
	return HistoryEntry{Step: 0, Topics: set.Topics(), Parents: parents}
}

func mergeEntry(step int, next topics.Set, merged string, first, second string) HistoryEntry {
	parents := make(map[string][]string, next.Len())
	for _, t := range next.Topics() {
		parents[t] = []string{t}
	}
	parents[merged] = []string{first, second}
	return HistoryEntry{Step: step, Topics: next.Topics(), Parents: parents}
}

// Validate checks that steps start at 0 and increase by one, and that each
// step after the first is exactly one topic smaller than the previous.
func (h History) Validate() error {
	for i, entry := range h {
		if entry.Step != i {
			return fmt.Errorf("history entry %d has step %d", i, entry.Step)
		}
		if i > 0 && len(entry.Topics) != len(h[i-1].Topics)-1 {
			return fmt.Errorf("history step %d has %d topics, previous had %d", i, len(entry.Topics), len(h[i-1].Topics))
		}
	}
	return nil
}

// WriteFile stores the history as indented JSON.
func (h History) WriteFile(path string) error {
	data, err := json.MarshalIndent(h, "", "    ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// ReadHistory loads a history written by WriteFile.
func ReadHistory(path string) (History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return h, nil
}
