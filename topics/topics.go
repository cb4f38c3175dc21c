// Package topics holds the normalized topic labels and the immutable topic
// set the reduction strategies operate on.
package topics

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/botirk38/llmtopics/llmjson"
	"github.com/botirk38/llmtopics/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize lower-cases a label and trims surrounding whitespace.
func Normalize(topic string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(topic))
}

// Set is an ordered collection of distinct normalized topics. Order carries
// no meaning beyond being the index space of the prompts built from it.
// Operations return new sets and never modify the receiver.
type Set struct {
	topics []string
}

// NewSet normalizes topics, drops empty labels and keeps the first
// occurrence of each duplicate.
func NewSet(topics []string) Set {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		n := Normalize(t)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return Set{topics: out}
}

// Len returns the number of topics.
func (s Set) Len() int {
	return len(s.topics)
}

// Topics returns a copy of the topics in index order.
func (s Set) Topics() []string {
	out := make([]string, len(s.topics))
	copy(out, s.topics)
	return out
}

// At returns the topic at index i.
func (s Set) At(i int) (string, error) {
	if i < 0 || i >= len(s.topics) {
		return "", fmt.Errorf("%w: %d (set has %d topics)", ErrIndexOutOfRange, i, len(s.topics))
	}
	return s.topics[i], nil
}

// Contains reports whether topic (after normalization) is in the set.
func (s Set) Contains(topic string) bool {
	n := Normalize(topic)
	for _, t := range s.topics {
		if t == n {
			return true
		}
	}
	return false
}

// Merge removes the topics at i and j and appends name. The result is one
// topic shorter than s. A name equal to one of the two merged topics is
// allowed; a name equal to any other survivor is rejected.
func (s Set) Merge(i, j int, name string) (Set, error) {
	if i == j {
		return Set{}, fmt.Errorf("%w: %d", ErrSameIndex, i)
	}
	if _, err := s.At(i); err != nil {
		return Set{}, err
	}
	if _, err := s.At(j); err != nil {
		return Set{}, err
	}
	merged := Normalize(name)
	if merged == "" {
		return Set{}, ErrEmptyTopic
	}

	out := make([]string, 0, len(s.topics)-1)
	for k, t := range s.topics {
		if k == i || k == j {
			continue
		}
		if t == merged {
			return Set{}, fmt.Errorf("%w: %q", ErrDuplicateTopic, merged)
		}
		out = append(out, t)
	}
	return Set{topics: append(out, merged)}, nil
}

// Shuffle returns a copy of s in a random order.
func (s Set) Shuffle(rng *rand.Rand) Set {
	out := s.Topics()
	rng.Shuffle(len(out), func(a, b int) {
		out[a], out[b] = out[b], out[a]
	})
	return Set{topics: out}
}

// Truncate returns the first n topics of s.
func (s Set) Truncate(n int) Set {
	if n < 0 || n >= len(s.topics) {
		return s
	}
	return Set{topics: s.Topics()[:n]}
}

// FromResponses flattens the "topics" arrays of topic-creation responses
// into a set. Nil responses and responses without a usable array are
// skipped.
func FromResponses(responses []types.Object) Set {
	var all []string
	for _, resp := range responses {
		if resp == nil {
			continue
		}
		if list, ok := llmjson.Strings(resp["topics"]); ok {
			all = append(all, list...)
		}
	}
	return NewSet(all)
}
