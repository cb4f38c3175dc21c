// Package classify maps classification replies to topic indices.
//
// A reply resolves to a non-negative index or to one of three negative
// sentinels; callers only need to branch on the sign.
package classify

import (
	"github.com/botirk38/llmtopics/llmjson"
	"github.com/botirk38/llmtopics/types"
)

const (
	// NoResponse marks a request that produced no reply at all.
	NoResponse = -3
	// MissingField marks a reply without the topic field.
	MissingField = -2
	// OutOfRange marks a topic field that is not a valid index.
	OutOfRange = -1

	// Placeholder is the name given to documents left unresolved.
	Placeholder = "ERROR_NO_TOPIC"

	// TopicField is the reply key holding the index.
	TopicField = "topic"
)

// Assign returns the topic index held by resp, or a sentinel. It never
// panics.
func Assign(resp types.Object, nTopics int) int {
	if resp == nil {
		return NoResponse
	}
	raw, ok := resp[TopicField]
	if !ok {
		return MissingField
	}
	idx, ok := llmjson.Int(raw)
	if !ok || idx < 0 || idx >= nTopics {
		return OutOfRange
	}
	return idx
}

// AssignAll applies Assign to every reply.
func AssignAll(responses []types.Object, nTopics int) []int {
	out := make([]int, len(responses))
	for i, resp := range responses {
		out[i] = Assign(resp, nTopics)
	}
	return out
}

// Names resolves assignments to topic names, using Placeholder for
// sentinels and anything outside topics.
func Names(assignments []int, topics []string) []string {
	out := make([]string, len(assignments))
	for i, idx := range assignments {
		if idx < 0 || idx >= len(topics) {
			out[i] = Placeholder
			continue
		}
		out[i] = topics[idx]
	}
	return out
}

// Unresolved returns the positions holding a negative assignment.
func Unresolved(assignments []int) []int {
	var out []int
	for i, idx := range assignments {
		if idx < 0 {
			out = append(out, i)
		}
	}
	return out
}
