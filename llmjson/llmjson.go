// Package llmjson decodes JSON objects out of model completions.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/botirk38/llmtopics/types"
)

var (
	// ErrEmptyPayload is returned for blank completions.
	ErrEmptyPayload = errors.New("llmjson: empty payload")

	// ErrNotObject is returned when the payload decodes to something other
	// than a JSON object.
	ErrNotObject = errors.New("llmjson: payload is not a JSON object")

	// ErrNoContent is returned when a chat completion envelope carries no
	// message content.
	ErrNoContent = errors.New("llmjson: envelope has no message content")
)

// DecodeObject parses content as a JSON object. Content wrapped in a
// markdown code fence or surrounded by prose is trimmed to the outermost
// braces before a second attempt.
func DecodeObject(content string) (types.Object, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrEmptyPayload
	}

	obj, directErr := decode(trimmed)
	if directErr == nil {
		return obj, nil
	}

	sanitized := sanitize(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return nil, fmt.Errorf("%w (payload snippet: %s)", directErr, snippet(trimmed))
	}
	obj, err := decode(sanitized)
	if err != nil {
		return nil, fmt.Errorf("%w (sanitized payload snippet: %s)", err, snippet(sanitized))
	}
	return obj, nil
}

func decode(payload string) (types.Object, error) {
	var raw any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return types.Object(obj), nil
}

func sanitize(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}

// Int reports the integer held by a decoded JSON value. Only whole numbers
// qualify; strings, booleans and fractional numbers do not.
func Int(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i > math.MaxInt32 || i < math.MinInt32 {
			return 0, false
		}
		return int(i), true
	case int:
		return n, true
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// Strings returns the string elements of a decoded JSON array. Non-string
// elements are skipped; ok is false when v is not an array.
func Strings(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// EnvelopeContent decodes the message content of the first choice in a chat
// completion envelope, the shape returned in the log-probability mode.
func EnvelopeContent(envelope types.Object) (types.Object, error) {
	choices, _ := envelope["choices"].([]any)
	if len(choices) == 0 {
		return nil, ErrNoContent
	}
	choice, _ := choices[0].(map[string]any)
	message, _ := choice["message"].(map[string]any)
	content, ok := message["content"].(string)
	if !ok {
		return nil, ErrNoContent
	}
	return DecodeObject(content)
}
