package reduce

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/botirk38/llmtopics/topics"
	"github.com/botirk38/llmtopics/types"
)

// scriptedCaller replays replies in order and repeats the last one.
type scriptedCaller struct {
	replies []types.Object
	prompts []string
}

func (c *scriptedCaller) Complete(ctx context.Context, prompt string) types.Object {
	c.prompts = append(c.prompts, prompt)
	if len(c.replies) == 0 {
		return nil
	}
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return reply
}

func merge(i, j int, name string) types.Object {
	return types.Object{"topic_pair": []any{float64(i), float64(j)}, "new_topic": name}
}

func fixedRand() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func sorted(list []string) []string {
	out := slices.Clone(list)
	slices.Sort(out)
	return out
}

func TestNewReducer(t *testing.T) {
	if _, err := NewReducer(nil, Config{Target: 2}); err == nil {
		t.Error("expected error for nil caller")
	}
	if _, err := NewReducer(&scriptedCaller{}, Config{Target: 0}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestReduce_ValidMerges(t *testing.T) {
	caller := &scriptedCaller{replies: []types.Object{merge(0, 1, "AB"), merge(0, 1, "cd")}}
	reducer, _ := NewReducer(caller, Config{Target: 2, Rand: fixedRand()})

	result, err := reducer.Reduce(context.Background(), topics.NewSet([]string{"a", "b", "c", "d"}))
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}

	if got := result.Topics.Topics(); !slices.Equal(got, []string{"ab", "cd"}) {
		t.Errorf("final topics = %v, want [ab cd]", got)
	}
	if len(result.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(result.History))
	}
	if err := result.History.Validate(); err != nil {
		t.Errorf("history invalid: %v", err)
	}

	origin := result.History[0]
	for _, topic := range []string{"a", "b", "c", "d"} {
		parents, ok := origin.Parents[topic]
		if !ok || parents != nil {
			t.Errorf("origin parents[%q] = %v (present=%v), want nil", topic, parents, ok)
		}
	}

	step1 := result.History[1]
	if !slices.Equal(step1.Topics, []string{"c", "d", "ab"}) {
		t.Errorf("step 1 topics = %v", step1.Topics)
	}
	if !slices.Equal(step1.Parents["ab"], []string{"a", "b"}) {
		t.Errorf("step 1 parents[ab] = %v", step1.Parents["ab"])
	}
	if !slices.Equal(step1.Parents["c"], []string{"c"}) {
		t.Errorf("survivor should map to itself, got %v", step1.Parents["c"])
	}

	step2 := result.History[2]
	if !slices.Equal(step2.Parents["cd"], []string{"c", "d"}) || !slices.Equal(step2.Parents["ab"], []string{"ab"}) {
		t.Errorf("step 2 parents = %v", step2.Parents)
	}
	if result.Stalls != 0 {
		t.Errorf("Stalls = %d, want 0", result.Stalls)
	}
	if len(caller.prompts) != 2 || !strings.Contains(caller.prompts[0], "#3: d") {
		t.Errorf("unexpected prompts %v", caller.prompts)
	}
}

func TestReduce_AlreadyAtTarget(t *testing.T) {
	caller := &scriptedCaller{}
	reducer, _ := NewReducer(caller, Config{Target: 5})

	result, err := reducer.Reduce(context.Background(), topics.NewSet([]string{"a", "b"}))
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if len(result.History) != 1 || result.Topics.Len() != 2 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(caller.prompts) != 0 {
		t.Error("expected no service calls")
	}
}

func TestReduce_RejectedRepliesRollBack(t *testing.T) {
	caller := &scriptedCaller{replies: []types.Object{
		merge(1, 1, "x"),
		merge(0, 9, "x"),
		{"topic_pair": []any{0.0, 1.0, 2.0}, "new_topic": "x"},
		{"topic_pair": []any{0.0}, "new_topic": "x"},
		{"topic_pair": []any{"0", "1"}, "new_topic": "x"},
		{"topic_pair": []any{0.0, 1.0}},
		merge(0, 1, ""),
		nil,
		merge(0, 1, "merged"),
	}}
	reducer, _ := NewReducer(caller, Config{Target: 3, Rand: fixedRand()})

	original := []string{"a", "b", "c", "d"}
	result, err := reducer.Reduce(context.Background(), topics.NewSet(original))
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if result.Stalls != 8 {
		t.Errorf("Stalls = %d, want 8", result.Stalls)
	}
	if len(result.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(result.History))
	}
	if result.Topics.Len() != 3 || !result.Topics.Contains("merged") {
		t.Errorf("final topics = %v", result.Topics.Topics())
	}

	// Every rejected attempt listed the same four topics.
	for i, prompt := range caller.prompts[:9] {
		for _, topic := range original {
			if !strings.Contains(prompt, ": "+topic+"\n") {
				t.Errorf("prompt %d lost topic %q", i, topic)
			}
		}
	}

	parents := result.History[1].Parents["merged"]
	if len(parents) != 2 || parents[0] == parents[1] {
		t.Errorf("unexpected parents for merged topic: %v", parents)
	}
}

func TestReduce_Stalled(t *testing.T) {
	caller := &scriptedCaller{replies: []types.Object{{"nonsense": true}}}
	reducer, _ := NewReducer(caller, Config{Target: 1, MaxStalls: 3, Rand: fixedRand()})

	original := []string{"a", "b", "c"}
	result, err := reducer.Reduce(context.Background(), topics.NewSet(original))
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("expected ErrStalled, got %v", err)
	}
	if result.Stalls != 3 || len(caller.prompts) != 3 {
		t.Errorf("Stalls = %d, calls = %d, want 3", result.Stalls, len(caller.prompts))
	}
	if !slices.Equal(sorted(result.Topics.Topics()), original) {
		t.Errorf("last good set = %v, want members %v", result.Topics.Topics(), original)
	}
	if len(result.History) != 1 {
		t.Errorf("history length = %d, want 1", len(result.History))
	}
}

func TestReduce_StallCounterResetsOnSuccess(t *testing.T) {
	caller := &scriptedCaller{replies: []types.Object{
		nil, nil, merge(0, 1, "x"),
		nil, nil, merge(0, 1, "y"),
	}}
	reducer, _ := NewReducer(caller, Config{Target: 2, MaxStalls: 3, Rand: fixedRand()})

	result, err := reducer.Reduce(context.Background(), topics.NewSet([]string{"a", "b", "c", "d"}))
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if result.Stalls != 4 || result.Topics.Len() != 2 {
		t.Errorf("unexpected result: stalls=%d topics=%v", result.Stalls, result.Topics.Topics())
	}
}

func TestReduce_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reducer, _ := NewReducer(&scriptedCaller{}, Config{Target: 1})

	result, err := reducer.Reduce(ctx, topics.NewSet([]string{"a", "b"}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Topics.Len() != 2 || len(result.History) != 1 {
		t.Errorf("unexpected partial result %+v", result)
	}
}

func TestReduce_Weighted(t *testing.T) {
	caller := &scriptedCaller{replies: []types.Object{merge(0, 1, "ab"), merge(0, 1, "abc")}}
	reducer, _ := NewReducer(caller, Config{Target: 1, Weighted: true, Rand: fixedRand()})

	_, err := reducer.Reduce(context.Background(), topics.NewSet([]string{"a", "b", "c"}))
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if len(caller.prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(caller.prompts))
	}
	if !strings.Contains(caller.prompts[0], "#0: a, weight: 1") {
		t.Errorf("first prompt missing weights:\n%s", caller.prompts[0])
	}
	if !strings.Contains(caller.prompts[1], "#0: c, weight: 1\n#1: ab, weight: 2") {
		t.Errorf("second prompt has wrong weights:\n%s", caller.prompts[1])
	}
}
