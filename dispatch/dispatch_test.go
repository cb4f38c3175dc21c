package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/botirk38/llmtopics/retry"
	"github.com/botirk38/llmtopics/types"
)

// scriptedCompleter echoes the prompt back and fails any prompt that
// contains "fail".
type scriptedCompleter struct {
	mu          sync.Mutex
	calls       map[string]int
	requests    []types.Request
	inFlight    int
	maxInFlight int
	hold        time.Duration
	nilResult   bool
	panicOn     string
}

func newScripted() *scriptedCompleter {
	return &scriptedCompleter{calls: make(map[string]int)}
}

func (c *scriptedCompleter) Complete(ctx context.Context, req types.Request) (types.Object, error) {
	c.mu.Lock()
	c.calls[req.Prompt]++
	c.requests = append(c.requests, req)
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if c.hold > 0 {
		time.Sleep(c.hold)
	}
	if c.panicOn != "" && req.Prompt == c.panicOn {
		panic("completer exploded")
	}
	if strings.Contains(req.Prompt, "fail") {
		return nil, errors.New("service unavailable")
	}
	if c.nilResult {
		return nil, nil
	}
	return types.Object{"echo": req.Prompt}, nil
}

func (c *scriptedCompleter) Close() {}

func (c *scriptedCompleter) callCount(prompt string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[prompt]
}

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

func (s *sleepLog) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, got := range s.delays {
		if got == d {
			n++
		}
	}
	return n
}

func testConfig(sleeper func(time.Duration)) Config {
	config := DefaultConfig()
	config.WindowPause = 7 * time.Second
	config.SyncRetry = retry.Policy{BaseDelay: time.Millisecond, MaxAttempts: 2}
	config.AsyncRetry = retry.Policy{BaseDelay: time.Millisecond, MaxAttempts: 3}
	config.Sleeper = sleeper
	return config
}

func TestNew(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil completer")
	}
	config := DefaultConfig()
	config.BatchSize = 0
	if _, err := New(newScripted(), config); err == nil {
		t.Error("expected error for zero batch size")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.Model != "gpt-4o" || config.Timeout != 30*time.Second || config.MaxTokens != 2000 {
		t.Errorf("unexpected defaults %+v", config)
	}
	if config.SyncRetry.MaxAttempts != 2 || config.AsyncRetry.MaxAttempts != 30 {
		t.Errorf("unexpected retry budgets %d/%d", config.SyncRetry.MaxAttempts, config.AsyncRetry.MaxAttempts)
	}
	if config.SyncRetry.BaseDelay != 5*time.Second || config.WindowPause != 5*time.Second {
		t.Error("expected 5s delays")
	}
}

func TestCompleteMany_Windows(t *testing.T) {
	sleeps := &sleepLog{}
	completer := newScripted()
	d, err := New(completer, testConfig(sleeps.sleep))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	prompts := []string{"p0", "p1", "p2", "p3", "p4"}
	results := d.CompleteMany(context.Background(), prompts, 2)

	if len(results) != len(prompts) {
		t.Fatalf("got %d results, want %d", len(results), len(prompts))
	}
	for i, obj := range results {
		if obj["echo"] != prompts[i] {
			t.Errorf("slot %d = %v, want echo of %s", i, obj, prompts[i])
		}
	}

	stats := d.Stats()
	if stats.Windows != 3 {
		t.Errorf("Windows = %d, want 3", stats.Windows)
	}
	if stats.Pauses != 2 || sleeps.count(7*time.Second) != 2 {
		t.Errorf("pauses = %d (slept %d), want 2", stats.Pauses, sleeps.count(7*time.Second))
	}
	if stats.Requests != 5 || stats.Failures != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCompleteMany_FailureIsolation(t *testing.T) {
	sleeps := &sleepLog{}
	completer := newScripted()
	d, _ := New(completer, testConfig(sleeps.sleep))

	prompts := []string{"a", "b", "fail-c", "d", "e"}
	results := d.CompleteMany(context.Background(), prompts, 2)

	for i, obj := range results {
		if i == 2 {
			if obj != nil {
				t.Errorf("slot 2 = %v, want nil", obj)
			}
			continue
		}
		if obj["echo"] != prompts[i] {
			t.Errorf("slot %d = %v, want echo of %s", i, obj, prompts[i])
		}
	}
	if got := completer.callCount("fail-c"); got != 3 {
		t.Errorf("failing prompt attempted %d times, want 3", got)
	}
	if got := completer.callCount("d"); got != 1 {
		t.Errorf("sibling prompt attempted %d times, want 1", got)
	}
	if d.Stats().Failures != 1 {
		t.Errorf("Failures = %d, want 1", d.Stats().Failures)
	}
}

func TestCompleteMany_PanicAndNilAreFailures(t *testing.T) {
	completer := newScripted()
	completer.panicOn = "boom"
	d, _ := New(completer, testConfig(func(time.Duration) {}))

	results := d.CompleteMany(context.Background(), []string{"ok", "boom"}, 5)
	if results[0] == nil || results[1] != nil {
		t.Errorf("unexpected results %v", results)
	}

	nilCompleter := newScripted()
	nilCompleter.nilResult = true
	d2, _ := New(nilCompleter, testConfig(func(time.Duration) {}))
	if got := d2.CompleteMany(context.Background(), []string{"x"}, 1); got[0] != nil {
		t.Errorf("expected nil slot for empty reply, got %v", got[0])
	}
}

func TestCompleteMany_ConcurrencyBoundedByBatch(t *testing.T) {
	completer := newScripted()
	completer.hold = 30 * time.Millisecond
	d, _ := New(completer, testConfig(func(time.Duration) {}))

	prompts := make([]string, 9)
	for i := range prompts {
		prompts[i] = "p" + string(rune('a'+i))
	}
	results := d.CompleteMany(context.Background(), prompts, 3)

	for i, obj := range results {
		if obj["echo"] != prompts[i] {
			t.Errorf("slot %d out of order: %v", i, obj)
		}
	}
	if completer.maxInFlight > 3 {
		t.Errorf("max in flight = %d, want <= 3", completer.maxInFlight)
	}
	if completer.maxInFlight < 2 {
		t.Errorf("max in flight = %d, expected window tasks to overlap", completer.maxInFlight)
	}
}

func TestCompleteMany_Empty(t *testing.T) {
	d, _ := New(newScripted(), testConfig(func(time.Duration) {}))
	if got := d.CompleteMany(context.Background(), nil, 2); len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
	if d.Stats().Windows != 0 {
		t.Error("expected no windows")
	}
}

func TestCompleteMany_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	completer := newScripted()
	d, _ := New(completer, testConfig(func(time.Duration) {}))

	results := d.CompleteMany(ctx, []string{"a", "b", "c"}, 1)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, obj := range results {
		if obj != nil {
			t.Errorf("slot %d = %v, want nil", i, obj)
		}
	}
}

func TestCompleteAt(t *testing.T) {
	sleeps := &sleepLog{}
	completer := newScripted()
	config := testConfig(sleeps.sleep)
	config.Temperature = 0
	d, _ := New(completer, config)

	obj := d.CompleteAt(context.Background(), "hot", 0.7)
	if obj["echo"] != "hot" {
		t.Fatalf("unexpected object %v", obj)
	}
	if completer.requests[0].Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", completer.requests[0].Temperature)
	}
	if completer.requests[0].System != DefaultSystemPrompt || completer.requests[0].MaxTokens != 2000 {
		t.Errorf("unexpected request %+v", completer.requests[0])
	}

	if got := d.Complete(context.Background(), "fail"); got != nil {
		t.Errorf("expected nil after exhausting retries, got %v", got)
	}
	if got := completer.callCount("fail"); got != 2 {
		t.Errorf("failing prompt attempted %d times, want 2", got)
	}
	if sleeps.count(time.Millisecond) != 1 {
		t.Errorf("expected exactly one retry delay, got %v", sleeps.delays)
	}

	stats := d.Stats()
	if stats.Requests != 2 || stats.Failures != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCompleteManyAsync(t *testing.T) {
	d, _ := New(newScripted(), testConfig(func(time.Duration) {}))
	select {
	case results := <-d.CompleteManyAsync(context.Background(), []string{"x", "y"}, 1):
		if len(results) != 2 || results[1]["echo"] != "y" {
			t.Errorf("unexpected results %v", results)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("CompleteManyAsync did not deliver")
	}
}

func TestCompleteManyLogprobs(t *testing.T) {
	completer := newScripted()
	config := testConfig(func(time.Duration) {})
	config.TopLogprobs = 20
	d, _ := New(completer, config)

	results := d.CompleteManyLogprobs(context.Background(), []string{"x", "y", "z"}, 2)
	if len(results) != 3 || results[2]["echo"] != "z" {
		t.Fatalf("unexpected results %v", results)
	}
	for i, req := range completer.requests {
		if !req.Logprobs || req.TopLogprobs != 20 {
			t.Errorf("request %d: expected logprobs request, got %+v", i, req)
		}
	}
	if stats := d.Stats(); stats.Windows != 2 || stats.Pauses != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	// other entry points stay in the plain response mode
	d.CompleteMany(context.Background(), []string{"plain"}, 1)
	d.Complete(context.Background(), "single")
	for _, req := range completer.requests[3:] {
		if req.Logprobs {
			t.Errorf("plain call %q sent with logprobs", req.Prompt)
		}
	}
}
