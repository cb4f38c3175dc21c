package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/botirk38/llmtopics/reduce"
	"github.com/botirk38/llmtopics/store"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReadDocuments(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		want    []string
		wantErr bool
	}{
		{
			name:    "plain text keeps blank lines in place",
			file:    "docs.txt",
			content: "first document\n\n  second document  \n",
			want:    []string{"first document", "", "second document"},
		},
		{
			name:    "trailing blank lines dropped",
			file:    "trailing.txt",
			content: "\nonly document\n\n  \n",
			want:    []string{"", "only document"},
		},
		{
			name:    "blank input",
			file:    "blank.txt",
			content: "\n\n",
			want:    nil,
		},
		{
			name:    "jsonl records",
			file:    "docs.jsonl",
			content: `{"text": "alpha", "id": 1}` + "\n" + `{"text": "beta"}` + "\n",
			want:    []string{"alpha", "beta"},
		},
		{
			name:    "jsonl empty text keeps its position",
			file:    "gaps.jsonl",
			content: `{"text": "alpha"}` + "\n" + `{"text": "  "}` + "\n\n" + `{"text": "gamma"}` + "\n",
			want:    []string{"alpha", "", "", "gamma"},
		},
		{
			name:    "jsonl without text",
			file:    "missing.jsonl",
			content: `{"body": "alpha"}` + "\n",
			wantErr: true,
		},
		{
			name:    "malformed jsonl",
			file:    "broken.jsonl",
			content: "{not json}\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := readDocuments(writeTestFile(t, dir, tt.file, tt.content), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readDocuments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(docs) != len(tt.want) || strings.Join(docs, "|") != strings.Join(tt.want, "|") {
				t.Errorf("readDocuments() = %q, want %q", docs, tt.want)
			}
		})
	}

	t.Run("stdin", func(t *testing.T) {
		docs, err := readDocuments("-", strings.NewReader("one\ntwo\n"))
		if err != nil {
			t.Fatalf("readDocuments() error = %v", err)
		}
		if len(docs) != 2 {
			t.Errorf("got %d documents, want 2", len(docs))
		}
	})
}

func sampleHistory() reduce.History {
	return reduce.History{
		{Step: 0, Topics: []string{"a", "b", "c"}, Parents: map[string][]string{"a": nil, "b": nil, "c": nil}},
		{Step: 1, Topics: []string{"c", "ab"}, Parents: map[string][]string{"c": {"c"}, "ab": {"a", "b"}}},
	}
}

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topic_history.json")
	if err := sampleHistory().WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	out, err := runCommand(t, "history", path)
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	for _, want := range []string{"origin", "a + b -> ab"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = runCommand(t, "history", path, "--json")
	if err != nil {
		t.Fatalf("history --json error = %v", err)
	}
	var decoded reduce.History
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Errorf("decoded %d entries, want 2", len(decoded))
	}

	if _, err := runCommand(t, "history", filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("Expected error for a missing history file")
	}
}

func TestRunsCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	run := &store.Run{
		Strategy:    "iterative",
		Model:       "gpt-4o",
		Topics:      []string{"c", "ab"},
		Assignments: []int{0, 1, -3},
		Names:       []string{"c", "ab", "ERROR_NO_TOPIC"},
		History:     sampleHistory(),
	}
	if err := s.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	s.Close()

	out, err := runCommand(t, "runs", "list", "--db", dbPath)
	if err != nil {
		t.Fatalf("runs list error = %v", err)
	}
	if !strings.Contains(out, run.ID) || !strings.Contains(out, "iterative") {
		t.Errorf("runs list output missing run:\n%s", out)
	}

	out, err = runCommand(t, "runs", "show", run.ID, "--db", dbPath)
	if err != nil {
		t.Fatalf("runs show error = %v", err)
	}
	for _, want := range []string{"ab", "ERROR_NO_TOPIC", "1 merge steps"} {
		if !strings.Contains(out, want) {
			t.Errorf("runs show output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCommand(t, "runs", "delete", run.ID, "--db", dbPath); err != nil {
		t.Fatalf("runs delete error = %v", err)
	}
	out, err = runCommand(t, "runs", "list", "--db", dbPath)
	if err != nil {
		t.Fatalf("runs list error = %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Errorf("expected empty listing, got:\n%s", out)
	}

	if _, err := runCommand(t, "runs", "list"); err == nil {
		t.Error("Expected error without a database")
	}
}

// newFakeService serves OpenAI-style chat completions with scripted topic
// replies: four creation topics, first-pair merges and parity classification.
func newFakeService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content any    `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var prompt string
		for _, m := range req.Messages {
			if s, ok := m.Content.(string); ok && m.Role == "user" {
				prompt = s
			}
		}

		var reply string
		switch {
		case strings.Contains(prompt, "distill a list of topics"):
			reply = `{"topics": ["a", "b", "c", "d"]}`
		case strings.Contains(prompt, "merge a pair of topics"):
			first, second := topicLine(prompt, 0), topicLine(prompt, 1)
			reply = fmt.Sprintf(`{"topic_pair": [0, 1], "new_topic": %q}`, first+second)
		case strings.Contains(prompt, "DOCUMENT: even"):
			reply = `{"topic": 0}`
		default:
			reply = `{"topic": 1}`
		}

		body := map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func topicLine(prompt string, idx int) string {
	prefix := fmt.Sprintf("#%d: ", idx)
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix)
		}
	}
	return ""
}

func TestFitCommandKeepsLineAlignment(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	srv := newFakeService(t)
	dir := t.TempDir()

	docsPath := writeTestFile(t, dir, "docs.txt",
		"even document number 0\nodd document number 1\n\neven document number 3\n")
	configPath := writeTestFile(t, dir, "llmtopics.yaml", fmt.Sprintf(`provider: openai
api_key: test-key
base_url: %s/v1/
model: gpt-4o
max_documents: 12
window_pause_seconds: 0
logging:
  level: error
`, srv.URL))

	out, err := runCommand(t, "--config", configPath, "fit", docsPath, "--topics", "2", "--json")
	if err != nil {
		t.Fatalf("fit error = %v", err)
	}

	var result struct {
		Assignments []int    `json:"topic_assignments"`
		Names       []string `json:"topic_names"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	want := []int{0, 1, 1, 0}
	if len(result.Assignments) != len(want) || len(result.Names) != len(want) {
		t.Fatalf("got %d assignments and %d names, want one per input line", len(result.Assignments), len(result.Names))
	}
	for i, idx := range result.Assignments {
		if idx != want[i] {
			t.Errorf("line %d assigned %d, want %d", i+1, idx, want[i])
		}
	}
}

func TestFitCommand(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	srv := newFakeService(t)
	dir := t.TempDir()

	var docs strings.Builder
	for i := range 12 {
		parity := "even"
		if i%2 == 1 {
			parity = "odd"
		}
		fmt.Fprintf(&docs, "%s document number %d\n", parity, i)
	}
	docsPath := writeTestFile(t, dir, "docs.txt", docs.String())
	historyPath := filepath.Join(dir, "history.json")
	outputPath := filepath.Join(dir, "result.json")
	dbPath := filepath.Join(dir, "runs.db")
	configPath := writeTestFile(t, dir, "llmtopics.yaml", fmt.Sprintf(`provider: openai
api_key: test-key
base_url: %s/v1/
model: gpt-4o
max_documents: 12
window_pause_seconds: 0
logging:
  level: error
`, srv.URL))

	out, err := runCommand(t,
		"--config", configPath,
		"fit", docsPath,
		"--topics", "2",
		"--history", historyPath,
		"--output", outputPath,
		"--db", dbPath,
		"--json",
	)
	if err != nil {
		t.Fatalf("fit error = %v", err)
	}

	var result struct {
		Assignments []int    `json:"topic_assignments"`
		Names       []string `json:"topic_names"`
		TopicCount  int      `json:"topic_count"`
		RunID       string   `json:"run_id"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if result.TopicCount != 2 {
		t.Errorf("topic_count = %d, want 2", result.TopicCount)
	}
	if len(result.Assignments) != 12 {
		t.Fatalf("got %d assignments, want 12", len(result.Assignments))
	}
	for i, idx := range result.Assignments {
		if idx != i%2 {
			t.Errorf("assignment[%d] = %d, want %d", i, idx, i%2)
		}
	}
	if result.RunID == "" {
		t.Error("Expected the run to be recorded")
	}

	history, err := reduce.ReadHistory(historyPath)
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	if len(history) != 3 {
		t.Errorf("history length = %d, want 3", len(history))
	}
	if _, err := os.Stat(outputPath); err != nil {
		t.Errorf("output file not written: %v", err)
	}

	table, err := runCommand(t, "--config", configPath, "fit", docsPath, "--topics", "2", "--history", "")
	if err != nil {
		t.Fatalf("fit (table) error = %v", err)
	}
	if !strings.Contains(table, "12 documents, 2 topics") {
		t.Errorf("summary missing:\n%s", table)
	}
}

func TestFitCommandRequiresAPIKey(t *testing.T) {
	for _, key := range []string{"OPENAI_API_KEY", "LLMTOPICS_PROVIDER", "REDIS_URL"} {
		t.Setenv(key, "")
	}
	docs := writeTestFile(t, t.TempDir(), "docs.txt", "one\ntwo\n")
	if _, err := runCommand(t, "fit", docs, "--topics", "2"); err == nil {
		t.Error("Expected a validation error without an API key")
	}
}
