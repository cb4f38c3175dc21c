package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/botirk38/llmtopics/types"
)

func generateResponse(text string) string {
	body := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
	}
	raw, _ := json.Marshal(body)
	return string(raw)
}

func newTestProvider(t *testing.T, status int, body string, captured *map[string]any) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if captured != nil {
			_ = json.Unmarshal(raw, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	provider, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGeminiProvider() error = %v", err)
	}
	return provider
}

func TestGeminiProvider_Complete(t *testing.T) {
	captured := map[string]any{}
	provider := newTestProvider(t, http.StatusOK, generateResponse(`{"topics": ["x"]}`), &captured)

	obj, err := provider.Complete(context.Background(), types.Request{Prompt: "distill", System: "json only", MaxTokens: 100})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if _, ok := obj["topics"]; !ok {
		t.Errorf("unexpected object %v", obj)
	}
	genConfig, ok := captured["generationConfig"].(map[string]any)
	if !ok {
		t.Fatalf("expected generationConfig in request, got %v", captured)
	}
	if genConfig["responseMimeType"] != "application/json" {
		t.Errorf("responseMimeType = %v", genConfig["responseMimeType"])
	}
}

func TestGeminiProvider_Failures(t *testing.T) {
	t.Run("logprobs unsupported", func(t *testing.T) {
		provider := newTestProvider(t, http.StatusOK, generateResponse(`{}`), nil)
		_, err := provider.Complete(context.Background(), types.Request{Prompt: "p", Logprobs: true})
		if !errors.Is(err, types.ErrUnsupported) {
			t.Errorf("error = %v, want ErrUnsupported", err)
		}
	})

	t.Run("empty reply", func(t *testing.T) {
		provider := newTestProvider(t, http.StatusOK, generateResponse(""), nil)
		_, err := provider.Complete(context.Background(), types.Request{Prompt: "p"})
		if !errors.Is(err, types.ErrEmptyResponse) {
			t.Errorf("error = %v, want ErrEmptyResponse", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		provider := newTestProvider(t, http.StatusInternalServerError, `{"error": {"code": 500, "message": "boom"}}`, nil)
		if _, err := provider.Complete(context.Background(), types.Request{Prompt: "p"}); err == nil {
			t.Error("expected error")
		}
	})
}
