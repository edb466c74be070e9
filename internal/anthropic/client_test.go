package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/verdict/internal/classifier"
)

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient("test-key", "test-model", 100, WithBaseURL(url), WithRetry(2, time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func reply(w http.ResponseWriter, stop string, texts ...string) {
	blocks := make([]map[string]any, len(texts))
	for i, s := range texts {
		blocks[i] = map[string]any{"type": "text", "text": s}
	}
	json.NewEncoder(w).Encode(map[string]any{
		"content":     blocks,
		"stop_reason": stop,
		"usage":       map[string]any{"input_tokens": 12, "output_tokens": 3},
	})
}

func TestCreate_RequestShapeAndUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != apiVersion {
			t.Errorf("anthropic-version = %q", got)
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" || req.MaxTokens != 100 || req.System != "be terse" {
			t.Errorf("unexpected request: %+v", req)
		}
		reply(w, "end_turn", "wor", "ld")
	}))
	defer server.Close()

	out, err := testClient(t, server.URL).Create(context.Background(), "be terse", []Message{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "world" {
		t.Errorf("text = %q, want world", out.Text)
	}
	if out.InputTokens != 12 || out.OutputTokens != 3 || out.StopReason != "end_turn" {
		t.Errorf("unexpected accounting: %+v", out)
	}
}

func TestSession_SendsPayloadAsSingleUserTurn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		json.NewDecoder(r.Body).Decode(&req)
		if req.System != "stage one" {
			t.Errorf("system = %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != `{"conversation":[]}` {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		reply(w, "end_turn", "[]")
	}))
	defer server.Close()

	sess, err := testClient(t, server.URL).Open(context.Background(), "stage one")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	out, err := sess.Send(context.Background(), `{"conversation":[]}`)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out != "[]" {
		t.Errorf("got %q, want []", out)
	}
}

func TestSession_Truncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply(w, "max_tokens", `[{"id":"1","keywo`)
	}))
	defer server.Close()

	sess, _ := testClient(t, server.URL).Open(context.Background(), "")
	if _, err := sess.Send(context.Background(), "{}"); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestSession_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply(w, "end_turn")
	}))
	defer server.Close()

	sess, _ := testClient(t, server.URL).Open(context.Background(), "")
	if _, err := sess.Send(context.Background(), "{}"); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestCreate_RetriesOverloaded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(529)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"type": "overloaded_error", "message": "busy"}})
			return
		}
		reply(w, "end_turn", "ok")
	}))
	defer server.Close()

	out, err := testClient(t, server.URL).Create(context.Background(), "", []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "ok" || calls.Load() != 3 {
		t.Errorf("text %q after %d calls", out.Text, calls.Load())
	}
}

func TestCreate_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).Create(context.Background(), "", []Message{{Role: "user", Content: "hi"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestCreate_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "message": "max_tokens is too large"},
		})
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).Create(context.Background(), "", []Message{{Role: "user", Content: "hi"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Type != "invalid_request_error" || apiErr.Message != "max_tokens is too large" {
		t.Errorf("unexpected error body: %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient("", "test-model", 0)
	if !errors.Is(err, classifier.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestCreate_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(529)
	}))
	defer server.Close()

	c, err := NewClient("test-key", "test-model", 100, WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Create(context.Background(), "", []Message{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}
