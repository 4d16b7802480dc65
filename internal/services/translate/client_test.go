package translate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dubber/internal/services"
	"dubber/internal/services/translate"
)

func chatBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func TestTranslateSuccess(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("GroupId"); got != "group-1" {
			t.Errorf("expected GroupId query param, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(chatBody(t, "Hello there."))
	}))
	defer server.Close()

	client := translate.NewClient(translate.Config{
		APIKey:      "key",
		GroupID:     "group-1",
		BaseURL:     server.URL,
		Model:       "MiniMax-Text-01",
		Temperature: 0.01,
	})

	got, err := client.Translate(context.Background(), "你好。", "English")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "Hello there." {
		t.Fatalf("unexpected translation %q", got)
	}

	if captured["model"] != "MiniMax-Text-01" || captured["temperature"] != 0.01 {
		t.Fatalf("unexpected request basics: %v", captured)
	}
	if captured["top_p"] != 0.95 {
		t.Fatalf("expected top_p 0.95, got %v", captured["top_p"])
	}
	messages := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user message, got %d", len(messages))
	}
	user := messages[1].(map[string]any)
	content := user["content"].(string)
	if !strings.Contains(content, "你好。") || !strings.Contains(content, "English") {
		t.Fatalf("expected source text and language in prompt, got %q", content)
	}
}

func TestAdjustLengthPromptsIncludeBudget(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(chatBody(t, "Shorter text."))
	}))
	defer server.Close()

	client := translate.NewClient(translate.Config{APIKey: "key", BaseURL: server.URL})
	got, err := client.AdjustLength(
		context.Background(),
		"原始文本",
		"A somewhat longer translated sentence.",
		"English",
		20,
		translate.Shorten,
	)
	if err != nil {
		t.Fatalf("AdjustLength failed: %v", err)
	}
	if got != "Shorter text." {
		t.Fatalf("unexpected rewrite %q", got)
	}

	messages := captured["messages"].([]any)
	content := messages[1].(map[string]any)["content"].(string)
	if !strings.Contains(content, "20") {
		t.Fatalf("expected character budget in prompt, got %q", content)
	}
	if !strings.Contains(content, "A somewhat longer translated sentence.") {
		t.Fatalf("expected current text in prompt, got %q", content)
	}
}

func TestAdjustLengthRejectsUnknownDirection(t *testing.T) {
	client := translate.NewClient(translate.Config{APIKey: "key"})
	_, err := client.AdjustLength(context.Background(), "a", "b", "English", 10, translate.Direction("stretch"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTranslateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(chatBody(t, "ok"))
	}))
	defer server.Close()

	client := translate.NewClient(
		translate.Config{APIKey: "key", BaseURL: server.URL},
		translate.WithSleeper(func(time.Duration) {}),
	)

	got, err := client.Translate(context.Background(), "文本", "English")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "ok" || calls.Load() != 2 {
		t.Fatalf("expected success on second attempt, got %q after %d calls", got, calls.Load())
	}
}

func TestTranslateClassifiesClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := translate.NewClient(
		translate.Config{APIKey: "key", BaseURL: server.URL},
		translate.WithSleeper(func(time.Duration) {}),
	)

	_, err := client.Translate(context.Background(), "文本", "English")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retries on 400, got %d calls", calls.Load())
	}
}

func TestTranslateValidation(t *testing.T) {
	client := translate.NewClient(translate.Config{APIKey: "key"})

	if _, err := client.Translate(context.Background(), "  ", "English"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty text, got %v", err)
	}
	if _, err := client.Translate(context.Background(), "text", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty language, got %v", err)
	}

	unconfigured := translate.NewClient(translate.Config{})
	if _, err := unconfigured.Translate(context.Background(), "text", "English"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing api key, got %v", err)
	}
}

func TestRequestPacing(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write(chatBody(t, "ok"))
	}))
	defer server.Close()

	var slept []time.Duration
	client := translate.NewClient(translate.Config{
		APIKey:              "key",
		BaseURL:             server.URL,
		Model:               "MiniMax-Text-01",
		RequestDelaySeconds: 2,
	}, translate.WithSleeper(func(d time.Duration) {
		slept = append(slept, d)
	}))

	ctx := context.Background()
	if _, err := client.Translate(ctx, "第一句", "English"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := client.Translate(ctx, "第二句", "English"); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if calls.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", calls.Load())
	}
	// The first call goes straight through; the second waits out the
	// configured spacing.
	if len(slept) != 1 {
		t.Fatalf("expected one pacing sleep, got %v", slept)
	}
	if slept[0] <= 0 || slept[0] > 2*time.Second {
		t.Fatalf("unexpected pacing delay %v", slept[0])
	}
}
