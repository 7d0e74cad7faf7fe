package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

func completionReply(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(body)
}

func testCandidates() []domain.DocumentType {
	return []domain.DocumentType{
		{ID: "t1", Name: "scientific presentation"},
		{ID: "t2", Name: "clinical report"},
	}
}

func TestClassifyParsesStrictJSONReply(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, completionReply(`{"documentType":"clinical report","confidence":0.87,"reasoning":"mentions patients"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "secret", Model: "test-model"})
	got, err := client.Classify(context.Background(), "patient presented with", testCandidates())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.DocumentType != "clinical report" {
		t.Errorf("document type = %q", got.DocumentType)
	}
	if got.Confidence != 0.87 {
		t.Errorf("confidence = %v", got.Confidence)
	}

	msgs, _ := captured["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(msgs))
	}
	system, _ := msgs[0].(map[string]any)
	sysContent, _ := system["content"].(string)
	if !strings.Contains(sysContent, "scientific presentation") || !strings.Contains(sysContent, "clinical report") {
		t.Errorf("system prompt should enumerate candidate types, got %q", sysContent)
	}
	if !strings.Contains(sysContent, "JSON") {
		t.Errorf("system prompt should demand JSON, got %q", sysContent)
	}
}

func TestClassifyExtractsJSONWrappedInProse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionReply("Sure! Here's the JSON: {\"documentType\":\"report\",\"confidence\":0.5,\"reasoning\":\"looks {like} a report\"} hope that helps"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	got, err := client.Classify(context.Background(), "content", nil)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.DocumentType != "report" {
		t.Errorf("document type = %q", got.DocumentType)
	}
	if got.Reasoning != "looks {like} a report" {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
}

func TestClassifyReplyWithoutJSONIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionReply("I cannot classify this document, sorry."))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Classify(context.Background(), "content", nil)
	ce, ok := domain.AsClassifierError(err)
	if !ok {
		t.Fatalf("expected ClassifierError, got %v", err)
	}
	if ce.Kind != domain.ClassifierMalformedResponse {
		t.Fatalf("kind = %s, want malformedResponse", ce.Kind)
	}
}

func TestClassifySchemaViolationIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionReply(`{"documentType":"report","confidence":1.7,"reasoning":"confidence out of range"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Classify(context.Background(), "content", nil)
	ce, ok := domain.AsClassifierError(err)
	if !ok {
		t.Fatalf("expected ClassifierError, got %v", err)
	}
	if ce.Kind != domain.ClassifierMalformedResponse {
		t.Fatalf("kind = %s, want malformedResponse", ce.Kind)
	}
}

func TestClassifyUnauthorizedIsAuthentication(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "wrong"})
	_, err := client.Classify(context.Background(), "content", nil)
	ce, ok := domain.AsClassifierError(err)
	if !ok {
		t.Fatalf("expected ClassifierError, got %v", err)
	}
	if ce.Kind != domain.ClassifierAuthentication {
		t.Fatalf("kind = %s, want authentication", ce.Kind)
	}
	if domain.Retryable(err) {
		t.Fatal("authentication errors must not be retryable")
	}
	if !domain.Fatal(err) {
		t.Fatal("authentication errors abort the batch")
	}
}

func TestClassifyServerErrorIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Classify(context.Background(), "content", nil)
	ce, ok := domain.AsClassifierError(err)
	if !ok {
		t.Fatalf("expected ClassifierError, got %v", err)
	}
	if ce.Kind != domain.ClassifierNetwork {
		t.Fatalf("kind = %s, want network", ce.Kind)
	}
	if !strings.Contains(err.Error(), "upstream exploded") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.Retryable(err) {
		t.Fatal("network errors are retryable")
	}
}

type backoffSpy struct {
	calls []time.Duration
}

func (b *backoffSpy) RecordServerBackoff(retryAfter time.Duration) {
	b.calls = append(b.calls, retryAfter)
}

func TestClassifyRateLimitedPausesTheGate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	spy := &backoffSpy{}
	client := NewClient(Config{BaseURL: server.URL, Backoff: spy})
	_, err := client.Classify(context.Background(), "content", nil)
	ce, ok := domain.AsClassifierError(err)
	if !ok {
		t.Fatalf("expected ClassifierError, got %v", err)
	}
	if ce.Kind != domain.ClassifierNetwork {
		t.Fatalf("kind = %s, want network", ce.Kind)
	}
	if len(spy.calls) != 1 {
		t.Fatalf("backoff recorded %d times, want 1", len(spy.calls))
	}
	if spy.calls[0] != 7*time.Second {
		t.Fatalf("retry-after = %v, want 7s", spy.calls[0])
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("12"); got != 12*time.Second {
		t.Fatalf("seconds form = %v, want 12s", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Fatalf("missing header = %v, want 0", got)
	}
	if got := parseRetryAfter("garbage"); got != 0 {
		t.Fatalf("unparseable header = %v, want 0", got)
	}
	when := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(when); got <= 0 || got > 90*time.Second {
		t.Fatalf("http-date form = %v, want just under 90s", got)
	}
}

func TestClassifyTimeoutIsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, completionReply(`{"documentType":"x","confidence":0.1,"reasoning":"slow"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: 30 * time.Millisecond})
	_, err := client.Classify(context.Background(), "content", nil)
	ce, ok := domain.AsClassifierError(err)
	if !ok {
		t.Fatalf("expected ClassifierError, got %v", err)
	}
	if ce.Kind != domain.ClassifierTimeout {
		t.Fatalf("kind = %s, want timeout", ce.Kind)
	}
	if !domain.Retryable(err) {
		t.Fatal("timeouts are retryable")
	}
}

func TestClassifyUnreachableEndpointIsNetwork(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	_, err := client.Classify(context.Background(), "content", nil)
	ce, ok := domain.AsClassifierError(err)
	if !ok {
		t.Fatalf("expected ClassifierError, got %v", err)
	}
	if ce.Kind != domain.ClassifierNetwork && ce.Kind != domain.ClassifierTimeout {
		t.Fatalf("kind = %s, want network or timeout", ce.Kind)
	}
}

func TestClassifyDoesNotRetryOnItsOwn(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "flaky", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Classify(context.Background(), "content", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("client must not retry, got %d calls", calls)
	}
}
