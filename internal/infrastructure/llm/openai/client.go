package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// Executor guards the shared model endpoint with a circuit breaker.
	// Retry stays with the batch executor; this client never re-sends a
	// request on its own.
	Executor *resilience.Executor
	// Backoff receives the server's Retry-After hint after a 429 so the
	// request gate can pause refills for every caller.
	Backoff Backoff
	Logger  *slog.Logger
}

// Backoff pauses outbound requests after an upstream rate limit reply.
type Backoff interface {
	RecordServerBackoff(retryAfter time.Duration)
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 800
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config) *Client {
	cfg.normalize()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        cfg.Logger,
	}
}

// Classify sends content to the model and parses its strict JSON verdict.
// Every failure is a ClassifierError; parsing problems come back as kind
// malformedResponse so the batch retry budget governs them.
func (c *Client) Classify(ctx context.Context, content string, candidates []domain.DocumentType) (domain.Classification, error) {
	start := time.Now()
	c.log.Info("classifier.request",
		"model", c.cfg.Model,
		"content_chars", len(content),
		"candidate_types", len(candidates),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(candidates)},
			{"role": "user", "content": buildUserPrompt(content)},
		},
	}

	var raw []byte
	call := func(ctx context.Context) error {
		var err error
		raw, err = c.post(ctx, c.cfg.BaseURL+"/chat/completions", body)
		return err
	}

	var err error
	if c.cfg.Executor != nil {
		err = c.cfg.Executor.Execute(ctx, "classify", call, classifyTransportError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		c.log.Warn("classifier.transport_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return domain.Classification{}, toClassifierError(ctx, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return domain.Classification{}, domain.NewClassifierError(domain.ClassifierMalformedResponse, "decode completion envelope", err)
	}
	if len(cc.Choices) == 0 {
		return domain.Classification{}, domain.NewClassifierError(domain.ClassifierMalformedResponse, "no choices in completion", nil)
	}

	reply := strings.TrimSpace(cc.Choices[0].Message.Content)
	object, ok := extractJSONObject(reply)
	if !ok {
		return domain.Classification{}, domain.NewClassifierError(domain.ClassifierMalformedResponse, "unparseable response: no JSON object found", nil)
	}
	if err := validateClassification([]byte(object)); err != nil {
		return domain.Classification{}, domain.NewClassifierError(domain.ClassifierMalformedResponse, "response violates classification schema", err)
	}

	var result domain.Classification
	if err := json.Unmarshal([]byte(object), &result); err != nil {
		return domain.Classification{}, domain.NewClassifierError(domain.ClassifierMalformedResponse, "parse classification json", err)
	}

	c.log.Info("classifier.response",
		"document_type", result.DocumentType,
		"confidence", result.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
