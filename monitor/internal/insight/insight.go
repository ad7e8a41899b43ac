// Package insight asks an LLM for a structured judgment about a change
// event. It is a best-effort collaborator: any failure leaves the event
// standing unannotated.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Adversit/competitor-intel/monitor/internal/store"
)

// Annotator produces at most one insight for a change event.
type Annotator interface {
	Analyze(ctx context.Context, src *store.Source, ev *store.ChangeEvent) (*store.Insight, error)
}

// Composer produces free-form markdown from a single prompt. Battlecard
// generation uses it; callers treat a nil composer as "LLM drafting
// disabled" and fall back to their template.
type Composer interface {
	Compose(ctx context.Context, prompt string) (string, error)
}

// Config configures the OpenAI-backed annotator. An empty APIKey disables
// annotation entirely.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string        // default gpt-4o
	Timeout time.Duration // per-request bound, default 60s
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// Evidence is one supporting observation in an insight.
type Evidence struct {
	Snippet   string `json:"snippet"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
}

// annotation is the JSON object the model is asked to produce.
type annotation struct {
	ChangeType       string     `json:"change_type"`
	Impact           string     `json:"impact"`
	Intent           string     `json:"intent"`
	Rationale        string     `json:"rationale"`
	SuggestedActions []string   `json:"suggested_actions"`
	Evidence         []Evidence `json:"evidence"`
}

// OpenAIAnnotator implements Annotator over chat completions.
type OpenAIAnnotator struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New returns an annotator, or nil when no API key is configured. Callers
// treat a nil annotator as "annotation disabled".
func New(cfg Config, logger *slog.Logger) *OpenAIAnnotator {
	if cfg.APIKey == "" {
		return nil
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIAnnotator{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "insight"),
	}
}

const systemPrompt = `You are a competitive-intelligence analyst. Given a detected change on a competitor's web page, return a single JSON object with these keys:
  change_type: one of feature, pricing, packaging, narrative, channel, compliance
  impact: one of high, medium, low
  intent: one short sentence on what the competitor is likely doing
  rationale: one short paragraph justifying the classification
  suggested_actions: array of short action strings
  evidence: array of {snippet, url, timestamp} objects quoting the change
Return only the JSON object, no prose.`

// Analyze requests a judgment for the event's diff and parses it into an
// Insight row (not yet persisted).
func (a *OpenAIAnnotator) Analyze(ctx context.Context, src *store.Source, ev *store.ChangeEvent) (*store.Insight, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	user := fmt.Sprintf("Source: %s (%s page of competitor %s)\nDetected change: %s\nDiff chunks (JSON): %s",
		src.URL, src.SourceType, src.CompetitorID, ev.DiffSummary, clip(ev.DiffChunksJSON, 6000))

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(1024),
	})
	if err != nil {
		return nil, fmt.Errorf("annotation request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("annotation response has no choices")
	}
	a.logger.Debug("annotation completed",
		"model", a.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"completion_tokens", resp.Usage.CompletionTokens)

	return parseAnnotation(ev.ID, resp.Choices[0].Message.Content)
}

// Compose sends one prompt and returns the completion text with any code
// fences stripped.
func (a *OpenAIAnnotator) Compose(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(2048),
	})
	if err != nil {
		return "", fmt.Errorf("compose request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("compose response has no choices")
	}
	return stripFences(resp.Choices[0].Message.Content), nil
}

// parseAnnotation converts the model's JSON reply into an Insight row.
// Tolerates markdown code fences around the object.
func parseAnnotation(eventID, content string) (*store.Insight, error) {
	var ann annotation
	if err := json.Unmarshal([]byte(stripFences(content)), &ann); err != nil {
		return nil, fmt.Errorf("parse annotation: %w", err)
	}
	if !validChangeType(ann.ChangeType) {
		ann.ChangeType = "narrative"
	}
	if !validImpact(ann.Impact) {
		ann.Impact = "medium"
	}

	actions, err := json.Marshal(orEmpty(ann.SuggestedActions))
	if err != nil {
		return nil, fmt.Errorf("marshal actions: %w", err)
	}
	evidence, err := json.Marshal(orEmptyEvidence(ann.Evidence))
	if err != nil {
		return nil, fmt.Errorf("marshal evidence: %w", err)
	}

	return &store.Insight{
		ChangeEventID:        eventID,
		ChangeType:           ann.ChangeType,
		Impact:               ann.Impact,
		Intent:               ann.Intent,
		Rationale:            ann.Rationale,
		SuggestedActionsJSON: string(actions),
		EvidenceJSON:         string(evidence),
	}, nil
}

func validChangeType(s string) bool {
	switch s {
	case "feature", "pricing", "packaging", "narrative", "channel", "compliance":
		return true
	}
	return false
}

func validImpact(s string) bool {
	switch s {
	case "high", "medium", "low":
		return true
	}
	return false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop the language tag (json, markdown, ...) on the fence line.
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyEvidence(e []Evidence) []Evidence {
	if e == nil {
		return []Evidence{}
	}
	return e
}
