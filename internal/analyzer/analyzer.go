// Package analyzer classifies a screenshot against the user's stated
// intent and, when they have drifted, phrases a nudge in the persona's
// voice.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/athenahq/athena/internal/metrics"
	"github.com/athenahq/athena/internal/provider"
	"github.com/athenahq/athena/internal/retry"
)

type Status string

const (
	StatusOnTrack  Status = "on_track"
	StatusOffTrack Status = "off_track"
	StatusUnknown  Status = "unknown"
)

const (
	noImageReasoning  = "No image provided"
	fallbackReasoning = "Failed to get valid response after retries"
)

// Result is the analysis returned to callers. Nudge is set only for
// StatusOffTrack.
type Result struct {
	Status     Status  `json:"status"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Nudge      *string `json:"nudge"`
}

// classification is the reply the vision model must produce.
type classification struct {
	Status     Status  `json:"status" jsonschema:"enum=on_track,enum=off_track,enum=unknown"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Reasoning  string  `json:"reasoning"`
}

type LLMClient interface {
	Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error)
}

// PersonaSource supplies the system prompt for persona-voiced calls.
type PersonaSource interface {
	FormattedContext() string
}

type Option func(*Analyzer)

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithMaxAttempts sets the classification attempt budget.
func WithMaxAttempts(n int) Option {
	return func(a *Analyzer) { a.maxAttempts = n }
}

type Analyzer struct {
	llm         LLMClient
	persona     PersonaSource
	validator   retry.Validator
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func New(llm LLMClient, persona PersonaSource, opts ...Option) (*Analyzer, error) {
	v, err := retry.SchemaFor[classification]()
	if err != nil {
		return nil, fmt.Errorf("classification schema: %w", err)
	}
	a := &Analyzer{
		llm:         llm,
		persona:     persona,
		validator:   v,
		maxAttempts: retry.DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze classifies imageBase64 against intent. Without an image no
// inference is made. Otherwise the classification and the persona nudge
// run concurrently and are joined; a failure in one does not affect the
// other.
func (a *Analyzer) Analyze(ctx context.Context, intent, imageBase64 string) Result {
	if strings.TrimSpace(imageBase64) == "" {
		return Result{Status: StatusUnknown, Confidence: 0, Reasoning: noImageReasoning}
	}
	img := provider.ImageFromBase64(imageBase64)

	var (
		wg       sync.WaitGroup
		cls      retry.Result[classification]
		nudge    string
		nudgeErr error
	)
	wg.Go(func() { cls = a.classify(ctx, intent, img) })
	wg.Go(func() { nudge, nudgeErr = a.personaNudge(ctx, intent) })
	wg.Wait()

	res := Result{
		Status:     cls.Value.Status,
		Confidence: cls.Value.Confidence,
		Reasoning:  cls.Value.Reasoning,
	}
	if res.Status == StatusOffTrack {
		text := strings.TrimSpace(nudge)
		if nudgeErr != nil || text == "" {
			if nudgeErr != nil {
				a.logger.Warn("persona nudge failed, using template", "error", nudgeErr)
			}
			text = templateNudge(intent)
		}
		res.Nudge = &text
	}

	a.metrics.AnalysisFinished(string(res.Status), cls.FellBack)
	a.logger.Info("task analyzed",
		"status", res.Status,
		"confidence", res.Confidence,
		"attempts", cls.Attempts,
		"fell_back", cls.FellBack)
	return res
}

func (a *Analyzer) classify(ctx context.Context, intent string, img provider.Image) retry.Result[classification] {
	req := &provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: classificationSystemPrompt},
			{Role: provider.RoleUser, Content: classificationUserPrompt(intent), Images: []provider.Image{img}},
		},
	}
	op := func(ctx context.Context) (string, error) {
		resp, err := a.llm.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
	return retry.Do(ctx, op, retry.Policy[classification]{
		MaxAttempts: a.maxAttempts,
		Validate:    a.validator,
		Fallback:    classification{Status: StatusUnknown, Confidence: 0, Reasoning: fallbackReasoning},
		Annotate: func(fb classification, lastErr string) classification {
			fb.Reasoning = fmt.Sprintf("%s (Last error: %s)", fb.Reasoning, lastErr)
			return fb
		},
		OnFailure: func(attempt int, reason string) {
			a.metrics.StructuredOutputFailed()
			a.logger.Debug("classification attempt failed", "attempt", attempt, "reason", reason)
		},
	})
}

// personaNudge runs for every analysis; its text is used only when the
// classification comes back off track.
func (a *Analyzer) personaNudge(ctx context.Context, intent string) (string, error) {
	resp, err := a.llm.Complete(ctx, &provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: a.persona.FormattedContext()},
			{Role: provider.RoleUser, Content: nudgeUserPrompt(intent)},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
