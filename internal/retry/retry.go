// Package retry re-invokes an operation that produces JSON text until the
// output decodes and validates, falling back to a caller-supplied value
// once the attempt budget is spent.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const DefaultMaxAttempts = 3

// Validator checks a decoded JSON value (maps, slices, float64, string,
// bool or nil).
type Validator interface {
	Validate(v any) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(v any) error

func (f ValidatorFunc) Validate(v any) error { return f(v) }

// Policy configures Do. Zero MaxAttempts means DefaultMaxAttempts. A nil
// Validate accepts any JSON that decodes into T. Annotate, when set, is
// applied to Fallback with the last failure reason on exhaustion.
type Policy[T any] struct {
	MaxAttempts int
	Validate    Validator
	Fallback    T
	Annotate    func(fallback T, lastErr string) T
	// OnFailure observes each failed attempt, for logging and metrics.
	OnFailure func(attempt int, reason string)
}

type Result[T any] struct {
	Value    T
	Attempts int
	FellBack bool
	LastErr  string
}

// Do runs op until one attempt decodes and validates, up to
// p.MaxAttempts times. It returns on the first success. A done ctx stops
// further attempts and yields the fallback.
func Do[T any](ctx context.Context, op func(ctx context.Context) (string, error), p Policy[T]) Result[T] {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr string
	attempts := 0
	for attempts < maxAttempts {
		if err := ctx.Err(); err != nil {
			lastErr = fmt.Sprintf("operation failed: %v", err)
			break
		}
		attempts++

		value, reason := attempt[T](ctx, op, p.Validate)
		if reason == "" {
			return Result[T]{Value: value, Attempts: attempts}
		}
		lastErr = reason
		if p.OnFailure != nil {
			p.OnFailure(attempts, reason)
		}
	}

	fallback := p.Fallback
	if p.Annotate != nil {
		fallback = p.Annotate(fallback, lastErr)
	}
	return Result[T]{Value: fallback, Attempts: attempts, FellBack: true, LastErr: lastErr}
}

// attempt returns the decoded value, or a non-empty failure reason.
func attempt[T any](ctx context.Context, op func(ctx context.Context) (string, error), v Validator) (T, string) {
	var zero T
	text, err := op(ctx)
	if err != nil {
		return zero, fmt.Sprintf("operation failed: %v", err)
	}
	text = StripCodeFence(text)

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return zero, fmt.Sprintf("JSON decode error: %v", err)
	}
	if v != nil {
		if err := v.Validate(decoded); err != nil {
			return zero, fmt.Sprintf("schema validation failed: %v", err)
		}
	}
	var out T
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return zero, fmt.Sprintf("JSON decode error: %v", err)
	}
	return out, ""
}

// StripCodeFence trims s and removes a surrounding markdown code fence,
// with or without a language tag.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := strings.TrimSuffix(s[3:], "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if !strings.ContainsAny(tag, "{[\"") {
			body = body[nl+1:]
		}
	}
	return strings.TrimSpace(body)
}
