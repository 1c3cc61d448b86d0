package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	DefaultMaxResponseBytes = 64 * 1024 // 64KB
	DefaultTimeout          = 30 * time.Second
)

// ToolCaller dispatches one tool call by name.
type ToolCaller interface {
	Call(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Guard bounds a single tool invocation in time and output size.
type Guard struct {
	MaxResponseBytes int
	Timeout          time.Duration
}

// NewGuard returns a guard with the given limits. Zero disables a limit.
func NewGuard(maxResponseBytes int, timeout time.Duration) *Guard {
	return &Guard{
		MaxResponseBytes: maxResponseBytes,
		Timeout:          timeout,
	}
}

// Truncate caps s at MaxResponseBytes, cutting on a rune boundary. Zero
// disables the cap.
func (g *Guard) Truncate(s string) string {
	if g.MaxResponseBytes <= 0 || len(s) <= g.MaxResponseBytes {
		return s
	}
	cut := g.MaxResponseBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n[truncated: response exceeded size limit]"
}

// Execute runs the call with the guard's timeout. A tool that ignores its
// context is abandoned when the timeout fires; its result is discarded.
func (g *Guard) Execute(ctx context.Context, tools ToolCaller, name string, args json.RawMessage) (string, error) {
	callCtx := ctx
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := tools.Call(callCtx, name, args)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		return g.Truncate(r.out), nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("tool %q timed out after %s", name, g.Timeout)
	}
}
