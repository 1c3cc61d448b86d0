// Package failover sends completions down an ordered list of models,
// moving to the next one when a model fails with a retryable error.
package failover

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/athenahq/athena/internal/metrics"
	"github.com/athenahq/athena/internal/provider"
)

// Model is a completion client pinned to one model, such as
// *provider.BoundModel.
type Model interface {
	Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error)
	Ref() provider.ModelRef
}

type CooldownConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier int
}

func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		Initial:    time.Minute,
		Max:        30 * time.Minute,
		Multiplier: 5,
	}
}

type modelState struct {
	errorCount    int
	cooldownUntil time.Time
}

// Chain is safe for concurrent use.
type Chain struct {
	models   []Model
	cooldown CooldownConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	state map[provider.ModelRef]*modelState
}

type Option func(*Chain)

func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Chain) { c.metrics = m }
}

func WithCooldown(cfg CooldownConfig) Option {
	return func(c *Chain) { c.cooldown = cfg }
}

// NewChain tries primary first, then fallbacks in order. Duplicate refs are
// dropped.
func NewChain(primary Model, fallbacks []Model, opts ...Option) *Chain {
	c := &Chain{
		cooldown: DefaultCooldownConfig(),
		logger:   slog.Default(),
		now:      time.Now,
		state:    make(map[provider.ModelRef]*modelState),
	}
	seen := make(map[provider.ModelRef]bool)
	for _, m := range append([]Model{primary}, fallbacks...) {
		if m == nil || seen[m.Ref()] {
			continue
		}
		seen[m.Ref()] = true
		c.models = append(c.models, m)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ref names the primary model.
func (c *Chain) Ref() provider.ModelRef { return c.models[0].Ref() }

// Complete sends req to the first model that is not cooling down. A
// retryable failure puts that model into cooldown and moves on; any other
// error is returned as is. When every model is cooling down, all of them
// are tried anyway, in order.
func (c *Chain) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	candidates := c.available()
	attempted := make([]string, 0, len(candidates))
	var lastErr error

	for i, m := range candidates {
		if i > 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		attempted = append(attempted, m.Ref().String())
		resp, err := m.Complete(ctx, req)
		if err == nil {
			c.reset(m.Ref())
			return resp, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		until := c.markFailed(m.Ref())
		c.metrics.ModelFailover(m.Ref().String())
		c.logger.Warn("model failed, trying next",
			"model", m.Ref().String(), "error", err, "cooldown_until", until)
	}
	if len(attempted) == 1 {
		return nil, lastErr
	}
	return nil, &ExhaustedError{Attempted: attempted, Last: lastErr}
}

func (c *Chain) available() []Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		if st, ok := c.state[m.Ref()]; ok && now.Before(st.cooldownUntil) {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return c.models
	}
	return out
}

func (c *Chain) markFailed(ref provider.ModelRef) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.state[ref]
	if !ok {
		st = &modelState{}
		c.state[ref] = st
	}
	st.errorCount++
	st.cooldownUntil = c.now().Add(c.cooldownFor(st.errorCount))
	return st.cooldownUntil
}

func (c *Chain) reset(ref provider.ModelRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.state, ref)
}

func (c *Chain) cooldownFor(errorCount int) time.Duration {
	d := c.cooldown.Initial
	for i := 1; i < errorCount; i++ {
		d *= time.Duration(c.cooldown.Multiplier)
		if d > c.cooldown.Max {
			return c.cooldown.Max
		}
	}
	return d
}
