// Package orchestrator runs the multi-turn tool-calling loop: the model is
// offered every registered tool, its tool calls are executed in order and
// fed back, until it answers without tools or the iteration ceiling is hit.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/athenahq/athena/internal/event"
	"github.com/athenahq/athena/internal/metrics"
	"github.com/athenahq/athena/internal/provider"
)

const (
	DefaultMaxIterations = 10
	DefaultRunTimeout    = 5 * time.Minute

	DefaultSystemPrompt = "You are a helpful assistant that can manage emails, Github, and Google Docs. " +
		"When given multi-step tasks, execute them step by step using available tools. " +
		"Always complete the entire requested task."
)

const (
	startedMessage       = "Tool calling execution started"
	completedFallback    = "Task completed"
	maxIterationsMessage = "Reached maximum iterations limit"
	iterationLimitResult = "Task execution stopped due to iteration limit"
)

type LLMClient interface {
	Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error)
}

// ToolRegistry is the view of the tool registry the loop needs.
type ToolRegistry interface {
	ToolCaller
	Schemas() []provider.ToolSpec
}

type Config struct {
	MaxIterations  int
	RunTimeout     time.Duration
	ToolTimeout    time.Duration
	MaxOutputBytes int
	SystemPrompt   string
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultTimeout
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = DefaultMaxResponseBytes
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	return c
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator holds no per-run state; concurrent runs are independent.
type Orchestrator struct {
	llm     LLMClient
	tools   ToolRegistry
	cfg     Config
	guard   *Guard
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(llm LLMClient, tools ToolRegistry, cfg Config, opts ...Option) *Orchestrator {
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		llm:    llm,
		tools:  tools,
		cfg:    cfg,
		guard:  NewGuard(cfg.MaxOutputBytes, cfg.ToolTimeout),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeMaxIterations Outcome = "max_iterations_reached"
	OutcomeError         Outcome = "error"
	OutcomeCancelled     Outcome = "cancelled"
)

// ToolInvocation records one executed tool call. Successful calls always
// carry result, possibly empty; failed calls carry error instead.
type ToolInvocation struct {
	Function  string          `json:"function"`
	Arguments json.RawMessage `json:"arguments"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Iteration int             `json:"iteration"`
	Success   bool            `json:"success"`
}

func (t ToolInvocation) MarshalJSON() ([]byte, error) {
	type plain ToolInvocation
	if !t.Success {
		return json.Marshal(plain(t))
	}
	return json.Marshal(struct {
		Function  string          `json:"function"`
		Arguments json.RawMessage `json:"arguments"`
		Result    string          `json:"result"`
		Iteration int             `json:"iteration"`
		Success   bool            `json:"success"`
	}{t.Function, t.Arguments, t.Result, t.Iteration, t.Success})
}

type RunResult struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message,omitempty"`
	ToolCalls []ToolInvocation `json:"tool_calls"`
	Error     string           `json:"error,omitempty"`
	Outcome   Outcome          `json:"outcome"`
}

// Stream starts a run and returns its events. The channel is closed after
// the terminal event, or early if ctx is cancelled.
func (o *Orchestrator) Stream(ctx context.Context, prompt string) <-chan event.Event {
	return o.start(ctx, prompt, "stream")
}

// Run executes a run to completion and summarises it.
func (o *Orchestrator) Run(ctx context.Context, prompt string) *RunResult {
	res := &RunResult{ToolCalls: []ToolInvocation{}}
	iteration := 0
	ended := false
	var pending *ToolInvocation

	for ev := range o.start(ctx, prompt, "sync") {
		ended = ended || event.Terminal(ev)
		switch e := ev.(type) {
		case event.ToolCallsDetected:
			iteration = e.Iteration
		case event.ToolStarted:
			pending = &ToolInvocation{Function: e.ToolName, Arguments: e.Input, Iteration: iteration}
		case event.ToolCompleted:
			if pending != nil {
				pending.Result = e.Output
				pending.Success = true
				res.ToolCalls = append(res.ToolCalls, *pending)
				pending = nil
			}
		case event.ToolError:
			if pending != nil {
				pending.Error = e.Error
				res.ToolCalls = append(res.ToolCalls, *pending)
				pending = nil
			}
		case event.FinalResult:
			res.Success = true
			res.Message = e.Message
			res.Outcome = OutcomeCompleted
		case event.MaxIterationsReached:
			res.Success = true
			res.Message = iterationLimitResult
			res.Outcome = OutcomeMaxIterations
		case event.Error:
			res = &RunResult{
				Error:     e.Message,
				ToolCalls: []ToolInvocation{},
				Outcome:   OutcomeError,
			}
		}
	}

	if !ended {
		res.Outcome = OutcomeCancelled
		res.Error = fmt.Sprintf("run cancelled: %v", context.Cause(ctx))
	}
	return res
}

func (o *Orchestrator) start(ctx context.Context, prompt, mode string) <-chan event.Event {
	out := make(chan event.Event, 16)
	go func() {
		defer close(out)
		emit := func(ev event.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		log := o.logger.With("run_id", uuid.NewString(), "mode", mode)
		begin := time.Now()
		log.Info("run started", "prompt_bytes", len(prompt))

		runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()

		outcome, iterations := o.loop(runCtx, prompt, emit, log)
		o.metrics.RunFinished(mode, string(outcome), iterations, time.Since(begin))
		log.Info("run finished", "outcome", outcome, "iterations", iterations, "duration", time.Since(begin))
	}()
	return out
}

// loop drives the conversation. Events go through emit; a false return
// means the consumer is gone and the run stops.
func (o *Orchestrator) loop(ctx context.Context, prompt string, emit func(event.Event) bool, log *slog.Logger) (Outcome, int) {
	if !emit(event.Started{Message: startedMessage}) {
		return OutcomeCancelled, 0
	}

	schemas := o.tools.Schemas()
	msgs := []provider.Message{
		{Role: provider.RoleSystem, Content: o.cfg.SystemPrompt},
		{Role: provider.RoleUser, Content: prompt},
	}

	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		resp, err := o.llm.Complete(ctx, &provider.CompletionRequest{
			Messages:   msgs,
			Tools:      schemas,
			ToolChoice: provider.ToolChoiceAuto,
		})
		if err != nil {
			log.Error("completion failed", "iteration", iteration, "error", err)
			emit(event.Error{Message: fmt.Sprintf("Error executing tool calling: %v", err)})
			return OutcomeError, iteration
		}

		calls := assignCallIDs(resp.ToolCalls)
		msgs = append(msgs, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})

		if len(calls) == 0 {
			final := resp.Content
			if strings.TrimSpace(final) == "" {
				final = completedFallback
			}
			emit(event.FinalResult{Message: final})
			return OutcomeCompleted, iteration
		}

		log.Debug("tool calls detected", "iteration", iteration, "count", len(calls))
		if !emit(event.ToolCallsDetected{Count: len(calls), Iteration: iteration}) {
			return OutcomeCancelled, iteration
		}

		for _, call := range calls {
			if !emit(event.ToolStarted{ToolName: call.Name, Input: argumentsJSON(call.Arguments)}) {
				return OutcomeCancelled, iteration
			}

			out, err := o.callTool(ctx, call, log)
			var ev event.Event
			if err != nil {
				text := o.guard.Truncate(fmt.Sprintf("Error executing %s: %v", call.Name, err))
				msgs = append(msgs, provider.Message{Role: provider.RoleTool, ToolCallID: call.ID, Content: text, IsError: true})
				ev = event.ToolError{ToolName: call.Name, Error: text}
			} else {
				msgs = append(msgs, provider.Message{Role: provider.RoleTool, ToolCallID: call.ID, Content: out})
				ev = event.ToolCompleted{ToolName: call.Name, Output: out}
			}
			if !emit(ev) {
				return OutcomeCancelled, iteration
			}
		}
	}

	log.Warn("iteration limit reached", "max_iterations", o.cfg.MaxIterations)
	emit(event.MaxIterationsReached{Message: maxIterationsMessage})
	return OutcomeMaxIterations, o.cfg.MaxIterations
}

func (o *Orchestrator) callTool(ctx context.Context, call provider.ToolCall, log *slog.Logger) (string, error) {
	begin := time.Now()
	args := json.RawMessage(call.Arguments)
	if strings.TrimSpace(call.Arguments) != "" && !json.Valid(args) {
		o.metrics.ToolCalled(call.Name, false, time.Since(begin))
		log.Warn("malformed tool arguments", "tool", call.Name)
		return "", fmt.Errorf("malformed arguments: %q is not valid JSON", call.Arguments)
	}

	out, err := o.guard.Execute(ctx, o.tools, call.Name, args)
	o.metrics.ToolCalled(call.Name, err == nil, time.Since(begin))
	if err != nil {
		log.Warn("tool failed", "tool", call.Name, "error", err)
		return "", err
	}
	log.Debug("tool completed", "tool", call.Name, "output_bytes", len(out))
	return out, nil
}

// assignCallIDs fills in missing call IDs so every tool message can
// reference the call it answers.
func assignCallIDs(calls []provider.ToolCall) []provider.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]provider.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		out[i] = c
	}
	return out
}

// argumentsJSON returns the model's argument text as JSON: verbatim when
// valid, {} when empty, otherwise as a JSON string.
func argumentsJSON(args string) json.RawMessage {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(args)
	return quoted
}
