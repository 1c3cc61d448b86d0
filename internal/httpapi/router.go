// Package httpapi exposes the orchestrator, the analyzer and the persona
// over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/athenahq/athena/internal/analyzer"
	"github.com/athenahq/athena/internal/event"
	"github.com/athenahq/athena/internal/metrics"
	"github.com/athenahq/athena/internal/orchestrator"
	"github.com/athenahq/athena/internal/persona"
	"github.com/athenahq/athena/internal/provider"
)

const DefaultMaxRequestBodyBytes = 20 << 20 // screenshots arrive inline as base64

type Orchestrator interface {
	Stream(ctx context.Context, prompt string) <-chan event.Event
	Run(ctx context.Context, prompt string) *orchestrator.RunResult
}

type Analyzer interface {
	Analyze(ctx context.Context, intent, imageBase64 string) analyzer.Result
}

type Persona interface {
	Description() string
	Set(ctx context.Context, description string) error
}

type LLMClient interface {
	Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error)
}

type Config struct {
	CORSOrigins         []string
	Heartbeat           time.Duration
	MaxRequestBodyBytes int64
}

type Deps struct {
	Orchestrator Orchestrator
	Analyzer     Analyzer
	Persona      Persona
	// Vision answers /core/ping.
	Vision  LLMClient
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type handlers struct {
	deps Deps
	cfg  Config
	log  *slog.Logger
}

func NewRouter(deps Deps, cfg Config) http.Handler {
	if cfg.MaxRequestBodyBytes <= 0 {
		cfg.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}
	if cfg.Heartbeat < 0 {
		cfg.Heartbeat = 0
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{deps: deps, cfg: cfg, log: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tool-calling/execute-stream", h.handleExecuteStream)
	mux.HandleFunc("POST /tool-calling/execute", h.handleExecute)
	mux.HandleFunc("POST /core/track-task", h.handleTrackTask)
	mux.HandleFunc("GET /core/agent-personality", h.handleGetPersona)
	mux.HandleFunc("POST /core/agent-personality", h.handleSetPersona)
	mux.HandleFunc("POST /core/ping", h.handlePing)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	return chain(
		requestLogging(logger, deps.Metrics),
		cors(cfg.CORSOrigins),
		limitBody(cfg.MaxRequestBodyBytes),
	)(mux)
}

func limitBody(n int64) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (h *handlers) decodePrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req promptRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeRequestError(w, err)
		return "", false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, errorCodeInvalidRequest, "prompt is required")
		return "", false
	}
	return req.Prompt, true
}

func (h *handlers) handleExecuteStream(w http.ResponseWriter, r *http.Request) {
	prompt, ok := h.decodePrompt(w, r)
	if !ok {
		return
	}
	stream := event.NewStream(w, h.cfg.Heartbeat)
	w.WriteHeader(http.StatusOK)

	err := stream.StreamEvents(r.Context(), h.deps.Orchestrator.Stream(r.Context(), prompt))
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.Warn("event stream ended early", "error", err)
	}
}

func (h *handlers) handleExecute(w http.ResponseWriter, r *http.Request) {
	prompt, ok := h.decodePrompt(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Orchestrator.Run(r.Context(), prompt))
}

type trackTaskRequest struct {
	Intent      string `json:"intent"`
	ImageBase64 string `json:"image_base64"`
}

func (h *handlers) handleTrackTask(w http.ResponseWriter, r *http.Request) {
	var req trackTaskRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Analyzer.Analyze(r.Context(), req.Intent, req.ImageBase64))
}

type personaRequest struct {
	PersonalityDescription string `json:"personality_description"`
}

type personaResponse struct {
	PersonalityDescription string `json:"personality_description"`
	Message                string `json:"message,omitempty"`
}

func (h *handlers) handleGetPersona(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, personaResponse{PersonalityDescription: h.deps.Persona.Description()})
}

func (h *handlers) handleSetPersona(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	if err := h.deps.Persona.Set(r.Context(), req.PersonalityDescription); err != nil {
		if errors.Is(err, persona.ErrEmptyDescription) {
			writeError(w, http.StatusBadRequest, errorCodeInvalidRequest, err.Error())
			return
		}
		h.log.Error("persona update failed", "error", err)
		writeError(w, http.StatusInternalServerError, errorCodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, personaResponse{
		PersonalityDescription: h.deps.Persona.Description(),
		Message:                "Agent personality updated successfully",
	})
}

type pingMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type pingRequest struct {
	Context     string        `json:"context"`
	Prompt      string        `json:"prompt"`
	ImageBase64 string        `json:"image_base64"`
	Messages    []pingMessage `json:"messages"`
}

type pingResponse struct {
	Result string `json:"result"`
}

// handlePing sends one raw inference: system context, optional prior
// turns, then the prompt with the optional image.
func (h *handlers) handlePing(w http.ResponseWriter, r *http.Request) {
	var req pingRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	msgs := []provider.Message{{Role: provider.RoleSystem, Content: req.Context}}
	for i, m := range req.Messages {
		role := provider.Role(m.Role)
		if role != provider.RoleUser && role != provider.RoleAssistant {
			writeError(w, http.StatusBadRequest, errorCodeInvalidRequest,
				fmt.Sprintf("messages[%d].role must be user or assistant", i))
			return
		}
		msgs = append(msgs, provider.Message{Role: role, Content: m.Content})
	}
	user := provider.Message{Role: provider.RoleUser, Content: req.Prompt}
	if strings.TrimSpace(req.ImageBase64) != "" {
		user.Images = []provider.Image{provider.ImageFromBase64(req.ImageBase64)}
	}
	msgs = append(msgs, user)

	resp, err := h.deps.Vision.Complete(r.Context(), &provider.CompletionRequest{Messages: msgs})
	if err != nil {
		h.log.Error("ping inference failed", "error", err)
		writeError(w, http.StatusBadGateway, errorCodeUpstream, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pingResponse{Result: resp.Content})
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
