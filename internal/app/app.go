// Package app wires configuration into the running server: providers,
// tools, persona storage, the orchestrator, the analyzer and HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"google.golang.org/api/option"

	"github.com/athenahq/athena/internal/analyzer"
	"github.com/athenahq/athena/internal/config"
	"github.com/athenahq/athena/internal/failover"
	"github.com/athenahq/athena/internal/httpapi"
	"github.com/athenahq/athena/internal/metrics"
	"github.com/athenahq/athena/internal/orchestrator"
	"github.com/athenahq/athena/internal/persona"
	"github.com/athenahq/athena/internal/provider"
	"github.com/athenahq/athena/internal/store"
	"github.com/athenahq/athena/internal/tools"
)

// App owns the wired services and the HTTP server lifecycle.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	server  *http.Server
	closers []io.Closer
}

// New validates cfg and builds every component. ctx bounds start-up work
// such as opening the persona store; it is not retained.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("new app: nil config")
	}
	if logger == nil {
		return nil, errors.New("new app: nil logger")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new app config: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}
	handler, err := a.wire(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) (http.Handler, error) {
	cfg := a.cfg
	var m *metrics.Metrics
	if cfg.Metrics.On() {
		m = metrics.New()
	}

	models, err := buildProviders(cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("new app providers: %w", err)
	}
	var fallbacks []failover.Model
	for _, ref := range cfg.Models.Fallbacks {
		fb, err := boundModel(models, ref)
		if err != nil {
			return nil, fmt.Errorf("new app fallback model: %w", err)
		}
		for _, f := range []provider.Feature{provider.FeatureTools, provider.FeatureImages} {
			if err := requireFeature(models, "fallback", fb.Ref(), f); err != nil {
				a.logger.Warn("fallback model limited", "model", ref, "error", err)
			}
		}
		fallbacks = append(fallbacks, fb)
	}
	chainOpts := []failover.Option{
		failover.WithLogger(a.logger.With("component", "failover")),
		failover.WithMetrics(m),
	}
	orchPrimary, err := boundModel(models, cfg.Models.Orchestrator)
	if err != nil {
		return nil, fmt.Errorf("new app orchestrator model: %w", err)
	}
	if err := requireFeature(models, "orchestrator", orchPrimary.Ref(), provider.FeatureTools); err != nil {
		return nil, fmt.Errorf("new app: %w", err)
	}
	orchLLM := failover.NewChain(orchPrimary, fallbacks, chainOpts...)
	visionPrimary, err := boundModel(models, cfg.Models.Vision)
	if err != nil {
		return nil, fmt.Errorf("new app vision model: %w", err)
	}
	if err := requireFeature(models, "vision", visionPrimary.Ref(), provider.FeatureImages); err != nil {
		return nil, fmt.Errorf("new app: %w", err)
	}
	vision := failover.NewChain(visionPrimary, fallbacks, chainOpts...)

	personaStore, err := a.openPersonaStore(ctx, cfg.State)
	if err != nil {
		return nil, fmt.Errorf("new app persona store: %w", err)
	}
	pm, err := persona.NewManager(ctx, personaStore, cfg.Persona.Default, a.logger.With("component", "persona"))
	if err != nil {
		return nil, fmt.Errorf("new app persona: %w", err)
	}

	an, err := analyzer.New(vision, pm,
		analyzer.WithLogger(a.logger.With("component", "analyzer")),
		analyzer.WithMetrics(m),
		analyzer.WithMaxAttempts(cfg.Analyzer.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("new app analyzer: %w", err)
	}

	registry := tools.NewRegistry(a.logger.With("component", "tools"), toolFamilies(cfg.Tools)...)
	orch := orchestrator.New(orchLLM, registry, orchestrator.Config{
		MaxIterations:  cfg.Orchestrator.MaxIterations,
		RunTimeout:     cfg.Orchestrator.RunTimeout.Std(),
		ToolTimeout:    cfg.Orchestrator.ToolTimeout.Std(),
		MaxOutputBytes: cfg.Orchestrator.MaxOutputBytes,
		SystemPrompt:   cfg.Orchestrator.SystemPrompt,
	},
		orchestrator.WithLogger(a.logger.With("component", "orchestrator")),
		orchestrator.WithMetrics(m),
	)

	providerIDs := make([]string, 0, len(cfg.Models.Providers))
	for _, p := range models.List() {
		providerIDs = append(providerIDs, p.ID())
	}
	a.logger.Info("athena wired",
		"providers", providerIDs,
		"orchestrator_model", orchLLM.Ref().String(),
		"vision_model", vision.Ref().String(),
		"fallbacks", cfg.Models.Fallbacks,
		"state_backend", cfg.State.Backend,
		"metrics", m != nil,
	)

	return httpapi.NewRouter(httpapi.Deps{
		Orchestrator: orch,
		Analyzer:     an,
		Persona:      pm,
		Vision:       vision,
		Metrics:      m,
		Logger:       a.logger.With("component", "http"),
	}, httpapi.Config{
		CORSOrigins: cfg.Server.CORSOrigins,
		Heartbeat:   cfg.Server.Heartbeat.Std(),
	}), nil
}

// buildProviders registers one provider per configured entry.
func buildProviders(cfg config.ModelsConfig) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		pc := cfg.Providers[id]
		models := make([]provider.ModelInfo, 0, len(pc.Models))
		for _, md := range pc.Models {
			models = append(models, modelInfo(id, md))
		}
		p, err := provider.FromConfig(provider.ProviderConfig{
			ID:      id,
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey,
			API:     pc.API,
			Models:  models,
		})
		if err != nil {
			return nil, err
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func modelInfo(providerID string, md config.ModelDefinition) provider.ModelInfo {
	info := provider.ModelInfo{
		ID:            md.ID,
		Name:          md.Name,
		ProviderID:    providerID,
		ContextWindow: md.ContextWindow,
		MaxTokens:     md.MaxTokens,
	}
	if slices.Contains(md.InputTypes, "image") {
		info.Features = append(info.Features, provider.FeatureImages)
	}
	if md.Tools {
		info.Features = append(info.Features, provider.FeatureTools)
	}
	return info
}

// requireFeature fails when ref is declared in config without f. Models a
// provider does not declare are not checked.
func requireFeature(reg *provider.Registry, role string, ref provider.ModelRef, f provider.Feature) error {
	info, ok := reg.Lookup(ref)
	if ok && !info.SupportsFeature(f) {
		return fmt.Errorf("%s model %s does not declare %s support", role, ref, f)
	}
	return nil
}

func boundModel(reg *provider.Registry, ref string) (*provider.BoundModel, error) {
	parsed, err := provider.ParseModelRef(ref)
	if err != nil {
		return nil, err
	}
	return reg.Model(parsed)
}

// toolFamilies lists the families enabled by cfg. Credentials are only
// read when the registry first builds, so start-up never blocks on them.
func toolFamilies(cfg config.ToolsConfig) []tools.Family {
	var families []tools.Family
	if cfg.Google.Enabled() {
		google := cfg.Google
		families = append(families, tools.GoogleFamily(func() (*tools.GoogleWorkspace, error) {
			ctx := context.Background()
			client, err := tools.GoogleHTTPClient(ctx, google.CredentialsFile, google.TokenFile)
			if err != nil {
				return nil, err
			}
			return tools.NewGoogleWorkspace(ctx, option.WithHTTPClient(client))
		})...)
	}
	if cfg.GitHub.Enabled() {
		gh := cfg.GitHub
		families = append(families, tools.Family{Name: "issues", Build: func() ([]tools.Descriptor, error) {
			tracker, err := tools.NewGitHubTracker(nil, gh.Token, gh.Repository)
			if err != nil {
				return nil, err
			}
			return tools.IssueTools(tracker)
		}})
	}
	if len(cfg.Scripts) > 0 {
		scripts := make([]tools.Script, 0, len(cfg.Scripts))
		for _, s := range cfg.Scripts {
			scripts = append(scripts, tools.Script{
				Name:        s.Name,
				Description: s.Description,
				File:        s.File,
				Parameters:  s.Parameters,
			})
		}
		families = append(families, tools.Family{Name: "scripts", Build: func() ([]tools.Descriptor, error) {
			return tools.ScriptTools(scripts)
		}})
	}
	return families
}

func (a *App) openPersonaStore(ctx context.Context, cfg config.StateConfig) (persona.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := store.Open(ctx, cfg.DataDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		return store.NewPersonaStore(db), nil
	case config.BackendRedis:
		rs, err := store.OpenRedis(ctx, cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs)
		return rs, nil
	default:
		return persona.NewMemoryStore(), nil
	}
}

// Handler exposes the wired router, mainly for tests.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Start serves until Shutdown. A clean shutdown returns nil.
func (a *App) Start() error {
	a.logger.Info("listening", "addr", a.server.Addr)
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, forcing connections closed if ctx
// expires first, then releases the persona store.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn("graceful shutdown timed out; forcing connection close")
		if closeErr := a.server.Close(); closeErr != nil {
			err = fmt.Errorf("shutdown timeout and forced close failed: %w", errors.Join(err, closeErr))
		} else {
			err = nil
		}
	}
	return errors.Join(err, a.Close())
}

// Close releases storage handles. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
