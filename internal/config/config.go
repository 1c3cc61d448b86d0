package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	APIOpenAI    = "openai-completions"
	APIAnthropic = "anthropic-messages"

	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Models       ModelsConfig       `yaml:"models"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer"`
	Persona      PersonaConfig      `yaml:"persona"`
	State        StateConfig        `yaml:"state"`
	Tools        ToolsConfig        `yaml:"tools"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	Heartbeat       Duration `yaml:"heartbeat"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.Level, err)
	}
	return l, nil
}

// ModelsConfig declares inference providers and which model each role
// uses. Orchestrator, Vision and Fallbacks are "provider/model" refs;
// Fallbacks are tried in order when a role's model is unavailable.
type ModelsConfig struct {
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Orchestrator string                    `yaml:"orchestrator"`
	Vision       string                    `yaml:"vision"`
	Fallbacks    []string                  `yaml:"fallbacks"`
}

type ProviderConfig struct {
	BaseURL string            `yaml:"base_url"`
	APIKey  string            `yaml:"api_key"`
	API     string            `yaml:"api"`
	Models  []ModelDefinition `yaml:"models"`
}

type ModelDefinition struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	InputTypes    []string `yaml:"input"`
	Tools         bool     `yaml:"tools"`
	ContextWindow int      `yaml:"context_window"`
	MaxTokens     int      `yaml:"max_tokens"`
}

type OrchestratorConfig struct {
	MaxIterations  int      `yaml:"max_iterations"`
	RunTimeout     Duration `yaml:"run_timeout"`
	ToolTimeout    Duration `yaml:"tool_timeout"`
	MaxOutputBytes int      `yaml:"max_output_bytes"`
	SystemPrompt   string   `yaml:"system_prompt"`
}

type AnalyzerConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

type PersonaConfig struct {
	Default string `yaml:"default"`
}

// StateConfig selects where the persona is persisted.
type StateConfig struct {
	Backend  string `yaml:"backend"`
	DataDir  string `yaml:"data_dir"`
	RedisURL string `yaml:"redis_url"`
	RedisKey string `yaml:"redis_key"`
}

type ToolsConfig struct {
	Google  GoogleConfig   `yaml:"google"`
	GitHub  GitHubConfig   `yaml:"github"`
	Scripts []ScriptConfig `yaml:"scripts"`
}

// GoogleConfig points at an OAuth client secrets file and a saved token.
// Leaving either empty disables the mail and document tools.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
}

func (g GoogleConfig) Enabled() bool {
	return g.CredentialsFile != "" && g.TokenFile != ""
}

// GitHubConfig enables the issue tools. Repository is "owner/name".
type GitHubConfig struct {
	Token      string `yaml:"token"`
	Repository string `yaml:"repository"`
}

func (g GitHubConfig) Enabled() bool {
	return g.Token != "" && !unexpanded(g.Token) && g.Repository != ""
}

// ScriptConfig declares a Lua tool. Parameters is a JSON Schema object.
type ScriptConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	File        string         `yaml:"file"`
	Parameters  map[string]any `yaml:"parameters"`
}

type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

// Duration accepts Go duration strings ("30s", "5m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://localhost:8080",
}

// ApplyDefaults fills unset fields. With no providers configured it
// assumes OpenAI keyed by ${OPENAI_KEY}.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = slices.Clone(defaultCORSOrigins)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Server.Heartbeat == 0 {
		c.Server.Heartbeat = Duration(15 * time.Second)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if len(c.Models.Providers) == 0 {
		c.Models.Providers = map[string]ProviderConfig{
			"openai": {APIKey: "${OPENAI_KEY}", API: APIOpenAI},
		}
		if c.Models.Orchestrator == "" {
			c.Models.Orchestrator = "openai/gpt-4o"
		}
	}
	for name, p := range c.Models.Providers {
		if p.API == "" {
			p.API = APIOpenAI
			c.Models.Providers[name] = p
		}
	}
	if c.Models.Vision == "" {
		c.Models.Vision = c.Models.Orchestrator
	}

	if c.Orchestrator.MaxIterations == 0 {
		c.Orchestrator.MaxIterations = 10
	}
	if c.Orchestrator.RunTimeout == 0 {
		c.Orchestrator.RunTimeout = Duration(5 * time.Minute)
	}
	if c.Orchestrator.ToolTimeout == 0 {
		c.Orchestrator.ToolTimeout = Duration(30 * time.Second)
	}
	if c.Orchestrator.MaxOutputBytes == 0 {
		c.Orchestrator.MaxOutputBytes = 64 * 1024
	}
	if c.Analyzer.MaxAttempts == 0 {
		c.Analyzer.MaxAttempts = 3
	}

	if c.State.Backend == "" {
		c.State.Backend = BackendMemory
	}
	if c.State.DataDir == "" {
		c.State.DataDir = "data"
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format %q: want text or json", c.Log.Format))
	}

	for name, p := range c.Models.Providers {
		if p.API != APIOpenAI && p.API != APIAnthropic {
			errs = append(errs, fmt.Errorf("provider %q: unknown api %q (supported: %s, %s)", name, p.API, APIOpenAI, APIAnthropic))
		}
	}
	if c.Models.Orchestrator == "" {
		errs = append(errs, errors.New("models.orchestrator is required"))
	} else {
		errs = append(errs, c.checkModelRef("models.orchestrator", c.Models.Orchestrator)...)
	}
	if c.Models.Vision != "" && c.Models.Vision != c.Models.Orchestrator {
		errs = append(errs, c.checkModelRef("models.vision", c.Models.Vision)...)
	}
	for i, ref := range c.Models.Fallbacks {
		errs = append(errs, c.checkModelRef(fmt.Sprintf("models.fallbacks[%d]", i), ref)...)
	}

	if c.Orchestrator.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max_iterations must be positive, got %d", c.Orchestrator.MaxIterations))
	}
	if c.Orchestrator.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max_output_bytes must be positive, got %d", c.Orchestrator.MaxOutputBytes))
	}
	if c.Analyzer.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("analyzer.max_attempts must be positive, got %d", c.Analyzer.MaxAttempts))
	}

	switch c.State.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.State.RedisURL == "" {
			errs = append(errs, errors.New("state.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("state.backend %q: want memory, sqlite or redis", c.State.Backend))
	}

	for i, s := range c.Tools.Scripts {
		if s.Name == "" || s.File == "" {
			errs = append(errs, fmt.Errorf("tools.scripts[%d]: name and file are required", i))
		}
	}
	return errors.Join(errs...)
}

// checkModelRef verifies ref names a configured provider that has a usable
// credential. Providers with a base_url (local servers) may omit the key.
func (c *Config) checkModelRef(field, ref string) []error {
	providerID, model, ok := strings.Cut(ref, "/")
	if !ok || providerID == "" || model == "" {
		return []error{fmt.Errorf("%s %q: expected format provider/model", field, ref)}
	}
	p, ok := c.Models.Providers[providerID]
	if !ok {
		return []error{fmt.Errorf("%s %q: provider %q is not configured", field, ref, providerID)}
	}
	if p.BaseURL == "" && (p.APIKey == "" || unexpanded(p.APIKey)) {
		return []error{fmt.Errorf("provider %q: missing inference credential (api_key %q)", providerID, p.APIKey)}
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// unexpanded reports whether s still holds a ${VAR} whose variable was unset.
func unexpanded(s string) bool {
	return envPattern.MatchString(s)
}

func (c *Config) expandEnv() {
	for name, p := range c.Models.Providers {
		p.BaseURL = expandEnv(p.BaseURL)
		p.APIKey = expandEnv(p.APIKey)
		c.Models.Providers[name] = p
	}
	c.State.RedisURL = expandEnv(c.State.RedisURL)
	c.State.DataDir = expandEnv(c.State.DataDir)
	c.Tools.Google.CredentialsFile = expandEnv(c.Tools.Google.CredentialsFile)
	c.Tools.Google.TokenFile = expandEnv(c.Tools.Google.TokenFile)
	c.Tools.GitHub.Token = expandEnv(c.Tools.GitHub.Token)
	c.Tools.GitHub.Repository = expandEnv(c.Tools.GitHub.Repository)
	for i := range c.Tools.Scripts {
		c.Tools.Scripts[i].File = expandEnv(c.Tools.Scripts[i].File)
	}
}

// Load reads path. An empty path yields the defaults, configured from the
// environment only.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and expands ${VAR} references. It
// does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.expandEnv()
	return &cfg, nil
}
