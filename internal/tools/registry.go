// Package tools holds the tool registry the orchestrator dispatches model
// tool calls through, and the tool families it can be populated with.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"
	"sync"

	"github.com/athenahq/athena/internal/provider"
)

// Family is a named group of tools that share a credentialed client. Build
// runs once, on first use of the registry.
type Family struct {
	Name  string
	Build func() ([]Descriptor, error)
}

// Registry maps tool names to descriptors. It is populated lazily from its
// families and is read-only afterwards; Call is safe for concurrent use.
type Registry struct {
	logger   *slog.Logger
	families []Family

	once  sync.Once
	mu    sync.RWMutex
	order []string
	tools map[string]Descriptor
}

func NewRegistry(logger *slog.Logger, families ...Family) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		families: families,
		tools:    make(map[string]Descriptor),
	}
}

// register adds a descriptor directly. The name is sanitized first.
func (r *Registry) register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(d)
}

func (r *Registry) add(d Descriptor) error {
	if d.Invoke == nil {
		return fmt.Errorf("tool %q has no invoke function", d.Name)
	}
	name := SanitizeName(d.Name)
	if name == "" {
		return fmt.Errorf("tool name %q is empty after sanitizing", d.Name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	d.Name = name
	r.tools[name] = d
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) build() {
	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, f := range r.families {
			descs, err := buildFamily(f)
			if err != nil {
				r.logger.Error("tool family unavailable", "family", f.Name, "error", err)
				continue
			}
			names := make([]string, 0, len(descs))
			for _, d := range descs {
				if err := r.add(d); err != nil {
					r.logger.Warn("skipping tool", "family", f.Name, "error", err)
					continue
				}
				names = append(names, SanitizeName(d.Name))
			}
			r.logger.Info("tools loaded", "family", f.Name, "tools", names)
		}
	})
}

// buildFamily runs f.Build and reports a panic as an error.
func buildFamily(f Family) (descs []Descriptor, err error) {
	defer func() {
		if p := recover(); p != nil {
			descs, err = nil, &panicError{p: p}
		}
	}()
	return f.Build()
}

// names returns the registered tool names in registration order.
func (r *Registry) names() []string {
	r.build()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Schemas returns one ToolSpec per tool, in registration order.
func (r *Registry) Schemas() []provider.ToolSpec {
	r.build()
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]provider.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		d := r.tools[name]
		specs = append(specs, provider.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  maps.Clone(d.Parameters),
		})
	}
	return specs
}

// Call invokes the named tool once. Every failure, including an unknown
// name or a panic inside the tool, comes back as an *ExecutionError.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (out string, err error) {
	r.build()
	r.mu.RLock()
	d, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", &ExecutionError{Tool: name, Err: fmt.Errorf("%w %q", ErrUnknownFunction, name)}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			out, err = "", &ExecutionError{Tool: name, Err: &panicError{p: p}}
		}
	}()

	out, err = d.Invoke(ctx, args)
	if err != nil {
		return "", &ExecutionError{Tool: name, Err: err}
	}
	return out, nil
}

var (
	invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	repeatedUnder    = regexp.MustCompile(`_+`)
)

// SanitizeName maps a display name such as "Get Issues" to a name accepted
// by model APIs: "get_issues".
func SanitizeName(name string) string {
	s := invalidNameChars.ReplaceAllString(strings.ReplaceAll(name, " ", "_"), "_")
	s = repeatedUnder.ReplaceAllString(strings.ToLower(s), "_")
	return strings.Trim(s, "_")
}
