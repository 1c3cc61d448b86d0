package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %q already registered", id)
	}
	r.providers[id] = p
	return nil
}

func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %q not found", id)
	}
	return p, nil
}

// Model resolves ref to a client bound to that provider and model name.
func (r *Registry) Model(ref ModelRef) (*BoundModel, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("invalid model ref %q", ref)
	}
	p, err := r.Get(ref.Provider())
	if err != nil {
		return nil, err
	}
	return &BoundModel{provider: p, model: ref.Model()}, nil
}

// Lookup returns the ModelInfo a provider declares for ref. ok is false when
// the provider is unknown or does not declare the model.
func (r *Registry) Lookup(ref ModelRef) (info ModelInfo, ok bool) {
	p, err := r.Get(ref.Provider())
	if err != nil {
		return ModelInfo{}, false
	}
	for _, m := range p.Models() {
		if m.ID == ref.Model() {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// List returns the registered providers sorted by ID.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

// BoundModel is a Provider pinned to one model. Requests that leave Model
// empty are sent with the bound model name.
type BoundModel struct {
	provider Provider
	model    string
}

func (b *BoundModel) Ref() ModelRef { return NewModelRef(b.provider.ID(), b.model) }

func (b *BoundModel) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		clone := *req
		clone.Model = b.model
		req = &clone
	}
	return b.provider.Complete(ctx, req)
}
