package provider

import (
	"fmt"
	"slices"
	"strings"
)

// ModelRef names a model as "provider/model", e.g. "openai/gpt-4o".
type ModelRef string

func NewModelRef(providerID, modelID string) ModelRef {
	return ModelRef(providerID + "/" + modelID)
}

func (r ModelRef) Provider() string {
	provider, _, ok := strings.Cut(string(r), "/")
	if !ok {
		return ""
	}
	return provider
}

func (r ModelRef) Model() string {
	_, model, ok := strings.Cut(string(r), "/")
	if !ok {
		return string(r)
	}
	return model
}

func (r ModelRef) String() string {
	return string(r)
}

func (r ModelRef) Valid() bool {
	return r.Provider() != "" && r.Model() != ""
}

func ParseModelRef(s string) (ModelRef, error) {
	ref := ModelRef(strings.TrimSpace(s))
	if !ref.Valid() {
		return "", fmt.Errorf("invalid model ref %q: expected format provider/model", s)
	}
	return ref, nil
}

type Feature string

const (
	FeatureImages Feature = "images"
	FeatureTools  Feature = "tools"
)

// ModelInfo is a model a provider advertises, as declared in config.
type ModelInfo struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	ProviderID    string    `json:"provider_id" yaml:"provider_id"`
	ContextWindow int       `json:"context_window" yaml:"context_window"`
	MaxTokens     int       `json:"max_tokens" yaml:"max_tokens"`
	Features      []Feature `json:"features" yaml:"features"`
}

func (m ModelInfo) Ref() ModelRef {
	return NewModelRef(m.ProviderID, m.ID)
}

func (m ModelInfo) SupportsFeature(f Feature) bool {
	return slices.Contains(m.Features, f)
}
