package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Func is the invocation signature shared by every tool. args is the JSON
// object produced by the model.
type Func func(ctx context.Context, args json.RawMessage) (string, error)

// Descriptor is a callable tool: its name, a description for the model,
// the JSON Schema of its arguments, and the function that runs it.
type Descriptor struct {
	Name        string
	Description string
	Parameters  map[string]any
	Invoke      Func
}

// NewTool builds a Descriptor whose schema is reflected from T. Arguments
// are validated against that schema and decoded into T before fn runs, so
// the advertised schema and the decoded shape cannot drift apart.
func NewTool[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) (Descriptor, error) {
	schema, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		return Descriptor{}, fmt.Errorf("tool %s: reflect schema: %w", name, err)
	}
	schemaMap, resolved, err := compileSchema(schema)
	if err != nil {
		return Descriptor{}, fmt.Errorf("tool %s: %w", name, err)
	}
	invoke := func(ctx context.Context, raw json.RawMessage) (string, error) {
		if err := validateArgs(resolved, raw); err != nil {
			return "", err
		}
		var args T
		if err := json.Unmarshal(normalizeArgs(raw), &args); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		return fn(ctx, args)
	}
	return Descriptor{Name: name, Description: description, Parameters: schemaMap, Invoke: invoke}, nil
}

// NewDynamicTool builds a Descriptor from a schema known only at runtime.
// The caller's map is copied, never mutated.
func NewDynamicTool(name, description string, schemaMap map[string]any, fn Func) (Descriptor, error) {
	if fn == nil {
		return Descriptor{}, fmt.Errorf("tool %s: handler must not be nil", name)
	}
	if schemaMap == nil {
		schemaMap = map[string]any{"type": "object"}
	}
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return Descriptor{}, fmt.Errorf("tool %s: encode schema: %w", name, err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return Descriptor{}, fmt.Errorf("tool %s: decode schema: %w", name, err)
	}
	copied, resolved, err := compileSchema(&schema)
	if err != nil {
		return Descriptor{}, fmt.Errorf("tool %s: %w", name, err)
	}
	invoke := func(ctx context.Context, raw json.RawMessage) (string, error) {
		if err := validateArgs(resolved, raw); err != nil {
			return "", err
		}
		return fn(ctx, normalizeArgs(raw))
	}
	return Descriptor{Name: name, Description: description, Parameters: copied, Invoke: invoke}, nil
}

func compileSchema(schema *jsonschema.Schema) (map[string]any, *jsonschema.Resolved, error) {
	schema.ID = ""
	schema.Schema = ""
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("compile schema: %w", err)
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, fmt.Errorf("encode schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("decode schema: %w", err)
	}
	return m, resolved, nil
}

func validateArgs(resolved *jsonschema.Resolved, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(normalizeArgs(raw), &v); err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", ErrInvalidArguments, err)
	}
	if err := resolved.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// normalizeArgs treats empty or null arguments as an empty object.
func normalizeArgs(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage("{}")
	}
	return raw
}
