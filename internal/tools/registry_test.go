package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Text  string `json:"text" jsonschema:"text to echo"`
	Times int    `json:"times,omitempty"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoTool(t *testing.T) Descriptor {
	t.Helper()
	d, err := NewTool("echo", "Echo text back", func(_ context.Context, args echoArgs) (string, error) {
		return args.Text, nil
	})
	require.NoError(t, err)
	return d
}

func TestRegistryUnknownFunction(t *testing.T) {
	r := NewRegistry(quietLogger())

	out, err := r.Call(context.Background(), "does_not_exist", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Empty(t, out)
	assert.ErrorIs(t, err, ErrUnknownFunction)
	assert.Contains(t, err.Error(), "unknown function")
	var ee *ExecutionError
	assert.ErrorAs(t, err, &ee)
}

func TestRegistryCallSuccess(t *testing.T) {
	r := NewRegistry(quietLogger())
	require.NoError(t, r.register(echoTool(t)))

	out, err := r.Call(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestRegistryInvalidArguments(t *testing.T) {
	r := NewRegistry(quietLogger())
	require.NoError(t, r.register(echoTool(t)))

	tests := []struct {
		name string
		args string
	}{
		{"malformed json", `{"text":`},
		{"missing required", `{}`},
		{"wrong type", `{"text": 3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Call(context.Background(), "echo", json.RawMessage(tt.args))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArguments)
		})
	}
}

func TestRegistryToolErrorWrapped(t *testing.T) {
	cause := errors.New("service rejected request")
	d, err := NewTool("fail", "Always fails", func(context.Context, echoArgs) (string, error) {
		return "", cause
	})
	require.NoError(t, err)

	r := NewRegistry(quietLogger())
	require.NoError(t, r.register(d))

	_, err = r.Call(context.Background(), "fail", json.RawMessage(`{"text":"x"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "fail", ee.Tool)
	assert.Equal(t, "service rejected request", err.Error())
}

func TestRegistryRecoversPanic(t *testing.T) {
	d, err := NewTool("boom", "Panics", func(context.Context, echoArgs) (string, error) {
		panic("kaboom")
	})
	require.NoError(t, err)

	r := NewRegistry(quietLogger())
	require.NoError(t, r.register(d))

	var out string
	assert.NotPanics(t, func() {
		out, err = r.Call(context.Background(), "boom", json.RawMessage(`{"text":"x"}`))
	})
	assert.Empty(t, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	var ee *ExecutionError
	assert.ErrorAs(t, err, &ee)
}

func TestRegistrySchemas(t *testing.T) {
	r := NewRegistry(quietLogger())
	require.NoError(t, r.register(echoTool(t)))

	specs := r.Schemas()
	require.Len(t, specs, 1)
	assert.Equal(t, "echo", specs[0].Name)
	assert.Equal(t, "Echo text back", specs[0].Description)
	assert.Equal(t, "object", specs[0].Parameters["type"])

	props, ok := specs[0].Parameters["properties"].(map[string]any)
	require.True(t, ok, "properties should be an object")
	assert.Contains(t, props, "text")
	assert.Contains(t, props, "times")
	assert.Equal(t, []any{"text"}, specs[0].Parameters["required"])
	assert.NotContains(t, specs[0].Parameters, "$schema")

	specs[0].Parameters["type"] = "mutated"
	assert.Equal(t, "object", r.Schemas()[0].Parameters["type"], "schemas must be copies")
}

func TestRegistryDuplicateAndSanitizedNames(t *testing.T) {
	r := NewRegistry(quietLogger())
	d := echoTool(t)
	d.Name = "Get Issues"
	require.NoError(t, r.register(d))
	assert.Equal(t, []string{"get_issues"}, r.names())

	d.Name = "get_issues"
	assert.Error(t, r.register(d))

	d.Name = "!!!"
	assert.Error(t, r.register(d))
}

func TestRegistryLazyFamiliesBuildOnce(t *testing.T) {
	var builds atomic.Int32
	r := NewRegistry(quietLogger(),
		Family{Name: "echo", Build: func() ([]Descriptor, error) {
			builds.Add(1)
			return []Descriptor{echoTool(t)}, nil
		}},
		Family{Name: "broken", Build: func() ([]Descriptor, error) {
			return nil, errors.New("no credentials")
		}},
	)
	assert.Equal(t, int32(0), builds.Load(), "families must not build before first use")

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, _ = r.Call(context.Background(), "echo", json.RawMessage(`{"text":"a"}`))
			_ = r.Schemas()
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	assert.Equal(t, []string{"echo"}, r.names(), "failing family is omitted")
}

func TestRegistryFamilyBuildPanic(t *testing.T) {
	r := NewRegistry(quietLogger(),
		Family{Name: "crashy", Build: func() ([]Descriptor, error) {
			panic("client constructor blew up")
		}},
		Family{Name: "echo", Build: func() ([]Descriptor, error) {
			return []Descriptor{echoTool(t)}, nil
		}},
	)

	var err error
	require.NotPanics(t, func() {
		_, err = r.Call(context.Background(), "does_not_exist", nil)
	})
	assert.ErrorIs(t, err, ErrUnknownFunction)

	out, err := r.Call(context.Background(), "echo", json.RawMessage(`{"text":"still here"}`))
	require.NoError(t, err)
	assert.Equal(t, "still here", out)
	assert.Len(t, r.Schemas(), 1)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"Get Issues":            "get_issues",
		"Comment on Issue":      "comment_on_issue",
		"Create Pull Request!":  "create_pull_request",
		"  list -- branches ":   "list_--_branches",
		"__Read File__":         "read_file",
		"send_gmail_message":    "send_gmail_message",
		"Search issues & PRs":   "search_issues_prs",
		"Überprüfen":            "berpr_fen",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), "SanitizeName(%q)", in)
	}
}

func TestNewDynamicTool(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
		"required": []any{"city"},
	}
	d, err := NewDynamicTool("weather", "Weather lookup", schema, func(_ context.Context, raw json.RawMessage) (string, error) {
		return string(raw), nil
	})
	require.NoError(t, err)

	out, err := d.Invoke(context.Background(), json.RawMessage(`{"city":"Oslo"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"Oslo"}`, out)

	_, err = d.Invoke(context.Background(), json.RawMessage(`{"city":1}`))
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = d.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidArguments, "null arguments are an empty object missing city")

	_, err = NewDynamicTool("nil", "no handler", schema, nil)
	assert.Error(t, err)
}
