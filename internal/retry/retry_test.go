package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Status     string  `json:"status" jsonschema:"enum=on_track,enum=off_track,enum=unknown"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Reasoning  string  `json:"reasoning"`
}

func verdictValidator(t *testing.T) Validator {
	t.Helper()
	v, err := SchemaFor[verdict]()
	require.NoError(t, err)
	return v
}

func fallbackPolicy(t *testing.T) Policy[verdict] {
	return Policy[verdict]{
		MaxAttempts: 3,
		Validate:    verdictValidator(t),
		Fallback:    verdict{Status: "unknown", Reasoning: "Failed to get valid response after retries"},
		Annotate: func(fb verdict, lastErr string) verdict {
			fb.Reasoning = fmt.Sprintf("%s (Last error: %s)", fb.Reasoning, lastErr)
			return fb
		},
	}
}

func TestDoFirstAttemptSucceeds(t *testing.T) {
	calls := 0
	res := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return `{"status":"on_track","confidence":0.9,"reasoning":"editor open"}`, nil
	}, fallbackPolicy(t))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.FellBack)
	assert.Equal(t, verdict{Status: "on_track", Confidence: 0.9, Reasoning: "editor open"}, res.Value)
}

func TestDoExhaustionAnnotatesFallback(t *testing.T) {
	calls := 0
	var failures []int
	p := fallbackPolicy(t)
	p.OnFailure = func(attempt int, _ string) { failures = append(failures, attempt) }

	res := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return `not json`, nil
	}, p)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, res.FellBack)
	assert.Equal(t, []int{1, 2, 3}, failures)
	assert.Equal(t, "unknown", res.Value.Status)
	assert.Contains(t, res.Value.Reasoning, "Failed to get valid response after retries (Last error: JSON decode error:")
	assert.Equal(t, res.LastErr, res.Value.Reasoning[len("Failed to get valid response after retries (Last error: "):len(res.Value.Reasoning)-1])
}

func TestDoRecoversOnLaterAttempt(t *testing.T) {
	responses := []string{
		`{"status":"sideways","confidence":0.5,"reasoning":"x"}`,
		`{"status":"off_track","confidence":1.5,"reasoning":"x"}`,
		"```json\n{\"status\":\"off_track\",\"confidence\":0.8,\"reasoning\":\"social media\"}\n```",
	}
	calls := 0
	res := Do(context.Background(), func(context.Context) (string, error) {
		r := responses[calls]
		calls++
		return r, nil
	}, fallbackPolicy(t))

	assert.Equal(t, 3, calls)
	assert.False(t, res.FellBack)
	assert.Equal(t, "off_track", res.Value.Status)
	assert.InDelta(t, 0.8, res.Value.Confidence, 1e-9)
}

func TestDoValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing field", `{"status":"on_track","confidence":0.5}`},
		{"bad enum", `{"status":"maybe","confidence":0.5,"reasoning":"r"}`},
		{"confidence too high", `{"status":"on_track","confidence":1.01,"reasoning":"r"}`},
		{"confidence negative", `{"status":"on_track","confidence":-0.1,"reasoning":"r"}`},
		{"confidence not numeric", `{"status":"on_track","confidence":"high","reasoning":"r"}`},
		{"reasoning not text", `{"status":"on_track","confidence":0.5,"reasoning":3}`},
		{"not an object", `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fallbackPolicy(t)
			p.MaxAttempts = 1
			res := Do(context.Background(), func(context.Context) (string, error) { return tt.body, nil }, p)
			assert.True(t, res.FellBack)
			assert.Contains(t, res.LastErr, "schema validation failed")
			assert.NotContains(t, res.Value.Reasoning, "file://")
		})
	}
}

func TestDoBoundaryConfidenceAccepted(t *testing.T) {
	for _, c := range []string{"0", "1", "0.0", "1.0"} {
		body := fmt.Sprintf(`{"status":"unknown","confidence":%s,"reasoning":"r"}`, c)
		res := Do(context.Background(), func(context.Context) (string, error) { return body, nil }, fallbackPolicy(t))
		assert.False(t, res.FellBack, "confidence %s should validate", c)
	}
}

func TestDoOperationError(t *testing.T) {
	res := Do(context.Background(), func(context.Context) (string, error) {
		return "", errors.New("upstream 503")
	}, fallbackPolicy(t))

	assert.True(t, res.FellBack)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "operation failed: upstream 503", res.LastErr)
	assert.Contains(t, res.Value.Reasoning, "(Last error: operation failed: upstream 503)")
}

func TestDoContextCancelledStopsAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res := Do(ctx, func(context.Context) (string, error) {
		calls++
		cancel()
		return "", context.Canceled
	}, fallbackPolicy(t))

	assert.Equal(t, 1, calls)
	assert.True(t, res.FellBack)
}

func TestDoDefaultAttemptsAndNoValidator(t *testing.T) {
	calls := 0
	res := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return `"text"`, nil
	}, Policy[map[string]any]{})
	assert.Equal(t, DefaultMaxAttempts, calls, "a string cannot decode into a map")
	assert.True(t, res.FellBack)
	assert.Nil(t, res.Value)

	res2 := Do(context.Background(), func(context.Context) (string, error) {
		return `{"a":1}`, nil
	}, Policy[map[string]any]{Validate: ValidatorFunc(func(any) error { return nil })})
	assert.False(t, res2.FellBack)
	assert.Equal(t, float64(1), res2.Value["a"])
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                    `{"a":1}`,
		"  {\"a\":1}\n":              `{"a":1}`,
		"```json\n{\"a\":1}\n```":    `{"a":1}`,
		"```\n{\"a\":1}\n```":        `{"a":1}`,
		"```{\"a\":1}```":            `{"a":1}`,
		"```":                        "```",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripCodeFence(in), "StripCodeFence(%q)", in)
	}
}

func TestJSONSchemaInvalidDocument(t *testing.T) {
	_, err := JSONSchema([]byte(`{"type": 12}`))
	assert.Error(t, err)

	_, err = JSONSchema([]byte(`not json`))
	assert.Error(t, err)
}

func TestReflectSchemaRequiredAndEnum(t *testing.T) {
	doc, err := ReflectSchema[verdict]()
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"required":["status","confidence","reasoning"]`)
	assert.Contains(t, string(doc), `"enum":["on_track","off_track","unknown"]`)
	assert.NotContains(t, string(doc), "$schema")
}
