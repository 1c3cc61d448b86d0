package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRunFinished(t *testing.T) {
	m := New()
	m.RunFinished("stream", "completed", 2, time.Second)
	m.RunFinished("stream", "completed", 1, time.Second)
	m.RunFinished("sync", "max_iterations_reached", 10, time.Second)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("stream", "completed")); got != 2 {
		t.Errorf("stream completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("sync", "max_iterations_reached")); got != 1 {
		t.Errorf("sync max = %v, want 1", got)
	}
}

func TestToolCalledAndAnalyses(t *testing.T) {
	m := New()
	m.ToolCalled("create_issue", true, time.Millisecond)
	m.ToolCalled("create_issue", false, time.Millisecond)
	m.ToolCalled("create_issue", false, time.Millisecond)
	m.AnalysisFinished("unknown", true)
	m.StructuredOutputFailed()
	m.HTTPRequest("/healthz", 200)
	m.ModelFailover("openai/gpt-4o")

	if got := testutil.ToFloat64(m.toolCalls.WithLabelValues("create_issue", "error")); got != 2 {
		t.Errorf("tool errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.analyses.WithLabelValues("unknown", "true")); got != 1 {
		t.Errorf("fallback analyses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.retryFailures); got != 1 {
		t.Errorf("retry failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/healthz", "200")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.failovers.WithLabelValues("openai/gpt-4o")); got != 1 {
		t.Errorf("failovers = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RunFinished("sync", "error", 1, time.Second)
	m.ToolCalled("x", true, time.Second)
	m.AnalysisFinished("on_track", false)
	m.StructuredOutputFailed()
	m.HTTPRequest("/", 200)
	m.ModelFailover("a/b")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ToolCalled("send_gmail_message", true, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `athena_tool_calls_total{result="success",tool="send_gmail_message"} 1`) {
		t.Errorf("metrics output missing tool counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing go collector")
	}
}
