package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, handler http.Handler) *GitHubTracker {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tracker, err := NewGitHubTracker(server.Client(), "gh-token", "acme/widgets")
	require.NoError(t, err)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	tracker.client.BaseURL = base
	return tracker
}

func TestGitHubTrackerCreateIssue(t *testing.T) {
	tracker := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/widgets/issues", r.URL.Path)
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Bug", body["title"])
		assert.Equal(t, "details", body["body"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number":12,"title":"Bug","state":"open","html_url":"https://github.com/acme/widgets/issues/12","user":{"login":"octo"}}`))
	}))

	issue, err := tracker.CreateIssue(context.Background(), "Bug", "details")
	require.NoError(t, err)
	assert.Equal(t, Issue{
		Number: 12,
		Title:  "Bug",
		State:  "open",
		Author: "octo",
		URL:    "https://github.com/acme/widgets/issues/12",
	}, issue)
}

func TestGitHubTrackerListSkipsPullRequests(t *testing.T) {
	tracker := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/issues", r.URL.Path)
		assert.Equal(t, "closed", r.URL.Query().Get("state"))
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(`[
			{"number":1,"title":"Issue","state":"closed"},
			{"number":2,"title":"PR","state":"closed","pull_request":{"url":"https://api.github.com/x"}}
		]`))
	}))

	issues, err := tracker.ListIssues(context.Background(), "closed", 5)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].Number)
}

func TestGitHubTrackerGetAndComment(t *testing.T) {
	tracker := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/widgets/issues/3":
			_, _ = w.Write([]byte(`{"number":3,"title":"Flaky test","body":"fails on CI","state":"open"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/widgets/issues/3/comments":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":99,"html_url":"https://github.com/acme/widgets/issues/3#issuecomment-99"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		}
	}))

	ctx := context.Background()
	issue, err := tracker.GetIssue(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "fails on CI", issue.Body)

	link, err := tracker.CommentOnIssue(ctx, 3, "looking")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/issues/3#issuecomment-99", link)

	_, err = tracker.GetIssue(ctx, 4)
	assert.Error(t, err)
}

func TestNewGitHubTrackerInvalidRepository(t *testing.T) {
	for _, repo := range []string{"", "acme", "/widgets", "acme/"} {
		_, err := NewGitHubTracker(nil, "t", repo)
		assert.Error(t, err, "repository %q", repo)
	}
}
