package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
)

// GitHubTracker is an IssueTracker for one GitHub repository.
type GitHubTracker struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubTracker returns a tracker for repository "owner/name"
// authenticated with token. httpClient may be nil.
func NewGitHubTracker(httpClient *http.Client, token, repository string) (*GitHubTracker, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid github repository %q: expected owner/name", repository)
	}
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubTracker{client: client, owner: owner, repo: repo}, nil
}

func (g *GitHubTracker) CreateIssue(ctx context.Context, title, body string) (Issue, error) {
	req := &github.IssueRequest{Title: github.String(title)}
	if body != "" {
		req.Body = github.String(body)
	}
	issue, _, err := g.client.Issues.Create(ctx, g.owner, g.repo, req)
	if err != nil {
		return Issue{}, fmt.Errorf("create issue: %w", err)
	}
	return toIssue(issue), nil
}

func (g *GitHubTracker) GetIssue(ctx context.Context, number int) (Issue, error) {
	issue, _, err := g.client.Issues.Get(ctx, g.owner, g.repo, number)
	if err != nil {
		return Issue{}, fmt.Errorf("get issue #%d: %w", number, err)
	}
	return toIssue(issue), nil
}

// ListIssues skips pull requests, which GitHub reports as issues.
func (g *GitHubTracker) ListIssues(ctx context.Context, state string, limit int) ([]Issue, error) {
	issues, _, err := g.client.Issues.ListByRepo(ctx, g.owner, g.repo, &github.IssueListByRepoOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	out := make([]Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		out = append(out, toIssue(issue))
	}
	return out, nil
}

func (g *GitHubTracker) CommentOnIssue(ctx context.Context, number int, body string) (string, error) {
	comment, _, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, number,
		&github.IssueComment{Body: github.String(body)})
	if err != nil {
		return "", fmt.Errorf("comment on issue #%d: %w", number, err)
	}
	return comment.GetHTMLURL(), nil
}

func toIssue(issue *github.Issue) Issue {
	return Issue{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		State:  issue.GetState(),
		Author: issue.GetUser().GetLogin(),
		URL:    issue.GetHTMLURL(),
	}
}
