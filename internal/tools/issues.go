package tools

import (
	"context"
	"fmt"
	"strings"
)

// Issue is a tracker issue as presented to the model.
type Issue struct {
	Number int
	Title  string
	Body   string
	State  string
	Author string
	URL    string
}

// IssueTracker reads and writes issues of a single repository.
type IssueTracker interface {
	CreateIssue(ctx context.Context, title, body string) (Issue, error)
	GetIssue(ctx context.Context, number int) (Issue, error)
	ListIssues(ctx context.Context, state string, limit int) ([]Issue, error)
	// CommentOnIssue returns the URL of the new comment.
	CommentOnIssue(ctx context.Context, number int, body string) (string, error)
}

type createIssueArgs struct {
	Title string `json:"title" jsonschema:"Title of the issue"`
	Body  string `json:"body,omitempty" jsonschema:"Markdown body of the issue"`
}

type issueNumberArgs struct {
	IssueNumber int `json:"issue_number" jsonschema:"Number of the issue"`
}

type listIssuesArgs struct {
	State string `json:"state,omitempty" jsonschema:"Filter by state: open, closed or all (default open)"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of issues to return (default 30)"`
}

type commentArgs struct {
	IssueNumber int    `json:"issue_number" jsonschema:"Number of the issue to comment on"`
	Comment     string `json:"comment" jsonschema:"Markdown text of the comment"`
}

// IssueTools returns the issue tracker tools. Names are given in display
// form and sanitized on registration.
func IssueTools(tracker IssueTracker) ([]Descriptor, error) {
	create, err := NewTool("Create Issue",
		"Create a new issue in the repository with a title and optional body",
		func(ctx context.Context, args createIssueArgs) (string, error) {
			if strings.TrimSpace(args.Title) == "" {
				return "", fmt.Errorf("%w: title must not be empty", ErrInvalidArguments)
			}
			issue, err := tracker.CreateIssue(ctx, args.Title, args.Body)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully created issue #%d: %s\n%s", issue.Number, issue.Title, issue.URL), nil
		})
	if err != nil {
		return nil, err
	}

	get, err := NewTool("Get Issue",
		"Fetch the title, body and state of a specific issue by number",
		func(ctx context.Context, args issueNumberArgs) (string, error) {
			issue, err := tracker.GetIssue(ctx, args.IssueNumber)
			if err != nil {
				return "", err
			}
			return formatIssue(issue, true), nil
		})
	if err != nil {
		return nil, err
	}

	list, err := NewTool("Get Issues",
		"List issues in the repository",
		func(ctx context.Context, args listIssuesArgs) (string, error) {
			state := args.State
			if state == "" {
				state = "open"
			}
			switch state {
			case "open", "closed", "all":
			default:
				return "", fmt.Errorf("%w: state must be open, closed or all", ErrInvalidArguments)
			}
			limit := args.Limit
			if limit <= 0 {
				limit = 30
			}
			issues, err := tracker.ListIssues(ctx, state, limit)
			if err != nil {
				return "", err
			}
			if len(issues) == 0 {
				return "No issues found.", nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Found %d issues:\n", len(issues))
			for _, issue := range issues {
				b.WriteString(formatIssue(issue, false))
				b.WriteString("\n")
			}
			return strings.TrimRight(b.String(), "\n"), nil
		})
	if err != nil {
		return nil, err
	}

	comment, err := NewTool("Comment on Issue",
		"Add a comment to an existing issue",
		func(ctx context.Context, args commentArgs) (string, error) {
			url, err := tracker.CommentOnIssue(ctx, args.IssueNumber, args.Comment)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Commented on issue #%d: %s", args.IssueNumber, url), nil
		})
	if err != nil {
		return nil, err
	}

	return []Descriptor{create, get, list, comment}, nil
}

func formatIssue(issue Issue, withBody bool) string {
	line := fmt.Sprintf("#%d [%s] %s", issue.Number, issue.State, issue.Title)
	if issue.Author != "" {
		line += " (by " + issue.Author + ")"
	}
	if withBody && issue.Body != "" {
		line += "\n\n" + issue.Body
	}
	return line
}
