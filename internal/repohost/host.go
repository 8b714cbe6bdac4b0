package repohost

import (
	"context"
	"net/url"
	"strings"
)

// Host is the issue and pull request boundary for one code host. repo is
// always the full "owner/name" path (GitLab: the project path with
// namespace).
type Host interface {
	Name() string
	CreateIssue(ctx context.Context, repo string, req IssueRequest) (*Issue, error)
	CreatePullRequest(ctx context.Context, repo string, req PRRequest) (*PullRequest, error)
	ListReviewFeedback(ctx context.Context, repo string, number int) (*Feedback, error)
	CloneURL(repo string) string
}

type IssueRequest struct {
	Title  string
	Body   string
	Labels []string
}

type Issue struct {
	Number int
	URL    string
}

type PRRequest struct {
	Title string
	Body  string
	Head  string // branch with the changes
	Base  string // branch to merge into
}

type PullRequest struct {
	Number int
	URL    string
}

type Review struct {
	Author string
	State  string
	Body   string
}

// Comment is an inline review comment, or a general discussion note when
// Path is empty.
type Comment struct {
	Author string
	Body   string
	Path   string
}

// Feedback is everything reviewers said on a pull request.
type Feedback struct {
	Reviews  []Review
	Comments []Comment
}

// Empty reports whether there is nothing actionable to hand to the agent.
// Reviews without a body (bare approvals) do not count.
func (f *Feedback) Empty() bool {
	if f == nil {
		return true
	}
	for _, r := range f.Reviews {
		if strings.TrimSpace(r.Body) != "" {
			return false
		}
	}
	for _, c := range f.Comments {
		if strings.TrimSpace(c.Body) != "" {
			return false
		}
	}
	return true
}

// hostFromURL returns the host part of a base URL, or the fallback when the
// URL is empty or unparsable.
func hostFromURL(raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fallback
	}
	return u.Host
}
