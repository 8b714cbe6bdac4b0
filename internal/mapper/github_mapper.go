package mapper

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v66/github"

	"darwin.app/engine/internal/feedback"
)

type GitHubEventMapper struct{}

func NewGitHubEventMapper() *GitHubEventMapper {
	return &GitHubEventMapper{}
}

func (m *GitHubEventMapper) Map(ctx context.Context, body []byte, headers map[string]string) (*feedback.Event, error) {
	eventType := headers["X-Github-Event"]
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing X-GitHub-Event header", ErrUnsupportedEvent)
	}

	payload, err := github.ParseWebHook(eventType, body)
	if err != nil {
		if strings.Contains(err.Error(), "unknown X-Github-Event") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
		}
		return nil, fmt.Errorf("parsing %s payload: %w", eventType, err)
	}

	switch e := payload.(type) {
	case *github.PullRequestEvent:
		return m.pullRequest(e)
	case *github.PullRequestReviewEvent:
		return m.review(e)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}
}

func (m *GitHubEventMapper) pullRequest(e *github.PullRequestEvent) (*feedback.Event, error) {
	var kind feedback.EventKind
	switch e.GetAction() {
	case "closed":
		kind = feedback.EventPRClosed
	case "reopened":
		kind = feedback.EventPRReopened
	default:
		return nil, fmt.Errorf("%w: pull_request %s", ErrUnsupportedEvent, e.GetAction())
	}

	ev := githubPREvent(e.GetRepo(), e.GetPullRequest())
	ev.Kind = kind
	pr := e.GetPullRequest()
	ev.Merged = pr.GetMerged()
	if pr.MergedAt != nil {
		t := pr.GetMergedAt().Time
		ev.MergedAt = &t
	}
	return ev, nil
}

func (m *GitHubEventMapper) review(e *github.PullRequestReviewEvent) (*feedback.Event, error) {
	if e.GetAction() != "submitted" {
		return nil, fmt.Errorf("%w: pull_request_review %s", ErrUnsupportedEvent, e.GetAction())
	}

	ev := githubPREvent(e.GetRepo(), e.GetPullRequest())
	ev.Kind = feedback.EventReviewSubmitted
	review := e.GetReview()
	ev.ReviewState = strings.ToLower(review.GetState())
	ev.ReviewBody = review.GetBody()
	ev.Reviewer = review.GetUser().GetLogin()
	return ev, nil
}

func githubPREvent(repo *github.Repository, pr *github.PullRequest) *feedback.Event {
	return &feedback.Event{
		Host:     "github",
		Repo:     repo.GetFullName(),
		PRNumber: pr.GetNumber(),
		PRURL:    pr.GetHTMLURL(),
		PRTitle:  pr.GetTitle(),
		PRBody:   pr.GetBody(),
		Branch:   pr.GetHead().GetRef(),
	}
}
