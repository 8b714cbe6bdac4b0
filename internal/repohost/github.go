package repohost

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v66/github"
	"golang.org/x/sync/errgroup"
)

type gitHubHost struct {
	client  *github.Client
	token   string
	webHost string
}

// NewGitHub builds a GitHub host. baseURL is only set for GitHub Enterprise
// and points at the API root.
func NewGitHub(token, baseURL string) (Host, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	client := github.NewClient(nil).WithAuthToken(token)
	webHost := "github.com"
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring github enterprise url: %w", err)
		}
		webHost = hostFromURL(baseURL, webHost)
	}

	return &gitHubHost{client: client, token: token, webHost: webHost}, nil
}

func (h *gitHubHost) Name() string { return "github" }

func (h *gitHubHost) CreateIssue(ctx context.Context, repo string, req IssueRequest) (*Issue, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	labels := req.Labels
	if labels == nil {
		labels = []string{}
	}
	issue, _, err := h.client.Issues.Create(ctx, owner, name, &github.IssueRequest{
		Title:  github.String(req.Title),
		Body:   github.String(req.Body),
		Labels: &labels,
	})
	if err != nil {
		return nil, fmt.Errorf("creating github issue: %w", err)
	}

	return &Issue{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}, nil
}

func (h *gitHubHost) CreatePullRequest(ctx context.Context, repo string, req PRRequest) (*PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	pr, _, err := h.client.PullRequests.Create(ctx, owner, name, &github.NewPullRequest{
		Title: github.String(req.Title),
		Head:  github.String(req.Head),
		Base:  github.String(req.Base),
		Body:  github.String(req.Body),
	})
	if err != nil {
		return nil, fmt.Errorf("creating github pull request: %w", err)
	}

	return &PullRequest{Number: pr.GetNumber(), URL: pr.GetHTMLURL()}, nil
}

// ListReviewFeedback fetches every page of review summaries and inline
// comments in parallel. GitHub lists both oldest first, so stopping early
// would drop the review that asked for the change.
func (h *gitHubHost) ListReviewFeedback(ctx context.Context, repo string, number int) (*Feedback, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	var (
		reviews  []*github.PullRequestReview
		comments []*github.PullRequestComment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opts := &github.ListOptions{PerPage: 100}
		for {
			page, resp, err := h.client.PullRequests.ListReviews(gctx, owner, name, number, opts)
			if err != nil {
				return fmt.Errorf("listing reviews: %w", err)
			}
			reviews = append(reviews, page...)
			if resp.NextPage == 0 {
				return nil
			}
			opts.Page = resp.NextPage
		}
	})
	g.Go(func() error {
		opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
		for {
			page, resp, err := h.client.PullRequests.ListComments(gctx, owner, name, number, opts)
			if err != nil {
				return fmt.Errorf("listing review comments: %w", err)
			}
			comments = append(comments, page...)
			if resp.NextPage == 0 {
				return nil
			}
			opts.Page = resp.NextPage
		}
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fb := &Feedback{}
	for _, r := range reviews {
		fb.Reviews = append(fb.Reviews, Review{
			Author: r.GetUser().GetLogin(),
			State:  strings.ToLower(r.GetState()),
			Body:   r.GetBody(),
		})
	}
	for _, c := range comments {
		fb.Comments = append(fb.Comments, Comment{
			Author: c.GetUser().GetLogin(),
			Body:   c.GetBody(),
			Path:   c.GetPath(),
		})
	}
	return fb, nil
}

func (h *gitHubHost) CloneURL(repo string) string {
	return fmt.Sprintf("https://x-access-token:%s@%s/%s.git", h.token, h.webHost, repo)
}

func splitRepo(repo string) (string, string, error) {
	i := strings.LastIndex(repo, "/")
	if i <= 0 || i == len(repo)-1 {
		return "", "", fmt.Errorf("invalid repository %q, want owner/name", repo)
	}
	return repo[:i], repo[i+1:], nil
}
