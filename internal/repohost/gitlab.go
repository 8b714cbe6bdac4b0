package repohost

import (
	"context"
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

type gitLabHost struct {
	client  *gitlab.Client
	token   string
	webHost string
}

func NewGitLab(token, baseURL string) (Host, error) {
	if token == "" {
		return nil, fmt.Errorf("gitlab token is required")
	}

	var (
		client *gitlab.Client
		err    error
	)
	if baseURL == "" {
		client, err = gitlab.NewClient(token)
	} else {
		apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
		client, err = gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
	}
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	return &gitLabHost{
		client:  client,
		token:   token,
		webHost: hostFromURL(baseURL, "gitlab.com"),
	}, nil
}

func (h *gitLabHost) Name() string { return "gitlab" }

func (h *gitLabHost) CreateIssue(ctx context.Context, repo string, req IssueRequest) (*Issue, error) {
	labels := gitlab.LabelOptions(req.Labels)
	issue, _, err := h.client.Issues.CreateIssue(repo, &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(req.Title),
		Description: gitlab.Ptr(req.Body),
		Labels:      &labels,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating gitlab issue: %w", err)
	}

	return &Issue{Number: int(issue.IID), URL: issue.WebURL}, nil
}

func (h *gitLabHost) CreatePullRequest(ctx context.Context, repo string, req PRRequest) (*PullRequest, error) {
	mr, _, err := h.client.MergeRequests.CreateMergeRequest(repo, &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(req.Title),
		Description:  gitlab.Ptr(req.Body),
		SourceBranch: gitlab.Ptr(req.Head),
		TargetBranch: gitlab.Ptr(req.Base),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating gitlab merge request: %w", err)
	}

	return &PullRequest{Number: int(mr.IID), URL: mr.WebURL}, nil
}

// ListReviewFeedback flattens MR discussions into comments. GitLab has no
// review summaries; positioned notes become inline comments and system
// notes are dropped.
func (h *gitLabHost) ListReviewFeedback(ctx context.Context, repo string, number int) (*Feedback, error) {
	opts := &gitlab.ListMergeRequestDiscussionsOptions{
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: 100,
		},
	}

	var discussions []*gitlab.Discussion
	for {
		page, resp, err := h.client.Discussions.ListMergeRequestDiscussions(repo, int64(number), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetching merge request discussions: %w", err)
		}
		discussions = append(discussions, page...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	fb := &Feedback{}
	for _, d := range discussions {
		if d == nil {
			continue
		}
		for _, n := range d.Notes {
			if n == nil || n.System {
				continue
			}
			c := Comment{Author: n.Author.Username, Body: n.Body}
			if n.Position != nil {
				c.Path = n.Position.NewPath
			}
			fb.Comments = append(fb.Comments, c)
		}
	}
	return fb, nil
}

func (h *gitLabHost) CloneURL(repo string) string {
	return fmt.Sprintf("https://oauth2:%s@%s/%s.git", h.token, h.webHost, repo)
}
