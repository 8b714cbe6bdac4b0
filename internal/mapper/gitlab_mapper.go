package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"darwin.app/engine/internal/feedback"
)

type GitLabEventMapper struct {
	botUser string
}

// NewGitLabEventMapper builds a mapper that ignores notes written by botUser,
// the account that opens fix merge requests. An empty botUser ignores nobody.
func NewGitLabEventMapper(botUser string) *GitLabEventMapper {
	return &GitLabEventMapper{botUser: strings.TrimPrefix(botUser, "@")}
}

func (m *GitLabEventMapper) Map(ctx context.Context, body []byte, headers map[string]string) (*feedback.Event, error) {
	var payload gitlabWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid gitlab payload: %w", err)
	}

	switch m.kind(headers["X-Gitlab-Event"], payload.ObjectKind) {
	case "merge_request":
		return m.mergeRequest(payload)
	case "note":
		return m.note(payload)
	default:
		return nil, fmt.Errorf("%w: header=%q object_kind=%q", ErrUnsupportedEvent, headers["X-Gitlab-Event"], payload.ObjectKind)
	}
}

func (m *GitLabEventMapper) kind(headerEventType, objectKind string) string {
	switch headerEventType {
	case "Merge Request Hook":
		return "merge_request"
	case "Note Hook":
		return "note"
	}
	return objectKind
}

func (m *GitLabEventMapper) mergeRequest(p gitlabWebhookPayload) (*feedback.Event, error) {
	attrs := p.ObjectAttributes
	ev := &feedback.Event{
		Host:     "gitlab",
		Repo:     p.Project.PathWithNamespace,
		PRNumber: int(attrs.IID),
		PRURL:    attrs.URL,
		PRTitle:  attrs.Title,
		PRBody:   attrs.Description,
		Branch:   attrs.SourceBranch,
	}

	switch attrs.Action {
	case "merge":
		ev.Kind = feedback.EventPRClosed
		ev.Merged = true
		now := time.Now().UTC()
		ev.MergedAt = &now
	case "close":
		ev.Kind = feedback.EventPRClosed
	case "reopen":
		ev.Kind = feedback.EventPRReopened
	case "approved":
		ev.Kind = feedback.EventReviewSubmitted
		ev.ReviewState = feedback.ReviewApproved
		ev.Reviewer = p.User.Username
	default:
		return nil, fmt.Errorf("%w: merge_request %s", ErrUnsupportedEvent, attrs.Action)
	}
	return ev, nil
}

// note maps a discussion note on a merge request. GitLab has no "request
// changes" review, so a human note is treated as one. Notes the bot leaves on
// its own merge request must not start a remediation loop.
func (m *GitLabEventMapper) note(p gitlabWebhookPayload) (*feedback.Event, error) {
	if p.ObjectAttributes.NoteableType != "MergeRequest" || p.MergeRequest.IID == 0 {
		return nil, fmt.Errorf("%w: note on %s", ErrUnsupportedEvent, p.ObjectAttributes.NoteableType)
	}
	if p.ObjectAttributes.System {
		return nil, fmt.Errorf("%w: system note", ErrUnsupportedEvent)
	}
	if m.botUser != "" && strings.EqualFold(p.User.Username, m.botUser) {
		return nil, fmt.Errorf("%w: note by %s", ErrUnsupportedEvent, p.User.Username)
	}

	mr := p.MergeRequest
	return &feedback.Event{
		Kind:        feedback.EventReviewSubmitted,
		Host:        "gitlab",
		Repo:        p.Project.PathWithNamespace,
		PRNumber:    int(mr.IID),
		PRURL:       mr.URL,
		PRTitle:     mr.Title,
		PRBody:      mr.Description,
		Branch:      mr.SourceBranch,
		ReviewState: feedback.ReviewChangesRequested,
		ReviewBody:  p.ObjectAttributes.Note,
		Reviewer:    p.User.Username,
	}, nil
}

type gitlabWebhookPayload struct {
	ObjectKind string `json:"object_kind"`
	User       struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"user"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	ObjectAttributes struct {
		IID          int64  `json:"iid"`
		Title        string `json:"title"`
		Description  string `json:"description"`
		SourceBranch string `json:"source_branch"`
		State        string `json:"state"`
		Action       string `json:"action"`
		URL          string `json:"url"`
		Note         string `json:"note"`
		NoteableType string `json:"noteable_type"`
		System       bool   `json:"system"`
	} `json:"object_attributes"`
	MergeRequest struct {
		IID          int64  `json:"iid"`
		Title        string `json:"title"`
		Description  string `json:"description"`
		SourceBranch string `json:"source_branch"`
		URL          string `json:"url"`
	} `json:"merge_request"`
}
