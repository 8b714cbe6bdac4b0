package repohost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/store"
)

var ErrIssueExists = errors.New("task already has an issue")

// IssueService opens the tracking issue for a task and records it on the
// task.
type IssueService interface {
	CreateForTask(ctx context.Context, task *model.Task) (*Issue, error)
}

type issueService struct {
	resolver Resolver
	tasks    store.TaskStore
	topics   store.TopicStore
	timeout  time.Duration
}

func NewIssueService(resolver Resolver, tasks store.TaskStore, topics store.TopicStore, timeout time.Duration) IssueService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &issueService{resolver: resolver, tasks: tasks, topics: topics, timeout: timeout}
}

func (s *issueService) CreateForTask(ctx context.Context, task *model.Task) (*Issue, error) {
	if task.IssueURL != nil && *task.IssueURL != "" {
		return nil, ErrIssueExists
	}

	target, err := s.resolver.Resolve(task.Product)
	if err != nil {
		return nil, err
	}

	signalCount := 1
	if task.TopicID != "" {
		if topic, err := s.topics.Get(ctx, task.TopicID); err == nil {
			signalCount = topic.SignalCount
		} else if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "could not load topic for issue body", "error", err, "topic_id", task.TopicID)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	issue, err := target.Host.CreateIssue(callCtx, target.Product.Repo, IssueRequest{
		Title:  IssueTitle(task),
		Body:   IssueBody(task, signalCount),
		Labels: IssueLabels(task, target.Product.Labels...),
	})
	if err != nil {
		return nil, err
	}

	if err := s.tasks.SetIssue(ctx, task.ID, issue.URL, issue.Number); err != nil {
		return nil, fmt.Errorf("recording issue on task: %w", err)
	}
	task.IssueURL = &issue.URL
	task.IssueNumber = &issue.Number

	slog.InfoContext(ctx, "issue created",
		"host", target.Host.Name(),
		"repo", target.Product.Repo,
		"issue_number", issue.Number,
		"issue_url", issue.URL)

	return issue, nil
}
