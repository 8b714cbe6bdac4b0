package fixer

import (
	"context"
	"fmt"
	"log/slog"

	"darwin.app/engine/common/logger"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/queue"
	"darwin.app/engine/internal/store"
)

// Scheduler turns fix requests into fix jobs. It checks preconditions so
// callers get an immediate answer. The fix worker claims the task
// atomically before it runs, so a job that slips past this check is refused
// there.
type Scheduler struct {
	tasks    store.TaskStore
	producer queue.Producer
	policy   *Policy
}

func NewScheduler(tasks store.TaskStore, producer queue.Producer, policy *Policy) *Scheduler {
	return &Scheduler{tasks: tasks, producer: producer, policy: policy}
}

// Request enqueues an initial fix for a task. It returns store.ErrNotFound,
// ErrFixInProgress or ErrAlreadyHasPR when the fix cannot start.
func (s *Scheduler) Request(ctx context.Context, taskID string) error {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	return s.enqueueInitial(ctx, task)
}

// Auto enqueues an initial fix when the trigger policy allows it. It reports
// whether a job was enqueued.
func (s *Scheduler) Auto(ctx context.Context, task *model.Task) (bool, error) {
	if !s.policy.Allow(task) {
		slog.DebugContext(ctx, "auto-fix not triggered by policy", "task_id", task.ID)
		return false, nil
	}
	if err := s.enqueueInitial(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}

// Remediate enqueues another iteration on an existing PR branch.
func (s *Scheduler) Remediate(ctx context.Context, taskID string, prNumber int, branch string) error {
	return s.producer.Enqueue(ctx, queue.FixJob{
		Kind:     queue.JobKindRemediate,
		TaskID:   taskID,
		PRNumber: prNumber,
		Branch:   branch,
		TraceID:  logger.TraceIDFromContext(ctx),
	})
}

func (s *Scheduler) enqueueInitial(ctx context.Context, task *model.Task) error {
	if err := checkInitial(task); err != nil {
		return err
	}
	if err := s.producer.Enqueue(ctx, queue.FixJob{
		Kind:    queue.JobKindInitial,
		TaskID:  task.ID,
		TraceID: logger.TraceIDFromContext(ctx),
	}); err != nil {
		return fmt.Errorf("scheduling fix: %w", err)
	}
	return nil
}

func checkInitial(task *model.Task) error {
	if task.FixStatus == model.FixStatusRunning {
		return ErrFixInProgress
	}
	if task.HasPR() {
		return ErrAlreadyHasPR
	}
	return nil
}
