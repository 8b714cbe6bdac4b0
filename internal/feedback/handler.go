package feedback

import (
	"context"
	"errors"
	"log/slog"

	"darwin.app/engine/common/logger"
	"darwin.app/engine/internal/learning"
	"darwin.app/engine/internal/metrics"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/store"
)

// Outcome is what the handler did with an event.
type Outcome string

const (
	OutcomeIgnored      Outcome = "ignored"
	OutcomeMerged       Outcome = "merged"
	OutcomeClosed       Outcome = "closed"
	OutcomeReopened     Outcome = "reopened"
	OutcomeRemediate    Outcome = "remediation_queued"
	OutcomeCapped       Outcome = "max_iterations"
	OutcomeBusy         Outcome = "fix_running"
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeFailed       Outcome = "failed"
)

type Learner interface {
	StoreSuccessfulFix(ctx context.Context, task *model.Task, pr learning.PRInfo) (bool, error)
	LearnFromReview(ctx context.Context, task *model.Task, reviewer, feedback string) (int, error)
}

// Remediator schedules another fix iteration on a PR branch.
type Remediator interface {
	Remediate(ctx context.Context, taskID string, prNumber int, branch string) error
}

// Handler moves tasks through the PR lifecycle. It never returns an error:
// duplicate and out-of-order deliveries are expected and every failure is
// logged and reported as an outcome.
type Handler struct {
	tasks         store.TaskStore
	learner       Learner
	remediator    Remediator
	maxIterations int
}

func NewHandler(tasks store.TaskStore, learner Learner, remediator Remediator, maxIterations int) *Handler {
	if maxIterations <= 0 {
		maxIterations = 3
	}
	return &Handler{
		tasks:         tasks,
		learner:       learner,
		remediator:    remediator,
		maxIterations: maxIterations,
	}
}

func (h *Handler) Handle(ctx context.Context, ev Event) Outcome {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		PRNumber:  logger.Ptr(ev.PRNumber),
		Component: "darwin.feedback",
	})

	taskID, err := TaskID(ev.PRBody, ev.Branch)
	if err != nil {
		slog.DebugContext(ctx, "pull request is not a darwin fix, ignoring", "repo", ev.Repo, "branch", ev.Branch)
		metrics.PREvent(string(OutcomeIgnored))
		return OutcomeIgnored
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(taskID)})

	task, err := h.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "pull request references unknown task, ignoring")
		} else {
			slog.ErrorContext(ctx, "failed to load task for pull request event", "error", err)
		}
		metrics.PREvent(string(OutcomeIgnored))
		return OutcomeIgnored
	}

	var outcome Outcome
	switch ev.Kind {
	case EventPRClosed:
		if ev.Merged {
			outcome = h.merged(ctx, task, ev)
		} else {
			outcome = h.setPRState(ctx, task, model.PRStatusClosed, model.FixOutcomeRejected, OutcomeClosed)
		}
	case EventPRReopened:
		outcome = h.setPRState(ctx, task, model.PRStatusOpen, model.FixOutcomePending, OutcomeReopened)
	case EventReviewSubmitted:
		outcome = h.review(ctx, task, ev)
	default:
		outcome = OutcomeIgnored
	}

	metrics.PREvent(string(outcome))
	slog.InfoContext(ctx, "pull request event handled",
		"kind", ev.Kind,
		"review_state", ev.ReviewState,
		"outcome", outcome)
	return outcome
}

func (h *Handler) merged(ctx context.Context, task *model.Task, ev Event) Outcome {
	prURL := ev.PRURL
	if prURL == "" && task.FixPRURL != nil {
		prURL = *task.FixPRURL
	}
	// A failed fix record only weakens future retrieval; the PR state still
	// has to be recorded.
	if _, err := h.learner.StoreSuccessfulFix(ctx, task, learning.PRInfo{
		URL:      prURL,
		Title:    ev.PRTitle,
		MergedAt: ev.MergedAt,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to store successful fix", "error", err)
	}
	return h.setPRState(ctx, task, model.PRStatusMerged, model.FixOutcomeSuccess, OutcomeMerged)
}

func (h *Handler) setPRState(ctx context.Context, task *model.Task, status model.PRStatus, outcome model.FixOutcome, result Outcome) Outcome {
	if err := h.tasks.UpdateFix(ctx, task.ID, model.FixUpdate{
		PRStatus: &status,
		Outcome:  &outcome,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to update pull request state", "pr_status", status, "error", err)
		return OutcomeFailed
	}
	return result
}

func (h *Handler) review(ctx context.Context, task *model.Task, ev Event) Outcome {
	if ev.ReviewState != ReviewChangesRequested {
		slog.InfoContext(ctx, "review received", "state", ev.ReviewState, "reviewer", ev.Reviewer)
		return OutcomeAcknowledged
	}

	if n, err := h.learner.LearnFromReview(ctx, task, ev.Reviewer, ev.ReviewBody); err != nil {
		slog.WarnContext(ctx, "rule extraction from review failed", "error", err, "rules_stored", n)
	} else if n > 0 {
		slog.InfoContext(ctx, "rules learned from review", "rules_stored", n)
	}

	if task.FixPRStatus != nil && *task.FixPRStatus != model.PRStatusOpen {
		return OutcomeAcknowledged
	}
	if task.FixIterations >= h.maxIterations {
		slog.InfoContext(ctx, "max fix iterations reached, not remediating",
			"iterations", task.FixIterations,
			"max_iterations", h.maxIterations)
		return OutcomeCapped
	}
	if task.FixStatus == model.FixStatusRunning {
		return OutcomeBusy
	}

	branch := ev.Branch
	if branch == "" && task.FixBranch != nil {
		branch = *task.FixBranch
	}
	prNumber := ev.PRNumber
	if prNumber == 0 && task.FixPRNumber != nil {
		prNumber = *task.FixPRNumber
	}
	if branch == "" || prNumber == 0 {
		slog.WarnContext(ctx, "review event without pull request branch, not remediating")
		return OutcomeAcknowledged
	}

	if err := h.remediator.Remediate(ctx, task.ID, prNumber, branch); err != nil {
		slog.ErrorContext(ctx, "failed to schedule remediation", "error", err)
		return OutcomeFailed
	}
	return OutcomeRemediate
}
