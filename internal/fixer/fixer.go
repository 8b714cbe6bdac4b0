package fixer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"darwin.app/engine/common/logger"
	"darwin.app/engine/internal/agent"
	"darwin.app/engine/internal/learning"
	"darwin.app/engine/internal/metrics"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/queue"
	"darwin.app/engine/internal/repohost"
	"darwin.app/engine/internal/store"
)

const (
	kindInitial   = "initial"
	kindRemediate = "remediate"
)

// Git is the subset of gitops.Git the pipeline drives.
type Git interface {
	Workspace(name string) (string, error)
	Clone(ctx context.Context, cloneURL, branch, dir string) error
	CreateBranch(ctx context.Context, dir, branch string) error
	CommitAll(ctx context.Context, dir, message string) ([]string, error)
	Push(ctx context.Context, dir, branch string) error
	Cleanup(ctx context.Context, dir string)
}

type Learner interface {
	SimilarFixes(ctx context.Context, task *model.Task, limit int, minScore float64) []model.SuccessfulFix
	TopRules(ctx context.Context, product *string, limit int) []model.Rule
	MarkRulesUsed(ctx context.Context, rules []model.Rule)
}

type Config struct {
	BranchPrefix       string
	MaxIterations      int
	SimilarFixLimit    int
	SimilarFixMinScore float64
	RuleLimit          int
}

// Fixer runs fix jobs: the initial fix that opens a PR and the bounded
// remediation iterations that follow review feedback.
type Fixer struct {
	tasks    store.TaskStore
	resolver repohost.Resolver
	git      Git
	agent    agent.Orchestrator
	learner  Learner
	cfg      Config
}

func New(tasks store.TaskStore, resolver repohost.Resolver, git Git, orchestrator agent.Orchestrator, learner Learner, cfg Config) *Fixer {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	return &Fixer{
		tasks:    tasks,
		resolver: resolver,
		git:      git,
		agent:    orchestrator,
		learner:  learner,
		cfg:      cfg,
	}
}

// Handle dispatches a fix job by kind.
func (f *Fixer) Handle(ctx context.Context, job queue.FixJob) error {
	switch job.Kind {
	case queue.JobKindInitial:
		return f.RunInitial(ctx, job.TaskID)
	case queue.JobKindRemediate:
		return f.RunRemediation(ctx, job.TaskID, job.PRNumber, job.Branch)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// RunInitial clones the product repository, lets the agent change it on a
// fresh branch and opens a PR. Every failing stage marks the task failed
// and stops; nothing is retried.
func (f *Fixer) RunInitial(ctx context.Context, taskID string) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TaskID:    logger.Ptr(taskID),
		Component: "darwin.fixer.initial",
	})
	sc := logger.StartSpan(ctx, "fixer.initial", trace.WithSpanKind(trace.SpanKindInternal))
	defer sc.End()
	ctx = sc.Context()
	defer metrics.ObserveStage("fix_initial", time.Now())

	if err := f.tasks.ClaimFix(ctx, taskID, model.FixClaim{RequireNoPR: true}); err != nil {
		return fmt.Errorf("claiming task: %w", err)
	}

	task, err := f.tasks.Get(ctx, taskID)
	if err != nil {
		return f.fail(ctx, taskID, kindInitial, "load", err)
	}

	target, err := f.resolver.Resolve(task.Product)
	if err != nil {
		return f.fail(ctx, task.ID, kindInitial, "resolve", err)
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Product: logger.Ptr(target.Product.Name)})
	slog.InfoContext(ctx, "initial fix started", "repo", target.Product.Repo)

	dir, err := f.git.Workspace(task.ID)
	if err != nil {
		return f.fail(ctx, task.ID, kindInitial, "workspace", err)
	}
	defer f.git.Cleanup(context.WithoutCancel(ctx), dir)

	if err := f.git.Clone(ctx, target.Host.CloneURL(target.Product.Repo), target.Product.DefaultBranch, dir); err != nil {
		return f.fail(ctx, task.ID, kindInitial, "clone", err)
	}

	branch := repohost.BranchName(f.cfg.BranchPrefix, task.ID)
	if err := f.git.CreateBranch(ctx, dir, branch); err != nil {
		return f.fail(ctx, task.ID, kindInitial, "branch", err)
	}

	fixes := f.learner.SimilarFixes(ctx, task, f.cfg.SimilarFixLimit, f.cfg.SimilarFixMinScore)
	rules := f.learner.TopRules(ctx, task.Product, f.cfg.RuleLimit)
	f.learner.MarkRulesUsed(ctx, rules)

	result, err := f.agent.Fix(ctx, agent.Request{
		Task:    task,
		RepoDir: dir,
		Context: learning.FormatContext(fixes, rules),
	})
	if err != nil {
		return f.fail(ctx, task.ID, kindInitial, "agent", err)
	}

	message := fmt.Sprintf("%s\n\n%s\n\nAutomated fix by Darwin for task %s", repohost.PRTitle(task), result.Summary, task.ID)
	files, err := f.git.CommitAll(ctx, dir, message)
	if err != nil {
		return f.fail(ctx, task.ID, kindInitial, "commit", err)
	}

	if err := f.git.Push(ctx, dir, branch); err != nil {
		return f.fail(ctx, task.ID, kindInitial, "push", err)
	}

	pr, err := target.Host.CreatePullRequest(ctx, target.Product.Repo, repohost.PRRequest{
		Title: repohost.PRTitle(task),
		Body:  repohost.PRBody(task, files),
		Head:  branch,
		Base:  target.Product.DefaultBranch,
	})
	if err != nil {
		// The branch is pushed; record it so an operator can open the PR.
		msg := fmt.Sprintf("pr: %v", err)
		if uerr := f.tasks.UpdateFix(context.WithoutCancel(ctx), task.ID, model.FixUpdate{
			Status:       statusPtr(model.FixStatusCompleted),
			Branch:       &branch,
			FilesChanged: files,
			Error:        &msg,
		}); uerr != nil {
			slog.ErrorContext(ctx, "failed to record fix after PR failure", "error", uerr)
		}
		metrics.FixAttempt(kindInitial, "pr_failed")
		slog.ErrorContext(ctx, "fix pushed but PR creation failed", "branch", branch, "error", err)
		return &StageError{Stage: "pr", Err: err}
	}

	if err := f.tasks.UpdateFix(context.WithoutCancel(ctx), task.ID, model.FixUpdate{
		Status:       statusPtr(model.FixStatusCompleted),
		PRURL:        &pr.URL,
		PRNumber:     &pr.Number,
		Branch:       &branch,
		PRStatus:     prStatusPtr(model.PRStatusOpen),
		Outcome:      outcomePtr(model.FixOutcomePending),
		FilesChanged: files,
		ClearError:   true,
	}); err != nil {
		return fmt.Errorf("recording fix PR: %w", err)
	}

	metrics.FixAttempt(kindInitial, "completed")
	slog.InfoContext(ctx, "initial fix completed",
		"pr_url", pr.URL,
		"pr_number", pr.Number,
		"files_changed", len(files))
	return nil
}

// RunRemediation pushes one more agent iteration onto an existing PR branch
// to address review feedback. It is a no-op once the iteration cap is
// reached or when the PR has no feedback to address.
func (f *Fixer) RunRemediation(ctx context.Context, taskID string, prNumber int, branch string) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TaskID:    logger.Ptr(taskID),
		PRNumber:  logger.Ptr(prNumber),
		Component: "darwin.fixer.remediate",
	})
	sc := logger.StartSpan(ctx, "fixer.remediate", trace.WithSpanKind(trace.SpanKindInternal))
	defer sc.End()
	ctx = sc.Context()
	defer metrics.ObserveStage("fix_remediate", time.Now())

	// The claim reserves this run's iteration, so the cap holds even when
	// duplicate review deliveries race.
	err := f.tasks.ClaimFix(ctx, taskID, model.FixClaim{MaxIterations: f.cfg.MaxIterations})
	if errors.Is(err, store.ErrIterationCap) {
		slog.WarnContext(ctx, "max fix iterations reached, skipping remediation",
			"max_iterations", f.cfg.MaxIterations)
		metrics.FixAttempt(kindRemediate, "capped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("claiming task: %w", err)
	}

	task, err := f.tasks.Get(ctx, taskID)
	if err != nil {
		return f.fail(ctx, taskID, kindRemediate, "load", err)
	}
	iteration := task.FixIterations

	target, err := f.resolver.Resolve(task.Product)
	if err != nil {
		return f.fail(ctx, task.ID, kindRemediate, "resolve", err)
	}

	feedback, err := target.Host.ListReviewFeedback(ctx, target.Product.Repo, prNumber)
	if err != nil {
		return f.fail(ctx, task.ID, kindRemediate, "feedback", err)
	}
	if feedback.Empty() {
		slog.InfoContext(ctx, "no review comments to address")
		// Hand the reserved iteration back; nothing was attempted.
		if err := f.tasks.UpdateFix(context.WithoutCancel(ctx), task.ID, model.FixUpdate{
			Status:         statusPtr(model.FixStatusCompleted),
			IterationDelta: -1,
		}); err != nil {
			return fmt.Errorf("marking fix completed: %w", err)
		}
		metrics.FixAttempt(kindRemediate, "no_feedback")
		return nil
	}

	dir, err := f.git.Workspace(task.ID + "-feedback")
	if err != nil {
		return f.fail(ctx, task.ID, kindRemediate, "workspace", err)
	}
	defer f.git.Cleanup(context.WithoutCancel(ctx), dir)

	if err := f.git.Clone(ctx, target.Host.CloneURL(target.Product.Repo), branch, dir); err != nil {
		return f.fail(ctx, task.ID, kindRemediate, "clone", err)
	}

	slog.InfoContext(ctx, "remediation started",
		"iteration", iteration,
		"reviews", len(feedback.Reviews),
		"comments", len(feedback.Comments))

	rules := f.learner.TopRules(ctx, task.Product, f.cfg.RuleLimit)
	f.learner.MarkRulesUsed(ctx, rules)

	result, err := f.agent.Fix(ctx, agent.Request{
		Task:     task,
		RepoDir:  dir,
		Context:  learning.FormatContext(nil, rules),
		Feedback: feedback,
	})
	if err != nil {
		return f.fail(ctx, task.ID, kindRemediate, "agent", err)
	}

	message := fmt.Sprintf("fix: address review feedback (iteration %d)\n\n%s\n\nAutomated fix by Darwin for task %s", iteration, result.Summary, task.ID)
	files, err := f.git.CommitAll(ctx, dir, message)
	if err != nil {
		return f.fail(ctx, task.ID, kindRemediate, "commit", err)
	}
	if err := f.git.Push(ctx, dir, branch); err != nil {
		return f.fail(ctx, task.ID, kindRemediate, "push", err)
	}

	if err := f.tasks.UpdateFix(context.WithoutCancel(ctx), task.ID, model.FixUpdate{
		Status:       statusPtr(model.FixStatusCompleted),
		FilesChanged: mergeFiles(task.FilesChanged, files),
	}); err != nil {
		return fmt.Errorf("marking fix completed: %w", err)
	}

	metrics.FixAttempt(kindRemediate, "completed")
	slog.InfoContext(ctx, "remediation pushed", "iteration", iteration, "files_changed", len(files))
	return nil
}

// fail records a failed stage on the task and returns it as a StageError.
// The record outlives ctx so a cancelled run never stays running.
func (f *Fixer) fail(ctx context.Context, taskID, kind, stage string, cause error) error {
	msg := fmt.Sprintf("%s: %v", stage, cause)
	if err := f.tasks.UpdateFix(context.WithoutCancel(ctx), taskID, model.FixUpdate{
		Status: statusPtr(model.FixStatusFailed),
		Error:  &msg,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to record fix failure", "stage", stage, "error", err)
	}

	level := slog.LevelError
	if errors.Is(cause, ErrNoRepository) || errors.Is(cause, agent.ErrNoChanges) {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "fix stage failed", "kind", kind, "stage", stage, "error", cause)
	metrics.FixAttempt(kind, "failed")

	return &StageError{Stage: stage, Err: cause}
}

func mergeFiles(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, f := range append(append([]string(nil), existing...), added...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func statusPtr(s model.FixStatus) *model.FixStatus    { return &s }
func prStatusPtr(s model.PRStatus) *model.PRStatus    { return &s }
func outcomePtr(s model.FixOutcome) *model.FixOutcome { return &s }
