package feedback_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/feedback"
	"darwin.app/engine/internal/learning"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/store"
)

type fakeTasks struct {
	store.TaskStore
	tasks   map[string]*model.Task
	updates []model.FixUpdate
}

func (f *fakeTasks) Get(_ context.Context, id string) (*model.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasks) UpdateFix(_ context.Context, id string, u model.FixUpdate) error {
	f.updates = append(f.updates, u)
	t := f.tasks[id]
	if u.PRStatus != nil {
		t.FixPRStatus = u.PRStatus
	}
	if u.Outcome != nil {
		t.FixOutcome = u.Outcome
	}
	return nil
}

type fakeLearner struct {
	stored   map[string]learning.PRInfo
	reviews  []string
	storeErr error
}

func (f *fakeLearner) StoreSuccessfulFix(_ context.Context, task *model.Task, pr learning.PRInfo) (bool, error) {
	if f.storeErr != nil {
		return false, f.storeErr
	}
	if _, ok := f.stored[task.ID]; ok {
		return false, nil
	}
	f.stored[task.ID] = pr
	return true, nil
}

func (f *fakeLearner) LearnFromReview(_ context.Context, _ *model.Task, _, body string) (int, error) {
	f.reviews = append(f.reviews, body)
	return 1, nil
}

type remediation struct {
	taskID   string
	prNumber int
	branch   string
}

type fakeRemediator struct {
	calls []remediation
	err   error
}

func (f *fakeRemediator) Remediate(_ context.Context, taskID string, prNumber int, branch string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, remediation{taskID, prNumber, branch})
	return nil
}

var _ = Describe("TaskID", func() {
	It("reads the body marker first", func() {
		id, err := feedback.TaskID("## Summary\n...\n\nTask ID: 1a2b3c\n", "darwin/fix-ffff")
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("1a2b3c"))
	})

	It("accepts the marker in any case", func() {
		id, err := feedback.TaskID("task id:   ABC123", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("abc123"))
	})

	It("falls back to the fix branch", func() {
		id, err := feedback.TaskID("edited by a human", "darwin/fix-0f9e")
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("0f9e"))

		id, err = feedback.TaskID("", "fix-77")
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("77"))
	})

	It("reports pull requests that are not fixes", func() {
		_, err := feedback.TaskID("Refactor logging", "feature/fix-login-page")
		Expect(err).To(MatchError(feedback.ErrNoTaskID))
	})
})

var _ = Describe("Handler", func() {
	var (
		ctx        context.Context
		tasks      *fakeTasks
		learner    *fakeLearner
		remediator *fakeRemediator
		handler    *feedback.Handler
		task       *model.Task
	)

	BeforeEach(func() {
		ctx = context.Background()
		url := "https://github.com/acme/app/pull/42"
		pr := 42
		branch := "darwin/fix-abc"
		open := model.PRStatusOpen
		task = &model.Task{
			ID:          "abc",
			FixStatus:   model.FixStatusCompleted,
			FixPRURL:    &url,
			FixPRNumber: &pr,
			FixBranch:   &branch,
			FixPRStatus: &open,
		}
		tasks = &fakeTasks{tasks: map[string]*model.Task{"abc": task}}
		learner = &fakeLearner{stored: map[string]learning.PRInfo{}}
		remediator = &fakeRemediator{}
		handler = feedback.NewHandler(tasks, learner, remediator, 3)
	})

	event := func(kind feedback.EventKind) feedback.Event {
		return feedback.Event{
			Kind:     kind,
			Repo:     "acme/app",
			PRNumber: 42,
			PRURL:    "https://github.com/acme/app/pull/42",
			PRBody:   "Task ID: abc",
			Branch:   "darwin/fix-abc",
		}
	}

	It("stores exactly one successful fix on merge", func() {
		ev := event(feedback.EventPRClosed)
		ev.Merged = true

		Expect(handler.Handle(ctx, ev)).To(Equal(feedback.OutcomeMerged))
		Expect(handler.Handle(ctx, ev)).To(Equal(feedback.OutcomeMerged))

		Expect(learner.stored).To(HaveLen(1))
		Expect(learner.stored["abc"].URL).To(Equal("https://github.com/acme/app/pull/42"))
		Expect(*task.FixPRStatus).To(Equal(model.PRStatusMerged))
		Expect(*task.FixOutcome).To(Equal(model.FixOutcomeSuccess))
	})

	It("still records the merge when the fix record cannot be stored", func() {
		learner.storeErr = errors.New("redis down")
		ev := event(feedback.EventPRClosed)
		ev.Merged = true

		Expect(handler.Handle(ctx, ev)).To(Equal(feedback.OutcomeMerged))
		Expect(*task.FixOutcome).To(Equal(model.FixOutcomeSuccess))
	})

	It("rejects a PR closed without merge", func() {
		Expect(handler.Handle(ctx, event(feedback.EventPRClosed))).To(Equal(feedback.OutcomeClosed))
		Expect(learner.stored).To(BeEmpty())
		Expect(*task.FixPRStatus).To(Equal(model.PRStatusClosed))
		Expect(*task.FixOutcome).To(Equal(model.FixOutcomeRejected))
	})

	It("reopens a closed PR", func() {
		Expect(handler.Handle(ctx, event(feedback.EventPRClosed))).To(Equal(feedback.OutcomeClosed))
		Expect(handler.Handle(ctx, event(feedback.EventPRReopened))).To(Equal(feedback.OutcomeReopened))
		Expect(*task.FixPRStatus).To(Equal(model.PRStatusOpen))
		Expect(*task.FixOutcome).To(Equal(model.FixOutcomePending))
	})

	It("learns from and remediates requested changes", func() {
		ev := event(feedback.EventReviewSubmitted)
		ev.ReviewState = feedback.ReviewChangesRequested
		ev.ReviewBody = "Please add a regression test for the empty cart"
		ev.Reviewer = "maria"

		Expect(handler.Handle(ctx, ev)).To(Equal(feedback.OutcomeRemediate))
		Expect(learner.reviews).To(ConsistOf(ev.ReviewBody))
		Expect(remediator.calls).To(ConsistOf(remediation{"abc", 42, "darwin/fix-abc"}))
	})

	It("stops remediating at the iteration cap", func() {
		task.FixIterations = 3
		ev := event(feedback.EventReviewSubmitted)
		ev.ReviewState = feedback.ReviewChangesRequested
		ev.ReviewBody = "Still not right"

		Expect(handler.Handle(ctx, ev)).To(Equal(feedback.OutcomeCapped))
		Expect(remediator.calls).To(BeEmpty())
		Expect(learner.reviews).To(HaveLen(1))
	})

	It("does not remediate while a fix is running", func() {
		task.FixStatus = model.FixStatusRunning
		ev := event(feedback.EventReviewSubmitted)
		ev.ReviewState = feedback.ReviewChangesRequested

		Expect(handler.Handle(ctx, ev)).To(Equal(feedback.OutcomeBusy))
		Expect(remediator.calls).To(BeEmpty())
	})

	It("only acknowledges approvals", func() {
		ev := event(feedback.EventReviewSubmitted)
		ev.ReviewState = feedback.ReviewApproved

		Expect(handler.Handle(ctx, ev)).To(Equal(feedback.OutcomeAcknowledged))
		Expect(learner.reviews).To(BeEmpty())
		Expect(tasks.updates).To(BeEmpty())
	})

	It("ignores events it cannot correlate", func() {
		ev := event(feedback.EventPRClosed)
		ev.PRBody = "unrelated"
		ev.Branch = "main"
		Expect(handler.Handle(ctx, ev)).To(Equal(feedback.OutcomeIgnored))

		ev.PRBody = "Task ID: 999"
		Expect(handler.Handle(ctx, ev)).To(Equal(feedback.OutcomeIgnored))
		Expect(tasks.updates).To(BeEmpty())
	})

	It("reports a failed schedule without raising", func() {
		remediator.err = errors.New("stream unavailable")
		ev := event(feedback.EventReviewSubmitted)
		ev.ReviewState = feedback.ReviewChangesRequested

		Expect(handler.Handle(ctx, ev)).To(Equal(feedback.OutcomeFailed))
	})
})
