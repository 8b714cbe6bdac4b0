package fixer_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/fixer"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/queue"
	"darwin.app/engine/internal/store"
)

var _ = Describe("Scheduler", func() {
	var (
		ctx      context.Context
		tasks    *memTasks
		producer *fakeProducer
	)

	BeforeEach(func() {
		ctx = context.Background()
		tasks = newMemTasks(&model.Task{ID: "t1", Category: model.CategoryBug, FixStatus: model.FixStatusIdle})
		producer = &fakeProducer{}
	})

	It("enqueues an initial job on request", func() {
		s := fixer.NewScheduler(tasks, producer, nil)
		Expect(s.Request(ctx, "t1")).To(Succeed())
		Expect(producer.jobs).To(HaveLen(1))
		Expect(producer.jobs[0].Kind).To(Equal(queue.JobKindInitial))
		Expect(producer.jobs[0].TaskID).To(Equal("t1"))
	})

	It("reports preconditions before enqueueing", func() {
		s := fixer.NewScheduler(tasks, producer, nil)

		Expect(s.Request(ctx, "missing")).To(MatchError(store.ErrNotFound))

		tasks.task("t1").FixStatus = model.FixStatusRunning
		Expect(s.Request(ctx, "t1")).To(MatchError(fixer.ErrFixInProgress))

		url := "https://github.com/acme/app/pull/3"
		tasks.task("t1").FixStatus = model.FixStatusCompleted
		tasks.task("t1").FixPRURL = &url
		Expect(s.Request(ctx, "t1")).To(MatchError(fixer.ErrAlreadyHasPR))

		Expect(producer.jobs).To(BeEmpty())
	})

	It("only auto-triggers when the policy allows", func() {
		task := tasks.task("t1")

		off := fixer.NewScheduler(tasks, producer, fixer.NewPolicy(fixer.TriggerOff, nil, 0))
		ok, err := off.Auto(ctx, task)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		all := fixer.NewScheduler(tasks, producer, fixer.NewPolicy(fixer.TriggerAll, nil, 0))
		ok, err = all.Auto(ctx, task)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(producer.jobs).To(HaveLen(1))
	})

	It("enqueues remediation jobs with the PR branch", func() {
		s := fixer.NewScheduler(tasks, producer, nil)
		Expect(s.Remediate(ctx, "t1", 42, "darwin/fix-t1")).To(Succeed())
		Expect(producer.jobs).To(HaveLen(1))
		Expect(producer.jobs[0].Kind).To(Equal(queue.JobKindRemediate))
		Expect(producer.jobs[0].PRNumber).To(Equal(42))
		Expect(producer.jobs[0].Branch).To(Equal("darwin/fix-t1"))
	})
})

var _ = Describe("Policy", func() {
	product := func(s string) *string { return &s }

	It("never fixes non-actionable tasks", func() {
		p := fixer.NewPolicy(fixer.TriggerAll, nil, 0)
		Expect(p.Allow(&model.Task{Category: model.CategoryOther})).To(BeFalse())
		Expect(p.Allow(&model.Task{Category: model.CategoryFeature})).To(BeTrue())
	})

	It("matches allowlisted products case-insensitively", func() {
		p := fixer.NewPolicy(fixer.TriggerAllowlist, []string{" Checkout "}, 0)
		Expect(p.Allow(&model.Task{Category: model.CategoryBug, Product: product("checkout")})).To(BeTrue())
		Expect(p.Allow(&model.Task{Category: model.CategoryBug, Product: product("search")})).To(BeFalse())
		Expect(p.Allow(&model.Task{Category: model.CategoryBug})).To(BeFalse())
	})

	It("rate limits automatic triggers", func() {
		p := fixer.NewPolicy(fixer.TriggerAll, nil, 1)
		task := &model.Task{Category: model.CategoryBug}
		Expect(p.Allow(task)).To(BeTrue())
		Expect(p.Allow(task)).To(BeFalse())
	})
})
