package classify_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/classify"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/repohost"
	"darwin.app/engine/internal/store"
)

type fakeTopics struct {
	store.TopicStore
	topics          map[string]*model.Topic
	samples         map[string][]string
	classifications map[string]model.Classification
}

func (f *fakeTopics) Get(_ context.Context, id string) (*model.Topic, error) {
	t, ok := f.topics[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeTopics) SignalSample(_ context.Context, id string, limit int) ([]string, error) {
	s := f.samples[id]
	if len(s) > limit {
		s = s[:limit]
	}
	return s, nil
}

func (f *fakeTopics) SetClassification(_ context.Context, id string, c model.Classification) error {
	f.classifications[id] = c
	return nil
}

type fakeTasks struct {
	store.TaskStore
	created []*model.Task
}

func (f *fakeTasks) Create(_ context.Context, t *model.Task) error {
	f.created = append(f.created, t)
	return nil
}

type fakeClassifier struct {
	verdict *model.Classification
	err     error
	signals []string
}

func (f *fakeClassifier) Classify(_ context.Context, _, _ string, signals []string) (*model.Classification, error) {
	f.signals = signals
	return f.verdict, f.err
}

type fakeIssues struct {
	tasks []string
	err   error
}

func (f *fakeIssues) CreateForTask(_ context.Context, task *model.Task) (*repohost.Issue, error) {
	f.tasks = append(f.tasks, task.ID)
	if f.err != nil {
		return nil, f.err
	}
	return &repohost.Issue{Number: 1, URL: "https://github.com/acme/app/issues/1"}, nil
}

type fakeAutoFixer struct {
	tasks []string
}

func (f *fakeAutoFixer) Auto(_ context.Context, task *model.Task) (bool, error) {
	f.tasks = append(f.tasks, task.ID)
	return true, nil
}

var _ = Describe("Processor", func() {
	var (
		ctx        context.Context
		topics     *fakeTopics
		tasks      *fakeTasks
		classifier *fakeClassifier
		issues     *fakeIssues
		fixes      *fakeAutoFixer
		processor  *classify.Processor
	)

	BeforeEach(func() {
		ctx = context.Background()
		product := "checkout"
		topics = &fakeTopics{
			topics: map[string]*model.Topic{
				"t1": {ID: "t1", Title: "payment fails on safari", SignalCount: 3, Product: &product},
				"t2": {ID: "t2"},
			},
			samples:         map[string][]string{"t1": {"a", "b", "c"}},
			classifications: map[string]model.Classification{},
		}
		tasks = &fakeTasks{}
		major := model.SeverityMajor
		classifier = &fakeClassifier{verdict: &model.Classification{
			Category:   model.CategoryBug,
			Title:      "Payment fails on Safari",
			Summary:    "Safari users cannot pay.",
			Severity:   &major,
			Confidence: 0.9,
		}}
		issues = &fakeIssues{}
		fixes = &fakeAutoFixer{}
		processor = classify.NewProcessor(topics, tasks, classifier, issues, fixes, classify.ProcessorConfig{CreateIssues: true})
	})

	It("classifies an actionable topic into one task", func() {
		Expect(processor.Process(ctx, "t1")).To(Succeed())

		Expect(topics.classifications).To(HaveKey("t1"))
		Expect(classifier.signals).To(Equal([]string{"a", "b", "c"}))
		Expect(tasks.created).To(HaveLen(1))

		task := tasks.created[0]
		Expect(task.ID).NotTo(BeEmpty())
		Expect(task.TopicID).To(Equal("t1"))
		Expect(task.Title).To(Equal("Payment fails on Safari"))
		Expect(*task.Product).To(Equal("checkout"))
		Expect(task.Status).To(Equal(model.TaskStatusOpen))
		Expect(task.FixStatus).To(Equal(model.FixStatusIdle))

		Expect(issues.tasks).To(Equal([]string{task.ID}))
		Expect(fixes.tasks).To(Equal([]string{task.ID}))
	})

	It("records non-actionable categories without a task", func() {
		classifier.verdict = &model.Classification{Category: model.CategoryOther, Title: "Thanks!"}

		Expect(processor.Process(ctx, "t1")).To(Succeed())
		Expect(topics.classifications["t1"].Category).To(Equal(model.CategoryOther))
		Expect(tasks.created).To(BeEmpty())
		Expect(issues.tasks).To(BeEmpty())
	})

	It("drops missing and titleless topics", func() {
		Expect(processor.Process(ctx, "missing")).To(Succeed())
		Expect(processor.Process(ctx, "t2")).To(Succeed())
		Expect(classifier.signals).To(BeNil())
		Expect(topics.classifications).To(BeEmpty())
	})

	It("leaves the topic unclassified when the classifier fails", func() {
		classifier.err = errors.New("rate limited")
		classifier.verdict = nil

		Expect(processor.Process(ctx, "t1")).To(Succeed())
		Expect(topics.classifications).To(BeEmpty())
		Expect(tasks.created).To(BeEmpty())
	})

	It("keeps the task when issue creation fails", func() {
		issues.err = repohost.ErrNoRepository

		Expect(processor.Process(ctx, "t1")).To(Succeed())
		Expect(tasks.created).To(HaveLen(1))
		Expect(fixes.tasks).To(HaveLen(1))
	})

	It("skips issues when they are disabled", func() {
		processor = classify.NewProcessor(topics, tasks, classifier, issues, nil, classify.ProcessorConfig{})

		Expect(processor.Process(ctx, "t1")).To(Succeed())
		Expect(tasks.created).To(HaveLen(1))
		Expect(issues.tasks).To(BeEmpty())
	})
})
