package cluster_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/cluster"
	"darwin.app/engine/internal/model"
)

var _ = Describe("Engine", func() {
	var (
		ctx      context.Context
		index    *fakeIndex
		topics   *memTopics
		signals  *memSignals
		triage   *memTriage
		classify *memList
		engine   *cluster.Engine
		nextID   int
	)

	BeforeEach(func() {
		ctx = context.Background()
		index = &fakeIndex{}
		topics = newMemTopics()
		signals = newMemSignals()
		triage = &memTriage{}
		classify = &memList{}
		nextID = 0
		engine = cluster.New(index, topics, signals, triage, classify, cluster.DefaultConfig(),
			cluster.WithIDGenerator(func() string {
				nextID++
				return []string{"a1", "b2", "c3"}[nextID-1]
			}))
	})

	matchAt := func(topicID string, sim float64) {
		index.nearestFn = func(context.Context, []float32, int) ([]model.TopicMatch, error) {
			return []model.TopicMatch{{TopicID: topicID, Similarity: sim}}, nil
		}
	}

	Context("with an empty index", func() {
		It("creates a topic seeded with the signal alone", func() {
			res, err := engine.Cluster(ctx, cluster.Input{SignalID: "s1", Embedding: []float32{0.3, 0.4}, Seed: "login fails"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Action).To(Equal(cluster.ActionCreated))
			Expect(res.TopicID).To(Equal("a1"))
			Expect(res.Similarity).To(BeNil())

			topic := topics.topics["a1"]
			Expect(topic.SignalCount).To(Equal(1))
			Expect(topic.Centroid).To(Equal([]float32{0.3, 0.4}))
			Expect(topic.Title).To(Equal("login fails"))
			Expect(classify.items).To(Equal([]string{"a1"}))
			Expect(signals.topicOf["s1"]).To(Equal("a1"))
		})

		It("truncates long seeds into the title", func() {
			_, err := engine.Cluster(ctx, cluster.Input{SignalID: "s1", Embedding: []float32{1}, Seed: strings.Repeat("x", 150)})
			Expect(err).NotTo(HaveOccurred())
			Expect(topics.topics["a1"].Title).To(Equal(strings.Repeat("x", 100) + "..."))
		})

		It("treats an index error as no match", func() {
			index.nearestFn = func(context.Context, []float32, int) ([]model.TopicMatch, error) {
				return nil, errors.New("no such index")
			}
			res, err := engine.Cluster(ctx, cluster.Input{SignalID: "s1", Embedding: []float32{1, 0}, Seed: "x"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Action).To(Equal(cluster.ActionCreated))
		})
	})

	Context("with an existing topic", func() {
		BeforeEach(func() {
			topics.topics["t9"] = &model.Topic{ID: "t9", Title: "old", SignalCount: 2, Centroid: []float32{1, 0}}
		})

		It("attaches above the high threshold and folds the embedding into the mean", func() {
			matchAt("t9", 0.8)

			res, err := engine.Cluster(ctx, cluster.Input{SignalID: "s1", Embedding: []float32{0, 1}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Action).To(Equal(cluster.ActionAttached))
			Expect(*res.Similarity).To(Equal(0.8))

			topic := topics.topics["t9"]
			Expect(topic.SignalCount).To(Equal(3))
			Expect(float64(topic.Centroid[0])).To(BeNumerically("~", 2.0/3, 1e-6))
			Expect(float64(topic.Centroid[1])).To(BeNumerically("~", 1.0/3, 1e-6))
			Expect(classify.items).To(BeEmpty())
		})

		It("attaches at exactly the high threshold", func() {
			matchAt("t9", 0.75)
			res, err := engine.Cluster(ctx, cluster.Input{SignalID: "s1", Embedding: []float32{0, 1}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Action).To(Equal(cluster.ActionAttached))
		})

		It("parks a signal in the triage band without touching the topic", func() {
			matchAt("t9", 0.65)

			res, err := engine.Cluster(ctx, cluster.Input{SignalID: "s1", Embedding: []float32{0, 1}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Action).To(Equal(cluster.ActionTriage))
			Expect(res.TopicID).To(Equal("t9"))

			Expect(triage.entries).To(Equal([]model.TriageEntry{{SignalID: "s1", TopicID: "t9"}}))
			Expect(topics.updates).To(BeZero())
			Expect(topics.topics["t9"].SignalCount).To(Equal(2))
			Expect(topics.topics["t9"].Centroid).To(Equal([]float32{1, 0}))
			Expect(signals.topicOf["s1"]).To(Equal("t9"))
			Expect(signals.embeddings["s1"]).To(Equal([]float32{0, 1}))
			Expect(classify.items).To(BeEmpty())
		})

		It("creates a new topic below the low threshold", func() {
			matchAt("t9", 0.59)

			res, err := engine.Cluster(ctx, cluster.Input{SignalID: "s1", Embedding: []float32{0, 1}, Seed: "new thing"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Action).To(Equal(cluster.ActionCreated))
			Expect(res.TopicID).To(Equal("a1"))
			Expect(*res.Similarity).To(Equal(0.59))
			Expect(topics.topics["t9"].SignalCount).To(Equal(2))
			Expect(classify.items).To(Equal([]string{"a1"}))
		})

		It("only consults the best candidate", func() {
			topics.topics["t8"] = &model.Topic{ID: "t8", SignalCount: 1, Centroid: []float32{0, 1}}
			index.nearestFn = func(context.Context, []float32, int) ([]model.TopicMatch, error) {
				return []model.TopicMatch{{TopicID: "t9", Similarity: 0.7}, {TopicID: "t8", Similarity: 0.7}}, nil
			}
			res, err := engine.Cluster(ctx, cluster.Input{SignalID: "s1", Embedding: []float32{0, 1}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.TopicID).To(Equal("t9"))
			Expect(triage.entries).To(HaveLen(1))
		})

		It("creates a topic when the matched topic no longer exists", func() {
			matchAt("gone", 0.9)
			res, err := engine.Cluster(ctx, cluster.Input{SignalID: "s1", Embedding: []float32{0, 1}, Seed: "x"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Action).To(Equal(cluster.ActionCreated))
		})
	})

	Describe("Resolve", func() {
		BeforeEach(func() {
			topics.topics["t9"] = &model.Topic{ID: "t9", SignalCount: 2, Centroid: []float32{1, 0}}
			signals.signals["s1"] = &model.Signal{ID: "s1", Text: "dark mode please"}
			signals.embeddings["s1"] = []float32{0, 1}
			triage.entries = []model.TriageEntry{{SignalID: "s1", TopicID: "t9"}}
		})

		It("attaches using the stored embedding", func() {
			res, err := engine.Resolve(ctx, model.TriageEntry{SignalID: "s1", TopicID: "t9"}, model.TriageActionAttach)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Action).To(Equal(cluster.ActionAttached))
			Expect(topics.topics["t9"].SignalCount).To(Equal(3))
			Expect(triage.entries).To(BeEmpty())
			Expect(signals.compacted["s1"]).To(BeTrue())
			Expect(topics.samples["t9"]).To(Equal([]string{"dark mode please"}))
		})

		It("creates a new topic from the signal", func() {
			res, err := engine.Resolve(ctx, model.TriageEntry{SignalID: "s1", TopicID: "t9"}, model.TriageActionCreate)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Action).To(Equal(cluster.ActionCreated))
			Expect(topics.topics[res.TopicID].Title).To(Equal("dark mode please"))
			Expect(topics.topics["t9"].SignalCount).To(Equal(2))
		})

		It("dismisses without touching any topic", func() {
			_, err := engine.Resolve(ctx, model.TriageEntry{SignalID: "s1", TopicID: "t9"}, model.TriageActionDismiss)
			Expect(err).NotTo(HaveOccurred())
			Expect(triage.entries).To(BeEmpty())
			Expect(topics.updates).To(BeZero())
			Expect(signals.actionOf["s1"]).To(Equal(string(cluster.ActionDismissed)))
		})

		It("reports unknown entries", func() {
			_, err := engine.Resolve(ctx, model.TriageEntry{SignalID: "nope", TopicID: "t9"}, model.TriageActionDismiss)
			Expect(err).To(MatchError(cluster.ErrTriageEntryNotFound))
		})

		It("puts the entry back when the action fails", func() {
			delete(signals.embeddings, "s1")
			_, err := engine.Resolve(ctx, model.TriageEntry{SignalID: "s1", TopicID: "t9"}, model.TriageActionAttach)
			Expect(err).To(HaveOccurred())
			Expect(triage.entries).To(HaveLen(1))
		})
	})
})
