package ingest_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/cluster"
	"darwin.app/engine/internal/ingest"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/store"
)

type memSignals struct {
	signals   map[string]*model.Signal
	compacted []string
}

func (m *memSignals) Claim(_ context.Context, id string) (bool, error) {
	if _, ok := m.signals[id]; ok {
		return false, nil
	}
	m.signals[id] = &model.Signal{ID: id}
	return true, nil
}

func (m *memSignals) Save(_ context.Context, s *model.Signal) error {
	cp := *s
	m.signals[s.ID] = &cp
	return nil
}

func (m *memSignals) Get(_ context.Context, id string) (*model.Signal, error) {
	s, ok := m.signals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (m *memSignals) SetTopic(context.Context, string, string, string) error  { return nil }
func (m *memSignals) SetEmbedding(context.Context, string, []float32) error   { return nil }
func (m *memSignals) GetEmbedding(context.Context, string) ([]float32, error) { return nil, nil }

func (m *memSignals) Compact(_ context.Context, id string) error {
	m.compacted = append(m.compacted, id)
	return nil
}

type memTopics struct {
	store.TopicStore
	samples map[string][]string
}

func (m *memTopics) AppendSignalSample(_ context.Context, id, text string) error {
	m.samples[id] = append(m.samples[id], text)
	return nil
}

type memList struct{ items []string }

func (m *memList) Push(_ context.Context, items ...string) error {
	m.items = append(m.items, items...)
	return nil
}
func (m *memList) Pop(context.Context) (string, bool, error) { return "", false, nil }
func (m *memList) Len(context.Context) (int64, error)        { return int64(len(m.items)), nil }

type fakeEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	texts   []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.embedFn != nil {
		return f.embedFn(ctx, text)
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

type fakeClusterer struct {
	clusterFn func(ctx context.Context, in cluster.Input) (cluster.Result, error)
	inputs    []cluster.Input
}

func (f *fakeClusterer) Cluster(ctx context.Context, in cluster.Input) (cluster.Result, error) {
	f.inputs = append(f.inputs, in)
	return f.clusterFn(ctx, in)
}

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		signals   *memSignals
		topics    *memTopics
		toEmbed   *memList
		embedder  *fakeEmbedder
		clusterer *fakeClusterer
		svc       *ingest.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		signals = &memSignals{signals: map[string]*model.Signal{}}
		topics = &memTopics{samples: map[string][]string{}}
		toEmbed = &memList{}
		embedder = &fakeEmbedder{}
		clusterer = &fakeClusterer{clusterFn: func(context.Context, cluster.Input) (cluster.Result, error) {
			return cluster.Result{TopicID: "t1", Action: cluster.ActionCreated}, nil
		}}
		svc = ingest.NewService(signals, topics, toEmbed, embedder, clusterer)
	})

	Describe("Ingest", func() {
		It("derives ids from content and drops duplicates", func() {
			batch := []model.Signal{
				{Text: "app crashes", Source: "reddit", URL: "https://r/1"},
				{Text: "  app crashes  ", Source: "reddit", URL: "https://r/1"},
				{Text: "dark mode", Source: "reddit", URL: "https://r/2"},
				{Text: "   ", Source: "reddit", URL: "https://r/3"},
			}
			sum, err := svc.Ingest(ctx, batch)
			Expect(err).NotTo(HaveOccurred())
			Expect(sum.Received).To(Equal(4))
			Expect(sum.New).To(Equal(2))
			Expect(sum.Duplicates).To(Equal(1))
			Expect(sum.Rejected).To(Equal(1))
			Expect(toEmbed.items).To(HaveLen(2))
			Expect(toEmbed.items[0]).To(Equal(model.SignalID("reddit", "https://r/1", "app crashes")))
		})

		It("keeps producer supplied ids", func() {
			sum, err := svc.Ingest(ctx, []model.Signal{{ID: "given", Text: "x"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(sum.IDs).To(Equal([]string{"given"}))
		})
	})

	Describe("Process", func() {
		BeforeEach(func() {
			title := "Crash"
			product := "mobile"
			signals.signals["s1"] = &model.Signal{ID: "s1", Text: "it crashes on save", Title: &title, Product: &product}
		})

		It("embeds title and text, clusters, samples and compacts", func() {
			res, err := svc.Process(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.TopicID).To(Equal("t1"))
			Expect(embedder.texts).To(Equal([]string{"Crash\n\nit crashes on save"}))
			Expect(clusterer.inputs[0].Seed).To(Equal("Crash"))
			Expect(*clusterer.inputs[0].Product).To(Equal("mobile"))
			Expect(topics.samples["t1"]).To(Equal([]string{"it crashes on save"}))
			Expect(signals.compacted).To(Equal([]string{"s1"}))
		})

		It("leaves triaged signals intact", func() {
			clusterer.clusterFn = func(context.Context, cluster.Input) (cluster.Result, error) {
				return cluster.Result{TopicID: "t1", Action: cluster.ActionTriage}, nil
			}
			_, err := svc.Process(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(signals.compacted).To(BeEmpty())
			Expect(topics.samples).To(BeEmpty())
		})

		It("does not cluster when embedding fails", func() {
			embedder.embedFn = func(context.Context, string) ([]float32, error) { return nil, errors.New("quota") }
			_, err := svc.Process(ctx, "s1")
			Expect(err).To(HaveOccurred())
			Expect(clusterer.inputs).To(BeEmpty())
		})
	})
})
