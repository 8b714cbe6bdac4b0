package cluster_test

import (
	"context"

	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/store"
)

type fakeIndex struct {
	nearestFn func(ctx context.Context, embedding []float32, k int) ([]model.TopicMatch, error)
}

func (f *fakeIndex) Nearest(ctx context.Context, embedding []float32, k int) ([]model.TopicMatch, error) {
	if f.nearestFn != nil {
		return f.nearestFn(ctx, embedding, k)
	}
	return nil, nil
}

type memTopics struct {
	topics  map[string]*model.Topic
	samples map[string][]string
	updates int
}

func newMemTopics() *memTopics {
	return &memTopics{topics: map[string]*model.Topic{}, samples: map[string][]string{}}
}

func (m *memTopics) Create(_ context.Context, t *model.Topic) error {
	cp := *t
	m.topics[t.ID] = &cp
	return nil
}

func (m *memTopics) Get(_ context.Context, id string) (*model.Topic, error) {
	t, ok := m.topics[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTopics) UpdateCentroid(_ context.Context, id string, centroid []float32, count int) error {
	t, ok := m.topics[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Centroid = centroid
	t.SignalCount = count
	m.updates++
	return nil
}

func (m *memTopics) SetClassification(context.Context, string, model.Classification) error {
	return nil
}

func (m *memTopics) List(context.Context, int) ([]model.Topic, error) { return nil, nil }

func (m *memTopics) AppendSignalSample(_ context.Context, id, text string) error {
	m.samples[id] = append(m.samples[id], text)
	return nil
}

func (m *memTopics) SignalSample(_ context.Context, id string, _ int) ([]string, error) {
	return m.samples[id], nil
}

type memSignals struct {
	signals    map[string]*model.Signal
	embeddings map[string][]float32
	topicOf    map[string]string
	actionOf   map[string]string
	compacted  map[string]bool
}

func newMemSignals() *memSignals {
	return &memSignals{
		signals:    map[string]*model.Signal{},
		embeddings: map[string][]float32{},
		topicOf:    map[string]string{},
		actionOf:   map[string]string{},
		compacted:  map[string]bool{},
	}
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
	cp := *s
	return &cp, nil
}

func (m *memSignals) SetTopic(_ context.Context, id, topicID, action string) error {
	m.topicOf[id] = topicID
	m.actionOf[id] = action
	return nil
}

func (m *memSignals) SetEmbedding(_ context.Context, id string, e []float32) error {
	m.embeddings[id] = e
	return nil
}

func (m *memSignals) GetEmbedding(_ context.Context, id string) ([]float32, error) {
	e, ok := m.embeddings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e, nil
}

func (m *memSignals) Compact(_ context.Context, id string) error {
	m.compacted[id] = true
	delete(m.embeddings, id)
	return nil
}

type memTriage struct {
	entries []model.TriageEntry
}

func (m *memTriage) Add(_ context.Context, e model.TriageEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memTriage) List(context.Context, int) ([]model.TriageEntry, error) {
	return m.entries, nil
}

func (m *memTriage) Remove(_ context.Context, e model.TriageEntry) (bool, error) {
	for i, x := range m.entries {
		if x == e {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memTriage) Len(context.Context) (int64, error) { return int64(len(m.entries)), nil }

type memList struct {
	items []string
}

func (m *memList) Push(_ context.Context, items ...string) error {
	m.items = append(m.items, items...)
	return nil
}

func (m *memList) Pop(context.Context) (string, bool, error) {
	if len(m.items) == 0 {
		return "", false, nil
	}
	it := m.items[0]
	m.items = m.items[1:]
	return it, true, nil
}

func (m *memList) Len(context.Context) (int64, error) { return int64(len(m.items)), nil }
