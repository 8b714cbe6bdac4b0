package learning_test

import (
	"context"

	"darwin.app/engine/internal/model"
)

type fakeFixes struct {
	saved      map[string]*model.SuccessfulFix
	embeddings map[string][]float32
	hasAnyFn   func(ctx context.Context) (bool, error)
	similarFn  func(ctx context.Context, emb []float32, k int) ([]model.SuccessfulFix, error)
}

func newFakeFixes() *fakeFixes {
	return &fakeFixes{saved: map[string]*model.SuccessfulFix{}, embeddings: map[string][]float32{}}
}

func (f *fakeFixes) Save(_ context.Context, fix *model.SuccessfulFix) (bool, error) {
	if _, ok := f.saved[fix.TaskID]; ok {
		return false, nil
	}
	f.saved[fix.TaskID] = fix
	return true, nil
}

func (f *fakeFixes) SetEmbedding(_ context.Context, taskID string, emb []float32) error {
	f.embeddings[taskID] = emb
	return nil
}

func (f *fakeFixes) HasAny(ctx context.Context) (bool, error) {
	if f.hasAnyFn != nil {
		return f.hasAnyFn(ctx)
	}
	return len(f.saved) > 0, nil
}

func (f *fakeFixes) Similar(ctx context.Context, emb []float32, k int) ([]model.SuccessfulFix, error) {
	if f.similarFn != nil {
		return f.similarFn(ctx, emb, k)
	}
	return nil, nil
}

type fakeRules struct {
	created   []*model.Rule
	increments []string
	createErr error
}

func (f *fakeRules) Create(_ context.Context, r *model.Rule) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, r)
	return nil
}

func (f *fakeRules) TopForProduct(_ context.Context, product string, limit int) ([]model.Rule, error) {
	var out []model.Rule
	for _, r := range f.created {
		if r.Product == product && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRules) IncrementUsage(_ context.Context, r model.Rule) error {
	f.increments = append(f.increments, r.ID)
	return nil
}

type fakeEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	texts   []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.embedFn != nil {
		return f.embedFn(ctx, text)
	}
	return []float32{1, 0, 0}, nil
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

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeExtractor struct {
	calls     int
	extractFn func(ctx context.Context, task *model.Task, feedback string) ([]model.ExtractedRule, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, task *model.Task, feedback string) ([]model.ExtractedRule, error) {
	f.calls++
	return f.extractFn(ctx, task, feedback)
}
