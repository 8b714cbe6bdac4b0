package store_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/common/llm"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/store"
)

type fakeEvals struct {
	store.LLMEvalStore
	created []*model.LLMEval
	err     error
}

func (f *fakeEvals) Create(_ context.Context, eval *model.LLMEval) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, eval)
	return nil
}

var _ = Describe("AuditObserver", func() {
	It("records the call with usage", func() {
		evals := &fakeEvals{}
		observe := store.AuditObserver(evals)

		observe(context.Background(), llm.Call{
			Request:  llm.Request{Stage: "classify", SubjectID: "t1", UserPrompt: "## Topic title\nLogin broken"},
			Model:    "gpt-4o-mini",
			Output:   []byte(`{"category":"BUG"}`),
			Response: &llm.Response{PromptTokens: 120, CompletionTokens: 30, Latency: 850 * time.Millisecond},
		})

		Expect(evals.created).To(HaveLen(1))
		e := evals.created[0]
		Expect(e.ID).NotTo(BeZero())
		Expect(e.Stage).To(Equal("classify"))
		Expect(*e.SubjectID).To(Equal("t1"))
		Expect(string(e.OutputJSON)).To(Equal(`{"category":"BUG"}`))
		Expect(*e.LatencyMs).To(Equal(850))
		Expect(*e.PromptTokens).To(Equal(120))
		Expect(e.Error).To(BeNil())
	})

	It("records failures and swallows write errors", func() {
		evals := &fakeEvals{}
		store.AuditObserver(evals)(context.Background(), llm.Call{
			Request: llm.Request{Stage: "extract_rules"},
			Err:     errors.New("openai chat: 429"),
		})
		Expect(*evals.created[0].Error).To(Equal("openai chat: 429"))
		Expect(evals.created[0].SubjectID).To(BeNil())

		failing := &fakeEvals{err: errors.New("db down")}
		Expect(func() {
			store.AuditObserver(failing)(context.Background(), llm.Call{Request: llm.Request{Stage: "classify"}})
		}).NotTo(Panic())
	})
})
