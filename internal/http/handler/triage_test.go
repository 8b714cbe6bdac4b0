package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/cluster"
	"darwin.app/engine/internal/http/dto"
	"darwin.app/engine/internal/http/handler"
	"darwin.app/engine/internal/model"
)

var _ = Describe("TriageHandler", func() {
	var (
		router   *gin.Engine
		triage   *mockTriageQueue
		resolver *mockTriageResolver
	)

	BeforeEach(func() {
		router = gin.New()
		triage = &mockTriageQueue{}
		resolver = &mockTriageResolver{}
		h := handler.NewTriageHandler(triage, resolver)
		router.GET("/triage", h.List)
		router.POST("/triage/resolve", h.Resolve)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("lists pending entries", func() {
		var gotLimit int
		triage.listFn = func(ctx context.Context, limit int) ([]model.TriageEntry, error) {
			gotLimit = limit
			return []model.TriageEntry{{SignalID: "s1", TopicID: "t1"}}, nil
		}

		w := do(http.MethodGet, "/triage?limit=5", "")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(gotLimit).To(Equal(5))
		var resp dto.TriageListResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Entries).To(Equal([]model.TriageEntry{{SignalID: "s1", TopicID: "t1"}}))
	})

	It("renders an empty queue as an empty list", func() {
		w := do(http.MethodGet, "/triage", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"entries":[]`))
	})

	It("resolves an entry with the requested action", func() {
		var (
			gotEntry  model.TriageEntry
			gotAction model.TriageAction
		)
		sim := 0.68
		resolver.resolveFn = func(ctx context.Context, entry model.TriageEntry, action model.TriageAction) (cluster.Result, error) {
			gotEntry, gotAction = entry, action
			return cluster.Result{TopicID: "t1", Action: cluster.ActionAttached, Similarity: &sim}, nil
		}

		w := do(http.MethodPost, "/triage/resolve", `{"signal_id": "s1", "topic_id": "t1", "action": "attach"}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(gotEntry).To(Equal(model.TriageEntry{SignalID: "s1", TopicID: "t1"}))
		Expect(gotAction).To(Equal(model.TriageActionAttach))

		var resp dto.ResolveTriageResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Action).To(Equal("attached"))
		Expect(resp.TopicID).To(Equal("t1"))
	})

	It("rejects an unknown action", func() {
		w := do(http.MethodPost, "/triage/resolve", `{"signal_id": "s1", "topic_id": "t1", "action": "merge"}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 404 when the entry was already resolved", func() {
		resolver.resolveFn = func(ctx context.Context, entry model.TriageEntry, action model.TriageAction) (cluster.Result, error) {
			return cluster.Result{}, cluster.ErrTriageEntryNotFound
		}
		w := do(http.MethodPost, "/triage/resolve", `{"signal_id": "s1", "topic_id": "t1", "action": "dismiss"}`)
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})
})
