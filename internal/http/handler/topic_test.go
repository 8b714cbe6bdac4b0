package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/http/handler"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/store"
)

var _ = Describe("TopicHandler", func() {
	var (
		router *gin.Engine
		topics *mockTopicStore
	)

	BeforeEach(func() {
		router = gin.New()
		topics = &mockTopicStore{}
		h := handler.NewTopicHandler(topics)
		router.GET("/topics", h.List)
		router.GET("/topics/:id", h.Get)
	})

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	It("defaults and clamps the limit", func() {
		var limits []int
		topics.listFn = func(ctx context.Context, limit int) ([]model.Topic, error) {
			limits = append(limits, limit)
			return nil, nil
		}

		Expect(get("/topics").Code).To(Equal(http.StatusOK))
		Expect(get("/topics?limit=100000").Code).To(Equal(http.StatusOK))
		Expect(limits).To(Equal([]int{50, 500}))
	})

	It("rejects a non-numeric limit", func() {
		Expect(get("/topics?limit=ten").Code).To(Equal(http.StatusBadRequest))
		Expect(get("/topics?limit=0").Code).To(Equal(http.StatusBadRequest))
	})

	It("hides the centroid", func() {
		topics.getFn = func(ctx context.Context, id string) (*model.Topic, error) {
			return &model.Topic{ID: id, Title: "Export crashes", Centroid: []float32{0.1, 0.2}, SignalCount: 3}, nil
		}

		w := get("/topics/t1")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"signal_count":3`))
		Expect(w.Body.String()).NotTo(ContainSubstring("centroid"))
	})

	It("returns 404 for a missing topic", func() {
		topics.getFn = func(ctx context.Context, id string) (*model.Topic, error) {
			return nil, store.ErrNotFound
		}
		Expect(get("/topics/nope").Code).To(Equal(http.StatusNotFound))
	})
})
