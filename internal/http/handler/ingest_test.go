package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/http/dto"
	"darwin.app/engine/internal/http/handler"
	"darwin.app/engine/internal/ingest"
	"darwin.app/engine/internal/model"
)

var _ = Describe("IngestHandler", func() {
	var (
		router   *gin.Engine
		ingester *mockIngester
	)

	BeforeEach(func() {
		router = gin.New()
		ingester = &mockIngester{}
		h := handler.NewIngestHandler(ingester)
		router.POST("/api/v1/ingest", h.Ingest)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("converts the batch and reports the dedup summary", func() {
		var got []model.Signal
		ingester.ingestFn = func(ctx context.Context, signals []model.Signal) (ingest.Summary, error) {
			got = signals
			return ingest.Summary{Received: 2, New: 1, Duplicates: 1, IDs: []string{"abc"}}, nil
		}

		w := post(`[
			{"text": "export crashes", "source": "discord", "url": "https://x/1", "product": "app", "timestamp": "2026-01-02T03:04:05+02:00"},
			{"id": "abc", "text": "export crashes again", "source": "github"}
		]`)

		Expect(w.Code).To(Equal(http.StatusAccepted))

		var resp dto.IngestResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Received).To(Equal(2))
		Expect(resp.New).To(Equal(1))
		Expect(resp.Duplicates).To(Equal(1))
		Expect(resp.IDs).To(ConsistOf("abc"))

		Expect(got).To(HaveLen(2))
		Expect(got[0].ID).To(BeEmpty())
		Expect(*got[0].Product).To(Equal("app"))
		Expect(got[0].Timestamp).To(BeTemporally("==", time.Date(2026, 1, 2, 1, 4, 5, 0, time.UTC)))
		Expect(got[0].Timestamp.Location()).To(Equal(time.UTC))
		Expect(got[1].ID).To(Equal("abc"))
		Expect(got[1].Timestamp.IsZero()).To(BeTrue())
	})

	It("rejects signals without text", func() {
		w := post(`[{"source": "discord"}]`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects a body that is not a list", func() {
		w := post(`{"text": "hi", "source": "discord"}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 500 when the store fails", func() {
		ingester.ingestFn = func(ctx context.Context, signals []model.Signal) (ingest.Summary, error) {
			return ingest.Summary{}, errors.New("redis down")
		}
		w := post(`[{"text": "hi", "source": "discord"}]`)
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).NotTo(ContainSubstring("redis down"))
	})
})
