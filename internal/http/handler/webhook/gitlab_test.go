package webhook_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/feedback"
	"darwin.app/engine/internal/http/handler/webhook"
	"darwin.app/engine/internal/mapper"
)

const mrNote = `{
	"object_kind": "note",
	"user": {"username": "reviewer"},
	"project": {"path_with_namespace": "acme/app"},
	"object_attributes": {"note": "Please add a test", "noteable_type": "MergeRequest", "system": false},
	"merge_request": {
		"iid": 12,
		"title": "fix: Export crashes",
		"description": "Task ID: 1a2b3c",
		"source_branch": "darwin/fix-1a2b3c",
		"url": "https://gitlab.com/acme/app/-/merge_requests/12"
	}
}`

var _ = Describe("GitLabWebhookHandler", func() {
	var (
		router *gin.Engine
		events *recordingHandler
	)

	setup := func(token string) {
		router = gin.New()
		events = &recordingHandler{outcome: feedback.OutcomeRemediate}
		h := webhook.NewGitLabWebhookHandler(token, mapper.NewGitLabEventMapper("darwin-bot"), events)
		router.POST("/webhooks/gitlab", h.HandleEvent)
	}

	send := func(event, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Gitlab-Event", event)
		if token != "" {
			req.Header.Set("X-Gitlab-Token", token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Context("with a token configured", func() {
		BeforeEach(func() { setup("secret") })

		It("turns an MR note into change-request feedback", func() {
			w := send("Note Hook", "secret", mrNote)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"outcome":"remediation_queued"`))

			got := events.received()
			Expect(got).To(HaveLen(1))
			Expect(got[0].Kind).To(Equal(feedback.EventReviewSubmitted))
			Expect(got[0].ReviewState).To(Equal(feedback.ReviewChangesRequested))
			Expect(got[0].ReviewBody).To(Equal("Please add a test"))
			Expect(got[0].PRNumber).To(Equal(12))
		})

		It("rejects an invalid token", func() {
			Expect(send("Note Hook", "wrong", mrNote).Code).To(Equal(http.StatusUnauthorized))
			Expect(events.received()).To(BeEmpty())
		})

		It("rejects a missing token", func() {
			Expect(send("Note Hook", "", mrNote).Code).To(Equal(http.StatusUnauthorized))
		})

		It("acknowledges hooks the lifecycle does not handle", func() {
			w := send("Push Hook", "secret", `{"object_kind": "push"}`)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(events.received()).To(BeEmpty())
		})

		It("acknowledges the bot's own notes without starting a remediation", func() {
			botNote := bytes.Replace([]byte(mrNote), []byte(`"username": "reviewer"`), []byte(`"username": "darwin-bot"`), 1)
			w := send("Note Hook", "secret", string(botNote))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(events.received()).To(BeEmpty())
		})
	})

	Context("without a token", func() {
		BeforeEach(func() { setup("") })

		It("accepts every delivery", func() {
			Expect(send("Note Hook", "", mrNote).Code).To(Equal(http.StatusOK))
			Expect(events.received()).To(HaveLen(1))
		})
	})
})
