package webhook

import (
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"darwin.app/engine/common/logger"
	"darwin.app/engine/internal/mapper"
)

type GitLabWebhookHandler struct {
	token  []byte
	mapper mapper.EventMapper
	events EventHandler
}

// NewGitLabWebhookHandler checks X-Gitlab-Token against token. An empty token
// accepts every delivery.
func NewGitLabWebhookHandler(token string, mapper mapper.EventMapper, events EventHandler) *GitLabWebhookHandler {
	if token == "" {
		slog.Warn("GITLAB_WEBHOOK_TOKEN is not set, gitlab webhook tokens will not be verified")
	}
	return &GitLabWebhookHandler{
		token:  []byte(token),
		mapper: mapper,
		events: events,
	}
}

func (h *GitLabWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{Component: "darwin.webhook.gitlab"})

	if len(h.token) > 0 {
		got := c.GetHeader("X-Gitlab-Token")
		if got == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing webhook token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), h.token) != 1 {
			slog.WarnContext(ctx, "rejected gitlab webhook", "event", c.GetHeader("X-Gitlab-Event"))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
			return
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	dispatch(ctx, c, h.mapper, h.events, body)
}
