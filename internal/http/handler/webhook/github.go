package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v66/github"

	"darwin.app/engine/common/logger"
	"darwin.app/engine/internal/feedback"
	"darwin.app/engine/internal/mapper"
)

// EventHandler applies a normalized PR event to its task.
type EventHandler interface {
	Handle(ctx context.Context, ev feedback.Event) feedback.Outcome
}

type GitHubWebhookHandler struct {
	secret []byte
	mapper mapper.EventMapper
	events EventHandler
}

// NewGitHubWebhookHandler verifies deliveries against secret. An empty secret
// accepts every delivery.
func NewGitHubWebhookHandler(secret string, mapper mapper.EventMapper, events EventHandler) *GitHubWebhookHandler {
	if secret == "" {
		slog.Warn("GITHUB_WEBHOOK_SECRET is not set, github webhook signatures will not be verified")
	}
	return &GitHubWebhookHandler{
		secret: []byte(secret),
		mapper: mapper,
		events: events,
	}
}

func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{Component: "darwin.webhook.github"})

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if len(h.secret) > 0 {
		if err := github.ValidateSignature(c.GetHeader(github.SHA256SignatureHeader), body, h.secret); err != nil {
			slog.WarnContext(ctx, "rejected github webhook", "error", err, "delivery", c.GetHeader(github.DeliveryIDHeader))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	} else {
		slog.DebugContext(ctx, "accepting unsigned github webhook")
	}

	dispatch(ctx, c, h.mapper, h.events, body)
}

// dispatch maps a verified delivery and hands it to the PR lifecycle.
// Unsupported events are acknowledged so the host does not retry them.
func dispatch(ctx context.Context, c *gin.Context, m mapper.EventMapper, events EventHandler, body []byte) {
	ev, err := m.Map(ctx, body, headerMap(c.Request.Header))
	if err != nil {
		if errors.Is(err, mapper.ErrUnsupportedEvent) {
			slog.DebugContext(ctx, "webhook event not supported, ignoring", "reason", err.Error())
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "event type not supported"})
			return
		}
		slog.WarnContext(ctx, "invalid webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	outcome := events.Handle(ctx, *ev)

	slog.InfoContext(ctx, "webhook processed",
		"host", ev.Host,
		"repo", ev.Repo,
		"pr_number", ev.PRNumber,
		"kind", ev.Kind,
		"outcome", outcome)

	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": outcome})
}

func headerMap(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	return headers
}
