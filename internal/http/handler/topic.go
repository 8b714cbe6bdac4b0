package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"darwin.app/engine/internal/http/dto"
	"darwin.app/engine/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type TopicHandler struct {
	topics store.TopicStore
}

func NewTopicHandler(topics store.TopicStore) *TopicHandler {
	return &TopicHandler{topics: topics}
}

// List returns topics ordered by signal count, largest first.
func (h *TopicHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	topics, err := h.topics.List(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list topics", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list topics"})
		return
	}

	c.JSON(http.StatusOK, dto.TopicListResponse{Topics: topics, Count: len(topics)})
}

func (h *TopicHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	topic, err := h.topics.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "topic not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get topic", "error", err, "topic_id", c.Param("id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get topic"})
		return
	}

	c.JSON(http.StatusOK, topic)
}

// parseLimit reads ?limit=, writing a 400 and returning false when it is not
// a positive integer. Values above the cap are clamped.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(limit, maxListLimit), true
}
