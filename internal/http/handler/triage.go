package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"darwin.app/engine/internal/cluster"
	"darwin.app/engine/internal/http/dto"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/queue"
	"darwin.app/engine/internal/store"
)

type TriageHandler struct {
	queue    queue.TriageQueue
	resolver TriageResolver
}

func NewTriageHandler(q queue.TriageQueue, resolver TriageResolver) *TriageHandler {
	return &TriageHandler{queue: q, resolver: resolver}
}

func (h *TriageHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	entries, err := h.queue.List(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list triage entries", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list triage entries"})
		return
	}
	if entries == nil {
		entries = []model.TriageEntry{}
	}

	c.JSON(http.StatusOK, dto.TriageListResponse{Entries: entries, Count: len(entries)})
}

func (h *TriageHandler) Resolve(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ResolveTriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action := model.TriageAction(req.Action)
	if !action.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be one of attach, create, dismiss"})
		return
	}

	entry := model.TriageEntry{SignalID: req.SignalID, TopicID: req.TopicID}
	res, err := h.resolver.Resolve(ctx, entry, action)
	if err != nil {
		switch {
		case errors.Is(err, cluster.ErrTriageEntryNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "triage entry not found"})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			slog.ErrorContext(ctx, "failed to resolve triage entry", "error", err, "signal_id", req.SignalID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve triage entry"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ResolveTriageResponse{
		Action:     string(res.Action),
		TopicID:    res.TopicID,
		Similarity: res.Similarity,
	})
}
