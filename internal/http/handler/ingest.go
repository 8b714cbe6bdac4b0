package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"darwin.app/engine/internal/http/dto"
	"darwin.app/engine/internal/model"
)

type IngestHandler struct {
	ingester SignalIngester
}

func NewIngestHandler(ingester SignalIngester) *IngestHandler {
	return &IngestHandler{ingester: ingester}
}

func (h *IngestHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req []dto.IngestSignal
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid ingest request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	signals := make([]model.Signal, 0, len(req))
	for _, s := range req {
		signals = append(signals, s.ToModel())
	}

	sum, err := h.ingester.Ingest(ctx, signals)
	if err != nil {
		slog.ErrorContext(ctx, "failed to ingest signals", "error", err, "received", len(signals))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest signals"})
		return
	}

	c.JSON(http.StatusAccepted, dto.IngestResponse{
		Received:   sum.Received,
		New:        sum.New,
		Duplicates: sum.Duplicates,
		Rejected:   sum.Rejected,
		IDs:        sum.IDs,
	})
}
