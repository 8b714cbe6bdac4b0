package dto

import "darwin.app/engine/internal/model"

type TriageListResponse struct {
	Entries []model.TriageEntry `json:"entries"`
	Count   int                 `json:"count"`
}

type ResolveTriageRequest struct {
	SignalID string `json:"signal_id" binding:"required"`
	TopicID  string `json:"topic_id" binding:"required"`
	Action   string `json:"action" binding:"required"`
}

type ResolveTriageResponse struct {
	Action     string   `json:"action"`
	TopicID    string   `json:"topic_id,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
}
