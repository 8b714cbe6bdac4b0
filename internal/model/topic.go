package model

import "time"

type TopicStatus string

const (
	TopicStatusOpen TopicStatus = "open"
)

// Topic is a cluster of semantically similar signals. Centroid is the mean of
// every attached embedding and SignalCount is its divisor.
type Topic struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Summary     string      `json:"summary"`
	Category    *Category   `json:"category,omitempty"`
	Status      TopicStatus `json:"status"`
	SignalCount int         `json:"signal_count"`
	Centroid    []float32   `json:"-"`
	Product     *string     `json:"product,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TopicMatch is one nearest-neighbour hit from the topic index.
type TopicMatch struct {
	TopicID    string
	Similarity float64
}

const TopicTitleMaxLen = 100

// TopicTitle truncates seed text to the topic title length.
func TopicTitle(seed string) string {
	r := []rune(seed)
	if len(r) <= TopicTitleMaxLen {
		return seed
	}
	return string(r[:TopicTitleMaxLen]) + "..."
}
