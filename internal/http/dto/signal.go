package dto

import (
	"time"

	"darwin.app/engine/internal/model"
)

// IngestSignal is one feedback item posted by a collector. ID is optional;
// it is derived from the content when absent.
type IngestSignal struct {
	ID        string     `json:"id,omitempty"`
	Text      string     `json:"text" binding:"required"`
	Source    string     `json:"source" binding:"required"`
	URL       string     `json:"url"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Title     *string    `json:"title,omitempty"`
	Author    *string    `json:"author,omitempty"`
	Product   *string    `json:"product,omitempty"`
}

func (s IngestSignal) ToModel() model.Signal {
	sig := model.Signal{
		ID:      s.ID,
		Text:    s.Text,
		Source:  s.Source,
		URL:     s.URL,
		Title:   s.Title,
		Author:  s.Author,
		Product: s.Product,
	}
	if s.Timestamp != nil {
		sig.Timestamp = s.Timestamp.UTC()
	}
	return sig
}

type IngestResponse struct {
	Received   int      `json:"received"`
	New        int      `json:"new"`
	Duplicates int      `json:"duplicates"`
	Rejected   int      `json:"rejected"`
	IDs        []string `json:"ids"`
}
