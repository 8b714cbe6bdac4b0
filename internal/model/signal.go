package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Signal is one normalized unit of feedback. It is immutable once produced and
// only lives long enough to be deduplicated, embedded and clustered.
type Signal struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Title     *string   `json:"title,omitempty"`
	Author    *string   `json:"author,omitempty"`
	Product   *string   `json:"product,omitempty"`
}

// SignalID derives the stable content hash used as a signal id when the
// producer did not supply one.
func SignalID(source, url, text string) string {
	sum := sha256.Sum256([]byte(source + "|" + url + "|" + strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// EmbeddingText is the text that represents the signal in vector space.
func (s Signal) EmbeddingText() string {
	if s.Title != nil && strings.TrimSpace(*s.Title) != "" {
		return strings.TrimSpace(*s.Title) + "\n\n" + s.Text
	}
	return s.Text
}

// SeedText is the text a newly created topic takes its title from.
func (s Signal) SeedText() string {
	if s.Title != nil && strings.TrimSpace(*s.Title) != "" {
		return strings.TrimSpace(*s.Title)
	}
	return strings.TrimSpace(s.Text)
}
