package mapper

import (
	"context"
	"errors"

	"darwin.app/engine/internal/feedback"
)

// ErrUnsupportedEvent marks webhook deliveries that carry nothing the PR
// lifecycle reacts to. Handlers acknowledge them with 200.
var ErrUnsupportedEvent = errors.New("unsupported webhook event")

// EventMapper turns a host webhook delivery into a normalized PR event.
type EventMapper interface {
	Map(ctx context.Context, body []byte, headers map[string]string) (*feedback.Event, error)
}
