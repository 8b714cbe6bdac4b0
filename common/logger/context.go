package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Workers set them once per queue item so every store call, LLM call and git
// command underneath is attributable to the signal/topic/task being processed.
type LogFields struct {
	SignalID  *string // Content hash of the ingested signal
	TopicID   *string
	TaskID    *string
	PRNumber  *int
	Product   *string
	MessageID *string // Redis stream message ID (fix jobs)
	Component string  // Dotted component name, e.g. "darwin.worker.classify"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.SignalID != nil {
		result.SignalID = new.SignalID
	}
	if new.TopicID != nil {
		result.TopicID = new.TopicID
	}
	if new.TaskID != nil {
		result.TaskID = new.TaskID
	}
	if new.PRNumber != nil {
		result.PRNumber = new.PRNumber
	}
	if new.Product != nil {
		result.Product = new.Product
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
