package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so onboarding context (user_id, record_id,
// channel_id, etc.) is included in every log statement without passing it around.
type LogFields struct {
	UserID    *string // Discord user ID of the onboarding member
	RecordID  *int64  // Progress record ID
	ChannelID *string // Onboarding channel reference
	MessageID *string // Redis stream message ID
	Day       *int    // Current onboarding day
	TaskType  *string // Queue task type (e.g., "message_received", "start_onboarding")
	Component string  // Component name (OTel semantic convention style, e.g., "megabot.worker.reaper")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
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

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.UserID != nil {
		result.UserID = new.UserID
	}
	if new.RecordID != nil {
		result.RecordID = new.RecordID
	}
	if new.ChannelID != nil {
		result.ChannelID = new.ChannelID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.Day != nil {
		result.Day = new.Day
	}
	if new.TaskType != nil {
		result.TaskType = new.TaskType
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{UserID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like chat messages or error text.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
