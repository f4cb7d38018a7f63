package queue

import (
	"time"
)

type TaskType string

const (
	// TaskTypeMessageReceived carries one chat message from an onboarding channel.
	TaskTypeMessageReceived TaskType = "message_received"
	// TaskTypeStartOnboarding is emitted when a member joins the guild.
	TaskTypeStartOnboarding TaskType = "start_onboarding"
)

type Task struct {
	TaskType TaskType
	TraceID  *string
	Attempt  int

	UserID   string
	UserName string

	ChannelRef string
	MessageID  string
	Text       string
	Images     []string
	Privileged bool
	OccurredAt time.Time
}
