package model

import "time"

type ProgressStatus string

const (
	ProgressStatusActive    ProgressStatus = "active"
	ProgressStatusPaused    ProgressStatus = "paused"
	ProgressStatusCompleted ProgressStatus = "completed"
	ProgressStatusInactive  ProgressStatus = "inactive"
)

// IsTerminal reports whether no further onboarding can happen on the record.
func (s ProgressStatus) IsTerminal() bool {
	return s == ProgressStatusCompleted || s == ProgressStatusInactive
}

func (s ProgressStatus) Valid() bool {
	switch s {
	case ProgressStatusActive, ProgressStatusPaused, ProgressStatusCompleted, ProgressStatusInactive:
		return true
	}
	return false
}

// Day bounds of the onboarding program.
const (
	FirstDay = 1
	LastDay  = 5
)

// TaskState is a member's progress on one task. Definition fields are
// copied from the catalog when the record is created.
type TaskState struct {
	TaskID       string     `json:"task_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Kind         TaskKind   `json:"kind"`
	Required     bool       `json:"required"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	UserResponse *string    `json:"user_response,omitempty"`
}

type DayProgress struct {
	DayNumber   int         `json:"day_number"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Completed   bool        `json:"completed"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Tasks       []TaskState `json:"tasks"`
}

// Task returns the task state with the given id, or nil.
func (d *DayProgress) Task(taskID string) *TaskState {
	for i := range d.Tasks {
		if d.Tasks[i].TaskID == taskID {
			return &d.Tasks[i]
		}
	}
	return nil
}

// RequiredTasksComplete reports whether every required task is completed.
// Optional tasks never affect the result.
func (d *DayProgress) RequiredTasksComplete() bool {
	for _, t := range d.Tasks {
		if t.Required && !t.Completed {
			return false
		}
	}
	return true
}

// PendingTasks returns incomplete tasks in catalog order.
func (d *DayProgress) PendingTasks() []TaskState {
	var pending []TaskState
	for _, t := range d.Tasks {
		if !t.Completed {
			pending = append(pending, t)
		}
	}
	return pending
}

// Conversation roles stored in history.
const (
	ConversationRoleUser      = "user"
	ConversationRoleAssistant = "assistant"
	ConversationRoleStaff     = "staff"
)

type ConversationEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Images    []string  `json:"images,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressRecord is one member's onboarding session. A member can own
// several records over time: archived inactive ones and at most one live one.
type ProgressRecord struct {
	ID                  int64               `json:"id"`
	UserID              string              `json:"user_id"`
	ChannelRef          string              `json:"channel_ref"`
	CurrentDay          int                 `json:"current_day"`
	Status              ProgressStatus      `json:"status"`
	StartedAt           time.Time           `json:"started_at"`
	CompletedAt         *time.Time          `json:"completed_at,omitempty"`
	Days                []DayProgress       `json:"days"`
	ConversationHistory []ConversationEntry `json:"conversation_history"`
	LastUserMessageAt   *time.Time          `json:"last_user_message_at,omitempty"`
	Muted               bool                `json:"muted"` // silences replies to staff only

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Day returns the progress for day n, or nil when n is out of range.
func (r *ProgressRecord) Day(n int) *DayProgress {
	for i := range r.Days {
		if r.Days[i].DayNumber == n {
			return &r.Days[i]
		}
	}
	return nil
}

func (r *ProgressRecord) CurrentDayProgress() *DayProgress {
	return r.Day(r.CurrentDay)
}
