package onboarding

import (
	"fmt"
	"time"

	"megabot.app/onboarding/internal/model"
)

// MaxHistoryEntries bounds ProgressRecord.ConversationHistory.
const MaxHistoryEntries = 50

// NewRecord creates an active record on day 1 from a catalog snapshot.
func NewRecord(id int64, userID, channelRef string, days []model.DayProgress, now time.Time) *model.ProgressRecord {
	return &model.ProgressRecord{
		ID:                  id,
		UserID:              userID,
		ChannelRef:          channelRef,
		CurrentDay:          model.FirstDay,
		Status:              model.ProgressStatusActive,
		StartedAt:           now,
		Days:                days,
		ConversationHistory: []model.ConversationEntry{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// AppendHistory appends entry and drops the oldest entries beyond the cap.
func AppendHistory(r *model.ProgressRecord, entry model.ConversationEntry) {
	r.ConversationHistory = append(r.ConversationHistory, entry)
	if over := len(r.ConversationHistory) - MaxHistoryEntries; over > 0 {
		trimmed := make([]model.ConversationEntry, MaxHistoryEntries)
		copy(trimmed, r.ConversationHistory[over:])
		r.ConversationHistory = trimmed
	}
}

// RecordUserActivity stamps the last inbound message time.
func RecordUserActivity(r *model.ProgressRecord, now time.Time) {
	r.LastUserMessageAt = &now
}

// Validate checks the record invariants. It is run before every save.
func Validate(r *model.ProgressRecord) error {
	if r.CurrentDay < model.FirstDay || r.CurrentDay > model.LastDay {
		return fmt.Errorf("%w: current day %d out of range", ErrInvariantViolation, r.CurrentDay)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvariantViolation, r.Status)
	}
	if len(r.Days) != model.LastDay {
		return fmt.Errorf("%w: %d days, want %d", ErrInvariantViolation, len(r.Days), model.LastDay)
	}
	if len(r.ConversationHistory) > MaxHistoryEntries {
		return fmt.Errorf("%w: %d history entries", ErrInvariantViolation, len(r.ConversationHistory))
	}

	for i, day := range r.Days {
		if day.DayNumber != i+1 {
			return fmt.Errorf("%w: day at position %d numbered %d", ErrInvariantViolation, i+1, day.DayNumber)
		}
		if day.Completed && day.DayNumber > r.CurrentDay {
			return fmt.Errorf("%w: day %d completed ahead of current day %d", ErrInvariantViolation, day.DayNumber, r.CurrentDay)
		}
		if day.Completed && day.DayNumber == r.CurrentDay && r.CurrentDay != model.LastDay {
			return fmt.Errorf("%w: current day %d completed but not advanced", ErrInvariantViolation, r.CurrentDay)
		}
		if day.Completed != (day.CompletedAt != nil) {
			return fmt.Errorf("%w: day %d completion timestamp mismatch", ErrInvariantViolation, day.DayNumber)
		}
		for _, t := range day.Tasks {
			if t.Completed && t.CompletedAt == nil {
				return fmt.Errorf("%w: task %q completed without timestamp", ErrInvariantViolation, t.TaskID)
			}
		}
	}

	if r.Status == model.ProgressStatusCompleted && r.CompletedAt == nil {
		return fmt.Errorf("%w: completed record without completion time", ErrInvariantViolation)
	}
	return nil
}
