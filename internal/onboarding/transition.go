package onboarding

import (
	"time"

	"megabot.app/onboarding/internal/model"
)

type AdvanceOutcome string

const (
	// AdvanceOutcomeAdvanced means currentDay moved forward by one.
	AdvanceOutcomeAdvanced AdvanceOutcome = "advanced"
	// AdvanceOutcomeIncomplete means the day is not complete and force was not set.
	AdvanceOutcomeIncomplete AdvanceOutcome = "incomplete"
	// AdvanceOutcomeFinalDay means the record is already on the last day.
	AdvanceOutcomeFinalDay AdvanceOutcome = "final_day"
)

type AdvanceResult struct {
	Outcome AdvanceOutcome
	FromDay int
	ToDay   int
	Forced  bool
}

// Advanced reports whether the transition happened.
func (r AdvanceResult) Advanced() bool {
	return r.Outcome == AdvanceOutcomeAdvanced
}

// CheckDayCompletion marks the current day complete once every required task
// is done. Completing day 5 completes the record. Already-complete days are
// left alone so completedAt is set exactly once.
func CheckDayCompletion(r *model.ProgressRecord, now time.Time) (dayCompleted, onboardingCompleted bool) {
	day := r.CurrentDayProgress()
	if day == nil || day.Completed || !day.RequiredTasksComplete() {
		return false, false
	}

	day.Completed = true
	day.CompletedAt = &now

	if day.DayNumber == model.LastDay {
		r.Status = model.ProgressStatusCompleted
		r.CompletedAt = &now
		return true, true
	}
	return true, false
}

// Advance moves the record to the next day. Without force the current day
// must be complete; an incomplete day yields AdvanceOutcomeIncomplete, which
// is not an error so retries stay idempotent. Advancing from the last day is
// always AdvanceOutcomeFinalDay.
func Advance(r *model.ProgressRecord, force bool, now time.Time) (AdvanceResult, error) {
	result := AdvanceResult{FromDay: r.CurrentDay, ToDay: r.CurrentDay, Forced: force}

	if r.CurrentDay >= model.LastDay {
		result.Outcome = AdvanceOutcomeFinalDay
		return result, nil
	}
	if r.Status.IsTerminal() {
		return result, ErrInactiveRecord
	}

	day := r.CurrentDayProgress()
	if day == nil {
		return result, ErrInvalidDay
	}
	if !day.Completed && !force {
		result.Outcome = AdvanceOutcomeIncomplete
		return result, nil
	}

	r.CurrentDay++
	r.UpdatedAt = now
	result.ToDay = r.CurrentDay
	result.Outcome = AdvanceOutcomeAdvanced
	return result, nil
}
