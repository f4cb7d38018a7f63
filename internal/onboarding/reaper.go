package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"megabot.app/onboarding/common/logger"
	"megabot.app/onboarding/internal/model"
)

const (
	DefaultInactivityTimeout = 24 * time.Hour
	DefaultReapMaxDay        = 2
	DefaultReapBatchSize     = 100
)

// ReapPolicy decides which records the reaper removes.
type ReapPolicy struct {
	Timeout time.Duration
	MaxDay  int
}

func DefaultReapPolicy() ReapPolicy {
	return ReapPolicy{Timeout: DefaultInactivityTimeout, MaxDay: DefaultReapMaxDay}
}

// Eligible reports whether the record is in reap scope at all: not terminal
// and still early in the program.
func (p ReapPolicy) Eligible(r *model.ProgressRecord) bool {
	return !r.Status.IsTerminal() && r.CurrentDay <= p.MaxDay
}

// ShouldReap reports whether an eligible record has gone silent. A member
// who never replied is judged from startedAt so a fresh record gets the full
// timeout before it can be reaped.
func (p ReapPolicy) ShouldReap(r *model.ProgressRecord, now time.Time) bool {
	if !p.Eligible(r) {
		return false
	}
	cutoff := now.Add(-p.Timeout)
	if r.StartedAt.After(cutoff) {
		return false
	}
	return r.LastUserMessageAt == nil || r.LastUserMessageAt.Before(cutoff)
}

// ReapCriteria is the store-side prefilter. The policy is rechecked on every
// candidate, so the store may over-select.
type ReapCriteria struct {
	MaxDay      int
	SilentSince time.Time
	Limit       int32
}

type ReapStore interface {
	ListReapCandidates(ctx context.Context, criteria ReapCriteria) ([]model.ProgressRecord, error)
	// MarkInactive sets status=inactive unless the record is already
	// terminal. It reports whether the row changed.
	MarkInactive(ctx context.Context, id int64, now time.Time) (bool, error)
}

type Deprovisioner interface {
	Deprovision(ctx context.Context, channelRef string) error
}

type SweepResult struct {
	Scanned int
	Reaped  int
	Skipped int
}

// Reaper removes channels of members who stopped responding early on.
type Reaper struct {
	store     ReapStore
	gateway   Deprovisioner
	clock     Clock
	policy    ReapPolicy
	batchSize int32
}

func NewReaper(store ReapStore, gateway Deprovisioner, clock Clock, policy ReapPolicy, batchSize int32) *Reaper {
	if clock == nil {
		clock = SystemClock{}
	}
	if batchSize <= 0 {
		batchSize = DefaultReapBatchSize
	}
	return &Reaper{
		store:     store,
		gateway:   gateway,
		clock:     clock,
		policy:    policy,
		batchSize: batchSize,
	}
}

// Sweep runs one reaping pass. The channel is deleted before the status
// flips, so a failed delete leaves the record eligible for the next pass.
// Running Sweep twice in a row reaps nothing the second time.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "megabot.onboarding.reaper",
	})

	now := r.clock.Now()
	candidates, err := r.store.ListReapCandidates(ctx, ReapCriteria{
		MaxDay:      r.policy.MaxDay,
		SilentSince: now.Add(-r.policy.Timeout),
		Limit:       r.batchSize,
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("%w: listing reap candidates: %v", ErrCollaboratorUnavailable, err)
	}

	var result SweepResult
	for i := range candidates {
		rec := &candidates[i]
		result.Scanned++

		if !r.policy.ShouldReap(rec, now) {
			result.Skipped++
			continue
		}

		recCtx := logger.WithLogFields(ctx, logger.LogFields{
			UserID:    logger.Ptr(rec.UserID),
			RecordID:  logger.Ptr(rec.ID),
			ChannelID: logger.Ptr(rec.ChannelRef),
			Day:       logger.Ptr(rec.CurrentDay),
		})

		if err := r.gateway.Deprovision(recCtx, rec.ChannelRef); err != nil {
			slog.WarnContext(recCtx, "deprovision failed, will retry next sweep", "error", err)
			result.Skipped++
			continue
		}

		changed, err := r.store.MarkInactive(recCtx, rec.ID, now)
		if err != nil {
			slog.ErrorContext(recCtx, "failed to mark record inactive", "error", err)
			result.Skipped++
			continue
		}
		if !changed {
			slog.InfoContext(recCtx, "record changed state during sweep, not reaped")
			result.Skipped++
			continue
		}

		result.Reaped++
		slog.InfoContext(recCtx, "reaped inactive onboarding record")
	}

	if result.Scanned > 0 {
		slog.InfoContext(ctx, "reaper sweep finished",
			"scanned", result.Scanned,
			"reaped", result.Reaped,
			"skipped", result.Skipped)
	}
	return result, nil
}
