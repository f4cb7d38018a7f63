package store

import (
	"context"
	"errors"
	"time"

	"megabot.app/onboarding/internal/model"
	"megabot.app/onboarding/internal/onboarding"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrLiveRecordExists is returned by Create when the user already has a
// record that is not inactive.
var ErrLiveRecordExists = errors.New("live progress record already exists")

// ProgressStore defines the contract for onboarding progress data access
type ProgressStore interface {
	Create(ctx context.Context, rec *model.ProgressRecord) error
	GetByID(ctx context.Context, id int64) (*model.ProgressRecord, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*model.ProgressRecord, error)
	// GetLiveByUser returns the user's record that is not inactive.
	GetLiveByUser(ctx context.Context, userID string) (*model.ProgressRecord, error)
	GetLiveByChannel(ctx context.Context, channelRef string) (*model.ProgressRecord, error)
	// Save writes the full record. Inactive rows are never overwritten;
	// saving one returns ErrNotFound.
	Save(ctx context.Context, rec *model.ProgressRecord) error
	ListByUser(ctx context.Context, userID string) ([]model.ProgressRecord, error)

	ListReapCandidates(ctx context.Context, criteria onboarding.ReapCriteria) ([]model.ProgressRecord, error)
	MarkInactive(ctx context.Context, id int64, now time.Time) (bool, error)
}
