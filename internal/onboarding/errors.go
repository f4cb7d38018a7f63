package onboarding

import (
	"errors"

	"megabot.app/onboarding/internal/catalog"
)

var (
	// ErrInvalidDay is returned for catalog lookups outside 1..5.
	ErrInvalidDay = catalog.ErrInvalidDay

	// ErrRecordNotFound is returned when the member has no live progress record.
	ErrRecordNotFound = errors.New("progress record not found")

	// ErrInactiveRecord is returned when a mutation targets a record that is
	// not active. Completed and inactive records are never mutated.
	ErrInactiveRecord = errors.New("progress record is not active")

	// ErrCollaboratorUnavailable wraps failures of the gateway or the store.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrInvariantViolation is returned by Validate.
	ErrInvariantViolation = errors.New("progress record invariant violated")
)
