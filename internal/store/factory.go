package store

import (
	"megabot.app/onboarding/core/db"
)

type Stores struct {
	q db.DBTX
}

// NewStores works with either the pool or a transaction.
func NewStores(q db.DBTX) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Progress() ProgressStore {
	return newProgressStore(s.q)
}
