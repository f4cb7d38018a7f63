package worker

import (
	"context"
	"log/slog"
	"time"

	"megabot.app/onboarding/common/logger"
)

// ReaperScheduler runs reaper sweeps on a fixed interval. The first sweep runs
// immediately so a restart does not delay reaping by a whole interval.
type ReaperScheduler struct {
	sweeper  Sweeper
	interval time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReaperScheduler(sweeper Sweeper, interval time.Duration) *ReaperScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReaperScheduler{
		sweeper:   sweeper,
		interval:  interval,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (s *ReaperScheduler) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "megabot.worker.reaper",
	})

	defer close(s.stoppedCh)

	slog.InfoContext(ctx, "reaper scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			slog.InfoContext(ctx, "reaper scheduler stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ReaperScheduler) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

func (s *ReaperScheduler) sweep(ctx context.Context) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		slog.ErrorContext(ctx, "reaper sweep failed", "error", err)
	}
}
