package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const EventOnboardingCompleted = "onboarding_completed"

// CompletionEvent tells payout and verification consumers that a member
// finished all five days.
type CompletionEvent struct {
	RecordID    int64
	UserID      string
	CompletedAt time.Time
}

type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, ev CompletionEvent) error
}

type redisCompletionPublisher struct {
	client redis.Cmdable
	stream string
}

func NewCompletionPublisher(client redis.Cmdable, stream string) CompletionPublisher {
	return &redisCompletionPublisher{client: client, stream: stream}
}

func (p *redisCompletionPublisher) PublishCompletion(ctx context.Context, ev CompletionEvent) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: completionValues(ev),
	}).Err(); err != nil {
		return fmt.Errorf("publishing completion for record %d: %w", ev.RecordID, err)
	}

	slog.InfoContext(ctx, "published onboarding completion",
		"record_id", ev.RecordID,
		"stream", p.stream)
	return nil
}

func completionValues(ev CompletionEvent) map[string]any {
	return map[string]any{
		"event":        EventOnboardingCompleted,
		"record_id":    strconv.FormatInt(ev.RecordID, 10),
		"user_id":      ev.UserID,
		"completed_at": ev.CompletedAt.UTC().Format(time.RFC3339Nano),
	}
}
