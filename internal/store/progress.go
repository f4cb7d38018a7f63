package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"megabot.app/onboarding/core/db"
	"megabot.app/onboarding/internal/model"
	"megabot.app/onboarding/internal/onboarding"
)

const progressColumns = `id, user_id, channel_ref, current_day, status, started_at, completed_at,
	days, conversation_history, last_user_message_at, muted, created_at, updated_at`

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type progressStore struct {
	q db.DBTX
}

func newProgressStore(q db.DBTX) ProgressStore {
	return &progressStore{q: q}
}

// progressRow mirrors a progress_records row before JSON decoding.
type progressRow struct {
	ID                  int64
	UserID              string
	ChannelRef          string
	CurrentDay          int16
	Status              string
	StartedAt           time.Time
	CompletedAt         *time.Time
	Days                []byte
	ConversationHistory []byte
	LastUserMessageAt   *time.Time
	Muted               bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (s *progressStore) Create(ctx context.Context, rec *model.ProgressRecord) error {
	row, err := fromProgressModel(rec)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO progress_records (`+progressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		row.ID, row.UserID, row.ChannelRef, row.CurrentDay, row.Status, row.StartedAt, row.CompletedAt,
		row.Days, row.ConversationHistory, row.LastUserMessageAt, row.Muted, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrLiveRecordExists
		}
		return fmt.Errorf("inserting progress record: %w", err)
	}
	return nil
}

func (s *progressStore) GetByID(ctx context.Context, id int64) (*model.ProgressRecord, error) {
	return s.getOne(ctx, `SELECT `+progressColumns+` FROM progress_records WHERE id = $1`, id)
}

func (s *progressStore) GetByIDForUpdate(ctx context.Context, id int64) (*model.ProgressRecord, error) {
	return s.getOne(ctx, `SELECT `+progressColumns+` FROM progress_records WHERE id = $1 FOR UPDATE`, id)
}

func (s *progressStore) GetLiveByUser(ctx context.Context, userID string) (*model.ProgressRecord, error) {
	return s.getOne(ctx, `
		SELECT `+progressColumns+` FROM progress_records
		WHERE user_id = $1 AND status <> 'inactive'
		ORDER BY started_at DESC
		LIMIT 1`, userID)
}

func (s *progressStore) GetLiveByChannel(ctx context.Context, channelRef string) (*model.ProgressRecord, error) {
	return s.getOne(ctx, `
		SELECT `+progressColumns+` FROM progress_records
		WHERE channel_ref = $1 AND status <> 'inactive'
		ORDER BY started_at DESC
		LIMIT 1`, channelRef)
}

func (s *progressStore) Save(ctx context.Context, rec *model.ProgressRecord) error {
	row, err := fromProgressModel(rec)
	if err != nil {
		return err
	}

	tag, err := s.q.Exec(ctx, `
		UPDATE progress_records SET
			channel_ref = $2,
			current_day = $3,
			status = $4,
			completed_at = $5,
			days = $6,
			conversation_history = $7,
			last_user_message_at = $8,
			muted = $9,
			updated_at = $10
		WHERE id = $1 AND status <> 'inactive'`,
		row.ID, row.ChannelRef, row.CurrentDay, row.Status, row.CompletedAt, row.Days,
		row.ConversationHistory, row.LastUserMessageAt, row.Muted, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating progress record %d: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Missing, or reaped since it was read
		return ErrNotFound
	}
	return nil
}

func (s *progressStore) ListByUser(ctx context.Context, userID string) ([]model.ProgressRecord, error) {
	return s.list(ctx, `
		SELECT `+progressColumns+` FROM progress_records
		WHERE user_id = $1
		ORDER BY started_at DESC`, userID)
}

func (s *progressStore) ListReapCandidates(ctx context.Context, c onboarding.ReapCriteria) ([]model.ProgressRecord, error) {
	return s.list(ctx, `
		SELECT `+progressColumns+` FROM progress_records
		WHERE status IN ('active', 'paused')
		  AND current_day <= $1
		  AND started_at <= $2
		  AND (last_user_message_at IS NULL OR last_user_message_at < $2)
		ORDER BY started_at
		LIMIT $3`, c.MaxDay, c.SilentSince, c.Limit)
}

func (s *progressStore) MarkInactive(ctx context.Context, id int64, now time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE progress_records SET status = 'inactive', updated_at = $2
		WHERE id = $1 AND status IN ('active', 'paused')`, id, now)
	if err != nil {
		return false, fmt.Errorf("marking progress record %d inactive: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *progressStore) getOne(ctx context.Context, query string, args ...any) (*model.ProgressRecord, error) {
	var row progressRow
	if err := scanProgressRow(s.q.QueryRow(ctx, query, args...), &row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toProgressModel(row)
}

func (s *progressStore) list(ctx context.Context, query string, args ...any) ([]model.ProgressRecord, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProgressRecord
	for rows.Next() {
		var row progressRow
		if err := scanProgressRow(rows, &row); err != nil {
			return nil, err
		}
		rec, err := toProgressModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgressRow(s scanner, row *progressRow) error {
	return s.Scan(
		&row.ID,
		&row.UserID,
		&row.ChannelRef,
		&row.CurrentDay,
		&row.Status,
		&row.StartedAt,
		&row.CompletedAt,
		&row.Days,
		&row.ConversationHistory,
		&row.LastUserMessageAt,
		&row.Muted,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
}

func fromProgressModel(rec *model.ProgressRecord) (progressRow, error) {
	daysJSON, err := json.Marshal(rec.Days)
	if err != nil {
		return progressRow{}, fmt.Errorf("encoding days: %w", err)
	}
	history := rec.ConversationHistory
	if history == nil {
		history = []model.ConversationEntry{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return progressRow{}, fmt.Errorf("encoding conversation history: %w", err)
	}

	return progressRow{
		ID:                  rec.ID,
		UserID:              rec.UserID,
		ChannelRef:          rec.ChannelRef,
		CurrentDay:          int16(rec.CurrentDay),
		Status:              string(rec.Status),
		StartedAt:           rec.StartedAt,
		CompletedAt:         rec.CompletedAt,
		Days:                daysJSON,
		ConversationHistory: historyJSON,
		LastUserMessageAt:   rec.LastUserMessageAt,
		Muted:               rec.Muted,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}, nil
}

func toProgressModel(row progressRow) (*model.ProgressRecord, error) {
	var days []model.DayProgress
	if len(row.Days) > 0 {
		if err := json.Unmarshal(row.Days, &days); err != nil {
			return nil, fmt.Errorf("decoding days of record %d: %w", row.ID, err)
		}
	}

	history := []model.ConversationEntry{}
	if len(row.ConversationHistory) > 0 {
		if err := json.Unmarshal(row.ConversationHistory, &history); err != nil {
			return nil, fmt.Errorf("decoding history of record %d: %w", row.ID, err)
		}
	}

	return &model.ProgressRecord{
		ID:                  row.ID,
		UserID:              row.UserID,
		ChannelRef:          row.ChannelRef,
		CurrentDay:          int(row.CurrentDay),
		Status:              model.ProgressStatus(row.Status),
		StartedAt:           row.StartedAt,
		CompletedAt:         row.CompletedAt,
		Days:                days,
		ConversationHistory: history,
		LastUserMessageAt:   row.LastUserMessageAt,
		Muted:               row.Muted,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}, nil
}
