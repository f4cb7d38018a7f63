package dto

import (
	"time"

	"megabot.app/onboarding/internal/model"
)

type StartOnboardingRequest struct {
	UserName string `json:"user_name" binding:"max=100"`
}

type AdvanceRequest struct {
	Force bool `json:"force"`
}

// MuteRequest uses a pointer so a missing field fails binding instead of
// silently unmuting.
type MuteRequest struct {
	Muted *bool `json:"muted" binding:"required"`
}

type TaskResponse struct {
	TaskID      string         `json:"task_id"`
	Title       string         `json:"title"`
	Kind        model.TaskKind `json:"kind"`
	Required    bool           `json:"required"`
	Completed   bool           `json:"completed"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

type DayResponse struct {
	DayNumber   int            `json:"day_number"`
	Title       string         `json:"title"`
	Completed   bool           `json:"completed"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Tasks       []TaskResponse `json:"tasks"`
}

type ProgressResponse struct {
	ID                int64                `json:"id,string"`
	UserID            string               `json:"user_id"`
	ChannelRef        string               `json:"channel_ref"`
	CurrentDay        int                  `json:"current_day"`
	Status            model.ProgressStatus `json:"status"`
	Muted             bool                 `json:"muted"`
	StartedAt         time.Time            `json:"started_at"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
	LastUserMessageAt *time.Time           `json:"last_user_message_at,omitempty"`
	HistoryLength     int                  `json:"history_length"`
	Days              []DayResponse        `json:"days"`
}

func ToProgressResponse(r *model.ProgressRecord) *ProgressResponse {
	resp := &ProgressResponse{
		ID:                r.ID,
		UserID:            r.UserID,
		ChannelRef:        r.ChannelRef,
		CurrentDay:        r.CurrentDay,
		Status:            r.Status,
		Muted:             r.Muted,
		StartedAt:         r.StartedAt,
		CompletedAt:       r.CompletedAt,
		LastUserMessageAt: r.LastUserMessageAt,
		HistoryLength:     len(r.ConversationHistory),
		Days:              make([]DayResponse, 0, len(r.Days)),
	}
	for _, d := range r.Days {
		day := DayResponse{
			DayNumber:   d.DayNumber,
			Title:       d.Title,
			Completed:   d.Completed,
			CompletedAt: d.CompletedAt,
			Tasks:       make([]TaskResponse, 0, len(d.Tasks)),
		}
		for _, t := range d.Tasks {
			day.Tasks = append(day.Tasks, TaskResponse{
				TaskID:      t.TaskID,
				Title:       t.Title,
				Kind:        t.Kind,
				Required:    t.Required,
				Completed:   t.Completed,
				CompletedAt: t.CompletedAt,
			})
		}
		resp.Days = append(resp.Days, day)
	}
	return resp
}

type StartOnboardingResponse struct {
	Created  bool              `json:"created"`
	Progress *ProgressResponse `json:"progress"`
}

type AdvanceResponse struct {
	Outcome  string            `json:"outcome"`
	FromDay  int               `json:"from_day"`
	ToDay    int               `json:"to_day"`
	Forced   bool              `json:"forced"`
	Progress *ProgressResponse `json:"progress"`
}

// RecordSummary is one entry of a member's record history.
type RecordSummary struct {
	ID          int64                `json:"id,string"`
	Status      model.ProgressStatus `json:"status"`
	CurrentDay  int                  `json:"current_day"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

type HistoryResponse struct {
	Records []RecordSummary `json:"records"`
}

func ToHistoryResponse(records []model.ProgressRecord) *HistoryResponse {
	resp := &HistoryResponse{Records: make([]RecordSummary, 0, len(records))}
	for _, r := range records {
		resp.Records = append(resp.Records, RecordSummary{
			ID:          r.ID,
			Status:      r.Status,
			CurrentDay:  r.CurrentDay,
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
		})
	}
	return resp
}
