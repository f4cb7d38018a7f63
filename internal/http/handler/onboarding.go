package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"megabot.app/onboarding/common/logger"
	"megabot.app/onboarding/internal/http/dto"
	"megabot.app/onboarding/internal/onboarding"
	"megabot.app/onboarding/internal/service"
)

// OnboardingHandler is the operator API over onboarding records.
type OnboardingHandler struct {
	svc service.OnboardingService
}

func NewOnboardingHandler(svc service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{svc: svc}
}

func (h *OnboardingHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	rec, err := h.svc.Get(ctx, c.Param("user_id"))
	if err != nil {
		respondError(c, err, "failed to load onboarding progress")
		return
	}
	c.JSON(http.StatusOK, dto.ToProgressResponse(rec))
}

func (h *OnboardingHandler) History(c *gin.Context) {
	ctx := c.Request.Context()

	records, err := h.svc.History(ctx, c.Param("user_id"))
	if err != nil {
		respondError(c, err, "failed to load onboarding history")
		return
	}
	c.JSON(http.StatusOK, dto.ToHistoryResponse(records))
}

// Start begins onboarding for a member who joined before the bot was
// running. It returns 201 when a record was created and 200 when the member
// already had one.
func (h *OnboardingHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.StartOnboardingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	res, err := h.svc.Start(ctx, c.Param("user_id"), req.UserName)
	if err != nil {
		respondError(c, err, "failed to start onboarding")
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.StartOnboardingResponse{
		Created:  res.Created,
		Progress: dto.ToProgressResponse(res.Record),
	})
}

func (h *OnboardingHandler) Advance(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("user_id")

	var req dto.AdvanceRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	res, err := h.svc.Advance(ctx, userID, req.Force)
	if err != nil {
		respondError(c, err, "failed to advance onboarding")
		return
	}

	slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{UserID: logger.Ptr(userID)}),
		"operator advance", "outcome", res.Outcome, "force", req.Force)

	c.JSON(http.StatusOK, dto.AdvanceResponse{
		Outcome:  string(res.Outcome),
		FromDay:  res.FromDay,
		ToDay:    res.ToDay,
		Forced:   res.Forced,
		Progress: dto.ToProgressResponse(res.Record),
	})
}

func (h *OnboardingHandler) Mute(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: muted is required"})
		return
	}

	rec, err := h.svc.SetMuted(ctx, c.Param("user_id"), *req.Muted)
	if err != nil {
		respondError(c, err, "failed to update mute")
		return
	}
	c.JSON(http.StatusOK, dto.ToProgressResponse(rec))
}

func (h *OnboardingHandler) Pause(c *gin.Context) {
	rec, err := h.svc.Pause(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err, "failed to pause onboarding")
		return
	}
	c.JSON(http.StatusOK, dto.ToProgressResponse(rec))
}

func (h *OnboardingHandler) Resume(c *gin.Context) {
	rec, err := h.svc.Resume(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err, "failed to resume onboarding")
		return
	}
	c.JSON(http.StatusOK, dto.ToProgressResponse(rec))
}

// bindOptionalJSON binds the body when there is one. It writes a 400 and
// returns false on malformed input.
func bindOptionalJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

func respondError(c *gin.Context, err error, msg string) {
	ctx := c.Request.Context()

	switch {
	case errors.Is(err, onboarding.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no onboarding record for this member"})
	case errors.Is(err, onboarding.ErrInactiveRecord):
		c.JSON(http.StatusConflict, gin.H{"error": "onboarding record is no longer active"})
	default:
		slog.ErrorContext(ctx, msg, "error", err, "user_id", c.Param("user_id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
