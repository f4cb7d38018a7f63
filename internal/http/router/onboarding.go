package router

import (
	"github.com/gin-gonic/gin"

	"megabot.app/onboarding/internal/http/handler"
)

func OnboardingRouter(rg *gin.RouterGroup, h *handler.OnboardingHandler) {
	rg.GET("/:user_id", h.Get)
	rg.GET("/:user_id/history", h.History)
	rg.POST("/:user_id/start", h.Start)
	rg.POST("/:user_id/advance", h.Advance)
	rg.POST("/:user_id/mute", h.Mute)
	rg.POST("/:user_id/pause", h.Pause)
	rg.POST("/:user_id/resume", h.Resume)
}
