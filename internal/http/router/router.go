package router

import (
	"github.com/gin-gonic/gin"

	"megabot.app/onboarding/internal/http/handler"
	"megabot.app/onboarding/internal/http/middleware"
	"megabot.app/onboarding/internal/service"
)

type RouterConfig struct {
	AdminAPIKey string
}

func SetupRoutes(router *gin.Engine, svc service.OnboardingService, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireAdminAPIKey(cfg.AdminAPIKey))
	{
		onboardingHandler := handler.NewOnboardingHandler(svc)
		OnboardingRouter(v1.Group("/onboarding"), onboardingHandler)
	}
}
