package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aimon/internal/core/services"
	"aimon/internal/infrastructure/middleware"
	"aimon/pkg/config"
)

// RouterDeps carries everything the gateway router composes. Handlers that
// are nil simply do not register their routes.
type RouterDeps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Auth    *services.AuthService
	AuthH   *AuthHandler
	Session *SessionHandler
	Push    *PushHandler
	Health  *HealthHandler
}

// NewRouter builds the gin engine with the full middleware chain. Auth
// endpoints and probes stay public; session and push routes require a token.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(deps.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ErrorHandlerMiddleware(deps.Logger))
	if deps.Config.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	if deps.Config.RateLimiting.Enabled {
		router.Use(middleware.RateLimitMiddleware(deps.Config))
	}

	if deps.Health != nil {
		deps.Health.SetupRoutes(router)
	}
	if deps.AuthH != nil {
		deps.AuthH.SetupRoutes(router)
	}

	protected := router.Group("/")
	if deps.Auth != nil {
		protected.Use(middleware.AuthMiddleware(deps.Auth))
	}
	if deps.Session != nil {
		deps.Session.SetupRoutes(protected)
	}
	if deps.Push != nil {
		deps.Push.SetupRoutes(protected)
	}

	return router
}
