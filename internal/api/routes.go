package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
)

// RegisterRoutes 注册 /api 路由组
func RegisterRoutes(r gin.IRouter, h *Handler, cfg cfgpkg.APIConfig, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:        cfg.RateLimit.Enabled,
		RequestsPerMin: cfg.RateLimit.RequestsPerMin,
		BurstSize:      cfg.RateLimit.Burst,
	}))
	if cfg.Auth.Enabled {
		api.Use(middleware.APIKeyAuth(middleware.AuthConfig{
			APIKeys: cfg.Auth.APIKeys,
			Enabled: true,
		}, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(cfg.Auth.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	api.GET("/commands", h.ListCommands)
	api.GET("/typeids/:hex", h.LookupTypeID)

	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id", h.GetSession)

	api.GET("/deadletters", h.ListDeadLetters)
	api.GET("/deadletters/count", h.CountDeadLetters)
	api.DELETE("/deadletters", h.ClearDeadLetters)
}
