package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/jkbms-gateway/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/jkbms-gateway/internal/config"
)

// RegisterStatusRoutes 注册电池状态路由
func RegisterStatusRoutes(r gin.IRouter, source StatusSource, authCfg cfgpkg.AuthConfig, logger *zap.Logger) {
	if r == nil || source == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewStatusHandler(source, logger)

	v1 := r.Group("/api/v1")
	if authCfg.Enabled {
		v1.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	}

	v1.GET("/status", handler.GetStatus)
	v1.GET("/poll", handler.GetPollHealth)
	v1.POST("/poll", handler.TriggerPoll)
	v1.POST("/poll/reset", handler.ResetBreaker)
}
