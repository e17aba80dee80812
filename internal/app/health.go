package app

import (
	"time"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/taoyao-code/jkbms-gateway/internal/config"
	"github.com/taoyao-code/jkbms-gateway/internal/health"
	"github.com/taoyao-code/jkbms-gateway/internal/poller"
)

// staleIntervals 超过多少个轮询间隔没有新读数视为过期
const staleIntervals = 5

// NewHealthAggregator 以 BMS 轮询检查器初始化聚合器
func NewHealthAggregator(p *poller.Poller, cfg cfgpkg.PollConfig) *health.Aggregator {
	stale := time.Duration(staleIntervals) * cfg.Interval
	if cfg.BreakerTimeout > stale {
		stale = cfg.BreakerTimeout
	}
	return health.NewAggregator(health.NewPollerChecker(p, stale))
}

// RegisterHealthRoutes 注册健康检查 HTTP 路由
func RegisterHealthRoutes(r gin.IRouter, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
