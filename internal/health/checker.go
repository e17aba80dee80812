package health

import (
	"context"
	"time"
)

// Status 网关健康等级，按严重程度递增
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"  // 仍能给出最近读数
	StatusUnhealthy Status = "unhealthy" // 读数缺失或过期
)

func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// CheckResult 单项检查结果
type CheckResult struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// Checker 单项依赖（BMS 链路、Redis）的检查
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}
