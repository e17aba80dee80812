package health

import (
	"context"
	"time"

	"github.com/taoyao-code/jkbms-gateway/internal/breaker"
	"github.com/taoyao-code/jkbms-gateway/internal/poller"
)

// PollSource 提供轮询健康数据
type PollSource interface {
	Health() poller.Health
}

// PollerChecker 按最近成功读数的新鲜度判断 BMS 链路健康
type PollerChecker struct {
	source     PollSource
	staleAfter time.Duration
	now        func() time.Time
}

// NewPollerChecker staleAfter 通常取轮询间隔的若干倍
func NewPollerChecker(source PollSource, staleAfter time.Duration) *PollerChecker {
	return &PollerChecker{source: source, staleAfter: staleAfter, now: time.Now}
}

func (c *PollerChecker) Name() string {
	return "bms"
}

func (c *PollerChecker) Check(ctx context.Context) CheckResult {
	start := c.now()
	h := c.source.Health()

	details := map[string]any{
		"polls":                h.Polls,
		"consecutive_failures": h.ConsecutiveFailures,
		"breaker":              h.Breaker.State,
	}
	if h.LastErrorKind != "" {
		details["last_error_kind"] = h.LastErrorKind
	}
	result := func(s Status, msg string) CheckResult {
		return CheckResult{Status: s, Message: msg, Details: details, Latency: c.now().Sub(start)}
	}

	if h.LastSuccess.IsZero() {
		if h.Polls == 0 {
			return result(StatusDegraded, "waiting for first reading")
		}
		return result(StatusUnhealthy, "no reading decoded yet: "+h.LastError)
	}

	age := start.Sub(h.LastSuccess)
	details["age"] = age.String()
	switch {
	case h.Breaker.State == breaker.StateOpen.String():
		return result(StatusUnhealthy, "poll breaker open")
	case c.staleAfter > 0 && age > c.staleAfter:
		return result(StatusUnhealthy, "reading is stale")
	case h.ConsecutiveFailures > 0:
		return result(StatusDegraded, h.LastError)
	default:
		return result(StatusHealthy, "ok")
	}
}
