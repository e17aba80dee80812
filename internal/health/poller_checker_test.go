package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taoyao-code/jkbms-gateway/internal/breaker"
	"github.com/taoyao-code/jkbms-gateway/internal/poller"
)

type staticSource poller.Health

func (s staticSource) Health() poller.Health { return poller.Health(s) }

func TestPollerChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	closed := breaker.Stats{State: breaker.StateClosed.String()}

	tests := []struct {
		name   string
		health poller.Health
		want   Status
	}{
		{"尚未轮询", poller.Health{Breaker: closed}, StatusDegraded},
		{"从未成功", poller.Health{Polls: 3, ConsecutiveFailures: 3, LastError: "timeout", Breaker: closed}, StatusUnhealthy},
		{"读数新鲜", poller.Health{Polls: 5, LastSuccess: now.Add(-2 * time.Second), Breaker: closed}, StatusHealthy},
		{"偶发失败", poller.Health{Polls: 5, LastSuccess: now.Add(-2 * time.Second), ConsecutiveFailures: 1, LastError: "checksum", Breaker: closed}, StatusDegraded},
		{"读数过期", poller.Health{Polls: 5, LastSuccess: now.Add(-time.Minute), Breaker: closed}, StatusUnhealthy},
		{"熔断", poller.Health{Polls: 9, LastSuccess: now.Add(-2 * time.Second), Breaker: breaker.Stats{State: breaker.StateOpen.String()}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPollerChecker(staticSource(tt.health), 30*time.Second)
			c.now = func() time.Time { return now }
			res := c.Check(context.Background())
			assert.Equal(t, tt.want, res.Status, res.Message)
			assert.Equal(t, "bms", c.Name())
		})
	}
}
