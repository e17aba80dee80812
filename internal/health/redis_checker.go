package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSlowPing      = 200 * time.Millisecond
	redisPoolBusyRatio = 0.9
)

// RedisPinger 发布读数用的 Redis 客户端
type RedisPinger interface {
	HealthCheck(ctx context.Context) error
	Stats() *redis.PoolStats
}

// RedisChecker 只影响读数发布，本地轮询与 HTTP 查询不依赖它，因此最多降级
type RedisChecker struct {
	client RedisPinger
}

func NewRedisChecker(client RedisPinger) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := c.client.HealthCheck(ctx)
	rtt := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "publish target unreachable: " + err.Error(),
			Latency: rtt,
		}
	}

	pool := c.client.Stats()
	busy := busyRatio(pool)
	res := CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]any{
			"ping":        rtt.String(),
			"total_conns": pool.TotalConns,
			"idle_conns":  pool.IdleConns,
			"timeouts":    pool.Timeouts,
			"utilization": fmt.Sprintf("%.1f%%", busy*100),
		},
		Latency: rtt,
	}
	switch {
	case busy > redisPoolBusyRatio:
		res.Status, res.Message = StatusDegraded, "connection pool near limit"
	case rtt > redisSlowPing:
		res.Status, res.Message = StatusDegraded, "slow ping"
	}
	return res
}

func busyRatio(pool *redis.PoolStats) float64 {
	if pool == nil || pool.TotalConns == 0 {
		return 0
	}
	return float64(pool.TotalConns-pool.IdleConns) / float64(pool.TotalConns)
}
