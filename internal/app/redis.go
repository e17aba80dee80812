package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/jkbms-gateway/internal/config"
	"github.com/taoyao-code/jkbms-gateway/internal/health"
	redisstorage "github.com/taoyao-code/jkbms-gateway/internal/storage/redis"
)

// NewRedisClient 未启用时返回 nil, nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))
	return client, nil
}

// NewStatusStore 最新读数发布器
func NewStatusStore(client *redisstorage.Client, cfg cfgpkg.RedisConfig) *redisstorage.StatusStore {
	return redisstorage.NewStatusStore(client.Client, cfg.Key, cfg.Channel, cfg.TTL)
}

// AddRedisChecker 添加 Redis 检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}
