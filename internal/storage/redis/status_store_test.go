package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/jkbms-gateway/internal/config"
	"github.com/taoyao-code/jkbms-gateway/internal/poller"
	"github.com/taoyao-code/jkbms-gateway/internal/protocol/jkbms"
)

// 需要本地 Redis，不可用时跳过
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 测试专用数据库
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available, skipping test")
		return nil
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(ctx)
		_ = client.Close()
	})
	return client
}

func testSnapshot() poller.Snapshot {
	return poller.Snapshot{
		ID:   "6f1c1d7e-2a51-4a43-9d7b-1b7a4f0c9e11",
		Time: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status: jkbms.BatteryStatus{
			CellCount:     4,
			CellVoltages:  []int{3300, 3301, 3299, 3302},
			TempFET:       25,
			TempProbe1:    -10,
			TempProbe2:    30,
			PackVoltage:   1320,
			Current:       150,
			StateOfCharge: 87,
		},
	}
}

func TestStatusStore_PublishAndLatest(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	store := NewStatusStore(client, "jkbms:test:latest", "", time.Minute)

	_, err := store.Latest(ctx)
	require.ErrorIs(t, err, ErrNoStatus)

	require.NoError(t, store.Publish(ctx, testSnapshot()))
	got, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, testSnapshot().ID, got.ID)
	assert.Equal(t, testSnapshot().Status, got.Status)
	assert.True(t, testSnapshot().Time.Equal(got.Time))

	ttl, err := client.TTL(ctx, "jkbms:test:latest").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
}

func TestStatusStore_Subscribe(t *testing.T) {
	client := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	store := NewStatusStore(client, "jkbms:test:latest", "jkbms:test", 0)

	ch, err := store.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Publish(ctx, testSnapshot()))

	select {
	case snap := <-ch:
		assert.Equal(t, testSnapshot().Status, snap.Status)
	case <-ctx.Done():
		t.Fatal("no snapshot received")
	}

	_, err = NewStatusStore(client, "k", "", 0).Subscribe(ctx)
	require.Error(t, err)
}

func TestNewClient_Disabled(t *testing.T) {
	_, err := NewClient(cfgpkg.RedisConfig{Enabled: false})
	require.Error(t, err)
}

func TestOptions(t *testing.T) {
	opts := options(cfgpkg.RedisConfig{Addr: "redis:6379", DB: 2, PoolSize: 4, DialTimeout: time.Second})
	assert.Equal(t, "redis:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 4, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)
}

func TestClient_CloseNil(t *testing.T) {
	var c *Client
	require.NoError(t, c.Close())
}
