package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/jkbms-gateway/internal/poller"
)

// ErrNoStatus 尚无已发布的读数（或已过期）
var ErrNoStatus = errors.New("no battery status published")

// StatusStore 只保存最新一次读数并广播到频道，不保留历史
type StatusStore struct {
	client  redis.UniversalClient
	key     string
	channel string
	ttl     time.Duration
}

var _ poller.Publisher = (*StatusStore)(nil)

// NewStatusStore ttl<=0 表示不过期；channel 为空时不广播
func NewStatusStore(client redis.UniversalClient, key, channel string, ttl time.Duration) *StatusStore {
	if ttl < 0 {
		ttl = 0
	}
	return &StatusStore{client: client, key: key, channel: channel, ttl: ttl}
}

// Publish 覆盖最新读数并发布到频道（同一 pipeline）
func (s *StatusStore) Publish(ctx context.Context, snap poller.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key, data, s.ttl)
	if s.channel != "" {
		pipe.Publish(ctx, s.channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish status: %w", err)
	}
	return nil
}

// Latest 读取最近发布的读数
func (s *StatusStore) Latest(ctx context.Context) (poller.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return poller.Snapshot{}, ErrNoStatus
	}
	if err != nil {
		return poller.Snapshot{}, fmt.Errorf("redis get status: %w", err)
	}
	var snap poller.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return poller.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Subscribe 订阅广播的读数，ctx 结束后关闭返回的通道
func (s *StatusStore) Subscribe(ctx context.Context) (<-chan poller.Snapshot, error) {
	if s.channel == "" {
		return nil, errors.New("status channel not configured")
	}
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan poller.Snapshot, 1)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap poller.Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
