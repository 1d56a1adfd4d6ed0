package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type redisPublisher struct {
	rdb *goredis.Client
}

// NewRedis connects to Redis and verifies the connection before returning
// a pub/sub publisher.
func NewRedis(addr string) (Publisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisPublisher{rdb: rdb}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, channel string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime payload: %w", err)
	}
	return p.rdb.Publish(ctx, channel, raw).Err()
}

func (p *redisPublisher) Close() error {
	return p.rdb.Close()
}
