package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventLog remembers which webhook events were already handled. It is a fast
// path only; the conditional status updates stay authoritative.
type EventLog interface {
	// FirstSeen records id and reports whether it had not been seen before.
	FirstSeen(ctx context.Context, id string) (bool, error)
	// Forget removes id so a redelivery is processed again.
	Forget(ctx context.Context, id string) error
}

// RedisEventLog keeps event ids in Redis with a TTL.
type RedisEventLog struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisEventLog(client *redis.Client, ttl time.Duration) *RedisEventLog {
	return &RedisEventLog{client: client, ttl: ttl}
}

func eventKey(id string) string {
	return fmt.Sprintf("payment:webhook:%s", id)
}

func (l *RedisEventLog) FirstSeen(ctx context.Context, id string) (bool, error) {
	ok, err := l.client.SetNX(ctx, eventKey(id), time.Now().UTC().Unix(), l.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("record webhook event: %w", err)
	}
	return ok, nil
}

func (l *RedisEventLog) Forget(ctx context.Context, id string) error {
	if err := l.client.Del(ctx, eventKey(id)).Err(); err != nil {
		return fmt.Errorf("forget webhook event: %w", err)
	}
	return nil
}

// NopEventLog treats every event as new.
type NopEventLog struct{}

func (NopEventLog) FirstSeen(context.Context, string) (bool, error) { return true, nil }

func (NopEventLog) Forget(context.Context, string) error { return nil }
