package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/caucus-ai/caucus/internal/types"
)

// DefaultKey is the Redis list the queue lives in.
const DefaultKey = "caucus:directives"

// RedisConfig holds Redis queue configuration.
type RedisConfig struct {
	Addr     string // Required, e.g. "localhost:6379"
	Password string
	DB       int
	Key      string // List key (default: DefaultKey)
}

// RedisQueue is a FIFO queue backed by a Redis list. Directives pushed
// with LPUSH and popped with RPOP drain in the same order the memory
// queue does.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a Redis-backed queue and verifies the
// connection.
func NewRedisQueue(ctx context.Context, cfg *RedisConfig) (*RedisQueue, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &types.BackendUnavailableError{Backend: "redis", Err: err}
	}
	return &RedisQueue{client: client, key: key}, nil
}

// Enqueue pushes a directive onto the list.
func (q *RedisQueue) Enqueue(ctx context.Context, directive *types.Directive) error {
	data, err := json.Marshal(directive)
	if err != nil {
		return fmt.Errorf("failed to marshal directive: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue directive: %w", err)
	}
	return nil
}

// Dequeue pops the oldest directive, or (nil, nil) when the list is
// empty.
func (q *RedisQueue) Dequeue(ctx context.Context) (*types.Directive, error) {
	data, err := q.client.RPop(ctx, q.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue directive: %w", err)
	}
	var directive types.Directive
	if err := json.Unmarshal(data, &directive); err != nil {
		return nil, fmt.Errorf("failed to unmarshal directive: %w", err)
	}
	return &directive, nil
}

// Len reports how many directives are waiting.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to measure queue length: %w", err)
	}
	return int(n), nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
