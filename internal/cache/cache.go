// Package cache stores computed group balances so repeated reads skip both
// the database aggregation and the local engine.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmynk/splitledger/internal/calculator"
)

// BalanceCache caches the balance map of a group. Writers call Invalidate
// after any change to the group's expenses, settlements or membership.
type BalanceCache interface {
	// Get returns the cached balances. The boolean is false on a miss.
	Get(ctx context.Context, groupID string) (map[string]calculator.MemberBalance, bool, error)
	Set(ctx context.Context, groupID string, balances map[string]calculator.MemberBalance) error
	Invalidate(ctx context.Context, groupID string) error
}

// Nop is a BalanceCache that never hits. Used when no Redis is configured.
type Nop struct{}

func (Nop) Get(context.Context, string) (map[string]calculator.MemberBalance, bool, error) {
	return nil, false, nil
}
func (Nop) Set(context.Context, string, map[string]calculator.MemberBalance) error { return nil }
func (Nop) Invalidate(context.Context, string) error                                  { return nil }
func (Nop) Close() error                                                              { return nil }

// RedisCache keeps balances as JSON strings with a TTL.
type RedisCache struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// NewRedisCache wraps a Redis client. A zero ttl keeps entries until invalidated.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: "splitledger:balances:",
		ttl:       ttl,
	}
}

// Connect opens a Redis client and checks it answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		ConnMaxLifetime: time.Hour,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

// Close releases the underlying client when it owns connections.
func (c *RedisCache) Close() error {
	if closer, ok := c.client.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *RedisCache) key(groupID string) string {
	return c.keyPrefix + groupID
}

func (c *RedisCache) Get(ctx context.Context, groupID string) (map[string]calculator.MemberBalance, bool, error) {
	data, err := c.client.Get(ctx, c.key(groupID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached balances: %w", err)
	}

	var balances map[string]calculator.MemberBalance
	if err := json.Unmarshal([]byte(data), &balances); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached balances: %w", err)
	}
	return balances, true, nil
}

func (c *RedisCache) Set(ctx context.Context, groupID string, balances map[string]calculator.MemberBalance) error {
	data, err := json.Marshal(balances)
	if err != nil {
		return fmt.Errorf("failed to encode balances: %w", err)
	}
	if err := c.client.Set(ctx, c.key(groupID), string(data), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache balances: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, groupID string) error {
	if err := c.client.Del(ctx, c.key(groupID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached balances: %w", err)
	}
	return nil
}
