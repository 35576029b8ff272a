// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danielhkuo/consensus-engine/models"
)

const keyPrefix = "spread:proposal"

// SpreadCache holds computed voting spreads. A nil date means the live
// spread; a date means the spread as of that day's last snapshot.
type SpreadCache interface {
	Get(ctx context.Context, proposalID int64, date *time.Time) (models.VoteSpread, bool, error)
	Set(ctx context.Context, proposalID int64, date *time.Time, spread models.VoteSpread) error
	Invalidate(ctx context.Context, proposalID int64) error
}

// Key returns the cache key for a proposal's spread.
func Key(proposalID int64, date *time.Time) string {
	if date == nil {
		return fmt.Sprintf("%s:%d:live", keyPrefix, proposalID)
	}
	return fmt.Sprintf("%s:%d:%s", keyPrefix, proposalID, date.UTC().Format(time.DateOnly))
}

type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisSpreadCache struct {
	rdb store
	ttl time.Duration
}

// Open connects to Redis and pings it once.
func Open(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisSpreadCache(client *redis.Client, ttl time.Duration) *RedisSpreadCache {
	return &RedisSpreadCache{rdb: client, ttl: ttl}
}

func (c *RedisSpreadCache) Get(ctx context.Context, proposalID int64, date *time.Time) (models.VoteSpread, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(proposalID, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var spread models.VoteSpread
	if err := json.Unmarshal(raw, &spread); err != nil {
		return nil, false, fmt.Errorf("corrupt cached spread: %w", err)
	}
	return spread, true, nil
}

func (c *RedisSpreadCache) Set(ctx context.Context, proposalID int64, date *time.Time, spread models.VoteSpread) error {
	raw, err := json.Marshal(spread)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, Key(proposalID, date), raw, c.ttl).Err()
}

// Invalidate drops the live spread. Dated spreads come from immutable
// snapshots and only expire by TTL.
func (c *RedisSpreadCache) Invalidate(ctx context.Context, proposalID int64) error {
	return c.rdb.Del(ctx, Key(proposalID, nil)).Err()
}

type Noop struct{}

func (Noop) Get(context.Context, int64, *time.Time) (models.VoteSpread, bool, error) {
	return nil, false, nil
}
func (Noop) Set(context.Context, int64, *time.Time, models.VoteSpread) error { return nil }
func (Noop) Invalidate(context.Context, int64) error                        { return nil }
