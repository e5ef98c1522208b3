/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package window stores rolling windows of call timestamps in Redis sorted sets.
// Every member of a window is a Unix timestamp in microseconds and its score is the same value.
package window

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimiterType is a part of every window key that distinguishes rolling windows from other data.
const LimiterType = "RollingRateLimiter"

// Key returns the name of the sorted set that holds the window of the given caller.
func Key(prefix, identifier, callerID string) string {
	key := LimiterType + "-" + identifier + "-" + callerID
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, ":") + ":" + key
}

// RedisStore keeps windows in Redis sorted sets.
// Callers must hold the distributed lock of the key while using it.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a new RedisStore.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// PruneAndRead removes all entries that are older than now-window (inclusive)
// and returns the remaining ones in ascending order. Both steps run in one MULTI/EXEC transaction.
func (s *RedisStore) PruneAndRead(ctx context.Context, key string, now time.Time, window time.Duration) ([]time.Time, error) {
	cutoff := now.UnixMicro() - window.Microseconds()
	var rangeCmd *redis.ZSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		rangeCmd = pipe.ZRangeWithScores(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prune and read window %q: %w", key, err)
	}
	entries := rangeCmd.Val()
	timestamps := make([]time.Time, 0, len(entries))
	for _, z := range entries {
		timestamps = append(timestamps, time.UnixMicro(int64(z.Score)))
	}
	return timestamps, nil
}

// Append adds timestamps to the window with a single ZADD and refreshes the key TTL.
func (s *RedisStore) Append(ctx context.Context, key string, timestamps []time.Time, ttl time.Duration) error {
	if len(timestamps) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(timestamps))
	for _, ts := range timestamps {
		micro := ts.UnixMicro()
		members = append(members, redis.Z{Score: float64(micro), Member: strconv.FormatInt(micro, 10)})
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, members...)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append to window %q: %w", key, err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
