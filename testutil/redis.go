/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// RealRedisAddrEnvVar is the name of the environment variable with the address of a real Redis server
// that is used by integration tests.
const RealRedisAddrEnvVar = "ROLLINGLIMIT_TEST_REDIS_ADDR"

// NewMiniRedis starts an in-memory Redis server and returns it together with a client connected to it.
// Both are closed when the test finishes.
func NewMiniRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, client
}

// NewRealRedisClient returns a client for the Redis server whose address is set in RealRedisAddrEnvVar.
// The test is skipped if the variable is not set or the server is not reachable.
func NewRealRedisClient(t testing.TB) *redis.Client {
	t.Helper()
	addr := os.Getenv(RealRedisAddrEnvVar)
	if addr == "" {
		t.Skipf("%s is not set, skipping integration test", RealRedisAddrEnvVar)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis is not available at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}
