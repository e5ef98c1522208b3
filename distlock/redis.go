/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package distlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// Deletes the lock key only if it still holds the owner's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisManager implements Manager using a Redis key with TTL.
// The key value is a unique owner token, so only the owner may release the lock.
type RedisManager struct {
	client redis.UniversalClient
}

var _ Manager = (*RedisManager)(nil)

// NewRedisManager creates a new RedisManager.
func NewRedisManager(client redis.UniversalClient) *RedisManager {
	return &RedisManager{client: client}
}

// TryAcquire implements Manager. It issues SET name token NX with the lease as TTL.
func (m *RedisManager) TryAcquire(ctx context.Context, name string, lease time.Duration) (Lock, error) {
	token := xid.New().String()
	ok, err := m.client.SetNX(ctx, name, token, lease).Result()
	if err != nil {
		return nil, fmt.Errorf("set lock key %q: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &redisLock{client: m.client, name: name, token: token}, nil
}

type redisLock struct {
	client redis.UniversalClient
	name   string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.name}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("delete lock key %q: %w", l.name, err)
	}
	if deleted == 0 {
		return ErrNotHeld
	}
	return nil
}
