/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package distlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-rollinglimit/log"
	"github.com/acronis/go-rollinglimit/log/logtest"
	"github.com/acronis/go-rollinglimit/retry"
	"github.com/acronis/go-rollinglimit/testutil"
)

type mockLock struct {
	released   *atomic.Int32
	releaseErr error
}

func (l *mockLock) Release(context.Context) error {
	l.released.Inc()
	return l.releaseErr
}

type mockManager struct {
	attempts   atomic.Int32
	released   atomic.Int32
	acquireOn  int32 // attempt number on which the lock is acquired, 0 means never
	acquireErr error
	releaseErr error
	gotLease   time.Duration
	gotLeaseMu sync.Mutex
}

func (m *mockManager) TryAcquire(_ context.Context, _ string, lease time.Duration) (Lock, error) {
	m.gotLeaseMu.Lock()
	m.gotLease = lease
	m.gotLeaseMu.Unlock()
	attempt := m.attempts.Inc()
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	if m.acquireOn == 0 || attempt < m.acquireOn {
		return nil, ErrNotAcquired
	}
	return &mockLock{released: &m.released, releaseErr: m.releaseErr}, nil
}

func TestCoordinator_WithLock(t *testing.T) {
	manager := &mockManager{acquireOn: 3}
	c := &Coordinator{Manager: manager, Policy: retry.NewConstantBackoffPolicy(time.Millisecond, 5)}

	called := false
	err := c.WithLock(context.Background(), "key-lock", func(ctx context.Context) error {
		called = true
		require.EqualValues(t, 0, manager.released.Load())
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.EqualValues(t, 3, manager.attempts.Load())
	require.EqualValues(t, 1, manager.released.Load())
	require.Equal(t, DefaultLease, manager.gotLease)
}

func TestCoordinator_Exhausted(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	manager := &mockManager{}
	c := &Coordinator{
		Manager: manager,
		Lease:   time.Second,
		Policy:  retry.NewConstantBackoffPolicy(time.Millisecond, 7),
		Logger:  logRecorder,
	}

	err := c.WithLock(context.Background(), "key-lock", func(ctx context.Context) error {
		t.Fatal("must not be called")
		return nil
	})
	require.ErrorIs(t, err, ErrLockExhausted)
	var exhaustedErr *LockExhaustedError
	require.ErrorAs(t, err, &exhaustedErr)
	require.Equal(t, 7, exhaustedErr.Attempts)
	require.Equal(t, "key-lock", exhaustedErr.Name)
	require.EqualValues(t, 7, manager.attempts.Load())
	require.EqualValues(t, 0, manager.released.Load())
	require.Equal(t, time.Second, manager.gotLease)

	entry, found := logRecorder.FindEntry("lock acquisition attempts exhausted")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, entry.Level)
}

func TestCoordinator_DefaultPolicyAttempts(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the whole default retry budget")
	}
	manager := &mockManager{}
	c := NewCoordinator(manager, nil)
	err := c.WithLock(context.Background(), "key-lock", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrLockExhausted)
	require.EqualValues(t, DefaultMaxAttempts, manager.attempts.Load())
}

func TestCoordinator_NonRetryableAcquireError(t *testing.T) {
	storeErr := errors.New("connection refused")
	manager := &mockManager{acquireErr: storeErr}
	c := &Coordinator{Manager: manager, Policy: retry.NewConstantBackoffPolicy(time.Millisecond, 5)}

	err := c.WithLock(context.Background(), "key-lock", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, storeErr)
	require.NotErrorIs(t, err, ErrLockExhausted)
	require.EqualValues(t, 1, manager.attempts.Load())
}

func TestCoordinator_ContextCanceledWhileWaiting(t *testing.T) {
	manager := &mockManager{}
	c := &Coordinator{Manager: manager, Policy: retry.NewConstantBackoffPolicy(50*time.Millisecond, 0)}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := c.WithLock(ctx, "key-lock", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, ErrLockExhausted)
}

func TestCoordinator_ReleaseOnError(t *testing.T) {
	manager := &mockManager{acquireOn: 1}
	c := &Coordinator{Manager: manager}

	bodyErr := errors.New("body failed")
	err := c.WithLock(context.Background(), "key-lock", func(ctx context.Context) error { return bodyErr })
	require.ErrorIs(t, err, bodyErr)
	require.EqualValues(t, 1, manager.released.Load())
}

func TestCoordinator_ReleaseOnPanic(t *testing.T) {
	manager := &mockManager{acquireOn: 1}
	c := &Coordinator{Manager: manager}

	require.PanicsWithValue(t, "boom", func() {
		_ = c.WithLock(context.Background(), "key-lock", func(ctx context.Context) error { panic("boom") })
	})
	require.EqualValues(t, 1, manager.released.Load())
}

func TestCoordinator_ReleaseErrorIsLogged(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	manager := &mockManager{acquireOn: 1, releaseErr: ErrNotHeld}
	c := &Coordinator{Manager: manager, Logger: logRecorder}

	err := c.WithLock(context.Background(), "key-lock", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	entry, found := logRecorder.FindEntry("failed to release lock")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
	lockField, found := entry.FindField("lock")
	require.True(t, found)
	require.Equal(t, log.String("lock", "key-lock"), *lockField)
}

func TestCoordinator_MutualExclusionWithRedis(t *testing.T) {
	_, client := testutil.NewMiniRedis(t)

	const workers = 8
	const iterations = 5

	var inside, maxInside, total atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every worker has its own coordinator like separate processes would.
			c := &Coordinator{
				Manager: NewRedisManager(client),
				Policy:  retry.NewConstantBackoffPolicy(time.Millisecond, 0),
			}
			for j := 0; j < iterations; j++ {
				err := c.WithLock(context.Background(), "shared-lock", func(ctx context.Context) error {
					n := inside.Inc()
					for {
						m := maxInside.Load()
						if n <= m || maxInside.CompareAndSwap(m, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					total.Inc()
					inside.Dec()
					return nil
				})
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, maxInside.Load())
	require.EqualValues(t, workers*iterations, total.Load())
}
