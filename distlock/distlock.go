/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package distlock provides a distributed lock with a lease on top of Redis
// and a coordinator that runs a function while holding such lock.
package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotAcquired is returned by Manager.TryAcquire when the lock is held by someone else.
var ErrNotAcquired = errors.New("lock is held by another owner")

// ErrNotHeld is returned by Lock.Release when the lock lease expired and the lock no longer belongs to the caller.
var ErrNotHeld = errors.New("lock is not held")

// ErrLockExhausted is matched (via errors.Is) by the error returned
// when the lock could not be acquired within the allowed number of attempts.
var ErrLockExhausted = errors.New("lock acquisition attempts exhausted")

// LockExhaustedError describes a failed lock acquisition.
type LockExhaustedError struct {
	Name     string
	Attempts int
}

// Error implements the error interface.
func (e *LockExhaustedError) Error() string {
	return fmt.Sprintf("lock %q was not acquired after %d attempt(s)", e.Name, e.Attempts)
}

// Is reports whether target is ErrLockExhausted.
func (e *LockExhaustedError) Is(target error) bool {
	return target == ErrLockExhausted
}

// Lock is an acquired distributed lock.
type Lock interface {
	// Release frees the lock. It returns ErrNotHeld if the lease has already expired.
	Release(ctx context.Context) error
}

// Manager acquires distributed locks.
type Manager interface {
	// TryAcquire makes a single non-blocking attempt to acquire the lock with the given name
	// for the lease duration. It returns ErrNotAcquired if the lock is held by another owner.
	TryAcquire(ctx context.Context, name string, lease time.Duration) (Lock, error)
}
