/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package rollinglimit provides a distributed rolling-window rate limiter backed by Redis.
//
// Every caller of a limiter has its own window of call timestamps stored in a Redis sorted set.
// A call is admitted when the window contains room for the requested number of calls
// and enough time has passed since the most recent call.
// The read-decide-write cycle is guarded by a distributed lock,
// so many processes may share the same limits.
//
// Rate limit denials are returned as Verdict values, while errors are reserved for invalid arguments,
// an unavailable store and lock acquisition exhaustion (ErrLockExhausted).
package rollinglimit
