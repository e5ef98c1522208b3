/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rollinglimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	now := time.UnixMicro(1_700_000_010_000_000)
	lim := limits{window: 10 * time.Second, maxCalls: 3, minSpacing: time.Second}

	tests := []struct {
		name     string
		window   []time.Time
		callSize int
		limits   limits
		want     Verdict
	}{
		{
			name:     "empty window",
			callSize: 1,
			limits:   lim,
			want:     allowedVerdict(),
		},
		{
			name:     "burst equal to max calls on empty window",
			callSize: 3,
			limits:   lim,
			want:     allowedVerdict(),
		},
		{
			name:     "burst bigger than max calls",
			callSize: 4,
			limits:   lim,
			want:     callSizeExceedsMaxVerdict(3),
		},
		{
			name:     "full window",
			window:   []time.Time{now.Add(-8 * time.Second), now.Add(-5 * time.Second), now.Add(-2 * time.Second)},
			callSize: 1,
			limits:   lim,
			want:     tooManyRequestsVerdict(2 * time.Second),
		},
		{
			name:     "burst does not fit",
			window:   []time.Time{now.Add(-7 * time.Second), now.Add(-3 * time.Second)},
			callSize: 2,
			limits:   lim,
			want:     callSizeTooBigForAvailableVerdict(2, 1, 3*time.Second),
		},
		{
			name:     "too close to the previous call",
			window:   []time.Time{now.Add(-500 * time.Millisecond)},
			callSize: 1,
			limits:   lim,
			want:     thrashingVerdict(time.Second),
		},
		{
			name:     "exactly min spacing after the previous call",
			window:   []time.Time{now.Add(-time.Second)},
			callSize: 2,
			limits:   lim,
			want:     allowedVerdict(),
		},
		{
			name:     "zero min spacing",
			window:   []time.Time{now},
			callSize: 1,
			limits:   limits{window: 10 * time.Second, maxCalls: 3},
			want:     allowedVerdict(),
		},
		{
			name:     "full window wins over spacing",
			window:   []time.Time{now.Add(-3 * time.Second), now.Add(-2 * time.Second), now.Add(-time.Millisecond)},
			callSize: 1,
			limits:   lim,
			want:     tooManyRequestsVerdict(7 * time.Second),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, decide(tt.window, now, tt.callSize, tt.limits))
		})
	}
}

func TestVerdict(t *testing.T) {
	v := tooManyRequestsVerdict(2500 * time.Millisecond)
	require.False(t, v.Allowed)
	require.Equal(t, CodeTooManyRequests, v.Code)
	require.Equal(t, "Too many requests", v.Message)
	require.EqualValues(t, 2, v.RetryInSeconds())
	require.EqualValues(t, 2_500_000, v.RetryInMicro())

	v = callSizeExceedsMaxVerdict(5)
	require.Equal(t, CodeCallSizeExceedsMax, v.Code)
	require.Equal(t, "Call size too big. Max calls in rolling window is: 5. "+
		"Increase max calls or decrease call size", v.Message)
	require.Zero(t, v.RetryIn)

	v = callSizeTooBigForAvailableVerdict(3, 1, time.Second)
	require.Equal(t, "Call size too big for available access, trying to make 3 call(s) with only 1 available in window",
		v.Message)

	v = thrashingVerdict(500 * time.Millisecond)
	require.Equal(t, CodeThrashing, v.Code)
	require.EqualValues(t, 0, v.RetryInSeconds())
	require.EqualValues(t, 500_000, v.RetryInMicro())

	require.True(t, allowedVerdict().Allowed)
	require.Equal(t, CodeNone, allowedVerdict().Code)
}

func TestErrorCode_String(t *testing.T) {
	require.Equal(t, "none", CodeNone.String())
	require.Equal(t, "call_size_exceeds_max", CodeCallSizeExceedsMax.String())
	require.Equal(t, "too_many_requests", CodeTooManyRequests.String())
	require.Equal(t, "call_size_too_big_for_available", CodeCallSizeTooBigForAvailable.String())
	require.Equal(t, "thrashing", CodeThrashing.String())
	require.Equal(t, "code_42", ErrorCode(42).String())
}

func TestBurstTimestamps(t *testing.T) {
	now := time.UnixMicro(1_700_000_000_000_000)
	frozen := func() time.Time { return now }

	t.Run("frozen clock", func(t *testing.T) {
		got := burstTimestamps(now, frozen, nil, 3)
		require.Equal(t, []time.Time{now, now.Add(time.Microsecond), now.Add(2 * time.Microsecond)}, got)
	})

	t.Run("newest entry is not older than now", func(t *testing.T) {
		window := []time.Time{now.Add(-time.Second), now.Add(5 * time.Microsecond)}
		got := burstTimestamps(now, frozen, window, 2)
		require.Equal(t, []time.Time{now.Add(6 * time.Microsecond), now.Add(7 * time.Microsecond)}, got)
	})

	t.Run("moving clock", func(t *testing.T) {
		next := now
		clock := func() time.Time {
			next = next.Add(10 * time.Microsecond)
			return next
		}
		got := burstTimestamps(now, clock, []time.Time{now.Add(-time.Second)}, 3)
		require.Equal(t, []time.Time{now, now.Add(10 * time.Microsecond), now.Add(20 * time.Microsecond)}, got)
	})

	t.Run("sub-microsecond precision is truncated", func(t *testing.T) {
		got := burstTimestamps(now.Add(999*time.Nanosecond), frozen, nil, 1)
		require.Equal(t, []time.Time{now}, got)
	})
}
