/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rollinglimit

import "time"

type limits struct {
	window     time.Duration
	maxCalls   int
	minSpacing time.Duration
}

// decide evaluates the checks in order and returns the verdict of the first failed one.
// The window must be already pruned and sorted in ascending order.
func decide(window []time.Time, now time.Time, callSize int, lim limits) Verdict {
	if callSize > lim.maxCalls {
		return callSizeExceedsMaxVerdict(lim.maxCalls)
	}
	count := len(window)
	if count >= lim.maxCalls {
		return tooManyRequestsVerdict(window[0].Add(lim.window).Sub(now))
	}
	if count+callSize > lim.maxCalls {
		return callSizeTooBigForAvailableVerdict(callSize, lim.maxCalls-count, window[0].Add(lim.window).Sub(now))
	}
	if lim.minSpacing > 0 && count > 0 && now.Sub(window[count-1]) < lim.minSpacing {
		return thrashingVerdict(lim.minSpacing)
	}
	return allowedVerdict()
}

// burstTimestamps returns callSize timestamps with microsecond precision that are strictly increasing
// and strictly greater than the newest entry of the window.
// The clock is re-sampled for every entry, and a sample that is not later than the previous one is bumped by 1µs.
func burstTimestamps(first time.Time, clock func() time.Time, window []time.Time, callSize int) []time.Time {
	var prev time.Time
	if len(window) > 0 {
		prev = window[len(window)-1]
	}
	stamps := make([]time.Time, 0, callSize)
	for i := 0; i < callSize; i++ {
		sample := first
		if i > 0 {
			sample = clock()
		}
		ts := time.UnixMicro(sample.UnixMicro())
		if !prev.IsZero() && !ts.After(prev) {
			ts = prev.Add(time.Microsecond)
		}
		stamps = append(stamps, ts)
		prev = ts
	}
	return stamps
}
