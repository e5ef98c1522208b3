/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rollinglimit

import (
	"fmt"
	"time"
)

// ErrorCode is a machine-readable reason of a denial.
type ErrorCode int

// Denial codes.
const (
	// CodeNone is set in verdicts that allow the call.
	CodeNone ErrorCode = -1

	// CodeCallSizeExceedsMax means that the call size is greater than the maximum number of calls in the window,
	// so the call can never be admitted.
	CodeCallSizeExceedsMax ErrorCode = 0

	// CodeTooManyRequests means that the window is full.
	CodeTooManyRequests ErrorCode = 1

	// CodeCallSizeTooBigForAvailable means that the window has room but not enough for the whole call.
	CodeCallSizeTooBigForAvailable ErrorCode = 2

	// CodeThrashing means that the call is made sooner than the minimum spacing after the previous one.
	CodeThrashing ErrorCode = 3
)

// String returns a short name of the code that is suitable for metric labels and logs.
func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeCallSizeExceedsMax:
		return "call_size_exceeds_max"
	case CodeTooManyRequests:
		return "too_many_requests"
	case CodeCallSizeTooBigForAvailable:
		return "call_size_too_big_for_available"
	case CodeThrashing:
		return "thrashing"
	}
	return fmt.Sprintf("code_%d", int(c))
}

// Verdict is the result of one admission check.
// Code, Message and RetryIn make sense only when Allowed is false.
type Verdict struct {
	Allowed bool
	Code    ErrorCode
	Message string
	RetryIn time.Duration
}

// RetryInSeconds returns RetryIn in whole seconds (truncated).
func (v Verdict) RetryInSeconds() int64 {
	return int64(v.RetryIn / time.Second)
}

// RetryInMicro returns RetryIn in microseconds.
func (v Verdict) RetryInMicro() int64 {
	return v.RetryIn.Microseconds()
}

func allowedVerdict() Verdict {
	return Verdict{Allowed: true, Code: CodeNone}
}

func callSizeExceedsMaxVerdict(maxCalls int) Verdict {
	return Verdict{
		Code: CodeCallSizeExceedsMax,
		Message: fmt.Sprintf("Call size too big. Max calls in rolling window is: %d. "+
			"Increase max calls or decrease call size", maxCalls),
	}
}

func tooManyRequestsVerdict(retryIn time.Duration) Verdict {
	return Verdict{Code: CodeTooManyRequests, Message: "Too many requests", RetryIn: retryIn}
}

func callSizeTooBigForAvailableVerdict(callSize, available int, retryIn time.Duration) Verdict {
	return Verdict{
		Code: CodeCallSizeTooBigForAvailable,
		Message: fmt.Sprintf("Call size too big for available access, "+
			"trying to make %d call(s) with only %d available in window", callSize, available),
		RetryIn: retryIn,
	}
}

func thrashingVerdict(minSpacing time.Duration) Verdict {
	return Verdict{
		Code:    CodeThrashing,
		Message: "Attempting to thrash faster than the minimal distance between calls",
		RetryIn: minSpacing,
	}
}
