/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rollinglimit

import (
	"errors"
	"fmt"

	"github.com/acronis/go-rollinglimit/distlock"
)

// ErrArgumentInvalid is returned when the limiter is misconfigured or called with invalid arguments.
var ErrArgumentInvalid = errors.New("invalid argument")

// ErrStoreUnavailable is returned when the store is not provided or cannot be reached.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrCallerIDNotSet is returned by CheckAdmission when SetCallerID has not been called.
var ErrCallerIDNotSet = fmt.Errorf("%w: caller id is not set", ErrArgumentInvalid)

// ErrLockExhausted is matched by the error returned when the window lock
// could not be acquired within the configured number of attempts.
// It signals infrastructure overload and should not be treated as a rate limit denial.
var ErrLockExhausted = distlock.ErrLockExhausted
