/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package middleware contains net/http middlewares for services protected by a rolling-window rate limiter.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/acronis/go-rollinglimit/log"
	"github.com/acronis/go-rollinglimit/restapi"
	"github.com/acronis/go-rollinglimit/rollinglimit"
)

// DefaultCallerIDHeader is an HTTP header that is used for getting caller id by default.
const DefaultCallerIDHeader = "X-Caller-ID"

// RollingLimitLogFieldKey is the name of the logged field that contains the caller id.
const RollingLimitLogFieldKey = "rolling_limit_caller_id"

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
	headerRetryAfter   = "Retry-After"
)

// Checker makes admission decisions. It is implemented by *rollinglimit.Limiter.
type Checker interface {
	Check(ctx context.Context, callerID string, callSize int) (rollinglimit.Verdict, error)
}

// RollingLimitParams contains data that relates to the admission check
// and could be used for rejecting or handling an occurred error.
type RollingLimitParams struct {
	ErrDomain string
	CallerID  string
	CallSize  int
	Verdict   rollinglimit.Verdict
}

// RollingLimitGetCallerIDFunc is a function that is called for getting caller id of the request.
// If bypass is true, the request is served without the admission check.
type RollingLimitGetCallerIDFunc func(r *http.Request) (callerID string, bypass bool, err error)

// RollingLimitGetCallSizeFunc is a function that is called for getting the number of calls the request costs.
type RollingLimitGetCallSizeFunc func(r *http.Request) (int, error)

// RollingLimitOnRejectFunc is a function that is called for rejecting HTTP request when the limit is exceeded.
type RollingLimitOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params RollingLimitParams, next http.Handler, logger log.FieldLogger)

// RollingLimitOnErrorFunc is a function that is called when the admission check cannot be done.
type RollingLimitOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params RollingLimitParams, err error, next http.Handler, logger log.FieldLogger)

// RollingLimitOpts represents an options for the RollingLimit middleware.
type RollingLimitOpts struct {
	GetCallerID RollingLimitGetCallerIDFunc
	GetCallSize RollingLimitGetCallSizeFunc
	OnReject    RollingLimitOnRejectFunc
	OnError     RollingLimitOnErrorFunc
}

type rollingLimitHandler struct {
	next        http.Handler
	limiter     Checker
	errDomain   string
	getCallerID RollingLimitGetCallerIDFunc
	getCallSize RollingLimitGetCallSizeFunc
	onReject    RollingLimitOnRejectFunc
	onError     RollingLimitOnErrorFunc
}

// RollingLimit is a middleware that admits HTTP requests through the rolling-window rate limiter.
// Caller id is taken from the X-Caller-ID header or, if it is empty, from the client IP address.
// Every request costs one call.
func RollingLimit(limiter Checker, errDomain string) func(next http.Handler) http.Handler {
	return RollingLimitWithOpts(limiter, errDomain, RollingLimitOpts{})
}

// RollingLimitWithOpts is a configurable version of RollingLimit middleware.
func RollingLimitWithOpts(limiter Checker, errDomain string, opts RollingLimitOpts) func(next http.Handler) http.Handler {
	h := rollingLimitHandler{
		limiter:     limiter,
		errDomain:   errDomain,
		getCallerID: opts.GetCallerID,
		getCallSize: opts.GetCallSize,
		onReject:    opts.OnReject,
		onError:     opts.OnError,
	}
	if h.getCallerID == nil {
		h.getCallerID = GetCallerIDFromHeaderOrIP
	}
	if h.getCallSize == nil {
		h.getCallSize = func(*http.Request) (int, error) { return 1, nil }
	}
	if h.onReject == nil {
		h.onReject = DefaultRollingLimitOnReject
	}
	if h.onError == nil {
		h.onError = DefaultRollingLimitOnError
	}
	return func(next http.Handler) http.Handler {
		handler := h
		handler.next = next
		return &handler
	}
}

func (h *rollingLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromContext(r.Context())
	params := RollingLimitParams{ErrDomain: h.errDomain}

	callerID, bypass, err := h.getCallerID(r)
	if err != nil {
		h.onError(rw, r, params, fmt.Errorf("get caller id: %w", err), h.next, logger)
		return
	}
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}
	params.CallerID = callerID

	if params.CallSize, err = h.getCallSize(r); err != nil {
		h.onError(rw, r, params, fmt.Errorf("get call size: %w", err), h.next, logger)
		return
	}

	if params.Verdict, err = h.limiter.Check(r.Context(), params.CallerID, params.CallSize); err != nil {
		h.onError(rw, r, params, err, h.next, logger)
		return
	}
	if !params.Verdict.Allowed {
		h.onReject(rw, r, params, h.next, logger)
		return
	}
	h.next.ServeHTTP(rw, r)
}

// GetCallerIDFromHeaderOrIP returns the value of the X-Caller-ID header or, if it is empty, the client IP address.
func GetCallerIDFromHeaderOrIP(r *http.Request) (callerID string, bypass bool, err error) {
	if callerID = strings.TrimSpace(r.Header.Get(DefaultCallerIDHeader)); callerID != "" {
		return callerID, false, nil
	}
	if callerID = getClientIP(r); callerID == "" {
		return "", false, errors.New("client address is unknown")
	}
	return callerID, false, nil
}

// DefaultRollingLimitOnReject responds with 429 HTTP status code, Retry-After header (in whole seconds, rounded up)
// and the verdict details in body in JSON format.
func DefaultRollingLimitOnReject(
	rw http.ResponseWriter, r *http.Request, params RollingLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(log.String(RollingLimitLogFieldKey, params.CallerID))
	}
	if params.Verdict.RetryIn > 0 {
		rw.Header().Set(headerRetryAfter, strconv.Itoa(int(math.Ceil(params.Verdict.RetryIn.Seconds()))))
	}
	apiErr := restapi.NewError(params.ErrDomain, restapi.ErrCodeTooManyRequests, params.Verdict.Message).
		AddContext("limitCode", int(params.Verdict.Code)).
		AddContext("retryInMicro", params.Verdict.RetryInMicro())
	restapi.RespondError(rw, http.StatusTooManyRequests, apiErr, logger)
}

// DefaultRollingLimitOnError responds with 503 HTTP status code when the window lock is exhausted or the store
// is unavailable, 400 for invalid arguments (e.g. a call size the caller cannot use) and 500 otherwise.
func DefaultRollingLimitOnError(
	rw http.ResponseWriter, r *http.Request, params RollingLimitParams, err error, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error("rolling limit check failed", log.Error(err), log.String(RollingLimitLogFieldKey, params.CallerID))
	}
	switch {
	case errors.Is(err, rollinglimit.ErrLockExhausted), errors.Is(err, rollinglimit.ErrStoreUnavailable):
		restapi.RespondError(rw, http.StatusServiceUnavailable,
			restapi.NewError(params.ErrDomain, restapi.ErrCodeServiceUnavailable, restapi.ErrMessageServiceUnavailable), logger)
	case errors.Is(err, rollinglimit.ErrArgumentInvalid):
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(params.ErrDomain, restapi.ErrCodeBadRequest, err.Error()), logger)
	default:
		restapi.RespondInternalError(rw, params.ErrDomain, logger)
	}
}

func getClientIP(r *http.Request) string {
	if forwardFor := r.Header.Get(headerForwardedFor); forwardFor != "" {
		if first := strings.IndexByte(forwardFor, ','); first != -1 {
			forwardFor = forwardFor[:first]
		}
		return strings.TrimSpace(forwardFor)
	}
	if realIP := r.Header.Get(headerRealIP); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
