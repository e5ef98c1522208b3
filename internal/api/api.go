/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package api contains REST API handlers of the rolling limit server.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-rollinglimit/middleware"
	"github.com/acronis/go-rollinglimit/restapi"
	"github.com/acronis/go-rollinglimit/rollinglimit"
)

// ErrCodeInvalidCallSize is returned when the size query parameter is not a number.
const ErrCodeInvalidCallSize = "invalidCallSize"

// VerdictResponseData is the body of the check endpoint response.
type VerdictResponseData struct {
	Allowed        bool   `json:"allowed"`
	Code           int    `json:"code"`
	Reason         string `json:"reason"`
	Message        string `json:"message,omitempty"`
	RetryInSeconds int64  `json:"retryInSeconds"`
	RetryInMicro   int64  `json:"retryInMicro"`
}

type handler struct {
	limiter   middleware.Checker
	errDomain string
}

// Routes returns API routes:
//
//	POST /check/{callerID}?size=N  admits N calls of the caller and responds with the verdict
//	GET  /ping                     responds if the request is admitted by the RollingLimit middleware
func Routes(limiter middleware.Checker, errDomain string) func(router chi.Router) {
	h := &handler{limiter: limiter, errDomain: errDomain}
	return func(router chi.Router) {
		router.Post("/check/{callerID}", h.check)
		router.With(middleware.RollingLimit(limiter, errDomain)).Get("/ping", h.ping)
	}
}

func (h *handler) check(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	params := middleware.RollingLimitParams{ErrDomain: h.errDomain, CallerID: chi.URLParam(r, "callerID"), CallSize: 1}

	if sizeStr := r.URL.Query().Get("size"); sizeStr != "" {
		var err error
		if params.CallSize, err = strconv.Atoi(sizeStr); err != nil {
			apiErr := restapi.NewError(h.errDomain, ErrCodeInvalidCallSize, "Call size should be an integer.").
				AddContext("size", sizeStr)
			restapi.RespondError(rw, http.StatusBadRequest, apiErr, logger)
			return
		}
	}

	verdict, err := h.limiter.Check(r.Context(), params.CallerID, params.CallSize)
	if err != nil {
		middleware.DefaultRollingLimitOnError(rw, r, params, err, nil, logger)
		return
	}
	restapi.RespondJSON(rw, VerdictResponseData{
		Allowed:        verdict.Allowed,
		Code:           int(verdict.Code),
		Reason:         verdict.Code.String(),
		Message:        verdict.Message,
		RetryInSeconds: verdict.RetryInSeconds(),
		RetryInMicro:   verdict.RetryInMicro(),
	}, logger)
}

func (h *handler) ping(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, map[string]string{"status": "ok"}, middleware.GetLoggerFromContext(r.Context()))
}

var _ middleware.Checker = (*rollinglimit.Limiter)(nil)
