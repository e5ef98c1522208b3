/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rollinglimit/log/logtest"
	"github.com/acronis/go-rollinglimit/middleware"
	"github.com/acronis/go-rollinglimit/restapi"
)

func TestHealthCheckHandler_ServeHTTP(t *testing.T) {
	makeRequest := func(ctx context.Context) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(ctx)
		return req.WithContext(middleware.NewContextWithLogger(req.Context(), logtest.NewRecorder()))
	}

	t.Run("health-check returns error", func(t *testing.T) {
		h := NewHealthCheckHandler(func(context.Context) (HealthCheckResult, error) {
			return nil, errors.New("internal error")
		})
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest(context.Background()))
		require.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("client closed request", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp := httptest.NewRecorder()
		NewHealthCheckHandler(nil).ServeHTTP(resp, makeRequest(ctx))
		require.Equal(t, StatusClientClosedRequest, resp.Code)
	})

	t.Run("no components", func(t *testing.T) {
		resp := httptest.NewRecorder()
		NewHealthCheckHandler(nil).ServeHTTP(resp, makeRequest(context.Background()))
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, restapi.ContentTypeAppJSON, resp.Header().Get("Content-Type"))
	})

	t.Run("unhealthy component", func(t *testing.T) {
		h := NewHealthCheckHandler(func(context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{"redis": HealthCheckStatusFail, "config": HealthCheckStatusOK}, nil
		})
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest(context.Background()))

		require.Equal(t, http.StatusServiceUnavailable, resp.Code)
		var gotRespData healthCheckResponseData
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&gotRespData))
		require.Equal(t, healthCheckResponseData{Components: map[string]bool{"redis": false, "config": true}}, gotRespData)
	})
}

func TestPingHealthCheck(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	hc := PingHealthCheck(logRecorder, map[string]func(ctx context.Context) error{
		"redis":  func(context.Context) error { return errors.New("connection refused") },
		"window": func(context.Context) error { return nil },
	})

	res, err := hc(context.Background())
	require.NoError(t, err)
	require.Equal(t, HealthCheckResult{"redis": HealthCheckStatusFail, "window": HealthCheckStatusOK}, res)
	entry, found := logRecorder.FindEntry("health-check ping failed")
	require.True(t, found)
	componentField, found := entry.FindField("component")
	require.True(t, found)
	require.Equal(t, "redis", string(componentField.Bytes))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = hc(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
