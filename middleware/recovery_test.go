/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-rollinglimit/log"
	"github.com/acronis/go-rollinglimit/log/logtest"
	"github.com/acronis/go-rollinglimit/restapi"
)

func TestRecovery(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		panic("window store exploded")
	})
	handler := Recovery(testErrDomain)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(NewContextWithLogger(req.Context(), logRecorder))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	var respData restapi.ErrorResponseData
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &respData))
	require.Equal(t, restapi.NewInternalError(testErrDomain), respData.Err)

	entry, found := logRecorder.FindEntry("Panic: window store exploded")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
	stackField, found := entry.FindField("stack")
	require.True(t, found)
	require.NotEmpty(t, stackField.Bytes)
}

func TestRecovery_AbortHandler(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})
	handler := Recovery(testErrDomain)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(NewContextWithLogger(req.Context(), logRecorder))
	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	})
	_, found := logRecorder.FindEntry("request has been aborted")
	require.True(t, found)
}
