/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name          string
		reqRequestID  string
		wantRequestID string
	}{
		{name: "generated", wantRequestID: "generated-id"},
		{name: "from header", reqRequestID: "client-id", wantRequestID: "client-id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRequestID string
			next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				gotRequestID = GetRequestIDFromContext(r.Context())
			})
			handler := &requestIDHandler{next: next, generateID: func() string { return "generated-id" }}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.reqRequestID != "" {
				req.Header.Set(headerRequestID, tt.reqRequestID)
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			require.Equal(t, tt.wantRequestID, gotRequestID)
			require.Equal(t, tt.wantRequestID, resp.Header().Get(headerRequestID))
		})
	}
}

func TestRequestID_GeneratesUniqueIDs(t *testing.T) {
	var ids []string
	handler := RequestID()(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ids = append(ids, GetRequestIDFromContext(r.Context()))
	}))
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	require.Len(t, ids, 2)
	require.NotEmpty(t, ids[0])
	require.NotEqual(t, ids[0], ids[1])
}
