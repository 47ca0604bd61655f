package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/forklens/internal/apperror"
)

// One table for the whole error-to-status contract. If this test moves, the
// API contract moved.
func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"validation", apperror.ValidationFailed("repo", "owner is required"), http.StatusBadRequest, "validation_error"},
		{"unauthenticated", apperror.Unauthenticated("sign in first"), http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", apperror.Forbidden("graph belongs to another user"), http.StatusForbidden, "forbidden"},
		{"slot limit", apperror.SlotLimitReached(4), http.StatusForbidden, "slot_limit_reached"},
		{"not found", apperror.NotFound("graph", "abc"), http.StatusNotFound, "not_found"},
		{"conflict", apperror.Conflict("graph", "abc"), http.StatusConflict, "already_saved"},
		{"quota exceeded", apperror.QuotaExceeded(50, 50), http.StatusTooManyRequests, "quota_exceeded"},
		{"upstream", apperror.Upstream("repo not found or API limit reached"), http.StatusBadGateway, "upstream_error"},
		{"plain error", errors.New("sql: database is locked"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

// Wrapped app errors keep their mapping; raw internals never leak.
func TestWriteError_WrappedAndOpaque(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, fmt.Errorf("service/graph: loading snapshot: %w", apperror.NotFound("graph", "abc")))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	writeError(rr, errors.New("pq: connection refused on 10.0.0.5"))

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.NotContains(t, resp.Message, "10.0.0.5", "internal details must not reach the client")
}
