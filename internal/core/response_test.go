package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarmrelay/internal/types"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusCreated, map[string]int{"n": 1})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]any{"ch": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
}

func TestError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
		wantMsg    string
	}{
		{
			name:       "app error",
			err:        types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed SNS message body", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrCodeValidationInvalidJSON,
			wantMsg:    "malformed SNS message body",
		},
		{
			name:       "wrapped app error",
			err:        fmt.Errorf("handler: %w", types.NewAppError(types.ErrCodeUpstreamConfirmationRejected, "rejected", nil)),
			wantStatus: http.StatusBadGateway,
			wantCode:   types.ErrCodeUpstreamConfirmationRejected,
			wantMsg:    "rejected",
		},
		{
			name:       "generic error is not leaked",
			err:        errors.New("dial tcp 10.0.0.1:443: secret detail"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.ErrCodeInternalUnexpected,
			wantMsg:    "an unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/notify", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-42"))
			rec := httptest.NewRecorder()

			Error(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp APIErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
			assert.Equal(t, "req-42", resp.Error.RequestID)
			assert.NotContains(t, rec.Body.String(), "secret detail")
		})
	}
}

func TestError_Details(t *testing.T) {
	rec := httptest.NewRecorder()
	err := types.NewAppErrorWithDetails(types.ErrCodeValidationUnknownMessageType, "bad type", nil,
		map[string]any{"value": "Foo"})

	Error(rec, httptest.NewRequest(http.MethodPost, "/notify", nil), err)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Foo", resp.Error.Details["value"])
}
