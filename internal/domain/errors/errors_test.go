package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		sentinel  error
		status    int
		retryable bool
	}{
		{"transient fetch", NewTransientFetchError("upstream 503"), ErrTransientFetch, http.StatusBadGateway, true},
		{"retry exhausted", NewRetryExhaustedError(3, errors.New("boom")), ErrRetryExhausted, http.StatusServiceUnavailable, false},
		{"malformed", NewMalformedResponseError(ReasonNoJSON, "no json"), ErrMalformedResponse, http.StatusBadGateway, false},
		{"analysis failed", NewAnalysisFailedError("model down"), ErrAnalysisFailed, http.StatusBadGateway, false},
		{"invalid request", NewInvalidRequestError("metric is required"), ErrInvalidRequest, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("ctx: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.status, GetStatusCode(wrapped))
			assert.Equal(t, tt.retryable, IsRetryable(wrapped))
		})
	}
}

func TestRetryExhaustedKeepsCause(t *testing.T) {
	last := NewTransientFetchError("connection reset")
	err := NewRetryExhaustedError(3, last)

	assert.ErrorIs(t, err, ErrTransientFetch)
	assert.Equal(t, 3, err.Details["attempts"])
	assert.Contains(t, err.Error(), "connection reset")
}

func TestReason(t *testing.T) {
	err := NewIncompleteFieldsError([]string{"recommendations"})

	assert.Equal(t, ReasonIncompleteFields, Reason(err))
	assert.Equal(t, ReasonNoJSON, Reason(NewMalformedResponseError(ReasonNoJSON, "x")))
	assert.Empty(t, Reason(NewAnalysisFailedError("x")))
	assert.Empty(t, Reason(errors.New("plain")))
	assert.Contains(t, err.Error(), "recommendations")
}

func TestAs(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)

	appErr, ok := As(fmt.Errorf("parse: %w", NewInvalidRequestError("bad year")))
	require.True(t, ok)
	assert.Equal(t, CodeInvalidRequest, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, GetStatusCode(errors.New("plain")))
}
