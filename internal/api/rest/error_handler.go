package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/service/analysis"
	"github.com/davidleathers/barangay-insights/internal/service/dashboard"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

const (
	codeSuperseded = "SUPERSEDED"
	codeClosed     = "SESSION_CLOSED"
	codeCanceled   = "REQUEST_CANCELED"
)

// HandleError maps err to a status and envelope. AppErrors carry their own
// status; coordinator sentinels and context errors are mapped here; anything
// else is an opaque 500.
func HandleError(err error) (int, ErrorResponse) {
	if appErr, ok := apperrors.As(err); ok {
		status := appErr.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		resp := ErrorResponse{
			Error:     appErr.Message,
			Code:      appErr.Code,
			Retryable: appErr.Retryable,
		}
		if appErr.Code == apperrors.CodeInvalidRequest || appErr.Code == apperrors.CodeMalformedResponse {
			resp.Details = appErr.Details
		}
		return status, resp
	}

	switch {
	case errors.Is(err, analysis.ErrSuperseded):
		return http.StatusConflict, ErrorResponse{Error: "a newer analysis request replaced this one", Code: codeSuperseded}
	case errors.Is(err, analysis.ErrClosed), errors.Is(err, dashboard.ErrClosed):
		return http.StatusGone, ErrorResponse{Error: "dashboard session was closed", Code: codeClosed}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, ErrorResponse{Error: "request was canceled", Code: codeCanceled, Retryable: true}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "an internal error occurred", Code: apperrors.CodeInternal}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := HandleError(err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
