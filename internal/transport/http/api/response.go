package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"nomina/internal/platform/apperror"
)

type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    []apperror.Detail `json:"details,omitempty"`
	RolledBack bool              `json:"rolledBack,omitempty"`
}

type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write json failed", "err", err)
	}
}

func Success(w http.ResponseWriter, data any, requestID string) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, RequestID: requestID})
}

func Created(w http.ResponseWriter, data any, requestID string) {
	WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data, RequestID: requestID})
}

func Fail(w http.ResponseWriter, status int, code, message, requestID string) {
	WriteJSON(w, status, Envelope{Success: false, Error: &Error{Code: code, Message: message}, RequestID: requestID})
}

func FailWithDetails(w http.ResponseWriter, status int, code, message string, details []apperror.Detail, requestID string) {
	WriteJSON(w, status, Envelope{Success: false, Error: &Error{Code: code, Message: message, Details: details}, RequestID: requestID})
}

var kindStatus = map[apperror.Kind]int{
	apperror.KindInvalidInput:           http.StatusBadRequest,
	apperror.KindMissingDependency:      http.StatusUnprocessableEntity,
	apperror.KindUnsupportedPeriodicity: http.StatusUnprocessableEntity,
	apperror.KindValidationFailed:       http.StatusUnprocessableEntity,
	apperror.KindConcurrentModification: http.StatusConflict,
	apperror.KindInvalidStateTransition: http.StatusConflict,
	apperror.KindStaleAdjustmentSet:     http.StatusConflict,
	apperror.KindNotFound:               http.StatusNotFound,
	apperror.KindTimeout:                http.StatusGatewayTimeout,
	apperror.KindCommitFailed:           http.StatusServiceUnavailable,
	apperror.KindCriticalInconsistency:  http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status; unknown kinds are 500.
func StatusFor(kind apperror.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FailError writes err in the envelope. Structured errors keep their kind
// as code and their details; anything else is reported as internal.
func FailError(w http.ResponseWriter, r *http.Request, err error, requestID string) {
	appErr, ok := apperror.As(err)
	if !ok {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
		return
	}
	status := StatusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "kind", appErr.Kind, "err", err)
	}
	WriteJSON(w, status, Envelope{
		Success: false,
		Error: &Error{
			Code:       string(appErr.Kind),
			Message:    appErr.Message,
			Details:    appErr.Details,
			RolledBack: appErr.RolledBack,
		},
		RequestID: requestID,
	})
}
