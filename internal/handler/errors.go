package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	appI18n "github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/i18n"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

var (
	errUnauthorized = errors.New("unauthorized")
	errBadRequest   = errors.New("malformed request body")
)

// apiError is the body of every error response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// writeError maps err to an HTTP status and a localized error body.
// Unrecognized errors are logged and reported as internal.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status, body := classify(err)

	switch body.Code {
	case "internal":
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Message = appI18n.T(ctx, "ErrInternal")
	case "window_violation":
		var we *exam.WindowError
		if errors.As(err, &we) {
			msgID, at := "ErrWindowClosed", we.EndTime
			if we.Status == model.AvailabilityUpcoming {
				msgID, at = "ErrWindowUpcoming", we.StartTime
			}
			body.Message = appI18n.Td(ctx, msgID, map[string]any{"Time": at.UTC().Format(time.RFC3339)})
		} else {
			body.Message = appI18n.T(ctx, body.Message)
		}
	default:
		body.Message = appI18n.T(ctx, body.Message)
	}

	writeJSON(w, status, map[string]apiError{"error": body})
}

// classify returns the status and an error body whose Message holds the
// translation id.
func classify(err error) (int, apiError) {
	var (
		ve *exam.ValidationError
		we *exam.WindowError
		ip *exam.InProgressError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, apiError{Code: "validation_failed", Message: "ErrValidation", Details: ve.Fields}
	case errors.As(err, &we):
		return http.StatusConflict, apiError{Code: "window_violation", Message: "ErrWindowViolation", Details: map[string]any{
			"status":     we.Status,
			"start_time": we.StartTime,
			"end_time":   we.EndTime,
		}}
	case errors.As(err, &ip):
		return http.StatusConflict, apiError{Code: "attempt_in_progress", Message: "ErrAttemptInProgress", Details: map[string]int64{
			"attempt_id": ip.AttemptID,
		}}
	case errors.Is(err, exam.ErrNotFound):
		return http.StatusNotFound, apiError{Code: "not_found", Message: "ErrNotFound"}
	case errors.Is(err, exam.ErrForbidden):
		return http.StatusForbidden, apiError{Code: "forbidden", Message: "ErrForbidden"}
	case errors.Is(err, exam.ErrWindowViolation):
		return http.StatusConflict, apiError{Code: "window_violation", Message: "ErrWindowViolation"}
	case errors.Is(err, exam.ErrAttemptLimitExceeded):
		return http.StatusConflict, apiError{Code: "attempt_limit_exceeded", Message: "ErrAttemptLimitExceeded"}
	case errors.Is(err, exam.ErrAlreadySubmitted):
		return http.StatusConflict, apiError{Code: "already_submitted", Message: "ErrAlreadySubmitted"}
	case errors.Is(err, exam.ErrInvalidAction):
		return http.StatusBadRequest, apiError{Code: "invalid_action", Message: "ErrInvalidAction"}
	case errors.Is(err, exam.ErrValidation):
		return http.StatusUnprocessableEntity, apiError{Code: "validation_failed", Message: "ErrValidation"}
	case errors.Is(err, exam.ErrAttemptInProgress):
		return http.StatusConflict, apiError{Code: "attempt_in_progress", Message: "ErrAttemptInProgress"}
	case errors.Is(err, exam.ErrUnavailable):
		return http.StatusServiceUnavailable, apiError{Code: "unavailable", Message: "ErrUnavailable"}
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, apiError{Code: "unauthorized", Message: "ErrUnauthorized"}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, apiError{Code: "bad_request", Message: "ErrBadRequest"}
	default:
		return http.StatusInternalServerError, apiError{Code: "internal", Message: "ErrInternal"}
	}
}
