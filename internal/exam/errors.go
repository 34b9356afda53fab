package exam

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrWindowViolation      = errors.New("exam is outside its availability window")
	ErrAttemptLimitExceeded = errors.New("maximum number of attempts reached")
	ErrAlreadySubmitted     = errors.New("attempt already submitted")
	ErrInvalidAction        = errors.New("invalid action")
	ErrValidation           = errors.New("validation failed")
	ErrAttemptInProgress    = errors.New("an attempt is already in progress")
	ErrUnavailable          = errors.New("feature unavailable")
)

// ValidationError lists the offending fields of a rejected payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// invalid builds a single-field ValidationError.
func invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// validationFailed converts ozzo-validation errors into a ValidationError.
// Internal validation errors pass through unchanged.
func validationFailed(err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}
	fields := make(map[string]string)
	flatten("", err, fields)
	return &ValidationError{Fields: fields}
}

func flatten(prefix string, err error, out map[string]string) {
	var errs validation.Errors
	if errors.As(err, &errs) {
		for k, e := range errs {
			if e == nil {
				continue
			}
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, e, out)
		}
		return
	}
	if prefix == "" {
		prefix = "payload"
	}
	out[prefix] = err.Error()
}

// WindowError reports a start attempted outside [StartTime, EndTime].
type WindowError struct {
	Status    model.Availability
	StartTime time.Time
	EndTime   time.Time
}

func (e *WindowError) Error() string {
	if e.Status == model.AvailabilityUpcoming {
		return fmt.Sprintf("exam opens at %s", e.StartTime.Format(time.RFC3339))
	}
	return fmt.Sprintf("exam closed at %s", e.EndTime.Format(time.RFC3339))
}

func (e *WindowError) Unwrap() error { return ErrWindowViolation }

// InProgressError carries the id of the attempt that blocks a new start.
type InProgressError struct {
	AttemptID int64
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("attempt %d is still in progress", e.AttemptID)
}

func (e *InProgressError) Unwrap() error { return ErrAttemptInProgress }
