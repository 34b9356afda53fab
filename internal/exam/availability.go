package exam

import (
	"time"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// Availability classifies whether a student may start exam e at now, given the
// number of attempts (submitted or not) they already have. Listing and
// enforcement both go through this function.
func Availability(now time.Time, e model.Exam, attemptsUsed int) model.Availability {
	switch {
	case now.Before(e.StartTime):
		return model.AvailabilityUpcoming
	case now.After(e.EndTime):
		return model.AvailabilityClosed
	case attemptsUsed >= e.MaxAttempts:
		return model.AvailabilityMaxAttempts
	default:
		return model.AvailabilityAvailable
	}
}

// availabilityErr maps a non-available status to its taxonomy error.
func availabilityErr(status model.Availability, e model.Exam) error {
	switch status {
	case model.AvailabilityUpcoming, model.AvailabilityClosed:
		return &WindowError{Status: status, StartTime: e.StartTime, EndTime: e.EndTime}
	case model.AvailabilityMaxAttempts:
		return ErrAttemptLimitExceeded
	default:
		return nil
	}
}
