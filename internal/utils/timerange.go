package utils

import (
	"errors"
	"time"
)

var ErrInvalidTimeRange = errors.New("invalid time range")

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"from"`
	End   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// NormalizeTimeRange prepares a reporting window:
//   - zero bounds default to the window of lastDays days ending at now;
//   - swapped bounds are swapped back;
//   - both bounds are moved to loc when it is non-nil;
//   - a window longer than maxDuration is cut to start+maxDuration.
//
// maxDuration <= 0 disables the cap.
func NormalizeTimeRange(
	start, end, now time.Time,
	lastDays int,
	loc *time.Location,
	maxDuration time.Duration,
) (TimeRange, error) {
	if end.IsZero() {
		end = now
	}
	if start.IsZero() {
		if lastDays <= 0 {
			return TimeRange{}, ErrInvalidTimeRange
		}
		start = end.AddDate(0, 0, -lastDays)
	}

	if end.Before(start) {
		start, end = end, start
	}

	if loc != nil {
		start = start.In(loc)
		end = end.In(loc)
	}

	if maxDuration > 0 && end.Sub(start) > maxDuration {
		end = start.Add(maxDuration)
	}

	if !end.After(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}

	return TimeRange{Start: start, End: end}, nil
}
