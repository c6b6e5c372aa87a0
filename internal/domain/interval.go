package domain

import (
	"errors"
	"time"
)

var ErrInvalidInterval = errors.New("interval start must be before end")

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval returns the interval [start, end) or ErrInvalidInterval when start is not before end.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start, End: end}, nil
}

// Valid reports whether Start < End.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Overlaps is the single overlap predicate shared by the ledger and the scheduler.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// ContainsInstant reports whether t falls in [Start, End).
func (i Interval) ContainsInstant(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Intersect returns the overlapping part of two intervals, if any.
func (i Interval) Intersect(other Interval) (Interval, bool) {
	if !i.Overlaps(other) {
		return Interval{}, false
	}
	start := i.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := i.End
	if other.End.Before(end) {
		end = other.End
	}
	return Interval{Start: start, End: end}, true
}

// Shift returns an interval of the same length starting at start.
func (i Interval) Shift(start time.Time) Interval {
	return Interval{Start: start, End: start.Add(i.Duration())}
}
