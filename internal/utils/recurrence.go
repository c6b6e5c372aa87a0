package utils

import (
	"iter"
	"time"

	"equipment-booking-backend/internal/domain"
)

// step advances t by one period of pattern. Monthly uses AddDate, so a start on
// the 31st overflows into the following month the same way time.Date normalizes.
func step(t time.Time, pattern domain.RecurrencePattern) time.Time {
	switch pattern {
	case domain.RecurrenceDaily:
		return t.AddDate(0, 0, 1)
	case domain.RecurrenceWeekly:
		return t.AddDate(0, 0, 7)
	case domain.RecurrenceBiweekly:
		return t.AddDate(0, 0, 14)
	case domain.RecurrenceMonthly:
		return t.AddDate(0, 1, 0)
	}
	return t
}

// ValidatePattern fails with InvalidPatternError for anything but daily, weekly, biweekly or monthly.
func ValidatePattern(pattern domain.RecurrencePattern) error {
	switch pattern {
	case domain.RecurrenceDaily, domain.RecurrenceWeekly, domain.RecurrenceBiweekly, domain.RecurrenceMonthly:
		return nil
	}
	return &domain.InvalidPatternError{Pattern: string(pattern)}
}

// ExpandRecurrence yields start, then start advanced by pattern, and so on for as
// long as the instant is not after endBound. The sequence is finite and can be
// ranged over any number of times with the same result.
//
// The first value is always start itself; callers generating occurrences must skip it.
func ExpandRecurrence(start time.Time, pattern domain.RecurrencePattern, endBound time.Time) (iter.Seq[time.Time], error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	return func(yield func(time.Time) bool) {
		for current := start; !current.After(endBound); current = step(current, pattern) {
			if !yield(current) {
				return
			}
		}
	}, nil
}

// OccurrenceStarts returns the generated occurrence start instants, i.e. the
// expansion without its first element.
func OccurrenceStarts(start time.Time, pattern domain.RecurrencePattern, endBound time.Time) ([]time.Time, error) {
	seq, err := ExpandRecurrence(start, pattern, endBound)
	if err != nil {
		return nil, err
	}
	var starts []time.Time
	first := true
	for t := range seq {
		if first {
			first = false
			continue
		}
		starts = append(starts, t)
	}
	return starts, nil
}
