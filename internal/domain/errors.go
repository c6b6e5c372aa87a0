package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidRecurrence   = errors.New("invalid recurrence")
	ErrInvalidAdjustment   = errors.New("invalid adjustment type")
	ErrOccurrenceRecurring = errors.New("an occurrence cannot itself be recurring")
	ErrInvalidSlotDuration = errors.New("slot duration must be positive")
)

// ConflictError is returned when a requested interval overlaps active bookings.
// It is an expected outcome ("slot unavailable"), not a system failure.
type ConflictError struct {
	EquipmentID           int64
	OverlappingBookingIDs []int64
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.OverlappingBookingIDs))
	for i, id := range e.OverlappingBookingIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("equipment %d is not available for the selected time period (overlaps bookings %s)",
		e.EquipmentID, strings.Join(ids, ", "))
}

type InvalidPatternError struct {
	Pattern string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid recurrence pattern: %q", e.Pattern)
}

type InvalidRuleConditionError struct {
	ConditionType string
	Detail        string
}

func (e *InvalidRuleConditionError) Error() string {
	return fmt.Sprintf("invalid %s condition: %s", e.ConditionType, e.Detail)
}

// IsConflict reports whether err carries a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
