package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingEventType string

const (
	BookingCreated   BookingEventType = "booking.created"
	BookingUpdated   BookingEventType = "booking.updated"
	BookingCancelled BookingEventType = "booking.cancelled"
)

// BookingEvent is emitted after a booking mutation commits. Booking is the full
// post-commit record.
type BookingEvent struct {
	ID         uuid.UUID        `json:"id"`
	Type       BookingEventType `json:"type"`
	Booking    Booking          `json:"booking"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func NewBookingEvent(t BookingEventType, b *Booking, at time.Time) BookingEvent {
	return BookingEvent{
		ID:         uuid.New(),
		Type:       t,
		Booking:    *b,
		OccurredAt: at,
	}
}
