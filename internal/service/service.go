package service

import (
	"context"
	"iter"
	"time"

	"equipment-booking-backend/internal/domain"
)

// AvailabilityLedger answers conflict and free-slot queries for one equipment's bookings.
type AvailabilityLedger interface {
	HasConflict(ctx context.Context, equipmentID int64, iv domain.Interval, excludeBookingID int64) (bool, error)
	Conflicts(ctx context.Context, equipmentID int64, iv domain.Interval, excludeBookingID int64) ([]domain.Booking, error)
	ConflictsInRange(ctx context.Context, equipmentID int64, window domain.Interval) ([]domain.Booking, error)
	FreeSlots(ctx context.Context, equipmentID int64, window domain.Interval, slot time.Duration, hours BusinessHoursPolicy) (iter.Seq[domain.Interval], error)
	RecomputeAvailabilityStatus(ctx context.Context, equipmentID int64, now time.Time) (domain.AvailabilityStatus, error)
	BookedDuration(ctx context.Context, equipmentID int64, window domain.Interval) (time.Duration, error)
	Utilization(ctx context.Context, equipmentID int64, window domain.Interval) (float64, error)
}

type BookingService interface {
	Create(ctx context.Context, in domain.CreateBookingInput) (*domain.Booking, error)
	Update(ctx context.Context, bookingID int64, in domain.UpdateBookingInput) (*domain.Booking, error)
	Cancel(ctx context.Context, bookingID int64, reason string) (*domain.Booking, error)
	GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)
	ListOccurrences(ctx context.Context, bookingID int64) ([]domain.Booking, error)
	GetAvailableSlots(ctx context.Context, equipmentID int64, window domain.Interval, slot time.Duration) ([]domain.Interval, error)
	GetCalendarEvents(ctx context.Context, equipmentID int64, window domain.Interval) ([]domain.CalendarEvent, error)
	RefreshAvailability(ctx context.Context, equipmentID int64) (domain.AvailabilityStatus, error)
}

type PricingService interface {
	CalculatePrice(ctx context.Context, equipmentID int64, pc domain.PricingContext) (*domain.PriceQuote, error)
	QuoteBooking(ctx context.Context, equipmentID int64, iv domain.Interval, customerSegment string, quantity int) (*domain.PriceQuote, error)
	CreateRule(ctx context.Context, in domain.PricingRuleInput) (*domain.PricingRule, error)
	UpdateRule(ctx context.Context, ruleID int64, in domain.PricingRuleInput) (*domain.PricingRule, error)
	GetRule(ctx context.Context, ruleID int64) (*domain.PricingRule, error)
	ListRules(ctx context.Context, equipmentID int64, activeOnly bool) ([]domain.PricingRule, error)
}

// EventEmitter receives booking events once the mutation has committed. Emit
// must not block on delivery.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.BookingEvent)
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, domain.BookingEvent) {}
