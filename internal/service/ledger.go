package service

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/repository"
)

// BusinessHoursPolicy decides whether a candidate slot may be offered.
type BusinessHoursPolicy interface {
	Allows(slot domain.Interval) bool
}

// WeeklyHours allows slots whose start falls on one of Weekdays between
// OpenHour (inclusive) and CloseHour (exclusive), read in Location.
type WeeklyHours struct {
	Location  *time.Location
	OpenHour  int
	CloseHour int
	Weekdays  []time.Weekday
}

// DefaultBusinessHours is Monday to Friday, 09:00 to 17:00 in loc.
func DefaultBusinessHours(loc *time.Location) WeeklyHours {
	if loc == nil {
		loc = time.Local
	}
	return WeeklyHours{
		Location:  loc,
		OpenHour:  9,
		CloseHour: 17,
		Weekdays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

func (h WeeklyHours) Allows(slot domain.Interval) bool {
	loc := h.Location
	if loc == nil {
		loc = time.Local
	}
	local := slot.Start.In(loc)
	if !slices.Contains(h.Weekdays, local.Weekday()) {
		return false
	}
	return local.Hour() >= h.OpenHour && local.Hour() < h.CloseHour
}

// AnyTime allows every slot.
type AnyTime struct{}

func (AnyTime) Allows(domain.Interval) bool { return true }

type availabilityLedger struct {
	bookingRepo   repository.BookingRepository
	equipmentRepo repository.EquipmentRepository
}

// NewAvailabilityLedger binds a ledger to the given repositories. Inside a
// transaction pass the transactional repositories so reads see uncommitted writes.
func NewAvailabilityLedger(bookingRepo repository.BookingRepository, equipmentRepo repository.EquipmentRepository) AvailabilityLedger {
	return &availabilityLedger{
		bookingRepo:   bookingRepo,
		equipmentRepo: equipmentRepo,
	}
}

func (l *availabilityLedger) HasConflict(ctx context.Context, equipmentID int64, iv domain.Interval, excludeBookingID int64) (bool, error) {
	conflicts, err := l.Conflicts(ctx, equipmentID, iv, excludeBookingID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// Conflicts returns the active bookings overlapping iv, ignoring excludeBookingID (0 ignores nothing).
func (l *availabilityLedger) Conflicts(ctx context.Context, equipmentID int64, iv domain.Interval, excludeBookingID int64) ([]domain.Booking, error) {
	if !iv.Valid() {
		return nil, domain.ErrInvalidInterval
	}
	candidates, err := l.bookingRepo.ListActiveInRange(ctx, equipmentID, iv, excludeBookingID)
	if err != nil {
		return nil, fmt.Errorf("list bookings for equipment %d: %w", equipmentID, err)
	}
	return overlapping(candidates, iv, excludeBookingID), nil
}

func (l *availabilityLedger) ConflictsInRange(ctx context.Context, equipmentID int64, window domain.Interval) ([]domain.Booking, error) {
	return l.Conflicts(ctx, equipmentID, window, 0)
}

// FreeSlots walks window in slot steps. Every slot starting inside window is a
// candidate; it is emitted when hours allows it and it overlaps no active booking.
func (l *availabilityLedger) FreeSlots(ctx context.Context, equipmentID int64, window domain.Interval, slot time.Duration, hours BusinessHoursPolicy) (iter.Seq[domain.Interval], error) {
	if slot <= 0 {
		return nil, domain.ErrInvalidSlotDuration
	}
	if hours == nil {
		hours = AnyTime{}
	}
	// Slots may run past window.End, so look for bookings up to the last slot's end.
	span := domain.Interval{Start: window.Start, End: window.End.Add(slot)}
	booked, err := l.Conflicts(ctx, equipmentID, span, 0)
	if err != nil {
		return nil, err
	}
	return freeSlots(window, slot, hours, booked), nil
}

func freeSlots(window domain.Interval, slot time.Duration, hours BusinessHoursPolicy, booked []domain.Booking) iter.Seq[domain.Interval] {
	return func(yield func(domain.Interval) bool) {
		for cur := window.Start; cur.Before(window.End); cur = cur.Add(slot) {
			candidate := domain.Interval{Start: cur, End: cur.Add(slot)}
			if !hours.Allows(candidate) {
				continue
			}
			if slices.ContainsFunc(booked, func(b domain.Booking) bool {
				return b.Interval().Overlaps(candidate)
			}) {
				continue
			}
			if !yield(candidate) {
				return
			}
		}
	}
}

func (l *availabilityLedger) RecomputeAvailabilityStatus(ctx context.Context, equipmentID int64, now time.Time) (domain.AvailabilityStatus, error) {
	bookings, err := l.bookingRepo.ListActive(ctx, equipmentID, now)
	if err != nil {
		return "", fmt.Errorf("list active bookings for equipment %d: %w", equipmentID, err)
	}
	status := AvailabilityFor(bookings, now)
	if err := l.equipmentRepo.UpdateAvailability(ctx, equipmentID, status); err != nil {
		return "", fmt.Errorf("update availability of equipment %d: %w", equipmentID, err)
	}
	logger.Debug("Availability recomputed", "equipment_id", equipmentID, "status", status)
	return status, nil
}

// AvailabilityFor derives the availability status from the equipment's bookings:
// booked iff some non-cancelled booking ends after now or is in progress.
func AvailabilityFor(bookings []domain.Booking, now time.Time) domain.AvailabilityStatus {
	for i := range bookings {
		b := &bookings[i]
		if !b.Active() {
			continue
		}
		if b.EndDate.After(now) || b.Status == domain.BookingStatusInProgress {
			return domain.AvailabilityBooked
		}
	}
	return domain.AvailabilityAvailable
}

// BookedDuration is the part of window covered by at least one active booking.
func (l *availabilityLedger) BookedDuration(ctx context.Context, equipmentID int64, window domain.Interval) (time.Duration, error) {
	bookings, err := l.ConflictsInRange(ctx, equipmentID, window)
	if err != nil {
		return 0, err
	}
	return coveredDuration(bookings, window), nil
}

// Utilization is BookedDuration as a percentage of window.
func (l *availabilityLedger) Utilization(ctx context.Context, equipmentID int64, window domain.Interval) (float64, error) {
	booked, err := l.BookedDuration(ctx, equipmentID, window)
	if err != nil {
		return 0, err
	}
	return utilizationPercent(booked, window), nil
}

func utilizationPercent(booked time.Duration, window domain.Interval) float64 {
	total := window.Duration()
	if total <= 0 {
		return 0
	}
	return float64(booked) / float64(total) * 100
}

// coveredDuration merges the booking intervals clipped to window and sums the union.
func coveredDuration(bookings []domain.Booking, window domain.Interval) time.Duration {
	clipped := make([]domain.Interval, 0, len(bookings))
	for i := range bookings {
		if !bookings[i].Active() {
			continue
		}
		if iv, ok := bookings[i].Interval().Intersect(window); ok {
			clipped = append(clipped, iv)
		}
	}
	slices.SortFunc(clipped, func(a, b domain.Interval) int { return a.Start.Compare(b.Start) })

	var total time.Duration
	var cur domain.Interval
	for i, iv := range clipped {
		if i == 0 {
			cur = iv
			continue
		}
		if !iv.Start.After(cur.End) {
			if iv.End.After(cur.End) {
				cur.End = iv.End
			}
			continue
		}
		total += cur.Duration()
		cur = iv
	}
	if len(clipped) > 0 {
		total += cur.Duration()
	}
	return total
}

func overlapping(bookings []domain.Booking, iv domain.Interval, excludeBookingID int64) []domain.Booking {
	out := make([]domain.Booking, 0, len(bookings))
	for _, b := range bookings {
		if !b.Active() || (excludeBookingID != 0 && b.ID == excludeBookingID) {
			continue
		}
		if b.Interval().Overlaps(iv) {
			out = append(out, b)
		}
	}
	return out
}

func bookingIDs(bookings []domain.Booking) []int64 {
	ids := make([]int64, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	return ids
}
