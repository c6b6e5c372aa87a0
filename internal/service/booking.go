package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/metrics"
	"equipment-booking-backend/internal/repository"
	"equipment-booking-backend/internal/utils"
)

var statusColors = map[domain.BookingStatus]string{
	domain.BookingStatusPending:    "#FFA500",
	domain.BookingStatusConfirmed:  "#4CAF50",
	domain.BookingStatusInProgress: "#2196F3",
	domain.BookingStatusCompleted:  "#9C27B0",
	domain.BookingStatusCancelled:  "#F44336",
}

const defaultStatusColor = "#9E9E9E"

// StatusColor maps a booking status to its calendar colour; unknown statuses are grey.
func StatusColor(status domain.BookingStatus) string {
	if c, ok := statusColors[status]; ok {
		return c
	}
	return defaultStatusColor
}

type bookingService struct {
	tx      repository.Transactor
	repos   repository.Repos
	clock   domain.Clock
	emitter EventEmitter
	hours   BusinessHoursPolicy
	metrics *metrics.Metrics
}

func NewBookingService(
	tx repository.Transactor,
	repos repository.Repos,
	clock domain.Clock,
	emitter EventEmitter,
	hours BusinessHoursPolicy,
	m *metrics.Metrics,
) BookingService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if hours == nil {
		hours = DefaultBusinessHours(time.Local)
	}
	return &bookingService{
		tx:      tx,
		repos:   repos,
		clock:   clock,
		emitter: emitter,
		hours:   hours,
		metrics: m,
	}
}

func (s *bookingService) Create(ctx context.Context, in domain.CreateBookingInput) (booking *domain.Booking, err error) {
	const method = "bookingService.Create"
	logger.EnterMethod(method, "equipmentID", in.EquipmentID, "customerID", in.CustomerID)
	done := s.metrics.Track("create")
	defer func() { done(err) }()

	if err := validateInput(in); err != nil {
		logger.ExitMethodWithError(method, err)
		return nil, err
	}
	iv, err := domain.NewInterval(in.StartDate, in.EndDate)
	if err != nil {
		logger.ExitMethodWithError(method, err)
		return nil, err
	}

	var starts []time.Time
	if in.IsRecurring {
		starts, err = occurrenceStarts(iv.Start, in.RecurrencePattern, in.RecurrenceEndDate)
		if err != nil {
			logger.ExitMethodWithError(method, err)
			return nil, err
		}
	}

	now := s.clock.Now()
	b := &domain.Booking{
		EquipmentID:   in.EquipmentID,
		CustomerID:    in.CustomerID,
		StartDate:     iv.Start,
		EndDate:       iv.End,
		Status:        in.Status,
		TotalAmount:   in.TotalAmount,
		DepositAmount: in.DepositAmount,
		Notes:         in.Notes,
		TermsAccepted: in.TermsAccepted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if b.Status == "" {
		b.Status = domain.BookingStatusPending
	}
	if in.IsRecurring {
		b.IsRecurring = true
		b.RecurrencePattern = in.RecurrencePattern
		end := *in.RecurrenceEndDate
		b.RecurrenceEndDate = &end
	}

	var generated int
	err = s.tx.WithinEquipment(ctx, in.EquipmentID, func(ctx context.Context, repos repository.Repos) error {
		if _, err := repos.Equipment.GetByID(ctx, in.EquipmentID); err != nil {
			return fmt.Errorf("equipment %d: %w", in.EquipmentID, err)
		}
		ledger := NewAvailabilityLedger(repos.Bookings, repos.Equipment)

		if err := checkConflicts(ctx, ledger, in.EquipmentID, iv, 0, nil); err != nil {
			return err
		}
		if err := repos.Bookings.Create(ctx, b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}

		n, err := createOccurrences(ctx, repos, ledger, b, starts, now)
		if err != nil {
			return err
		}
		generated = n

		_, err = ledger.RecomputeAvailabilityStatus(ctx, in.EquipmentID, now)
		return err
	})
	if err != nil {
		s.logFailure(method, "create", in.EquipmentID, err)
		return nil, err
	}

	s.metrics.IncBookingCreated(string(b.Status))
	s.metrics.AddOccurrences(generated)
	s.emitter.Emit(ctx, domain.NewBookingEvent(domain.BookingCreated, b, s.clock.Now()))

	logger.ExitMethod(method, "bookingID", b.ID, "occurrences", generated)
	return b, nil
}

func (s *bookingService) Update(ctx context.Context, bookingID int64, in domain.UpdateBookingInput) (booking *domain.Booking, err error) {
	const method = "bookingService.Update"
	logger.EnterMethod(method, "bookingID", bookingID)
	done := s.metrics.Track("update")
	defer func() { done(err) }()

	if err := validateInput(in); err != nil {
		logger.ExitMethodWithError(method, err, "bookingID", bookingID)
		return nil, err
	}
	current, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError(method, err, "bookingID", bookingID)
		return nil, err
	}

	now := s.clock.Now()
	var updated *domain.Booking
	var generated int
	err = s.tx.WithinEquipment(ctx, current.EquipmentID, func(ctx context.Context, repos repository.Repos) error {
		b, err := repos.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.IsOccurrence() && in.TouchesRecurrence() {
			return domain.ErrOccurrenceRecurring
		}
		ledger := NewAvailabilityLedger(repos.Bookings, repos.Equipment)

		regenerate, err := applyRecurrenceChange(b, in)
		if err != nil {
			return err
		}

		wasCancelled := b.Status == domain.BookingStatusCancelled
		endStatus := b.Status
		if in.Status != nil {
			endStatus = *in.Status
		}
		reactivating := wasCancelled && endStatus != domain.BookingStatusCancelled

		if in.TouchesDates() || reactivating {
			start, end := b.StartDate, b.EndDate
			if in.StartDate != nil {
				start = *in.StartDate
			}
			if in.EndDate != nil {
				end = *in.EndDate
			}
			iv, err := domain.NewInterval(start, end)
			if err != nil {
				return err
			}
			// Occurrences about to be rebuilt cannot block the move.
			var ignore func(domain.Booking) bool
			if regenerate {
				ignore = func(o domain.Booking) bool {
					return o.ParentBookingID != nil && *o.ParentBookingID == b.ID
				}
			}
			// A booking that stays cancelled holds no slot.
			if endStatus != domain.BookingStatusCancelled {
				if err := checkConflicts(ctx, ledger, b.EquipmentID, iv, b.ID, ignore); err != nil {
					return err
				}
			}
			b.StartDate, b.EndDate = iv.Start, iv.End
		}

		if b.IsRecurring && b.RecurrenceEndDate != nil && b.RecurrenceEndDate.Before(b.StartDate) {
			return fmt.Errorf("%w: recurrence end precedes start", domain.ErrInvalidRecurrence)
		}

		b.Status = endStatus
		if reactivating {
			b.CancelledAt, b.CancellationReason = nil, nil
		}
		if in.TotalAmount != nil {
			b.TotalAmount = *in.TotalAmount
		}
		if in.DepositAmount != nil {
			deposit := *in.DepositAmount
			b.DepositAmount = &deposit
		}
		if in.Notes != nil {
			b.Notes = *in.Notes
		}
		b.UpdatedAt = now

		if err := repos.Bookings.Update(ctx, b); err != nil {
			return fmt.Errorf("update booking %d: %w", b.ID, err)
		}

		if regenerate {
			removed, err := repos.Bookings.DeleteOccurrences(ctx, b.ID)
			if err != nil {
				return fmt.Errorf("delete occurrences of booking %d: %w", b.ID, err)
			}
			starts, err := occurrenceStarts(b.StartDate, b.RecurrencePattern, b.RecurrenceEndDate)
			if err != nil {
				return err
			}
			n, err := createOccurrences(ctx, repos, ledger, b, starts, now)
			if err != nil {
				return err
			}
			generated = n
			logger.Debug("Occurrences regenerated", "bookingID", b.ID, "removed", removed, "created", n)
		}

		if _, err := ledger.RecomputeAvailabilityStatus(ctx, b.EquipmentID, now); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		s.logFailure(method, "update", current.EquipmentID, err)
		return nil, err
	}

	s.metrics.AddOccurrences(generated)
	s.emitter.Emit(ctx, domain.NewBookingEvent(domain.BookingUpdated, updated, s.clock.Now()))

	logger.ExitMethod(method, "bookingID", updated.ID)
	return updated, nil
}

func (s *bookingService) Cancel(ctx context.Context, bookingID int64, reason string) (booking *domain.Booking, err error) {
	const method = "bookingService.Cancel"
	logger.EnterMethod(method, "bookingID", bookingID)
	done := s.metrics.Track("cancel")
	defer func() { done(err) }()

	current, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		logger.ExitMethodWithError(method, err, "bookingID", bookingID)
		return nil, err
	}

	now := s.clock.Now()
	var cancelled *domain.Booking
	var cascaded int64
	alreadyCancelled := false
	err = s.tx.WithinEquipment(ctx, current.EquipmentID, func(ctx context.Context, repos repository.Repos) error {
		b, err := repos.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status == domain.BookingStatusCancelled {
			alreadyCancelled = true
			cancelled = b
			return nil
		}

		b.Status = domain.BookingStatusCancelled
		if reason != "" {
			r := reason
			b.CancellationReason = &r
		}
		at := now
		b.CancelledAt = &at
		b.UpdatedAt = now
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return fmt.Errorf("cancel booking %d: %w", b.ID, err)
		}

		if b.IsOriginator() {
			n, err := repos.Bookings.CancelOccurrencesAfter(ctx, b.ID, now, domain.CascadeCancellationReason, now)
			if err != nil {
				return fmt.Errorf("cascade cancel of booking %d: %w", b.ID, err)
			}
			cascaded = n
		}

		ledger := NewAvailabilityLedger(repos.Bookings, repos.Equipment)
		if _, err := ledger.RecomputeAvailabilityStatus(ctx, b.EquipmentID, now); err != nil {
			return err
		}
		cancelled = b
		return nil
	})
	if err != nil {
		s.logFailure(method, "cancel", current.EquipmentID, err)
		return nil, err
	}
	if alreadyCancelled {
		logger.ExitMethod(method, "bookingID", bookingID, "alreadyCancelled", true)
		return cancelled, nil
	}

	s.metrics.AddCancelled("direct", 1)
	s.metrics.AddCancelled("cascade", cascaded)
	s.emitter.Emit(ctx, domain.NewBookingEvent(domain.BookingCancelled, cancelled, s.clock.Now()))

	logger.ExitMethod(method, "bookingID", bookingID, "cascaded", cascaded)
	return cancelled, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	return s.repos.Bookings.GetByID(ctx, bookingID)
}

func (s *bookingService) ListOccurrences(ctx context.Context, bookingID int64) ([]domain.Booking, error) {
	b, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsOriginator() {
		return []domain.Booking{}, nil
	}
	return s.repos.Bookings.ListOccurrences(ctx, bookingID)
}

func (s *bookingService) GetAvailableSlots(ctx context.Context, equipmentID int64, window domain.Interval, slot time.Duration) ([]domain.Interval, error) {
	logger.EnterMethod("bookingService.GetAvailableSlots", "equipmentID", equipmentID, "slot", slot)

	if !window.Valid() {
		return nil, domain.ErrInvalidInterval
	}
	if _, err := s.repos.Equipment.GetByID(ctx, equipmentID); err != nil {
		logger.ExitMethodWithError("bookingService.GetAvailableSlots", err, "equipmentID", equipmentID)
		return nil, err
	}

	ledger := NewAvailabilityLedger(s.repos.Bookings, s.repos.Equipment)
	seq, err := ledger.FreeSlots(ctx, equipmentID, window, slot, s.hours)
	if err != nil {
		logger.ExitMethodWithError("bookingService.GetAvailableSlots", err, "equipmentID", equipmentID)
		return nil, err
	}
	slots := slices.Collect(seq)
	if slots == nil {
		slots = []domain.Interval{}
	}

	logger.ExitMethod("bookingService.GetAvailableSlots", "equipmentID", equipmentID, "count", len(slots))
	return slots, nil
}

func (s *bookingService) GetCalendarEvents(ctx context.Context, equipmentID int64, window domain.Interval) ([]domain.CalendarEvent, error) {
	logger.EnterMethod("bookingService.GetCalendarEvents", "equipmentID", equipmentID)

	equipment, err := s.repos.Equipment.GetByID(ctx, equipmentID)
	if err != nil {
		logger.ExitMethodWithError("bookingService.GetCalendarEvents", err, "equipmentID", equipmentID)
		return nil, err
	}
	ledger := NewAvailabilityLedger(s.repos.Bookings, s.repos.Equipment)
	bookings, err := ledger.ConflictsInRange(ctx, equipmentID, window)
	if err != nil {
		logger.ExitMethodWithError("bookingService.GetCalendarEvents", err, "equipmentID", equipmentID)
		return nil, err
	}

	customers := make(map[int64]*domain.Customer)
	events := make([]domain.CalendarEvent, 0, len(bookings))
	for _, b := range bookings {
		c, ok := customers[b.CustomerID]
		if !ok {
			c, err = s.repos.Customers.GetByID(ctx, b.CustomerID)
			if err != nil {
				logger.ExitMethodWithError("bookingService.GetCalendarEvents", err, "customerID", b.CustomerID)
				return nil, err
			}
			customers[b.CustomerID] = c
		}
		events = append(events, calendarEvent(b, c, equipment))
	}

	logger.ExitMethod("bookingService.GetCalendarEvents", "equipmentID", equipmentID, "count", len(events))
	return events, nil
}

// RefreshAvailability recomputes the equipment's status against the current time.
func (s *bookingService) RefreshAvailability(ctx context.Context, equipmentID int64) (domain.AvailabilityStatus, error) {
	var status domain.AvailabilityStatus
	err := s.tx.WithinEquipment(ctx, equipmentID, func(ctx context.Context, repos repository.Repos) error {
		var err error
		status, err = NewAvailabilityLedger(repos.Bookings, repos.Equipment).
			RecomputeAvailabilityStatus(ctx, equipmentID, s.clock.Now())
		return err
	})
	if err != nil {
		return "", err
	}
	s.metrics.IncAvailability(string(status))
	return status, nil
}

func (s *bookingService) logFailure(method, operation string, equipmentID int64, err error) {
	var ce *domain.ConflictError
	if errors.As(err, &ce) {
		s.metrics.IncConflict(operation)
		logger.Info("Booking rejected: slot unavailable",
			"method", method, "equipment_id", equipmentID, "overlapping", ce.OverlappingBookingIDs)
		return
	}
	logger.ExitMethodWithError(method, err, "equipmentID", equipmentID)
}

func calendarEvent(b domain.Booking, c *domain.Customer, e *domain.Equipment) domain.CalendarEvent {
	return domain.CalendarEvent{
		ID:     b.ID,
		Title:  fmt.Sprintf("Booking #%d - %s", b.ID, c.Name),
		Start:  b.StartDate,
		End:    b.EndDate,
		Status: b.Status,
		Color:  StatusColor(b.Status),
		Customer: domain.CalendarCustomer{
			ID:    c.ID,
			Name:  c.Name,
			Email: c.Email,
		},
		Equipment: domain.CalendarEquipment{
			ID:   e.ID,
			Name: e.Name,
		},
	}
}

// checkConflicts fails with a ConflictError when iv overlaps an active booking
// other than excludeID. Bookings for which ignore returns true are skipped.
func checkConflicts(ctx context.Context, ledger AvailabilityLedger, equipmentID int64, iv domain.Interval, excludeID int64, ignore func(domain.Booking) bool) error {
	conflicts, err := ledger.Conflicts(ctx, equipmentID, iv, excludeID)
	if err != nil {
		return err
	}
	if ignore != nil {
		conflicts = slices.DeleteFunc(conflicts, ignore)
	}
	if len(conflicts) > 0 {
		return &domain.ConflictError{EquipmentID: equipmentID, OverlappingBookingIDs: bookingIDs(conflicts)}
	}
	return nil
}

// createOccurrences inserts one sibling per start, each conflict-checked against
// everything written so far in the transaction.
func createOccurrences(ctx context.Context, repos repository.Repos, ledger AvailabilityLedger, parent *domain.Booking, starts []time.Time, now time.Time) (int, error) {
	for i, start := range starts {
		occ := parent.Occurrence(start)
		occ.CreatedAt, occ.UpdatedAt = now, now
		if err := checkConflicts(ctx, ledger, parent.EquipmentID, occ.Interval(), 0, nil); err != nil {
			return i, err
		}
		if err := repos.Bookings.Create(ctx, occ); err != nil {
			return i, fmt.Errorf("create occurrence %d of booking %d: %w", i+1, parent.ID, err)
		}
	}
	return len(starts), nil
}

func occurrenceStarts(start time.Time, pattern domain.RecurrencePattern, end *time.Time) ([]time.Time, error) {
	if end == nil {
		return nil, fmt.Errorf("%w: recurrence end is required", domain.ErrInvalidRecurrence)
	}
	if err := utils.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: recurrence end precedes start", domain.ErrInvalidRecurrence)
	}
	return utils.OccurrenceStarts(start, pattern, *end)
}

// applyRecurrenceChange folds recurrence edits into b and reports whether the
// series must be rebuilt.
func applyRecurrenceChange(b *domain.Booking, in domain.UpdateBookingInput) (bool, error) {
	if !in.TouchesRecurrence() {
		return false, nil
	}
	changed := false
	if in.RecurrencePattern != nil && *in.RecurrencePattern != b.RecurrencePattern {
		if err := utils.ValidatePattern(*in.RecurrencePattern); err != nil {
			return false, err
		}
		b.RecurrencePattern = *in.RecurrencePattern
		changed = true
	}
	if in.RecurrenceEndDate != nil && (b.RecurrenceEndDate == nil || !in.RecurrenceEndDate.Equal(*b.RecurrenceEndDate)) {
		end := *in.RecurrenceEndDate
		b.RecurrenceEndDate = &end
		changed = true
	}
	if !changed {
		return false, nil
	}
	if b.RecurrencePattern == "" || b.RecurrenceEndDate == nil {
		return false, fmt.Errorf("%w: pattern and end are both required", domain.ErrInvalidRecurrence)
	}
	b.IsRecurring = true
	return true, nil
}
