package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

type RecurrencePattern string

const (
	RecurrenceDaily    RecurrencePattern = "daily"
	RecurrenceWeekly   RecurrencePattern = "weekly"
	RecurrenceBiweekly RecurrencePattern = "biweekly"
	RecurrenceMonthly  RecurrencePattern = "monthly"
)

// CascadeCancellationReason is recorded on occurrences cancelled together with their originator.
const CascadeCancellationReason = "Parent booking cancelled"

type Booking struct {
	ID                 int64             `json:"id"`
	EquipmentID        int64             `json:"equipment_id"`
	CustomerID         int64             `json:"customer_id"`
	StartDate          time.Time         `json:"start_date"`
	EndDate            time.Time         `json:"end_date"`
	Status             BookingStatus     `json:"status"`
	TotalAmount        float64           `json:"total_amount"`
	DepositAmount      *float64          `json:"deposit_amount,omitempty"`
	Notes              string            `json:"notes"`
	TermsAccepted      bool              `json:"terms_accepted"`
	IsRecurring        bool              `json:"is_recurring"`
	RecurrencePattern  RecurrencePattern `json:"recurrence_pattern,omitempty"`
	RecurrenceEndDate  *time.Time        `json:"recurrence_end_date,omitempty"`
	ParentBookingID    *int64            `json:"parent_booking_id,omitempty"` // set on generated occurrences
	CancellationReason *string           `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (b *Booking) Interval() Interval {
	return Interval{Start: b.StartDate, End: b.EndDate}
}

// Active reports whether the booking takes part in conflict checks.
func (b *Booking) Active() bool {
	return b.Status != BookingStatusCancelled
}

func (b *Booking) IsOccurrence() bool {
	return b.ParentBookingID != nil
}

// IsOriginator reports whether the booking owns a recurring series.
func (b *Booking) IsOriginator() bool {
	return b.IsRecurring && b.ParentBookingID == nil
}

// Occurrence builds the sibling booking generated for start, inheriting everything but the dates.
func (b *Booking) Occurrence(start time.Time) *Booking {
	parentID := b.ID
	iv := b.Interval().Shift(start)
	return &Booking{
		EquipmentID:     b.EquipmentID,
		CustomerID:      b.CustomerID,
		StartDate:       iv.Start,
		EndDate:         iv.End,
		Status:          b.Status,
		TotalAmount:     b.TotalAmount,
		DepositAmount:   b.DepositAmount,
		Notes:           b.Notes,
		TermsAccepted:   b.TermsAccepted,
		ParentBookingID: &parentID,
	}
}

// CreateBookingInput is the payload accepted by BookingService.Create.
type CreateBookingInput struct {
	EquipmentID       int64             `json:"equipment_id" validate:"required,gt=0"`
	CustomerID        int64             `json:"customer_id" validate:"required,gt=0"`
	StartDate         time.Time         `json:"start_date" validate:"required"`
	EndDate           time.Time         `json:"end_date" validate:"required,gtfield=StartDate"`
	Status            BookingStatus     `json:"status" validate:"omitempty,oneof=pending confirmed in_progress completed"`
	TotalAmount       float64           `json:"total_amount" validate:"gte=0"`
	DepositAmount     *float64          `json:"deposit_amount" validate:"omitempty,gte=0"`
	Notes             string            `json:"notes"`
	TermsAccepted     bool              `json:"terms_accepted"`
	IsRecurring       bool              `json:"is_recurring"`
	RecurrencePattern RecurrencePattern `json:"recurrence_pattern" validate:"required_if=IsRecurring true"`
	RecurrenceEndDate *time.Time        `json:"recurrence_end_date" validate:"required_if=IsRecurring true"`
}

// UpdateBookingInput carries the fields to change; nil means "leave as is".
// Status cannot be set to cancelled here; cancellation goes through Cancel.
type UpdateBookingInput struct {
	StartDate         *time.Time         `json:"start_date"`
	EndDate           *time.Time         `json:"end_date"`
	Status            *BookingStatus     `json:"status" validate:"omitempty,oneof=pending confirmed in_progress completed"`
	TotalAmount       *float64           `json:"total_amount" validate:"omitempty,gte=0"`
	DepositAmount     *float64           `json:"deposit_amount" validate:"omitempty,gte=0"`
	Notes             *string            `json:"notes"`
	RecurrencePattern *RecurrencePattern `json:"recurrence_pattern"`
	RecurrenceEndDate *time.Time         `json:"recurrence_end_date"`
}

// TouchesDates reports whether the update moves the booking in time.
func (in UpdateBookingInput) TouchesDates() bool {
	return in.StartDate != nil || in.EndDate != nil
}

// TouchesRecurrence reports whether the update changes the recurrence definition.
func (in UpdateBookingInput) TouchesRecurrence() bool {
	return in.RecurrencePattern != nil || in.RecurrenceEndDate != nil
}

// CalendarEvent is the presentation-ready projection of a booking.
type CalendarEvent struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Status    BookingStatus     `json:"status"`
	Color     string            `json:"color"`
	Customer  CalendarCustomer  `json:"customer"`
	Equipment CalendarEquipment `json:"equipment"`
}

type CalendarCustomer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CalendarEquipment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
