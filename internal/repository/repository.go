package repository

import (
	"context"
	"time"

	"equipment-booking-backend/internal/domain"
)

type EquipmentRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Equipment, error)
	UpdateAvailability(ctx context.Context, id int64, status domain.AvailabilityStatus) error
	ListIDs(ctx context.Context) ([]int64, error)
}

type CustomerRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Customer, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) error

	// ListActiveInRange returns non-cancelled bookings of the equipment that may
	// overlap window, ordered by start. excludeID of 0 excludes nothing.
	ListActiveInRange(ctx context.Context, equipmentID int64, window domain.Interval, excludeID int64) ([]domain.Booking, error)
	// ListActive returns every non-cancelled booking of the equipment that ends after since
	// or is in progress.
	ListActive(ctx context.Context, equipmentID int64, since time.Time) ([]domain.Booking, error)

	// Recurring series
	ListOccurrences(ctx context.Context, parentID int64) ([]domain.Booking, error)
	DeleteOccurrences(ctx context.Context, parentID int64) (int64, error)
	CancelOccurrencesAfter(ctx context.Context, parentID int64, after time.Time, reason string, cancelledAt time.Time) (int64, error)
}

type PricingRuleRepository interface {
	Create(ctx context.Context, rule *domain.PricingRule) error
	GetByID(ctx context.Context, id int64) (*domain.PricingRule, error)
	Update(ctx context.Context, rule *domain.PricingRule) error
	ListByEquipment(ctx context.Context, equipmentID int64, activeOnly bool) ([]domain.PricingRule, error)
}

// Repos groups the repositories available inside one transactional scope.
type Repos struct {
	Equipment EquipmentRepository
	Customers CustomerRepository
	Bookings  BookingRepository
	Rules     PricingRuleRepository
}

// Transactor runs fn atomically. WithinEquipment additionally serializes every
// caller targeting the same equipment for the lifetime of the transaction, so a
// conflict check made inside fn stays valid until commit.
type Transactor interface {
	WithinEquipment(ctx context.Context, equipmentID int64, fn func(ctx context.Context, repos Repos) error) error
}
