package service

import (
	"context"
	"iter"
	"time"

	"equipment-booking-backend/internal/domain"

	"github.com/stretchr/testify/mock"
)

type MockEquipmentRepo struct{ mock.Mock }

func (m *MockEquipmentRepo) GetByID(ctx context.Context, id int64) (*domain.Equipment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Equipment), args.Error(1)
}

func (m *MockEquipmentRepo) UpdateAvailability(ctx context.Context, id int64, status domain.AvailabilityStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockEquipmentRepo) ListIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).([]int64), args.Error(1)
}

type MockPricingRuleRepo struct{ mock.Mock }

func (m *MockPricingRuleRepo) Create(ctx context.Context, rule *domain.PricingRule) error {
	args := m.Called(ctx, rule)
	if args.Error(0) == nil {
		rule.ID = 1
	}
	return args.Error(0)
}

func (m *MockPricingRuleRepo) GetByID(ctx context.Context, id int64) (*domain.PricingRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PricingRule), args.Error(1)
}

func (m *MockPricingRuleRepo) Update(ctx context.Context, rule *domain.PricingRule) error {
	return m.Called(ctx, rule).Error(0)
}

func (m *MockPricingRuleRepo) ListByEquipment(ctx context.Context, equipmentID int64, activeOnly bool) ([]domain.PricingRule, error) {
	args := m.Called(ctx, equipmentID, activeOnly)
	return args.Get(0).([]domain.PricingRule), args.Error(1)
}

type MockLedger struct{ mock.Mock }

func (m *MockLedger) HasConflict(ctx context.Context, equipmentID int64, iv domain.Interval, excludeBookingID int64) (bool, error) {
	args := m.Called(ctx, equipmentID, iv, excludeBookingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) Conflicts(ctx context.Context, equipmentID int64, iv domain.Interval, excludeBookingID int64) ([]domain.Booking, error) {
	args := m.Called(ctx, equipmentID, iv, excludeBookingID)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockLedger) ConflictsInRange(ctx context.Context, equipmentID int64, window domain.Interval) ([]domain.Booking, error) {
	args := m.Called(ctx, equipmentID, window)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockLedger) FreeSlots(ctx context.Context, equipmentID int64, window domain.Interval, slot time.Duration, hours BusinessHoursPolicy) (iter.Seq[domain.Interval], error) {
	args := m.Called(ctx, equipmentID, window, slot, hours)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(iter.Seq[domain.Interval]), args.Error(1)
}

func (m *MockLedger) RecomputeAvailabilityStatus(ctx context.Context, equipmentID int64, now time.Time) (domain.AvailabilityStatus, error) {
	args := m.Called(ctx, equipmentID, now)
	return args.Get(0).(domain.AvailabilityStatus), args.Error(1)
}

func (m *MockLedger) BookedDuration(ctx context.Context, equipmentID int64, window domain.Interval) (time.Duration, error) {
	args := m.Called(ctx, equipmentID, window)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *MockLedger) Utilization(ctx context.Context, equipmentID int64, window domain.Interval) (float64, error) {
	args := m.Called(ctx, equipmentID, window)
	return args.Get(0).(float64), args.Error(1)
}
