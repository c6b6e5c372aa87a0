package service

import (
	"context"
	"slices"
	"testing"
	"time"

	"equipment-booking-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// June 10 2024 is a Monday.
func jun(day, hour int) time.Time {
	return time.Date(2024, 6, day, hour, 0, 0, 0, time.UTC)
}

func newLedgerFixture() (*memStore, AvailabilityLedger) {
	store := newMemStore()
	store.addEquipment(domain.Equipment{ID: 1, Name: "Excavator", BasePrice: 100})
	repos := store.Repos()
	return store, NewAvailabilityLedger(repos.Bookings, repos.Equipment)
}

func TestLedger_HasConflict(t *testing.T) {
	store, ledger := newLedgerFixture()
	ctx := context.Background()
	existing := store.addBooking(domain.Booking{
		EquipmentID: 1, CustomerID: 1, StartDate: jun(10, 9), EndDate: jun(12, 9), Status: domain.BookingStatusConfirmed,
	})
	store.addBooking(domain.Booking{
		EquipmentID: 1, CustomerID: 1, StartDate: jun(20, 9), EndDate: jun(21, 9), Status: domain.BookingStatusCancelled,
	})
	store.addBooking(domain.Booking{
		EquipmentID: 2, CustomerID: 1, StartDate: jun(25, 9), EndDate: jun(26, 9), Status: domain.BookingStatusConfirmed,
	})

	tests := []struct {
		name     string
		iv       domain.Interval
		exclude  int64
		expected bool
	}{
		{"Overlapping", domain.Interval{Start: jun(11, 0), End: jun(13, 0)}, 0, true},
		{"Touching end", domain.Interval{Start: jun(12, 9), End: jun(13, 0)}, 0, false},
		{"Excluding itself", domain.Interval{Start: jun(11, 0), End: jun(13, 0)}, existing, false},
		{"Cancelled booking ignored", domain.Interval{Start: jun(20, 10), End: jun(20, 12)}, 0, false},
		{"Other equipment ignored", domain.Interval{Start: jun(25, 10), End: jun(25, 12)}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.HasConflict(ctx, 1, tt.iv, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("Invalid interval", func(t *testing.T) {
		_, err := ledger.HasConflict(ctx, 1, domain.Interval{Start: jun(11, 0), End: jun(11, 0)}, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInterval)
	})
}

func TestLedger_ConflictMonotonicity(t *testing.T) {
	store, ledger := newLedgerFixture()
	ctx := context.Background()
	probe := domain.Interval{Start: jun(11, 0), End: jun(11, 12)}
	store.addBooking(domain.Booking{EquipmentID: 1, StartDate: jun(10, 9), EndDate: jun(12, 9), Status: domain.BookingStatusPending})

	for i := 0; i < 10; i++ {
		store.addBooking(domain.Booking{
			EquipmentID: 1,
			StartDate:   jun(13, 0).Add(time.Duration(i) * 3 * time.Hour),
			EndDate:     jun(13, 2).Add(time.Duration(i) * 3 * time.Hour),
			Status:      domain.BookingStatusConfirmed,
		})
		got, err := ledger.HasConflict(ctx, 1, probe, 0)
		require.NoError(t, err)
		assert.True(t, got)
	}
}

func TestLedger_ConflictsInRange(t *testing.T) {
	store, ledger := newLedgerFixture()
	a := store.addBooking(domain.Booking{EquipmentID: 1, StartDate: jun(10, 9), EndDate: jun(10, 12), Status: domain.BookingStatusConfirmed})
	b := store.addBooking(domain.Booking{EquipmentID: 1, StartDate: jun(11, 9), EndDate: jun(11, 12), Status: domain.BookingStatusInProgress})
	store.addBooking(domain.Booking{EquipmentID: 1, StartDate: jun(14, 9), EndDate: jun(14, 12), Status: domain.BookingStatusConfirmed})

	got, err := ledger.ConflictsInRange(context.Background(), 1, domain.Interval{Start: jun(10, 0), End: jun(12, 0)})
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b}, bookingIDs(got))
}

func TestLedger_FreeSlots(t *testing.T) {
	store, ledger := newLedgerFixture()
	ctx := context.Background()
	store.addBooking(domain.Booking{EquipmentID: 1, StartDate: jun(10, 10), EndDate: jun(10, 12), Status: domain.BookingStatusConfirmed})
	hours := DefaultBusinessHours(time.UTC)

	t.Run("Business hours and bookings", func(t *testing.T) {
		seq, err := ledger.FreeSlots(ctx, 1, domain.Interval{Start: jun(10, 8), End: jun(10, 18)}, time.Hour, hours)
		require.NoError(t, err)

		var starts []int
		for slot := range seq {
			assert.Equal(t, time.Hour, slot.Duration())
			starts = append(starts, slot.Start.Hour())
		}
		assert.Equal(t, []int{9, 12, 13, 14, 15, 16}, starts)
	})

	t.Run("Restartable", func(t *testing.T) {
		seq, err := ledger.FreeSlots(ctx, 1, domain.Interval{Start: jun(10, 0), End: jun(12, 0)}, 30*time.Minute, hours)
		require.NoError(t, err)
		assert.Equal(t, slices.Collect(seq), slices.Collect(seq))
	})

	t.Run("Weekend closed", func(t *testing.T) {
		seq, err := ledger.FreeSlots(ctx, 1, domain.Interval{Start: jun(15, 0), End: jun(17, 0)}, time.Hour, hours)
		require.NoError(t, err)
		assert.Empty(t, slices.Collect(seq))
	})

	t.Run("Any time policy", func(t *testing.T) {
		seq, err := ledger.FreeSlots(ctx, 1, domain.Interval{Start: jun(15, 0), End: jun(16, 0)}, 6*time.Hour, AnyTime{})
		require.NoError(t, err)
		assert.Len(t, slices.Collect(seq), 4)
	})

	t.Run("Slot crossing a booking is not offered", func(t *testing.T) {
		seq, err := ledger.FreeSlots(ctx, 1, domain.Interval{Start: jun(10, 9), End: jun(10, 10)}, 2*time.Hour, AnyTime{})
		require.NoError(t, err)
		assert.Empty(t, slices.Collect(seq))
	})

	t.Run("Non positive duration", func(t *testing.T) {
		_, err := ledger.FreeSlots(ctx, 1, domain.Interval{Start: jun(10, 8), End: jun(10, 18)}, 0, hours)
		assert.ErrorIs(t, err, domain.ErrInvalidSlotDuration)
	})
}

func TestWeeklyHours_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	hours := DefaultBusinessHours(loc)

	// 06:00 UTC is 09:00 local.
	assert.True(t, hours.Allows(domain.Interval{Start: jun(10, 6), End: jun(10, 7)}))
	assert.False(t, hours.Allows(domain.Interval{Start: jun(10, 14), End: jun(10, 15)}))
}

func TestAvailabilityFor(t *testing.T) {
	now := jun(15, 12)
	tests := []struct {
		name     string
		bookings []domain.Booking
		expected domain.AvailabilityStatus
	}{
		{"No bookings", nil, domain.AvailabilityAvailable},
		{"Future booking", []domain.Booking{{StartDate: jun(20, 9), EndDate: jun(21, 9), Status: domain.BookingStatusConfirmed}}, domain.AvailabilityBooked},
		{"Ongoing booking", []domain.Booking{{StartDate: jun(15, 9), EndDate: jun(15, 17), Status: domain.BookingStatusConfirmed}}, domain.AvailabilityBooked},
		{"Past booking", []domain.Booking{{StartDate: jun(10, 9), EndDate: jun(11, 9), Status: domain.BookingStatusCompleted}}, domain.AvailabilityAvailable},
		{"Overrunning in progress", []domain.Booking{{StartDate: jun(10, 9), EndDate: jun(11, 9), Status: domain.BookingStatusInProgress}}, domain.AvailabilityBooked},
		{"Cancelled future booking", []domain.Booking{{StartDate: jun(20, 9), EndDate: jun(21, 9), Status: domain.BookingStatusCancelled}}, domain.AvailabilityAvailable},
		{"Ending exactly now", []domain.Booking{{StartDate: jun(15, 9), EndDate: now, Status: domain.BookingStatusConfirmed}}, domain.AvailabilityAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AvailabilityFor(tt.bookings, now))
		})
	}
}

func TestLedger_RecomputeAvailabilityStatus(t *testing.T) {
	store, ledger := newLedgerFixture()
	ctx := context.Background()
	store.addBooking(domain.Booking{EquipmentID: 1, StartDate: jun(10, 9), EndDate: jun(12, 9), Status: domain.BookingStatusConfirmed})

	status, err := ledger.RecomputeAvailabilityStatus(ctx, 1, jun(11, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityBooked, status)
	assert.Equal(t, domain.AvailabilityBooked, store.equipmentStatus(1))

	status, err = ledger.RecomputeAvailabilityStatus(ctx, 1, jun(13, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityAvailable, status)
	assert.Equal(t, domain.AvailabilityAvailable, store.equipmentStatus(1))

	_, err = ledger.RecomputeAvailabilityStatus(ctx, 99, jun(13, 0))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedger_Utilization(t *testing.T) {
	store, ledger := newLedgerFixture()
	ctx := context.Background()
	window := domain.Interval{Start: jun(1, 0), End: jun(1, 0).AddDate(0, 0, 30)}
	store.addBooking(domain.Booking{EquipmentID: 1, StartDate: jun(10, 0), EndDate: jun(13, 0), Status: domain.BookingStatusConfirmed})
	// Partly before the window: only the last day counts.
	store.addBooking(domain.Booking{EquipmentID: 1, StartDate: jun(1, 0).AddDate(0, 0, -2), EndDate: jun(2, 0), Status: domain.BookingStatusCompleted})
	store.addBooking(domain.Booking{EquipmentID: 1, StartDate: jun(20, 0), EndDate: jun(25, 0), Status: domain.BookingStatusCancelled})

	booked, err := ledger.BookedDuration(ctx, 1, window)
	require.NoError(t, err)
	assert.Equal(t, 4*24*time.Hour, booked)

	util, err := ledger.Utilization(ctx, 1, window)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/30.0*100, util, 1e-9)
}

func TestCoveredDuration_MergesOverlaps(t *testing.T) {
	window := domain.Interval{Start: jun(10, 0), End: jun(11, 0)}
	bookings := []domain.Booking{
		{StartDate: jun(10, 8), EndDate: jun(10, 12), Status: domain.BookingStatusConfirmed},
		{StartDate: jun(10, 10), EndDate: jun(10, 14), Status: domain.BookingStatusConfirmed},
		{StartDate: jun(10, 14), EndDate: jun(10, 15), Status: domain.BookingStatusConfirmed},
		{StartDate: jun(10, 20), EndDate: jun(11, 6), Status: domain.BookingStatusConfirmed},
	}
	assert.Equal(t, 11*time.Hour, coveredDuration(bookings, window))
	assert.Equal(t, time.Duration(0), coveredDuration(nil, window))
	assert.Equal(t, 0.0, utilizationPercent(time.Hour, domain.Interval{}))
}
