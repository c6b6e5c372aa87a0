package service

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/repository"
)

var errDiskFull = errors.New("disk full")

type memData struct {
	equipment map[int64]domain.Equipment
	customers map[int64]domain.Customer
	bookings  map[int64]domain.Booking
	rules     map[int64]domain.PricingRule
	nextID    int64
}

func (d *memData) clone() *memData {
	return &memData{
		equipment: maps.Clone(d.equipment),
		customers: maps.Clone(d.customers),
		bookings:  maps.Clone(d.bookings),
		rules:     maps.Clone(d.rules),
		nextID:    d.nextID,
	}
}

// memStore is a transactional in-memory store. WithinEquipment runs fn on a
// private copy and swaps it in only when fn succeeds.
type memStore struct {
	txMu   sync.Mutex
	dataMu sync.Mutex
	data   *memData

	// failBookingCreateAt makes the n-th booking insert (1-based, counted
	// across the store's lifetime) fail with errDiskFull. 0 disables it.
	failBookingCreateAt int
	bookingCreates      int
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		equipment: map[int64]domain.Equipment{},
		customers: map[int64]domain.Customer{},
		bookings:  map[int64]domain.Booking{},
		rules:     map[int64]domain.PricingRule{},
		nextID:    100,
	}}
}

func (s *memStore) addEquipment(e domain.Equipment) {
	if e.AvailabilityStatus == "" {
		e.AvailabilityStatus = domain.AvailabilityAvailable
	}
	s.data.equipment[e.ID] = e
}

func (s *memStore) addCustomer(c domain.Customer) { s.data.customers[c.ID] = c }

func (s *memStore) addBooking(b domain.Booking) int64 {
	if b.ID == 0 {
		s.data.nextID++
		b.ID = s.data.nextID
	}
	s.data.bookings[b.ID] = b
	return b.ID
}

func (s *memStore) booking(id int64) domain.Booking {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return s.data.bookings[id]
}

func (s *memStore) equipmentStatus(id int64) domain.AvailabilityStatus {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return s.data.equipment[id].AvailabilityStatus
}

func (s *memStore) allBookings() []domain.Booking {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	out := slices.Collect(maps.Values(s.data.bookings))
	slices.SortFunc(out, func(a, b domain.Booking) int { return a.StartDate.Compare(b.StartDate) })
	return out
}

func (s *memStore) Repos() repository.Repos {
	return s.reposFor(nil)
}

func (s *memStore) reposFor(tx *memData) repository.Repos {
	r := &memRepos{store: s, tx: tx}
	return repository.Repos{
		Equipment: memEquipment{r},
		Customers: memCustomers{r},
		Bookings:  memBookings{r},
		Rules:     memRules{r},
	}
}

func (s *memStore) WithinEquipment(ctx context.Context, equipmentID int64, fn func(ctx context.Context, repos repository.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.dataMu.Lock()
	tx := s.data.clone()
	s.dataMu.Unlock()

	if err := fn(ctx, s.reposFor(tx)); err != nil {
		return err
	}

	s.dataMu.Lock()
	s.data = tx
	s.dataMu.Unlock()
	return nil
}

type memRepos struct {
	store *memStore
	tx    *memData
}

func (r *memRepos) with(fn func(d *memData) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.dataMu.Lock()
	defer r.store.dataMu.Unlock()
	return fn(r.store.data)
}

type memEquipment struct{ r *memRepos }

func (m memEquipment) GetByID(ctx context.Context, id int64) (*domain.Equipment, error) {
	var out *domain.Equipment
	err := m.r.with(func(d *memData) error {
		e, ok := d.equipment[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func (m memEquipment) UpdateAvailability(ctx context.Context, id int64, status domain.AvailabilityStatus) error {
	return m.r.with(func(d *memData) error {
		e, ok := d.equipment[id]
		if !ok {
			return domain.ErrNotFound
		}
		e.AvailabilityStatus = status
		d.equipment[id] = e
		return nil
	})
}

func (m memEquipment) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := m.r.with(func(d *memData) error {
		ids = slices.Sorted(maps.Keys(d.equipment))
		return nil
	})
	return ids, err
}

type memCustomers struct{ r *memRepos }

func (m memCustomers) GetByID(ctx context.Context, id int64) (*domain.Customer, error) {
	var out *domain.Customer
	err := m.r.with(func(d *memData) error {
		c, ok := d.customers[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

type memBookings struct{ r *memRepos }

func (m memBookings) Create(ctx context.Context, b *domain.Booking) error {
	return m.r.with(func(d *memData) error {
		m.r.store.bookingCreates++
		if at := m.r.store.failBookingCreateAt; at > 0 && m.r.store.bookingCreates == at {
			return errDiskFull
		}
		d.nextID++
		b.ID = d.nextID
		d.bookings[b.ID] = *b
		return nil
	})
}

func (m memBookings) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var out *domain.Booking
	err := m.r.with(func(d *memData) error {
		b, ok := d.bookings[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (m memBookings) Update(ctx context.Context, b *domain.Booking) error {
	return m.r.with(func(d *memData) error {
		if _, ok := d.bookings[b.ID]; !ok {
			return domain.ErrNotFound
		}
		d.bookings[b.ID] = *b
		return nil
	})
}

func (m memBookings) filter(keep func(b domain.Booking) bool) ([]domain.Booking, error) {
	var out []domain.Booking
	err := m.r.with(func(d *memData) error {
		for _, b := range d.bookings {
			if keep(b) {
				out = append(out, b)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Booking) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, err
}

func (m memBookings) ListActiveInRange(ctx context.Context, equipmentID int64, window domain.Interval, excludeID int64) ([]domain.Booking, error) {
	return m.filter(func(b domain.Booking) bool {
		return b.EquipmentID == equipmentID && b.Active() && b.ID != excludeID &&
			b.StartDate.Before(window.End) && b.EndDate.After(window.Start)
	})
}

func (m memBookings) ListActive(ctx context.Context, equipmentID int64, since time.Time) ([]domain.Booking, error) {
	return m.filter(func(b domain.Booking) bool {
		return b.EquipmentID == equipmentID && b.Active() &&
			(b.EndDate.After(since) || b.Status == domain.BookingStatusInProgress)
	})
}

func (m memBookings) ListOccurrences(ctx context.Context, parentID int64) ([]domain.Booking, error) {
	return m.filter(func(b domain.Booking) bool {
		return b.ParentBookingID != nil && *b.ParentBookingID == parentID
	})
}

func (m memBookings) DeleteOccurrences(ctx context.Context, parentID int64) (int64, error) {
	var n int64
	err := m.r.with(func(d *memData) error {
		for id, b := range d.bookings {
			if b.ParentBookingID != nil && *b.ParentBookingID == parentID {
				delete(d.bookings, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m memBookings) CancelOccurrencesAfter(ctx context.Context, parentID int64, after time.Time, reason string, cancelledAt time.Time) (int64, error) {
	var n int64
	err := m.r.with(func(d *memData) error {
		for id, b := range d.bookings {
			if b.ParentBookingID == nil || *b.ParentBookingID != parentID {
				continue
			}
			if !b.StartDate.After(after) || b.Status == domain.BookingStatusCancelled {
				continue
			}
			r, at := reason, cancelledAt
			b.Status = domain.BookingStatusCancelled
			b.CancellationReason = &r
			b.CancelledAt = &at
			d.bookings[id] = b
			n++
		}
		return nil
	})
	return n, err
}

type memRules struct{ r *memRepos }

func (m memRules) Create(ctx context.Context, rule *domain.PricingRule) error {
	return m.r.with(func(d *memData) error {
		d.nextID++
		rule.ID = d.nextID
		d.rules[rule.ID] = *rule
		return nil
	})
}

func (m memRules) GetByID(ctx context.Context, id int64) (*domain.PricingRule, error) {
	var out *domain.PricingRule
	err := m.r.with(func(d *memData) error {
		r, ok := d.rules[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &r
		return nil
	})
	return out, err
}

func (m memRules) Update(ctx context.Context, rule *domain.PricingRule) error {
	return m.r.with(func(d *memData) error {
		if _, ok := d.rules[rule.ID]; !ok {
			return domain.ErrNotFound
		}
		d.rules[rule.ID] = *rule
		return nil
	})
}

func (m memRules) ListByEquipment(ctx context.Context, equipmentID int64, activeOnly bool) ([]domain.PricingRule, error) {
	var out []domain.PricingRule
	err := m.r.with(func(d *memData) error {
		for _, r := range d.rules {
			if r.EquipmentID == equipmentID && (!activeOnly || r.IsActive) {
				out = append(out, r)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.PricingRule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, err
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// recordingEmitter keeps every emitted event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []domain.BookingEvent
}

func (e *recordingEmitter) Emit(ctx context.Context, event domain.BookingEvent) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
}

func (e *recordingEmitter) types() []domain.BookingEventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.BookingEventType, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}
