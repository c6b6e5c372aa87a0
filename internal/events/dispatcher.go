package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/metrics"
)

// Publisher delivers one booking event somewhere: a broker, a mailbox, a log.
type Publisher interface {
	Publish(ctx context.Context, event domain.BookingEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event domain.BookingEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event domain.BookingEvent) error {
	return f(ctx, event)
}

// Dispatcher fans committed booking events out to publishers on their own
// goroutines. A failing or panicking publisher is logged and never reaches
// the caller of Emit.
type Dispatcher struct {
	publishers []Publisher
	timeout    time.Duration
	metrics    *metrics.Metrics
	wg         sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, m *metrics.Metrics, publishers ...Publisher) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		publishers: publishers,
		timeout:    timeout,
		metrics:    m,
	}
}

// Emit returns immediately. Delivery outlives ctx's cancellation but keeps its values.
func (d *Dispatcher) Emit(ctx context.Context, event domain.BookingEvent) {
	base := context.WithoutCancel(ctx)
	for _, p := range d.publishers {
		d.wg.Add(1)
		go d.deliver(base, p, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, p Publisher, event domain.BookingEvent) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Event publisher panicked",
				"event_id", event.ID, "event_type", event.Type, "publisher", fmt.Sprintf("%T", p), "panic", r)
			d.metrics.IncEvent(string(event.Type), "panic")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := p.Publish(ctx, event); err != nil {
		logger.Warn("Event delivery failed",
			"event_id", event.ID, "event_type", event.Type, "booking_id", event.Booking.ID,
			"publisher", fmt.Sprintf("%T", p), "error", err)
		d.metrics.IncEvent(string(event.Type), "error")
		return
	}
	d.metrics.IncEvent(string(event.Type), "ok")
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown is Wait bounded by ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogPublisher writes every event to the structured log.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event domain.BookingEvent) error {
	logger.InfoContext(ctx, "Booking event",
		"event_id", event.ID,
		"event_type", event.Type,
		"booking_id", event.Booking.ID,
		"equipment_id", event.Booking.EquipmentID,
		"status", event.Booking.Status,
		"occurred_at", event.OccurredAt)
	return nil
}
