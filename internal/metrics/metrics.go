package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"equipment-booking-backend/internal/logger"
)

const namespace = "equipment_booking"

// Metrics groups the Prometheus collectors of the booking core. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	BookingsCreated     *prometheus.CounterVec
	OccurrencesCreated  prometheus.Counter
	BookingsCancelled   *prometheus.CounterVec
	ConflictsDetected   *prometheus.CounterVec
	AvailabilityRefresh *prometheus.CounterVec
	QuotesCalculated    prometheus.Counter
	RulesApplied        *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	EventsDispatched    *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in tests
// so repeated construction does not panic on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BookingsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created, by status.",
		}, []string{"status"}),

		OccurrencesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_created_total",
			Help:      "Recurring occurrences generated.",
		}),

		BookingsCancelled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_cancelled_total",
			Help:      "Bookings cancelled, directly or by cascade.",
		}, []string{"cause"}),

		ConflictsDetected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Booking attempts rejected because of an overlap.",
		}, []string{"operation"}),

		AvailabilityRefresh: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_recomputed_total",
			Help:      "Availability status recomputations, by resulting status.",
		}, []string{"status"}),

		QuotesCalculated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_quotes_total",
			Help:      "Price quotes calculated.",
		}),

		RulesApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_rules_applied_total",
			Help:      "Pricing rules applied to quotes, by adjustment type.",
		}, []string{"adjustment_type"}),

		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of booking core operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),

		EventsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Booking events handed to listeners, by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

func (m *Metrics) IncBookingCreated(status string) {
	if m == nil {
		return
	}
	m.BookingsCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) AddOccurrences(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OccurrencesCreated.Add(float64(n))
}

func (m *Metrics) AddCancelled(cause string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BookingsCancelled.WithLabelValues(cause).Add(float64(n))
}

func (m *Metrics) IncConflict(operation string) {
	if m == nil {
		return
	}
	m.ConflictsDetected.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncAvailability(status string) {
	if m == nil {
		return
	}
	m.AvailabilityRefresh.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveQuote(adjustmentTypes []string) {
	if m == nil {
		return
	}
	m.QuotesCalculated.Inc()
	for _, t := range adjustmentTypes {
		m.RulesApplied.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) IncEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.EventsDispatched.WithLabelValues(eventType, outcome).Inc()
}

// Track returns a func that records the elapsed time of operation when called
// with the final error.
func (m *Metrics) Track(operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		if m == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.OperationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
