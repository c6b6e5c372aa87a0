// Package app wires the booking core from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"equipment-booking-backend/internal/config"
	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/events"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/metrics"
	"equipment-booking-backend/internal/repository/cache"
	"equipment-booking-backend/internal/repository/postgres"
	"equipment-booking-backend/internal/service"
)

// App holds the services of one process.
type App struct {
	Store      *postgres.Store
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Dispatcher *events.Dispatcher
	Ledger     service.AvailabilityLedger
	Booking    service.BookingService
	Pricing    service.PricingService

	publisher *events.AMQPPublisher
	redis     *redis.Client
}

// New builds every service on top of db. Booking events go to the log and,
// when amqp.url is set, to the broker queue. Pricing rules are cached in Redis
// when redis.addr is set.
func New(ctx context.Context, cfg *config.Config, db *sql.DB) (*App, error) {
	hours, err := cfg.BusinessHoursPolicy()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	store := postgres.NewStore(db)

	publishers := []events.Publisher{events.LogPublisher{}}
	var publisher *events.AMQPPublisher
	if cfg.AMQP.URL != "" {
		publisher = events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		publishers = append(publishers, publisher)
	}
	dispatcher := events.NewDispatcher(cfg.PublishTimeout(), m, publishers...)

	repos := store.Repos()
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		repos.Rules = cache.NewPricingRules(repos.Rules, rdb, cfg.RedisTTL())
	}
	clock := domain.SystemClock{}
	ledger := service.NewAvailabilityLedger(repos.Bookings, repos.Equipment)

	return &App{
		Store:      store,
		Registry:   registry,
		Metrics:    m,
		Dispatcher: dispatcher,
		Ledger:     ledger,
		Booking:    service.NewBookingService(store, repos, clock, dispatcher, hours, m),
		Pricing:    service.NewPricingService(repos.Equipment, repos.Rules, ledger, clock, m),
		publisher:  publisher,
		redis:      rdb,
	}, nil
}

// Close drains pending event deliveries, bounded by ctx, then drops the broker connection.
func (a *App) Close(ctx context.Context) error {
	err := a.Dispatcher.Shutdown(ctx)
	if err != nil {
		logger.Warn("Pending booking events were not delivered before shutdown", "error", err)
	}
	if a.publisher != nil {
		err = errors.Join(err, a.publisher.Close())
	}
	if a.redis != nil {
		err = errors.Join(err, a.redis.Close())
	}
	return err
}

// NewMailer picks the notification transport named by mail.provider.
func NewMailer(cfg *config.Config) events.Mailer {
	switch cfg.Mail.Provider {
	case "sendgrid":
		sg := cfg.Mail.SendGrid
		return events.NewSendGridMailer(sg.APIKey, sg.FromEmail, sg.FromName)
	case "smtp":
		smtp := cfg.Mail.SMTP
		return events.NewSMTPMailer(smtp.Host, smtp.Port, smtp.User, smtp.Password, smtp.From)
	default:
		return events.LogMailer{}
	}
}
