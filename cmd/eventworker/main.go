package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"equipment-booking-backend/internal/app"
	"equipment-booking-backend/internal/config"
	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/events"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/metrics"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting booking event worker...", "queue", cfg.AMQP.Queue, "mail_provider", cfg.Mail.Provider)

	if cfg.AMQP.URL == "" {
		log.Fatalf("amqp.url is required for the event worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	a, err := app.New(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close(context.Background())
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, a.Registry); err != nil {
				logger.Error("Metrics server stopped", "error", err)
			}
		}()
	}

	notifier := events.NewNotifier(a.Store.CustomerRepository, a.Store.EquipmentRepository, app.NewMailer(cfg))

	consumer := events.NewAMQPConsumer(cfg.AMQP.URL, cfg.AMQP.Queue, cfg.AMQP.Prefetch,
		func(ctx context.Context, event domain.BookingEvent) error {
			err := notifier.Handle(ctx, event)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			a.Metrics.IncEvent(string(event.Type), outcome)
			return err
		})

	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("Event consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Booking event worker stopped. Goodbye!")
}
