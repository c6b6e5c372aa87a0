package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"equipment-booking-backend/internal/app"
	"equipment-booking-backend/internal/config"
	"equipment-booking-backend/internal/jobs"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/metrics"
	"equipment-booking-backend/internal/repository/postgres"
	"equipment-booking-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'refresh-availability')")
	migrate := flag.Bool("migrate", false, "Create missing tables before starting")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting equipment booking cronjob runner...", "log_level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	if *migrate {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		logger.Info("Database schema is up to date")
	}

	// Initialize Repositories and Services
	a, err := app.New(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PublishTimeout())
		defer cancel()
		_ = a.Close(shutdownCtx)
	}()

	jobRunner := jobs.NewJobRunner(a.Store.EquipmentRepository, &jobs.Services{Booking: a.Booking}, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := jobRunner.RunByName(ctx, *runOnce); err != nil {
			fmt.Fprintf(os.Stderr, "Job %s failed: %v\n", *runOnce, err)
			fmt.Fprintf(os.Stderr, "Available jobs:\n  - %s\n", jobs.JobRefreshAvailability)
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, a.Registry); err != nil {
				logger.Error("Metrics server stopped", "error", err)
			}
		}()
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(ctx, jobRunner)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.", "next_run", cronScheduler.NextRun())

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}
