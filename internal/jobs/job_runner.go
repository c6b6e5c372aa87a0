package jobs

import (
	"context"
	"errors"
	"fmt"

	"equipment-booking-backend/internal/config"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/repository"
	"equipment-booking-backend/internal/service"
)

// Job names accepted by RunByName.
const (
	JobRefreshAvailability = "refresh-availability"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	equipment repository.EquipmentRepository
	services  *Services
	config    *config.Config
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Booking service.BookingService
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(equipment repository.EquipmentRepository, services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		equipment: equipment,
		services:  services,
		config:    cfg,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	if err := jobFunc(); err != nil {
		logger.Error("Job failed", "job", jobName, "error", err)
		return err
	}
	logger.Info("Job completed", "job", jobName)
	return nil
}

// RefreshAvailability recomputes the availability status of every equipment.
// Status depends on the current time, so it drifts as bookings start and end
// even when nothing is written. A failure on one equipment does not stop the
// others; all failures are joined into the returned error.
func (jr *JobRunner) RefreshAvailability(ctx context.Context) error {
	return jr.runWithRecovery("RefreshAvailability", func() error {
		ids, err := jr.equipment.ListIDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list equipment: %w", err)
		}

		var errs []error
		updated := 0
		for _, id := range ids {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break
			}
			status, err := jr.services.Booking.RefreshAvailability(ctx, id)
			if err != nil {
				logger.WithEquipment(id).Error("Failed to refresh availability", "error", err)
				errs = append(errs, fmt.Errorf("equipment %d: %w", id, err))
				continue
			}
			logger.WithEquipment(id).Debug("Availability refreshed", "status", status)
			updated++
		}

		logger.Info("Refreshed equipment availability", "count", updated, "failed", len(errs))
		return errors.Join(errs...)
	})
}

// RunByName runs a single job once, for the -run-once flag.
func (jr *JobRunner) RunByName(ctx context.Context, name string) error {
	switch name {
	case JobRefreshAvailability:
		return jr.RefreshAvailability(ctx)
	default:
		return fmt.Errorf("unknown job: %s", name)
	}
}
