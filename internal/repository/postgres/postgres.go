package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/repository"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	repository.EquipmentRepository
	repository.CustomerRepository
	repository.BookingRepository
	repository.PricingRuleRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                    db,
		EquipmentRepository:   NewEquipmentRepository(db),
		CustomerRepository:    NewCustomerRepository(db),
		BookingRepository:     NewBookingRepository(db),
		PricingRuleRepository: NewPricingRuleRepository(db),
	}
}

// Repos exposes the non-transactional repositories.
func (s *Store) Repos() repository.Repos {
	return reposFor(s.db)
}

func reposFor(q DBTX) repository.Repos {
	return repository.Repos{
		Equipment: NewEquipmentRepository(q),
		Customers: NewCustomerRepository(q),
		Bookings:  NewBookingRepository(q),
		Rules:     NewPricingRuleRepository(q),
	}
}

// WithinEquipment runs fn in a transaction holding pg_advisory_xact_lock(equipmentID).
// Writers for the same equipment queue on the lock, so a conflict check inside fn
// sees every booking committed before it. The lock is released on commit or rollback.
// Errors returned by fn are passed through unchanged after rollback.
func (s *Store) WithinEquipment(ctx context.Context, equipmentID int64, fn func(ctx context.Context, repos repository.Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	logger.DatabaseCall("advisory_lock", "SELECT pg_advisory_xact_lock($1)", "equipment_id", equipmentID)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, equipmentID); err != nil {
		logger.DatabaseResult("advisory_lock", 0, err, "equipment_id", equipmentID)
		return fmt.Errorf("lock equipment %d: %w", equipmentID, err)
	}

	if err := fn(ctx, reposFor(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables used by the store if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
