package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/repository"
)

const bookingColumns = `id, equipment_id, customer_id, start_date, end_date, status, total_amount, deposit_amount, notes, terms_accepted,
	is_recurring, recurrence_pattern, recurrence_end_date, parent_booking_id, cancellation_reason, cancelled_at, created_at, updated_at`

type bookingRepository struct {
	db DBTX
}

func NewBookingRepository(db DBTX) repository.BookingRepository {
	return &bookingRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var (
		b             domain.Booking
		deposit       sql.NullFloat64
		pattern       sql.NullString
		recurrenceEnd sql.NullTime
		parentID      sql.NullInt64
		cancelReason  sql.NullString
		cancelledAt   sql.NullTime
	)
	err := row.Scan(&b.ID, &b.EquipmentID, &b.CustomerID, &b.StartDate, &b.EndDate, &b.Status, &b.TotalAmount, &deposit, &b.Notes, &b.TermsAccepted,
		&b.IsRecurring, &pattern, &recurrenceEnd, &parentID, &cancelReason, &cancelledAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if deposit.Valid {
		b.DepositAmount = &deposit.Float64
	}
	if pattern.Valid {
		b.RecurrencePattern = domain.RecurrencePattern(pattern.String)
	}
	if recurrenceEnd.Valid {
		b.RecurrenceEndDate = &recurrenceEnd.Time
	}
	if parentID.Valid {
		b.ParentBookingID = &parentID.Int64
	}
	if cancelReason.Valid {
		b.CancellationReason = &cancelReason.String
	}
	if cancelledAt.Valid {
		b.CancelledAt = &cancelledAt.Time
	}
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func nullPattern(p domain.RecurrencePattern) sql.NullString {
	return sql.NullString{String: string(p), Valid: p != ""}
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `INSERT INTO bookings (equipment_id, customer_id, start_date, end_date, status, total_amount, deposit_amount, notes, terms_accepted,
	          is_recurring, recurrence_pattern, recurrence_end_date, parent_booking_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	logger.DatabaseCall("create_booking", "INSERT INTO bookings", "equipment_id", b.EquipmentID)
	err := r.db.QueryRowContext(ctx, query, b.EquipmentID, b.CustomerID, b.StartDate, b.EndDate, b.Status, b.TotalAmount, b.DepositAmount, b.Notes, b.TermsAccepted,
		b.IsRecurring, nullPattern(b.RecurrencePattern), b.RecurrenceEndDate, b.ParentBookingID, b.CreatedAt, b.UpdatedAt).Scan(&b.ID)
	logger.DatabaseResult("create_booking", 1, err, "booking_id", b.ID)
	return err
}

func (r *bookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	query := `UPDATE bookings SET start_date=$1, end_date=$2, status=$3, total_amount=$4, deposit_amount=$5, notes=$6,
	          is_recurring=$7, recurrence_pattern=$8, recurrence_end_date=$9, cancellation_reason=$10, cancelled_at=$11, updated_at=$12
	          WHERE id=$13`
	b.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, query, b.StartDate, b.EndDate, b.Status, b.TotalAmount, b.DepositAmount, b.Notes,
		b.IsRecurring, nullPattern(b.RecurrencePattern), b.RecurrenceEndDate, b.CancellationReason, b.CancelledAt, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *bookingRepository) ListActiveInRange(ctx context.Context, equipmentID int64, window domain.Interval, excludeID int64) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE equipment_id = $1 AND status <> 'cancelled'
	            AND start_date < $3 AND end_date > $2
	            AND ($4::bigint = 0 OR id <> $4)
	          ORDER BY start_date, id`
	rows, err := r.db.QueryContext(ctx, query, equipmentID, window.Start, window.End, excludeID)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (r *bookingRepository) ListActive(ctx context.Context, equipmentID int64, since time.Time) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE equipment_id = $1 AND status <> 'cancelled'
	            AND (end_date > $2 OR status = 'in_progress')
	          ORDER BY start_date, id`
	rows, err := r.db.QueryContext(ctx, query, equipmentID, since)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (r *bookingRepository) ListOccurrences(ctx context.Context, parentID int64) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE parent_booking_id = $1 ORDER BY start_date, id`
	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (r *bookingRepository) DeleteOccurrences(ctx context.Context, parentID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE parent_booking_id = $1`, parentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *bookingRepository) CancelOccurrencesAfter(ctx context.Context, parentID int64, after time.Time, reason string, cancelledAt time.Time) (int64, error) {
	query := `UPDATE bookings SET status = 'cancelled', cancellation_reason = $3, cancelled_at = $4, updated_at = $4
	          WHERE parent_booking_id = $1 AND start_date > $2 AND status <> 'cancelled'`
	res, err := r.db.ExecContext(ctx, query, parentID, after, reason, cancelledAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
