package postgres

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samilyak/stayflow/internal/booking/application"
	"github.com/samilyak/stayflow/internal/booking/domain"
	"github.com/samilyak/stayflow/pkg/outbox"
)

const bookingColumns = `id, user_id, accommodation_id, check_in, check_out, total_price, phone, payment_ref,
	status, refund_needed, dates_unlocked, payment_canceled, created_at, updated_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) CreateWithOutbox(ctx context.Context, b *domain.Booking, event func(id int64) application.OutboxEvent, headers map[string]string, traceparent string) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id int64
	err = tx.QueryRow(ctx, `INSERT INTO bookings (user_id, accommodation_id, check_in, check_out, total_price, phone, payment_ref,
			status, refund_needed, dates_unlocked, payment_canceled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		b.UserID, b.AccommodationID, b.CheckIn, b.CheckOut, b.TotalPrice, b.Phone, b.PaymentRef(),
		b.Status(), b.RefundNeeded(), b.DatesUnlocked(), b.PaymentCanceled(), b.CreatedAt, b.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}

	if err := appendSagaLog(ctx, tx, id, "booking created", b.Status()); err != nil {
		return 0, err
	}
	ev := event(id)
	if err := outbox.Append(ctx, tx, "booking", strconv.FormatInt(id, 10), ev.Type, ev.Payload, headers, traceparent); err != nil {
		return 0, err
	}
	return id, tx.Commit(ctx)
}

func (r *Repository) UpdateWithOutbox(ctx context.Context, b *domain.Booking, step string, events []application.OutboxEvent, headers map[string]string, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `UPDATE bookings SET status=$2, payment_ref=$3, refund_needed=$4,
			dates_unlocked=$5, payment_canceled=$6, updated_at=$7 WHERE id=$1`,
		b.ID, b.Status(), b.PaymentRef(), b.RefundNeeded(), b.DatesUnlocked(), b.PaymentCanceled(), b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := appendSagaLog(ctx, tx, b.ID, step, b.Status()); err != nil {
		return err
	}
	for _, ev := range events {
		if err := outbox.Append(ctx, tx, "booking", strconv.FormatInt(b.ID, 10), ev.Type, ev.Payload, headers, traceparent); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *Repository) ListStalePending(ctx context.Context, cutoff, now time.Time) ([]*domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status=$1 AND (created_at < $2 OR check_out < $3)`, domain.StatusPending, cutoff, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// saga_log is forensic: an append-only trace of every step the saga took.
// Nothing reads it at runtime.
func appendSagaLog(ctx context.Context, tx pgx.Tx, bookingID int64, step string, status domain.Status) error {
	_, err := tx.Exec(ctx, `INSERT INTO saga_log (booking_id, step, status, created_at) VALUES ($1,$2,$3,$4)`,
		bookingID, step, status, time.Now().UTC())
	return err
}

func collect(rows pgx.Rows) ([]*domain.Booking, error) {
	var out []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		id, userID, accommodationID, totalPrice      int64
		checkIn, checkOut, createdAt, updatedAt      time.Time
		phone, paymentRef                            string
		status                                       domain.Status
		refundNeeded, datesUnlocked, paymentCanceled bool
	)
	err := row.Scan(&id, &userID, &accommodationID, &checkIn, &checkOut, &totalPrice, &phone, &paymentRef,
		&status, &refundNeeded, &datesUnlocked, &paymentCanceled, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	return domain.Restore(id, userID, accommodationID, checkIn, checkOut, totalPrice, phone, paymentRef,
		status, refundNeeded, datesUnlocked, paymentCanceled, createdAt, updatedAt), nil
}
