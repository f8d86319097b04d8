package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samilyak/stayflow/internal/payment/domain"
	"github.com/samilyak/stayflow/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) GetByBookingID(ctx context.Context, bookingID int64) (*domain.Payment, error) {
	return r.get(ctx, `SELECT id, booking_id, user_id, amount_to_pay, status, session_ref, session_url, charge_ref, created_at, updated_at
		FROM payments WHERE booking_id=$1`, bookingID)
}

func (r *Repository) GetBySessionRef(ctx context.Context, sessionRef string) (*domain.Payment, error) {
	return r.get(ctx, `SELECT id, booking_id, user_id, amount_to_pay, status, session_ref, session_url, charge_ref, created_at, updated_at
		FROM payments WHERE session_ref=$1`, sessionRef)
}

func (r *Repository) get(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	var p domain.Payment
	err := r.pool.QueryRow(ctx, query, arg).
		Scan(&p.ID, &p.BookingID, &p.UserID, &p.AmountToPay, &p.Status, &p.SessionRef,
			&p.SessionURL, &p.ChargeRef, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Save upserts on the payment id. Two racing Initiate calls build different
// ids, so the loser hits the booking_id unique constraint and errors; the
// redelivered message then finds the winner's row and returns it.
func (r *Repository) Save(ctx context.Context, p *domain.Payment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO payments (id, booking_id, user_id, amount_to_pay, status, session_ref, session_url, charge_ref, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, charge_ref=EXCLUDED.charge_ref, updated_at=EXCLUDED.updated_at`,
		p.ID, p.BookingID, p.UserID, p.AmountToPay, p.Status, p.SessionRef, p.SessionURL, p.ChargeRef, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *Repository) AppendOutbox(ctx context.Context, aggregateID, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	return outbox.Append(ctx, r.pool, "payment", aggregateID, eventType, payload, headers, traceparent)
}
