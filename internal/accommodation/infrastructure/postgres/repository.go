package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samilyak/stayflow/internal/accommodation/domain"
	"github.com/samilyak/stayflow/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) CreateUnit(ctx context.Context, dailyRate int64, totalCapacity int) (domain.Unit, error) {
	now := time.Now().UTC()
	var unit domain.Unit
	err := r.pool.QueryRow(ctx, `INSERT INTO accommodations (version, daily_rate, total_capacity, created_at, updated_at)
		VALUES (0,$1,$2,$3,$3) RETURNING id, version, daily_rate, total_capacity, created_at, updated_at`,
		dailyRate, totalCapacity, now).
		Scan(&unit.ID, &unit.Version, &unit.DailyRate, &unit.TotalCapacity, &unit.CreatedAt, &unit.UpdatedAt)
	return unit, err
}

func (r *Repository) UpdateUnit(ctx context.Context, id int64, dailyRate int64, totalCapacity int) (domain.Unit, error) {
	var unit domain.Unit
	err := r.pool.QueryRow(ctx, `UPDATE accommodations SET daily_rate=$2, total_capacity=$3, updated_at=$4
		WHERE id=$1 RETURNING id, version, daily_rate, total_capacity, created_at, updated_at`,
		id, dailyRate, totalCapacity, time.Now().UTC()).
		Scan(&unit.ID, &unit.Version, &unit.DailyRate, &unit.TotalCapacity, &unit.CreatedAt, &unit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Unit{}, domain.ErrNotFound
	}
	return unit, err
}

func (r *Repository) GetUnit(ctx context.Context, id int64) (domain.Unit, error) {
	var unit domain.Unit
	err := r.pool.QueryRow(ctx, `SELECT id, version, daily_rate, total_capacity, created_at, updated_at
		FROM accommodations WHERE id=$1`, id).
		Scan(&unit.ID, &unit.Version, &unit.DailyRate, &unit.TotalCapacity, &unit.CreatedAt, &unit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Unit{}, domain.ErrNotFound
	}
	return unit, err
}

// ReplaceSlots wipes and rebuilds the unit's slot horizon. Destructive: any
// existing locks are lost, so callers must not run it with in-flight stays.
func (r *Repository) ReplaceSlots(ctx context.Context, id int64, start time.Time, days int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM availability_slots WHERE accommodation_id=$1`, id); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i := 0; i < days; i++ {
		batch.Queue(`INSERT INTO availability_slots (accommodation_id, date, locked) VALUES ($1,$2,false)`,
			id, start.AddDate(0, 0, i))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) RangeAvailable(ctx context.Context, id int64, checkIn, checkOut time.Time) (bool, error) {
	nights := int(checkOut.Sub(checkIn).Hours() / 24)
	var total, locked int
	err := r.pool.QueryRow(ctx, `SELECT count(*), count(*) FILTER (WHERE locked)
		FROM availability_slots WHERE accommodation_id=$1 AND date >= $2 AND date < $3`,
		id, checkIn, checkOut).Scan(&total, &locked)
	if err != nil {
		return false, err
	}
	return total == nights && locked == 0, nil
}

func (r *Repository) LockRange(ctx context.Context, id int64, checkIn, checkOut time.Time, expectedVersion int64) (domain.LockResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.LockResult{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	res, err := lockRangeTx(ctx, tx, id, checkIn, checkOut, expectedVersion)
	if err != nil {
		return domain.LockResult{}, err
	}
	return res, tx.Commit(ctx)
}

// lockRangeTx holds the optimistic-concurrency gate: the unit row is locked
// FOR UPDATE, the version compared, every slot in range verified free, then
// slots flip and the version bumps, all inside the caller's transaction.
func lockRangeTx(ctx context.Context, tx pgx.Tx, id int64, checkIn, checkOut time.Time, expectedVersion int64) (domain.LockResult, error) {
	var version, dailyRate int64
	err := tx.QueryRow(ctx, `SELECT version, daily_rate FROM accommodations WHERE id=$1 FOR UPDATE`, id).
		Scan(&version, &dailyRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LockResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LockResult{}, err
	}

	if version != expectedVersion {
		return domain.LockResult{Success: false, Reason: domain.ReasonStaleVersion}, nil
	}

	nights := int(checkOut.Sub(checkIn).Hours() / 24)
	var total, locked int
	err = tx.QueryRow(ctx, `SELECT count(*), count(*) FILTER (WHERE locked)
		FROM availability_slots WHERE accommodation_id=$1 AND date >= $2 AND date < $3`,
		id, checkIn, checkOut).Scan(&total, &locked)
	if err != nil {
		return domain.LockResult{}, err
	}
	if total != nights || locked > 0 {
		return domain.LockResult{Success: false, Reason: domain.ReasonDatesTaken}, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE availability_slots SET locked=true
		WHERE accommodation_id=$1 AND date >= $2 AND date < $3`, id, checkIn, checkOut); err != nil {
		return domain.LockResult{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE accommodations SET version=version+1, updated_at=$2 WHERE id=$1`,
		id, time.Now().UTC()); err != nil {
		return domain.LockResult{}, err
	}
	return domain.LockResult{Success: true, DailyRate: dailyRate}, nil
}

func (r *Repository) Reserve(ctx context.Context, bookingID, id int64, checkIn, checkOut time.Time, expectedVersion int64) (domain.LockResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.LockResult{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Redelivered event: replay the recorded outcome instead of re-locking.
	var ok bool
	var reason string
	var dailyRate int64
	err = tx.QueryRow(ctx, `SELECT ok, reason, daily_rate FROM inventory_reservations WHERE booking_id=$1`, bookingID).
		Scan(&ok, &reason, &dailyRate)
	if err == nil {
		return domain.LockResult{Success: ok, Reason: reason, DailyRate: dailyRate}, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.LockResult{}, err
	}

	res, err := lockRangeTx(ctx, tx, id, checkIn, checkOut, expectedVersion)
	if err != nil {
		return domain.LockResult{}, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO inventory_reservations (booking_id, accommodation_id, ok, reason, daily_rate, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		bookingID, id, res.Success, res.Reason, res.DailyRate, time.Now().UTC()); err != nil {
		return domain.LockResult{}, err
	}
	return res, tx.Commit(ctx)
}

func (r *Repository) UnlockRange(ctx context.Context, id int64, checkIn, checkOut time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE availability_slots SET locked=false
		WHERE accommodation_id=$1 AND date >= $2 AND date < $3`, id, checkIn, checkOut)
	return err
}

func (r *Repository) AppendOutbox(ctx context.Context, aggregateID, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	return outbox.Append(ctx, r.pool, "accommodation", aggregateID, eventType, payload, headers, traceparent)
}
