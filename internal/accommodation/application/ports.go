package application

import (
	"context"
	"time"

	"github.com/samilyak/stayflow/internal/accommodation/domain"
)

// LedgerStore owns units and their per-day slots. LockRange and Reserve are
// atomic: version check, slot check, slot update and version bump commit in
// one storage transaction or not at all.
type LedgerStore interface {
	CreateUnit(ctx context.Context, dailyRate int64, totalCapacity int) (domain.Unit, error)
	UpdateUnit(ctx context.Context, id int64, dailyRate int64, totalCapacity int) (domain.Unit, error)
	GetUnit(ctx context.Context, id int64) (domain.Unit, error)

	ReplaceSlots(ctx context.Context, id int64, start time.Time, days int) error
	RangeAvailable(ctx context.Context, id int64, checkIn, checkOut time.Time) (bool, error)

	// LockRange is the plain optimistic lock used by the synchronous surface.
	LockRange(ctx context.Context, id int64, checkIn, checkOut time.Time, expectedVersion int64) (domain.LockResult, error)
	// Reserve wraps LockRange with a per-booking record so a redelivered
	// BookingCreated replays the stored outcome instead of double-locking.
	Reserve(ctx context.Context, bookingID, id int64, checkIn, checkOut time.Time, expectedVersion int64) (domain.LockResult, error)
	UnlockRange(ctx context.Context, id int64, checkIn, checkOut time.Time) error

	AppendOutbox(ctx context.Context, aggregateID, eventType string, payload []byte, headers map[string]string, traceparent string) error
}
