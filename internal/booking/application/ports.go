package application

import (
	"context"
	"time"

	"github.com/samilyak/stayflow/internal/booking/domain"
)

// OutboxEvent is an event staged for publication in the same transaction as
// the booking write it belongs to.
type OutboxEvent struct {
	Type    string
	Payload []byte
}

type BookingRepository interface {
	// CreateWithOutbox inserts the booking and, with the generated id in hand,
	// stages the event the callback builds in the same transaction, so the
	// saga never starts without its trigger on disk.
	CreateWithOutbox(ctx context.Context, b *domain.Booking, event func(id int64) OutboxEvent, headers map[string]string, traceparent string) (int64, error)
	// UpdateWithOutbox persists the booking's new state, appends a saga log
	// entry for the step, and stages any events in the same transaction.
	UpdateWithOutbox(ctx context.Context, b *domain.Booking, step string, events []OutboxEvent, headers map[string]string, traceparent string) error
	Get(ctx context.Context, id int64) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.Booking, error)
	// ListStalePending returns PENDING bookings created before the cutoff or
	// whose check-out has already passed.
	ListStalePending(ctx context.Context, cutoff, now time.Time) ([]*domain.Booking, error)
}

// UnitInfo is what the creation handshake needs from the inventory ledger:
// the rate to price the stay and the version to lock against.
type UnitInfo struct {
	ID        int64
	Version   int64
	DailyRate int64
}

type AccommodationClient interface {
	GetUnit(ctx context.Context, id int64) (UnitInfo, error)
	CheckAvailability(ctx context.Context, id int64, checkIn, checkOut time.Time) (bool, error)
}

type Notification struct {
	Type      string `json:"type"`
	BookingID int64  `json:"bookingId"`
	UserID    int64  `json:"userId"`
	Phone     string `json:"phoneNumber,omitempty"`
	Message   string `json:"message"`
}

// Notifier delivers user-facing notifications. Best effort: delivery failures
// never roll back a saga step.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Principal struct {
	UserID int64
	Role   string
}

// AuthClient resolves a bearer token into the calling user.
type AuthClient interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}
