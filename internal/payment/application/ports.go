package application

import (
	"context"

	"github.com/samilyak/stayflow/internal/payment/domain"
)

type PaymentRepository interface {
	GetByBookingID(ctx context.Context, bookingID int64) (*domain.Payment, error)
	GetBySessionRef(ctx context.Context, sessionRef string) (*domain.Payment, error)
	Save(ctx context.Context, p *domain.Payment) error
	AppendOutbox(ctx context.Context, aggregateID, eventType string, payload []byte, headers map[string]string, traceparent string) error
}

type Session struct {
	ID  string
	URL string
}

// Gateway is the external payment provider. Refund must tolerate re-invocation
// after a partial failure (refund landed, local write did not).
type Gateway interface {
	CreateSession(ctx context.Context, bookingID, amountCents int64) (Session, error)
	Refund(ctx context.Context, chargeRef string) error
}
