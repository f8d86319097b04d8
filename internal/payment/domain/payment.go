package domain

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusCanceled Status = "CANCELED"
	StatusFailed   Status = "FAILED"
	StatusRefunded Status = "REFUNDED"
)

var ErrNotFound = errors.New("payment not found")

// Payment tracks one booking's external payment session. ChargeRef is set
// exactly when real funds were captured; refund is only attempted when it is.
type Payment struct {
	ID          string // uuid
	BookingID   int64
	UserID      int64
	AmountToPay int64
	Status      Status
	SessionRef  string
	SessionURL  string
	ChargeRef   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
