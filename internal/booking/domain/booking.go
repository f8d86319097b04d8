package domain

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCanceling Status = "CANCELING"
	StatusCanceled  Status = "CANCELED"
	StatusExpired   Status = "EXPIRED"
)

// ErrIllegalTransition reports a transition attempted from a state that does
// not allow it. Callers treat it as an ordering bug: log loudly, ack the
// message, dead-letter after the retry budget.
var ErrIllegalTransition = errors.New("illegal booking transition")

var (
	ErrNotFound  = errors.New("booking not found")
	ErrForbidden = errors.New("booking belongs to another user")
)

// Booking is the saga's source of truth. All mutation goes through the
// transition methods below; the fields they guard are unexported so nothing
// outside the aggregate can flip them directly.
type Booking struct {
	ID              int64
	UserID          int64
	AccommodationID int64
	CheckIn         time.Time
	CheckOut        time.Time
	TotalPrice      int64
	Phone           string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	status          Status
	paymentRef      string
	refundNeeded    bool
	datesUnlocked   bool
	paymentCanceled bool
}

func NewBooking(userID, accommodationID int64, checkIn, checkOut time.Time, totalPrice int64, phone string) *Booking {
	now := time.Now().UTC()
	return &Booking{
		UserID:          userID,
		AccommodationID: accommodationID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		TotalPrice:      totalPrice,
		Phone:           phone,
		CreatedAt:       now,
		UpdatedAt:       now,
		status:          StatusPending,
	}
}

// Restore rehydrates a booking from storage, bypassing the transition guards.
// Only repositories call it.
func Restore(id, userID, accommodationID int64, checkIn, checkOut time.Time, totalPrice int64, phone, paymentRef string,
	status Status, refundNeeded, datesUnlocked, paymentCanceled bool, createdAt, updatedAt time.Time) *Booking {
	return &Booking{
		ID:              id,
		UserID:          userID,
		AccommodationID: accommodationID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		TotalPrice:      totalPrice,
		Phone:           phone,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		status:          status,
		paymentRef:      paymentRef,
		refundNeeded:    refundNeeded,
		datesUnlocked:   datesUnlocked,
		paymentCanceled: paymentCanceled,
	}
}

func (b *Booking) Status() Status        { return b.status }
func (b *Booking) PaymentRef() string    { return b.paymentRef }
func (b *Booking) RefundNeeded() bool    { return b.refundNeeded }
func (b *Booking) DatesUnlocked() bool   { return b.datesUnlocked }
func (b *Booking) PaymentCanceled() bool { return b.paymentCanceled }

func (b *Booking) Terminal() bool {
	return b.status == StatusCanceled || b.status == StatusExpired
}

// Confirm moves PENDING to CONFIRMED once payment completed. From this point
// money has moved, so any later cancellation must refund.
func (b *Booking) Confirm(paymentRef string) error {
	switch b.status {
	case StatusPending:
		b.status = StatusConfirmed
		b.paymentRef = paymentRef
		b.refundNeeded = true
		b.touch()
		return nil
	case StatusConfirmed:
		return nil // redelivered outcome
	default:
		return fmt.Errorf("%w: confirm from %s", ErrIllegalTransition, b.status)
	}
}

// FailCreation aborts a PENDING booking. No funds were captured, so the
// cancellation barrier only waits for the inventory side.
func (b *Booking) FailCreation() error {
	switch b.status {
	case StatusPending:
		b.status = StatusCanceling
		b.refundNeeded = false
		b.touch()
		return nil
	case StatusCanceling, StatusCanceled, StatusExpired:
		return nil // already on the failure path
	default:
		return fmt.Errorf("%w: fail creation from %s", ErrIllegalTransition, b.status)
	}
}

// StartCancellation begins unwinding a CONFIRMED booking.
func (b *Booking) StartCancellation() error {
	switch b.status {
	case StatusConfirmed:
		b.status = StatusCanceling
		b.touch()
		return nil
	case StatusCanceling, StatusCanceled:
		return nil
	default:
		return fmt.Errorf("%w: start cancellation from %s", ErrIllegalTransition, b.status)
	}
}

// MarkDatesUnlocked records the inventory half of the compensation barrier.
func (b *Booking) MarkDatesUnlocked() error {
	if b.datesUnlocked || b.Terminal() {
		return nil
	}
	if b.status != StatusCanceling {
		return fmt.Errorf("%w: dates unlocked from %s", ErrIllegalTransition, b.status)
	}
	b.datesUnlocked = true
	b.touch()
	b.tryFinishCancellation()
	return nil
}

// MarkPaymentCanceled records the payment half of the compensation barrier.
func (b *Booking) MarkPaymentCanceled() error {
	if b.paymentCanceled || b.Terminal() {
		return nil
	}
	if b.status != StatusCanceling {
		return fmt.Errorf("%w: payment canceled from %s", ErrIllegalTransition, b.status)
	}
	b.paymentCanceled = true
	b.touch()
	b.tryFinishCancellation()
	return nil
}

// tryFinishCancellation finalizes once the independent compensations have
// landed. When no refund is owed the payment half is vacuously satisfied and
// the booking expires on the inventory signal alone, so a payment event that
// never arrives cannot wedge the saga.
func (b *Booking) tryFinishCancellation() {
	if b.status != StatusCanceling {
		return
	}
	if b.refundNeeded {
		if b.datesUnlocked && b.paymentCanceled {
			b.status = StatusCanceled
			b.touch()
		}
		return
	}
	if b.datesUnlocked {
		b.status = StatusExpired
		b.touch()
	}
}

func (b *Booking) touch() {
	b.UpdatedAt = time.Now().UTC()
}
