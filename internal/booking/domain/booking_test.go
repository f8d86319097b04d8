package domain

import (
	"errors"
	"testing"
	"time"
)

func newTestBooking(t *testing.T) *Booking {
	t.Helper()
	checkIn := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	return NewBooking(7, 42, checkIn, checkIn.AddDate(0, 0, 3), 30000, "+15550100")
}

func TestNewBookingStartsPending(t *testing.T) {
	b := newTestBooking(t)
	if b.Status() != StatusPending {
		t.Fatalf("status = %s, want PENDING", b.Status())
	}
	if b.RefundNeeded() {
		t.Fatal("new booking must not need a refund")
	}
}

func TestConfirm(t *testing.T) {
	b := newTestBooking(t)
	if err := b.Confirm("sess_1"); err != nil {
		t.Fatalf("confirm from PENDING: %v", err)
	}
	if b.Status() != StatusConfirmed || b.PaymentRef() != "sess_1" || !b.RefundNeeded() {
		t.Fatalf("after confirm: status=%s ref=%q refund=%v", b.Status(), b.PaymentRef(), b.RefundNeeded())
	}

	// redelivered success is a no-op
	if err := b.Confirm("sess_1"); err != nil {
		t.Fatalf("redelivered confirm: %v", err)
	}
	if b.Status() != StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", b.Status())
	}
}

func TestConfirmAfterCancelIsIllegal(t *testing.T) {
	b := newTestBooking(t)
	if err := b.Confirm("sess_1"); err != nil {
		t.Fatal(err)
	}
	if err := b.StartCancellation(); err != nil {
		t.Fatal(err)
	}
	if err := b.Confirm("sess_1"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("confirm from CANCELING: err = %v, want ErrIllegalTransition", err)
	}
}

func TestFailCreation(t *testing.T) {
	b := newTestBooking(t)
	if err := b.FailCreation(); err != nil {
		t.Fatalf("fail creation from PENDING: %v", err)
	}
	if b.Status() != StatusCanceling || b.RefundNeeded() {
		t.Fatalf("after fail: status=%s refund=%v", b.Status(), b.RefundNeeded())
	}
	// redelivery stays quiet
	if err := b.FailCreation(); err != nil {
		t.Fatalf("redelivered fail: %v", err)
	}

	confirmed := newTestBooking(t)
	_ = confirmed.Confirm("sess_1")
	if err := confirmed.FailCreation(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("fail creation from CONFIRMED: err = %v, want ErrIllegalTransition", err)
	}
}

func TestStartCancellation(t *testing.T) {
	b := newTestBooking(t)
	if err := b.StartCancellation(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("cancel from PENDING: err = %v, want ErrIllegalTransition", err)
	}
	_ = b.Confirm("sess_1")
	if err := b.StartCancellation(); err != nil {
		t.Fatalf("cancel from CONFIRMED: %v", err)
	}
	if err := b.StartCancellation(); err != nil {
		t.Fatalf("repeated cancel: %v", err)
	}
	if b.Status() != StatusCanceling {
		t.Fatalf("status = %s, want CANCELING", b.Status())
	}
}

// The two compensation signals arrive independently; the final state must not
// depend on their order.
func TestCancellationBarrierBothOrders(t *testing.T) {
	steps := map[string][]func(*Booking) error{
		"dates-first":   {(*Booking).MarkDatesUnlocked, (*Booking).MarkPaymentCanceled},
		"payment-first": {(*Booking).MarkPaymentCanceled, (*Booking).MarkDatesUnlocked},
	}
	for name, order := range steps {
		t.Run(name, func(t *testing.T) {
			b := newTestBooking(t)
			_ = b.Confirm("sess_1")
			_ = b.StartCancellation()

			if err := order[0](b); err != nil {
				t.Fatal(err)
			}
			if b.Terminal() {
				t.Fatal("terminal after one half of the barrier")
			}
			if err := order[1](b); err != nil {
				t.Fatal(err)
			}
			if b.Status() != StatusCanceled {
				t.Fatalf("status = %s, want CANCELED", b.Status())
			}
		})
	}
}

// Without a refund owed the payment half is vacuous: the inventory signal
// alone finalizes, and a late PaymentCanceled is absorbed silently.
func TestExpiryWithoutRefund(t *testing.T) {
	b := newTestBooking(t)
	_ = b.FailCreation()

	if err := b.MarkDatesUnlocked(); err != nil {
		t.Fatal(err)
	}
	if b.Status() != StatusExpired {
		t.Fatalf("status = %s, want EXPIRED", b.Status())
	}
	if err := b.MarkPaymentCanceled(); err != nil {
		t.Fatalf("late payment signal on terminal booking: %v", err)
	}
	if b.Status() != StatusExpired {
		t.Fatalf("status = %s, want EXPIRED after late signal", b.Status())
	}
}

func TestPaymentSignalAloneDoesNotFinalizeExpiry(t *testing.T) {
	b := newTestBooking(t)
	_ = b.FailCreation()

	if err := b.MarkPaymentCanceled(); err != nil {
		t.Fatal(err)
	}
	if b.Terminal() {
		t.Fatal("payment half alone must not finalize a no-refund cancellation")
	}
	if err := b.MarkDatesUnlocked(); err != nil {
		t.Fatal(err)
	}
	if b.Status() != StatusExpired {
		t.Fatalf("status = %s, want EXPIRED", b.Status())
	}
}

func TestBarrierMarksIdempotent(t *testing.T) {
	b := newTestBooking(t)
	_ = b.Confirm("sess_1")
	_ = b.StartCancellation()

	for i := 0; i < 3; i++ {
		if err := b.MarkDatesUnlocked(); err != nil {
			t.Fatalf("mark %d: %v", i, err)
		}
	}
	if b.Terminal() {
		t.Fatal("repeated inventory signal must not satisfy the payment half")
	}
	if err := b.MarkPaymentCanceled(); err != nil {
		t.Fatal(err)
	}
	if b.Status() != StatusCanceled {
		t.Fatalf("status = %s, want CANCELED", b.Status())
	}
}

func TestBarrierMarksFromWrongState(t *testing.T) {
	b := newTestBooking(t)
	if err := b.MarkDatesUnlocked(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("dates unlocked from PENDING: err = %v, want ErrIllegalTransition", err)
	}
	if err := b.MarkPaymentCanceled(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("payment canceled from PENDING: err = %v, want ErrIllegalTransition", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	b := newTestBooking(t)
	_ = b.Confirm("sess_9")
	_ = b.StartCancellation()
	_ = b.MarkDatesUnlocked()

	r := Restore(b.ID, b.UserID, b.AccommodationID, b.CheckIn, b.CheckOut, b.TotalPrice, b.Phone, b.PaymentRef(),
		b.Status(), b.RefundNeeded(), b.DatesUnlocked(), b.PaymentCanceled(), b.CreatedAt, b.UpdatedAt)

	if err := r.MarkPaymentCanceled(); err != nil {
		t.Fatal(err)
	}
	if r.Status() != StatusCanceled {
		t.Fatalf("restored booking finalized to %s, want CANCELED", r.Status())
	}
}
