package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	accdomain "github.com/samilyak/stayflow/internal/accommodation/domain"
	"github.com/samilyak/stayflow/internal/booking/domain"
	paymentdomain "github.com/samilyak/stayflow/internal/payment/domain"
	"github.com/samilyak/stayflow/pkg/tracing"
)

var (
	ErrInvalidDates     = errors.New("check-out must be after check-in and check-in must not be in the past")
	ErrStayTooLong      = errors.New("stay exceeds the booking horizon")
	ErrDatesUnavailable = errors.New("dates are not available")
)

// Service drives the booking saga: it owns the state machine, emits the
// trigger and compensation events, and folds the other services' outcomes
// back into the aggregate.
type Service struct {
	log         *slog.Logger
	repo        BookingRepository
	acc         AccommodationClient
	notifier    Notifier
	horizonDays int64
}

func NewService(log *slog.Logger, repo BookingRepository, acc AccommodationClient, notifier Notifier, horizonDays int) *Service {
	return &Service{log: log, repo: repo, acc: acc, notifier: notifier, horizonDays: int64(horizonDays)}
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Create opens a PENDING booking and stages BookingCreated in the same
// transaction. The availability check here is advisory; the ledger's lock is
// what actually decides.
func (s *Service) Create(ctx context.Context, userID, accommodationID int64, checkIn, checkOut time.Time, phone string) (*domain.Booking, error) {
	checkIn, checkOut = day(checkIn), day(checkOut)
	nights := int64(checkOut.Sub(checkIn).Hours() / 24)
	if nights < 1 || checkIn.Before(day(time.Now())) {
		return nil, ErrInvalidDates
	}
	// The ledger only materializes slots that far out, so reject the stay
	// before asking it.
	if nights > s.horizonDays || day(checkOut).After(day(time.Now()).AddDate(0, 0, int(s.horizonDays))) {
		return nil, ErrStayTooLong
	}

	unit, err := s.acc.GetUnit(ctx, accommodationID)
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	available, err := s.acc.CheckAvailability(ctx, accommodationID, checkIn, checkOut)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	if !available {
		return nil, ErrDatesUnavailable
	}

	b := domain.NewBooking(userID, accommodationID, checkIn, checkOut, nights*unit.DailyRate, phone)
	id, err := s.repo.CreateWithOutbox(ctx, b, func(id int64) OutboxEvent {
		payload, _ := json.Marshal(domain.BookingCreated{
			BookingID:       id,
			UserID:          userID,
			AccommodationID: accommodationID,
			CheckIn:         checkIn,
			CheckOut:        checkOut,
			TotalPrice:      b.TotalPrice,
			Phone:           phone,
			ExpectedVersion: unit.Version,
		})
		return OutboxEvent{Type: domain.TypeBookingCreated, Payload: payload}
	}, s.headers(), tracing.Traceparent(ctx))
	if err != nil {
		return nil, err
	}
	b.ID = id
	s.log.Info("booking created", "booking_id", id, "user_id", userID, "total_price", b.TotalPrice)
	return b, nil
}

func (s *Service) Get(ctx context.Context, p Principal, id int64) (*domain.Booking, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*domain.Booking, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Cancel starts unwinding a confirmed booking and fans the compensation out
// to both sides.
func (s *Service) Cancel(ctx context.Context, p Principal, id int64) error {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(p, b); err != nil {
		return err
	}
	if err := b.StartCancellation(); err != nil {
		return err
	}
	s.log.Info("cancellation started", "booking_id", id, "refund_needed", b.RefundNeeded())
	return s.repo.UpdateWithOutbox(ctx, b, "cancellation requested",
		[]OutboxEvent{s.cancellationEvent(b)}, s.headers(), tracing.Traceparent(ctx))
}

// HandleInventoryFailed aborts the creation. CancellationRequested still goes
// out so the ledger releases anything a partial lock may have left behind.
func (s *Service) HandleInventoryFailed(ctx context.Context, ev accdomain.InventoryReservationFailed, headers map[string]string, traceparent string) error {
	b, err := s.repo.Get(ctx, ev.BookingID)
	if err != nil {
		return s.dropUnknown(ev.BookingID, err)
	}
	if err := b.FailCreation(); err != nil {
		return err
	}
	if err := s.repo.UpdateWithOutbox(ctx, b, "inventory reservation failed: "+ev.Reason,
		[]OutboxEvent{s.cancellationEvent(b)}, headers, traceparent); err != nil {
		return err
	}
	s.notify(ctx, b, "BOOKING_FAILED", "your booking could not be completed: "+ev.Reason)
	return nil
}

// HandlePaymentSuccess confirms the booking. From here on refundNeeded is
// set, so a later cancellation waits on both compensation halves.
func (s *Service) HandlePaymentSuccess(ctx context.Context, ev paymentdomain.PaymentSuccess, headers map[string]string, traceparent string) error {
	b, err := s.repo.Get(ctx, ev.BookingID)
	if err != nil {
		return s.dropUnknown(ev.BookingID, err)
	}
	if err := b.Confirm(ev.SessionRef); err != nil {
		return err
	}
	if err := s.repo.UpdateWithOutbox(ctx, b, "payment success", nil, headers, traceparent); err != nil {
		return err
	}
	s.notify(ctx, b, "BOOKING_CONFIRMED", "your booking is confirmed")
	return nil
}

func (s *Service) HandlePaymentFailed(ctx context.Context, ev paymentdomain.PaymentFailed, headers map[string]string, traceparent string) error {
	b, err := s.repo.Get(ctx, ev.BookingID)
	if err != nil {
		return s.dropUnknown(ev.BookingID, err)
	}
	if err := b.FailCreation(); err != nil {
		return err
	}
	if err := s.repo.UpdateWithOutbox(ctx, b, "payment failed: "+ev.Reason,
		[]OutboxEvent{s.cancellationEvent(b)}, headers, traceparent); err != nil {
		return err
	}
	s.notify(ctx, b, "BOOKING_FAILED", "your booking could not be completed: "+ev.Reason)
	return nil
}

// HandleDatesUnlocked folds the inventory half of the compensation barrier.
func (s *Service) HandleDatesUnlocked(ctx context.Context, ev accdomain.DatesUnlocked, headers map[string]string, traceparent string) error {
	b, err := s.repo.Get(ctx, ev.BookingID)
	if err != nil {
		return s.dropUnknown(ev.BookingID, err)
	}
	if err := b.MarkDatesUnlocked(); err != nil {
		return err
	}
	if err := s.repo.UpdateWithOutbox(ctx, b, "dates unlocked", nil, headers, traceparent); err != nil {
		return err
	}
	s.notifyIfFinal(ctx, b)
	return nil
}

// HandlePaymentCanceled folds the payment half of the compensation barrier.
func (s *Service) HandlePaymentCanceled(ctx context.Context, ev paymentdomain.PaymentCanceled, headers map[string]string, traceparent string) error {
	b, err := s.repo.Get(ctx, ev.BookingID)
	if err != nil {
		return s.dropUnknown(ev.BookingID, err)
	}
	if err := b.MarkPaymentCanceled(); err != nil {
		return err
	}
	if err := s.repo.UpdateWithOutbox(ctx, b, "payment canceled", nil, headers, traceparent); err != nil {
		return err
	}
	s.notifyIfFinal(ctx, b)
	return nil
}

func (s *Service) cancellationEvent(b *domain.Booking) OutboxEvent {
	payload, _ := json.Marshal(domain.CancellationRequested{
		BookingID:       b.ID,
		AccommodationID: b.AccommodationID,
		CheckIn:         b.CheckIn,
		CheckOut:        b.CheckOut,
		PaymentID:       b.PaymentRef(),
		RefundNeeded:    b.RefundNeeded(),
	})
	return OutboxEvent{Type: domain.TypeCancellationRequested, Payload: payload}
}

func (s *Service) headers() map[string]string {
	return map[string]string{"source": "booking-service"}
}

// dropUnknown swallows outcome events for bookings we have no record of.
// Retrying cannot make the row appear.
func (s *Service) dropUnknown(bookingID int64, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Error("event for unknown booking dropped", "booking_id", bookingID)
		return nil
	}
	return err
}

func (s *Service) notifyIfFinal(ctx context.Context, b *domain.Booking) {
	if !b.Terminal() {
		return
	}
	switch b.Status() {
	case domain.StatusCanceled:
		s.notify(ctx, b, "BOOKING_CANCELED", "your booking was canceled and the payment refunded")
	case domain.StatusExpired:
		s.notify(ctx, b, "BOOKING_EXPIRED", "your booking expired before payment completed")
	}
}

func (s *Service) notify(ctx context.Context, b *domain.Booking, kind, message string) {
	err := s.notifier.Notify(ctx, Notification{
		Type:      kind,
		BookingID: b.ID,
		UserID:    b.UserID,
		Phone:     b.Phone,
		Message:   message,
	})
	if err != nil {
		s.log.Warn("notification delivery failed", "booking_id", b.ID, "type", kind, "err", err)
	}
}

func authorize(p Principal, b *domain.Booking) error {
	if p.Role != "ADMIN" && b.UserID != p.UserID {
		return domain.ErrForbidden
	}
	return nil
}
