package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	accdomain "github.com/samilyak/stayflow/internal/accommodation/domain"
	bookingdomain "github.com/samilyak/stayflow/internal/booking/domain"
	"github.com/samilyak/stayflow/internal/payment/domain"
)

type Service struct {
	log     *slog.Logger
	repo    PaymentRepository
	gateway Gateway
}

func NewService(log *slog.Logger, repo PaymentRepository, gateway Gateway) *Service {
	return &Service{log: log, repo: repo, gateway: gateway}
}

// Initiate opens a checkout session for the booking. Idempotent on bookingID:
// a redelivered InventoryReserved returns the payment already on file.
func (s *Service) Initiate(ctx context.Context, bookingID, userID, amountCents int64) (*domain.Payment, error) {
	existing, err := s.repo.GetByBookingID(ctx, bookingID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	session, err := s.gateway.CreateSession(ctx, bookingID, amountCents)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:          uuid.NewString(),
		BookingID:   bookingID,
		UserID:      userID,
		AmountToPay: amountCents,
		Status:      domain.StatusPending,
		SessionRef:  session.ID,
		SessionURL:  session.URL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("payment initiated", "booking_id", bookingID, "session_ref", session.ID)
	return p, nil
}

// ConfirmCharge marks the session's payment as paid. Replayed webhooks with
// the same charge are no-ops; confirming a canceled payment is an error.
func (s *Service) ConfirmCharge(ctx context.Context, sessionRef, chargeRef string) (*domain.Payment, error) {
	p, err := s.repo.GetBySessionRef(ctx, sessionRef)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case domain.StatusPaid:
		return p, nil
	case domain.StatusPending:
		p.Status = domain.StatusPaid
		p.ChargeRef = chargeRef
		p.UpdatedAt = time.Now().UTC()
		if err := s.repo.Save(ctx, p); err != nil {
			return nil, err
		}
		s.log.Info("payment confirmed", "booking_id", p.BookingID, "charge_ref", chargeRef)
		return p, nil
	default:
		return nil, fmt.Errorf("confirm charge: payment %s is %s", p.ID, p.Status)
	}
}

// Cancel closes out the booking's payment: refund if a charge landed,
// otherwise just mark the session canceled. Terminal payments are no-ops, so
// the call is safe to repeat after a partial failure.
func (s *Service) Cancel(ctx context.Context, bookingID int64) error {
	p, err := s.repo.GetByBookingID(ctx, bookingID)
	if err != nil {
		return err
	}
	switch p.Status {
	case domain.StatusCanceled, domain.StatusRefunded, domain.StatusFailed:
		return nil
	}

	if p.ChargeRef != "" {
		if err := s.gateway.Refund(ctx, p.ChargeRef); err != nil {
			return fmt.Errorf("refund: %w", err)
		}
		p.Status = domain.StatusRefunded
		s.log.Info("payment refunded", "booking_id", bookingID, "charge_ref", p.ChargeRef)
	} else {
		p.Status = domain.StatusCanceled
		s.log.Info("payment canceled", "booking_id", bookingID)
	}
	p.UpdatedAt = time.Now().UTC()
	return s.repo.Save(ctx, p)
}

// Fail marks a pending payment as failed after the session expired. Terminal
// payments are left alone.
func (s *Service) Fail(ctx context.Context, sessionRef string) (*domain.Payment, error) {
	p, err := s.repo.GetBySessionRef(ctx, sessionRef)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusPending {
		return p, nil
	}
	p.Status = domain.StatusFailed
	p.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("payment failed", "booking_id", p.BookingID, "session_ref", sessionRef)
	return p, nil
}

func (s *Service) GetByBookingID(ctx context.Context, bookingID int64) (*domain.Payment, error) {
	return s.repo.GetByBookingID(ctx, bookingID)
}

// HandleInventoryReserved opens the checkout. A gateway failure becomes a
// PaymentFailed event so the saga compensates instead of hanging.
func (s *Service) HandleInventoryReserved(ctx context.Context, ev accdomain.InventoryReserved, headers map[string]string, traceparent string) error {
	if _, err := s.Initiate(ctx, ev.BookingID, ev.UserID, ev.TotalPrice); err != nil {
		s.log.Error("payment initiation failed", "booking_id", ev.BookingID, "err", err)
		payload, merr := json.Marshal(domain.PaymentFailed{
			BookingID: ev.BookingID,
			UserID:    ev.UserID,
			Reason:    "payment initiation failed",
		})
		if merr != nil {
			return merr
		}
		return s.repo.AppendOutbox(ctx, strconv.FormatInt(ev.BookingID, 10), domain.TypePaymentFailed, payload, headers, traceparent)
	}
	return nil
}

// HandleCancellationRequested winds down the booking's payment and always
// emits PaymentCanceled: the booking side's join barrier waits on it whether
// or not any money moved.
func (s *Service) HandleCancellationRequested(ctx context.Context, ev bookingdomain.CancellationRequested, headers map[string]string, traceparent string) error {
	err := s.Cancel(ctx, ev.BookingID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	payload, err := json.Marshal(domain.PaymentCanceled{BookingID: ev.BookingID})
	if err != nil {
		return err
	}
	return s.repo.AppendOutbox(ctx, strconv.FormatInt(ev.BookingID, 10), domain.TypePaymentCanceled, payload, headers, traceparent)
}

// ConfirmSession serves the webhook's completed path: flip to PAID and emit
// PaymentSuccess in one place so the saga sees exactly one outcome.
func (s *Service) ConfirmSession(ctx context.Context, sessionRef, chargeRef string, headers map[string]string, traceparent string) error {
	p, err := s.ConfirmCharge(ctx, sessionRef, chargeRef)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(domain.PaymentSuccess{
		BookingID:  p.BookingID,
		UserID:     p.UserID,
		SessionRef: p.SessionRef,
	})
	if err != nil {
		return err
	}
	return s.repo.AppendOutbox(ctx, strconv.FormatInt(p.BookingID, 10), domain.TypePaymentSuccess, payload, headers, traceparent)
}

// ExpireSession serves the webhook's expired path.
func (s *Service) ExpireSession(ctx context.Context, sessionRef string, headers map[string]string, traceparent string) error {
	p, err := s.Fail(ctx, sessionRef)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(domain.PaymentFailed{
		BookingID: p.BookingID,
		UserID:    p.UserID,
		Reason:    "checkout session expired",
	})
	if err != nil {
		return err
	}
	return s.repo.AppendOutbox(ctx, strconv.FormatInt(p.BookingID, 10), domain.TypePaymentFailed, payload, headers, traceparent)
}
