package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/samilyak/stayflow/internal/accommodation/domain"
	bookingdomain "github.com/samilyak/stayflow/internal/booking/domain"
)

type Service struct {
	log   *slog.Logger
	store LedgerStore
}

func NewService(log *slog.Logger, store LedgerStore) *Service {
	return &Service{log: log, store: store}
}

func validateRange(checkIn, checkOut time.Time) error {
	if domain.Nights(checkIn, checkOut) < 1 {
		return domain.ErrInvalidRange
	}
	return nil
}

func (s *Service) CreateUnit(ctx context.Context, dailyRate int64, totalCapacity int) (domain.Unit, error) {
	unit, err := s.store.CreateUnit(ctx, dailyRate, totalCapacity)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := s.store.ReplaceSlots(ctx, unit.ID, domain.Day(time.Now()), totalCapacity); err != nil {
		return domain.Unit{}, err
	}
	s.log.Info("unit created", "accommodation_id", unit.ID, "capacity", totalCapacity)
	return unit, nil
}

// UpdateUnit re-initializes the slot horizon when capacity changes, wiping
// prior locks. Callers must not update a unit with in-flight bookings.
func (s *Service) UpdateUnit(ctx context.Context, id int64, dailyRate int64, totalCapacity int) (domain.Unit, error) {
	unit, err := s.store.UpdateUnit(ctx, id, dailyRate, totalCapacity)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := s.store.ReplaceSlots(ctx, id, domain.Day(time.Now()), totalCapacity); err != nil {
		return domain.Unit{}, err
	}
	return unit, nil
}

func (s *Service) GetUnit(ctx context.Context, id int64) (domain.Unit, error) {
	return s.store.GetUnit(ctx, id)
}

// CheckAvailability reports whether every day in [checkIn, checkOut) has an
// unlocked slot. Missing rows mean unavailable, never available-by-default.
func (s *Service) CheckAvailability(ctx context.Context, id int64, checkIn, checkOut time.Time) (bool, error) {
	if err := validateRange(checkIn, checkOut); err != nil {
		return false, err
	}
	return s.store.RangeAvailable(ctx, id, domain.Day(checkIn), domain.Day(checkOut))
}

// Lock serves the synchronous lock surface.
func (s *Service) Lock(ctx context.Context, id int64, checkIn, checkOut time.Time, expectedVersion int64) (domain.LockResult, error) {
	if err := validateRange(checkIn, checkOut); err != nil {
		return domain.LockResult{}, err
	}
	return s.store.LockRange(ctx, id, domain.Day(checkIn), domain.Day(checkOut), expectedVersion)
}

// Unlock is pure compensation: it never checks the version and must succeed
// regardless of who holds the lock.
func (s *Service) Unlock(ctx context.Context, id int64, checkIn, checkOut time.Time) error {
	if err := validateRange(checkIn, checkOut); err != nil {
		return err
	}
	return s.store.UnlockRange(ctx, id, domain.Day(checkIn), domain.Day(checkOut))
}

// HandleBookingCreated attempts the saga's inventory lock and records the
// outcome event in the same store the slots live in.
func (s *Service) HandleBookingCreated(ctx context.Context, ev bookingdomain.BookingCreated, headers map[string]string, traceparent string) error {
	if err := validateRange(ev.CheckIn, ev.CheckOut); err != nil {
		return s.appendFailed(ctx, ev, err.Error(), headers, traceparent)
	}

	res, err := s.store.Reserve(ctx, ev.BookingID, ev.AccommodationID, domain.Day(ev.CheckIn), domain.Day(ev.CheckOut), ev.ExpectedVersion)
	if err != nil {
		return err
	}

	if !res.Success {
		s.log.Warn("inventory lock failed", "booking_id", ev.BookingID, "reason", res.Reason)
		return s.appendFailed(ctx, ev, res.Reason, headers, traceparent)
	}

	s.log.Info("inventory locked", "booking_id", ev.BookingID, "accommodation_id", ev.AccommodationID)
	payload, err := json.Marshal(domain.InventoryReserved{
		BookingID:  ev.BookingID,
		UserID:     ev.UserID,
		TotalPrice: ev.TotalPrice,
		Phone:      ev.Phone,
	})
	if err != nil {
		return err
	}
	return s.store.AppendOutbox(ctx, strconv.FormatInt(ev.BookingID, 10), domain.TypeInventoryReserved, payload, headers, traceparent)
}

func (s *Service) appendFailed(ctx context.Context, ev bookingdomain.BookingCreated, reason string, headers map[string]string, traceparent string) error {
	payload, err := json.Marshal(domain.InventoryReservationFailed{
		BookingID: ev.BookingID,
		UserID:    ev.UserID,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	return s.store.AppendOutbox(ctx, strconv.FormatInt(ev.BookingID, 10), domain.TypeInventoryReservationFailed, payload, headers, traceparent)
}

// HandleCancellationRequested releases the stay's slots. Unlocking dates that
// were never locked is a no-op, so the failed-lock path lands here safely.
func (s *Service) HandleCancellationRequested(ctx context.Context, ev bookingdomain.CancellationRequested, headers map[string]string, traceparent string) error {
	if err := validateRange(ev.CheckIn, ev.CheckOut); err != nil {
		return err
	}
	if err := s.store.UnlockRange(ctx, ev.AccommodationID, domain.Day(ev.CheckIn), domain.Day(ev.CheckOut)); err != nil {
		return err
	}
	s.log.Info("dates unlocked", "booking_id", ev.BookingID, "accommodation_id", ev.AccommodationID)

	payload, err := json.Marshal(domain.DatesUnlocked{BookingID: ev.BookingID})
	if err != nil {
		return err
	}
	return s.store.AppendOutbox(ctx, strconv.FormatInt(ev.BookingID, 10), domain.TypeDatesUnlocked, payload, headers, traceparent)
}
