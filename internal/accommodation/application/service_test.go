package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/samilyak/stayflow/internal/accommodation/domain"
	bookingdomain "github.com/samilyak/stayflow/internal/booking/domain"
)

// fakeLedger is an in-memory LedgerStore with the same locking semantics as
// the Postgres repository: one mutex stands in for the row lock.
type fakeLedger struct {
	mu           sync.Mutex
	units        map[int64]*domain.Unit
	slots        map[int64]map[time.Time]bool // unit -> day -> locked
	reservations map[int64]domain.LockResult  // booking -> recorded outcome
	outbox       []fakeEvent
	nextID       int64
}

type fakeEvent struct {
	aggregateID string
	eventType   string
	payload     []byte
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		units:        make(map[int64]*domain.Unit),
		slots:        make(map[int64]map[time.Time]bool),
		reservations: make(map[int64]domain.LockResult),
	}
}

func (f *fakeLedger) CreateUnit(_ context.Context, dailyRate int64, totalCapacity int) (domain.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := domain.Unit{ID: f.nextID, DailyRate: dailyRate, TotalCapacity: totalCapacity}
	f.units[u.ID] = &u
	return u, nil
}

func (f *fakeLedger) UpdateUnit(_ context.Context, id int64, dailyRate int64, totalCapacity int) (domain.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[id]
	if !ok {
		return domain.Unit{}, domain.ErrNotFound
	}
	u.DailyRate, u.TotalCapacity = dailyRate, totalCapacity
	return *u, nil
}

func (f *fakeLedger) GetUnit(_ context.Context, id int64) (domain.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[id]
	if !ok {
		return domain.Unit{}, domain.ErrNotFound
	}
	return *u, nil
}

func (f *fakeLedger) ReplaceSlots(_ context.Context, id int64, start time.Time, days int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := make(map[time.Time]bool, days)
	for i := 0; i < days; i++ {
		m[start.AddDate(0, 0, i)] = false
	}
	f.slots[id] = m
	return nil
}

func (f *fakeLedger) RangeAvailable(_ context.Context, id int64, checkIn, checkOut time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rangeFree(id, checkIn, checkOut), nil
}

func (f *fakeLedger) rangeFree(id int64, checkIn, checkOut time.Time) bool {
	m := f.slots[id]
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		locked, ok := m[d]
		if !ok || locked {
			return false
		}
	}
	return true
}

func (f *fakeLedger) LockRange(_ context.Context, id int64, checkIn, checkOut time.Time, expectedVersion int64) (domain.LockResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lockLocked(id, checkIn, checkOut, expectedVersion)
}

func (f *fakeLedger) lockLocked(id int64, checkIn, checkOut time.Time, expectedVersion int64) (domain.LockResult, error) {
	u, ok := f.units[id]
	if !ok {
		return domain.LockResult{}, domain.ErrNotFound
	}
	if u.Version != expectedVersion {
		return domain.LockResult{Success: false, Reason: domain.ReasonStaleVersion}, nil
	}
	if !f.rangeFree(id, checkIn, checkOut) {
		return domain.LockResult{Success: false, Reason: domain.ReasonDatesTaken}, nil
	}
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		f.slots[id][d] = true
	}
	u.Version++
	return domain.LockResult{Success: true, DailyRate: u.DailyRate}, nil
}

func (f *fakeLedger) Reserve(_ context.Context, bookingID, id int64, checkIn, checkOut time.Time, expectedVersion int64) (domain.LockResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.reservations[bookingID]; ok {
		return res, nil
	}
	res, err := f.lockLocked(id, checkIn, checkOut, expectedVersion)
	if err != nil {
		return domain.LockResult{}, err
	}
	f.reservations[bookingID] = res
	return res, nil
}

func (f *fakeLedger) UnlockRange(_ context.Context, id int64, checkIn, checkOut time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		if _, ok := f.slots[id][d]; ok {
			f.slots[id][d] = false
		}
	}
	return nil
}

func (f *fakeLedger) AppendOutbox(_ context.Context, aggregateID, eventType string, payload []byte, _ map[string]string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbox = append(f.outbox, fakeEvent{aggregateID: aggregateID, eventType: eventType, payload: payload})
	return nil
}

func (f *fakeLedger) lastEvent(t *testing.T) fakeEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outbox) == 0 {
		t.Fatal("no outbox event recorded")
	}
	return f.outbox[len(f.outbox)-1]
}

func testService(t *testing.T) (*Service, *fakeLedger) {
	t.Helper()
	store := newFakeLedger()
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store), store
}

func seedUnit(t *testing.T, svc *Service) domain.Unit {
	t.Helper()
	unit, err := svc.CreateUnit(context.Background(), 10000, 30)
	if err != nil {
		t.Fatal(err)
	}
	return unit
}

func stay(nights int) (time.Time, time.Time) {
	checkIn := domain.Day(time.Now()).AddDate(0, 0, 2)
	return checkIn, checkIn.AddDate(0, 0, nights)
}

func TestLockRejectsInvalidRange(t *testing.T) {
	svc, _ := testService(t)
	unit := seedUnit(t, svc)
	checkIn, _ := stay(1)

	if _, err := svc.Lock(context.Background(), unit.ID, checkIn, checkIn, 0); !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("zero-night lock: err = %v, want ErrInvalidRange", err)
	}
	if _, err := svc.Lock(context.Background(), unit.ID, checkIn.AddDate(0, 0, 2), checkIn, 0); !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("reversed range: err = %v, want ErrInvalidRange", err)
	}
}

// Two writers observe version 0; exactly one lock wins, the loser is told to
// re-read.
func TestLockOptimisticVersionGate(t *testing.T) {
	svc, _ := testService(t)
	unit := seedUnit(t, svc)
	in1, out1 := stay(3)
	in2 := out1.AddDate(0, 0, 1)
	out2 := in2.AddDate(0, 0, 2)

	first, err := svc.Lock(context.Background(), unit.ID, in1, out1, 0)
	if err != nil || !first.Success {
		t.Fatalf("first lock: res=%+v err=%v", first, err)
	}

	// Disjoint dates, but the version already moved.
	second, err := svc.Lock(context.Background(), unit.ID, in2, out2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if second.Success || second.Reason != domain.ReasonStaleVersion {
		t.Fatalf("stale lock: res=%+v, want stale-version failure", second)
	}

	// Fresh read, fresh version: now it goes through.
	retry, err := svc.Lock(context.Background(), unit.ID, in2, out2, 1)
	if err != nil || !retry.Success {
		t.Fatalf("retry lock: res=%+v err=%v", retry, err)
	}
}

func TestLockOutsideHorizonUnavailable(t *testing.T) {
	svc, _ := testService(t)
	unit := seedUnit(t, svc)

	// Past the seeded 30-day horizon: slots simply do not exist.
	checkIn := domain.Day(time.Now()).AddDate(0, 0, 60)
	res, err := svc.Lock(context.Background(), unit.ID, checkIn, checkIn.AddDate(0, 0, 2), 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Reason != domain.ReasonDatesTaken {
		t.Fatalf("lock outside horizon: res=%+v, want dates-taken failure", res)
	}
}

func TestHandleBookingCreatedEmitsReserved(t *testing.T) {
	svc, store := testService(t)
	unit := seedUnit(t, svc)
	checkIn, checkOut := stay(3)

	ev := bookingdomain.BookingCreated{
		BookingID:       101,
		UserID:          7,
		AccommodationID: unit.ID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		TotalPrice:      30000,
		ExpectedVersion: 0,
	}
	if err := svc.HandleBookingCreated(context.Background(), ev, nil, ""); err != nil {
		t.Fatal(err)
	}

	got := store.lastEvent(t)
	if got.eventType != domain.TypeInventoryReserved {
		t.Fatalf("event type = %s, want InventoryReserved", got.eventType)
	}
	var reserved domain.InventoryReserved
	if err := json.Unmarshal(got.payload, &reserved); err != nil {
		t.Fatal(err)
	}
	if reserved.BookingID != 101 || reserved.TotalPrice != 30000 {
		t.Fatalf("payload = %+v", reserved)
	}
}

func TestHandleBookingCreatedStaleVersionEmitsFailed(t *testing.T) {
	svc, store := testService(t)
	unit := seedUnit(t, svc)
	checkIn, checkOut := stay(3)

	ev := bookingdomain.BookingCreated{
		BookingID:       102,
		AccommodationID: unit.ID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		ExpectedVersion: 5,
	}
	if err := svc.HandleBookingCreated(context.Background(), ev, nil, ""); err != nil {
		t.Fatal(err)
	}

	got := store.lastEvent(t)
	if got.eventType != domain.TypeInventoryReservationFailed {
		t.Fatalf("event type = %s, want InventoryReservationFailed", got.eventType)
	}
	var failed domain.InventoryReservationFailed
	if err := json.Unmarshal(got.payload, &failed); err != nil {
		t.Fatal(err)
	}
	if failed.Reason != domain.ReasonStaleVersion {
		t.Fatalf("reason = %q, want stale-version", failed.Reason)
	}
}

// A redelivered BookingCreated must replay the recorded outcome, not lock a
// second time and not flip a now-different answer.
func TestHandleBookingCreatedRedeliveryReplaysOutcome(t *testing.T) {
	svc, store := testService(t)
	unit := seedUnit(t, svc)
	checkIn, checkOut := stay(3)

	ev := bookingdomain.BookingCreated{
		BookingID:       103,
		AccommodationID: unit.ID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		ExpectedVersion: 0,
	}
	for i := 0; i < 2; i++ {
		if err := svc.HandleBookingCreated(context.Background(), ev, nil, ""); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	for _, e := range store.outbox {
		if e.eventType == domain.TypeInventoryReservationFailed {
			t.Fatal("redelivery produced a failure event")
		}
	}
}

func TestHandleCancellationRequestedUnlocksAndEmits(t *testing.T) {
	svc, store := testService(t)
	unit := seedUnit(t, svc)
	checkIn, checkOut := stay(3)

	res, err := svc.Lock(context.Background(), unit.ID, checkIn, checkOut, 0)
	if err != nil || !res.Success {
		t.Fatalf("lock: res=%+v err=%v", res, err)
	}

	ev := bookingdomain.CancellationRequested{
		BookingID:       104,
		AccommodationID: unit.ID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
	}
	if err := svc.HandleCancellationRequested(context.Background(), ev, nil, ""); err != nil {
		t.Fatal(err)
	}

	available, err := svc.CheckAvailability(context.Background(), unit.ID, checkIn, checkOut)
	if err != nil {
		t.Fatal(err)
	}
	if !available {
		t.Fatal("dates still locked after cancellation")
	}
	if got := store.lastEvent(t); got.eventType != domain.TypeDatesUnlocked {
		t.Fatalf("event type = %s, want DatesUnlocked", got.eventType)
	}
}

// Unlock never consults the version, so compensation cannot be blocked by
// concurrent lock traffic.
func TestUnlockIgnoresVersion(t *testing.T) {
	svc, _ := testService(t)
	unit := seedUnit(t, svc)
	checkIn, checkOut := stay(2)

	if res, err := svc.Lock(context.Background(), unit.ID, checkIn, checkOut, 0); err != nil || !res.Success {
		t.Fatalf("lock: res=%+v err=%v", res, err)
	}
	// Several more locks elsewhere bump the version.
	other := checkOut.AddDate(0, 0, 1)
	for v := int64(1); v <= 3; v++ {
		if res, err := svc.Lock(context.Background(), unit.ID, other, other.AddDate(0, 0, 1), v); err != nil || !res.Success {
			t.Fatalf("filler lock v%d: res=%+v err=%v", v, res, err)
		}
		other = other.AddDate(0, 0, 1)
	}

	if err := svc.Unlock(context.Background(), unit.ID, checkIn, checkOut); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	available, err := svc.CheckAvailability(context.Background(), unit.ID, checkIn, checkOut)
	if err != nil || !available {
		t.Fatalf("availability after unlock: %v %v", available, err)
	}
}

func TestConcurrentLocksSingleWinner(t *testing.T) {
	svc, _ := testService(t)
	unit := seedUnit(t, svc)
	checkIn, checkOut := stay(3)

	const writers = 8
	results := make(chan domain.LockResult, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Lock(context.Background(), unit.ID, checkIn, checkOut, 0)
			if err != nil {
				t.Error(err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for res := range results {
		if res.Success {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}
