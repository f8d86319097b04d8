package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	accdomain "github.com/samilyak/stayflow/internal/accommodation/domain"
	bookingdomain "github.com/samilyak/stayflow/internal/booking/domain"
	"github.com/samilyak/stayflow/internal/payment/domain"
)

type fakeRepo struct {
	byBooking map[int64]*domain.Payment
	bySession map[string]*domain.Payment
	outbox    []fakeEvent
}

type fakeEvent struct {
	eventType string
	payload   []byte
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byBooking: make(map[int64]*domain.Payment),
		bySession: make(map[string]*domain.Payment),
	}
}

func (f *fakeRepo) GetByBookingID(_ context.Context, bookingID int64) (*domain.Payment, error) {
	p, ok := f.byBooking[bookingID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) GetBySessionRef(_ context.Context, sessionRef string) (*domain.Payment, error) {
	p, ok := f.bySession[sessionRef]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) Save(_ context.Context, p *domain.Payment) error {
	cp := *p
	f.byBooking[p.BookingID] = &cp
	f.bySession[p.SessionRef] = &cp
	return nil
}

func (f *fakeRepo) AppendOutbox(_ context.Context, _, eventType string, payload []byte, _ map[string]string, _ string) error {
	f.outbox = append(f.outbox, fakeEvent{eventType: eventType, payload: payload})
	return nil
}

type fakeGateway struct {
	sessions  int
	refunds   []string
	createErr error
	refundErr error
}

func (g *fakeGateway) CreateSession(_ context.Context, bookingID, _ int64) (Session, error) {
	if g.createErr != nil {
		return Session{}, g.createErr
	}
	g.sessions++
	id := fmt.Sprintf("cs_%d_%d", bookingID, g.sessions)
	return Session{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (g *fakeGateway) Refund(_ context.Context, chargeRef string) error {
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, chargeRef)
	return nil
}

func testService(t *testing.T) (*Service, *fakeRepo, *fakeGateway) {
	t.Helper()
	repo := newFakeRepo()
	gw := &fakeGateway{}
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo, gw), repo, gw
}

func TestInitiateIdempotentOnBookingID(t *testing.T) {
	svc, _, gw := testService(t)

	first, err := svc.Initiate(context.Background(), 1, 7, 30000)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Initiate(context.Background(), 1, 7, 30000)
	if err != nil {
		t.Fatal(err)
	}
	if gw.sessions != 1 {
		t.Fatalf("gateway sessions = %d, want 1", gw.sessions)
	}
	if first.SessionRef != second.SessionRef {
		t.Fatalf("redelivery produced a new session: %s vs %s", first.SessionRef, second.SessionRef)
	}
	if first.Status != domain.StatusPending {
		t.Fatalf("status = %s, want PENDING", first.Status)
	}
}

func TestConfirmChargeIdempotent(t *testing.T) {
	svc, _, _ := testService(t)
	p, err := svc.Initiate(context.Background(), 2, 7, 30000)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		got, err := svc.ConfirmCharge(context.Background(), p.SessionRef, "pi_1")
		if err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
		if got.Status != domain.StatusPaid || got.ChargeRef != "pi_1" {
			t.Fatalf("confirm %d: status=%s charge=%q", i, got.Status, got.ChargeRef)
		}
	}
}

func TestConfirmChargeAfterCancelFails(t *testing.T) {
	svc, _, _ := testService(t)
	p, err := svc.Initiate(context.Background(), 3, 7, 30000)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmCharge(context.Background(), p.SessionRef, "pi_1"); err == nil {
		t.Fatal("confirming a canceled payment must fail")
	}
}

func TestCancelRefundsOnlyWhenCharged(t *testing.T) {
	t.Run("no charge", func(t *testing.T) {
		svc, repo, gw := testService(t)
		if _, err := svc.Initiate(context.Background(), 4, 7, 30000); err != nil {
			t.Fatal(err)
		}
		if err := svc.Cancel(context.Background(), 4); err != nil {
			t.Fatal(err)
		}
		if len(gw.refunds) != 0 {
			t.Fatalf("refunds = %v, want none", gw.refunds)
		}
		if repo.byBooking[4].Status != domain.StatusCanceled {
			t.Fatalf("status = %s, want CANCELED", repo.byBooking[4].Status)
		}
	})

	t.Run("charged", func(t *testing.T) {
		svc, repo, gw := testService(t)
		p, err := svc.Initiate(context.Background(), 5, 7, 30000)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := svc.ConfirmCharge(context.Background(), p.SessionRef, "pi_5"); err != nil {
			t.Fatal(err)
		}
		if err := svc.Cancel(context.Background(), 5); err != nil {
			t.Fatal(err)
		}
		if len(gw.refunds) != 1 || gw.refunds[0] != "pi_5" {
			t.Fatalf("refunds = %v, want [pi_5]", gw.refunds)
		}
		if repo.byBooking[5].Status != domain.StatusRefunded {
			t.Fatalf("status = %s, want REFUNDED", repo.byBooking[5].Status)
		}
	})
}

func TestCancelTerminalIsNoOp(t *testing.T) {
	svc, _, gw := testService(t)
	p, err := svc.Initiate(context.Background(), 6, 7, 30000)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmCharge(context.Background(), p.SessionRef, "pi_6"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := svc.Cancel(context.Background(), 6); err != nil {
			t.Fatalf("cancel %d: %v", i, err)
		}
	}
	if len(gw.refunds) != 1 {
		t.Fatalf("refunds = %d, want 1", len(gw.refunds))
	}
}

func TestCancelRefundErrorPropagates(t *testing.T) {
	svc, repo, gw := testService(t)
	p, err := svc.Initiate(context.Background(), 7, 7, 30000)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmCharge(context.Background(), p.SessionRef, "pi_7"); err != nil {
		t.Fatal(err)
	}

	gw.refundErr = errors.New("gateway down")
	if err := svc.Cancel(context.Background(), 7); err == nil {
		t.Fatal("refund failure must surface so the message redelivers")
	}
	if repo.byBooking[7].Status != domain.StatusPaid {
		t.Fatalf("status moved to %s despite failed refund", repo.byBooking[7].Status)
	}

	// Retry after the gateway recovers.
	gw.refundErr = nil
	if err := svc.Cancel(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if repo.byBooking[7].Status != domain.StatusRefunded {
		t.Fatalf("status = %s, want REFUNDED", repo.byBooking[7].Status)
	}
}

func TestHandleInventoryReservedGatewayFailureEmitsPaymentFailed(t *testing.T) {
	svc, repo, gw := testService(t)
	gw.createErr = errors.New("stripe unavailable")

	ev := accdomain.InventoryReserved{BookingID: 8, UserID: 7, TotalPrice: 30000}
	if err := svc.HandleInventoryReserved(context.Background(), ev, nil, ""); err != nil {
		t.Fatal(err)
	}
	if len(repo.outbox) != 1 || repo.outbox[0].eventType != domain.TypePaymentFailed {
		t.Fatalf("outbox = %+v, want one PaymentFailed", repo.outbox)
	}
}

func TestHandleCancellationRequestedAlwaysEmitsPaymentCanceled(t *testing.T) {
	t.Run("payment on file", func(t *testing.T) {
		svc, repo, _ := testService(t)
		if _, err := svc.Initiate(context.Background(), 9, 7, 30000); err != nil {
			t.Fatal(err)
		}
		ev := bookingdomain.CancellationRequested{BookingID: 9, RefundNeeded: false}
		if err := svc.HandleCancellationRequested(context.Background(), ev, nil, ""); err != nil {
			t.Fatal(err)
		}
		if len(repo.outbox) != 1 || repo.outbox[0].eventType != domain.TypePaymentCanceled {
			t.Fatalf("outbox = %+v, want one PaymentCanceled", repo.outbox)
		}
	})

	// The inventory lock can fail before any payment exists; the barrier
	// signal still has to go out.
	t.Run("no payment on file", func(t *testing.T) {
		svc, repo, _ := testService(t)
		ev := bookingdomain.CancellationRequested{BookingID: 10, RefundNeeded: false}
		if err := svc.HandleCancellationRequested(context.Background(), ev, nil, ""); err != nil {
			t.Fatal(err)
		}
		if len(repo.outbox) != 1 || repo.outbox[0].eventType != domain.TypePaymentCanceled {
			t.Fatalf("outbox = %+v, want one PaymentCanceled", repo.outbox)
		}
	})
}

func TestConfirmSessionEmitsPaymentSuccess(t *testing.T) {
	svc, repo, _ := testService(t)
	p, err := svc.Initiate(context.Background(), 11, 7, 30000)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.ConfirmSession(context.Background(), p.SessionRef, "pi_11", nil, ""); err != nil {
		t.Fatal(err)
	}

	if len(repo.outbox) != 1 || repo.outbox[0].eventType != domain.TypePaymentSuccess {
		t.Fatalf("outbox = %+v, want one PaymentSuccess", repo.outbox)
	}
	var success domain.PaymentSuccess
	if err := json.Unmarshal(repo.outbox[0].payload, &success); err != nil {
		t.Fatal(err)
	}
	if success.BookingID != 11 || success.SessionRef != p.SessionRef {
		t.Fatalf("payload = %+v", success)
	}
}

func TestExpireSessionEmitsPaymentFailed(t *testing.T) {
	svc, repo, _ := testService(t)
	p, err := svc.Initiate(context.Background(), 12, 7, 30000)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.ExpireSession(context.Background(), p.SessionRef, nil, ""); err != nil {
		t.Fatal(err)
	}
	if len(repo.outbox) != 1 || repo.outbox[0].eventType != domain.TypePaymentFailed {
		t.Fatalf("outbox = %+v, want one PaymentFailed", repo.outbox)
	}
	if repo.byBooking[12].Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", repo.byBooking[12].Status)
	}
}
