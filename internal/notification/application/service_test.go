package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type recordingSender struct {
	name string
	err  error
	got  []Message
}

func (r *recordingSender) Name() string { return r.name }

func (r *recordingSender) Send(_ context.Context, m Message) error {
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, m)
	return nil
}

func TestDispatchFansOut(t *testing.T) {
	sms := &recordingSender{name: "sms"}
	email := &recordingSender{name: "email"}
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), sms, email)

	m := Message{Type: "BOOKING_CONFIRMED", BookingID: 1, UserID: 7, Message: "confirmed"}
	if err := svc.Dispatch(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	if len(sms.got) != 1 || len(email.got) != 1 {
		t.Fatalf("sms=%d email=%d, want 1 each", len(sms.got), len(email.got))
	}
}

func TestDispatchOneChannelFailingDoesNotStopOthers(t *testing.T) {
	broken := &recordingSender{name: "sms", err: errors.New("provider down")}
	email := &recordingSender{name: "email"}
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), broken, email)

	err := svc.Dispatch(context.Background(), Message{Type: "BOOKING_FAILED", BookingID: 2})
	if err == nil {
		t.Fatal("expected the failing channel's error to surface")
	}
	if len(email.got) != 1 {
		t.Fatal("healthy channel skipped after a failure")
	}
}

func TestSMSSkipsWithoutPhone(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sms := NewSMSSender(log)
	if err := sms.Send(context.Background(), Message{Type: "BOOKING_CONFIRMED"}); err != nil {
		t.Fatal(err)
	}
}
