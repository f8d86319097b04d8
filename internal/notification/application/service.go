package application

import (
	"context"
	"errors"
	"log/slog"
)

// Message is the notification payload the booking service publishes.
type Message struct {
	Type      string `json:"type"`
	BookingID int64  `json:"bookingId"`
	UserID    int64  `json:"userId"`
	Phone     string `json:"phoneNumber,omitempty"`
	Message   string `json:"message"`
}

// Sender delivers a notification over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, m Message) error
}

type Service struct {
	log     *slog.Logger
	senders []Sender
}

func NewService(log *slog.Logger, senders ...Sender) *Service {
	return &Service{log: log, senders: senders}
}

// Dispatch fans the message out to every channel. One channel failing does
// not stop the others.
func (s *Service) Dispatch(ctx context.Context, m Message) error {
	var errs []error
	for _, sender := range s.senders {
		if err := sender.Send(ctx, m); err != nil {
			s.log.Error("send failed", "channel", sender.Name(), "booking_id", m.BookingID, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
