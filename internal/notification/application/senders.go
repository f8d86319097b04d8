package application

import (
	"context"
	"log/slog"
)

// The senders below log instead of calling real providers. Swapping in a real
// SMS or email gateway only touches this file.

type SMSSender struct {
	log *slog.Logger
}

func NewSMSSender(log *slog.Logger) *SMSSender { return &SMSSender{log: log} }

func (s *SMSSender) Name() string { return "sms" }

func (s *SMSSender) Send(_ context.Context, m Message) error {
	if m.Phone == "" {
		return nil
	}
	s.log.Info("sms sent", "phone", m.Phone, "type", m.Type, "message", m.Message)
	return nil
}

type EmailSender struct {
	log *slog.Logger
}

func NewEmailSender(log *slog.Logger) *EmailSender { return &EmailSender{log: log} }

func (s *EmailSender) Name() string { return "email" }

func (s *EmailSender) Send(_ context.Context, m Message) error {
	s.log.Info("email sent", "user_id", m.UserID, "type", m.Type, "message", m.Message)
	return nil
}

type TelegramSender struct {
	log *slog.Logger
}

func NewTelegramSender(log *slog.Logger) *TelegramSender { return &TelegramSender{log: log} }

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Send(_ context.Context, m Message) error {
	s.log.Info("telegram sent", "user_id", m.UserID, "type", m.Type, "message", m.Message)
	return nil
}
