package main

import (
	"context"
	"errors"
	"os"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/samilyak/stayflow/internal/notification/application"
	notifamqp "github.com/samilyak/stayflow/internal/notification/infrastructure/amqp"
	"github.com/samilyak/stayflow/pkg/config"
	"github.com/samilyak/stayflow/pkg/logging"
	"github.com/samilyak/stayflow/pkg/shutdown"
)

func main() {
	log := logging.New("notification-service")

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	conn, err := amqp.Dial(cfg.AmqpURL)
	if err != nil {
		log.Error("amqp connect failed", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	svc := application.NewService(log,
		application.NewSMSSender(log),
		application.NewEmailSender(log),
		application.NewTelegramSender(log),
	)

	consumer, err := notifamqp.NewConsumer(log, conn, cfg.NotificationQueue, svc)
	if err != nil {
		log.Error("consumer setup failed", "err", err)
		os.Exit(1)
	}

	log.Info("notification service started", "queue", cfg.NotificationQueue)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
	log.Info("notification service stopped")
}
