package amqp

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/samilyak/stayflow/internal/notification/application"
)

// Consumer drains the notifications queue and fans each message out to the
// delivery channels.
type Consumer struct {
	log     *slog.Logger
	channel *amqp.Channel
	queue   string
	svc     *application.Service
}

func NewConsumer(log *slog.Logger, conn *amqp.Connection, queue string, svc *application.Service) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &Consumer{log: log, channel: ch, queue: queue, svc: svc}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return c.channel.Close()
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var m application.Message
	if err := json.Unmarshal(d.Body, &m); err != nil {
		c.log.Error("unmarshal failed, dropping", "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := c.svc.Dispatch(ctx, m); err != nil {
		// Notifications are best effort: drop rather than poison-loop.
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
