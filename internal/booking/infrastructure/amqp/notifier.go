package amqp

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/samilyak/stayflow/internal/booking/application"
)

// Notifier publishes user notifications to the durable notifications queue.
// Delivery is best effort; the saga never blocks on it.
type Notifier struct {
	log     *slog.Logger
	channel *amqp.Channel
	queue   string
}

func NewNotifier(log *slog.Logger, conn *amqp.Connection, queue string) (*Notifier, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &Notifier{log: log, channel: ch, queue: queue}, nil
}

func (n *Notifier) Notify(ctx context.Context, msg application.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.channel.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (n *Notifier) Close() error {
	return n.channel.Close()
}
