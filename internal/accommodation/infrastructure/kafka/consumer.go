package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/samilyak/stayflow/internal/accommodation/application"
	bookingdomain "github.com/samilyak/stayflow/internal/booking/domain"
	"github.com/samilyak/stayflow/pkg/idempotency"
	"github.com/samilyak/stayflow/pkg/tracing"
)

// Consumer reacts to the booking service's saga events: BookingCreated locks
// the stay, CancellationRequested releases it.
type Consumer struct {
	log         *slog.Logger
	reader      *kafka.Reader
	svc         *application.Service
	idem        *idempotency.Store
	dlq         *kafka.Writer
	maxAttempts int64
	tracer      trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc *application.Service, idem *idempotency.Store, dlq *kafka.Writer, maxAttempts int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:         log,
		reader:      r,
		svc:         svc,
		idem:        idem,
		dlq:         dlq,
		maxAttempts: int64(maxAttempts),
		tracer:      otel.Tracer("accommodation-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
			continue
		}
		if seen {
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		attempts, err := c.idem.Attempts(ctx, key)
		if err != nil {
			c.log.Error("attempt count failed", "err", err)
			continue
		}
		if attempts > c.maxAttempts {
			c.deadLetter(ctx, msg)
			_ = c.idem.Mark(ctx, key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		msgCtx, span := c.tracer.Start(msgCtx, "ConsumeBookingEvent")

		if err := c.handle(msgCtx, msg); err != nil {
			// Leave the offset uncommitted so redelivery retries the work.
			c.log.Error("handler failed", "event_type", headerValue(msg.Headers, "event_type"), "attempt", attempts, "err", err)
			span.End()
			continue
		}

		span.End()
		_ = c.idem.Mark(ctx, key)
		_ = c.reader.CommitMessages(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	headers := map[string]string{"source": "accommodation-service"}
	traceparent := headerValue(msg.Headers, tracing.TraceparentHeader)

	switch headerValue(msg.Headers, "event_type") {
	case bookingdomain.TypeBookingCreated:
		var ev bookingdomain.BookingCreated
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal failed", "err", err)
			return nil // poison payload, nothing to retry
		}
		return c.svc.HandleBookingCreated(ctx, ev, headers, traceparent)
	case bookingdomain.TypeCancellationRequested:
		var ev bookingdomain.CancellationRequested
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal failed", "err", err)
			return nil
		}
		return c.svc.HandleCancellationRequested(ctx, ev, headers, traceparent)
	default:
		return nil
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message) {
	out := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: msg.Headers}
	if err := c.dlq.WriteMessages(ctx, out); err != nil {
		c.log.Error("dead letter write failed", "err", err)
		return
	}
	c.log.Warn("message dead-lettered", "topic", msg.Topic, "offset", msg.Offset)
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
