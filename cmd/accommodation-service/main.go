package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/samilyak/stayflow/internal/accommodation/application"
	acchttp "github.com/samilyak/stayflow/internal/accommodation/infrastructure/http"
	acckafka "github.com/samilyak/stayflow/internal/accommodation/infrastructure/kafka"
	"github.com/samilyak/stayflow/internal/accommodation/infrastructure/postgres"
	"github.com/samilyak/stayflow/pkg/config"
	"github.com/samilyak/stayflow/pkg/idempotency"
	"github.com/samilyak/stayflow/pkg/logging"
	"github.com/samilyak/stayflow/pkg/outbox"
	"github.com/samilyak/stayflow/pkg/shutdown"
	"github.com/samilyak/stayflow/pkg/tracing"
)

func main() {
	log := logging.New("accommodation-service")

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "accommodation-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("tracing init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = tp.Shutdown(shutdownCtx)
	}()

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("postgres connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	repo := postgres.NewRepository(log, pool)
	svc := application.NewService(log, repo)

	producer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer producer.Close()

	relay := outbox.NewRelay(log,
		outbox.NewPGStore(log, pool),
		outbox.NewDispatcher(log, producer, cfg.InventoryTopic),
		"accommodation-relay")
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped", "err", err)
		}
	}()

	dlq := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.DeadLetterTopic,
		AllowAutoTopicCreation: true,
	}
	defer dlq.Close()

	idem := idempotency.NewStore(rdb, 24*time.Hour)
	consumer := acckafka.NewConsumer(log, cfg.KafkaBrokers, cfg.BookingTopic,
		"accommodation-service", svc, idem, dlq, cfg.MaxAttempts)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	handler := acchttp.NewHandler(log, svc, cfg.ServiceCredentials)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler.Routes()}
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = server.Shutdown(shutdownCtx)
	log.Info("accommodation service stopped")
}
