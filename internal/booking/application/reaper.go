package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/samilyak/stayflow/pkg/tracing"
)

// Reaper expires PENDING bookings whose payment outcome never arrived: older
// than the creation timeout, or with a check-out already in the past. Each one
// takes the same failure path an explicit PaymentFailed would have.
type Reaper struct {
	log      *slog.Logger
	repo     BookingRepository
	service  *Service
	timeout  time.Duration
	interval time.Duration
}

func NewReaper(log *slog.Logger, repo BookingRepository, service *Service, timeout, interval time.Duration) *Reaper {
	return &Reaper{log: log, repo: repo, service: service, timeout: timeout, interval: interval}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.Error("reaper sweep failed", "err", err)
			}
		}
	}
}

func (r *Reaper) Sweep(ctx context.Context) error {
	now := time.Now().UTC()
	stale, err := r.repo.ListStalePending(ctx, now.Add(-r.timeout), now)
	if err != nil {
		return err
	}
	for _, b := range stale {
		if err := b.FailCreation(); err != nil {
			r.log.Error("reaper transition failed", "booking_id", b.ID, "err", err)
			continue
		}
		err := r.repo.UpdateWithOutbox(ctx, b, "creation timed out",
			[]OutboxEvent{r.service.cancellationEvent(b)}, r.service.headers(), tracing.Traceparent(ctx))
		if err != nil {
			r.log.Error("reaper update failed", "booking_id", b.ID, "err", err)
			continue
		}
		r.log.Warn("stale pending booking expired", "booking_id", b.ID, "created_at", b.CreatedAt)
	}
	return nil
}
