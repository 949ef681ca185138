// Package worker runs background maintenance that keeps abandoned purchases
// from holding capacity forever.
package worker

import (
	"context"
	"fmt"
	"time"

	"ms-settlement/internal/clock"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

const defaultBatchSize = 100

type PaymentSweeper interface {
	ListStalePending(ctx context.Context, ttl time.Duration, limit int) ([]models.Payment, error)
	Abandon(ctx context.Context, paymentID string, status models.PaymentStatus, reason string) (bool, error)
}

type ReservationSweeper interface {
	ExpiredReservations(ctx context.Context, limit int) ([]models.Ticket, error)
	ExpireReservation(ctx context.Context, ticketID string) (bool, error)
}

// ExpiryWorker cancels payments left pending past the reservation lease and
// then expires the reservations nothing is paying for.
type ExpiryWorker struct {
	payments     PaymentSweeper
	reservations ReservationSweeper
	clock        clock.Clock
	interval     time.Duration
	leaseTTL     time.Duration
	batchSize    int
	log          *logger.Logger
}

func NewExpiryWorker(payments PaymentSweeper, reservations ReservationSweeper, clk clock.Clock,
	interval, leaseTTL time.Duration, batchSize int, log *logger.Logger) *ExpiryWorker {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &ExpiryWorker{
		payments:     payments,
		reservations: reservations,
		clock:        clk,
		interval:     interval,
		leaseTTL:     leaseTTL,
		batchSize:    batchSize,
		log:          log,
	}
}

// Start sweeps every interval, as measured by the worker's clock, until ctx
// ends.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.LogProcess("EXPIRY_WORKER", fmt.Sprintf("started, interval %s, lease %s", w.interval, w.leaseTTL))
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-w.clock.After(w.interval):
			w.Sweep(ctx)
		}
	}
	w.log.LogProcess("EXPIRY_WORKER", "stopped")
}

// SweepResult counts what one sweep changed.
type SweepResult struct {
	PaymentsCancelled int
	TicketsExpired    int
	Failures          int
}

// Sweep runs one pass. Payments go first so that their tickets become
// eligible for expiry in the same pass.
func (w *ExpiryWorker) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	stale, err := w.payments.ListStalePending(ctx, w.leaseTTL, w.batchSize)
	if err != nil {
		w.log.Error("EXPIRY_WORKER", fmt.Sprintf("Failed to list stale payments: %v", err))
		res.Failures++
	}
	for _, p := range stale {
		if ctx.Err() != nil {
			return res
		}
		changed, err := w.payments.Abandon(ctx, p.ID, models.PaymentCancelled, "payment not settled within reservation lease")
		switch {
		case err != nil:
			w.log.Error("EXPIRY_WORKER", fmt.Sprintf("Failed to cancel payment %s: %v", p.ID, err))
			res.Failures++
		case changed:
			res.PaymentsCancelled++
		}
	}

	expired, err := w.reservations.ExpiredReservations(ctx, w.batchSize)
	if err != nil {
		w.log.Error("EXPIRY_WORKER", fmt.Sprintf("Failed to list expired reservations: %v", err))
		res.Failures++
	}
	for _, t := range expired {
		if ctx.Err() != nil {
			return res
		}
		ok, err := w.reservations.ExpireReservation(ctx, t.ID)
		switch {
		case err != nil:
			w.log.Error("EXPIRY_WORKER", fmt.Sprintf("Failed to expire ticket %s: %v", t.ID, err))
			res.Failures++
		case ok:
			res.TicketsExpired++
		}
	}

	if res != (SweepResult{}) {
		w.log.Info("EXPIRY_WORKER", fmt.Sprintf("Sweep done: %d payments cancelled, %d tickets expired, %d failures",
			res.PaymentsCancelled, res.TicketsExpired, res.Failures))
	}
	return res
}
