package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-settlement/internal/clock"
	"ms-settlement/internal/database/dbtest"
	"ms-settlement/internal/inventory"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	payment "ms-settlement/internal/payment/service"
	tickets "ms-settlement/internal/tickets/service"
	"ms-settlement/internal/worker"
)

func TestSweepReleasesAbandonedReservations(t *testing.T) {
	db := dbtest.Open(t)
	clk := clock.NewFake(dbtest.Now)
	log := logger.NewNop()
	ledger := inventory.NewLedger(inventory.NewLocalLocker(), clk)
	const ttl = 15 * time.Minute

	ticketSvc := tickets.NewTicketService(db, ledger, nil, nil, clk, log, tickets.WithReservationTTL(ttl))
	paymentSvc := payment.NewPaymentService(db, ledger, clk, log, "")
	w := worker.NewExpiryWorker(paymentSvc, ticketSvc, clk, time.Minute, ttl, 10, log)
	ctx := context.Background()

	user := dbtest.SeedUser(t, db)
	event := dbtest.SeedEvent(t, db, models.EventActive)
	zone := dbtest.SeedZone(t, db, event.ID, "Floor", 2, 1000)
	in := tickets.CreateTicketInput{EventID: event.ID, ZoneID: zone.ID, UserID: user.ID}

	idle, err := ticketSvc.CreateTicket(ctx, in)
	require.NoError(t, err)
	paying, err := ticketSvc.CreateTicket(ctx, in)
	require.NoError(t, err)
	p, err := paymentSvc.Open(ctx, models.PaymentRequest{TicketID: paying.ID, UserID: user.ID, Amount: 1000, Method: models.MethodCash})
	require.NoError(t, err)

	_, err = ticketSvc.CreateTicket(ctx, in)
	require.Error(t, err, "zone is fully reserved")

	// Nothing is stale yet.
	assert.Equal(t, worker.SweepResult{}, w.Sweep(ctx))

	clk.Advance(ttl + time.Second)
	res := w.Sweep(ctx)
	assert.Equal(t, worker.SweepResult{PaymentsCancelled: 1, TicketsExpired: 2}, res)

	assert.Equal(t, models.PaymentCancelled, dbtest.Reload[models.Payment](t, db, p.ID).Status)
	assert.Equal(t, models.TicketExpired, dbtest.Reload[models.Ticket](t, db, idle.ID).Status)
	assert.Equal(t, models.TicketExpired, dbtest.Reload[models.Ticket](t, db, paying.ID).Status)

	_, err = ticketSvc.CreateTicket(ctx, in)
	assert.NoError(t, err)
}

// countingSweeper records sweeps and ends the run after stopAfter of them.
type countingSweeper struct {
	sweeps    int
	stopAfter int
	cancel    context.CancelFunc
}

func (c *countingSweeper) ListStalePending(context.Context, time.Duration, int) ([]models.Payment, error) {
	c.sweeps++
	if c.sweeps == c.stopAfter {
		c.cancel()
	}
	return nil, nil
}

func (c *countingSweeper) Abandon(context.Context, string, models.PaymentStatus, string) (bool, error) {
	return false, nil
}

func (c *countingSweeper) ExpiredReservations(context.Context, int) ([]models.Ticket, error) {
	return nil, nil
}

func (c *countingSweeper) ExpireReservation(context.Context, string) (bool, error) {
	return false, nil
}

func TestStartSweepsOnClockInterval(t *testing.T) {
	clk := clock.NewFake(dbtest.Now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := &countingSweeper{stopAfter: 3, cancel: cancel}
	w := worker.NewExpiryWorker(sweeper, sweeper, clk, 30*time.Second, time.Minute, 0, logger.NewNop())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Equal(t, 3, sweeper.sweeps)
	assert.Equal(t, dbtest.Now.Add(90*time.Second), clk.Now())
}

func TestStartStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := &countingSweeper{cancel: cancel}
	w := worker.NewExpiryWorker(sweeper, sweeper, clock.System(), time.Hour, time.Minute, 0, logger.NewNop())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Zero(t, sweeper.sweeps)
}
