package tickets_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-settlement/internal/clock"
	"ms-settlement/internal/database/dbtest"
	"ms-settlement/internal/domain"
	"ms-settlement/internal/inventory"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/tickets/qr"
	tickets "ms-settlement/internal/tickets/service"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishSettlementEvent(ctx context.Context, event models.SettlementEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fixture struct {
	db        *bun.DB
	clock     *clock.Fake
	publisher *MockPublisher
	qr        *qr.QRGenerator
	svc       *tickets.TicketService
	user      *models.User
	event     *models.Event
	zone      *models.Zone
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &fixture{
		db:        db,
		clock:     clock.NewFake(dbtest.Now),
		publisher: new(MockPublisher),
		qr:        qr.NewQRGenerator("test-secret"),
	}
	f.publisher.On("PublishSettlementEvent", mock.Anything, mock.Anything).Return(nil).Maybe()
	ledger := inventory.NewLedger(inventory.NewLocalLocker(), f.clock)
	f.svc = tickets.NewTicketService(db, ledger, f.publisher, f.qr, f.clock, logger.NewNop(),
		tickets.WithReservationTTL(10*time.Minute))
	f.user = dbtest.SeedUser(t, db)
	f.event = dbtest.SeedEvent(t, db, models.EventActive)
	f.zone = dbtest.SeedZone(t, db, f.event.ID, "VIP", capacity, 5000)
	return f
}

func (f *fixture) input() tickets.CreateTicketInput {
	return tickets.CreateTicketInput{EventID: f.event.ID, ZoneID: f.zone.ID, UserID: f.user.ID}
}

func TestCreateTicket(t *testing.T) {
	f := newFixture(t, 2)

	ticket, err := f.svc.CreateTicket(context.Background(), f.input())
	require.NoError(t, err)

	assert.Equal(t, models.TicketPendingPayment, ticket.Status)
	assert.Equal(t, int64(5000), ticket.Price)
	assert.Equal(t, dbtest.Now.Add(10*time.Minute), ticket.ExpiresAt)

	stored := dbtest.Reload[models.Ticket](t, f.db, ticket.ID)
	assert.Equal(t, ticket.ZoneID, stored.ZoneID)
	assert.Equal(t, models.TicketPendingPayment, stored.Status)
}

func TestCreateTicketPriceOverride(t *testing.T) {
	f := newFixture(t, 2)
	in := f.input()

	price := int64(4200)
	in.Price = &price
	ticket, err := f.svc.CreateTicket(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(4200), ticket.Price)

	zero := int64(0)
	in.Price = &zero
	_, err = f.svc.CreateTicket(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestCreateTicketRejectsFullZone(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.CreateTicket(ctx, f.input())
	require.NoError(t, err)

	_, err = f.svc.CreateTicket(ctx, f.input())
	assert.ErrorIs(t, err, domain.ErrCapacityExhausted)
	assert.Equal(t, domain.KindCapacityExhausted, domain.KindOf(err))
}

func TestCreateTicketReleasedCapacityIsReusable(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	first, err := f.svc.CreateTicket(ctx, f.input())
	require.NoError(t, err)
	_, err = f.svc.CancelTicket(ctx, first.ID, "changed my mind")
	require.NoError(t, err)

	_, err = f.svc.CreateTicket(ctx, f.input())
	assert.NoError(t, err)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	otherEvent := dbtest.SeedEvent(t, f.db, models.EventActive)
	otherZone := dbtest.SeedZone(t, f.db, otherEvent.ID, "Floor", 10, 1000)
	closed := dbtest.SeedEvent(t, f.db, models.EventFinished)
	closedZone := dbtest.SeedZone(t, f.db, closed.ID, "Floor", 10, 1000)

	tests := []struct {
		name string
		in   tickets.CreateTicketInput
		want error
	}{
		{"missing user", tickets.CreateTicketInput{EventID: f.event.ID, ZoneID: f.zone.ID}, domain.ErrInvalidInput},
		{"unknown event", tickets.CreateTicketInput{EventID: "nope", ZoneID: f.zone.ID, UserID: f.user.ID}, domain.ErrEventNotFound},
		{"unknown zone", tickets.CreateTicketInput{EventID: f.event.ID, ZoneID: "nope", UserID: f.user.ID}, domain.ErrZoneNotFound},
		{"zone of another event", tickets.CreateTicketInput{EventID: f.event.ID, ZoneID: otherZone.ID, UserID: f.user.ID}, domain.ErrZoneNotInEvent},
		{"unknown user", tickets.CreateTicketInput{EventID: f.event.ID, ZoneID: f.zone.ID, UserID: "ghost"}, domain.ErrUserNotFound},
		{"closed event", tickets.CreateTicketInput{EventID: closed.ID, ZoneID: closedZone.ID, UserID: f.user.ID}, domain.ErrEventClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTicket(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConcurrentCreateNeverOverbooks(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CreateTicket(ctx, f.input()); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrCapacityExhausted)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, created)
}

func TestCancelTicket(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, f.input())
	require.NoError(t, err)

	cancelled, err := f.svc.CancelTicket(ctx, ticket.ID, "  duplicate order ")
	require.NoError(t, err)
	assert.Equal(t, models.TicketCancelled, cancelled.Status)
	assert.Equal(t, "duplicate order", cancelled.CancellationReason)
	assert.True(t, cancelled.ExpiresAt.IsZero())

	f.publisher.AssertCalled(t, "PublishSettlementEvent", mock.Anything, mock.MatchedBy(func(e models.SettlementEvent) bool {
		return e.Type == models.EventTypeTicketCancelled && e.TicketID == ticket.ID
	}))

	_, err = f.svc.CancelTicket(ctx, ticket.ID, "again")
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)

	_, err = f.svc.CancelTicket(ctx, "missing", "")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	pending := dbtest.SeedTicket(t, f.db, f.zone, f.user.ID, models.TicketPendingPayment)
	_, err := f.svc.CheckIn(ctx, pending.ID)
	assert.ErrorIs(t, err, domain.ErrTicketNotPaid)

	paid := dbtest.SeedTicket(t, f.db, f.zone, f.user.ID, models.TicketPaid)
	used, err := f.svc.CheckIn(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, used.Status)

	_, err = f.svc.CheckIn(ctx, paid.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyUsed)

	_, err = f.svc.CancelTicket(ctx, paid.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrAlreadyUsed)
}

func TestCheckInWithToken(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	paid := dbtest.SeedTicket(t, f.db, f.zone, f.user.ID, models.TicketPaid)
	token, err := f.qr.Token(*paid)
	require.NoError(t, err)

	used, err := f.svc.CheckInWithToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, used.Status)

	_, err = f.svc.CheckInWithToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, domain.ErrInvalidQRToken)

	forged, err := qr.NewQRGenerator("other-secret").Token(*paid)
	require.NoError(t, err)
	_, err = f.svc.CheckInWithToken(ctx, forged)
	assert.ErrorIs(t, err, domain.ErrInvalidQRToken)
}

func TestExpireReservation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, f.input())
	require.NoError(t, err)

	expired, err := f.svc.ExpireReservation(ctx, ticket.ID)
	require.NoError(t, err)
	assert.False(t, expired, "lease still running")

	f.clock.Advance(11 * time.Minute)
	expired, err = f.svc.ExpireReservation(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	stored := dbtest.Reload[models.Ticket](t, f.db, ticket.ID)
	assert.Equal(t, models.TicketExpired, stored.Status)

	// The unit is free again.
	_, err = f.svc.CreateTicket(ctx, f.input())
	assert.NoError(t, err)

	expired, err = f.svc.ExpireReservation(ctx, ticket.ID)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestGetTickets(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateTicket(ctx, f.input())
		require.NoError(t, err)
	}

	byUser, err := f.svc.GetTicketsByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, byUser, 3)

	byZone, err := f.svc.GetTicketsByZone(ctx, f.zone.ID)
	require.NoError(t, err)
	assert.Len(t, byZone, 3)

	_, err = f.svc.GetTicketsByZone(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)

	_, err = f.svc.GetTicket(ctx, byUser[0].ID)
	assert.NoError(t, err)
}
