package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-settlement/internal/database/dbtest"
	"ms-settlement/internal/domain"
	"ms-settlement/internal/models"
	"ms-settlement/internal/tickets/db"
)

func TestUpdateTicketChecksVersion(t *testing.T) {
	bunDB := dbtest.Open(t)
	store := db.New(bunDB)
	ctx := context.Background()

	user := dbtest.SeedUser(t, bunDB)
	event := dbtest.SeedEvent(t, bunDB, models.EventActive)
	zone := dbtest.SeedZone(t, bunDB, event.ID, "General", 5, 2500)
	seeded := dbtest.SeedTicket(t, bunDB, zone, user.ID, models.TicketPendingPayment)

	first, err := store.GetTicketByID(ctx, seeded.ID)
	require.NoError(t, err)
	stale, err := store.GetTicketByID(ctx, seeded.ID)
	require.NoError(t, err)

	first.Status = models.TicketPaid
	first.UpdatedAt = dbtest.Now.Add(time.Minute)
	require.NoError(t, store.UpdateTicket(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	stale.Status = models.TicketCancelled
	err = store.UpdateTicket(ctx, stale)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)

	stored, err := store.GetTicketByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketPaid, stored.Status)
}

func TestGetTicketByIDNotFound(t *testing.T) {
	store := db.New(dbtest.Open(t))

	_, err := store.GetTicketByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestListExpiredReservations(t *testing.T) {
	bunDB := dbtest.Open(t)
	store := db.New(bunDB)
	ctx := context.Background()

	user := dbtest.SeedUser(t, bunDB)
	event := dbtest.SeedEvent(t, bunDB, models.EventActive)
	zone := dbtest.SeedZone(t, bunDB, event.ID, "General", 5, 2500)

	lapse := func(ticket *models.Ticket, at time.Time) {
		_, err := bunDB.NewUpdate().Model(ticket).
			Set("expires_at = ?", at).
			Where("id = ?", ticket.ID).
			Exec(ctx)
		require.NoError(t, err)
	}

	expired := dbtest.SeedTicket(t, bunDB, zone, user.ID, models.TicketPendingPayment)
	lapse(expired, dbtest.Now.Add(-time.Minute))

	fresh := dbtest.SeedTicket(t, bunDB, zone, user.ID, models.TicketPendingPayment)
	lapse(fresh, dbtest.Now.Add(time.Minute))

	paying := dbtest.SeedTicket(t, bunDB, zone, user.ID, models.TicketPendingPayment)
	lapse(paying, dbtest.Now.Add(-time.Minute))
	_, err := bunDB.NewInsert().Model(&models.Payment{
		ID:        uuid.NewString(),
		TicketID:  paying.ID,
		UserID:    user.ID,
		Amount:    paying.Price,
		Currency:  "usd",
		Method:    models.MethodCreditCard,
		Status:    models.PaymentPending,
		CreatedAt: dbtest.Now,
		UpdatedAt: dbtest.Now,
	}).Exec(ctx)
	require.NoError(t, err)

	paid := dbtest.SeedTicket(t, bunDB, zone, user.ID, models.TicketPaid)
	lapse(paid, dbtest.Now.Add(-time.Minute))

	tickets, err := store.ListExpiredReservations(ctx, dbtest.Now, 10)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, expired.ID, tickets[0].ID)
}

func TestTicketCountLedger(t *testing.T) {
	bunDB := dbtest.Open(t)
	store := db.New(bunDB)
	ctx := context.Background()

	eventID, zoneID := uuid.NewString(), uuid.NewString()
	morning := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 5, 4, 21, 0, 0, 0, time.UTC)
	nextDay := morning.Add(24 * time.Hour)

	require.NoError(t, store.RecordSale(ctx, eventID, zoneID, morning))
	require.NoError(t, store.RecordSale(ctx, eventID, zoneID, evening))
	require.NoError(t, store.RecordRefund(ctx, eventID, zoneID, evening))
	require.NoError(t, store.RecordSale(ctx, eventID, zoneID, nextDay))

	counts, err := store.GetTicketCountsForEvent(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, counts, 2)

	assert.Equal(t, 2, counts[0].Sold)
	assert.Equal(t, 1, counts[0].Refunded)
	assert.Equal(t, 1, counts[1].Sold)
	assert.Equal(t, 0, counts[1].Refunded)
}
