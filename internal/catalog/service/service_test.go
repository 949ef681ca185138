package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	catalog "ms-settlement/internal/catalog/service"
	"ms-settlement/internal/clock"
	"ms-settlement/internal/database/dbtest"
	"ms-settlement/internal/domain"
	"ms-settlement/internal/inventory"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

func newService(t *testing.T) (*catalog.CatalogService, *bun.DB) {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.NewFake(dbtest.Now)
	ledger := inventory.NewLedger(inventory.NewLocalLocker(), clk)
	return catalog.NewCatalogService(db, ledger, clk, logger.NewNop()), db
}

func eventInput() catalog.EventInput {
	return catalog.EventInput{
		Name:     "Summer Fest",
		Location: "Riverside Park",
		StartAt:  dbtest.Now.Add(48 * time.Hour),
		EndAt:    dbtest.Now.Add(52 * time.Hour),
	}
}

func TestCreateEvent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	event, err := svc.CreateEvent(ctx, eventInput())
	require.NoError(t, err)
	assert.Equal(t, models.EventCreated, event.Status)

	got, err := svc.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summer Fest", got.Name)

	bad := eventInput()
	bad.EndAt = bad.StartAt
	_, err = svc.CreateEvent(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeWindow)

	bad = eventInput()
	bad.Name = "  "
	_, err = svc.CreateEvent(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEventStatusRules(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	event, err := svc.CreateEvent(ctx, eventInput())
	require.NoError(t, err)

	event, err = svc.ChangeEventStatus(ctx, event.ID, models.EventActive)
	require.NoError(t, err)
	assert.Equal(t, models.EventActive, event.Status)

	_, err = svc.ChangeEventStatus(ctx, event.ID, models.EventCreated)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.ChangeEventStatus(ctx, event.ID, "postponed")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.ChangeEventStatus(ctx, event.ID, models.EventCancelled)
	require.NoError(t, err)

	_, err = svc.ChangeEventStatus(ctx, event.ID, models.EventActive)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.UpdateEvent(ctx, event.ID, eventInput())
	assert.ErrorIs(t, err, domain.ErrEventClosed)
}

func TestUpdateEvent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	event, err := svc.CreateEvent(ctx, eventInput())
	require.NoError(t, err)

	in := eventInput()
	in.Location = "Main Arena"
	updated, err := svc.UpdateEvent(ctx, event.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Main Arena", updated.Location)
	assert.Equal(t, event.Version+1, updated.Version)

	_, err = svc.UpdateEvent(ctx, "nope", in)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestCreateZone(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	event := dbtest.SeedEvent(t, db, models.EventActive)

	zone, err := svc.CreateZone(ctx, event.ID, catalog.ZoneInput{
		Name:      "VIP",
		Type:      models.ZoneVIP,
		Capacity:  50,
		BasePrice: 12000,
		Benefits:  []string{"lounge", "parking"},
	})
	require.NoError(t, err)
	assert.Equal(t, "vip", zone.NameKey)

	stored := dbtest.Reload[models.Zone](t, db, zone.ID)
	assert.Equal(t, []string{"lounge", "parking"}, stored.Benefits)

	defaults, err := svc.CreateZone(ctx, event.ID, catalog.ZoneInput{Name: "Floor", Capacity: 1, BasePrice: 1})
	require.NoError(t, err)
	assert.Equal(t, models.ZoneGeneral, defaults.Type)
	assert.Equal(t, []string{}, defaults.Benefits)

	zones, err := svc.ListZones(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, zones, 2)
}

func TestCreateZoneValidation(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	event := dbtest.SeedEvent(t, db, models.EventActive)
	finished := dbtest.SeedEvent(t, db, models.EventFinished)
	dbtest.SeedZone(t, db, event.ID, "VIP", 10, 1000)

	tests := []struct {
		name    string
		eventID string
		in      catalog.ZoneInput
		want    error
	}{
		{"zero capacity", event.ID, catalog.ZoneInput{Name: "A", Capacity: 0, BasePrice: 1}, domain.ErrInvalidCapacity},
		{"free zone", event.ID, catalog.ZoneInput{Name: "A", Capacity: 1, BasePrice: 0}, domain.ErrInvalidPrice},
		{"bad type", event.ID, catalog.ZoneInput{Name: "A", Type: "balcony", Capacity: 1, BasePrice: 1}, domain.ErrInvalidInput},
		{"duplicate name", event.ID, catalog.ZoneInput{Name: " vip ", Capacity: 1, BasePrice: 1}, domain.ErrDuplicateZoneName},
		{"closed event", finished.ID, catalog.ZoneInput{Name: "A", Capacity: 1, BasePrice: 1}, domain.ErrEventClosed},
		{"unknown event", "nope", catalog.ZoneInput{Name: "A", Capacity: 1, BasePrice: 1}, domain.ErrEventNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateZone(ctx, tt.eventID, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateZoneCapacityFloor(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, db)
	event := dbtest.SeedEvent(t, db, models.EventActive)
	zone := dbtest.SeedZone(t, db, event.ID, "Floor", 5, 1000)
	dbtest.SeedZone(t, db, event.ID, "Balcony", 5, 1000)
	dbtest.SeedTicket(t, db, zone, user.ID, models.TicketPaid)
	dbtest.SeedTicket(t, db, zone, user.ID, models.TicketUsed)
	dbtest.SeedTicket(t, db, zone, user.ID, models.TicketPendingPayment)
	dbtest.SeedTicket(t, db, zone, user.ID, models.TicketCancelled)

	_, err := svc.UpdateZone(ctx, zone.ID, catalog.ZoneInput{Name: "Floor", Capacity: 2, BasePrice: 1000})
	assert.ErrorIs(t, err, domain.ErrInvalidCapacity)

	_, err = svc.UpdateZone(ctx, zone.ID, catalog.ZoneInput{Name: "balcony", Capacity: 5, BasePrice: 1000})
	assert.ErrorIs(t, err, domain.ErrDuplicateZoneName)

	updated, err := svc.UpdateZone(ctx, zone.ID, catalog.ZoneInput{Name: "Pit", Capacity: 3, BasePrice: 1500})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Capacity)
	assert.Equal(t, "Pit", dbtest.Reload[models.Zone](t, db, zone.ID).Name)
}

func TestDeleteZone(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, db)
	event := dbtest.SeedEvent(t, db, models.EventActive)
	empty := dbtest.SeedZone(t, db, event.ID, "Empty", 5, 1000)
	used := dbtest.SeedZone(t, db, event.ID, "Used", 5, 1000)
	dbtest.SeedTicket(t, db, used, user.ID, models.TicketCancelled)

	require.NoError(t, svc.DeleteZone(ctx, empty.ID))
	_, err := svc.GetZone(ctx, empty.ID)
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)

	err = svc.DeleteZone(ctx, used.ID)
	assert.ErrorIs(t, err, domain.ErrZoneHasTickets)

	err = svc.DeleteZone(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrZoneNotFound)
}

func TestCreateUser(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, catalog.UserInput{Email: " Ana@Example.com ", FullName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)

	_, err = svc.CreateUser(ctx, catalog.UserInput{Email: "ana@example.com", FullName: "Other"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	got, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.FullName)

	_, err = svc.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
