// Package dbtest opens throwaway SQLite databases with the full schema and
// seeds the rows most tests need.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-settlement/internal/database"
	"ms-settlement/internal/models"
)

// Now is the reference instant tests run at.
var Now = time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)

func Open(t testing.TB) *bun.DB {
	t.Helper()
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	require.NoError(t, database.CreateSchema(context.Background(), db))
	t.Cleanup(func() { db.Close() })
	return db
}

func SeedUser(t testing.TB, db bun.IDB) *models.User {
	t.Helper()
	id := uuid.NewString()
	user := &models.User{
		ID:        id,
		Email:     id + "@example.com",
		FullName:  "Test User",
		CreatedAt: Now,
	}
	_, err := db.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)
	return user
}

func SeedEvent(t testing.TB, db bun.IDB, status models.EventStatus) *models.Event {
	t.Helper()
	event := &models.Event{
		ID:        uuid.NewString(),
		Name:      "Test Event",
		Location:  "Main Hall",
		StartAt:   Now.Add(24 * time.Hour),
		EndAt:     Now.Add(28 * time.Hour),
		Status:    status,
		CreatedAt: Now,
		UpdatedAt: Now,
	}
	_, err := db.NewInsert().Model(event).Exec(context.Background())
	require.NoError(t, err)
	return event
}

func SeedZone(t testing.TB, db bun.IDB, eventID, name string, capacity int, price int64) *models.Zone {
	t.Helper()
	zone := &models.Zone{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Name:      name,
		NameKey:   models.ZoneNameKey(name),
		Type:      models.ZoneGeneral,
		Capacity:  capacity,
		BasePrice: price,
		Benefits:  []string{},
		CreatedAt: Now,
		UpdatedAt: Now,
	}
	_, err := db.NewInsert().Model(zone).Exec(context.Background())
	require.NoError(t, err)
	return zone
}

// SeedTicket inserts a ticket directly, bypassing the capacity ledger.
func SeedTicket(t testing.TB, db bun.IDB, zone *models.Zone, userID string, status models.TicketStatus) *models.Ticket {
	t.Helper()
	ticket := &models.Ticket{
		ID:        uuid.NewString(),
		EventID:   zone.EventID,
		ZoneID:    zone.ID,
		UserID:    userID,
		Price:     zone.BasePrice,
		Status:    status,
		CreatedAt: Now,
		UpdatedAt: Now,
	}
	_, err := db.NewInsert().Model(ticket).Exec(context.Background())
	require.NoError(t, err)
	return ticket
}

// Reload reads a row back by primary key into model.
func Reload[T any](t testing.TB, db bun.IDB, id string) *T {
	t.Helper()
	model := new(T)
	err := db.NewSelect().Model(model).Where("id = ?", id).Scan(context.Background())
	require.NoError(t, err)
	return model
}
