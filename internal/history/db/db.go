package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-settlement/internal/database"
	"ms-settlement/internal/domain"
	"ms-settlement/internal/models"
)

type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

func (d *DB) WithTx(tx bun.IDB) *DB {
	return &DB{Bun: tx}
}

// EnsureRecord returns the (user, event) history row, creating it when absent.
// Concurrent callers converge on a single row through the unique index.
func (d *DB) EnsureRecord(ctx context.Context, userID, eventID string, now time.Time) (*models.EventHistory, error) {
	record := &models.EventHistory{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := d.Bun.NewInsert().
		Model(record).
		On("CONFLICT (user_id, event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("insert history for user %s event %s: %w", userID, eventID, err)
	}
	return d.GetRecord(ctx, userID, eventID)
}

func (d *DB) GetRecord(ctx context.Context, userID, eventID string) (*models.EventHistory, error) {
	var record models.EventHistory
	err := d.Bun.NewSelect().
		Model(&record).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, domain.ErrNoHistory, userID+"/"+eventID)
	}
	return &record, nil
}

func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.EventHistory, error) {
	var records []models.EventHistory
	err := d.Bun.NewSelect().
		Model(&records).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return records, err
}

func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.EventHistory, error) {
	var records []models.EventHistory
	err := d.Bun.NewSelect().
		Model(&records).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Scan(ctx)
	return records, err
}

func (d *DB) UpdateRecord(ctx context.Context, record *models.EventHistory) error {
	res, err := d.Bun.NewUpdate().
		Model(record).
		Set("attendance_confirmed = ?", record.AttendanceConfirmed).
		Set("confirmed_at = ?", nullTime(record.ConfirmedAt)).
		Set("rating = ?", nullInt(record.Rating)).
		Set("comment = ?", record.Comment).
		Set("rated_at = ?", nullTime(record.RatedAt)).
		Set("updated_at = ?", record.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", record.ID).
		Where("version = ?", record.Version).
		Exec(ctx)
	if err := database.ExpectOneRow(res, err, "history "+record.ID); err != nil {
		return err
	}
	record.Version++
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
