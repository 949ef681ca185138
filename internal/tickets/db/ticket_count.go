package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-settlement/internal/models"
)

// RecordSale adds one sold ticket to the zone's daily sales row.
func (d *DB) RecordSale(ctx context.Context, eventID, zoneID string, at time.Time) error {
	return d.bumpTicketCount(ctx, eventID, zoneID, at, "sold")
}

// RecordRefund adds one refunded ticket to the zone's daily sales row.
func (d *DB) RecordRefund(ctx context.Context, eventID, zoneID string, at time.Time) error {
	return d.bumpTicketCount(ctx, eventID, zoneID, at, "refunded")
}

func (d *DB) bumpTicketCount(ctx context.Context, eventID, zoneID string, at time.Time, column string) error {
	date := at.UTC().Truncate(24 * time.Hour)

	res, err := d.Bun.NewUpdate().
		Model((*models.TicketCount)(nil)).
		Set("? = ? + 1", bun.Ident(column), bun.Ident(column)).
		Where("event_id = ?", eventID).
		Where("zone_id = ?", zoneID).
		Where("date = ?", date).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}

	row := models.TicketCount{EventID: eventID, ZoneID: zoneID, Date: date}
	if column == "sold" {
		row.Sold = 1
	} else {
		row.Refunded = 1
	}
	_, err = d.Bun.NewInsert().Model(&row).Exec(ctx)
	return err
}

// GetTicketCountsForEvent returns the daily sales rows of an event.
func (d *DB) GetTicketCountsForEvent(ctx context.Context, eventID string) ([]models.TicketCount, error) {
	var counts []models.TicketCount
	err := d.Bun.NewSelect().
		Model(&counts).
		Where("event_id = ?", eventID).
		Order("date", "zone_id").
		Scan(ctx)
	return counts, err
}
