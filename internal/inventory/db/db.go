package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-settlement/internal/database"
	"ms-settlement/internal/domain"
	"ms-settlement/internal/models"
)

// DB is the capacity ledger's view of the zones and tickets tables. It must be
// bound to the transaction that performs the capacity-consuming write.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

// LockZone reads the zone row for update and bumps its version. On
// PostgreSQL the row stays locked until the surrounding transaction ends;
// on every dialect a concurrent writer that read the same version loses the
// version check.
func (d *DB) LockZone(ctx context.Context, zoneID string, now time.Time) (*models.Zone, error) {
	var zone models.Zone
	q := d.Bun.NewSelect().
		Model(&zone).
		Where("id = ?", zoneID).
		Limit(1)
	if database.IsPostgres(d.Bun) {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, database.NotFound(err, domain.ErrZoneNotFound, zoneID)
	}

	res, err := d.Bun.NewUpdate().
		Model((*models.Zone)(nil)).
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", zone.ID).
		Where("version = ?", zone.Version).
		Exec(ctx)
	if err := database.ExpectOneRow(res, err, "zone "+zone.ID); err != nil {
		return nil, err
	}
	zone.Version++
	zone.UpdatedAt = now
	return &zone, nil
}

// CountHeld returns the number of sold (paid or used) and pending_payment
// tickets of a zone.
func (d *DB) CountHeld(ctx context.Context, zoneID string) (sold, reserved int, err error) {
	var rows []struct {
		Status models.TicketStatus `bun:"status"`
		Count  int                 `bun:"count"`
	}
	err = d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Where("zone_id = ?", zoneID).
		Where("status IN (?)", bun.In([]models.TicketStatus{models.TicketPaid, models.TicketUsed, models.TicketPendingPayment})).
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rows {
		switch r.Status {
		case models.TicketPaid, models.TicketUsed:
			sold += r.Count
		case models.TicketPendingPayment:
			reserved = r.Count
		}
	}
	return sold, reserved, nil
}
