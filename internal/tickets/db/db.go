package db

import (
	"context"
	"time"

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

// WithTx returns a store bound to tx.
func (d *DB) WithTx(tx bun.IDB) *DB {
	return &DB{Bun: tx}
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, domain.ErrTicketNotFound, id)
	}
	return &ticket, nil
}

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}

// UpdateTicket writes the mutable fields of ticket if nobody else changed the
// row since it was read, then bumps ticket.Version.
func (d *DB) UpdateTicket(ctx context.Context, ticket *models.Ticket) error {
	res, err := d.Bun.NewUpdate().
		Model(ticket).
		Set("status = ?", ticket.Status).
		Set("cancellation_reason = ?", ticket.CancellationReason).
		Set("qr_code = ?", ticket.QRCode).
		Set("expires_at = ?", nullTime(ticket.ExpiresAt)).
		Set("updated_at = ?", ticket.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", ticket.ID).
		Where("version = ?", ticket.Version).
		Exec(ctx)
	if err := database.ExpectOneRow(res, err, "ticket "+ticket.ID); err != nil {
		return err
	}
	ticket.Version++
	return nil
}

func (d *DB) GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return tickets, err
}

func (d *DB) GetTicketsByZone(ctx context.Context, zoneID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("zone_id = ?", zoneID).
		Order("created_at ASC").
		Scan(ctx)
	return tickets, err
}

func (d *DB) GetTicketsByEvent(ctx context.Context, eventID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("event_id = ?", eventID).
		Scan(ctx)
	return tickets, err
}

func (d *DB) CountTicketsInZone(ctx context.Context, zoneID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("zone_id = ?", zoneID).
		Count(ctx)
}

// ListExpiredReservations returns tickets still awaiting payment whose
// reservation lease ended before now and that have no payment in flight.
func (d *DB) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("status = ?", models.TicketPendingPayment).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", now).
		Where("NOT EXISTS (SELECT 1 FROM payments AS p WHERE p.ticket_id = ticket.id AND p.status = ?)", models.PaymentPending).
		Order("expires_at ASC").
		Limit(limit).
		Scan(ctx)
	return tickets, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
