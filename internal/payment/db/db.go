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

func (d *DB) WithTx(tx bun.IDB) *DB {
	return &DB{Bun: tx}
}

func (d *DB) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := d.Bun.NewInsert().Model(payment).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return domain.ErrActivePaymentExists
	}
	return err
}

func (d *DB) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := d.Bun.NewSelect().
		Model(&payment).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, domain.ErrPaymentNotFound, id)
	}
	return &payment, nil
}

func (d *DB) GetPaymentsByTicket(ctx context.Context, ticketID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := d.Bun.NewSelect().
		Model(&payments).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC").
		Scan(ctx)
	return payments, err
}

// HasActivePayment reports whether the ticket has a pending or completed
// payment.
func (d *DB) HasActivePayment(ctx context.Context, ticketID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Payment)(nil)).
		Where("ticket_id = ?", ticketID).
		Where("status IN (?)", bun.In([]models.PaymentStatus{models.PaymentPending, models.PaymentCompleted})).
		Exists(ctx)
}

// UpdatePayment writes the mutable fields of payment guarded by its version.
func (d *DB) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	res, err := d.Bun.NewUpdate().
		Model(payment).
		Set("status = ?", payment.Status).
		Set("gateway_reference = ?", payment.GatewayReference).
		Set("failure_reason = ?", payment.FailureReason).
		Set("refund_reason = ?", payment.RefundReason).
		Set("settled_at = ?", nullTime(payment.SettledAt)).
		Set("refunded_at = ?", nullTime(payment.RefundedAt)).
		Set("updated_at = ?", payment.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", payment.ID).
		Where("version = ?", payment.Version).
		Exec(ctx)
	if err := database.ExpectOneRow(res, err, "payment "+payment.ID); err != nil {
		return err
	}
	payment.Version++
	return nil
}

// FailIfPending moves a payment to status only while it is still pending.
// It never touches a payment that already reached an outcome, and reports
// whether a row changed.
func (d *DB) FailIfPending(ctx context.Context, id string, status models.PaymentStatus, reason string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", status).
		Set("failure_reason = ?", reason).
		Set("updated_at = ?", now).
		Set("version = version + 1").
		Where("id = ?", id).
		Where("status = ?", models.PaymentPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClaimRefund marks a completed payment as being refunded by recording the
// reason. Only one caller can hold the claim; a claim older than staleBefore
// may be taken over. It reports whether this caller got the claim and bumps
// payment.Version when it did.
func (d *DB) ClaimRefund(ctx context.Context, payment *models.Payment, reason string, now, staleBefore time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("refund_reason = ?", reason).
		Set("updated_at = ?", now).
		Set("version = version + 1").
		Where("id = ?", payment.ID).
		Where("status = ?", models.PaymentCompleted).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("refund_reason IS NULL").
				WhereOr("refund_reason = ''").
				WhereOr("updated_at < ?", staleBefore)
		}).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	payment.RefundReason = reason
	payment.UpdatedAt = now
	payment.Version++
	return true, nil
}

// ReleaseRefundClaim drops a refund claim that did not reach the gateway's
// approval, leaving the payment completed.
func (d *DB) ReleaseRefundClaim(ctx context.Context, payment *models.Payment, now time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("refund_reason = ''").
		Set("updated_at = ?", now).
		Set("version = version + 1").
		Where("id = ?", payment.ID).
		Where("status = ?", models.PaymentCompleted).
		Where("version = ?", payment.Version).
		Exec(ctx)
	if err := database.ExpectOneRow(res, err, "payment "+payment.ID); err != nil {
		return err
	}
	payment.RefundReason = ""
	payment.UpdatedAt = now
	payment.Version++
	return nil
}

// ListStalePending returns payments that have been pending since before
// cutoff.
func (d *DB) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := d.Bun.NewSelect().
		Model(&payments).
		Where("status = ?", models.PaymentPending).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	return payments, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
