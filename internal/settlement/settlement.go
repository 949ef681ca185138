// Package settlement turns a pending payment into a paid ticket. The gateway
// is called with no lock held; the capacity decision and both state flips are
// committed together under the zone lock.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-settlement/internal/clock"
	"ms-settlement/internal/domain"
	historydb "ms-settlement/internal/history/db"
	"ms-settlement/internal/inventory"
	inventorydb "ms-settlement/internal/inventory/db"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	paymentdb "ms-settlement/internal/payment/db"
	"ms-settlement/internal/payment/gateway"
	payment "ms-settlement/internal/payment/service"
	ticketsdb "ms-settlement/internal/tickets/db"
	"ms-settlement/internal/tickets/qr"
	tickets "ms-settlement/internal/tickets/service"
)

const refundReasonPrefix = "refund requested: "

// refundClaimTTL bounds how long an unfinished refund blocks another attempt
// on the same payment.
const refundClaimTTL = 5 * time.Minute

type EventPublisher interface {
	PublishSettlementEvent(ctx context.Context, event models.SettlementEvent) error
}

type Orchestrator struct {
	bunDB     *bun.DB
	payments  *payment.PaymentService
	gateway   gateway.Gateway
	ledger    *inventory.Ledger
	qr        *qr.QRGenerator
	publisher EventPublisher
	clock     clock.Clock
	log       *logger.Logger
}

func NewOrchestrator(bunDB *bun.DB, payments *payment.PaymentService, gw gateway.Gateway, ledger *inventory.Ledger,
	qrGen *qr.QRGenerator, publisher EventPublisher, clk clock.Clock, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		bunDB:     bunDB,
		payments:  payments,
		gateway:   gw,
		ledger:    ledger,
		qr:        qrGen,
		publisher: publisher,
		clock:     clk,
		log:       log,
	}
}

// CreateAndSettle opens a payment for the request and settles it. When the
// payment was opened but settlement failed, the failed payment is returned
// together with the error.
func (o *Orchestrator) CreateAndSettle(ctx context.Context, req models.PaymentRequest) (*models.Payment, error) {
	p, err := o.payments.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.Settle(ctx, p.ID)
}

// Settle processes an existing pending payment. It is never retried
// automatically; a ticket left pending_payment can receive a new payment.
func (o *Orchestrator) Settle(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, err := o.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentPending {
		return p, fmt.Errorf("%w: payment %s is %s", domain.ErrPaymentNotPending, p.ID, p.Status)
	}
	ticket, err := ticketsdb.New(o.bunDB).GetTicketByID(ctx, p.TicketID)
	if err != nil {
		return o.fail(ctx, p, models.PaymentFailed, err, "")
	}
	if err := payment.CheckPayable(ticket, p.Amount); err != nil {
		return o.fail(ctx, p, models.PaymentFailed, err, "")
	}

	charge, err := o.gateway.Charge(ctx, *p)
	if err != nil {
		return o.fail(ctx, p, models.PaymentFailed, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err), "")
	}
	if !charge.Approved {
		return o.fail(ctx, p, models.PaymentRejected, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, charge.DeclineReason), "")
	}

	settled, paid, err := o.commit(ctx, p.ID, ticket.ZoneID, charge.Reference)
	if err != nil {
		return o.fail(ctx, p, models.PaymentFailed, err, charge.Reference)
	}

	o.log.LogPayment("SETTLED", settled.ID, fmt.Sprintf("ticket %s paid, %d %s", paid.ID, settled.Amount, settled.Currency))
	o.publish(ctx, models.EventTypePaymentCompleted, settled, paid, "")
	return settled, nil
}

// commit flips ticket and payment in one transaction under the zone lock.
func (o *Orchestrator) commit(ctx context.Context, paymentID, zoneID, reference string) (*models.Payment, *models.Ticket, error) {
	var (
		settled *models.Payment
		paid    *models.Ticket
	)
	err := o.ledger.Serialize(ctx, zoneID, func(ctx context.Context) error {
		return o.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			payments := paymentdb.New(tx)
			ticketStore := ticketsdb.New(tx)

			p, err := payments.GetPaymentByID(ctx, paymentID)
			if err != nil {
				return err
			}
			if p.Status != models.PaymentPending {
				return fmt.Errorf("%w: payment %s is %s", domain.ErrPaymentNotPending, p.ID, p.Status)
			}
			t, err := ticketStore.GetTicketByID(ctx, p.TicketID)
			if err != nil {
				return err
			}
			if err := payment.CheckPayable(t, p.Amount); err != nil {
				return err
			}
			if _, _, err := o.ledger.AdmitSettlement(ctx, inventorydb.New(tx), zoneID); err != nil {
				return err
			}

			now := o.clock.Now()
			if err := tickets.Transition(t, models.TicketPaid, now); err != nil {
				return err
			}
			if o.qr != nil {
				code, err := o.qr.GenerateEncryptedQR(*t)
				if err != nil {
					return fmt.Errorf("generate qr for ticket %s: %w", t.ID, err)
				}
				t.QRCode = code
			}
			if err := ticketStore.UpdateTicket(ctx, t); err != nil {
				return err
			}

			if err := payment.Transition(p, models.PaymentCompleted, now); err != nil {
				return err
			}
			p.GatewayReference = reference
			if err := payments.UpdatePayment(ctx, p); err != nil {
				return err
			}

			if _, err := historydb.New(tx).EnsureRecord(ctx, p.UserID, t.EventID, now); err != nil {
				return err
			}
			if err := ticketStore.RecordSale(ctx, t.EventID, t.ZoneID, now); err != nil {
				return err
			}

			settled, paid = p, t
			return nil
		})
	})
	return settled, paid, err
}

// fail records cause on a payment that is still pending and returns the
// payment as stored together with cause. A charge that already went through
// is refunded at the gateway.
func (o *Orchestrator) fail(ctx context.Context, p *models.Payment, status models.PaymentStatus, cause error, chargedRef string) (*models.Payment, error) {
	// The outcome must be recorded even if the caller's context is gone.
	ctx = context.WithoutCancel(ctx)

	changed, err := o.payments.Abandon(ctx, p.ID, status, cause.Error())
	if err != nil {
		o.log.Error("PAYMENT", fmt.Sprintf("Could not record failure of payment %s: %v", p.ID, err))
	}
	stored, err := o.payments.GetPayment(ctx, p.ID)
	if err != nil {
		stored = p
	}

	// A concurrent attempt may have settled the payment with its own charge;
	// any other charge made here has to go back.
	if chargedRef != "" && !(stored.Status == models.PaymentCompleted && stored.GatewayReference == chargedRef) {
		charged := *p
		charged.GatewayReference = chargedRef
		if err := o.gateway.Refund(ctx, charged, "settlement failed"); err != nil {
			o.log.Error("PAYMENT", fmt.Sprintf("Compensating refund for payment %s (%s) failed: %v", p.ID, chargedRef, err))
		}
	}

	o.log.Warn("PAYMENT", fmt.Sprintf("Settlement of payment %s ended %s: %v", p.ID, stored.Status, cause))

	if changed {
		eventType := models.EventTypePaymentFailed
		if status == models.PaymentRejected {
			eventType = models.EventTypePaymentRejected
		}
		o.publish(ctx, eventType, stored, nil, cause.Error())
	}
	return stored, cause
}

// Refund reverses a completed payment and cancels its ticket. The payment is
// claimed before the gateway is asked, so concurrent refunds of one payment
// reach the gateway once; local state only changes once the money is back.
func (o *Orchestrator) Refund(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Invalid("refund reason is required")
	}

	p, err := o.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentCompleted {
		return nil, fmt.Errorf("%w: payment %s is %s", domain.ErrNotCompleted, p.ID, p.Status)
	}
	ticket, err := ticketsdb.New(o.bunDB).GetTicketByID(ctx, p.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.TicketUsed {
		return nil, fmt.Errorf("%w: ticket %s was checked in", domain.ErrAlreadyUsed, ticket.ID)
	}

	if err := o.claimRefund(ctx, p, reason); err != nil {
		return nil, err
	}

	if err := o.gateway.Refund(ctx, *p, reason); err != nil {
		if rerr := paymentdb.New(o.bunDB).ReleaseRefundClaim(context.WithoutCancel(ctx), p, o.clock.Now()); rerr != nil {
			o.log.Error("PAYMENT", fmt.Sprintf("Could not release refund claim of payment %s: %v", p.ID, rerr))
		}
		return nil, fmt.Errorf("%w: refund of payment %s: %v", domain.ErrGatewayUnavailable, p.ID, err)
	}
	claimed := p.Version

	var (
		refunded  *models.Payment
		cancelled *models.Ticket
	)
	err = o.ledger.Serialize(ctx, ticket.ZoneID, func(ctx context.Context) error {
		return o.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			payments := paymentdb.New(tx)
			ticketStore := ticketsdb.New(tx)
			now := o.clock.Now()

			p, err := payments.GetPaymentByID(ctx, paymentID)
			if err != nil {
				return err
			}
			if p.Version != claimed {
				return fmt.Errorf("%w: payment %s", domain.ErrRefundInProgress, p.ID)
			}
			if err := payment.Transition(p, models.PaymentRefunded, now); err != nil {
				return err
			}
			p.RefundReason = reason
			if err := payments.UpdatePayment(ctx, p); err != nil {
				return err
			}

			t, err := ticketStore.GetTicketByID(ctx, p.TicketID)
			if err != nil {
				return err
			}
			if t.Status != models.TicketCancelled {
				if err := tickets.Transition(t, models.TicketCancelled, now); err != nil {
					return err
				}
				t.CancellationReason = refundReasonPrefix + reason
				if err := ticketStore.UpdateTicket(ctx, t); err != nil {
					return err
				}
			}
			if err := ticketStore.RecordRefund(ctx, t.EventID, t.ZoneID, now); err != nil {
				return err
			}

			refunded, cancelled = p, t
			return nil
		})
	})
	if err != nil {
		o.log.Error("PAYMENT", fmt.Sprintf("Refund of payment %s accepted by gateway but not recorded: %v", paymentID, err))
		return nil, err
	}

	o.log.LogPayment("REFUNDED", refunded.ID, reason)
	o.publish(ctx, models.EventTypePaymentRefunded, refunded, cancelled, reason)
	return refunded, nil
}

// claimRefund takes the refund claim on p or reports who holds the payment.
func (o *Orchestrator) claimRefund(ctx context.Context, p *models.Payment, reason string) error {
	now := o.clock.Now()
	store := paymentdb.New(o.bunDB)
	ok, err := store.ClaimRefund(ctx, p, reason, now, now.Add(-refundClaimTTL))
	if err != nil {
		return fmt.Errorf("claim refund of payment %s: %w", p.ID, err)
	}
	if ok {
		return nil
	}
	current, err := store.GetPaymentByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if current.Status != models.PaymentCompleted {
		return fmt.Errorf("%w: payment %s is %s", domain.ErrNotCompleted, p.ID, current.Status)
	}
	return fmt.Errorf("%w: payment %s", domain.ErrRefundInProgress, p.ID)
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, p *models.Payment, t *models.Ticket, reason string) {
	if o.publisher == nil {
		return
	}
	event := models.SettlementEvent{
		Type:      eventType,
		PaymentID: p.ID,
		TicketID:  p.TicketID,
		UserID:    p.UserID,
		Status:    string(p.Status),
		Amount:    p.Amount,
		Reason:    reason,
		Timestamp: o.clock.Now(),
	}
	if t != nil {
		event.EventID = t.EventID
		event.ZoneID = t.ZoneID
	}
	if err := o.publisher.PublishSettlementEvent(ctx, event); err != nil {
		o.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for payment %s: %v", eventType, p.ID, err))
	}
}

// IsRetryable reports whether a settlement error may succeed with a new
// payment attempt for the same ticket.
func IsRetryable(err error) bool {
	return domain.KindOf(err) == domain.KindTransientFailure && !errors.Is(err, domain.ErrPaymentDeclined)
}
