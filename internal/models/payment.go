package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentCancelled PaymentStatus = "cancelled"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed, PaymentRejected, PaymentCancelled},
	PaymentCompleted: {PaymentRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether the payment still belongs to its ticket's live
// payment lineage. A ticket has at most one active payment.
func (s PaymentStatus) Active() bool {
	return s == PaymentPending || s == PaymentCompleted
}

type PaymentMethod string

const (
	MethodCreditCard PaymentMethod = "credit_card"
	MethodDebitCard  PaymentMethod = "debit_card"
	MethodTransfer   PaymentMethod = "transfer"
	MethodCash       PaymentMethod = "cash"
	MethodWallet     PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCreditCard, MethodDebitCard, MethodTransfer, MethodCash, MethodWallet:
		return true
	}
	return false
}

type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID               string        `bun:"id,pk" json:"id"`
	TicketID         string        `bun:"ticket_id,notnull" json:"ticket_id"`
	UserID           string        `bun:"user_id,notnull" json:"user_id"`
	Amount           int64         `bun:"amount,notnull" json:"amount"`
	Currency         string        `bun:"currency,notnull" json:"currency"`
	Method           PaymentMethod `bun:"method,notnull" json:"method"`
	Status           PaymentStatus `bun:"status,notnull" json:"status"`
	GatewayReference string        `bun:"gateway_reference" json:"gateway_reference,omitempty"`
	FailureReason    string        `bun:"failure_reason" json:"failure_reason,omitempty"`
	RefundReason     string        `bun:"refund_reason" json:"refund_reason,omitempty"`
	SettledAt        time.Time     `bun:"settled_at,nullzero" json:"settled_at,omitempty"`
	RefundedAt       time.Time     `bun:"refunded_at,nullzero" json:"refunded_at,omitempty"`
	Version          int64         `bun:"version,notnull" json:"version"`
	CreatedAt        time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// PaymentRequest is a purchase attempt for one ticket. It arrives over HTTP or
// from the payment request topic.
type PaymentRequest struct {
	TicketID string        `json:"ticket_id" validate:"required"`
	UserID   string        `json:"user_id" validate:"required"`
	Amount   int64         `json:"amount" validate:"required"`
	Method   PaymentMethod `json:"method" validate:"required"`
}

// SettlementEvent is published after a settlement outcome is committed.
type SettlementEvent struct {
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id,omitempty"`
	TicketID  string    `json:"ticket_id"`
	EventID   string    `json:"event_id,omitempty"`
	ZoneID    string    `json:"zone_id,omitempty"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentRejected  = "payment.rejected"
	EventTypePaymentRefunded  = "payment.refunded"
	EventTypeTicketCancelled  = "ticket.cancelled"
	EventTypeTicketExpired    = "ticket.expired"
)
