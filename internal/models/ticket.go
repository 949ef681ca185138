package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketPendingPayment TicketStatus = "pending_payment"
	TicketPaid           TicketStatus = "paid"
	TicketCancelled      TicketStatus = "cancelled"
	TicketUsed           TicketStatus = "used"
	TicketExpired        TicketStatus = "expired"
)

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketPendingPayment: {TicketPaid, TicketCancelled, TicketExpired},
	TicketPaid:           {TicketCancelled, TicketUsed},
}

func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range ticketTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TicketStatus) Terminal() bool {
	return len(ticketTransitions[s]) == 0
}

// HoldsCapacity reports whether a ticket in this status occupies a unit of
// its zone, either as a reservation or as a sale.
func (s TicketStatus) HoldsCapacity() bool {
	return s == TicketPendingPayment || s == TicketPaid || s == TicketUsed
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID                 string       `bun:"id,pk" json:"id"`
	EventID            string       `bun:"event_id,notnull" json:"event_id"`
	ZoneID             string       `bun:"zone_id,notnull" json:"zone_id"`
	UserID             string       `bun:"user_id,notnull" json:"user_id"`
	Price              int64        `bun:"price,notnull" json:"price"`
	Status             TicketStatus `bun:"status,notnull" json:"status"`
	CancellationReason string       `bun:"cancellation_reason" json:"cancellation_reason,omitempty"`
	QRCode             []byte       `bun:"qr_code" json:"-"`
	ExpiresAt          time.Time    `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	Version            int64        `bun:"version,notnull" json:"version"`
	CreatedAt          time.Time    `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time    `bun:"updated_at,notnull" json:"updated_at"`
}
