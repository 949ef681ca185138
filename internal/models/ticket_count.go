package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketCount is the daily sales ledger for one zone. It is a report, never an
// input to a capacity decision.
type TicketCount struct {
	bun.BaseModel `bun:"table:ticket_counts"`

	ID       int64     `bun:"id,pk,autoincrement" json:"-"`
	EventID  string    `bun:"event_id,notnull" json:"event_id"`
	ZoneID   string    `bun:"zone_id,notnull" json:"zone_id"`
	Date     time.Time `bun:"date,notnull" json:"date"`
	Sold     int       `bun:"sold,notnull" json:"sold"`
	Refunded int       `bun:"refunded,notnull" json:"refunded"`
}
