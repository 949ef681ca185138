package models

import (
	"time"

	"github.com/uptrace/bun"
)

// EventHistory records a user's relationship with an event after purchase:
// attendance confirmation and an optional rating. One row per (user, event).
type EventHistory struct {
	bun.BaseModel `bun:"table:event_history"`

	ID                  string    `bun:"id,pk" json:"id"`
	UserID              string    `bun:"user_id,notnull" json:"user_id"`
	EventID             string    `bun:"event_id,notnull" json:"event_id"`
	AttendanceConfirmed bool      `bun:"attendance_confirmed,notnull" json:"attendance_confirmed"`
	ConfirmedAt         time.Time `bun:"confirmed_at,nullzero" json:"confirmed_at,omitempty"`
	Rating              int       `bun:"rating,nullzero" json:"rating,omitempty"`
	Comment             string    `bun:"comment" json:"comment,omitempty"`
	RatedAt             time.Time `bun:"rated_at,nullzero" json:"rated_at,omitempty"`
	Version             int64     `bun:"version,notnull" json:"version"`
	CreatedAt           time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt           time.Time `bun:"updated_at,notnull" json:"updated_at"`
}
