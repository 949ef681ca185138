package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventCreated   EventStatus = "created"
	EventActive    EventStatus = "active"
	EventFinished  EventStatus = "finished"
	EventCancelled EventStatus = "cancelled"
)

var eventStatusRank = map[EventStatus]int{
	EventCreated:   0,
	EventActive:    1,
	EventFinished:  2,
	EventCancelled: 3,
}

func (s EventStatus) Valid() bool {
	_, ok := eventStatusRank[s]
	return ok
}

// Closed reports whether the event no longer accepts ticket or zone changes.
func (s EventStatus) Closed() bool {
	return s == EventFinished || s == EventCancelled
}

// CanTransitionTo reports whether an event may move from s to next.
// Cancelled is absorbing, any other status only moves forward, and a freshly
// created event may move anywhere.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	if !next.Valid() || s == EventCancelled {
		return false
	}
	if s == EventCreated || next == EventCancelled {
		return true
	}
	return eventStatusRank[next] >= eventStatusRank[s]
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          string      `bun:"id,pk" json:"id"`
	Name        string      `bun:"name,notnull" json:"name"`
	Description string      `bun:"description" json:"description,omitempty"`
	Location    string      `bun:"location,notnull" json:"location"`
	StartAt     time.Time   `bun:"start_at,notnull" json:"start_at"`
	EndAt       time.Time   `bun:"end_at,notnull" json:"end_at"`
	Status      EventStatus `bun:"status,notnull" json:"status"`
	Version     int64       `bun:"version,notnull" json:"version"`
	CreatedAt   time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull" json:"updated_at"`

	Zones []*Zone `bun:"rel:has-many,join:id=event_id" json:"zones,omitempty"`
}
