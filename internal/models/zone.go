package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type ZoneType string

const (
	ZoneGeneral   ZoneType = "general"
	ZoneVIP       ZoneType = "vip"
	ZoneBackstage ZoneType = "backstage"
	ZoneOther     ZoneType = "other"
)

func (t ZoneType) Valid() bool {
	switch t {
	case ZoneGeneral, ZoneVIP, ZoneBackstage, ZoneOther:
		return true
	}
	return false
}

type Zone struct {
	bun.BaseModel `bun:"table:zones"`

	ID        string    `bun:"id,pk" json:"id"`
	EventID   string    `bun:"event_id,notnull" json:"event_id"`
	Name      string    `bun:"name,notnull" json:"name"`
	NameKey   string    `bun:"name_key,notnull" json:"-"`
	Type      ZoneType  `bun:"zone_type,notnull" json:"zone_type"`
	Capacity  int       `bun:"capacity,notnull" json:"capacity"`
	BasePrice int64     `bun:"base_price,notnull" json:"base_price"`
	Benefits  []string  `bun:"benefits,type:jsonb" json:"benefits"`
	Version   int64     `bun:"version,notnull" json:"version"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// ZoneNameKey is the case-insensitive form zone names are unique on.
func ZoneNameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
