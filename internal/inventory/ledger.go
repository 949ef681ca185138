package inventory

import (
	"context"
	"fmt"
	"time"

	"ms-settlement/internal/clock"
	"ms-settlement/internal/domain"
	"ms-settlement/internal/models"
)

// Usage is a live snapshot of one zone's inventory. Sold counts paid and
// used tickets; a checked-in ticket keeps its unit.
type Usage struct {
	ZoneID   string
	Capacity int
	Sold     int
	Reserved int
}

// Available is the number of units not yet sold.
func (u Usage) Available() int {
	return max(u.Capacity-u.Sold, 0)
}

// Unreserved is the number of units neither sold nor held by a ticket
// awaiting payment.
func (u Usage) Unreserved() int {
	return max(u.Capacity-u.Sold-u.Reserved, 0)
}

// Store is the transactional view the ledger reads through. Implementations
// must be bound to the same transaction as the write that consumes capacity.
type Store interface {
	LockZone(ctx context.Context, zoneID string, now time.Time) (*models.Zone, error)
	CountHeld(ctx context.Context, zoneID string) (sold, reserved int, err error)
}

// Ledger decides whether a zone has room for one more ticket. Every decision
// is made on live counts after the zone row has been locked; callers wrap the
// decision and the write it guards in Serialize plus a single transaction.
type Ledger struct {
	locker ZoneLocker
	clock  clock.Clock
}

func NewLedger(locker ZoneLocker, clk clock.Clock) *Ledger {
	return &Ledger{locker: locker, clock: clk}
}

// Serialize runs fn while holding the zone's lock. The lock must be taken
// before the transaction starts and is released after fn returns.
func (l *Ledger) Serialize(ctx context.Context, zoneID string, fn func(ctx context.Context) error) error {
	unlock, err := l.locker.Lock(ctx, zoneID)
	if err != nil {
		return fmt.Errorf("lock zone %s: %w", zoneID, err)
	}
	defer unlock()
	return fn(ctx)
}

// Usage locks the zone row and counts its held tickets.
func (l *Ledger) Usage(ctx context.Context, store Store, zoneID string) (*models.Zone, Usage, error) {
	zone, err := store.LockZone(ctx, zoneID, l.clock.Now())
	if err != nil {
		return nil, Usage{}, err
	}
	sold, reserved, err := store.CountHeld(ctx, zoneID)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("count tickets of zone %s: %w", zoneID, err)
	}
	return zone, Usage{ZoneID: zoneID, Capacity: zone.Capacity, Sold: sold, Reserved: reserved}, nil
}

// AdmitReservation admits a new pending ticket when sold plus reserved units
// leave room.
func (l *Ledger) AdmitReservation(ctx context.Context, store Store, zoneID string) (*models.Zone, Usage, error) {
	zone, usage, err := l.Usage(ctx, store, zoneID)
	if err != nil {
		return nil, usage, err
	}
	if usage.Unreserved() == 0 {
		return zone, usage, fmt.Errorf("%w: zone %s has %d of %d units held",
			domain.ErrCapacityExhausted, zoneID, usage.Sold+usage.Reserved, usage.Capacity)
	}
	return zone, usage, nil
}

// AdmitSettlement admits moving one more ticket to paid.
func (l *Ledger) AdmitSettlement(ctx context.Context, store Store, zoneID string) (*models.Zone, Usage, error) {
	zone, usage, err := l.Usage(ctx, store, zoneID)
	if err != nil {
		return nil, usage, err
	}
	if usage.Sold >= usage.Capacity {
		return zone, usage, fmt.Errorf("%w: zone %s sold %d of %d",
			domain.ErrCapacityExhausted, zoneID, usage.Sold, usage.Capacity)
	}
	return zone, usage, nil
}
