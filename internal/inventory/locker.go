package inventory

import (
	"context"
	"sync"
)

// ZoneLocker serializes capacity decisions per zone. Lock blocks until the
// zone is free or ctx ends and returns the release function.
type ZoneLocker interface {
	Lock(ctx context.Context, zoneID string) (unlock func(), err error)
}

// LocalLocker is a per-zone mutex for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	zones map[string]*zoneSlot
}

type zoneSlot struct {
	sem     chan struct{}
	waiters int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{zones: make(map[string]*zoneSlot)}
}

func (l *LocalLocker) Lock(ctx context.Context, zoneID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.zones[zoneID]
	if !ok {
		slot = &zoneSlot{sem: make(chan struct{}, 1)}
		l.zones[zoneID] = slot
	}
	slot.waiters++
	l.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(zoneID, slot, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(zoneID, slot, true) })
	}, nil
}

func (l *LocalLocker) release(zoneID string, slot *zoneSlot, held bool) {
	if held {
		<-slot.sem
	}
	l.mu.Lock()
	slot.waiters--
	if slot.waiters == 0 {
		delete(l.zones, zoneID)
	}
	l.mu.Unlock()
}
