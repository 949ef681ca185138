package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-settlement/internal/domain"
	"ms-settlement/internal/logger"
)

const keyPrefix = "zone_lock:"

// releaseScript deletes the lock only when it is still held by the caller's
// token, so an expired-and-reacquired lock is never released by its old owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a lease lock per zone shared by every service instance. The TTL
// bounds how long a crashed holder can block a zone.
type Locker struct {
	Client *redis.Client
	TTL    time.Duration
	// Wait bounds how long Lock keeps retrying before giving up.
	Wait   time.Duration
	Poll   time.Duration
	Logger *logger.Logger
}

func NewLocker(client *redis.Client, ttl, wait time.Duration, log *logger.Logger) *Locker {
	return &Locker{
		Client: client,
		TTL:    ttl,
		Wait:   wait,
		Poll:   25 * time.Millisecond,
		Logger: log,
	}
}

// TryLock attempts to take the zone lock once.
func (r *Locker) TryLock(ctx context.Context, zoneID, token string) (bool, error) {
	return r.Client.SetNX(ctx, keyPrefix+zoneID, token, r.TTL).Result()
}

// Unlock releases the zone lock if token still owns it.
func (r *Locker) Unlock(ctx context.Context, zoneID, token string) error {
	return releaseScript.Run(ctx, r.Client, []string{keyPrefix + zoneID}, token).Err()
}

// Lock implements inventory.ZoneLocker.
func (r *Locker) Lock(ctx context.Context, zoneID string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(r.Wait)

	for {
		ok, err := r.TryLock(ctx, zoneID, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrLockUnavailable, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: zone %s", domain.ErrLockTimeout, zoneID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.Poll):
		}
	}

	return func() {
		// The caller's ctx may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.Unlock(releaseCtx, zoneID, token); err != nil && r.Logger != nil {
			r.Logger.Warn("REDIS", fmt.Sprintf("Failed to release lock for zone %s: %v", zoneID, err))
		}
	}, nil
}
