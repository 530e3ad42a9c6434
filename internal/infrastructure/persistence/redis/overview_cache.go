package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dividis/progress-engine/internal/application/query"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/circuitbreaker"
)

// OverviewCache keeps rendered progress overviews. It implements
// query.OverviewCache and drops a user's entry on any event about that user.
// A dropped invalidation only costs a reload: readers compare the snapshot's
// revision with the profile's before serving it.
type OverviewCache struct {
	cache *Cache
	ttl   time.Duration

	// timeout bounds invalidations triggered from event handlers, which
	// carry no context.
	timeout time.Duration

	breaker *circuitbreaker.CircuitBreaker
}

// NewOverviewCache creates the cache. ttl <= 0 means TTLOverview.
func NewOverviewCache(c *Cache, ttl time.Duration) *OverviewCache {
	if ttl <= 0 {
		ttl = TTLOverview
	}
	return &OverviewCache{cache: c, ttl: ttl, timeout: 2 * time.Second}
}

// WithBreaker routes every Redis call through cb. While cb is open reads
// are misses and writes are skipped; entries then age out by TTL.
func (o *OverviewCache) WithBreaker(cb *circuitbreaker.CircuitBreaker) *OverviewCache {
	o.breaker = cb
	return o
}

func (o *OverviewCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if o.breaker == nil {
		return fn(ctx)
	}
	err := o.breaker.Execute(ctx, fn)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil
	}
	return err
}

// GetOverview implements query.OverviewCache. A miss is (nil, false, nil).
func (o *OverviewCache) GetOverview(ctx context.Context, userID string) (*query.ProgressOverview, bool, error) {
	var (
		v   query.ProgressOverview
		hit bool
	)
	err := o.guard(ctx, func(ctx context.Context) error {
		err := o.cache.Get(ctx, OverviewKey(userID), &v)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		hit = err == nil
		return err
	})
	if err != nil || !hit {
		return nil, false, err
	}
	return &v, true, nil
}

// SetOverview implements query.OverviewCache. The write is optimistic: it is
// dropped when the stored snapshot has a later revision or when another
// writer touches the key between the read and the write.
func (o *OverviewCache) SetOverview(ctx context.Context, v *query.ProgressOverview) error {
	key := OverviewKey(v.UserID)
	data, err := encode(key, v)
	if err != nil {
		return err
	}
	return o.guard(ctx, func(ctx context.Context) error {
		err := o.cache.client.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if supersedes(stored, v.Revision) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, o.ttl)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return nil
		}
		return err
	})
}

// supersedes reports whether the stored snapshot is of a later revision than
// rev. Unreadable entries never win.
func supersedes(stored []byte, rev int64) bool {
	if len(stored) == 0 {
		return false
	}
	var head struct {
		Revision int64 `json:"revision"`
	}
	if err := json.Unmarshal(stored, &head); err != nil {
		return false
	}
	return head.Revision > rev
}

// Invalidate drops the user's snapshot.
func (o *OverviewCache) Invalidate(ctx context.Context, userID string) error {
	return o.guard(ctx, func(ctx context.Context) error {
		return o.cache.Delete(ctx, OverviewKey(userID))
	})
}

// HandleEvent is an event-bus handler. Every progression event is keyed by
// the user it concerns.
func (o *OverviewCache) HandleEvent(e shared.Event) error {
	if e.AggregateID() == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	return o.Invalidate(ctx, e.AggregateID())
}

var _ query.OverviewCache = (*OverviewCache)(nil)
