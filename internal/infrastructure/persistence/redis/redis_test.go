package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividis/progress-engine/internal/application/query"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/circuitbreaker"
)

// offline points at a port nothing listens on. Only paths that fail before
// a round trip are exercised with it.
func offline() *Cache {
	return NewCacheFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}))
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())

	cfg.Host, cfg.Port = "cache.internal", 6380
	assert.Equal(t, "cache.internal:6380", cfg.Addr())
}

func TestOverviewKey(t *testing.T) {
	assert.Equal(t, "progress:overview:u1", OverviewKey("u1"))
}

func TestNewCache_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host, cfg.Port = "127.0.0.1", 1
	cfg.MaxRetries = -1
	cfg.DialTimeout = 200 * time.Millisecond

	_, err := NewCache(context.Background(), cfg)
	require.ErrorIs(t, err, ErrCacheConnection)
}

func TestCache_RejectsBeforeRoundTrip(t *testing.T) {
	c := offline()
	defer c.Close()
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Get(ctx, "", new(int)), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Publish(ctx, "", "x"), ErrCacheKeyEmpty)

	assert.ErrorIs(t, c.Set(ctx, "k", make(chan int), time.Minute), ErrCacheSerialization)
	assert.ErrorIs(t, c.Publish(ctx, "events", func() {}), ErrCacheSerialization)

	assert.NoError(t, c.Delete(ctx))
}

func TestOverviewCache_DefaultTTL(t *testing.T) {
	o := NewOverviewCache(offline(), 0)
	assert.Equal(t, TTLOverview, o.ttl)

	o = NewOverviewCache(offline(), time.Minute)
	assert.Equal(t, time.Minute, o.ttl)
}

func TestOverviewCache_IgnoresAnonymousEvents(t *testing.T) {
	o := NewOverviewCache(offline(), 0)
	e := shared.NewXPGainedEvent("", 10, 10, "mission", "m1", time.Now())
	assert.NoError(t, o.HandleEvent(e), "no user, no round trip")
}

func TestOverviewCache_OpenBreakerDegradesToMiss(t *testing.T) {
	c := offline()
	defer c.Close()
	cb := circuitbreaker.New("redis", circuitbreaker.Config{FailureThreshold: 1, CoolDown: time.Hour})
	o := NewOverviewCache(c, 0).WithBreaker(cb)
	ctx := context.Background()

	_, _, err := o.GetOverview(ctx, "u1")
	require.Error(t, err, "refused connection trips the breaker")
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	v, hit, err := o.GetOverview(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, v)

	assert.NoError(t, o.SetOverview(ctx, &query.ProgressOverview{UserID: "u1"}))
	assert.NoError(t, o.Invalidate(ctx, "u1"))
}

func TestSupersedes(t *testing.T) {
	newer, err := json.Marshal(query.ProgressOverview{UserID: "u1", Revision: 7})
	require.NoError(t, err)

	assert.True(t, supersedes(newer, 6))
	assert.False(t, supersedes(newer, 7), "same revision is rewritten")
	assert.False(t, supersedes(newer, 8))
	assert.False(t, supersedes(nil, 1), "no entry")
	assert.False(t, supersedes([]byte("{not json"), 1))
}

func TestEventForwarder_Envelope(t *testing.T) {
	f := NewEventForwarder(offline(), "", nil)
	assert.Equal(t, DefaultEventsChannel, f.Channel())
	f.newID = func() string { return "evt-1" }

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	env, err := f.Envelope(shared.NewModuleUnlockedEvent("u1", "proposito", true, "sync", at))
	require.NoError(t, err)

	assert.Equal(t, "evt-1", env.ID)
	assert.Equal(t, shared.EventModuleUnlocked, env.Type)
	assert.Equal(t, "u1", env.AggregateID)
	assert.Equal(t, at, env.Timestamp)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded shared.EventEnvelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, env.ID, decoded.ID)
	assert.JSONEq(t, string(env.Payload), string(decoded.Payload))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "proposito", payload["module_id"])
}

func TestEventForwarder_CustomChannel(t *testing.T) {
	f := NewEventForwarder(offline(), "custom:events", nil)
	assert.Equal(t, "custom:events", f.Channel())
}
