package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// EventForwarder mirrors committed domain events to a Redis channel as
// shared.EventEnvelope JSON, and reads them back for listeners in other
// processes.
type EventForwarder struct {
	cache   *Cache
	channel string
	newID   func() string
	timeout time.Duration
	log     *logger.Logger
}

// NewEventForwarder creates a forwarder. An empty channel means DefaultEventsChannel.
func NewEventForwarder(c *Cache, channel string, log *logger.Logger) *EventForwarder {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EventForwarder{
		cache:   c,
		channel: channel,
		newID:   uuid.NewString,
		timeout: 2 * time.Second,
		log:     log.With(logger.Component("event_forwarder")),
	}
}

// Channel returns the channel name.
func (f *EventForwarder) Channel() string {
	return f.channel
}

// Envelope wraps an event for the wire.
func (f *EventForwarder) Envelope(e shared.Event) (shared.EventEnvelope, error) {
	env, err := shared.NewEnvelope(f.newID(), e)
	if err != nil {
		return shared.EventEnvelope{}, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return env, nil
}

// HandleEvent is an event-bus handler that publishes the envelope.
func (f *EventForwarder) HandleEvent(e shared.Event) error {
	env, err := f.Envelope(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	return f.cache.Publish(ctx, f.channel, env)
}

// Listen delivers every envelope received on the channel to fn until ctx is
// done. Undecodable messages are logged and skipped.
func (f *EventForwarder) Listen(ctx context.Context, fn func(shared.EventEnvelope)) error {
	sub := f.cache.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", ErrCacheConnection, f.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env shared.EventEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				f.log.Warn("dropping undecodable event", logger.Err(err))
				continue
			}
			fn(env)
		}
	}
}
