package messaging

import (
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// Sink consumes every published event.
type Sink interface {
	HandleEvent(e shared.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e shared.Event) error

// HandleEvent implements Sink.
func (f SinkFunc) HandleEvent(e shared.Event) error { return f(e) }

// Attach subscribes each non-nil sink to all events.
func Attach(bus shared.EventSubscriber, sinks ...Sink) error {
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := bus.SubscribeAll(s.HandleEvent); err != nil {
			return err
		}
	}
	return nil
}

// EventLogger writes one debug line per event.
func EventLogger(log *logger.Logger) Sink {
	return SinkFunc(func(e shared.Event) error {
		if !log.Enabled(logger.LevelDebug) {
			return nil
		}
		log.Debug("event",
			logger.String("event_type", string(e.EventType())),
			logger.UserID(e.AggregateID()),
			logger.Time("occurred_at", e.OccurredAt()),
			logger.Any("payload", e.Payload()),
		)
		return nil
	})
}
