// Package command contains write operations (CQRS - Commands).
//
// Every handler follows the same shape: validate the command, run one
// progression flow inside a single transaction, then publish the events the
// flow collected. Publishing happens only after commit and its failures are
// logged, never returned.
package command

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
	"github.com/dividis/progress-engine/pkg/timeutil"
)

var tracer = otel.Tracer("github.com/dividis/progress-engine/internal/application/command")

// Deps are the collaborators shared by all command handlers.
type Deps struct {
	Store     uow.Store
	Engine    *progression.Engine
	Publisher shared.EventPublisher
	Clock     timeutil.Clock
	Logger    *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Engine == nil {
		d.Engine = progression.NewEngine(nil, progression.DefaultConfig())
	}
	if d.Publisher == nil {
		d.Publisher = shared.NopPublisher{}
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return d
}

// run executes fn as one flow of userID inside a transaction and publishes
// the collected events once the transaction has committed.
func (d Deps) run(ctx context.Context, userID string, fn func(f *progression.Flow) error) ([]shared.Event, error) {
	now := d.Clock.Now()
	var events []shared.Event
	err := d.Store.WithinTx(ctx, func(ctx context.Context, tx uow.Tx) error {
		f, err := d.Engine.Begin(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		if err := f.Stamp(); err != nil {
			return err
		}
		events = f.Events()
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.publish(events)
	return events, nil
}

func (d Deps) publish(events []shared.Event) {
	for _, e := range events {
		if err := d.Publisher.Publish(e); err != nil {
			d.Logger.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.UserID(e.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

func startSpan(ctx context.Context, name, userID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("user.id", userID))
	return tracer.Start(ctx, "command."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.kind", shared.KindOf(err)))
	}
	span.End()
}

func correlation(id string) attribute.KeyValue {
	return attribute.String("correlation.id", id)
}
