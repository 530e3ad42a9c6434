// Package query contains read operations (CQRS - Queries).
//
// Overview and module queries bring unlocks up to date before reading, so
// they run a short write flow first. Mission listing is read-only.
package query

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
	"github.com/dividis/progress-engine/pkg/timeutil"
)

var tracer = otel.Tracer("github.com/dividis/progress-engine/internal/application/query")

// Deps are the collaborators shared by all query handlers.
type Deps struct {
	Store     uow.Store
	Engine    *progression.Engine
	Publisher shared.EventPublisher
	Clock     timeutil.Clock
	Logger    *logger.Logger

	// Titles renders level titles. Nil uses the built-in fallback only.
	Titles *profile.TitleBook

	// Location defines "today" and "this week" for mission fractions.
	Location *time.Location

	// WeeklyStreakTarget is the streak a weekly-streak mission shows as full.
	WeeklyStreakTarget int
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
	if d.Titles == nil {
		d.Titles = profile.NewTitleBook(nil, profile.DefaultTitle)
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.WeeklyStreakTarget <= 0 {
		d.WeeklyStreakTarget = mission.DefaultWeeklyStreakTarget
	}
	return d
}

// syncThen runs SyncUnlocks for userID and then read inside the same
// transaction, publishing the unlock events after commit. read sees the
// profile at the revision being committed.
func (d Deps) syncThen(ctx context.Context, userID string, read func(f *progression.Flow) error) error {
	now := d.Clock.Now()
	var events []shared.Event
	err := d.Store.WithinTx(ctx, func(ctx context.Context, tx uow.Tx) error {
		f, err := d.Engine.Begin(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if _, err := f.SyncUnlocks(); err != nil {
			return err
		}
		if err := f.Stamp(); err != nil {
			return err
		}
		if err := read(f); err != nil {
			return err
		}
		events = f.Events()
		return nil
	})
	if err != nil {
		return err
	}

	for _, e := range events {
		if err := d.Publisher.Publish(e); err != nil {
			d.Logger.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.UserID(userID),
				logger.Err(err),
			)
		}
	}
	return nil
}

func startSpan(ctx context.Context, name, userID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("user.id", userID))
	return tracer.Start(ctx, "query."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
