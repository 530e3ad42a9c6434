// Package uow defines the transaction boundary every progression flow runs in.
package uow

import (
	"context"

	"github.com/dividis/progress-engine/internal/domain/achievement"
	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/streak"
)

// Tx exposes repositories bound to one transaction.
type Tx interface {
	Profiles() profile.Repository
	Modules() module.Repository
	ModuleProgress() module.ProgressRepository
	Missions() mission.Repository
	MissionProgress() mission.ProgressRepository
	Streaks() streak.Repository
	Declarations() declaration.Repository
	Achievements() achievement.Repository
}

// Store runs a function inside one atomic transaction. If fn returns an
// error, or panics, nothing it wrote is kept.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
