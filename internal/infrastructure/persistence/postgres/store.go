package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/achievement"
	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/streak"
	"github.com/dividis/progress-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements uow.Store on a connection pool.
type Store struct {
	conn   *Connection
	opts   TxOptions
	policy retry.Policy
}

// NewStore creates a store using read-committed transactions. A transaction
// aborted by a serialization failure or a deadlock is run again from the start.
func NewStore(conn *Connection) *Store {
	p := retry.Transaction()
	p.Transient = IsRetryableTx
	return &Store{conn: conn, opts: DefaultTxOptions(), policy: p}
}

// WithinTx implements uow.Store. fn may run more than once.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx uow.Tx) error) error {
	return retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return s.conn.WithTx(ctx, s.opts, func(t pgx.Tx) error {
			return fn(ctx, &tx{q: t})
		})
	})
}

// tx binds every repository to one pgx transaction.
type tx struct {
	q Querier
}

func (t *tx) Profiles() profile.Repository                { return &ProfileRepository{q: t.q} }
func (t *tx) Modules() module.Repository                  { return &ModuleRepository{q: t.q} }
func (t *tx) ModuleProgress() module.ProgressRepository   { return &ModuleProgressRepository{q: t.q} }
func (t *tx) Missions() mission.Repository                { return &MissionRepository{q: t.q} }
func (t *tx) MissionProgress() mission.ProgressRepository { return &MissionProgressRepository{q: t.q} }
func (t *tx) Streaks() streak.Repository                  { return &StreakRepository{q: t.q} }
func (t *tx) Declarations() declaration.Repository        { return &DeclarationRepository{q: t.q} }
func (t *tx) Achievements() achievement.Repository        { return &AchievementRepository{q: t.q} }

var _ uow.Store = (*Store)(nil)
