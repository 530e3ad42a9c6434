package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// ModuleProgressRepository implements module.ProgressRepository.
type ModuleProgressRepository struct {
	q Querier
}

const moduleProgressColumns = `user_id, module_id, state, auto_unlocked, unlocked_at, completed_at, last_activity`

func scanModuleProgress(row interface{ Scan(...any) error }) (module.Progress, error) {
	var (
		p     module.Progress
		state string
	)
	err := row.Scan(&p.UserID, &p.ModuleID, &state, &p.AutoUnlocked, &p.UnlockedAt, &p.CompletedAt, &p.LastActivity)
	if err != nil {
		return module.Progress{}, err
	}
	if p.State, err = module.ParseState(state); err != nil {
		return module.Progress{}, err
	}
	return p, nil
}

// GetOrCreate inserts a locked row when the module exists and none is
// present, then reads the row with a lock.
func (r *ModuleProgressRepository) GetOrCreate(ctx context.Context, userID, moduleID string, now time.Time) (module.Progress, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO module_progress (user_id, module_id, state, auto_unlocked, last_activity)
		SELECT $1, id, 'locked', FALSE, $3 FROM modules WHERE id = $2
		ON CONFLICT (user_id, module_id) DO NOTHING
	`, userID, moduleID, now)
	if err != nil {
		return module.Progress{}, fmt.Errorf("postgres: create module progress: %w", err)
	}

	p, err := scanModuleProgress(r.q.QueryRow(ctx,
		"SELECT "+moduleProgressColumns+" FROM module_progress WHERE user_id = $1 AND module_id = $2 FOR UPDATE",
		userID, moduleID))
	if err != nil {
		if IsNoRows(err) {
			return module.Progress{}, shared.NotFound("module", "GetOrCreate", "module", moduleID)
		}
		return module.Progress{}, fmt.Errorf("postgres: get module progress: %w", err)
	}
	return p, nil
}

// Find returns the row if present.
func (r *ModuleProgressRepository) Find(ctx context.Context, userID, moduleID string) (module.Progress, bool, error) {
	p, err := scanModuleProgress(r.q.QueryRow(ctx,
		"SELECT "+moduleProgressColumns+" FROM module_progress WHERE user_id = $1 AND module_id = $2",
		userID, moduleID))
	if err != nil {
		if IsNoRows(err) {
			return module.Progress{}, false, nil
		}
		return module.Progress{}, false, fmt.Errorf("postgres: find module progress: %w", err)
	}
	return p, true, nil
}

// ListByUser returns the user's rows in module order.
func (r *ModuleProgressRepository) ListByUser(ctx context.Context, userID string) ([]module.Progress, error) {
	rows, err := r.q.Query(ctx, `
		SELECT mp.user_id, mp.module_id, mp.state, mp.auto_unlocked, mp.unlocked_at, mp.completed_at, mp.last_activity
		FROM module_progress mp
		JOIN modules m ON m.id = mp.module_id
		WHERE mp.user_id = $1
		ORDER BY m.sort_order
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list module progress: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (module.Progress, error) {
		return scanModuleProgress(row)
	})
}

// Save upserts the row.
func (r *ModuleProgressRepository) Save(ctx context.Context, p module.Progress) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO module_progress (user_id, module_id, state, auto_unlocked, unlocked_at, completed_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, module_id) DO UPDATE SET
			state = EXCLUDED.state,
			auto_unlocked = EXCLUDED.auto_unlocked,
			unlocked_at = EXCLUDED.unlocked_at,
			completed_at = EXCLUDED.completed_at,
			last_activity = EXCLUDED.last_activity
	`, p.UserID, p.ModuleID, string(p.State), p.AutoUnlocked, p.UnlockedAt, p.CompletedAt, p.LastActivity)
	if err != nil {
		return fmt.Errorf("postgres: save module progress: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSION PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// MissionProgressRepository implements mission.ProgressRepository.
type MissionProgressRepository struct {
	q Querier
}

const missionProgressColumns = `user_id, mission_id, state, started_at, completed_at`

func scanMissionProgress(row interface{ Scan(...any) error }) (mission.Progress, error) {
	var (
		p     mission.Progress
		state string
	)
	if err := row.Scan(&p.UserID, &p.MissionID, &state, &p.StartedAt, &p.CompletedAt); err != nil {
		return mission.Progress{}, err
	}
	st, err := mission.ParseState(state)
	if err != nil {
		return mission.Progress{}, err
	}
	p.State = st
	return p, nil
}

// GetOrCreate inserts an active row when the mission exists, then reads it
// with a lock.
func (r *MissionProgressRepository) GetOrCreate(ctx context.Context, userID, missionID string, now time.Time) (mission.Progress, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO mission_progress (user_id, mission_id, state, started_at)
		SELECT $1, id, 'active', $3 FROM missions WHERE id = $2
		ON CONFLICT (user_id, mission_id) DO NOTHING
	`, userID, missionID, now)
	if err != nil {
		return mission.Progress{}, fmt.Errorf("postgres: create mission progress: %w", err)
	}

	p, err := scanMissionProgress(r.q.QueryRow(ctx,
		"SELECT "+missionProgressColumns+" FROM mission_progress WHERE user_id = $1 AND mission_id = $2 FOR UPDATE",
		userID, missionID))
	if err != nil {
		if IsNoRows(err) {
			return mission.Progress{}, shared.NotFound("mission", "GetOrCreate", "mission", missionID)
		}
		return mission.Progress{}, fmt.Errorf("postgres: get mission progress: %w", err)
	}
	return p, nil
}

// Find returns the row if present.
func (r *MissionProgressRepository) Find(ctx context.Context, userID, missionID string) (mission.Progress, bool, error) {
	p, err := scanMissionProgress(r.q.QueryRow(ctx,
		"SELECT "+missionProgressColumns+" FROM mission_progress WHERE user_id = $1 AND mission_id = $2",
		userID, missionID))
	if err != nil {
		if IsNoRows(err) {
			return mission.Progress{}, false, nil
		}
		return mission.Progress{}, false, fmt.Errorf("postgres: find mission progress: %w", err)
	}
	return p, true, nil
}

// ListByUser returns every mission row of the user.
func (r *MissionProgressRepository) ListByUser(ctx context.Context, userID string) ([]mission.Progress, error) {
	rows, err := r.q.Query(ctx,
		"SELECT "+missionProgressColumns+" FROM mission_progress WHERE user_id = $1 ORDER BY mission_id", userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list mission progress: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (mission.Progress, error) {
		return scanMissionProgress(row)
	})
}

// CompletedIDs returns the ids of completed missions.
func (r *MissionProgressRepository) CompletedIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.q.Query(ctx,
		"SELECT mission_id FROM mission_progress WHERE user_id = $1 AND state = 'completed'", userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list completed missions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan completed missions: %w", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// Save upserts the row.
func (r *MissionProgressRepository) Save(ctx context.Context, p mission.Progress) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO mission_progress (user_id, mission_id, state, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, mission_id) DO UPDATE SET
			state = EXCLUDED.state,
			completed_at = EXCLUDED.completed_at
	`, p.UserID, p.MissionID, string(p.State), p.StartedAt, p.CompletedAt)
	if err != nil {
		return fmt.Errorf("postgres: save mission progress: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository implements streak.Repository. The global bucket is stored
// with a NULL module_id.
type StreakRepository struct {
	q Querier
}

const streakColumns = `user_id, COALESCE(module_id, ''), current_streak, longest_streak, last_activity`

func scanStreak(row interface{ Scan(...any) error }) (streak.Streak, error) {
	var s streak.Streak
	err := row.Scan(&s.UserID, &s.ModuleID, &s.Current, &s.Longest, &s.LastActivity)
	return s, err
}

// GetOrCreate inserts an empty streak if absent and reads it with a lock.
func (r *StreakRepository) GetOrCreate(ctx context.Context, userID, moduleID string, now time.Time) (streak.Streak, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO streaks (user_id, module_id, current_streak, longest_streak, last_activity)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (user_id, (COALESCE(module_id, ''))) DO NOTHING
	`, userID, nullable(moduleID), now)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return streak.Streak{}, shared.NotFound("streak", "GetOrCreate", "module", moduleID)
		}
		return streak.Streak{}, fmt.Errorf("postgres: create streak: %w", err)
	}

	s, err := scanStreak(r.q.QueryRow(ctx,
		"SELECT "+streakColumns+" FROM streaks WHERE user_id = $1 AND COALESCE(module_id, '') = $2 FOR UPDATE",
		userID, moduleID))
	if err != nil {
		return streak.Streak{}, fmt.Errorf("postgres: get streak: %w", err)
	}
	return s, nil
}

// Find returns the streak if present.
func (r *StreakRepository) Find(ctx context.Context, userID, moduleID string) (streak.Streak, bool, error) {
	s, err := scanStreak(r.q.QueryRow(ctx,
		"SELECT "+streakColumns+" FROM streaks WHERE user_id = $1 AND COALESCE(module_id, '') = $2",
		userID, moduleID))
	if err != nil {
		if IsNoRows(err) {
			return streak.Streak{}, false, nil
		}
		return streak.Streak{}, false, fmt.Errorf("postgres: find streak: %w", err)
	}
	return s, true, nil
}

// ListByUser returns the user's streaks, global first.
func (r *StreakRepository) ListByUser(ctx context.Context, userID string) ([]streak.Streak, error) {
	rows, err := r.q.Query(ctx,
		"SELECT "+streakColumns+" FROM streaks WHERE user_id = $1 ORDER BY COALESCE(module_id, '')", userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list streaks: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (streak.Streak, error) {
		return scanStreak(row)
	})
}

// Save upserts the streak.
func (r *StreakRepository) Save(ctx context.Context, s streak.Streak) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO streaks (user_id, module_id, current_streak, longest_streak, last_activity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, (COALESCE(module_id, ''))) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_activity = EXCLUDED.last_activity
	`, s.UserID, nullable(s.ModuleID), s.Current, s.Longest, s.LastActivity)
	if err != nil {
		return fmt.Errorf("postgres: save streak: %w", err)
	}
	return nil
}
