package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dividis/progress-engine/internal/domain/achievement"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULES
// ══════════════════════════════════════════════════════════════════════════════

// ModuleRepository implements module.Repository.
type ModuleRepository struct {
	q Querier
}

const moduleColumns = `id, title, description, sort_order, xp_required, state`

func scanModule(row interface{ Scan(...any) error }) (module.Module, error) {
	var (
		m     module.Module
		state string
	)
	if err := row.Scan(&m.ID, &m.Title, &m.Description, &m.Order, &m.XPRequired, &state); err != nil {
		return module.Module{}, err
	}
	st, err := module.ParseState(state)
	if err != nil {
		return module.Module{}, err
	}
	m.State = st
	return m, nil
}

// List returns modules by ascending order.
func (r *ModuleRepository) List(ctx context.Context) ([]module.Module, error) {
	rows, err := r.q.Query(ctx, "SELECT "+moduleColumns+" FROM modules ORDER BY sort_order")
	if err != nil {
		return nil, fmt.Errorf("postgres: list modules: %w", err)
	}
	defer rows.Close()

	var out []module.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get returns one module.
func (r *ModuleRepository) Get(ctx context.Context, id string) (module.Module, error) {
	m, err := scanModule(r.q.QueryRow(ctx, "SELECT "+moduleColumns+" FROM modules WHERE id = $1", id))
	if err != nil {
		if IsNoRows(err) {
			return module.Module{}, shared.NotFound("module", "Get", "module", id)
		}
		return module.Module{}, fmt.Errorf("postgres: get module: %w", err)
	}
	return m, nil
}

// Upsert inserts or replaces a module.
func (r *ModuleRepository) Upsert(ctx context.Context, m module.Module) error {
	state := m.State
	if state == "" {
		state = module.StateLocked
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO modules (id, title, description, sort_order, xp_required, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			sort_order = EXCLUDED.sort_order,
			xp_required = EXCLUDED.xp_required,
			state = EXCLUDED.state
	`, m.ID, m.Title, m.Description, m.Order, m.XPRequired, string(state))
	if err != nil {
		return fmt.Errorf("postgres: upsert module %q: %w", m.ID, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSIONS
// ══════════════════════════════════════════════════════════════════════════════

// MissionRepository implements mission.Repository.
type MissionRepository struct {
	q Querier
}

const missionColumns = `id, module_id, title, description, xp_reward, required_level,
	frequency, kind, requirements, created_at`

func scanMission(row interface{ Scan(...any) error }) (mission.Mission, error) {
	var (
		m         mission.Mission
		moduleID  *string
		frequency string
		kind      string
		reqJSON   []byte
	)
	err := row.Scan(&m.ID, &moduleID, &m.Title, &m.Description, &m.XPReward, &m.RequiredLevel,
		&frequency, &kind, &reqJSON, &m.CreatedAt)
	if err != nil {
		return mission.Mission{}, err
	}
	if moduleID != nil {
		m.ModuleID = *moduleID
	}
	m.Frequency = mission.Frequency(frequency)
	m.Kind = mission.Kind(kind)
	if len(reqJSON) > 0 {
		if err := json.Unmarshal(reqJSON, &m.Requirements); err != nil {
			return mission.Mission{}, fmt.Errorf("decode requirements of %q: %w", m.ID, err)
		}
	}
	return m, nil
}

func (r *MissionRepository) list(ctx context.Context, where string, args ...any) ([]mission.Mission, error) {
	rows, err := r.q.Query(ctx, "SELECT "+missionColumns+" FROM missions "+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list missions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (mission.Mission, error) {
		return scanMission(row)
	})
}

// List returns every mission in catalogue order.
func (r *MissionRepository) List(ctx context.Context) ([]mission.Mission, error) {
	return r.list(ctx, "")
}

// ListByModule returns the missions of one module.
func (r *MissionRepository) ListByModule(ctx context.Context, moduleID string) ([]mission.Mission, error) {
	return r.list(ctx, "WHERE module_id = $1", moduleID)
}

// ListByKind returns the global missions of a kind.
func (r *MissionRepository) ListByKind(ctx context.Context, kind mission.Kind) ([]mission.Mission, error) {
	return r.list(ctx, "WHERE module_id IS NULL AND kind = $1", string(kind))
}

// Get returns one mission.
func (r *MissionRepository) Get(ctx context.Context, id string) (mission.Mission, error) {
	m, err := scanMission(r.q.QueryRow(ctx, "SELECT "+missionColumns+" FROM missions WHERE id = $1", id))
	if err != nil {
		if IsNoRows(err) {
			return mission.Mission{}, shared.NotFound("mission", "Get", "mission", id)
		}
		return mission.Mission{}, fmt.Errorf("postgres: get mission: %w", err)
	}
	return m, nil
}

// Upsert inserts or replaces a mission. created_at is kept on update so the
// catalogue order stays stable across reseeds.
func (r *MissionRepository) Upsert(ctx context.Context, m mission.Mission) error {
	reqs := m.Requirements
	if reqs == nil {
		reqs = []mission.Requirement{}
	}
	reqJSON, err := json.Marshal(reqs)
	if err != nil {
		return fmt.Errorf("postgres: encode requirements of %q: %w", m.ID, err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO missions (id, module_id, title, description, xp_reward, required_level,
			frequency, kind, requirements, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			module_id = EXCLUDED.module_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			xp_reward = EXCLUDED.xp_reward,
			required_level = EXCLUDED.required_level,
			frequency = EXCLUDED.frequency,
			kind = EXCLUDED.kind,
			requirements = EXCLUDED.requirements
	`, m.ID, nullable(m.ModuleID), m.Title, m.Description, m.XPReward, m.RequiredLevel,
		string(m.Frequency), string(m.Kind), reqJSON, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert mission %q: %w", m.ID, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Repository.
type AchievementRepository struct {
	q Querier
}

// Get returns one catalogue entry.
func (r *AchievementRepository) Get(ctx context.Context, id string) (achievement.Achievement, error) {
	var a achievement.Achievement
	err := r.q.QueryRow(ctx, `SELECT id, name, description, xp_reward FROM achievements WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.Description, &a.XPReward)
	if err != nil {
		if IsNoRows(err) {
			return achievement.Achievement{}, shared.NotFound("achievement", "Get", "achievement", id)
		}
		return achievement.Achievement{}, fmt.Errorf("postgres: get achievement: %w", err)
	}
	return a, nil
}

// Upsert inserts or replaces a catalogue entry.
func (r *AchievementRepository) Upsert(ctx context.Context, a achievement.Achievement) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO achievements (id, name, description, xp_reward)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			xp_reward = EXCLUDED.xp_reward
	`, a.ID, a.Name, a.Description, a.XPReward)
	if err != nil {
		return fmt.Errorf("postgres: upsert achievement %q: %w", a.ID, err)
	}
	return nil
}

// Grant records the badge once.
func (r *AchievementRepository) Grant(ctx context.Context, ua achievement.UserAchievement) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO user_achievements (id, user_id, achievement_id, earned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, ua.ID, ua.UserID, ua.AchievementID, ua.EarnedAt)
	if err != nil {
		return false, fmt.Errorf("postgres: grant achievement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountByUser counts the user's badges.
func (r *AchievementRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM user_achievements WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count achievements: %w", err)
	}
	return n, nil
}

// ListByUser returns the user's badges, oldest first.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string) ([]achievement.UserAchievement, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, user_id, achievement_id, earned_at
		FROM user_achievements WHERE user_id = $1
		ORDER BY earned_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list achievements: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (achievement.UserAchievement, error) {
		var ua achievement.UserAchievement
		err := row.Scan(&ua.ID, &ua.UserID, &ua.AchievementID, &ua.EarnedAt)
		return ua, err
	})
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
