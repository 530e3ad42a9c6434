package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dividis/progress-engine/internal/domain/achievement"
	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/domain/streak"
)

// ─────────────────────────────────────────────────────────────────────────────
// Profiles
// ─────────────────────────────────────────────────────────────────────────────

type profileRepo struct{ d *data }

func (r profileRepo) GetForUpdate(ctx context.Context, userID string) (profile.Profile, error) {
	return r.Get(ctx, userID)
}

func (r profileRepo) Get(_ context.Context, userID string) (profile.Profile, error) {
	p, ok := r.d.profiles[userID]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound(userID)
	}
	return p, nil
}

func (r profileRepo) Create(_ context.Context, p profile.Profile) (profile.Profile, bool, error) {
	if existing, ok := r.d.profiles[p.UserID]; ok {
		return existing, false, nil
	}
	r.d.profiles[p.UserID] = p
	return p, true, nil
}

func (r profileRepo) Save(_ context.Context, p profile.Profile) error {
	if _, ok := r.d.profiles[p.UserID]; !ok {
		return profile.ErrNotFound(p.UserID)
	}
	r.d.profiles[p.UserID] = p
	return nil
}

func (r profileRepo) Delete(_ context.Context, userID string) error {
	if _, ok := r.d.profiles[userID]; !ok {
		return profile.ErrNotFound(userID)
	}
	delete(r.d.profiles, userID)
	for k := range r.d.moduleProgress {
		if k.user == userID {
			delete(r.d.moduleProgress, k)
		}
	}
	for k := range r.d.missionProgress {
		if k.user == userID {
			delete(r.d.missionProgress, k)
		}
	}
	for k := range r.d.streaks {
		if k.user == userID {
			delete(r.d.streaks, k)
		}
	}
	decls := r.d.declarations[:0]
	for _, d := range r.d.declarations {
		if d.UserID != userID {
			decls = append(decls, d)
		}
	}
	r.d.declarations = decls
	badges := r.d.userAchievements[:0]
	for _, ua := range r.d.userAchievements {
		if ua.UserID != userID {
			badges = append(badges, ua)
		}
	}
	r.d.userAchievements = badges
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Modules
// ─────────────────────────────────────────────────────────────────────────────

type moduleRepo struct{ d *data }

func (r moduleRepo) List(_ context.Context) ([]module.Module, error) {
	out := make([]module.Module, 0, len(r.d.modules))
	for _, m := range r.d.modules {
		out = append(out, m)
	}
	module.SortByOrder(out)
	return out, nil
}

func (r moduleRepo) Get(_ context.Context, id string) (module.Module, error) {
	m, ok := r.d.modules[id]
	if !ok {
		return module.Module{}, shared.NotFound("module", "Get", "module", id)
	}
	return m, nil
}

func (r moduleRepo) Upsert(_ context.Context, m module.Module) error {
	r.d.modules[m.ID] = m
	return nil
}

type moduleProgressRepo struct{ d *data }

func (r moduleProgressRepo) GetOrCreate(_ context.Context, userID, moduleID string, now time.Time) (module.Progress, error) {
	if _, ok := r.d.modules[moduleID]; !ok {
		return module.Progress{}, shared.NotFound("module", "GetOrCreate", "module", moduleID)
	}
	k := userKey{userID, moduleID}
	if p, ok := r.d.moduleProgress[k]; ok {
		return p, nil
	}
	p := module.NewProgress(userID, moduleID, now)
	r.d.moduleProgress[k] = p
	return p, nil
}

func (r moduleProgressRepo) Find(_ context.Context, userID, moduleID string) (module.Progress, bool, error) {
	p, ok := r.d.moduleProgress[userKey{userID, moduleID}]
	return p, ok, nil
}

func (r moduleProgressRepo) ListByUser(_ context.Context, userID string) ([]module.Progress, error) {
	var out []module.Progress
	for k, p := range r.d.moduleProgress {
		if k.user == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.d.modules[out[i].ModuleID].Order < r.d.modules[out[j].ModuleID].Order
	})
	return out, nil
}

func (r moduleProgressRepo) Save(_ context.Context, p module.Progress) error {
	r.d.moduleProgress[userKey{p.UserID, p.ModuleID}] = p
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Missions
// ─────────────────────────────────────────────────────────────────────────────

type missionRepo struct{ d *data }

func (r missionRepo) sorted(keep func(mission.Mission) bool) []mission.Mission {
	var out []mission.Mission
	for _, m := range r.d.missions {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r missionRepo) List(_ context.Context) ([]mission.Mission, error) {
	return r.sorted(func(mission.Mission) bool { return true }), nil
}

func (r missionRepo) ListByModule(_ context.Context, moduleID string) ([]mission.Mission, error) {
	return r.sorted(func(m mission.Mission) bool { return m.ModuleID == moduleID }), nil
}

func (r missionRepo) ListByKind(_ context.Context, kind mission.Kind) ([]mission.Mission, error) {
	return r.sorted(func(m mission.Mission) bool { return m.IsGlobal() && m.Kind == kind }), nil
}

func (r missionRepo) Get(_ context.Context, id string) (mission.Mission, error) {
	m, ok := r.d.missions[id]
	if !ok {
		return mission.Mission{}, shared.NotFound("mission", "Get", "mission", id)
	}
	return m, nil
}

func (r missionRepo) Upsert(_ context.Context, m mission.Mission) error {
	r.d.missions[m.ID] = m
	return nil
}

type missionProgressRepo struct{ d *data }

func (r missionProgressRepo) GetOrCreate(_ context.Context, userID, missionID string, now time.Time) (mission.Progress, error) {
	if _, ok := r.d.missions[missionID]; !ok {
		return mission.Progress{}, shared.NotFound("mission", "GetOrCreate", "mission", missionID)
	}
	k := userKey{userID, missionID}
	if p, ok := r.d.missionProgress[k]; ok {
		return p, nil
	}
	p := mission.NewProgress(userID, missionID, now)
	r.d.missionProgress[k] = p
	return p, nil
}

func (r missionProgressRepo) Find(_ context.Context, userID, missionID string) (mission.Progress, bool, error) {
	p, ok := r.d.missionProgress[userKey{userID, missionID}]
	return p, ok, nil
}

func (r missionProgressRepo) ListByUser(_ context.Context, userID string) ([]mission.Progress, error) {
	var out []mission.Progress
	for k, p := range r.d.missionProgress {
		if k.user == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MissionID < out[j].MissionID })
	return out, nil
}

func (r missionProgressRepo) CompletedIDs(_ context.Context, userID string) (map[string]bool, error) {
	out := make(map[string]bool)
	for k, p := range r.d.missionProgress {
		if k.user == userID && p.State == mission.StateCompleted {
			out[p.MissionID] = true
		}
	}
	return out, nil
}

func (r missionProgressRepo) Save(_ context.Context, p mission.Progress) error {
	r.d.missionProgress[userKey{p.UserID, p.MissionID}] = p
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Streaks
// ─────────────────────────────────────────────────────────────────────────────

type streakRepo struct{ d *data }

func (r streakRepo) GetOrCreate(_ context.Context, userID, moduleID string, now time.Time) (streak.Streak, error) {
	k := userKey{userID, moduleID}
	if s, ok := r.d.streaks[k]; ok {
		return s, nil
	}
	s := streak.New(userID, moduleID, now)
	r.d.streaks[k] = s
	return s, nil
}

func (r streakRepo) Find(_ context.Context, userID, moduleID string) (streak.Streak, bool, error) {
	s, ok := r.d.streaks[userKey{userID, moduleID}]
	return s, ok, nil
}

func (r streakRepo) ListByUser(_ context.Context, userID string) ([]streak.Streak, error) {
	var out []streak.Streak
	for k, s := range r.d.streaks {
		if k.user == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out, nil
}

func (r streakRepo) Save(_ context.Context, s streak.Streak) error {
	r.d.streaks[userKey{s.UserID, s.ModuleID}] = s
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Declarations
// ─────────────────────────────────────────────────────────────────────────────

type declarationRepo struct{ d *data }

func (r declarationRepo) Create(_ context.Context, d declaration.Declaration) error {
	for _, e := range r.d.declarations {
		if e.UserID == d.UserID && e.ModuleID == d.ModuleID && e.Pillar == d.Pillar && e.Text == d.Text {
			return declaration.ErrDuplicate
		}
	}
	r.d.declarations = append(r.d.declarations, d)
	return nil
}

func (r declarationRepo) CountByPillar(_ context.Context, userID, moduleID string, pillar declaration.Pillar) (int, error) {
	n := 0
	for _, d := range r.d.declarations {
		if d.UserID == userID && d.ModuleID == moduleID && d.Pillar == pillar {
			n++
		}
	}
	return n, nil
}

func (r declarationRepo) Pillars(_ context.Context, userID, moduleID string) (map[declaration.Pillar]bool, error) {
	out := make(map[declaration.Pillar]bool)
	for _, d := range r.d.declarations {
		if d.UserID == userID && d.ModuleID == moduleID {
			out[d.Pillar] = true
		}
	}
	return out, nil
}

func (r declarationRepo) CountBetween(_ context.Context, userID string, from, to time.Time) (int, error) {
	n := 0
	for _, d := range r.d.declarations {
		if d.UserID == userID && !d.CreatedAt.Before(from) && d.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r declarationRepo) ListByModule(_ context.Context, userID, moduleID string) ([]declaration.Declaration, error) {
	var out []declaration.Declaration
	for _, d := range r.d.declarations {
		if d.UserID == userID && d.ModuleID == moduleID {
			out = append(out, d)
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Achievements
// ─────────────────────────────────────────────────────────────────────────────

type achievementRepo struct{ d *data }

func (r achievementRepo) Get(_ context.Context, id string) (achievement.Achievement, error) {
	a, ok := r.d.achievements[id]
	if !ok {
		return achievement.Achievement{}, shared.NotFound("achievement", "Get", "achievement", id)
	}
	return a, nil
}

func (r achievementRepo) Upsert(_ context.Context, a achievement.Achievement) error {
	r.d.achievements[a.ID] = a
	return nil
}

func (r achievementRepo) Grant(_ context.Context, ua achievement.UserAchievement) (bool, error) {
	for _, e := range r.d.userAchievements {
		if e.UserID == ua.UserID && e.AchievementID == ua.AchievementID {
			return false, nil
		}
	}
	r.d.userAchievements = append(r.d.userAchievements, ua)
	return true, nil
}

func (r achievementRepo) CountByUser(_ context.Context, userID string) (int, error) {
	n := 0
	for _, ua := range r.d.userAchievements {
		if ua.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r achievementRepo) ListByUser(_ context.Context, userID string) ([]achievement.UserAchievement, error) {
	var out []achievement.UserAchievement
	for _, ua := range r.d.userAchievements {
		if ua.UserID == userID {
			out = append(out, ua)
		}
	}
	return out, nil
}
