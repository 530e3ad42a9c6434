package query_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividis/progress-engine/internal/application/command"
	"github.com/dividis/progress-engine/internal/application/query"
	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*query.ProgressOverview
	getErr  error
	gets    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*query.ProgressOverview{}}
}

func (c *fakeCache) GetOverview(_ context.Context, userID string) (*query.ProgressOverview, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	o, ok := c.entries[userID]
	return o, ok, nil
}

func (c *fakeCache) SetOverview(_ context.Context, o *query.ProgressOverview) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[o.UserID]; ok && prev.Revision > o.Revision {
		return nil
	}
	c.sets++
	c.entries[o.UserID] = o
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Overview
// ─────────────────────────────────────────────────────────────────────────────

func TestOverview_SyncsUnlocksBeforeReading(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	f.declare("u1", "vision", "Vision", "Quiero una vida con sentido")
	f.grant("u1", "boost")

	h := query.NewGetProgressOverviewHandler(f.deps, nil)
	o, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, 170, o.TotalXP)
	assert.Equal(t, 2, o.Level)
	assert.Equal(t, "Explorador", o.Title)
	assert.Equal(t, 70, o.LevelProgress)
	assert.Equal(t, 2, o.ModulesUnlocked, "proposito opened by the sync")
	assert.Equal(t, 0, o.MissionsCompleted)
	assert.Equal(t, 1, o.AchievementsEarned)
	assert.Equal(t, 1, o.StreaksByModule["vision"])
	assert.Equal(t, start, o.GeneratedAt)

	assert.Equal(t, 2, f.bus.count(shared.EventModuleUnlocked), "registration and sync")

	_, err = h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.bus.count(shared.EventModuleUnlocked), "second sync opens nothing")
}

func TestOverview_CompletedModuleStaysCounted(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	_, err := command.NewCompleteModuleHandler(f.cmds).Handle(f.ctx, command.CompleteModuleCommand{UserID: "u1", ModuleID: "vision"})
	require.NoError(t, err)

	o, err := query.NewGetProgressOverviewHandler(f.deps, nil).Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, o.ModulesUnlocked, "finishing a module does not take it away")
}

func TestOverview_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := query.NewGetProgressOverviewHandler(f.deps, nil).Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "ghost"})
	assert.True(t, shared.IsNotFound(err))

	_, err = query.NewGetProgressOverviewHandler(f.deps, nil).Handle(f.ctx, query.GetProgressOverviewQuery{UserID: ""})
	assert.True(t, shared.IsValidation(err))
}

func TestOverview_Cache(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	cache := newFakeCache()
	h := query.NewGetProgressOverviewHandler(f.deps, cache)

	first, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 0, first.TotalXP)
	assert.Equal(t, 1, cache.sets)

	again, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, first.Revision, again.Revision)
	assert.Equal(t, 1, cache.sets, "unchanged user is served from cache")

	f.grant("u1", "boost")

	after, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 150, after.TotalXP, "snapshot of an older revision is ignored")
	assert.Greater(t, after.Revision, first.Revision)
	assert.Equal(t, 2, cache.sets)

	fresh, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1", SkipCache: true})
	require.NoError(t, err)
	assert.Equal(t, 150, fresh.TotalXP)
	assert.Equal(t, 3, cache.sets, "fresh reads refresh the cache")
}

func TestOverview_CacheHitStillSyncsUnlocks(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	cache := newFakeCache()
	h := query.NewGetProgressOverviewHandler(f.deps, cache)

	first, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ModulesUnlocked)

	// No event about u1 is published for a rule change.
	f.rules.Register("proposito", module.XPAtLeast(0))

	second, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.ModulesUnlocked)
	assert.Equal(t, 2, f.bus.count(shared.EventModuleUnlocked), "registration and sync")
}

func TestOverview_OlderSnapshotDoesNotOverwriteNewer(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	cache := newFakeCache()
	h := query.NewGetProgressOverviewHandler(f.deps, cache)

	stale, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)

	f.grant("u1", "boost")
	current, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)

	// A reader that loaded before the grant finishes last.
	require.NoError(t, cache.SetOverview(f.ctx, stale))

	o, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, current.Revision, o.Revision)
	assert.Equal(t, 150, o.TotalXP)
}

func TestOverview_CacheErrorFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	cache := newFakeCache()
	cache.getErr = errors.New("redis: connection refused")

	o, err := query.NewGetProgressOverviewHandler(f.deps, cache).Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", o.UserID)
}

func TestOverview_ConcurrentCallersGetOwnCopies(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	f.declare("u1", "vision", "Vision", "a")
	h := query.NewGetProgressOverviewHandler(f.deps, nil)

	const n = 8
	results := make([]*query.ProgressOverview, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := h.Handle(f.ctx, query.GetProgressOverviewQuery{UserID: "u1", SkipCache: true})
			assert.NoError(t, err)
			results[i] = o
		}(i)
	}
	wg.Wait()

	for _, o := range results {
		require.NotNil(t, o)
		assert.Equal(t, 20, o.TotalXP)
	}
	results[0].StreaksByModule["vision"] = 99
	assert.Equal(t, 1, results[1].StreaksByModule["vision"])
}

// ─────────────────────────────────────────────────────────────────────────────
// Module progress
// ─────────────────────────────────────────────────────────────────────────────

func TestModuleProgress(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	f.declare("u1", "vision", "Vision", "a")
	f.declare("u1", "vision", "Estrategias", "b")

	view, err := query.NewGetModuleProgressHandler(f.deps).Handle(f.ctx, query.GetModuleProgressQuery{UserID: "u1", ModuleID: "vision"})
	require.NoError(t, err)

	assert.Equal(t, "vision", view.Module.ID)
	assert.Equal(t, module.StateUnlocked, view.Progress.State)
	assert.Equal(t, 2, view.Streak.Current)
	assert.Equal(t, []declaration.Pillar{declaration.Vision, declaration.Estrategias}, view.DeclaredPillars)

	require.Len(t, view.Missions, 1)
	assert.Equal(t, "vision-why", view.Missions[0].Mission.ID)
	assert.Equal(t, mission.StateActive, view.Missions[0].State)
	assert.Nil(t, view.Missions[0].Progress)

	f.declare("u1", "vision", "Proposito", "c")
	view, err = query.NewGetModuleProgressHandler(f.deps).Handle(f.ctx, query.GetModuleProgressQuery{UserID: "u1", ModuleID: "vision"})
	require.NoError(t, err)
	assert.Equal(t, mission.StateCompleted, view.Missions[0].State)
	require.NotNil(t, view.Missions[0].Progress)
}

func TestModuleProgress_LockedModuleGetsRows(t *testing.T) {
	f := newFixture(t)
	f.register("u1")

	view, err := query.NewGetModuleProgressHandler(f.deps).Handle(f.ctx, query.GetModuleProgressQuery{UserID: "u1", ModuleID: "personalidad"})
	require.NoError(t, err)
	assert.Equal(t, module.StateLocked, view.Progress.State)
	assert.Equal(t, 0, view.Streak.Current)
	assert.Empty(t, view.DeclaredPillars)
}

func TestModuleProgress_Errors(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	h := query.NewGetModuleProgressHandler(f.deps)

	_, err := h.Handle(f.ctx, query.GetModuleProgressQuery{UserID: "u1", ModuleID: "atlantis"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(f.ctx, query.GetModuleProgressQuery{UserID: "u1"})
	assert.True(t, shared.IsValidation(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Mission list
// ─────────────────────────────────────────────────────────────────────────────

func byID(views []query.MissionView) map[string]query.MissionView {
	out := make(map[string]query.MissionView, len(views))
	for _, v := range views {
		out[v.ID] = v
	}
	return out
}

func TestListUserMissions(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	f.declare("u1", "vision", "Vision", "a")

	views, err := query.NewListUserMissionsHandler(f.deps).Handle(f.ctx, query.ListUserMissionsQuery{UserID: "u1"})
	require.NoError(t, err)

	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{"daily", "weekly-streak", "weekly-unlock", "vision-why", "perso-1"}, ids, "globals first")

	v := byID(views)
	assert.Equal(t, query.ScopeGlobal, v["daily"].Scope)
	assert.Equal(t, query.ViewCompleted, v["daily"].State)
	require.NotNil(t, v["daily"].Progress)
	assert.Equal(t, "1/1 declarations today", v["daily"].Progress.Label)

	assert.Equal(t, query.ViewActive, v["weekly-streak"].State)
	assert.Equal(t, "0/5 consecutive streak days", v["weekly-streak"].Progress.Label)

	assert.Equal(t, query.ViewActive, v["weekly-unlock"].State, "registration unlocks are automatic")

	assert.Equal(t, query.ScopeModule, v["vision-why"].Scope)
	assert.Equal(t, query.ViewActive, v["vision-why"].State)
	assert.Nil(t, v["vision-why"].Progress)
	assert.Equal(t, query.ViewBlocked, v["perso-1"].State)
}

func TestListUserMissions_NextDayAndManualUnlock(t *testing.T) {
	f := newFixture(t)
	f.register("u1")
	f.declare("u1", "vision", "Vision", "a")
	f.grant("u1", "boost")
	f.unlock("u1", "proposito")

	f.clock.Advance(24 * time.Hour)
	v := byID(mustList(t, f))
	assert.Equal(t, query.ViewActive, v["daily"].State, "no declaration yet today")
	assert.Equal(t, "0/1 declarations today", v["daily"].Progress.Label)
	assert.Equal(t, query.ViewCompleted, v["weekly-unlock"].State)
	assert.Equal(t, "1/1 modules unlocked this week", v["weekly-unlock"].Progress.Label)

	f.clock.Advance(7 * 24 * time.Hour)
	v = byID(mustList(t, f))
	assert.Equal(t, query.ViewActive, v["weekly-unlock"].State, "new week")
}

func TestListUserMissions_CustomStreakTarget(t *testing.T) {
	f := newFixture(t)
	f.deps.WeeklyStreakTarget = 3
	f.register("u1")

	v := byID(mustList(t, f))
	assert.Equal(t, "0/3 consecutive streak days", v["weekly-streak"].Progress.Label)
}

func TestListUserMissions_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := query.NewListUserMissionsHandler(f.deps).Handle(f.ctx, query.ListUserMissionsQuery{UserID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func mustList(t *testing.T, f *fixture) []query.MissionView {
	t.Helper()
	views, err := query.NewListUserMissionsHandler(f.deps).Handle(f.ctx, query.ListUserMissionsQuery{UserID: "u1"})
	require.NoError(t, err)
	return views
}
