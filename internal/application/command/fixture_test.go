package command_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dividis/progress-engine/internal/application/command"
	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/achievement"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/domain/streak"
	"github.com/dividis/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/dividis/progress-engine/pkg/timeutil"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	clock *timeutil.FixedClock
	rules *module.Registry
	bus   *recorder
	deps  command.Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStore(),
		clock: timeutil.NewFixedClock(start),
		rules: module.NewRegistry(),
		bus:   &recorder{},
	}
	f.deps = command.Deps{
		Store:     f.store,
		Engine:    progression.NewEngine(f.rules, progression.DefaultConfig()),
		Publisher: f.bus,
		Clock:     f.clock,
	}
	f.seed()
	return f
}

// seed loads a three-module catalogue:
//
//	vision (order 1, 0 XP) → proposito (order 2, 200 XP) → personalidad (order 3, 300 XP)
func (f *fixture) seed() {
	f.t.Helper()
	mods := []module.Module{
		{ID: "vision", Title: "Visión", Order: 1, XPRequired: 0},
		{ID: "proposito", Title: "Propósito", Order: 2, XPRequired: 200},
		{ID: "personalidad", Title: "Personalidad", Order: 3, XPRequired: 300},
	}
	missions := []mission.Mission{
		{
			ID: "vision-strategy", ModuleID: "vision", Title: "Define tu estrategia",
			XPReward: 50, RequiredLevel: 1, Kind: mission.KindStandard,
			Requirements: []mission.Requirement{{Type: mission.RequirementPillar, ID: "Estrategias"}},
			CreatedAt:    start.Add(1 * time.Second),
		},
		{
			ID: "vision-bridge", ModuleID: "vision", Title: "Cruza al propósito",
			XPReward: 30, RequiredLevel: 1, Kind: mission.KindStandard,
			Requirements: []mission.Requirement{{Type: mission.RequirementModule, ID: "proposito"}},
			CreatedAt:    start.Add(2 * time.Second),
		},
		{
			ID: "vision-master", ModuleID: "vision", Title: "Maestría",
			XPReward: 40, RequiredLevel: 3, Kind: mission.KindStandard,
			Requirements: []mission.Requirement{{Type: mission.RequirementMission, ID: "vision-bridge"}},
			CreatedAt:    start.Add(3 * time.Second),
		},
		{
			ID: "personalidad-intro", ModuleID: "personalidad", Title: "Conócete",
			XPReward: 50, RequiredLevel: 1, Kind: mission.KindStandard,
			Requirements: []mission.Requirement{{Type: mission.RequirementPillar, ID: "Vision"}},
			CreatedAt:    start.Add(4 * time.Second),
		},
	}
	badges := []achievement.Achievement{
		{ID: "early-bird", Name: "Madrugador", XPReward: 60},
		{ID: "big-boost", Name: "Impulso", XPReward: 150},
	}

	err := f.store.WithinTx(f.ctx, func(ctx context.Context, tx uow.Tx) error {
		for _, m := range mods {
			if err := tx.Modules().Upsert(ctx, m); err != nil {
				return err
			}
		}
		for _, m := range missions {
			if err := tx.Missions().Upsert(ctx, m); err != nil {
				return err
			}
		}
		for _, a := range badges {
			if err := tx.Achievements().Upsert(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(f.t, err)
}

// addStreakMission adds the global one-day streak mission. It completes on
// the first streak update of every user, so it shifts XP totals by 10.
func (f *fixture) addStreakMission() {
	f.t.Helper()
	err := f.store.WithinTx(f.ctx, func(ctx context.Context, tx uow.Tx) error {
		return tx.Missions().Upsert(ctx, mission.Mission{
			ID: "streak-1", Title: "Racha de 1 día", Frequency: mission.FrequencyGlobal,
			XPReward: 10, RequiredLevel: 1, Kind: mission.KindStreakDay,
			CreatedAt: start.Add(5 * time.Second),
		})
	})
	require.NoError(f.t, err)
}

func (f *fixture) register(userID string) *command.RegisterUserResult {
	f.t.Helper()
	res, err := command.NewRegisterUserHandler(f.deps).Handle(f.ctx, command.RegisterUserCommand{UserID: userID})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) declare(userID, moduleID, pillar, text string) (*command.CreateDeclarationResult, error) {
	return command.NewCreateDeclarationHandler(f.deps).Handle(f.ctx, command.CreateDeclarationCommand{
		UserID:   userID,
		ModuleID: moduleID,
		Pillar:   pillar,
		Text:     text,
	})
}

func (f *fixture) grant(userID, achievementID string) {
	f.t.Helper()
	_, err := command.NewGrantAchievementHandler(f.deps).Handle(f.ctx, command.GrantAchievementCommand{
		UserID:        userID,
		AchievementID: achievementID,
	})
	require.NoError(f.t, err)
}

func (f *fixture) moduleProgress(userID, moduleID string) (module.Progress, bool) {
	f.t.Helper()
	var (
		p     module.Progress
		found bool
	)
	err := f.store.WithinTx(f.ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		p, found, err = tx.ModuleProgress().Find(ctx, userID, moduleID)
		return err
	})
	require.NoError(f.t, err)
	return p, found
}

func (f *fixture) missionProgress(userID, missionID string) (mission.Progress, bool) {
	f.t.Helper()
	var (
		p     mission.Progress
		found bool
	)
	err := f.store.WithinTx(f.ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		p, found, err = tx.MissionProgress().Find(ctx, userID, missionID)
		return err
	})
	require.NoError(f.t, err)
	return p, found
}

func (f *fixture) streakOf(userID, moduleID string) (streak.Streak, bool) {
	f.t.Helper()
	var (
		s     streak.Streak
		found bool
	)
	err := f.store.WithinTx(f.ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		s, found, err = tx.Streaks().Find(ctx, userID, moduleID)
		return err
	})
	require.NoError(f.t, err)
	return s, found
}

func (f *fixture) xp(userID string) (int, int) {
	f.t.Helper()
	var xp, level int
	err := f.store.WithinTx(f.ctx, func(ctx context.Context, tx uow.Tx) error {
		p, err := tx.Profiles().Get(ctx, userID)
		xp, level = p.ExperiencePoints, p.CurrentLevel
		return err
	})
	require.NoError(f.t, err)
	return xp, level
}
