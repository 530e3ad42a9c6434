package query_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dividis/progress-engine/internal/application/command"
	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/application/query"
	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/achievement"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/dividis/progress-engine/pkg/timeutil"
)

// Monday.
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

func (r *recorder) count(t shared.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	clock *timeutil.FixedClock
	rules *module.Registry
	bus   *recorder
	cmds  command.Deps
	deps  query.Deps
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
	engine := progression.NewEngine(f.rules, progression.DefaultConfig())
	f.cmds = command.Deps{Store: f.store, Engine: engine, Publisher: f.bus, Clock: f.clock}
	f.deps = query.Deps{
		Store:     f.store,
		Engine:    engine,
		Publisher: f.bus,
		Clock:     f.clock,
		Titles:    profile.NewTitleBook(map[int]string{2: "Explorador"}, profile.DefaultTitle),
	}
	f.seed()
	return f
}

// seed loads:
//
//	vision (order 1, 0 XP), proposito (order 2, 100 XP), personalidad (order 3, 500 XP)
//	three tracked global missions and one mission per open-able module
func (f *fixture) seed() {
	f.t.Helper()
	mods := []module.Module{
		{ID: "vision", Title: "Visión", Order: 1},
		{ID: "proposito", Title: "Propósito", Order: 2, XPRequired: 100},
		{ID: "personalidad", Title: "Personalidad", Order: 3, XPRequired: 500},
	}
	missions := []mission.Mission{
		{ID: "daily", Title: "Declaración diaria", XPReward: 5, RequiredLevel: 1,
			Frequency: mission.FrequencyDaily, Kind: mission.KindDailyDeclaration, CreatedAt: start.Add(1 * time.Second)},
		{ID: "weekly-streak", Title: "Racha semanal", XPReward: 20, RequiredLevel: 1,
			Frequency: mission.FrequencyWeekly, Kind: mission.KindWeeklyStreak, CreatedAt: start.Add(2 * time.Second)},
		{ID: "weekly-unlock", Title: "Desbloquea un módulo", XPReward: 20, RequiredLevel: 1,
			Frequency: mission.FrequencyWeekly, Kind: mission.KindWeeklyUnlock, CreatedAt: start.Add(3 * time.Second)},
		{ID: "vision-why", ModuleID: "vision", Title: "Tu porqué", XPReward: 30, RequiredLevel: 1,
			Kind:         mission.KindStandard,
			Requirements: []mission.Requirement{{Type: mission.RequirementPillar, ID: "Proposito"}},
			CreatedAt:    start.Add(4 * time.Second)},
		{ID: "perso-1", ModuleID: "personalidad", Title: "Conócete", XPReward: 40, RequiredLevel: 1,
			Kind:         mission.KindStandard,
			Requirements: []mission.Requirement{{Type: mission.RequirementPillar, ID: "Vision"}},
			CreatedAt:    start.Add(5 * time.Second)},
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
		return tx.Achievements().Upsert(ctx, achievement.Achievement{ID: "boost", Name: "Impulso", XPReward: 150})
	})
	require.NoError(f.t, err)
}

func (f *fixture) register(userID string) {
	f.t.Helper()
	_, err := command.NewRegisterUserHandler(f.cmds).Handle(f.ctx, command.RegisterUserCommand{UserID: userID})
	require.NoError(f.t, err)
}

func (f *fixture) declare(userID, moduleID, pillar, text string) {
	f.t.Helper()
	_, err := command.NewCreateDeclarationHandler(f.cmds).Handle(f.ctx, command.CreateDeclarationCommand{
		UserID: userID, ModuleID: moduleID, Pillar: pillar, Text: text,
	})
	require.NoError(f.t, err)
}

func (f *fixture) grant(userID, achievementID string) {
	f.t.Helper()
	_, err := command.NewGrantAchievementHandler(f.cmds).Handle(f.ctx, command.GrantAchievementCommand{
		UserID: userID, AchievementID: achievementID,
	})
	require.NoError(f.t, err)
}

func (f *fixture) unlock(userID, moduleID string) {
	f.t.Helper()
	_, err := command.NewUnlockModuleHandler(f.cmds).Handle(f.ctx, command.UnlockModuleCommand{
		UserID: userID, ModuleID: moduleID,
	})
	require.NoError(f.t, err)
}
