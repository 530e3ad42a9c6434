// Package memory is an in-process implementation of the progression store.
// It backs the CLI's dry-run mode and every application-level test.
//
// A transaction works on a private copy of the data and swaps it in on
// success, so a failed flow leaves nothing behind. Transactions are
// serialized by a single mutex.
package memory

import (
	"context"
	"sync"

	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/achievement"
	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/streak"
)

type userKey struct {
	user string
	id   string
}

type data struct {
	profiles         map[string]profile.Profile
	modules          map[string]module.Module
	moduleProgress   map[userKey]module.Progress
	missions         map[string]mission.Mission
	missionProgress  map[userKey]mission.Progress
	streaks          map[userKey]streak.Streak
	declarations     []declaration.Declaration
	achievements     map[string]achievement.Achievement
	userAchievements []achievement.UserAchievement
}

func newData() *data {
	return &data{
		profiles:        make(map[string]profile.Profile),
		modules:         make(map[string]module.Module),
		moduleProgress:  make(map[userKey]module.Progress),
		missions:        make(map[string]mission.Mission),
		missionProgress: make(map[userKey]mission.Progress),
		streaks:         make(map[userKey]streak.Streak),
		achievements:    make(map[string]achievement.Achievement),
	}
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// clone copies the containers. Entities are values; the pointers and slices
// inside them are never mutated in place.
func (d *data) clone() *data {
	return &data{
		profiles:         copyMap(d.profiles),
		modules:          copyMap(d.modules),
		moduleProgress:   copyMap(d.moduleProgress),
		missions:         copyMap(d.missions),
		missionProgress:  copyMap(d.missionProgress),
		streaks:          copyMap(d.streaks),
		declarations:     append([]declaration.Declaration(nil), d.declarations...),
		achievements:     copyMap(d.achievements),
		userAchievements: append([]achievement.UserAchievement(nil), d.userAchievements...),
	}
}

// Store implements uow.Store in memory.
type Store struct {
	mu sync.Mutex
	d  *data
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{d: newData()}
}

// WithinTx implements uow.Store. It must not be called from inside fn.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx uow.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.d.clone()
	if err := fn(ctx, &tx{d: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.d = work
	return nil
}

type tx struct {
	d *data
}

func (t *tx) Profiles() profile.Repository                { return profileRepo{t.d} }
func (t *tx) Modules() module.Repository                  { return moduleRepo{t.d} }
func (t *tx) ModuleProgress() module.ProgressRepository   { return moduleProgressRepo{t.d} }
func (t *tx) Missions() mission.Repository                { return missionRepo{t.d} }
func (t *tx) MissionProgress() mission.ProgressRepository { return missionProgressRepo{t.d} }
func (t *tx) Streaks() streak.Repository                  { return streakRepo{t.d} }
func (t *tx) Declarations() declaration.Repository        { return declarationRepo{t.d} }
func (t *tx) Achievements() achievement.Repository        { return achievementRepo{t.d} }

var _ uow.Store = (*Store)(nil)
