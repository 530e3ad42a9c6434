package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/achievement"
	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/infrastructure/persistence/memory"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func createProfile(t *testing.T, s *memory.Store, userID string) {
	t.Helper()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		_, _, err := tx.Profiles().Create(ctx, profile.New(userID, now))
		return err
	})
	require.NoError(t, err)
}

func profileExists(t *testing.T, s *memory.Store, userID string) bool {
	t.Helper()
	var found bool
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		_, err := tx.Profiles().Get(ctx, userID)
		if shared.IsNotFound(err) {
			return nil
		}
		found = err == nil
		return err
	})
	require.NoError(t, err)
	return found
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := memory.NewStore()
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		if _, _, err := tx.Profiles().Create(ctx, profile.New("u1", now)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, profileExists(t, s, "u1"))
}

func TestWithinTx_RollsBackOnPanic(t *testing.T) {
	s := memory.NewStore()

	assert.Panics(t, func() {
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx uow.Tx) error {
			_, _, _ = tx.Profiles().Create(ctx, profile.New("u1", now))
			panic("flow bug")
		})
	})
	assert.False(t, profileExists(t, s, "u1"), "the store is usable and unchanged")
}

func TestWithinTx_CancelledContext(t *testing.T) {
	s := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(ctx context.Context, tx uow.Tx) error {
		_, _, err := tx.Profiles().Create(ctx, profile.New("u1", now))
		cancel()
		return err
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, profileExists(t, s, "u1"))
}

func TestProfiles_CreateIsIdempotent(t *testing.T) {
	s := memory.NewStore()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		p, created, err := tx.Profiles().Create(ctx, profile.New("u1", now))
		require.NoError(t, err)
		assert.True(t, created)

		p.ExperiencePoints = 40
		require.NoError(t, tx.Profiles().Save(ctx, p))

		again, created, err := tx.Profiles().Create(ctx, profile.New("u1", now.Add(time.Hour)))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, 40, again.ExperiencePoints)

		err = tx.Profiles().Save(ctx, profile.New("ghost", now))
		assert.True(t, shared.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

func TestDeclarations_DuplicateAndCounts(t *testing.T) {
	s := memory.NewStore()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		repo := tx.Declarations()
		d, err := declaration.New("d1", "u1", "vision", declaration.Vision, "Vivir con sentido", now)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, d))

		d.ID = "d2"
		assert.ErrorIs(t, repo.Create(ctx, d), declaration.ErrDuplicate)

		d.Text = "Otra idea"
		require.NoError(t, repo.Create(ctx, d))

		n, err := repo.CountByPillar(ctx, "u1", "vision", declaration.Vision)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		pillars, err := repo.Pillars(ctx, "u1", "vision")
		require.NoError(t, err)
		assert.Equal(t, map[declaration.Pillar]bool{declaration.Vision: true}, pillars)

		today, err := repo.CountBetween(ctx, "u1", now.Add(-time.Hour), now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, today)

		none, err := repo.CountBetween(ctx, "u1", now.Add(time.Hour), now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Zero(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestAchievements_GrantOnce(t *testing.T) {
	s := memory.NewStore()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		repo := tx.Achievements()
		ua := achievement.UserAchievement{ID: "ua1", UserID: "u1", AchievementID: "a1", EarnedAt: now}

		granted, err := repo.Grant(ctx, ua)
		require.NoError(t, err)
		assert.True(t, granted)

		ua.ID = "ua2"
		granted, err = repo.Grant(ctx, ua)
		require.NoError(t, err)
		assert.False(t, granted)

		n, err := repo.CountByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = repo.Get(ctx, "a1")
		assert.True(t, shared.IsNotFound(err), "catalogue entry was never upserted")
		return nil
	})
	require.NoError(t, err)
}

func TestMissions_SortedByCreation(t *testing.T) {
	s := memory.NewStore()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		for i, id := range []string{"c", "a", "b"} {
			m := mission.Mission{ID: id, ModuleID: "vision", RequiredLevel: 1, CreatedAt: now.Add(time.Duration(i) * time.Second)}
			if id == "b" {
				m.ModuleID = ""
				m.Kind = mission.KindStreakDay
			}
			require.NoError(t, tx.Missions().Upsert(ctx, m))
		}

		all, err := tx.Missions().List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, ids(all))

		scoped, err := tx.Missions().ListByModule(ctx, "vision")
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a"}, ids(scoped))

		streaks, err := tx.Missions().ListByKind(ctx, mission.KindStreakDay)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(streaks))
		return nil
	})
	require.NoError(t, err)
}

func ids(ms []mission.Mission) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func TestProfiles_DeleteCascades(t *testing.T) {
	s := memory.NewStore()
	createProfile(t, s, "u1")
	createProfile(t, s, "u2")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		require.NoError(t, tx.Modules().Upsert(ctx, module.Module{ID: "vision", Title: "Visión", Order: 1}))
		for _, u := range []string{"u1", "u2"} {
			_, err := tx.ModuleProgress().GetOrCreate(ctx, u, "vision", now)
			require.NoError(t, err)
			_, err = tx.Streaks().GetOrCreate(ctx, u, "vision", now)
			require.NoError(t, err)
			_, err = tx.MissionProgress().GetOrCreate(ctx, u, "m1", now)
			require.NoError(t, err)
			d, err := declaration.New("d-"+u, u, "vision", declaration.Vision, "texto", now)
			require.NoError(t, err)
			require.NoError(t, tx.Declarations().Create(ctx, d))
			_, err = tx.Achievements().Grant(ctx, achievement.UserAchievement{ID: "ua-" + u, UserID: u, AchievementID: "a1", EarnedAt: now})
			require.NoError(t, err)
		}
		return tx.Profiles().Delete(ctx, "u1")
	})
	require.NoError(t, err)

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		for _, tc := range []struct {
			user string
			want int
		}{{"u1", 0}, {"u2", 1}} {
			mp, _ := tx.ModuleProgress().ListByUser(ctx, tc.user)
			assert.Len(t, mp, tc.want, tc.user)
			st, _ := tx.Streaks().ListByUser(ctx, tc.user)
			assert.Len(t, st, tc.want, tc.user)
			ms, _ := tx.MissionProgress().ListByUser(ctx, tc.user)
			assert.Len(t, ms, tc.want, tc.user)
			ds, _ := tx.Declarations().ListByModule(ctx, tc.user, "vision")
			assert.Len(t, ds, tc.want, tc.user)
			n, _ := tx.Achievements().CountByUser(ctx, tc.user)
			assert.Equal(t, tc.want, n, tc.user)
		}
		return tx.Profiles().Delete(ctx, "u1")
	})
	assert.True(t, shared.IsNotFound(err))
}
