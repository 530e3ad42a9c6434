package query

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS OVERVIEW QUERY
// The dashboard numbers of one user: XP, level and title, open modules,
// finished missions, badges and every streak. Unlocks are synced first so the
// numbers reflect what the user's XP already earned.
// ══════════════════════════════════════════════════════════════════════════════

// GlobalStreakKey is the StreaksByModule key of the module-less streak.
const GlobalStreakKey = "global"

// GetProgressOverviewQuery contains the query parameters.
type GetProgressOverviewQuery struct {
	UserID string

	// SkipCache forces a fresh read.
	SkipCache bool
}

// Validate validates the query.
func (q GetProgressOverviewQuery) Validate() error {
	_, err := shared.NewUserID(q.UserID)
	return err
}

// ProgressOverview is the dashboard view-model.
type ProgressOverview struct {
	UserID             string         `json:"user_id"`
	TotalXP            int            `json:"total_xp"`
	Level              int            `json:"level"`
	Title              string         `json:"title"`
	LevelProgress      int            `json:"level_progress"`
	ModulesUnlocked    int            `json:"modules_unlocked"`
	MissionsCompleted  int            `json:"missions_completed"`
	AchievementsEarned int            `json:"achievements_earned"`
	StreaksByModule    map[string]int `json:"streaks_by_module"`
	GeneratedAt        time.Time      `json:"generated_at"`

	// Revision is the profile revision the numbers were read at.
	Revision int64 `json:"revision"`
}

func (o *ProgressOverview) clone() *ProgressOverview {
	c := *o
	c.StreaksByModule = make(map[string]int, len(o.StreaksByModule))
	for k, v := range o.StreaksByModule {
		c.StreaksByModule[k] = v
	}
	return &c
}

// OverviewCache stores rendered overviews. Entries are dropped whenever an
// event for the user is published; a hit is still served only when its
// Revision matches the profile's current one.
type OverviewCache interface {
	GetOverview(ctx context.Context, userID string) (*ProgressOverview, bool, error)

	// SetOverview stores o unless the cache already holds a later revision.
	SetOverview(ctx context.Context, o *ProgressOverview) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressOverviewHandler handles the GetProgressOverviewQuery.
type GetProgressOverviewHandler struct {
	deps  Deps
	cache OverviewCache
	group singleflight.Group
}

// NewGetProgressOverviewHandler creates a new handler. cache may be nil.
func NewGetProgressOverviewHandler(deps Deps, cache OverviewCache) *GetProgressOverviewHandler {
	return &GetProgressOverviewHandler{deps: deps.withDefaults(), cache: cache}
}

// Handle executes the query. Concurrent calls for the same user share one load.
func (h *GetProgressOverviewHandler) Handle(ctx context.Context, q GetProgressOverviewQuery) (result *ProgressOverview, err error) {
	ctx, span := startSpan(ctx, "get_progress_overview", q.UserID)
	defer func() { endSpan(span, err) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil && !q.SkipCache {
		cached, ok, err := h.cachedOverview(ctx, q.UserID)
		if err != nil {
			return nil, err
		}
		if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}

	v, err, joined := h.group.Do(q.UserID, func() (any, error) {
		return h.load(ctx, q.UserID)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("singleflight.shared", joined))
	overview := v.(*ProgressOverview)

	if h.cache != nil {
		if err := h.cache.SetOverview(ctx, overview); err != nil {
			h.deps.Logger.Warn("overview cache write failed", logger.UserID(q.UserID), logger.Err(err))
		}
	}
	return overview.clone(), nil
}

// cachedOverview syncs unlocks in a short flow, then returns the cached
// snapshot if it was built at the revision that flow committed. An unlock
// opened by the sync moves the revision, so it never hides behind a hit.
func (h *GetProgressOverviewHandler) cachedOverview(ctx context.Context, userID string) (*ProgressOverview, bool, error) {
	var rev int64
	err := h.deps.syncThen(ctx, userID, func(f *progression.Flow) error {
		rev = f.Profile().Revision
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	cached, ok, err := h.cache.GetOverview(ctx, userID)
	if err != nil {
		h.deps.Logger.Debug("overview cache read failed", logger.UserID(userID), logger.Err(err))
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	if cached.Revision != rev {
		h.deps.Logger.Debug("stale overview snapshot",
			logger.UserID(userID),
			logger.Int64("cached_revision", cached.Revision),
			logger.Int64("revision", rev),
		)
		return nil, false, nil
	}
	return cached, true, nil
}

func (h *GetProgressOverviewHandler) load(ctx context.Context, userID string) (*ProgressOverview, error) {
	var o *ProgressOverview
	err := h.deps.syncThen(ctx, userID, func(f *progression.Flow) error {
		ctx, tx := f.Context(), f.Tx()
		p := f.Profile()

		modules, err := tx.ModuleProgress().ListByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("overview: list module progress: %w", err)
		}
		unlocked := 0
		for _, mp := range modules {
			if mp.IsAccessible() {
				unlocked++
			}
		}

		completed, err := tx.MissionProgress().CompletedIDs(ctx, userID)
		if err != nil {
			return fmt.Errorf("overview: completed missions: %w", err)
		}

		badges, err := tx.Achievements().CountByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("overview: count achievements: %w", err)
		}

		streaks, err := tx.Streaks().ListByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("overview: list streaks: %w", err)
		}
		byModule := make(map[string]int, len(streaks))
		for _, s := range streaks {
			key := s.ModuleID
			if s.IsGlobal() {
				key = GlobalStreakKey
			}
			byModule[key] = s.Current
		}

		o = &ProgressOverview{
			UserID:             userID,
			TotalXP:            p.ExperiencePoints,
			Level:              p.CurrentLevel,
			Title:              h.deps.Titles.Title(p.CurrentLevel),
			LevelProgress:      shared.XP(p.ExperiencePoints).ProgressToNextLevel(),
			ModulesUnlocked:    unlocked,
			MissionsCompleted:  len(completed),
			AchievementsEarned: badges,
			StreaksByModule:    byModule,
			GeneratedAt:        f.Now(),
			Revision:           p.Revision,
		}
		return nil
	})
	return o, err
}
