package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CATALOGUE
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: catalogue tables
-- Version: 001

CREATE TABLE IF NOT EXISTS modules (
    id VARCHAR(100) PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    sort_order INTEGER NOT NULL,
    xp_required INTEGER NOT NULL DEFAULT 0,
    state VARCHAR(20) NOT NULL DEFAULT 'locked',

    CONSTRAINT modules_sort_order_key UNIQUE (sort_order) DEFERRABLE INITIALLY DEFERRED,
    CONSTRAINT valid_module_state CHECK (state IN ('locked', 'unlocked', 'completed')),
    CONSTRAINT valid_module_order CHECK (sort_order >= 1),
    CONSTRAINT valid_xp_required CHECK (xp_required >= 0)
);

CREATE TABLE IF NOT EXISTS missions (
    id VARCHAR(100) PRIMARY KEY,
    module_id VARCHAR(100) REFERENCES modules(id) ON DELETE CASCADE,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    xp_reward INTEGER NOT NULL DEFAULT 50,
    required_level INTEGER NOT NULL DEFAULT 1,
    frequency VARCHAR(20) NOT NULL DEFAULT 'none',
    kind VARCHAR(30) NOT NULL DEFAULT 'standard',
    requirements JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_frequency CHECK (frequency IN ('none', 'global', 'daily', 'weekly')),
    CONSTRAINT valid_kind CHECK (kind IN ('standard', 'daily_declaration', 'weekly_streak', 'weekly_unlock', 'streak_day')),
    CONSTRAINT valid_xp_reward CHECK (xp_reward >= 0),
    CONSTRAINT valid_required_level CHECK (required_level >= 1)
);

CREATE INDEX IF NOT EXISTS idx_missions_module ON missions(module_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_missions_global_kind ON missions(kind) WHERE module_id IS NULL;

CREATE TABLE IF NOT EXISTS achievements (
    id VARCHAR(100) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    xp_reward INTEGER NOT NULL DEFAULT 100,

    CONSTRAINT valid_achievement_xp CHECK (xp_reward >= 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS achievements;
DROP TABLE IF EXISTS missions;
DROP TABLE IF EXISTS modules;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: USER PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: per-user progress
-- Version: 002
-- Every row below is owned by a profile and goes away with it.

CREATE TABLE IF NOT EXISTS profiles (
    user_id VARCHAR(100) PRIMARY KEY,
    experience_points INTEGER NOT NULL DEFAULT 0,
    current_level INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp CHECK (experience_points >= 0),
    CONSTRAINT valid_level CHECK (current_level >= 1)
);

CREATE TABLE IF NOT EXISTS module_progress (
    user_id VARCHAR(100) NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
    module_id VARCHAR(100) NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
    state VARCHAR(20) NOT NULL DEFAULT 'locked',
    auto_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
    unlocked_at TIMESTAMP WITH TIME ZONE,
    completed_at TIMESTAMP WITH TIME ZONE,
    last_activity TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, module_id),
    CONSTRAINT valid_progress_state CHECK (state IN ('locked', 'unlocked', 'completed'))
);

CREATE TABLE IF NOT EXISTS mission_progress (
    user_id VARCHAR(100) NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
    mission_id VARCHAR(100) NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
    state VARCHAR(20) NOT NULL DEFAULT 'active',
    started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMP WITH TIME ZONE,

    PRIMARY KEY (user_id, mission_id),
    CONSTRAINT valid_mission_state CHECK (state IN ('active', 'completed', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_mission_progress_completed
    ON mission_progress(user_id) WHERE state = 'completed';

-- module_id NULL is the global bucket.
CREATE TABLE IF NOT EXISTS streaks (
    id BIGSERIAL PRIMARY KEY,
    user_id VARCHAR(100) NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
    module_id VARCHAR(100) REFERENCES modules(id) ON DELETE CASCADE,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_streak CHECK (current_streak >= 0 AND longest_streak >= current_streak)
);

CREATE UNIQUE INDEX IF NOT EXISTS streaks_user_module_key
    ON streaks(user_id, (COALESCE(module_id, '')));

CREATE TABLE IF NOT EXISTS declarations (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(100) NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
    module_id VARCHAR(100) NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
    pillar VARCHAR(20) NOT NULL,
    text TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_pillar CHECK (pillar IN ('Vision', 'Proposito', 'Creencias', 'Estrategias'))
);

CREATE UNIQUE INDEX IF NOT EXISTS declarations_unique_text
    ON declarations(user_id, module_id, pillar, md5(text));
CREATE INDEX IF NOT EXISTS idx_declarations_user_created ON declarations(user_id, created_at);

CREATE TABLE IF NOT EXISTS user_achievements (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(100) NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
    achievement_id VARCHAR(100) NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT user_achievements_once UNIQUE (user_id, achievement_id)
);
`

const migration002Down = `
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS declarations;
DROP TABLE IF EXISTS streaks;
DROP TABLE IF EXISTS mission_progress;
DROP TABLE IF EXISTS module_progress;
DROP TABLE IF EXISTS profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PROFILE REVISION
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: progress revision used to validate cached overviews
-- Version: 003

ALTER TABLE profiles ADD COLUMN IF NOT EXISTS revision BIGINT NOT NULL DEFAULT 0;
`

const migration003Down = `
ALTER TABLE profiles DROP COLUMN IF EXISTS revision;
`

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_catalogue",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_progress",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "add_profile_revision",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}
