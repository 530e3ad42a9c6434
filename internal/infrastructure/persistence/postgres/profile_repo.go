package postgres

import (
	"context"
	"fmt"

	"github.com/dividis/progress-engine/internal/domain/profile"
)

// ProfileRepository implements profile.Repository.
type ProfileRepository struct {
	q Querier
}

const profileColumns = `user_id, experience_points, current_level, created_at, updated_at, revision`

func scanProfile(row interface{ Scan(...any) error }) (profile.Profile, error) {
	var p profile.Profile
	err := row.Scan(&p.UserID, &p.ExperiencePoints, &p.CurrentLevel, &p.CreatedAt, &p.UpdatedAt, &p.Revision)
	return p, err
}

// GetForUpdate locks the profile row until the transaction ends.
func (r *ProfileRepository) GetForUpdate(ctx context.Context, userID string) (profile.Profile, error) {
	return r.get(ctx, userID, "SELECT "+profileColumns+" FROM profiles WHERE user_id = $1 FOR UPDATE")
}

// Get returns the profile without locking it.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (profile.Profile, error) {
	return r.get(ctx, userID, "SELECT "+profileColumns+" FROM profiles WHERE user_id = $1")
}

func (r *ProfileRepository) get(ctx context.Context, userID, query string) (profile.Profile, error) {
	p, err := scanProfile(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		if IsNoRows(err) {
			return profile.Profile{}, profile.ErrNotFound(userID)
		}
		return profile.Profile{}, fmt.Errorf("postgres: get profile: %w", err)
	}
	return p, nil
}

// Create inserts the profile unless one exists, then returns the stored row.
func (r *ProfileRepository) Create(ctx context.Context, p profile.Profile) (profile.Profile, bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO profiles (user_id, experience_points, current_level, created_at, updated_at, revision)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING
	`, p.UserID, p.ExperiencePoints, p.CurrentLevel, p.CreatedAt, p.UpdatedAt, p.Revision)
	if err != nil {
		return profile.Profile{}, false, fmt.Errorf("postgres: create profile: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return p, true, nil
	}
	stored, err := r.Get(ctx, p.UserID)
	return stored, false, err
}

// Save writes XP, level and revision.
func (r *ProfileRepository) Save(ctx context.Context, p profile.Profile) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE profiles SET experience_points = $1, current_level = $2, updated_at = $3, revision = $4
		WHERE user_id = $5
	`, p.ExperiencePoints, p.CurrentLevel, p.UpdatedAt, p.Revision, p.UserID)
	if err != nil {
		return fmt.Errorf("postgres: save profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound(p.UserID)
	}
	return nil
}

// Delete removes the profile; foreign keys cascade to every owned row.
func (r *ProfileRepository) Delete(ctx context.Context, userID string) error {
	tag, err := r.q.Exec(ctx, "DELETE FROM profiles WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("postgres: delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound(userID)
	}
	return nil
}
