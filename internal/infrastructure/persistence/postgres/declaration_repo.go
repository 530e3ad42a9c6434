package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dividis/progress-engine/internal/domain/declaration"
)

// DeclarationRepository implements declaration.Repository.
type DeclarationRepository struct {
	q Querier
}

// Create inserts the declaration. An identical (user, module, pillar, text)
// row yields declaration.ErrDuplicate without aborting the transaction.
func (r *DeclarationRepository) Create(ctx context.Context, d declaration.Declaration) error {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO declarations (id, user_id, module_id, pillar, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, module_id, pillar, md5(text)) DO NOTHING
	`, d.ID, d.UserID, d.ModuleID, string(d.Pillar), d.Text, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create declaration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return declaration.ErrDuplicate
	}
	return nil
}

// CountByPillar counts declarations in one (module, pillar).
func (r *DeclarationRepository) CountByPillar(ctx context.Context, userID, moduleID string, pillar declaration.Pillar) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT count(*) FROM declarations WHERE user_id = $1 AND module_id = $2 AND pillar = $3
	`, userID, moduleID, string(pillar)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count declarations: %w", err)
	}
	return n, nil
}

// Pillars returns the distinct pillars declared in a module.
func (r *DeclarationRepository) Pillars(ctx context.Context, userID, moduleID string) (map[declaration.Pillar]bool, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT pillar FROM declarations WHERE user_id = $1 AND module_id = $2
	`, userID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pillars: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pillars: %w", err)
	}
	out := make(map[declaration.Pillar]bool, len(names))
	for _, n := range names {
		out[declaration.Pillar(n)] = true
	}
	return out, nil
}

// CountBetween counts declarations created in [from, to).
func (r *DeclarationRepository) CountBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT count(*) FROM declarations WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
	`, userID, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count declarations: %w", err)
	}
	return n, nil
}

// ListByModule returns the user's declarations in a module, oldest first.
func (r *DeclarationRepository) ListByModule(ctx context.Context, userID, moduleID string) ([]declaration.Declaration, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, user_id, module_id, pillar, text, created_at
		FROM declarations WHERE user_id = $1 AND module_id = $2
		ORDER BY created_at, id
	`, userID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list declarations: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (declaration.Declaration, error) {
		var (
			d      declaration.Declaration
			pillar string
		)
		err := row.Scan(&d.ID, &d.UserID, &d.ModuleID, &pillar, &d.Text, &d.CreatedAt)
		d.Pillar = declaration.Pillar(pillar)
		return d, err
	})
}
