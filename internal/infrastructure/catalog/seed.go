package catalog

import (
	"context"
	"fmt"

	"github.com/dividis/progress-engine/internal/application/uow"
)

// SeedResult counts the upserted entries.
type SeedResult struct {
	Modules      int
	Missions     int
	Achievements int
}

// Seed validates the catalogue and upserts it in one transaction. Per-user
// progress is left untouched.
func Seed(ctx context.Context, store uow.Store, c *Catalog) (SeedResult, error) {
	if err := c.Validate(); err != nil {
		return SeedResult{}, err
	}

	var res SeedResult
	err := store.WithinTx(ctx, func(ctx context.Context, tx uow.Tx) error {
		res = SeedResult{}
		for _, m := range c.Modules {
			if err := tx.Modules().Upsert(ctx, m); err != nil {
				return fmt.Errorf("upsert module %s: %w", m.ID, err)
			}
			res.Modules++
		}
		for _, m := range c.Missions {
			if err := tx.Missions().Upsert(ctx, m); err != nil {
				return fmt.Errorf("upsert mission %s: %w", m.ID, err)
			}
			res.Missions++
		}
		for _, a := range c.Achievements {
			if err := tx.Achievements().Upsert(ctx, a); err != nil {
				return fmt.Errorf("upsert achievement %s: %w", a.ID, err)
			}
			res.Achievements++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	return res, nil
}
