package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

// Store answers the cross organisation questions the scheduled jobs ask.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ActiveOrgs lists organisations jobs should visit. The organizations table
// is not row level secured.
func (s *Store) ActiveOrgs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM organizations WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("jobs: list organizations: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("jobs: scan organizations: %w", err)
	}
	return ids, nil
}

// CountExpired counts usable plates of orgID past their expiry date.
func (s *Store) CountExpired(ctx context.Context, orgID uuid.UUID, now time.Time) (int, error) {
	var n int
	err := db.WithOrgTx(ctx, s.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		var err error
		n, err = licenseplates.CountExpired(ctx, tx, orgID, now)
		return err
	})
	return n, err
}
