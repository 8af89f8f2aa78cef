package genealogy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
)

// Repository is the Postgres Store.
type Repository struct {
	pool db.Beginner
}

// NewRepository constructs Repository.
func NewRepository(pool db.Beginner) *Repository {
	return &Repository{pool: pool}
}

const forwardLinksSQL = `
SELECT g.parent_lp_id, g.child_lp_id, g.relation_type, g.wo_id, g.quantity
FROM lp_genealogy g
WHERE g.org_id = $1 AND g.parent_lp_id = ANY($2) AND g.child_lp_id IS NOT NULL
UNION ALL
SELECT g.parent_lp_id, o.lp_id, g.relation_type, g.wo_id, g.quantity
FROM lp_genealogy g
JOIN production_outputs o ON o.wo_id = g.wo_id AND o.org_id = g.org_id AND o.lp_id IS NOT NULL
WHERE g.org_id = $1 AND g.parent_lp_id = ANY($2) AND g.relation_type = 'consumption'`

const backwardLinksSQL = `
SELECT g.parent_lp_id, g.child_lp_id, g.relation_type, g.wo_id, g.quantity
FROM lp_genealogy g
WHERE g.org_id = $1 AND g.child_lp_id = ANY($2)
UNION ALL
SELECT g.parent_lp_id, o.lp_id, g.relation_type, g.wo_id, g.quantity
FROM production_outputs o
JOIN lp_genealogy g ON g.wo_id = o.wo_id AND g.org_id = o.org_id AND g.relation_type = 'consumption'
WHERE o.org_id = $1 AND o.lp_id = ANY($2)`

// Links implements Store.
func (r *Repository) Links(ctx context.Context, orgID uuid.UUID, lpIDs []uuid.UUID, dir Direction) ([]Link, error) {
	query := forwardLinksSQL
	if dir == Backward {
		query = backwardLinksSQL
	}
	var links []Link
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, orgID, lpIDs)
		if err != nil {
			return err
		}
		links, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Link, error) {
			var l Link
			err := row.Scan(&l.From, &l.To, &l.Relation, &l.WOID, &l.Quantity)
			return l, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("genealogy: links: %w", err)
	}
	return links, nil
}

// Nodes implements Store.
func (r *Repository) Nodes(ctx context.Context, orgID uuid.UUID, lpIDs []uuid.UUID) ([]Node, error) {
	var nodes []Node
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, lp_number, product_id, COALESCE(batch_number, ''), quantity, status
			FROM license_plates WHERE org_id = $1 AND id = ANY($2)`, orgID, lpIDs)
		if err != nil {
			return err
		}
		nodes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Node, error) {
			var n Node
			err := row.Scan(&n.LPID, &n.LPNumber, &n.ProductID, &n.Batch, &n.Quantity, &n.Status)
			return n, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("genealogy: nodes: %w", err)
	}
	return nodes, nil
}
