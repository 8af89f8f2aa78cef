package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Repository stores customers.
type Repository struct {
	pool  db.Beginner
	audit *shared.AuditLogger
}

// NewRepository constructs Repository.
func NewRepository(pool db.Beginner, audit *shared.AuditLogger) *Repository {
	return &Repository{pool: pool, audit: audit}
}

const columns = `id, org_id, code, name, email, country, is_active, created_at`

func scan(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.OrgID, &c.Code, &c.Name, &c.Email, &c.Country, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

// Create inserts c and its audit row in one transaction.
func (r *Repository) Create(ctx context.Context, c Customer, log shared.AuditLog) error {
	return db.WithOrgTx(ctx, r.pool, c.OrgID, db.ReadWrite, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO customers (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.OrgID, c.Code, c.Name, c.Email, c.Country, c.IsActive, c.CreatedAt)
		if _, dup := db.UniqueViolation(err); dup {
			return ErrDuplicateCustomer.WithMessage("customer code %s already exists", c.Code)
		}
		if err != nil {
			return fmt.Errorf("customers: insert: %w", err)
		}
		log.OrgID = c.OrgID
		return r.audit.Record(ctx, tx, log)
	})
}

// Get loads one customer.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (Customer, error) {
	var c Customer
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		var err error
		c, err = scan(tx.QueryRow(ctx, `SELECT `+columns+` FROM customers WHERE org_id = $1 AND id = $2`, orgID, id))
		return err
	})
	if err != nil && !errors.Is(err, ErrCustomerNotFound) {
		return Customer{}, fmt.Errorf("customers: get: %w", err)
	}
	return c, err
}

// List returns a page of customers matching filter.Search on code or name.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]Customer, int, error) {
	var (
		out   []Customer
		total int
	)
	pattern := "%" + filter.Search + "%"
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		const where = ` FROM customers WHERE org_id = $1 AND (code ILIKE $2 OR name ILIKE $2)`
		if err := tx.QueryRow(ctx, `SELECT COUNT(*)`+where, orgID, pattern).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+columns+where+` ORDER BY code LIMIT $3 OFFSET $4`,
			orgID, pattern, filter.Page.Limit, filter.Page.Offset())
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Customer, error) {
			return scan(row)
		})
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("customers: list: %w", err)
	}
	return out, total, nil
}
