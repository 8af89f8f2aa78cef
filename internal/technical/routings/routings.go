// Package routings stores production routings and their ordered operations.
package routings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

var (
	ErrRoutingNotFound   = shared.NotFound("ROUTING_NOT_FOUND", "routing not found")
	ErrDuplicateCode     = shared.Conflict("DUPLICATE_ROUTING_CODE", "routing code already exists")
	ErrDuplicateSequence = shared.Validation("DUPLICATE_SEQUENCE", "operation sequence numbers must be unique")
)

// Operation is one step of a routing.
type Operation struct {
	ID           uuid.UUID `json:"id"`
	Sequence     int       `json:"sequence" validate:"gt=0"`
	Name         string    `json:"name" validate:"required,max=120"`
	WorkCenter   string    `json:"work_center" validate:"max=60"`
	SetupMinutes int       `json:"setup_minutes" validate:"gte=0"`
	RunMinutes   int       `json:"run_minutes" validate:"gte=0"`
}

// Routing is a named, versioned sequence of operations.
type Routing struct {
	ID          uuid.UUID   `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Version     int         `json:"version"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	Operations  []Operation `json:"operations,omitempty"`
}

// CreateInput is the POST body for a routing.
type CreateInput struct {
	Code        string      `json:"code" validate:"required,max=40"`
	Name        string      `json:"name" validate:"required,max=120"`
	Description string      `json:"description" validate:"max=1000"`
	Version     int         `json:"version" validate:"gte=0"`
	IsActive    *bool       `json:"is_active"`
	Operations  []Operation `json:"operations" validate:"dive"`
}

// ListFilter narrows List.
type ListFilter struct {
	Search     string
	ActiveOnly bool
	Page       shared.Page
}

// Store abstracts persistence.
type Store interface {
	List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]Routing, int, error)
	Get(ctx context.Context, orgID, id uuid.UUID) (Routing, error)
	Create(ctx context.Context, orgID uuid.UUID, routing Routing) error
}

// Service validates and persists routings.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService builds Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// List returns a page of routings.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]Routing, int, error) {
	return s.store.List(ctx, orgID, filter)
}

// Get returns one routing with its operations.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (Routing, error) {
	return s.store.Get(ctx, orgID, id)
}

// Create stores a new routing. Codes are stored upper case.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, input CreateInput) (Routing, error) {
	seen := make(map[int]bool, len(input.Operations))
	for _, op := range input.Operations {
		if seen[op.Sequence] {
			return Routing{}, ErrDuplicateSequence.WithMessage("sequence %d is used more than once", op.Sequence)
		}
		seen[op.Sequence] = true
	}
	routing := Routing{
		ID:          uuid.New(),
		Code:        strings.ToUpper(strings.TrimSpace(input.Code)),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Version:     input.Version,
		IsActive:    true,
		CreatedAt:   s.now().UTC(),
	}
	if routing.Version == 0 {
		routing.Version = 1
	}
	if input.IsActive != nil {
		routing.IsActive = *input.IsActive
	}
	for _, op := range input.Operations {
		op.ID = uuid.New()
		routing.Operations = append(routing.Operations, op)
	}
	if err := s.store.Create(ctx, orgID, routing); err != nil {
		return Routing{}, err
	}
	return routing, nil
}

// Repository is the Postgres Store.
type Repository struct {
	pool db.Beginner
}

// NewRepository constructs Repository.
func NewRepository(pool db.Beginner) *Repository {
	return &Repository{pool: pool}
}

// List implements Store.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]Routing, int, error) {
	var (
		out   []Routing
		total int
	)
	search := "%" + strings.TrimSpace(filter.Search) + "%"
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM routings
			WHERE org_id = $1 AND (code ILIKE $2 OR name ILIKE $2) AND (NOT $3 OR is_active)`,
			orgID, search, filter.ActiveOnly).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, code, name, COALESCE(description, ''), version, is_active, created_at
			FROM routings
			WHERE org_id = $1 AND (code ILIKE $2 OR name ILIKE $2) AND (NOT $3 OR is_active)
			ORDER BY code LIMIT $4 OFFSET $5`,
			orgID, search, filter.ActiveOnly, filter.Page.Limit, filter.Page.Offset())
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, scanRouting)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("routings: list: %w", err)
	}
	return out, total, nil
}

func scanRouting(row pgx.CollectableRow) (Routing, error) {
	var r Routing
	err := row.Scan(&r.ID, &r.Code, &r.Name, &r.Description, &r.Version, &r.IsActive, &r.CreatedAt)
	return r, err
}

// Get implements Store.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (Routing, error) {
	var routing Routing
	err := db.WithOrgTx(ctx, r.pool, orgID, db.ReadOnly, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, code, name, COALESCE(description, ''), version, is_active, created_at
			FROM routings WHERE org_id = $1 AND id = $2`, orgID, id)
		if err != nil {
			return err
		}
		routing, err = pgx.CollectExactlyOneRow(rows, scanRouting)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRoutingNotFound
		}
		if err != nil {
			return err
		}
		rows, err = tx.Query(ctx, `SELECT id, sequence, name, COALESCE(work_center, ''), setup_minutes, run_minutes
			FROM routing_operations WHERE org_id = $1 AND routing_id = $2 ORDER BY sequence`, orgID, id)
		if err != nil {
			return err
		}
		routing.Operations, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Operation, error) {
			var op Operation
			err := row.Scan(&op.ID, &op.Sequence, &op.Name, &op.WorkCenter, &op.SetupMinutes, &op.RunMinutes)
			return op, err
		})
		return err
	})
	return routing, err
}

const constraintRoutingCode = "routings_org_code_key"

// Create implements Store.
func (r *Repository) Create(ctx context.Context, orgID uuid.UUID, routing Routing) error {
	return db.WithOrgTx(ctx, r.pool, orgID, db.ReadWrite, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO routings (id, org_id, code, name, description, version, is_active, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
			routing.ID, orgID, routing.Code, routing.Name, routing.Description, routing.Version, routing.IsActive, routing.CreatedAt)
		if constraint, ok := db.UniqueViolation(err); ok && constraint == constraintRoutingCode {
			return ErrDuplicateCode.WithMessage("routing code %q already exists", routing.Code)
		}
		if err != nil {
			return fmt.Errorf("routings: insert: %w", err)
		}
		batch := &pgx.Batch{}
		for _, op := range routing.Operations {
			batch.Queue(`INSERT INTO routing_operations (id, org_id, routing_id, sequence, name, work_center, setup_minutes, run_minutes)
				VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
				op.ID, orgID, routing.ID, op.Sequence, op.Name, op.WorkCenter, op.SetupMinutes, op.RunMinutes)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if _, ok := db.UniqueViolation(err); ok {
				return ErrDuplicateSequence
			}
			return fmt.Errorf("routings: insert operations: %w", err)
		}
		return nil
	})
}
