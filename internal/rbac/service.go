package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Service reads role and permission assignments.
type Service struct {
	pool db.Beginner
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool db.Beginner) *Service {
	return &Service{pool: pool}
}

// EffectivePermissions returns deduplicated permission names granted to the
// principal's user inside its organisation.
func (s *Service) EffectivePermissions(ctx context.Context, p shared.Principal) ([]string, error) {
	var perms []string
	err := db.WithOrgTx(ctx, s.pool, p.OrgID, db.ReadOnly, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT DISTINCT rp.permission
			FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			WHERE ur.user_id = $1 AND ur.org_id = $2
			ORDER BY rp.permission`, p.UserID, p.OrgID)
		if err != nil {
			return err
		}
		perms, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: effective permissions: %w", err)
	}
	return perms, nil
}

// SeedRole upserts a role with the given permissions and assigns it to userID.
func (s *Service) SeedRole(ctx context.Context, orgID, userID uuid.UUID, name string, perms []string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, fmt.Errorf("rbac: role name required")
	}
	var roleID uuid.UUID
	err := db.WithOrgTx(ctx, s.pool, orgID, db.ReadWrite, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO roles (id, org_id, name) VALUES ($1, $2, $3)
			ON CONFLICT (org_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, uuid.New(), orgID, name).Scan(&roleID)
		if err != nil {
			return err
		}
		for _, perm := range perms {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				roleID, strings.ToLower(perm)); err != nil {
				return err
			}
		}
		if userID == uuid.Nil {
			return nil
		}
		_, err = tx.Exec(ctx, `INSERT INTO user_roles (org_id, user_id, role_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			orgID, userID, roleID)
		return err
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("rbac: seed role: %w", err)
	}
	return roleID, nil
}
