package customers

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	Create(ctx context.Context, c Customer, log shared.AuditLog) error
	Get(ctx context.Context, orgID, id uuid.UUID) (Customer, error)
	List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]Customer, int, error)
}

// Service manages customers.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create normalises and stores a new active customer.
func (s *Service) Create(ctx context.Context, actor shared.Principal, req CreateRequest) (Customer, error) {
	c := Customer{
		ID:        uuid.New(),
		OrgID:     actor.OrgID,
		Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:      strings.TrimSpace(req.Name),
		Email:     req.Email,
		Country:   strings.ToUpper(req.Country),
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	}
	if c.Country == "" {
		c.Country = "US"
	}
	err := s.repo.Create(ctx, c, shared.AuditLog{
		ActorID:  actor.Actor(),
		Action:   "customer.create",
		Entity:   "customer",
		EntityID: c.ID.String(),
		Meta:     map[string]any{"code": c.Code},
		At:       c.CreatedAt,
	})
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

// Get returns one customer.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (Customer, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns a page of customers.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]Customer, int, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, orgID, filter)
}
