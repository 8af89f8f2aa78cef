package statuses

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/observability"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

var (
	ErrStatusNotFound        = shared.NotFound("STATUS_NOT_FOUND", "status not found")
	ErrTransitionNotFound    = shared.NotFound("TRANSITION_NOT_FOUND", "transition not found")
	ErrDuplicateStatus       = shared.Conflict("DUPLICATE_STATUS", "status code already exists")
	ErrDuplicateTransition   = shared.Conflict("DUPLICATE_TRANSITION", "transition already exists")
	ErrSystemStatus          = shared.Conflict("SYSTEM_STATUS", "system statuses cannot be deleted")
	ErrSystemTransition      = shared.Conflict("SYSTEM_TRANSITION_PROTECTED", "system transitions cannot be deleted")
	ErrStatusInUse           = shared.Conflict("STATUS_IN_USE", "status is referenced by existing records")
	ErrInvalidStatusCode     = shared.Validation("INVALID_STATUS_CODE", "status code must be lower case letters, digits and underscores")
	ErrCustomStatusesBlocked = shared.Validation("CUSTOM_STATUS_NOT_ALLOWED", "license plate statuses are fixed")
)

var statusCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,39}$`)

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error
	Load(ctx context.Context, orgID uuid.UUID, entity EntityType) (*Config, error)
	History(ctx context.Context, orgID uuid.UUID, entity EntityType, entityID uuid.UUID, page shared.Page) ([]HistoryRecord, int, error)
}

// Service manages status configuration and validates transitions.
type Service struct {
	repo    RepositoryPort
	engine  *Engine
	metrics *observability.Domain
}

// NewService builds Service. A nil engine gets the default guards.
func NewService(repo RepositoryPort, engine *Engine, metrics *observability.Domain) *Service {
	if engine == nil {
		engine = NewEngine(nil)
	}
	return &Service{repo: repo, engine: engine, metrics: metrics}
}

// CreateStatusInput describes a custom status.
type CreateStatusInput struct {
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"omitempty,max=80"`
	SortOrder *int   `json:"sort_order" validate:"omitempty,gte=0"`
}

// CreateTransitionInput describes a custom transition between two status codes.
type CreateTransitionInput struct {
	From             string `json:"from" validate:"required"`
	To               string `json:"to" validate:"required"`
	RequiresApproval bool   `json:"requires_approval"`
	RequiresReason   bool   `json:"requires_reason"`
	Guard            string `json:"guard"`
}

// Config returns the organisation's configuration for entity, falling back to
// the defaults when nothing is stored yet.
func (s *Service) Config(ctx context.Context, orgID uuid.UUID, entity EntityType) (*Config, error) {
	if !entity.Valid() {
		return nil, ErrUnknownEntity
	}
	cfg, err := s.repo.Load(ctx, orgID, entity)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return DefaultConfig(orgID, entity)
	}
	return cfg, nil
}

// Validate checks req against cfg and records the outcome.
func (s *Service) Validate(ctx context.Context, cfg *Config, req Request) (Transition, error) {
	t, err := s.engine.Validate(ctx, cfg, req)
	entity := "unknown"
	if cfg != nil {
		entity = string(cfg.EntityType)
	}
	s.metrics.Transition(entity, resultCode(err))
	return t, err
}

func resultCode(err error) string {
	if err == nil {
		return "ok"
	}
	if coded, ok := shared.AsError(err); ok {
		return coded.Code
	}
	return "error"
}

// Seed stores the default configuration of every entity type for orgID.
// Existing rows are left untouched.
func (s *Service) Seed(ctx context.Context, orgID uuid.UUID) error {
	return s.repo.WithTx(ctx, orgID, func(ctx context.Context, tx TxRepository) error {
		for _, entity := range []EntityType{EntityPurchaseOrder, EntityWorkOrder, EntityLicensePlate} {
			cfg, err := DefaultConfig(orgID, entity)
			if err != nil {
				return err
			}
			if err := tx.SeedDefaults(ctx, cfg); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureSeeded(ctx context.Context, tx TxRepository, orgID uuid.UUID, entity EntityType) (*Config, error) {
	cfg, err := tx.Load(ctx, orgID, entity)
	if err != nil || cfg != nil {
		return cfg, err
	}
	defaults, err := DefaultConfig(orgID, entity)
	if err != nil {
		return nil, err
	}
	if err := tx.SeedDefaults(ctx, defaults); err != nil {
		return nil, err
	}
	return tx.Load(ctx, orgID, entity)
}

// CreateStatus adds a custom status.
func (s *Service) CreateStatus(ctx context.Context, orgID uuid.UUID, entity EntityType, input CreateStatusInput) (Status, error) {
	if !entity.Valid() {
		return Status{}, ErrUnknownEntity
	}
	if !entity.AllowsCustomStatuses() {
		return Status{}, ErrCustomStatusesBlocked
	}
	if !statusCodePattern.MatchString(input.Code) {
		return Status{}, ErrInvalidStatusCode
	}
	status := Status{
		ID:         uuid.New(),
		OrgID:      orgID,
		EntityType: entity,
		Code:       input.Code,
		Name:       input.Name,
	}
	if status.Name == "" {
		status.Name = DisplayName(input.Code)
	}
	err := s.repo.WithTx(ctx, orgID, func(ctx context.Context, tx TxRepository) error {
		cfg, err := ensureSeeded(ctx, tx, orgID, entity)
		if err != nil {
			return err
		}
		if _, exists := cfg.Status(input.Code); exists {
			return ErrDuplicateStatus.WithMessage("status %q already exists", input.Code)
		}
		if input.SortOrder != nil {
			status.SortOrder = *input.SortOrder
		} else {
			for _, existing := range cfg.Statuses {
				if existing.SortOrder >= status.SortOrder {
					status.SortOrder = existing.SortOrder + 10
				}
			}
		}
		return tx.InsertStatus(ctx, status)
	})
	if err != nil {
		return Status{}, err
	}
	return status, nil
}

// DeleteStatus removes an unused custom status.
func (s *Service) DeleteStatus(ctx context.Context, orgID uuid.UUID, entity EntityType, statusID uuid.UUID) error {
	if !entity.Valid() {
		return ErrUnknownEntity
	}
	return s.repo.WithTx(ctx, orgID, func(ctx context.Context, tx TxRepository) error {
		cfg, err := ensureSeeded(ctx, tx, orgID, entity)
		if err != nil {
			return err
		}
		status, ok := cfg.StatusByID(statusID)
		if !ok {
			return ErrStatusNotFound
		}
		if status.IsSystem {
			return ErrSystemStatus
		}
		used, err := tx.StatusInUse(ctx, entity, status.Code)
		if err != nil {
			return err
		}
		if used {
			return ErrStatusInUse.WithMessage("status %q is referenced by existing records", status.Code)
		}
		return tx.DeleteStatus(ctx, statusID)
	})
}

// CreateTransition adds a custom transition to the allow-list.
func (s *Service) CreateTransition(ctx context.Context, orgID uuid.UUID, entity EntityType, input CreateTransitionInput) (Transition, error) {
	if !entity.Valid() {
		return Transition{}, ErrUnknownEntity
	}
	if input.From == input.To {
		return Transition{}, ErrSelfTransition
	}
	if input.Guard != "" && !s.engine.HasGuard(input.Guard) {
		return Transition{}, ErrUnknownGuard.WithMessage("guard %q is not registered", input.Guard)
	}
	var created Transition
	err := s.repo.WithTx(ctx, orgID, func(ctx context.Context, tx TxRepository) error {
		cfg, err := ensureSeeded(ctx, tx, orgID, entity)
		if err != nil {
			return err
		}
		from, ok := cfg.Status(input.From)
		if !ok {
			return ErrUnknownStatus.WithMessage("status %q is not configured", input.From)
		}
		to, ok := cfg.Status(input.To)
		if !ok {
			return ErrUnknownStatus.WithMessage("status %q is not configured", input.To)
		}
		if _, exists := cfg.Transition(from.Code, to.Code); exists {
			return ErrDuplicateTransition
		}
		created = Transition{
			ID:               uuid.New(),
			OrgID:            orgID,
			EntityType:       entity,
			FromStatusID:     from.ID,
			ToStatusID:       to.ID,
			FromCode:         from.Code,
			ToCode:           to.Code,
			RequiresApproval: input.RequiresApproval,
			RequiresReason:   input.RequiresReason,
			Guard:            input.Guard,
		}
		return tx.InsertTransition(ctx, created)
	})
	if err != nil {
		return Transition{}, err
	}
	return created, nil
}

// DeleteTransition removes a non-system transition.
func (s *Service) DeleteTransition(ctx context.Context, orgID uuid.UUID, entity EntityType, transitionID uuid.UUID) error {
	if !entity.Valid() {
		return ErrUnknownEntity
	}
	return s.repo.WithTx(ctx, orgID, func(ctx context.Context, tx TxRepository) error {
		cfg, err := ensureSeeded(ctx, tx, orgID, entity)
		if err != nil {
			return err
		}
		t, ok := cfg.TransitionByID(transitionID)
		if !ok {
			return ErrTransitionNotFound
		}
		if t.IsSystem {
			return ErrSystemTransition.WithMessage("transition %s -> %s is required by the system", t.FromCode, t.ToCode)
		}
		return tx.DeleteTransition(ctx, transitionID)
	})
}

// History lists one entity's status history, newest first.
func (s *Service) History(ctx context.Context, orgID uuid.UUID, entity EntityType, entityID uuid.UUID, page shared.Page) ([]HistoryRecord, int, error) {
	if !entity.Valid() {
		return nil, 0, ErrUnknownEntity
	}
	records, total, err := s.repo.History(ctx, orgID, entity, entityID, page)
	if err != nil {
		return nil, 0, fmt.Errorf("statuses: history: %w", err)
	}
	return records, total, nil
}
