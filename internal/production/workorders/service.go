package workorders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
)

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, orgID, id uuid.UUID) (WorkOrder, error)
	Materials(ctx context.Context, orgID, id uuid.UUID) ([]Material, error)
	List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]WorkOrder, int, error)
}

// StatusPort is the slice of the status engine used by Service.
type StatusPort interface {
	Config(ctx context.Context, orgID uuid.UUID, entity statuses.EntityType) (*statuses.Config, error)
	Validate(ctx context.Context, cfg *statuses.Config, req statuses.Request) (statuses.Transition, error)
	History(ctx context.Context, orgID uuid.UUID, entity statuses.EntityType, entityID uuid.UUID, page shared.Page) ([]statuses.HistoryRecord, int, error)
}

// Service serves work order reads and status changes.
type Service struct {
	repo     RepositoryPort
	statuses StatusPort
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, status StatusPort) *Service {
	return &Service{repo: repo, statuses: status, now: time.Now}
}

// List returns a page of work orders.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]WorkOrder, int, error) {
	return s.repo.List(ctx, orgID, filter)
}

// Get returns one work order.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (WorkOrder, error) {
	return s.repo.Get(ctx, orgID, id)
}

// Materials returns the material lines of a work order.
func (s *Service) Materials(ctx context.Context, orgID, id uuid.UUID) ([]Material, error) {
	return s.repo.Materials(ctx, orgID, id)
}

// History returns the status history of a work order, newest first.
func (s *Service) History(ctx context.Context, orgID, id uuid.UUID, page shared.Page) ([]statuses.HistoryRecord, int, error) {
	if _, err := s.repo.Get(ctx, orgID, id); err != nil {
		return nil, 0, err
	}
	return s.statuses.History(ctx, orgID, statuses.EntityWorkOrder, id, page)
}

// ChangeStatus validates and applies a transition. approved tells the engine
// whether the caller may pass approval-gated edges.
func (s *Service) ChangeStatus(ctx context.Context, actor shared.Principal, id uuid.UUID, input StatusInput, approved bool) (WorkOrder, error) {
	cfg, err := s.statuses.Config(ctx, actor.OrgID, statuses.EntityWorkOrder)
	if err != nil {
		return WorkOrder{}, err
	}
	var updated WorkOrder
	err = s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		facts, err := tx.Facts(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.statuses.Validate(ctx, cfg, statuses.Request{
			EntityID: wo.ID,
			From:     wo.Status,
			To:       input.Status,
			Reason:   input.Reason,
			Approved: approved,
			Facts: map[string]int{
				statuses.FactMaterialCount: facts.MaterialCount,
				statuses.FactOutputCount:   facts.OutputCount,
			},
		}); err != nil {
			return err
		}

		now := s.now().UTC()
		from := wo.Status
		wo.Status = input.Status
		wo.UpdatedAt = now
		if wo.Status == StatusInProgress && wo.StartedAt == nil {
			wo.StartedAt = &now
		}
		if wo.Status == StatusCompleted {
			wo.CompletedAt = &now
		}
		if err := tx.Save(ctx, wo); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, statuses.HistoryRecord{
			EntityType: statuses.EntityWorkOrder,
			EntityID:   wo.ID,
			FromStatus: from,
			ToStatus:   wo.Status,
			ChangedBy:  actor.Actor(),
			ChangedAt:  now,
			Notes:      input.Reason,
		}); err != nil {
			return err
		}
		updated = wo
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.Actor(),
			Action:   "wo.status",
			Entity:   "work_order",
			EntityID: wo.ID.String(),
			Meta:     map[string]any{"from": from, "to": wo.Status},
			At:       now,
		})
	})
	return updated, err
}
