package licenseplates

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/observability"
	"github.com/odyssey-erp/odyssey-mes/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/genealogy"
)

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, orgID, id uuid.UUID) (LicensePlate, error)
	List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]LicensePlate, int, error)
	Movements(ctx context.Context, orgID, lpID uuid.UUID, page shared.Page) ([]Movement, int, error)
}

// StatusPort is the slice of the status engine used for block and unblock.
type StatusPort interface {
	Config(ctx context.Context, orgID uuid.UUID, entity statuses.EntityType) (*statuses.Config, error)
	Validate(ctx context.Context, cfg *statuses.Config, req statuses.Request) (statuses.Transition, error)
	History(ctx context.Context, orgID uuid.UUID, entity statuses.EntityType, entityID uuid.UUID, page shared.Page) ([]statuses.HistoryRecord, int, error)
}

// Service coordinates license plate operations.
type Service struct {
	repo     RepositoryPort
	statuses StatusPort
	locker   *lock.Locker
	metrics  *observability.Domain
	now      func() time.Time
}

// NewService builds Service. locker and metrics may be nil.
func NewService(repo RepositoryPort, status StatusPort, locker *lock.Locker, metrics *observability.Domain) *Service {
	return &Service{repo: repo, statuses: status, locker: locker, metrics: metrics, now: time.Now}
}

// Get returns one plate.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (LicensePlate, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns a page of plates.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]LicensePlate, int, error) {
	return s.repo.List(ctx, orgID, filter)
}

// Movements returns a page of the plate's ledger entries.
func (s *Service) Movements(ctx context.Context, orgID, id uuid.UUID, page shared.Page) ([]Movement, int, error) {
	return s.repo.Movements(ctx, orgID, id, page)
}

// History returns the plate's status history, newest first.
func (s *Service) History(ctx context.Context, orgID, id uuid.UUID, page shared.Page) ([]statuses.HistoryRecord, int, error) {
	if _, err := s.repo.Get(ctx, orgID, id); err != nil {
		return nil, 0, err
	}
	return s.statuses.History(ctx, orgID, statuses.EntityLicensePlate, id, page)
}

// withLock serialises writers of one plate across API nodes.
func (s *Service) withLock(ctx context.Context, orgID, id uuid.UUID, fn func(context.Context) error) error {
	err := s.locker.With(ctx, lock.LicensePlateKey(orgID, id), fn)
	if errors.Is(err, lock.ErrNotObtained) {
		return ErrLPLocked
	}
	return err
}

// Split moves q out of the source plate into a new child plate. The child
// inherits batch, expiry, QA status and location unless a location is given.
func (s *Service) Split(ctx context.Context, actor shared.Principal, id uuid.UUID, input SplitInput) (SplitResult, error) {
	result, err := s.split(ctx, actor, id, input)
	s.metrics.LPSplit(outcome(err))
	return result, err
}

func (s *Service) split(ctx context.Context, actor shared.Principal, id uuid.UUID, input SplitInput) (SplitResult, error) {
	q := input.Quantity
	if !q.IsPositive() {
		return SplitResult{}, ErrInvalidQuantity
	}
	var result SplitResult
	err := s.withLock(ctx, actor.OrgID, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
			source, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if source.Status != StatusAvailable {
				return ErrLPNotAvailable.WithMessage("license plate %s is %s", source.LPNumber, source.Status)
			}
			if q.GreaterThanOrEqual(source.Quantity) {
				return ErrInvalidQuantity.WithMessage("split quantity must be less than %s", source.Quantity)
			}

			now := s.now().UTC()
			number, err := tx.NextNumber(ctx, now)
			if err != nil {
				return err
			}
			source.Quantity = source.Quantity.Sub(q)
			source.UpdatedAt = now

			parentID := source.ID
			child := LicensePlate{
				ID:          uuid.New(),
				OrgID:       actor.OrgID,
				LPNumber:    number,
				ProductID:   source.ProductID,
				Quantity:    q,
				UoM:         source.UoM,
				Status:      StatusAvailable,
				QAStatus:    source.QAStatus,
				BatchNumber: source.BatchNumber,
				ExpiryDate:  source.ExpiryDate,
				LocationID:  source.LocationID,
				WarehouseID: source.WarehouseID,
				ParentLPID:  &parentID,
				IsByProduct: source.IsByProduct,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if input.LocationID != nil {
				child.LocationID = input.LocationID
			}

			if err := tx.Save(ctx, source); err != nil {
				return err
			}
			if err := tx.Insert(ctx, child); err != nil {
				return err
			}
			actorID := actor.Actor()
			if err := tx.InsertMovement(ctx, Movement{LPID: source.ID, MovementType: MovementSplitOut, Quantity: q.Neg(), Notes: input.Notes, CreatedBy: actorID}); err != nil {
				return err
			}
			if err := tx.InsertMovement(ctx, Movement{LPID: child.ID, MovementType: MovementSplitIn, Quantity: q, Notes: input.Notes, CreatedBy: actorID}); err != nil {
				return err
			}
			childID := child.ID
			if err := tx.InsertEdge(ctx, genealogy.Edge{
				ParentLPID:   source.ID,
				ChildLPID:    &childID,
				RelationType: genealogy.RelationSplit,
				Quantity:     q,
			}); err != nil {
				return err
			}
			if err := tx.RecordAudit(ctx, shared.AuditLog{
				ActorID:  actorID,
				Action:   "lp.split",
				Entity:   "license_plate",
				EntityID: source.ID.String(),
				Meta:     map[string]any{"child_lp_id": child.ID.String(), "quantity": q.String()},
				At:       now,
			}); err != nil {
				return err
			}
			result = SplitResult{Source: source, Child: child}
			return nil
		})
	})
	return result, err
}

// Update edits location, QA status, batch and expiry of a plate that is not
// consumed.
func (s *Service) Update(ctx context.Context, actor shared.Principal, id uuid.UUID, input UpdateInput) (LicensePlate, error) {
	var updated LicensePlate
	err := s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
		lp, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if lp.Status == StatusConsumed {
			return ErrLPConsumed
		}
		changes := map[string]any{}
		if input.LocationID != nil {
			lp.LocationID = input.LocationID
			changes["location_id"] = input.LocationID.String()
		}
		if input.QAStatus != nil {
			changes["qa_status"] = map[string]string{"from": lp.QAStatus, "to": *input.QAStatus}
			lp.QAStatus = *input.QAStatus
		}
		if input.BatchNumber != nil {
			lp.BatchNumber = *input.BatchNumber
			changes["batch_number"] = lp.BatchNumber
		}
		if input.ExpiryDate != nil {
			day := truncateDay(*input.ExpiryDate)
			lp.ExpiryDate = &day
			changes["expiry_date"] = day.Format(time.DateOnly)
		}
		if len(changes) == 0 {
			updated = lp
			return nil
		}
		lp.UpdatedAt = s.now().UTC()
		if err := tx.Save(ctx, lp); err != nil {
			return err
		}
		updated = lp
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.Actor(),
			Action:   "lp.update",
			Entity:   "license_plate",
			EntityID: lp.ID.String(),
			Meta:     changes,
			At:       lp.UpdatedAt,
		})
	})
	return updated, err
}

// Block moves an available plate to blocked. The reason is mandatory.
func (s *Service) Block(ctx context.Context, actor shared.Principal, id uuid.UUID, input BlockInput) (LicensePlate, error) {
	return s.transition(ctx, actor, id, StatusBlocked, MovementBlock, input.Reason)
}

// Unblock returns a blocked plate to available.
func (s *Service) Unblock(ctx context.Context, actor shared.Principal, id uuid.UUID, input BlockInput) (LicensePlate, error) {
	return s.transition(ctx, actor, id, StatusAvailable, MovementUnblock, input.Reason)
}

func (s *Service) transition(ctx context.Context, actor shared.Principal, id uuid.UUID, to, movement, reason string) (LicensePlate, error) {
	cfg, err := s.statuses.Config(ctx, actor.OrgID, statuses.EntityLicensePlate)
	if err != nil {
		return LicensePlate{}, err
	}
	var updated LicensePlate
	err = s.withLock(ctx, actor.OrgID, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
			lp, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if _, err := s.statuses.Validate(ctx, cfg, statuses.Request{
				EntityID: lp.ID,
				From:     lp.Status,
				To:       to,
				Reason:   reason,
			}); err != nil {
				return err
			}
			from := lp.Status
			now := s.now().UTC()
			lp.Status = to
			lp.UpdatedAt = now
			if err := tx.Save(ctx, lp); err != nil {
				return err
			}
			if err := tx.InsertMovement(ctx, Movement{LPID: lp.ID, MovementType: movement, Quantity: decimal.Zero, Notes: reason, CreatedBy: actor.Actor()}); err != nil {
				return err
			}
			if err := tx.InsertHistory(ctx, statuses.HistoryRecord{
				ID:         uuid.New(),
				EntityType: statuses.EntityLicensePlate,
				EntityID:   lp.ID,
				FromStatus: from,
				ToStatus:   to,
				ChangedBy:  actor.Actor(),
				ChangedAt:  now,
				Notes:      reason,
			}); err != nil {
				return err
			}
			updated = lp
			return nil
		})
	})
	return updated, err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if coded, ok := shared.AsError(err); ok {
		return coded.Code
	}
	return "error"
}
