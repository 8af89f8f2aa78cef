package consumption

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/observability"
	"github.com/odyssey-erp/odyssey-mes/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/genealogy"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, orgID, woID uuid.UUID, page shared.Page) ([]Record, int, error)
}

// Invalidator drops cached read models of an organisation after writes.
type Invalidator interface {
	Invalidate(ctx context.Context, orgID uuid.UUID) error
}

// Service records consumptions.
type Service struct {
	repo    RepositoryPort
	locker  *lock.Locker
	metrics *observability.Domain
	cache   Invalidator
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service. locker, metrics and cache may be nil.
func NewService(repo RepositoryPort, locker *lock.Locker, metrics *observability.Domain, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, metrics: metrics, cache: cache, logger: logger, now: time.Now}
}

// List returns a page of the work order's consumptions.
func (s *Service) List(ctx context.Context, orgID, woID uuid.UUID, page shared.Page) ([]Record, int, error) {
	return s.repo.List(ctx, orgID, woID, page)
}

type snapshot struct {
	wo          workorders.WorkOrder
	material    workorders.Material
	lp          *licenseplates.LicensePlate
	reservation *Reservation
	allowOver   bool
}

func load(ctx context.Context, tx TxRepository, woID, materialID, lpID uuid.UUID) (snapshot, error) {
	var snap snapshot
	var err error
	if snap.wo, err = tx.GetWorkOrder(ctx, woID); err != nil {
		return snap, err
	}
	if snap.material, err = tx.GetMaterialForUpdate(ctx, woID, materialID); err != nil {
		return snap, err
	}
	lp, err := tx.GetLPForUpdate(ctx, lpID)
	switch {
	case errors.Is(err, licenseplates.ErrLPNotFound):
	case err != nil:
		return snap, err
	default:
		snap.lp = &lp
		if snap.reservation, err = tx.ActiveReservation(ctx, lpID, materialID); err != nil {
			return snap, err
		}
	}
	snap.allowOver, err = tx.AllowOverConsumption(ctx)
	return snap, err
}

// Consume draws input.Quantity from a plate into a work order line.
func (s *Service) Consume(ctx context.Context, actor shared.Principal, woID uuid.UUID, input ConsumeInput) (Result, error) {
	result, err := s.consume(ctx, actor, woID, input)
	s.metrics.Consumption(outcome(err))
	if err == nil && s.cache != nil {
		if cerr := s.cache.Invalidate(ctx, actor.OrgID); cerr != nil {
			s.logger.Warn("dashboard cache invalidation failed", slog.String("org_id", actor.OrgID.String()), slog.Any("error", cerr))
		}
	}
	return result, err
}

func (s *Service) consume(ctx context.Context, actor shared.Principal, woID uuid.UUID, input ConsumeInput) (Result, error) {
	var result Result
	err := s.locker.With(ctx, lock.LicensePlateKey(actor.OrgID, input.LPID), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
			snap, err := load(ctx, tx, woID, input.MaterialID, input.LPID)
			if err != nil {
				return err
			}
			if err := snap.wo.RequireInProgress(); err != nil {
				return err
			}
			now := s.now().UTC()
			q := input.Quantity
			warning, err := Check(snap.lp, snap.material, snap.reservation != nil, q, snap.allowOver, now)
			if err != nil {
				return err
			}

			lp := *snap.lp
			material := snap.material
			if err := lp.Draw(q, &snap.wo.ID); err != nil {
				return err
			}
			if res := snap.reservation; res != nil {
				taken := res.Draw(q)
				if lp.Status == licenseplates.StatusConsumed && res.Status == ReservationActive {
					// An emptied plate cannot honour what is left of the reservation.
					taken = taken.Add(res.ReservedQty)
					res.ReservedQty = decimal.Zero
					res.Status = ReservationConsumed
				}
				material.ReservedQty = decimal.Max(decimal.Zero, material.ReservedQty.Sub(taken))
				if err := tx.SaveReservation(ctx, *res); err != nil {
					return err
				}
				if lp.Status == licenseplates.StatusReserved && res.Status != ReservationActive {
					lp.Status = licenseplates.StatusAvailable
				}
			}
			material.ConsumedQty = material.ConsumedQty.Add(q)
			lp.UpdatedAt = now

			if err := tx.SaveLP(ctx, lp); err != nil {
				return err
			}
			if err := tx.SaveMaterial(ctx, material); err != nil {
				return err
			}
			rec := Record{
				ID:              uuid.New(),
				WOID:            snap.wo.ID,
				MaterialID:      material.ID,
				LPID:            lp.ID,
				LPNumber:        lp.LPNumber,
				Quantity:        q,
				ConsumedBy:      actor.Actor(),
				ConsumedAt:      now,
				OverConsumption: warning == WarningExceedsRequired,
				Notes:           input.Notes,
			}
			if err := tx.InsertRecord(ctx, rec); err != nil {
				return err
			}
			orderID := snap.wo.ID
			if err := tx.InsertMovement(ctx, licenseplates.Movement{
				LPID:         lp.ID,
				MovementType: licenseplates.MovementConsumption,
				Quantity:     q.Neg(),
				WOID:         &orderID,
				Notes:        input.Notes,
				CreatedBy:    actor.Actor(),
			}); err != nil {
				return err
			}
			if err := tx.InsertEdge(ctx, genealogy.Edge{
				ParentLPID:   lp.ID,
				RelationType: genealogy.RelationConsumption,
				WOID:         &orderID,
				Quantity:     q,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
			if err := tx.RecordAudit(ctx, shared.AuditLog{
				ActorID:  actor.Actor(),
				Action:   "wo.consume",
				Entity:   "work_order",
				EntityID: orderID.String(),
				Meta: map[string]any{
					"lp_id":       lp.ID.String(),
					"material_id": material.ID.String(),
					"quantity":    q.String(),
					"warning":     warning,
				},
				At: now,
			}); err != nil {
				return err
			}
			result = Result{Record: rec, LP: lp, Material: material, Warning: warning}
			return nil
		})
	})
	if errors.Is(err, lock.ErrNotObtained) {
		return Result{}, licenseplates.ErrLPLocked
	}
	return result, err
}

// ValidateLP runs the consumption rules without writing anything. Rule
// failures are reported in the verdict; lookup failures of the work order or
// material are returned as errors.
func (s *Service) ValidateLP(ctx context.Context, orgID, woID, materialID uuid.UUID, input ValidateInput) (Verdict, error) {
	var verdict Verdict
	err := s.repo.WithTx(ctx, orgID, func(ctx context.Context, tx TxRepository) error {
		snap, err := load(ctx, tx, woID, materialID, input.LPID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		var warning string
		if input.Quantity.IsZero() {
			err = ValidateLP(snap.lp, snap.material, snap.reservation != nil, now)
			if err == nil && snap.material.IsByProduct {
				err = ErrByProductMaterial
			}
		} else {
			warning, err = Check(snap.lp, snap.material, snap.reservation != nil, input.Quantity, snap.allowOver, now)
		}
		if err != nil {
			coded, ok := shared.AsError(err)
			if !ok {
				return err
			}
			verdict = Verdict{Error: coded.Code, Message: coded.Message}
			return nil
		}
		verdict = Verdict{Valid: true, Warning: warning}
		return nil
	})
	return verdict, err
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
