package outputs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-mes/internal/observability"
	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/genealogy"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error
	Outputs(ctx context.Context, orgID, woID uuid.UUID) ([]Output, error)
	Materials(ctx context.Context, orgID, woID uuid.UUID) ([]workorders.Material, []Output, error)
}

// Invalidator drops cached read models of an organisation after writes.
type Invalidator interface {
	Invalidate(ctx context.Context, orgID uuid.UUID) error
}

// Service registers production outputs.
type Service struct {
	repo    RepositoryPort
	metrics *observability.Domain
	cache   Invalidator
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service. metrics and cache may be nil.
func NewService(repo RepositoryPort, metrics *observability.Domain, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, metrics: metrics, cache: cache, logger: logger, now: time.Now}
}

// Outputs lists every registration of a work order.
func (s *Service) Outputs(ctx context.Context, orgID, woID uuid.UUID) ([]Output, error) {
	return s.repo.Outputs(ctx, orgID, woID)
}

// ByProducts returns the by-product lines of a work order with their expected
// quantity against the total main output so far.
func (s *Service) ByProducts(ctx context.Context, orgID, woID uuid.UUID) ([]ByProductLine, error) {
	lines, outs, err := s.repo.Materials(ctx, orgID, woID)
	if err != nil {
		return nil, err
	}
	mainQty := decimal.Zero
	byMaterial := make(map[uuid.UUID][]Output)
	for _, o := range outs {
		if !o.IsByProduct {
			mainQty = mainQty.Add(o.Quantity)
			continue
		}
		if o.MaterialID != nil {
			byMaterial[*o.MaterialID] = append(byMaterial[*o.MaterialID], o)
		}
	}
	result := make([]ByProductLine, 0, len(lines))
	for _, m := range lines {
		if !m.IsByProduct {
			continue
		}
		registered := byMaterial[m.ID]
		if registered == nil {
			registered = []Output{}
		}
		result = append(result, ByProductLine{
			Material:      m,
			ExpectedQty:   ExpectedQty(m, mainQty),
			RegisteredQty: m.ByProductRegisteredQty,
			Outputs:       registered,
		})
	}
	return result, nil
}

func (s *Service) invalidate(ctx context.Context, orgID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, orgID); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", slog.String("org_id", orgID.String()), slog.Any("error", err))
	}
}

// RegisterMain creates the plate of a main output and advances the order's
// produced quantity.
func (s *Service) RegisterMain(ctx context.Context, actor shared.Principal, woID uuid.UUID, input MainOutputInput) (MainResult, error) {
	if !input.Quantity.IsPositive() {
		return MainResult{}, errQuantityNotPositive
	}
	var result MainResult
	err := s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetWorkOrderForUpdate(ctx, woID)
		if err != nil {
			return err
		}
		if err := wo.RequireInProgress(); err != nil {
			return err
		}
		now := s.now().UTC()
		number, err := tx.NextLPNumber(ctx, now)
		if err != nil {
			return err
		}
		batch := input.BatchNumber
		if batch == "" {
			batch = wo.WONumber
		}
		qa := input.QAStatus
		if qa == "" {
			qa = licenseplates.QAPending
		}
		lp := licenseplates.LicensePlate{
			ID:          uuid.New(),
			LPNumber:    number,
			ProductID:   wo.ProductID,
			Quantity:    input.Quantity,
			UoM:         wo.UoM,
			Status:      licenseplates.StatusAvailable,
			QAStatus:    qa,
			BatchNumber: batch,
			ExpiryDate:  input.ExpiryDate,
			LocationID:  input.LocationID,
			WarehouseID: input.WarehouseID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertLP(ctx, lp); err != nil {
			return err
		}
		orderID := wo.ID
		if err := tx.InsertMovement(ctx, licenseplates.Movement{
			LPID:         lp.ID,
			MovementType: licenseplates.MovementOutput,
			Quantity:     lp.Quantity,
			WOID:         &orderID,
			Notes:        input.Notes,
			CreatedBy:    actor.Actor(),
		}); err != nil {
			return err
		}
		lpID := lp.ID
		out := Output{
			ID:           uuid.New(),
			WOID:         wo.ID,
			LPID:         &lpID,
			LPNumber:     lp.LPNumber,
			BatchNumber:  lp.BatchNumber,
			ProductID:    wo.ProductID,
			Quantity:     lp.Quantity,
			RegisteredBy: actor.Actor(),
			RegisteredAt: now,
			Notes:        input.Notes,
		}
		if err := tx.InsertOutput(ctx, out); err != nil {
			return err
		}
		wo.ProducedQty = wo.ProducedQty.Add(lp.Quantity)
		if err := tx.SaveWorkOrder(ctx, wo); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.Actor(),
			Action:   "wo.output",
			Entity:   "work_order",
			EntityID: wo.ID.String(),
			Meta:     map[string]any{"lp_id": lp.ID.String(), "quantity": lp.Quantity.String()},
			At:       now,
		}); err != nil {
			return err
		}
		result = MainResult{Output: out, LP: lp, WorkOrder: wo}
		return nil
	})
	if err != nil {
		return MainResult{}, err
	}
	s.metrics.Output("main")
	s.invalidate(ctx, actor.OrgID)
	return result, nil
}

// RegisterByProduct records a by-product of a main output. A positive
// quantity creates a plate that inherits the main plate's ancestry; a
// confirmed zero only writes the output row.
func (s *Service) RegisterByProduct(ctx context.Context, actor shared.Principal, woID uuid.UUID, input ByProductInput) (ByProductResult, error) {
	if input.Quantity.IsNegative() {
		return ByProductResult{}, errNegativeQuantity
	}
	var result ByProductResult
	err := s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetWorkOrderForUpdate(ctx, woID)
		if err != nil {
			return err
		}
		if err := wo.RequireInProgress(); err != nil {
			return err
		}
		material, err := tx.GetMaterialForUpdate(ctx, woID, input.MaterialID)
		if err != nil {
			return err
		}
		if !material.IsByProduct {
			return ErrNotAByProduct
		}
		if err := ValidateByProductQuantity(input.Quantity, input.ConfirmZeroQty); err != nil {
			return err
		}
		main, err := tx.MainOutput(ctx, woID, input.MainOutputID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		materialID := material.ID
		mainID := main.ID
		out := Output{
			ID:             uuid.New(),
			WOID:           wo.ID,
			MaterialID:     &materialID,
			ProductID:      material.ProductID,
			Quantity:       input.Quantity,
			IsByProduct:    true,
			ParentOutputID: &mainID,
			RegisteredBy:   actor.Actor(),
			RegisteredAt:   now,
			Notes:          input.Notes,
		}
		result.ExpectedQty = ExpectedQty(material, main.Quantity)

		if input.Quantity.IsPositive() {
			lp, err := s.byProductPlate(ctx, tx, actor, wo, material, main, input, now)
			if err != nil {
				return err
			}
			lpID := lp.ID
			out.LPID = &lpID
			out.LPNumber = lp.LPNumber
			out.BatchNumber = lp.BatchNumber
			result.LP = &lp
		}
		if err := tx.InsertOutput(ctx, out); err != nil {
			return err
		}
		material.ByProductRegisteredQty = material.ByProductRegisteredQty.Add(input.Quantity)
		if err := tx.SaveMaterial(ctx, material); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.Actor(),
			Action:   "wo.by_product",
			Entity:   "work_order",
			EntityID: wo.ID.String(),
			Meta: map[string]any{
				"material_id":  material.ID.String(),
				"quantity":     input.Quantity.String(),
				"expected_qty": result.ExpectedQty.String(),
			},
			At: now,
		}); err != nil {
			return err
		}
		result.Output = out
		result.Material = material
		return nil
	})
	if err != nil {
		return ByProductResult{}, err
	}
	s.metrics.Output("by_product")
	s.invalidate(ctx, actor.OrgID)
	return result, nil
}

func (s *Service) byProductPlate(ctx context.Context, tx TxRepository, actor shared.Principal, wo workorders.WorkOrder,
	material workorders.Material, main Output, input ByProductInput, now time.Time) (licenseplates.LicensePlate, error) {
	var mainLP licenseplates.LicensePlate
	if main.LPID != nil {
		var err error
		if mainLP, err = tx.GetLP(ctx, *main.LPID); err != nil {
			return licenseplates.LicensePlate{}, err
		}
	}
	mainBatch := mainLP.BatchNumber
	if mainBatch == "" {
		mainBatch = wo.WONumber
	}
	number, err := tx.NextLPNumber(ctx, now)
	if err != nil {
		return licenseplates.LicensePlate{}, err
	}
	location := input.LocationID
	if location == nil {
		location = mainLP.LocationID
	}
	lp := licenseplates.LicensePlate{
		ID:          uuid.New(),
		LPNumber:    number,
		ProductID:   material.ProductID,
		Quantity:    input.Quantity,
		UoM:         material.UoM,
		Status:      licenseplates.StatusAvailable,
		QAStatus:    licenseplates.QAPending,
		BatchNumber: ByProductBatch(mainBatch, material.ProductCode),
		LocationID:  location,
		WarehouseID: mainLP.WarehouseID,
		ParentLPID:  main.LPID,
		IsByProduct: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.InsertLP(ctx, lp); err != nil {
		return licenseplates.LicensePlate{}, err
	}
	orderID := wo.ID
	if err := tx.InsertMovement(ctx, licenseplates.Movement{
		LPID:         lp.ID,
		MovementType: licenseplates.MovementByProduct,
		Quantity:     lp.Quantity,
		WOID:         &orderID,
		Notes:        input.Notes,
		CreatedBy:    actor.Actor(),
	}); err != nil {
		return licenseplates.LicensePlate{}, err
	}
	if main.LPID == nil {
		return lp, nil
	}

	childID := lp.ID
	if err := tx.InsertEdge(ctx, genealogy.Edge{
		ParentLPID:   *main.LPID,
		ChildLPID:    &childID,
		RelationType: genealogy.RelationByProduct,
		WOID:         &orderID,
		Quantity:     lp.Quantity,
		CreatedAt:    now,
	}); err != nil {
		return licenseplates.LicensePlate{}, err
	}
	ancestry, err := tx.ParentEdges(ctx, *main.LPID)
	if err != nil {
		return licenseplates.LicensePlate{}, err
	}
	for _, e := range ancestry {
		if err := tx.InsertEdge(ctx, genealogy.Edge{
			ParentLPID:   e.ParentLPID,
			ChildLPID:    &childID,
			RelationType: e.RelationType,
			WOID:         e.WOID,
			Quantity:     e.Quantity,
			CreatedAt:    now,
		}); err != nil {
			return licenseplates.LicensePlate{}, err
		}
	}
	return lp, nil
}
