package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, orgID, id uuid.UUID) (PurchaseOrder, error)
	Suppliers(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]Supplier, error)
}

// StatusPort is the slice of the status engine used by Service.
type StatusPort interface {
	Config(ctx context.Context, orgID uuid.UUID, entity statuses.EntityType) (*statuses.Config, error)
	Validate(ctx context.Context, cfg *statuses.Config, req statuses.Request) (statuses.Transition, error)
	History(ctx context.Context, orgID uuid.UUID, entity statuses.EntityType, entityID uuid.UUID, page shared.Page) ([]statuses.HistoryRecord, int, error)
}

// Service orchestrates supplier and purchase order flows.
type Service struct {
	repo     RepositoryPort
	statuses StatusPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, status StatusPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, statuses: status, logger: logger, now: time.Now}
}

// Suppliers lists suppliers.
func (s *Service) Suppliers(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]Supplier, error) {
	return s.repo.Suppliers(ctx, orgID, activeOnly)
}

// CreateSupplier registers an active supplier.
func (s *Service) CreateSupplier(ctx context.Context, actor shared.Principal, input SupplierInput) (Supplier, error) {
	sup := Supplier{
		ID:        uuid.New(),
		OrgID:     actor.OrgID,
		Code:      strings.ToUpper(strings.TrimSpace(input.Code)),
		Name:      strings.TrimSpace(input.Name),
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	}
	err := s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertSupplier(ctx, sup); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.Actor(),
			Action:   "supplier.create",
			Entity:   "supplier",
			EntityID: sup.ID.String(),
			Meta:     map[string]any{"code": sup.Code},
			At:       sup.CreatedAt,
		})
	})
	return sup, err
}

// DeleteSupplier hard deletes a supplier no purchase order references.
func (s *Service) DeleteSupplier(ctx context.Context, actor shared.Principal, id uuid.UUID) error {
	return s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
		sup, err := tx.GetSupplier(ctx, id)
		if err != nil {
			return err
		}
		used, err := tx.SupplierInUse(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return ErrSupplierInUse.WithMessage("supplier %s is referenced by purchase orders; deactivate it instead", sup.Code)
		}
		if err := tx.DeleteSupplier(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.Actor(),
			Action:   "supplier.delete",
			Entity:   "supplier",
			EntityID: id.String(),
			Meta:     map[string]any{"code": sup.Code},
			At:       s.now().UTC(),
		})
	})
}

func priceLines(inputs []POLineInput) ([]POLine, error) {
	lines := make([]POLine, 0, len(inputs))
	for i, in := range inputs {
		total, err := pricing.PriceLine(in.Quantity, in.UnitPrice, in.Discount)
		if err != nil {
			var se *shared.Error
			if errors.As(err, &se) {
				return nil, se.WithDetails(map[string]string{"line": fmt.Sprint(i + 1)})
			}
			return nil, err
		}
		lines = append(lines, POLine{
			ID:        uuid.New(),
			LineNo:    i + 1,
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UoM:       in.UoM,
			UnitPrice: in.UnitPrice,
			Discount:  in.Discount,
			LineTotal: total,
		})
	}
	return lines, nil
}

// CreatePO stores a draft purchase order with priced lines.
func (s *Service) CreatePO(ctx context.Context, actor shared.Principal, input CreatePOInput) (PurchaseOrder, error) {
	lines, err := priceLines(input.Lines)
	if err != nil {
		return PurchaseOrder{}, err
	}
	totals := make([]pricing.Line, len(lines))
	for i := range lines {
		totals[i] = pricing.Line{LineTotal: &lines[i].LineTotal}
	}
	now := s.now().UTC()
	po := PurchaseOrder{
		ID:           uuid.New(),
		OrgID:        actor.OrgID,
		SupplierID:   input.SupplierID,
		Status:       POStatusDraft,
		Currency:     strings.ToUpper(input.Currency),
		ExpectedDate: input.ExpectedDate,
		Total:        pricing.CalculateOrderTotal(totals),
		Notes:        input.Notes,
		CreatedBy:    actor.Actor(),
		CreatedAt:    now,
		UpdatedAt:    now,
		Lines:        lines,
	}
	err = s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
		sup, err := tx.GetSupplier(ctx, input.SupplierID)
		if err != nil {
			return err
		}
		if !sup.IsActive {
			return ErrSupplierInactive.WithMessage("supplier %s is inactive", sup.Code)
		}
		po.SupplierName = sup.Name
		if po.PONumber, err = tx.NextPONumber(ctx, now); err != nil {
			return err
		}
		if err := tx.InsertPO(ctx, po); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.Actor(),
			Action:   "po.create",
			Entity:   "purchase_order",
			EntityID: po.ID.String(),
			Meta:     map[string]any{"po_number": po.PONumber, "total": po.Total.String(), "lines": len(po.Lines)},
			At:       now,
		})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.logger.Info("purchase order created", slog.String("po_number", po.PONumber), slog.Int("lines", len(po.Lines)))
	return po, nil
}

// GetPO returns a purchase order with lines.
func (s *Service) GetPO(ctx context.Context, orgID, id uuid.UUID) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, orgID, id)
}

// History returns the status history of a purchase order, newest first.
func (s *Service) History(ctx context.Context, orgID, id uuid.UUID, page shared.Page) ([]statuses.HistoryRecord, int, error) {
	if _, err := s.repo.GetPO(ctx, orgID, id); err != nil {
		return nil, 0, err
	}
	return s.statuses.History(ctx, orgID, statuses.EntityPurchaseOrder, id, page)
}

// ChangeStatus validates a transition against the organisation's purchase
// order configuration and applies it with a history entry.
func (s *Service) ChangeStatus(ctx context.Context, actor shared.Principal, id uuid.UUID, input StatusInput, approved bool) (PurchaseOrder, error) {
	cfg, err := s.statuses.Config(ctx, actor.OrgID, statuses.EntityPurchaseOrder)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var updated PurchaseOrder
	err = s.repo.WithTx(ctx, actor.OrgID, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		lines, err := tx.LineCount(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.statuses.Validate(ctx, cfg, statuses.Request{
			EntityID: po.ID,
			From:     po.Status,
			To:       input.Status,
			Reason:   input.Reason,
			Approved: approved,
			Facts:    map[string]int{statuses.FactLineCount: lines},
		}); err != nil {
			return err
		}
		now := s.now().UTC()
		from := po.Status
		po.Status = input.Status
		po.UpdatedAt = now
		if err := tx.SavePOStatus(ctx, po); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, statuses.HistoryRecord{
			EntityType: statuses.EntityPurchaseOrder,
			EntityID:   po.ID,
			FromStatus: from,
			ToStatus:   po.Status,
			ChangedBy:  actor.Actor(),
			ChangedAt:  now,
			Notes:      input.Reason,
		}); err != nil {
			return err
		}
		updated = po
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.Actor(),
			Action:   "po.status",
			Entity:   "purchase_order",
			EntityID: po.ID.String(),
			Meta:     map[string]any{"from": from, "to": po.Status},
			At:       now,
		})
	})
	return updated, err
}
