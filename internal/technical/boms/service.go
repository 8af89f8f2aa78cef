package boms

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, orgID uuid.UUID, readOnly bool, fn func(context.Context, TxRepository) error) error
}

// Service coordinates BOM alternative operations.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// ListAlternatives returns the alternatives of one BOM item in preference order.
func (s *Service) ListAlternatives(ctx context.Context, orgID, bomID, itemID uuid.UUID) ([]Alternative, error) {
	var alts []Alternative
	err := s.repo.WithTx(ctx, orgID, true, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetItem(ctx, bomID, itemID); err != nil {
			return err
		}
		var err error
		alts, err = tx.ListAlternatives(ctx, itemID)
		return err
	})
	return alts, err
}

// CreateAlternative validates and stores a new alternative. A UoM class
// difference is reported as a warning, not an error.
func (s *Service) CreateAlternative(ctx context.Context, actor shared.Principal, bomID, itemID uuid.UUID, input CreateAlternativeInput) (CreateResult, error) {
	var result CreateResult
	err := s.repo.WithTx(ctx, actor.OrgID, false, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItem(ctx, bomID, itemID)
		if err != nil {
			return err
		}
		existing, err := tx.ListAlternatives(ctx, itemID)
		if err != nil {
			return err
		}
		product, err := tx.GetProduct(ctx, input.AlternativeProductID)
		if err != nil {
			return err
		}
		check := ValidateAlternativeRules(item, input.AlternativeProductID, existing, item.BOMProductID, &product)
		if err := check.Err(); err != nil {
			return err
		}

		order := NextPreferenceOrder(existing)
		if input.PreferenceOrder != nil {
			order = *input.PreferenceOrder
			for _, alt := range existing {
				if alt.PreferenceOrder == order {
					return ErrDuplicatePreference
				}
			}
		}
		uom := input.UoM
		if uom == "" {
			uom = product.UoM
		}
		alt := Alternative{
			ID:                   uuid.New(),
			BOMItemID:            itemID,
			AlternativeProductID: product.ID,
			ProductCode:          product.Code,
			ProductName:          product.Name,
			Quantity:             input.Quantity,
			UoM:                  uom,
			PreferenceOrder:      order,
			Notes:                input.Notes,
			CreatedAt:            s.now().UTC(),
		}
		if err := tx.InsertAlternative(ctx, alt); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.Actor(),
			Action:   "bom.alternative.create",
			Entity:   "bom_item",
			EntityID: itemID.String(),
			Meta:     map[string]any{"alternative_product_id": product.ID, "preference_order": order, "warning": check.Warning},
		}); err != nil {
			return err
		}
		result = CreateResult{Alternative: alt, Warning: check.Warning}
		return nil
	})
	return result, err
}

// DeleteAlternative removes one alternative from an item.
func (s *Service) DeleteAlternative(ctx context.Context, actor shared.Principal, bomID, itemID, altID uuid.UUID) error {
	return s.repo.WithTx(ctx, actor.OrgID, false, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetItem(ctx, bomID, itemID); err != nil {
			return err
		}
		if err := tx.DeleteAlternative(ctx, itemID, altID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.Actor(),
			Action:   "bom.alternative.delete",
			Entity:   "bom_item",
			EntityID: itemID.String(),
			Meta:     map[string]any{"alternative_id": altID},
		})
	})
}
