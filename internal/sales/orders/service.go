package orders

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
)

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, orgID, id uuid.UUID) (SalesOrder, error)
	List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]SalesOrder, int, error)
}

// Service creates and reads sales orders.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// PriceLines validates the requested lines and computes every line total.
// The index of the first offending line is reported in the error details.
func PriceLines(reqs []LineRequest) ([]Line, error) {
	lines := make([]Line, 0, len(reqs))
	for i, req := range reqs {
		field := map[string]string{"line": fmt.Sprint(i + 1)}
		total, err := pricing.PriceLine(req.Quantity, req.UnitPrice, req.Discount)
		if err != nil {
			return nil, withLine(err, field)
		}
		lines = append(lines, Line{
			ID:        uuid.New(),
			LineNo:    i + 1,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			UoM:       req.UoM,
			UnitPrice: req.UnitPrice,
			Discount:  req.Discount,
			LineTotal: total,
		})
	}
	return lines, nil
}

func withLine(err error, details map[string]string) error {
	var se *shared.Error
	if errors.As(err, &se) {
		return se.WithDetails(details)
	}
	return err
}

// Create prices and stores a draft order.
func (s *Service) Create(ctx context.Context, principal shared.Principal, req CreateRequest) (SalesOrder, error) {
	lines, err := PriceLines(req.Lines)
	if err != nil {
		return SalesOrder{}, err
	}
	totals := make([]pricing.Line, len(lines))
	for i := range lines {
		totals[i] = pricing.Line{LineTotal: &lines[i].LineTotal}
	}
	now := s.now().UTC()
	so := SalesOrder{
		ID:         uuid.New(),
		OrgID:      principal.OrgID,
		CustomerID: req.CustomerID,
		Status:     StatusDraft,
		Currency:   strings.ToUpper(req.Currency),
		OrderDate:  now.Truncate(24 * time.Hour),
		ShipDate:   req.ShipDate,
		Total:      pricing.CalculateOrderTotal(totals),
		Notes:      req.Notes,
		CreatedBy:  principal.Actor(),
		CreatedAt:  now,
		Lines:      lines,
	}
	if req.OrderDate != nil {
		so.OrderDate = req.OrderDate.UTC()
	}
	err = s.repo.WithTx(ctx, principal.OrgID, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.CustomerExists(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCustomerNotFound
		}
		if so.SONumber, err = tx.NextNumber(ctx, now); err != nil {
			return err
		}
		if err := tx.Insert(ctx, so); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  so.CreatedBy,
			Action:   "so.create",
			Entity:   "sales_order",
			EntityID: so.ID.String(),
			Meta:     map[string]any{"so_number": so.SONumber, "total": so.Total.String(), "lines": len(so.Lines)},
			At:       now,
		})
	})
	if err != nil {
		return SalesOrder{}, err
	}
	s.logger.Info("sales order created", slog.String("so_number", so.SONumber), slog.String("total", so.Total.String()))
	return so, nil
}

// Get returns one order with lines.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (SalesOrder, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns a page of order headers.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]SalesOrder, int, error) {
	return s.repo.List(ctx, orgID, filter)
}
