package procurement

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
)

type memoryRepo struct {
	suppliers map[uuid.UUID]Supplier
	orders    map[uuid.UUID]PurchaseOrder
	history   []statuses.HistoryRecord
	audits    []shared.AuditLog
	seq       int
}

type memoryTx struct {
	repo  *memoryRepo
	orgID uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{suppliers: map[uuid.UUID]Supplier{}, orders: map[uuid.UUID]PurchaseOrder{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r, orgID: orgID})
}

func (r *memoryRepo) GetPO(_ context.Context, orgID, id uuid.UUID) (PurchaseOrder, error) {
	po, ok := r.orders[id]
	if !ok || po.OrgID != orgID {
		return PurchaseOrder{}, ErrPONotFound
	}
	return po, nil
}

func (r *memoryRepo) Suppliers(_ context.Context, orgID uuid.UUID, activeOnly bool) ([]Supplier, error) {
	var out []Supplier
	for _, s := range r.suppliers {
		if s.OrgID == orgID && (!activeOnly || s.IsActive) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetSupplier(_ context.Context, id uuid.UUID) (Supplier, error) {
	s, ok := tx.repo.suppliers[id]
	if !ok || s.OrgID != tx.orgID {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, nil
}

func (tx *memoryTx) InsertSupplier(_ context.Context, s Supplier) error {
	for _, existing := range tx.repo.suppliers {
		if existing.OrgID == tx.orgID && existing.Code == s.Code {
			return ErrDuplicateSupplier
		}
	}
	s.OrgID = tx.orgID
	tx.repo.suppliers[s.ID] = s
	return nil
}

func (tx *memoryTx) SupplierInUse(_ context.Context, id uuid.UUID) (bool, error) {
	for _, po := range tx.repo.orders {
		if po.SupplierID == id {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) DeleteSupplier(_ context.Context, id uuid.UUID) error {
	delete(tx.repo.suppliers, id)
	return nil
}

func (tx *memoryTx) NextPONumber(_ context.Context, now time.Time) (string, error) {
	tx.repo.seq++
	return fmt.Sprintf("PO-%s-%04d", now.Format("20060102"), tx.repo.seq), nil
}

func (tx *memoryTx) InsertPO(_ context.Context, po PurchaseOrder) error {
	po.OrgID = tx.orgID
	tx.repo.orders[po.ID] = po
	return nil
}

func (tx *memoryTx) GetPOForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return tx.repo.GetPO(ctx, tx.orgID, id)
}

func (tx *memoryTx) LineCount(_ context.Context, id uuid.UUID) (int, error) {
	return len(tx.repo.orders[id].Lines), nil
}

func (tx *memoryTx) SavePOStatus(_ context.Context, po PurchaseOrder) error {
	stored := tx.repo.orders[po.ID]
	stored.Status = po.Status
	stored.UpdatedAt = po.UpdatedAt
	tx.repo.orders[po.ID] = stored
	return nil
}

func (tx *memoryTx) InsertHistory(_ context.Context, rec statuses.HistoryRecord) error {
	tx.repo.history = append([]statuses.HistoryRecord{rec}, tx.repo.history...)
	return nil
}

func (tx *memoryTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	tx.repo.audits = append(tx.repo.audits, log)
	return nil
}

type defaultStatuses struct {
	engine *statuses.Engine
	repo   *memoryRepo
}

func (d defaultStatuses) Config(_ context.Context, orgID uuid.UUID, entity statuses.EntityType) (*statuses.Config, error) {
	return statuses.DefaultConfig(orgID, entity)
}

func (d defaultStatuses) Validate(ctx context.Context, cfg *statuses.Config, req statuses.Request) (statuses.Transition, error) {
	return d.engine.Validate(ctx, cfg, req)
}

func (d defaultStatuses) History(_ context.Context, _ uuid.UUID, _ statuses.EntityType, id uuid.UUID, _ shared.Page) ([]statuses.HistoryRecord, int, error) {
	var out []statuses.HistoryRecord
	for _, h := range d.repo.history {
		if h.EntityID == id {
			out = append(out, h)
		}
	}
	return out, len(out), nil
}

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	actor    shared.Principal
	supplier Supplier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, defaultStatuses{engine: statuses.NewEngine(nil), repo: repo}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC) }
	actor := shared.Principal{UserID: uuid.New(), OrgID: uuid.New()}
	sup, err := svc.CreateSupplier(context.Background(), actor, SupplierInput{Code: " acme ", Name: "Acme Mills"})
	require.NoError(t, err)
	return fixture{svc: svc, repo: repo, actor: actor, supplier: sup}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreatePOPricesLines(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "ACME", f.supplier.Code)

	po, err := f.svc.CreatePO(context.Background(), f.actor, CreatePOInput{
		SupplierID: f.supplier.ID,
		Currency:   "usd",
		Lines: []POLineInput{
			{ProductID: uuid.New(), Quantity: dec("100"), UoM: "kg", UnitPrice: dec("1.25")},
			{ProductID: uuid.New(), Quantity: dec("3"), UoM: "pcs", UnitPrice: dec("20"),
				Discount: &pricing.Discount{Type: pricing.DiscountPercent, Value: dec("25")}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "PO-20260601-0001", po.PONumber)
	require.Equal(t, POStatusDraft, po.Status)
	require.Equal(t, "USD", po.Currency)
	require.Equal(t, "Acme Mills", po.SupplierName)
	require.Equal(t, "170.00", po.Total.StringFixed(2))

	_, err = f.svc.CreatePO(context.Background(), f.actor, CreatePOInput{
		SupplierID: f.supplier.ID, Currency: "USD",
		Lines: []POLineInput{{ProductID: uuid.New(), Quantity: dec("1"), UoM: "kg", UnitPrice: dec("0")}},
	})
	require.ErrorIs(t, err, pricing.ErrInvalidUnitPrice)

	_, err = f.svc.CreatePO(context.Background(), f.actor, CreatePOInput{SupplierID: uuid.New(), Currency: "USD"})
	require.ErrorIs(t, err, ErrSupplierNotFound)
}

func TestChangeStatusRunsEngine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	empty, err := f.svc.CreatePO(ctx, f.actor, CreatePOInput{SupplierID: f.supplier.ID, Currency: "USD"})
	require.NoError(t, err)

	_, err = f.svc.ChangeStatus(ctx, f.actor, empty.ID, StatusInput{Status: POStatusSubmitted}, false)
	require.ErrorIs(t, err, statuses.ErrGuardFailed)
	require.Contains(t, err.Error(), "cannot submit PO with zero line items")
	require.Equal(t, POStatusDraft, f.repo.orders[empty.ID].Status)

	_, err = f.svc.ChangeStatus(ctx, f.actor, empty.ID, StatusInput{Status: POStatusApproved}, true)
	require.ErrorIs(t, err, statuses.ErrTransitionNotAllowed)

	_, err = f.svc.ChangeStatus(ctx, f.actor, empty.ID, StatusInput{Status: POStatusCancelled}, false)
	require.ErrorIs(t, err, statuses.ErrReasonRequired)

	po, err := f.svc.CreatePO(ctx, f.actor, CreatePOInput{
		SupplierID: f.supplier.ID, Currency: "USD",
		Lines: []POLineInput{{ProductID: uuid.New(), Quantity: dec("1"), UoM: "kg", UnitPrice: dec("9")}},
	})
	require.NoError(t, err)
	updated, err := f.svc.ChangeStatus(ctx, f.actor, po.ID, StatusInput{Status: POStatusSubmitted}, false)
	require.NoError(t, err)
	require.Equal(t, POStatusSubmitted, updated.Status)

	_, err = f.svc.ChangeStatus(ctx, f.actor, po.ID, StatusInput{Status: POStatusApproved}, false)
	require.ErrorIs(t, err, statuses.ErrApprovalRequired)
	_, err = f.svc.ChangeStatus(ctx, f.actor, po.ID, StatusInput{Status: POStatusApproved}, true)
	require.NoError(t, err)

	history, total, err := f.svc.History(ctx, f.actor.OrgID, po.ID, shared.NewPage(1, 20))
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, POStatusApproved, history[0].ToStatus)
	require.Equal(t, POStatusDraft, history[1].FromStatus)
	require.Equal(t, f.actor.Actor(), history[0].ChangedBy)
}

func TestDeleteSupplier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreatePO(ctx, f.actor, CreatePOInput{SupplierID: f.supplier.ID, Currency: "USD"})
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.DeleteSupplier(ctx, f.actor, f.supplier.ID), ErrSupplierInUse)
	require.Contains(t, f.repo.suppliers, f.supplier.ID)

	unused, err := f.svc.CreateSupplier(ctx, f.actor, SupplierInput{Code: "NEW", Name: "Unused"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteSupplier(ctx, f.actor, unused.ID))
	require.NotContains(t, f.repo.suppliers, unused.ID)

	other := shared.Principal{UserID: uuid.New(), OrgID: uuid.New()}
	require.ErrorIs(t, f.svc.DeleteSupplier(ctx, other, f.supplier.ID), ErrSupplierNotFound)

	_, err = f.svc.CreateSupplier(ctx, f.actor, SupplierInput{Code: "acme", Name: "Dup"})
	require.ErrorIs(t, err, ErrDuplicateSupplier)
}

type grants []string

func (g grants) EffectivePermissions(context.Context, shared.Principal) ([]string, error) {
	return g, nil
}

func TestHandlerRoutes(t *testing.T) {
	f := newFixture(t)
	perms := grants{shared.PermPurchaseOrderView, shared.PermPurchaseOrderEdit, shared.PermPurchaseStatus, shared.PermSupplierEdit}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, nil, rbac.Middleware{Service: perms})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), f.actor)))
		})
	})
	h.MountRoutes(r)

	body := fmt.Sprintf(`{"supplier_id":%q,"currency":"EUR","lines":[{"product_id":%q,"quantity":"4","uom":"kg","unit_price":"2.5"}]}`,
		f.supplier.ID, uuid.New())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/planning/purchase-orders", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"total":"10"`)

	var poID uuid.UUID
	for id := range f.repo.orders {
		poID = id
	}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/planning/purchase-orders/"+poID.String()+"/status",
		strings.NewReader(`{"status":"submitted"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/planning/purchase-orders/"+poID.String()+"/status",
		strings.NewReader(`{"status":"approved"}`)))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "APPROVAL_REQUIRED")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/planning/purchase-orders/"+poID.String()+"/status-history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"to_status":"submitted"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/planning/suppliers/"+f.supplier.ID.String(), nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "SUPPLIER_IN_USE")
}
