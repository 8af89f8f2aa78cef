package outputs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/genealogy"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

type memoryState struct {
	orders    map[uuid.UUID]workorders.WorkOrder
	materials map[uuid.UUID]workorders.Material
	plates    map[uuid.UUID]licenseplates.LicensePlate
	outputs   []Output
	movements []licenseplates.Movement
	edges     []genealogy.Edge
	audits    []shared.AuditLog
	seq       int64
}

func (s memoryState) clone() memoryState {
	cp := s
	cp.orders = make(map[uuid.UUID]workorders.WorkOrder, len(s.orders))
	for k, v := range s.orders {
		cp.orders[k] = v
	}
	cp.materials = make(map[uuid.UUID]workorders.Material, len(s.materials))
	for k, v := range s.materials {
		cp.materials[k] = v
	}
	cp.plates = make(map[uuid.UUID]licenseplates.LicensePlate, len(s.plates))
	for k, v := range s.plates {
		cp.plates[k] = v
	}
	cp.outputs = append([]Output(nil), s.outputs...)
	cp.movements = append([]licenseplates.Movement(nil), s.movements...)
	cp.edges = append([]genealogy.Edge(nil), s.edges...)
	cp.audits = append([]shared.AuditLog(nil), s.audits...)
	return cp
}

type memoryRepo struct {
	state memoryState
}

type memoryTx struct {
	state *memoryState
	orgID uuid.UUID
}

func (r *memoryRepo) WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &working, orgID: orgID}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) Outputs(_ context.Context, _ uuid.UUID, woID uuid.UUID) ([]Output, error) {
	var out []Output
	for _, o := range r.state.outputs {
		if o.WOID == woID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryRepo) Materials(ctx context.Context, orgID, woID uuid.UUID) ([]workorders.Material, []Output, error) {
	var lines []workorders.Material
	for _, m := range r.state.materials {
		if m.WOID == woID {
			lines = append(lines, m)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductCode < lines[j].ProductCode })
	outs, _ := r.Outputs(ctx, orgID, woID)
	return lines, outs, nil
}

func (tx *memoryTx) GetWorkOrderForUpdate(_ context.Context, id uuid.UUID) (workorders.WorkOrder, error) {
	wo, ok := tx.state.orders[id]
	if !ok || wo.OrgID != tx.orgID {
		return workorders.WorkOrder{}, workorders.ErrWONotFound
	}
	return wo, nil
}

func (tx *memoryTx) SaveWorkOrder(_ context.Context, wo workorders.WorkOrder) error {
	tx.state.orders[wo.ID] = wo
	return nil
}

func (tx *memoryTx) GetMaterialForUpdate(_ context.Context, woID, materialID uuid.UUID) (workorders.Material, error) {
	m, ok := tx.state.materials[materialID]
	if !ok || m.WOID != woID {
		return workorders.Material{}, workorders.ErrMaterialNotFound
	}
	return m, nil
}

func (tx *memoryTx) SaveMaterial(_ context.Context, m workorders.Material) error {
	tx.state.materials[m.ID] = m
	return nil
}

func (tx *memoryTx) MainOutput(_ context.Context, woID uuid.UUID, outputID *uuid.UUID) (Output, error) {
	for i := len(tx.state.outputs) - 1; i >= 0; i-- {
		o := tx.state.outputs[i]
		if o.WOID != woID || o.IsByProduct {
			continue
		}
		if outputID == nil || o.ID == *outputID {
			return o, nil
		}
	}
	if outputID != nil {
		return Output{}, ErrOutputNotFound
	}
	return Output{}, ErrMainOutputRequired
}

func (tx *memoryTx) GetLP(_ context.Context, id uuid.UUID) (licenseplates.LicensePlate, error) {
	lp, ok := tx.state.plates[id]
	if !ok {
		return licenseplates.LicensePlate{}, licenseplates.ErrLPNotFound
	}
	return lp, nil
}

func (tx *memoryTx) NextLPNumber(_ context.Context, now time.Time) (string, error) {
	tx.state.seq++
	return licenseplates.FormatNumber(now, tx.state.seq), nil
}

func (tx *memoryTx) InsertLP(_ context.Context, lp licenseplates.LicensePlate) error {
	lp.OrgID = tx.orgID
	tx.state.plates[lp.ID] = lp
	return nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, m licenseplates.Movement) error {
	tx.state.movements = append(tx.state.movements, m)
	return nil
}

func (tx *memoryTx) ParentEdges(_ context.Context, lpID uuid.UUID) ([]genealogy.Edge, error) {
	var out []genealogy.Edge
	for _, e := range tx.state.edges {
		if e.ChildLPID != nil && *e.ChildLPID == lpID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertEdge(_ context.Context, e genealogy.Edge) error {
	tx.state.edges = append(tx.state.edges, e)
	return nil
}

func (tx *memoryTx) InsertOutput(_ context.Context, o Output) error {
	tx.state.outputs = append(tx.state.outputs, o)
	return nil
}

func (tx *memoryTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	tx.state.audits = append(tx.state.audits, log)
	return nil
}

type fixture struct {
	repo      *memoryRepo
	svc       *Service
	actor     shared.Principal
	wo        workorders.WorkOrder
	byProduct workorders.Material
	input     workorders.Material
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	actor := shared.Principal{UserID: uuid.New(), OrgID: uuid.New()}
	wo := workorders.WorkOrder{
		ID: uuid.New(), OrgID: actor.OrgID, WONumber: "WO-0042", ProductID: uuid.New(), ProductCode: "FG-1",
		PlannedQty: decimal.NewFromInt(200), UoM: "kg", Status: workorders.StatusInProgress,
	}
	byProduct := workorders.Material{
		ID: uuid.New(), WOID: wo.ID, ProductID: uuid.New(), ProductCode: "BRAN", UoM: "kg",
		IsByProduct: true, YieldPercent: decimal.NewFromFloat(12.5),
	}
	input := workorders.Material{
		ID: uuid.New(), WOID: wo.ID, ProductID: uuid.New(), ProductCode: "WHEAT", UoM: "kg",
		RequiredQty: decimal.NewFromInt(220),
	}
	repo := &memoryRepo{state: memoryState{
		orders:    map[uuid.UUID]workorders.WorkOrder{wo.ID: wo},
		materials: map[uuid.UUID]workorders.Material{byProduct.ID: byProduct, input.ID: input},
		plates:    map[uuid.UUID]licenseplates.LicensePlate{},
	}}
	svc := NewService(repo, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 6, 2, 14, 0, 0, 0, time.UTC) }
	return &fixture{repo: repo, svc: svc, actor: actor, wo: wo, byProduct: byProduct, input: input}
}

func (f *fixture) registerMain(t *testing.T, qty int64) MainResult {
	t.Helper()
	res, err := f.svc.RegisterMain(context.Background(), f.actor, f.wo.ID, MainOutputInput{Quantity: decimal.NewFromInt(qty)})
	require.NoError(t, err)
	return res
}

func TestRegisterMainCreatesPlate(t *testing.T) {
	f := newFixture(t)
	res := f.registerMain(t, 80)

	require.Equal(t, "WO-0042", res.LP.BatchNumber)
	require.Equal(t, "LP-20260602-000001", res.LP.LPNumber)
	require.Equal(t, licenseplates.QAPending, res.LP.QAStatus)
	require.Equal(t, f.wo.ProductID, res.LP.ProductID)
	require.True(t, f.repo.state.orders[f.wo.ID].ProducedQty.Equal(decimal.NewFromInt(80)))
	require.Len(t, f.repo.state.outputs, 1)
	require.Len(t, f.repo.state.movements, 1)
	require.Equal(t, licenseplates.MovementOutput, f.repo.state.movements[0].MovementType)
	require.Equal(t, "40", res.WorkOrder.ProgressPercent().String())
}

func TestRegisterMainRejects(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RegisterMain(context.Background(), f.actor, f.wo.ID, MainOutputInput{})
	require.ErrorIs(t, err, licenseplates.ErrInvalidQuantity)

	wo := f.repo.state.orders[f.wo.ID]
	wo.Status = workorders.StatusCompleted
	f.repo.state.orders[wo.ID] = wo
	_, err = f.svc.RegisterMain(context.Background(), f.actor, f.wo.ID, MainOutputInput{Quantity: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, workorders.ErrWONotInProgress)
	require.Empty(t, f.repo.state.plates)
}

func TestRegisterByProductInheritsGenealogy(t *testing.T) {
	f := newFixture(t)
	main := f.registerMain(t, 80)
	// An ancestor edge on the main plate is copied to the by-product.
	ancestor := uuid.New()
	mainLP := main.LP.ID
	f.repo.state.edges = append(f.repo.state.edges, genealogy.Edge{
		ParentLPID: ancestor, ChildLPID: &mainLP, RelationType: genealogy.RelationSplit, Quantity: decimal.NewFromInt(80),
	})

	res, err := f.svc.RegisterByProduct(context.Background(), f.actor, f.wo.ID, ByProductInput{
		MaterialID: f.byProduct.ID, Quantity: decimal.NewFromInt(9),
	})
	require.NoError(t, err)
	require.NotNil(t, res.LP)
	require.Equal(t, "WO-0042-BP-BRAN", res.LP.BatchNumber)
	require.True(t, res.LP.IsByProduct)
	require.Equal(t, mainLP, *res.LP.ParentLPID)
	require.True(t, res.ExpectedQty.Equal(decimal.NewFromInt(10)))
	require.Equal(t, main.Output.ID, *res.Output.ParentOutputID)
	require.True(t, f.repo.state.materials[f.byProduct.ID].ByProductRegisteredQty.Equal(decimal.NewFromInt(9)))

	var parents []uuid.UUID
	for _, e := range f.repo.state.edges {
		if e.ChildLPID != nil && *e.ChildLPID == res.LP.ID {
			parents = append(parents, e.ParentLPID)
		}
	}
	require.ElementsMatch(t, []uuid.UUID{mainLP, ancestor}, parents)
}

func TestRegisterByProductZeroQuantity(t *testing.T) {
	f := newFixture(t)
	f.registerMain(t, 80)
	plates := len(f.repo.state.plates)

	_, err := f.svc.RegisterByProduct(context.Background(), f.actor, f.wo.ID, ByProductInput{MaterialID: f.byProduct.ID})
	require.ErrorIs(t, err, ErrZeroQtyConfirmation)
	require.Len(t, f.repo.state.plates, plates)
	require.Len(t, f.repo.state.outputs, 1)

	res, err := f.svc.RegisterByProduct(context.Background(), f.actor, f.wo.ID, ByProductInput{MaterialID: f.byProduct.ID, ConfirmZeroQty: true})
	require.NoError(t, err)
	require.Nil(t, res.LP)
	require.Nil(t, res.Output.LPID)
	require.Len(t, f.repo.state.plates, plates)
	require.Len(t, f.repo.state.outputs, 2)
}

func TestRegisterByProductRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterByProduct(ctx, f.actor, f.wo.ID, ByProductInput{MaterialID: f.byProduct.ID, Quantity: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrMainOutputRequired)

	f.registerMain(t, 10)
	_, err = f.svc.RegisterByProduct(ctx, f.actor, f.wo.ID, ByProductInput{MaterialID: f.byProduct.ID, Quantity: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, licenseplates.ErrInvalidQuantity)

	_, err = f.svc.RegisterByProduct(ctx, f.actor, f.wo.ID, ByProductInput{MaterialID: f.input.ID, Quantity: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrNotAByProduct)

	wo := f.repo.state.orders[f.wo.ID]
	wo.Status = workorders.StatusPaused
	f.repo.state.orders[wo.ID] = wo
	_, err = f.svc.RegisterByProduct(ctx, f.actor, f.wo.ID, ByProductInput{MaterialID: f.byProduct.ID, Quantity: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, workorders.ErrWONotInProgress)

	_, err = f.svc.RegisterByProduct(ctx, f.actor, f.wo.ID, ByProductInput{MaterialID: f.byProduct.ID, Quantity: decimal.NewFromInt(-5)})
	require.ErrorIs(t, err, licenseplates.ErrInvalidQuantity)
	var se *shared.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shared.KindValidation, se.Kind)
}

func TestByProductsListsExpectedQuantity(t *testing.T) {
	f := newFixture(t)
	f.registerMain(t, 40)
	f.registerMain(t, 40)
	_, err := f.svc.RegisterByProduct(context.Background(), f.actor, f.wo.ID, ByProductInput{MaterialID: f.byProduct.ID, Quantity: decimal.NewFromInt(3)})
	require.NoError(t, err)

	lines, err := f.svc.ByProducts(context.Background(), f.actor.OrgID, f.wo.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.True(t, lines[0].ExpectedQty.Equal(decimal.NewFromInt(10)))
	require.True(t, lines[0].RegisteredQty.Equal(decimal.NewFromInt(3)))
	require.Len(t, lines[0].Outputs, 1)
}

func TestValidateByProductQuantity(t *testing.T) {
	require.NoError(t, ValidateByProductQuantity(decimal.NewFromInt(2), false))
	require.NoError(t, ValidateByProductQuantity(decimal.Zero, true))
	require.ErrorIs(t, ValidateByProductQuantity(decimal.Zero, false), ErrZeroQtyConfirmation)
	require.ErrorIs(t, ValidateByProductQuantity(decimal.NewFromInt(-2), true), licenseplates.ErrInvalidQuantity)
}

type allowAll struct{}

func (allowAll) EffectivePermissions(context.Context, shared.Principal) ([]string, error) {
	return shared.AllScopes(), nil
}

func TestHandlerZeroQuantityConflict(t *testing.T) {
	f := newFixture(t)
	f.registerMain(t, 80)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, nil, rbac.Middleware{Service: allowAll{}})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), f.actor)))
		})
	})
	h.MountRoutes(r)

	body := `{"material_id":"` + f.byProduct.ID.String() + `","quantity":0}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/work-orders/"+f.wo.ID.String()+"/by-products", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "ZERO_QTY_CONFIRMATION_REQUIRED")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/work-orders/"+f.wo.ID.String()+"/by-products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"expected_qty":"10"`)
}
