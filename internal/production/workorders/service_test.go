package workorders

import (
	"context"
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
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
)

type memoryRepo struct {
	orders  map[uuid.UUID]WorkOrder
	facts   map[uuid.UUID]Facts
	history []statuses.HistoryRecord
	audits  []shared.AuditLog
}

type memoryTx struct {
	repo  *memoryRepo
	orgID uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: map[uuid.UUID]WorkOrder{}, facts: map[uuid.UUID]Facts{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r, orgID: orgID})
}

func (r *memoryRepo) Get(_ context.Context, orgID, id uuid.UUID) (WorkOrder, error) {
	wo, ok := r.orders[id]
	if !ok || wo.OrgID != orgID {
		return WorkOrder{}, ErrWONotFound
	}
	return wo, nil
}

func (r *memoryRepo) Materials(ctx context.Context, orgID, id uuid.UUID) ([]Material, error) {
	if _, err := r.Get(ctx, orgID, id); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *memoryRepo) List(_ context.Context, orgID uuid.UUID, _ ListFilter) ([]WorkOrder, int, error) {
	var out []WorkOrder
	for _, wo := range r.orders {
		if wo.OrgID == orgID {
			out = append(out, wo)
		}
	}
	return out, len(out), nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id uuid.UUID) (WorkOrder, error) {
	return tx.repo.Get(ctx, tx.orgID, id)
}

func (tx *memoryTx) Facts(_ context.Context, id uuid.UUID) (Facts, error) {
	return tx.repo.facts[id], nil
}

func (tx *memoryTx) Save(_ context.Context, w WorkOrder) error {
	w.OrgID = tx.orgID
	tx.repo.orders[w.ID] = w
	return nil
}

func (tx *memoryTx) InsertHistory(_ context.Context, rec statuses.HistoryRecord) error {
	tx.repo.history = append(tx.repo.history, rec)
	return nil
}

func (tx *memoryTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	tx.repo.audits = append(tx.repo.audits, log)
	return nil
}

type defaultStatuses struct{ engine *statuses.Engine }

func (d defaultStatuses) Config(_ context.Context, orgID uuid.UUID, entity statuses.EntityType) (*statuses.Config, error) {
	return statuses.DefaultConfig(orgID, entity)
}

func (d defaultStatuses) Validate(ctx context.Context, cfg *statuses.Config, req statuses.Request) (statuses.Transition, error) {
	return d.engine.Validate(ctx, cfg, req)
}

func (d defaultStatuses) History(context.Context, uuid.UUID, statuses.EntityType, uuid.UUID, shared.Page) ([]statuses.HistoryRecord, int, error) {
	return nil, 0, nil
}

func newService(t *testing.T) (*Service, *memoryRepo, shared.Principal, WorkOrder) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, defaultStatuses{engine: statuses.NewEngine(nil)})
	svc.now = func() time.Time { return time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC) }
	actor := shared.Principal{UserID: uuid.New(), OrgID: uuid.New()}
	wo := WorkOrder{ID: uuid.New(), OrgID: actor.OrgID, WONumber: "WO-0001", PlannedQty: decimal.NewFromInt(200), Status: StatusDraft}
	repo.orders[wo.ID] = wo
	return svc, repo, actor, wo
}

func TestChangeStatusRunsGuardsAndRecordsHistory(t *testing.T) {
	svc, repo, actor, wo := newService(t)
	ctx := context.Background()

	_, err := svc.ChangeStatus(ctx, actor, wo.ID, StatusInput{Status: StatusReleased}, false)
	require.ErrorIs(t, err, statuses.ErrGuardFailed)

	repo.facts[wo.ID] = Facts{MaterialCount: 2}
	got, err := svc.ChangeStatus(ctx, actor, wo.ID, StatusInput{Status: StatusReleased}, false)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, got.Status)

	got, err = svc.ChangeStatus(ctx, actor, wo.ID, StatusInput{Status: StatusInProgress}, false)
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)

	_, err = svc.ChangeStatus(ctx, actor, wo.ID, StatusInput{Status: StatusCompleted}, false)
	require.ErrorIs(t, err, statuses.ErrGuardFailed)

	_, err = svc.ChangeStatus(ctx, actor, wo.ID, StatusInput{Status: StatusPaused}, false)
	require.ErrorIs(t, err, statuses.ErrReasonRequired)

	require.Len(t, repo.history, 2)
	require.Equal(t, StatusDraft, repo.history[0].FromStatus)
	require.Equal(t, actor.UserID, *repo.history[1].ChangedBy)
}

func TestChangeStatusRejectsEdgeOutsideAllowList(t *testing.T) {
	svc, _, actor, wo := newService(t)
	_, err := svc.ChangeStatus(context.Background(), actor, wo.ID, StatusInput{Status: StatusCompleted}, true)
	require.ErrorIs(t, err, statuses.ErrTransitionNotAllowed)
}

func TestWorkOrderHelpers(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	end := now.Add(-time.Hour)
	wo := WorkOrder{PlannedQty: decimal.NewFromInt(300), ProducedQty: decimal.NewFromInt(100), Status: StatusInProgress, PlannedEnd: &end}
	require.Equal(t, "33.3", wo.ProgressPercent().String())
	require.True(t, wo.Overdue(now))
	require.NoError(t, wo.RequireInProgress())

	wo.Status = StatusPaused
	require.ErrorIs(t, wo.RequireInProgress(), ErrWONotInProgress)

	m := Material{RequiredQty: decimal.NewFromInt(5), ConsumedQty: decimal.NewFromInt(7)}
	require.True(t, m.Remaining().IsZero())
}

type staticPerms []string

func (s staticPerms) EffectivePermissions(context.Context, shared.Principal) ([]string, error) {
	return s, nil
}

func TestHandlerStatusAndCrossTenant(t *testing.T) {
	svc, repo, actor, wo := newService(t)
	repo.facts[wo.ID] = Facts{MaterialCount: 1}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{Service: staticPerms{shared.PermWOView, shared.PermWOStatus}})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), actor)))
		})
	})
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/work-orders/"+wo.ID.String()+"/status", strings.NewReader(`{"status":"released"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"released"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/work-orders/"+wo.ID.String()+"/status", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	other := WorkOrder{ID: uuid.New(), OrgID: uuid.New(), Status: StatusDraft}
	repo.orders[other.ID] = other
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/work-orders/"+other.ID.String(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "WO_NOT_FOUND")
}
