package statuses

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

type memoryRepo struct {
	statuses    map[uuid.UUID]Status
	transitions map[uuid.UUID]Transition
	inUse       map[string]bool
	history     []HistoryRecord
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		statuses:    make(map[uuid.UUID]Status),
		transitions: make(map[uuid.UUID]Transition),
		inUse:       make(map[string]bool),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, _ uuid.UUID, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Load(_ context.Context, orgID uuid.UUID, entity EntityType) (*Config, error) {
	var statuses []Status
	for _, s := range r.statuses {
		if s.OrgID == orgID && s.EntityType == entity {
			statuses = append(statuses, s)
		}
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	var transitions []Transition
	for _, t := range r.transitions {
		if t.OrgID == orgID && t.EntityType == entity {
			t.FromCode, t.ToCode = "", ""
			transitions = append(transitions, t)
		}
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Code < statuses[j].Code })
	return NewConfig(entity, statuses, transitions), nil
}

func (r *memoryRepo) History(_ context.Context, _ uuid.UUID, entity EntityType, entityID uuid.UUID, page shared.Page) ([]HistoryRecord, int, error) {
	var out []HistoryRecord
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].EntityType == entity && r.history[i].EntityID == entityID {
			out = append(out, r.history[i])
		}
	}
	return out, len(out), nil
}

func (tx *memoryTx) Load(ctx context.Context, orgID uuid.UUID, entity EntityType) (*Config, error) {
	return tx.repo.Load(ctx, orgID, entity)
}

func (tx *memoryTx) SeedDefaults(_ context.Context, cfg *Config) error {
	for _, s := range cfg.Statuses {
		tx.repo.statuses[s.ID] = s
	}
	for _, t := range cfg.Transitions {
		tx.repo.transitions[t.ID] = t
	}
	return nil
}

func (tx *memoryTx) InsertStatus(_ context.Context, s Status) error {
	tx.repo.statuses[s.ID] = s
	return nil
}

func (tx *memoryTx) DeleteStatus(_ context.Context, id uuid.UUID) error {
	delete(tx.repo.statuses, id)
	return nil
}

func (tx *memoryTx) StatusInUse(_ context.Context, entity EntityType, code string) (bool, error) {
	return tx.repo.inUse[string(entity)+":"+code], nil
}

func (tx *memoryTx) InsertTransition(_ context.Context, t Transition) error {
	tx.repo.transitions[t.ID] = t
	return nil
}

func (tx *memoryTx) DeleteTransition(_ context.Context, id uuid.UUID) error {
	delete(tx.repo.transitions, id)
	return nil
}

func TestConfigFallsBackToDefaults(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	cfg, err := svc.Config(context.Background(), testOrg, EntityWorkOrder)
	require.NoError(t, err)
	_, ok := cfg.Transition("released", "in_progress")
	require.True(t, ok)

	_, err = svc.Config(context.Background(), testOrg, EntityType("invoice"))
	require.ErrorIs(t, err, ErrUnknownEntity)
}

func TestCreateAndDeleteCustomStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	status, err := svc.CreateStatus(ctx, testOrg, EntityPurchaseOrder, CreateStatusInput{Code: "on_review"})
	require.NoError(t, err)
	require.Equal(t, "On Review", status.Name)
	require.False(t, status.IsSystem)
	require.Greater(t, status.SortOrder, 80)

	_, err = svc.CreateStatus(ctx, testOrg, EntityPurchaseOrder, CreateStatusInput{Code: "on_review"})
	require.ErrorIs(t, err, ErrDuplicateStatus)
	_, err = svc.CreateStatus(ctx, testOrg, EntityPurchaseOrder, CreateStatusInput{Code: "Bad Code"})
	require.ErrorIs(t, err, ErrInvalidStatusCode)
	_, err = svc.CreateStatus(ctx, testOrg, EntityLicensePlate, CreateStatusInput{Code: "lost"})
	require.ErrorIs(t, err, ErrCustomStatusesBlocked)

	repo.inUse["purchase_order:on_review"] = true
	require.ErrorIs(t, svc.DeleteStatus(ctx, testOrg, EntityPurchaseOrder, status.ID), ErrStatusInUse)
	repo.inUse["purchase_order:on_review"] = false
	require.NoError(t, svc.DeleteStatus(ctx, testOrg, EntityPurchaseOrder, status.ID))
	require.ErrorIs(t, svc.DeleteStatus(ctx, testOrg, EntityPurchaseOrder, status.ID), ErrStatusNotFound)

	cfg, err := svc.Config(ctx, testOrg, EntityPurchaseOrder)
	require.NoError(t, err)
	draft, _ := cfg.Status("draft")
	require.ErrorIs(t, svc.DeleteStatus(ctx, testOrg, EntityPurchaseOrder, draft.ID), ErrSystemStatus)
}

func TestCustomTransitionLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateTransition(ctx, testOrg, EntityWorkOrder, CreateTransitionInput{From: "paused", To: "paused"})
	require.ErrorIs(t, err, ErrSelfTransition)
	_, err = svc.CreateTransition(ctx, testOrg, EntityWorkOrder, CreateTransitionInput{From: "paused", To: "nowhere"})
	require.ErrorIs(t, err, ErrUnknownStatus)
	_, err = svc.CreateTransition(ctx, testOrg, EntityWorkOrder, CreateTransitionInput{From: "paused", To: "cancelled", Guard: "nope"})
	require.ErrorIs(t, err, ErrUnknownGuard)
	_, err = svc.CreateTransition(ctx, testOrg, EntityWorkOrder, CreateTransitionInput{From: "released", To: "in_progress"})
	require.ErrorIs(t, err, ErrDuplicateTransition)

	created, err := svc.CreateTransition(ctx, testOrg, EntityWorkOrder, CreateTransitionInput{From: "paused", To: "cancelled", RequiresReason: true})
	require.NoError(t, err)

	cfg, err := svc.Config(ctx, testOrg, EntityWorkOrder)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, cfg, Request{From: "paused", To: "cancelled", Reason: "scrapped"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTransition(ctx, testOrg, EntityWorkOrder, created.ID))
	cfg, err = svc.Config(ctx, testOrg, EntityWorkOrder)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, cfg, Request{From: "paused", To: "cancelled", Reason: "scrapped"})
	require.ErrorIs(t, err, ErrTransitionNotAllowed)

	system, ok := cfg.Transition("released", "in_progress")
	require.True(t, ok)
	require.ErrorIs(t, svc.DeleteTransition(ctx, testOrg, EntityWorkOrder, system.ID), ErrSystemTransition)
	require.ErrorIs(t, svc.DeleteTransition(ctx, testOrg, EntityWorkOrder, uuid.New()), ErrTransitionNotFound)
}

func TestHistoryNewestFirst(t *testing.T) {
	repo := newMemoryRepo()
	entityID := uuid.New()
	repo.history = []HistoryRecord{
		{EntityType: EntityWorkOrder, EntityID: entityID, FromStatus: "draft", ToStatus: "released"},
		{EntityType: EntityWorkOrder, EntityID: entityID, FromStatus: "released", ToStatus: "in_progress"},
	}
	svc := NewService(repo, nil, nil)
	records, total, err := svc.History(context.Background(), testOrg, EntityWorkOrder, entityID, shared.NewPage(1, 20))
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "in_progress", records[0].ToStatus)
}

type allowAll struct{}

func (allowAll) EffectivePermissions(context.Context, shared.Principal) ([]string, error) {
	return shared.AllScopes(), nil
}

func newTestRouter(svc *Service) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, rbac.Middleware{Service: allowAll{}})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: uuid.New(), OrgID: testOrg})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.MountRoutes(r)
	return r
}

func TestHandlerConfigAndSelfTransition(t *testing.T) {
	router := newTestRouter(NewService(newMemoryRepo(), nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings/statuses/purchase_order", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body configResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Statuses, 8)
	require.Contains(t, body.Guards, GuardPOHasLines)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/settings/statuses/purchase_order/transitions",
		strings.NewReader(`{"from":"draft","to":"draft"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "SELF_TRANSITION")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings/statuses/invoice", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerDeleteSystemTransitionIsProtected(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	router := newTestRouter(svc)
	cfg, err := DefaultConfig(testOrg, EntityPurchaseOrder)
	require.NoError(t, err)
	tr, ok := cfg.Transition("confirmed", "receiving")
	require.True(t, ok)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/settings/statuses/purchase_order/transitions/"+tr.ID.String(), nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "SYSTEM_TRANSITION_PROTECTED")
}
