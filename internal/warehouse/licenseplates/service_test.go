package licenseplates

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/genealogy"
)

type memoryState struct {
	plates    map[uuid.UUID]LicensePlate
	movements []Movement
	edges     []genealogy.Edge
	history   []statuses.HistoryRecord
	audits    []shared.AuditLog
	seq       int64
}

func (s memoryState) clone() memoryState {
	cp := s
	cp.plates = make(map[uuid.UUID]LicensePlate, len(s.plates))
	for k, v := range s.plates {
		cp.plates[k] = v
	}
	cp.movements = append([]Movement(nil), s.movements...)
	cp.edges = append([]genealogy.Edge(nil), s.edges...)
	cp.history = append([]statuses.HistoryRecord(nil), s.history...)
	cp.audits = append([]shared.AuditLog(nil), s.audits...)
	return cp
}

// memoryRepo commits a transaction's writes only when fn succeeds.
type memoryRepo struct {
	state    memoryState
	failEdge bool
}

type memoryTx struct {
	state *memoryState
	orgID uuid.UUID
	repo  *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{plates: make(map[uuid.UUID]LicensePlate)}}
}

func (r *memoryRepo) WithTx(ctx context.Context, orgID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &working, orgID: orgID, repo: r}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) Get(_ context.Context, orgID, id uuid.UUID) (LicensePlate, error) {
	lp, ok := r.state.plates[id]
	if !ok || lp.OrgID != orgID {
		return LicensePlate{}, ErrLPNotFound
	}
	return lp, nil
}

func (r *memoryRepo) List(_ context.Context, orgID uuid.UUID, filter ListFilter) ([]LicensePlate, int, error) {
	var out []LicensePlate
	for _, lp := range r.state.plates {
		if lp.OrgID == orgID && (filter.Status == "" || lp.Status == filter.Status) {
			out = append(out, lp)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) Movements(_ context.Context, _ uuid.UUID, lpID uuid.UUID, _ shared.Page) ([]Movement, int, error) {
	var out []Movement
	for _, m := range r.state.movements {
		if m.LPID == lpID {
			out = append(out, m)
		}
	}
	return out, len(out), nil
}

func (tx *memoryTx) GetForUpdate(_ context.Context, id uuid.UUID) (LicensePlate, error) {
	lp, ok := tx.state.plates[id]
	if !ok || lp.OrgID != tx.orgID {
		return LicensePlate{}, ErrLPNotFound
	}
	return lp, nil
}

func (tx *memoryTx) Insert(_ context.Context, lp LicensePlate) error {
	lp.OrgID = tx.orgID
	tx.state.plates[lp.ID] = lp
	return nil
}

func (tx *memoryTx) Save(_ context.Context, lp LicensePlate) error {
	if _, ok := tx.state.plates[lp.ID]; !ok {
		return ErrLPNotFound
	}
	lp.OrgID = tx.orgID
	tx.state.plates[lp.ID] = lp
	return nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, m Movement) error {
	tx.state.movements = append(tx.state.movements, m)
	return nil
}

func (tx *memoryTx) InsertEdge(_ context.Context, e genealogy.Edge) error {
	if tx.repo.failEdge {
		return errors.New("genealogy insert failed")
	}
	tx.state.edges = append(tx.state.edges, e)
	return nil
}

func (tx *memoryTx) NextNumber(_ context.Context, now time.Time) (string, error) {
	tx.state.seq++
	return FormatNumber(now, tx.state.seq), nil
}

func (tx *memoryTx) InsertHistory(_ context.Context, rec statuses.HistoryRecord) error {
	tx.state.history = append(tx.state.history, rec)
	return nil
}

func (tx *memoryTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	tx.state.audits = append(tx.state.audits, log)
	return nil
}

// defaultStatuses validates against the built-in license plate lifecycle.
type defaultStatuses struct {
	engine *statuses.Engine
}

func (d defaultStatuses) Config(_ context.Context, orgID uuid.UUID, entity statuses.EntityType) (*statuses.Config, error) {
	return statuses.DefaultConfig(orgID, entity)
}

func (d defaultStatuses) Validate(ctx context.Context, cfg *statuses.Config, req statuses.Request) (statuses.Transition, error) {
	return d.engine.Validate(ctx, cfg, req)
}

func (d defaultStatuses) History(context.Context, uuid.UUID, statuses.EntityType, uuid.UUID, shared.Page) ([]statuses.HistoryRecord, int, error) {
	return nil, 0, nil
}

type fixture struct {
	repo  *memoryRepo
	svc   *Service
	actor shared.Principal
	lp    LicensePlate
}

func newFixture(t *testing.T, locker *lock.Locker) fixture {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, defaultStatuses{engine: statuses.NewEngine(nil)}, locker, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	actor := shared.Principal{UserID: uuid.New(), OrgID: uuid.New()}
	expiry := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	loc := uuid.New()
	lp := LicensePlate{
		ID:          uuid.New(),
		OrgID:       actor.OrgID,
		LPNumber:    "LP-20260301-000001",
		ProductID:   uuid.New(),
		Quantity:    decimal.NewFromInt(100),
		UoM:         "kg",
		Status:      StatusAvailable,
		QAStatus:    QAPassed,
		BatchNumber: "B-77",
		ExpiryDate:  &expiry,
		LocationID:  &loc,
	}
	repo.state.plates[lp.ID] = lp
	return fixture{repo: repo, svc: svc, actor: actor, lp: lp}
}

func TestSplitConservesQuantityAndInheritsAttributes(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.svc.Split(context.Background(), f.actor, f.lp.ID, SplitInput{Quantity: decimal.RequireFromString("30.5")})
	require.NoError(t, err)

	require.True(t, res.Source.Quantity.Equal(decimal.RequireFromString("69.5")))
	require.True(t, res.Child.Quantity.Equal(decimal.RequireFromString("30.5")))
	require.True(t, res.Source.Quantity.Add(res.Child.Quantity).Equal(f.lp.Quantity))
	require.Equal(t, "B-77", res.Child.BatchNumber)
	require.Equal(t, f.lp.ExpiryDate, res.Child.ExpiryDate)
	require.Equal(t, QAPassed, res.Child.QAStatus)
	require.Equal(t, f.lp.LocationID, res.Child.LocationID)
	require.Equal(t, f.lp.ID, *res.Child.ParentLPID)
	require.Equal(t, "LP-20260314-000001", res.Child.LPNumber)

	state := f.repo.state
	require.Len(t, state.plates, 2)
	require.Len(t, state.edges, 1)
	require.Equal(t, genealogy.RelationSplit, state.edges[0].RelationType)
	require.Equal(t, f.lp.ID, state.edges[0].ParentLPID)
	require.Equal(t, res.Child.ID, *state.edges[0].ChildLPID)
	require.Len(t, state.movements, 2)
	require.True(t, state.movements[0].Quantity.Equal(decimal.RequireFromString("-30.5")))
	require.Len(t, state.audits, 1)
}

func TestSplitLocationOverride(t *testing.T) {
	f := newFixture(t, nil)
	loc := uuid.New()
	res, err := f.svc.Split(context.Background(), f.actor, f.lp.ID, SplitInput{Quantity: decimal.NewFromInt(1), LocationID: &loc})
	require.NoError(t, err)
	require.Equal(t, loc, *res.Child.LocationID)
	require.Equal(t, f.lp.LocationID, res.Source.LocationID)
}

func TestSplitRejectsInvalidQuantityWithoutMutation(t *testing.T) {
	for _, q := range []string{"0", "-1", "100", "100.01"} {
		f := newFixture(t, nil)
		_, err := f.svc.Split(context.Background(), f.actor, f.lp.ID, SplitInput{Quantity: decimal.RequireFromString(q)})
		require.ErrorIs(t, err, ErrInvalidQuantity, q)
		require.Len(t, f.repo.state.plates, 1)
		require.True(t, f.repo.state.plates[f.lp.ID].Quantity.Equal(f.lp.Quantity))
		require.Empty(t, f.repo.state.edges)
	}
}

func TestSplitRejectsUnavailablePlates(t *testing.T) {
	for _, status := range []string{StatusBlocked, StatusReserved, StatusConsumed} {
		f := newFixture(t, nil)
		lp := f.repo.state.plates[f.lp.ID]
		lp.Status = status
		f.repo.state.plates[lp.ID] = lp
		_, err := f.svc.Split(context.Background(), f.actor, f.lp.ID, SplitInput{Quantity: decimal.NewFromInt(10)})
		require.ErrorIs(t, err, ErrLPNotAvailable, status)
		require.Len(t, f.repo.state.plates, 1)
	}
}

func TestSplitRollsBackWhenGenealogyFails(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.failEdge = true
	_, err := f.svc.Split(context.Background(), f.actor, f.lp.ID, SplitInput{Quantity: decimal.NewFromInt(10)})
	require.Error(t, err)
	require.Len(t, f.repo.state.plates, 1)
	require.True(t, f.repo.state.plates[f.lp.ID].Quantity.Equal(decimal.NewFromInt(100)))
	require.Empty(t, f.repo.state.movements)
}

func TestSplitCrossTenantIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	other := shared.Principal{UserID: uuid.New(), OrgID: uuid.New()}
	_, err := f.svc.Split(context.Background(), other, f.lp.ID, SplitInput{Quantity: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrLPNotFound)
}

func TestSplitReportsLockedPlate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := lock.New(client, time.Second)
	f := newFixture(t, locker)

	err := locker.With(context.Background(), lock.LicensePlateKey(f.actor.OrgID, f.lp.ID), func(ctx context.Context) error {
		_, err := f.svc.Split(ctx, f.actor, f.lp.ID, SplitInput{Quantity: decimal.NewFromInt(10)})
		return err
	})
	require.ErrorIs(t, err, ErrLPLocked)

	_, err = f.svc.Split(context.Background(), f.actor, f.lp.ID, SplitInput{Quantity: decimal.NewFromInt(10)})
	require.NoError(t, err)
}

func TestBlockRequiresReasonAndUnblockRestores(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Block(ctx, f.actor, f.lp.ID, BlockInput{})
	require.ErrorIs(t, err, statuses.ErrReasonRequired)

	lp, err := f.svc.Block(ctx, f.actor, f.lp.ID, BlockInput{Reason: "damaged pallet"})
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, lp.Status)
	require.Len(t, f.repo.state.history, 1)
	require.Equal(t, StatusAvailable, f.repo.state.history[0].FromStatus)

	_, err = f.svc.Block(ctx, f.actor, f.lp.ID, BlockInput{Reason: "again"})
	require.ErrorIs(t, err, statuses.ErrSelfTransition)

	_, err = f.svc.Split(ctx, f.actor, f.lp.ID, SplitInput{Quantity: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrLPNotAvailable)

	lp, err = f.svc.Unblock(ctx, f.actor, f.lp.ID, BlockInput{})
	require.NoError(t, err)
	require.Equal(t, StatusAvailable, lp.Status)
	require.Len(t, f.repo.state.history, 2)
	require.Len(t, f.repo.state.movements, 2)
}

func TestUpdateRejectsConsumedPlate(t *testing.T) {
	f := newFixture(t, nil)
	qa := QAQuarantine
	lp, err := f.svc.Update(context.Background(), f.actor, f.lp.ID, UpdateInput{QAStatus: &qa})
	require.NoError(t, err)
	require.True(t, lp.OnQAHold())

	consumed := f.repo.state.plates[f.lp.ID]
	consumed.Status = StatusConsumed
	f.repo.state.plates[f.lp.ID] = consumed
	_, err = f.svc.Update(context.Background(), f.actor, f.lp.ID, UpdateInput{QAStatus: &qa})
	require.ErrorIs(t, err, ErrLPConsumed)
}

func TestDrawEmptiesPlate(t *testing.T) {
	lp := LicensePlate{Quantity: decimal.NewFromInt(5), Status: StatusAvailable}
	wo := uuid.New()
	require.ErrorIs(t, lp.Draw(decimal.NewFromInt(6), &wo), ErrInsufficientQuantity)
	require.NoError(t, lp.Draw(decimal.NewFromInt(5), &wo))
	require.True(t, lp.Quantity.IsZero())
	require.Equal(t, StatusConsumed, lp.Status)
	require.Equal(t, wo, *lp.ConsumedByWOID)
}

func TestExpiryIsDateOnly(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	require.False(t, LicensePlate{ExpiryDate: &today}.IsExpired(now))
	require.True(t, LicensePlate{ExpiryDate: &yesterday}.IsExpired(now))
	require.True(t, LicensePlate{ExpiryDate: &today}.ExpiresWithin(now, 7))
	require.False(t, LicensePlate{}.IsExpired(now))
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "LP-20260102-000042", FormatNumber(time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC), 42))
}

type allowAll struct{}

func (allowAll) EffectivePermissions(context.Context, shared.Principal) ([]string, error) {
	return shared.AllScopes(), nil
}

func TestHandlerSplitAndErrors(t *testing.T) {
	f := newFixture(t, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, nil, rbac.Middleware{Service: allowAll{}})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), f.actor)))
		})
	})
	h.MountRoutes(r)
	base := "/license-plates/" + f.lp.ID.String()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base+"/split", strings.NewReader(`{"quantity":"250"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_QUANTITY")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base+"/split", strings.NewReader(`{"quantity":"25"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"child"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/license-plates/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "LP_NOT_FOUND")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, base+"/block", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "REASON_REQUIRED")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/license-plates?status=available", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":2`)
}
