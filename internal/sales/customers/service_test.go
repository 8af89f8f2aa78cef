package customers

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
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

type memoryRepo struct {
	items  []Customer
	audits []shared.AuditLog
}

func (m *memoryRepo) Create(_ context.Context, c Customer, log shared.AuditLog) error {
	for _, existing := range m.items {
		if existing.OrgID == c.OrgID && existing.Code == c.Code {
			return ErrDuplicateCustomer
		}
	}
	m.items = append(m.items, c)
	m.audits = append(m.audits, log)
	return nil
}

func (m *memoryRepo) Get(_ context.Context, orgID, id uuid.UUID) (Customer, error) {
	for _, c := range m.items {
		if c.ID == id && c.OrgID == orgID {
			return c, nil
		}
	}
	return Customer{}, ErrCustomerNotFound
}

func (m *memoryRepo) List(_ context.Context, orgID uuid.UUID, filter ListFilter) ([]Customer, int, error) {
	var out []Customer
	for _, c := range m.items {
		if c.OrgID == orgID && strings.Contains(strings.ToLower(c.Name+c.Code), strings.ToLower(filter.Search)) {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func TestCreateNormalises(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) }
	actor := shared.Principal{UserID: uuid.New(), OrgID: uuid.New()}

	c, err := svc.Create(context.Background(), actor, CreateRequest{Code: " c-01 ", Name: "Bakery Co", Country: "de"})
	require.NoError(t, err)
	require.Equal(t, "C-01", c.Code)
	require.Equal(t, "DE", c.Country)
	require.True(t, c.IsActive)
	require.Equal(t, "customer.create", repo.audits[0].Action)

	_, err = svc.Create(context.Background(), actor, CreateRequest{Code: "c-01", Name: "Again"})
	require.ErrorIs(t, err, ErrDuplicateCustomer)

	_, err = svc.Get(context.Background(), uuid.New(), c.ID)
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

type allowAll struct{}

func (allowAll) EffectivePermissions(context.Context, shared.Principal) ([]string, error) {
	return shared.AllScopes(), nil
}

func TestHandlerCreateAndList(t *testing.T) {
	repo := &memoryRepo{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo), rbac.Middleware{Service: allowAll{}})
	actor := shared.Principal{UserID: uuid.New(), OrgID: uuid.New()}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), actor)))
		})
	})
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/shipping/customers", strings.NewReader(`{"code":"c1","name":"Mill"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/shipping/customers", strings.NewReader(`{"code":"c2","name":"x","email":"nope"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shipping/customers?q=mill", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"C1"`)
	require.Contains(t, rec.Body.String(), `"total":1`)
}
