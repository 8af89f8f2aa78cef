package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// URLUUID parses a chi path parameter as a UUID.
func URLUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shared.ErrInvalidID.WithMessage("%s must be a valid UUID", name)
	}
	return id, nil
}

// PageFromQuery reads page and limit query parameters. Limit is capped at 100.
func PageFromQuery(r *http.Request) shared.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return shared.NewPage(page, limit)
}

// ListResponse is the envelope for paginated collections.
type ListResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

// NewListResponse builds a ListResponse. A nil slice is rendered as [].
func NewListResponse[T any](items []T, page shared.Page, total int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Data: items, Pagination: shared.NewPagination(page, total)}
}

// Principal returns the authenticated caller, or ErrUnauthenticated.
func Principal(r *http.Request) (shared.Principal, error) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok || p.OrgID == uuid.Nil {
		return shared.Principal{}, shared.ErrUnauthenticated
	}
	return p, nil
}
