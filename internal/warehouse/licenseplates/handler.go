package licenseplates

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

const idempotencyModule = "warehouse.lp.split"

// Handler wires license plate endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	rbac        rbac.Middleware
}

// NewHandler constructs Handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, rbac: rbac}
}

// MountRoutes registers the plate routes. Paths are flat so the genealogy
// handler can share the /license-plates prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermLPView, shared.PermLPEdit))
		r.Get("/license-plates", h.list)
		r.Get("/license-plates/{id}", h.get)
		r.Get("/license-plates/{id}/movements", h.movements)
		r.Get("/license-plates/{id}/status-history", h.history)
	})
	r.With(h.rbac.RequireAll(shared.PermLPEdit)).Put("/license-plates/{id}", h.update)
	r.With(h.rbac.RequireAll(shared.PermLPBlock)).Put("/license-plates/{id}/block", h.block)
	r.With(h.rbac.RequireAll(shared.PermLPBlock)).Put("/license-plates/{id}/unblock", h.unblock)
	r.With(h.rbac.RequireAll(shared.PermLPSplit)).Post("/license-plates/{id}/split", h.split)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.RespondError(w, err); status >= http.StatusInternalServerError {
		h.logger.Error("license plate request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (h *Handler) target(r *http.Request) (shared.Principal, uuid.UUID, error) {
	principal, err := httpx.Principal(r)
	if err != nil {
		return shared.Principal{}, uuid.Nil, err
	}
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		return shared.Principal{}, uuid.Nil, err
	}
	return principal, id, nil
}

func optionalUUID(raw, name string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, shared.ErrInvalidID.WithMessage("%s must be a valid UUID", name)
	}
	return &id, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		Status:   q.Get("status"),
		QAStatus: q.Get("qa_status"),
		Search:   q.Get("search"),
		Page:     httpx.PageFromQuery(r),
	}
	for name, dst := range map[string]**uuid.UUID{
		"product_id":   &filter.ProductID,
		"warehouse_id": &filter.WarehouseID,
		"location_id":  &filter.LocationID,
	} {
		if *dst, err = optionalUUID(q.Get(name), name); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	plates, total, err := h.service.List(r.Context(), principal.OrgID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewListResponse(plates, filter.Page, total))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lp, err := h.service.Get(r.Context(), principal.OrgID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lp)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	principal, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := httpx.PageFromQuery(r)
	items, total, err := h.service.Movements(r.Context(), principal.OrgID, id, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewListResponse(items, page, total))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	principal, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := httpx.PageFromQuery(r)
	items, total, err := h.service.History(r.Context(), principal.OrgID, id, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewListResponse(items, page, total))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input UpdateInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	lp, err := h.service.Update(r.Context(), principal, id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lp)
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Block)
}

func (h *Handler) unblock(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Unblock)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, actor shared.Principal, id uuid.UUID, input BlockInput) (LicensePlate, error)) {
	principal, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input BlockInput
	if r.ContentLength != 0 {
		if err := httpx.Decode(w, r, &input); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	lp, err := apply(r.Context(), principal, id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lp)
}

func (h *Handler) split(w http.ResponseWriter, r *http.Request) {
	principal, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input SplitInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	var result SplitResult
	err = h.idempotency.Guard(r.Context(), principal.OrgID, r.Header.Get(shared.IdempotencyHeader), idempotencyModule, func() error {
		var err error
		result, err = h.service.Split(r.Context(), principal, id, input)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}
