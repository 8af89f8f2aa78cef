package workorders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Handler wires work order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers the work order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermWOView, shared.PermWOStatus))
		r.Get("/work-orders", h.list)
		r.Get("/work-orders/{id}", h.get)
		r.Get("/work-orders/{id}/materials", h.materials)
		r.Get("/work-orders/{id}/status-history", h.history)
	})
	r.With(h.rbac.RequireAll(shared.PermWOStatus)).Post("/work-orders/{id}/status", h.changeStatus)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.RespondError(w, err); status >= http.StatusInternalServerError {
		h.logger.Error("work order request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter := ListFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Page:   httpx.PageFromQuery(r),
	}
	items, total, err := h.service.List(r.Context(), principal.OrgID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewListResponse(items, filter.Page, total))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	wo, err := h.service.Get(r.Context(), principal.OrgID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"work_order": wo, "progress_percent": wo.ProgressPercent()})
}

func (h *Handler) materials(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lines, err := h.service.Materials(r.Context(), principal.OrgID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if lines == nil {
		lines = []Material{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": lines})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := httpx.URLUUID(r, "id")
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

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input StatusInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	approved, err := h.rbac.Has(r, shared.PermStatusesApprove)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	wo, err := h.service.ChangeStatus(r.Context(), principal, id, input, approved)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wo)
}
