package consumption

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

const idempotencyModule = "production.consume"

// Handler wires consumption endpoints.
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

// MountRoutes registers the consumption routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermWOView, shared.PermConsume)).Get("/work-orders/{id}/consumptions", h.list)
	r.With(h.rbac.RequireAll(shared.PermConsume)).Post("/work-orders/{id}/consume", h.consume)
	r.With(h.rbac.RequireAll(shared.PermConsume)).Post("/work-orders/{id}/materials/{materialId}/validate-lp", h.validate)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.RespondError(w, err); status >= http.StatusInternalServerError {
		h.logger.Error("consumption request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	woID, err := httpx.URLUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := httpx.PageFromQuery(r)
	items, total, err := h.service.List(r.Context(), principal.OrgID, woID, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewListResponse(items, page, total))
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	woID, err := httpx.URLUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input ConsumeInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	var result Result
	err = h.idempotency.Guard(r.Context(), principal.OrgID, r.Header.Get(shared.IdempotencyHeader), idempotencyModule, func() error {
		var err error
		result, err = h.service.Consume(r.Context(), principal, woID, input)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	woID, err := httpx.URLUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	materialID, err := httpx.URLUUID(r, "materialId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input ValidateInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	verdict, err := h.service.ValidateLP(r.Context(), principal.OrgID, woID, materialID, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, verdict)
}
