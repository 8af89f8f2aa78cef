package outputs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Handler wires output registration endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	rbac        rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, rbac: rbac}
}

// MountRoutes registers output and by-product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermWOView, shared.PermOutput))
		r.Get("/work-orders/{id}/outputs", h.listOutputs)
		r.Get("/work-orders/{id}/by-products", h.listByProducts)
	})
	r.With(h.rbac.RequireAll(shared.PermOutput)).Post("/work-orders/{id}/outputs", h.registerMain)
	r.With(h.rbac.RequireAll(shared.PermOutput)).Post("/work-orders/{id}/by-products", h.registerByProduct)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.RespondError(w, err); status >= http.StatusInternalServerError {
		h.logger.Error("output request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (h *Handler) listOutputs(w http.ResponseWriter, r *http.Request) {
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
	items, err := h.service.Outputs(r.Context(), principal.OrgID, woID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) listByProducts(w http.ResponseWriter, r *http.Request) {
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
	lines, err := h.service.ByProducts(r.Context(), principal.OrgID, woID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": lines})
}

func (h *Handler) registerMain(w http.ResponseWriter, r *http.Request) {
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
	var input MainOutputInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	var result MainResult
	err = h.idempotency.Guard(r.Context(), principal.OrgID, r.Header.Get(shared.IdempotencyHeader), "production.output", func() error {
		var err error
		result, err = h.service.RegisterMain(r.Context(), principal, woID, input)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) registerByProduct(w http.ResponseWriter, r *http.Request) {
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
	var input ByProductInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	var result ByProductResult
	err = h.idempotency.Guard(r.Context(), principal.OrgID, r.Header.Get(shared.IdempotencyHeader), "production.by_product", func() error {
		var err error
		result, err = h.service.RegisterByProduct(r.Context(), principal, woID, input)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}
