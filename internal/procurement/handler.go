package procurement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Handler exposes planning endpoints for suppliers and purchase orders.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	rbac        rbac.Middleware
}

// NewHandler builds a procurement handler.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, rbac: rbac}
}

// MountRoutes registers routes under /planning.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/planning", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermPurchaseOrderView, shared.PermPurchaseOrderEdit, shared.PermPurchaseStatus))
			r.Get("/suppliers", h.listSuppliers)
			r.Get("/purchase-orders/{id}", h.getPO)
			r.Get("/purchase-orders/{id}/status-history", h.history)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermSupplierEdit))
			r.Post("/suppliers", h.createSupplier)
			r.Delete("/suppliers/{id}", h.deleteSupplier)
		})
		r.With(h.rbac.RequireAll(shared.PermPurchaseOrderEdit)).Post("/purchase-orders", h.createPO)
		r.With(h.rbac.RequireAll(shared.PermPurchaseStatus)).Post("/purchase-orders/{id}/status", h.changeStatus)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.RespondError(w, err); status >= http.StatusInternalServerError {
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.service.Suppliers(r.Context(), principal.OrgID, r.URL.Query().Get("active") == "true")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []Supplier{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input SupplierInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	sup, err := h.service.CreateSupplier(r.Context(), principal, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sup)
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteSupplier(r.Context(), principal, id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input CreatePOInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	var po PurchaseOrder
	err = h.idempotency.Guard(r.Context(), principal.OrgID, r.Header.Get(shared.IdempotencyHeader), "planning.purchase_order", func() error {
		var err error
		po, err = h.service.CreatePO(r.Context(), principal, input)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
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
	po, err := h.service.GetPO(r.Context(), principal.OrgID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
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
	po, err := h.service.ChangeStatus(r.Context(), principal, id, input, approved)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}
