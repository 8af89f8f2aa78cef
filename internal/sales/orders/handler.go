package orders

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Handler exposes sales order endpoints.
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

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.RespondError(w, err); status >= http.StatusInternalServerError {
		h.logger.Error("sales order request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

// List handles GET /shipping/sales-orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter := ListFilter{Status: r.URL.Query().Get("status"), Page: httpx.PageFromQuery(r)}
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, shared.ErrInvalidID.WithMessage("customer_id must be a valid UUID"))
			return
		}
		filter.CustomerID = &id
	}
	items, total, err := h.service.List(r.Context(), principal.OrgID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewListResponse(items, filter.Page, total))
}

// Show handles GET /shipping/sales-orders/{id}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
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
	so, err := h.service.Get(r.Context(), principal.OrgID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, so)
}

// Create handles POST /shipping/sales-orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req CreateRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	var so SalesOrder
	err = h.idempotency.Guard(r.Context(), principal.OrgID, r.Header.Get(shared.IdempotencyHeader), "shipping.sales_order", func() error {
		var err error
		so, err = h.service.Create(r.Context(), principal, req)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, so)
}
