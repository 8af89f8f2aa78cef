package orders

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// MountRoutes registers sales order routes under /shipping.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSalesOrderView, shared.PermSalesOrderEdit))
		r.Get("/shipping/sales-orders", h.List)
		r.Get("/shipping/sales-orders/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderEdit))
		r.Post("/shipping/sales-orders", h.Create)
	})
}
