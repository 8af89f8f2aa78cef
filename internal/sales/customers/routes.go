package customers

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// MountRoutes registers customer routes under /shipping.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSalesOrderView, shared.PermSalesOrderEdit))
		r.Get("/shipping/customers", h.List)
		r.Get("/shipping/customers/{id}", h.Show)
	})
	r.With(h.rbac.RequireAll(shared.PermSalesOrderEdit)).Post("/shipping/customers", h.Create)
}
