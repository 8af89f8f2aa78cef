package boms

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Handler wires BOM alternative endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers the alternative routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/technical/boms/{id}/items/{itemId}/alternatives", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermTechnicalBOMView, shared.PermTechnicalBOMEdit)).Get("/", h.list)
		r.With(h.rbac.RequireAll(shared.PermTechnicalBOMEdit)).Post("/", h.create)
		r.With(h.rbac.RequireAll(shared.PermTechnicalBOMEdit)).Delete("/{altId}", h.delete)
	})
}

type pathIDs struct {
	principal shared.Principal
	bomID     uuid.UUID
	itemID    uuid.UUID
}

func (h *Handler) ids(r *http.Request) (pathIDs, error) {
	principal, err := httpx.Principal(r)
	if err != nil {
		return pathIDs{}, err
	}
	bomID, err := httpx.URLUUID(r, "id")
	if err != nil {
		return pathIDs{}, err
	}
	itemID, err := httpx.URLUUID(r, "itemId")
	if err != nil {
		return pathIDs{}, err
	}
	return pathIDs{principal: principal, bomID: bomID, itemID: itemID}, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.RespondError(w, err); status >= http.StatusInternalServerError {
		h.logger.Error("bom alternatives request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ids, err := h.ids(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	alts, err := h.service.ListAlternatives(r.Context(), ids.principal.OrgID, ids.bomID, ids.itemID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if alts == nil {
		alts = []Alternative{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": alts})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ids, err := h.ids(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input CreateAlternativeInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.CreateAlternative(r.Context(), ids.principal, ids.bomID, ids.itemID, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	ids, err := h.ids(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	altID, err := httpx.URLUUID(r, "altId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteAlternative(r.Context(), ids.principal, ids.bomID, ids.itemID, altID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}
