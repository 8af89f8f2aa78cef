package statuses

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Handler exposes the status configuration endpoints under /settings/statuses.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers the settings routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStatusesView, shared.PermStatusesEdit))
		r.Get("/settings/statuses/{entity}", h.getConfig)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStatusesEdit))
		r.Post("/settings/statuses/{entity}", h.createStatus)
		r.Delete("/settings/statuses/{entity}/{statusId}", h.deleteStatus)
		r.Post("/settings/statuses/{entity}/transitions", h.createTransition)
		r.Delete("/settings/statuses/{entity}/transitions/{id}", h.deleteTransition)
	})
}

type configResponse struct {
	EntityType  EntityType   `json:"entity_type"`
	Statuses    []Status     `json:"statuses"`
	Transitions []Transition `json:"transitions"`
	Guards      []string     `json:"guards"`
}

func entityParam(r *http.Request) (EntityType, error) {
	entity := EntityType(chi.URLParam(r, "entity"))
	if !entity.Valid() {
		return "", ErrUnknownEntity
	}
	return entity, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.RespondError(w, err); status >= http.StatusInternalServerError {
		h.logger.Error("statuses request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entity, err := entityParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cfg, err := h.service.Config(r.Context(), principal.OrgID, entity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := configResponse{
		EntityType:  entity,
		Statuses:    cfg.Statuses,
		Transitions: cfg.Transitions,
		Guards:      h.service.engine.GuardNames(),
	}
	if resp.Transitions == nil {
		resp.Transitions = []Transition{}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) createStatus(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entity, err := entityParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input CreateStatusInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := h.service.CreateStatus(r.Context(), principal.OrgID, entity, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, status)
}

func (h *Handler) deleteStatus(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entity, err := entityParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	statusID, err := httpx.URLUUID(r, "statusId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteStatus(r.Context(), principal.OrgID, entity, statusID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) createTransition(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entity, err := entityParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input CreateTransitionInput
	if err := httpx.Decode(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.service.CreateTransition(r.Context(), principal.OrgID, entity, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) deleteTransition(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entity, err := entityParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteTransition(r.Context(), principal.OrgID, entity, id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}
