package genealogy

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Handler serves GET /license-plates/{id}/genealogy.
type Handler struct {
	logger *slog.Logger
	tracer *Tracer
	rbac   rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, tracer *Tracer, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, tracer: tracer, rbac: rbac}
}

// MountRoutes registers the trace route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermLPView)).Get("/license-plates/{id}/genealogy", h.trace)
}

func (h *Handler) trace(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dir := Direction(r.URL.Query().Get("direction"))
	if dir == "" {
		dir = Backward
	}
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))

	result, err := h.tracer.Trace(r.Context(), principal.OrgID, id, dir, depth)
	if err != nil {
		if httpx.RespondError(w, err) >= http.StatusInternalServerError {
			h.logger.Error("genealogy trace failed", slog.String("lp_id", id.String()), slog.Any("error", err))
		}
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
