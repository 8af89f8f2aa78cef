package dashboard

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Handler serves the production dashboard.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers dashboard routes under /production/dashboard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/production/dashboard", func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDashboardView))
		r.Get("/kpis", h.kpis)
		r.Get("/active-wos", h.active)
		r.Get("/alerts", h.alerts)
		r.With(h.rbac.RequireAll(shared.PermDashboardExport)).Get("/export", h.export)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.RespondError(w, err); status >= http.StatusInternalServerError {
		h.logger.Error("dashboard request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (h *Handler) kpis(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	k, err := h.service.KPIs(r.Context(), principal.OrgID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, k)
}

func (h *Handler) active(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := httpx.PageFromQuery(r)
	result, err := h.service.ActiveWOs(r.Context(), principal.OrgID, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewListResponse(result.Items, page, result.Total))
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	alerts, err := h.service.Alerts(r.Context(), principal.OrgID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alerts)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.Principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		h.fail(w, r, ErrUnsupportedFormat)
		return
	}
	table, err := h.service.Export(r.Context(), principal.OrgID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filename := ExportFilename(h.service.now(), format)
	if format == FormatXLSX {
		err = httpx.WriteXLSX(w, filename, "Active work orders", table)
	} else {
		err = httpx.WriteCSV(w, filename, table)
	}
	if err != nil {
		h.logger.Error("dashboard export failed", slog.Any("error", err))
	}
}
