package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-mes/internal/auth"
	"github.com/odyssey-erp/odyssey-mes/internal/observability"
	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/procurement"
	"github.com/odyssey-erp/odyssey-mes/internal/production/consumption"
	"github.com/odyssey-erp/odyssey-mes/internal/production/dashboard"
	"github.com/odyssey-erp/odyssey-mes/internal/production/outputs"
	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-mes/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
	"github.com/odyssey-erp/odyssey-mes/internal/technical/boms"
	"github.com/odyssey-erp/odyssey-mes/internal/technical/routings"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/genealogy"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
	"github.com/odyssey-erp/odyssey-mes/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Metrics       *observability.Metrics
	Authenticator auth.Authenticator

	LicensePlateHandler *licenseplates.Handler
	GenealogyHandler    *genealogy.Handler
	WorkOrderHandler    *workorders.Handler
	ConsumptionHandler  *consumption.Handler
	OutputHandler       *outputs.Handler
	DashboardHandler    *dashboard.Handler
	BOMHandler          *boms.Handler
	RoutingHandler      *routings.Handler
	StatusHandler       *statuses.Handler
	SalesOrderHandler   *orders.Handler
	CustomerHandler     *customers.Handler
	ProcurementHandler  *procurement.Handler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router. Everything except /healthz and
// /metrics requires an authenticated principal.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusNotFound, httpx.ErrorBody{Error: "ROUTE_NOT_FOUND"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusMethodNotAllowed, httpx.ErrorBody{Error: "METHOD_NOT_ALLOWED"})
	})

	r.Group(func(r chi.Router) {
		r.Use(params.Authenticator.Middleware)
		if params.LicensePlateHandler != nil {
			params.LicensePlateHandler.MountRoutes(r)
		}
		if params.GenealogyHandler != nil {
			params.GenealogyHandler.MountRoutes(r)
		}
		if params.WorkOrderHandler != nil {
			params.WorkOrderHandler.MountRoutes(r)
		}
		if params.ConsumptionHandler != nil {
			params.ConsumptionHandler.MountRoutes(r)
		}
		if params.OutputHandler != nil {
			params.OutputHandler.MountRoutes(r)
		}
		if params.DashboardHandler != nil {
			params.DashboardHandler.MountRoutes(r)
		}
		if params.BOMHandler != nil {
			params.BOMHandler.MountRoutes(r)
		}
		if params.RoutingHandler != nil {
			params.RoutingHandler.MountRoutes(r)
		}
		if params.StatusHandler != nil {
			params.StatusHandler.MountRoutes(r)
		}
		if params.SalesOrderHandler != nil {
			params.SalesOrderHandler.MountRoutes(r)
		}
		if params.CustomerHandler != nil {
			params.CustomerHandler.MountRoutes(r)
		}
		if params.ProcurementHandler != nil {
			params.ProcurementHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
