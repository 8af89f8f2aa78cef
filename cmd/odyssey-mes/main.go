package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-mes/internal/app"
	"github.com/odyssey-erp/odyssey-mes/internal/auth"
	"github.com/odyssey-erp/odyssey-mes/internal/observability"
	"github.com/odyssey-erp/odyssey-mes/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-mes/internal/procurement"
	"github.com/odyssey-erp/odyssey-mes/internal/production/consumption"
	"github.com/odyssey-erp/odyssey-mes/internal/production/dashboard"
	"github.com/odyssey-erp/odyssey-mes/internal/production/outputs"
	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-mes/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
	"github.com/odyssey-erp/odyssey-mes/internal/technical/boms"
	"github.com/odyssey-erp/odyssey-mes/internal/technical/routings"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/genealogy"
	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
	"github.com/odyssey-erp/odyssey-mes/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	domainMetrics := metrics.DomainMetrics()
	auditLogger := shared.NewAuditLogger()
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	locker := lock.New(redisClient, cfg.LPLockTTL)

	rbacMiddleware := rbac.Middleware{Service: rbac.NewService(dbpool), Logger: logger}
	authenticator := auth.Authenticator{
		Sessions: auth.NewSessionStore(redisClient, cfg.SessionPrefix, cfg.SessionTTL),
		APIKeys:  auth.NewAPIKeyStore(dbpool),
		Logger:   logger,
	}

	statusService := statuses.NewService(statuses.NewRepository(dbpool), statuses.NewEngine(nil), domainMetrics)

	dashboardService := dashboard.NewService(
		dashboard.NewRepository(dbpool),
		cache.NewVersioned(redisClient, "mes:dashboard", cfg.DashboardCacheTTL),
		cfg.ExpiryWarningDays,
		logger,
	)

	lpService := licenseplates.NewService(licenseplates.NewRepository(dbpool, auditLogger), statusService, locker, domainMetrics)
	genealogyTracer := genealogy.NewTracer(genealogy.NewRepository(dbpool))
	woService := workorders.NewService(workorders.NewRepository(dbpool, auditLogger), statusService)
	consumptionService := consumption.NewService(consumption.NewRepository(dbpool, auditLogger), locker, domainMetrics, dashboardService, logger)
	outputService := outputs.NewService(outputs.NewRepository(dbpool, auditLogger), domainMetrics, dashboardService, logger)
	bomService := boms.NewService(boms.NewRepository(dbpool, auditLogger))
	routingService := routings.NewService(routings.NewRepository(dbpool))
	orderService := orders.NewService(orders.NewRepository(dbpool, auditLogger), logger)
	customerService := customers.NewService(customers.NewRepository(dbpool, auditLogger))
	procurementService := procurement.NewService(procurement.NewRepository(dbpool, auditLogger), statusService, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Metrics:             metrics,
		Authenticator:       authenticator,
		LicensePlateHandler: licenseplates.NewHandler(logger, lpService, idempotencyStore, rbacMiddleware),
		GenealogyHandler:    genealogy.NewHandler(logger, genealogyTracer, rbacMiddleware),
		WorkOrderHandler:    workorders.NewHandler(logger, woService, rbacMiddleware),
		ConsumptionHandler:  consumption.NewHandler(logger, consumptionService, idempotencyStore, rbacMiddleware),
		OutputHandler:       outputs.NewHandler(logger, outputService, idempotencyStore, rbacMiddleware),
		DashboardHandler:    dashboard.NewHandler(logger, dashboardService, rbacMiddleware),
		BOMHandler:          boms.NewHandler(logger, bomService, rbacMiddleware),
		RoutingHandler:      routings.NewHandler(logger, routingService, rbacMiddleware),
		StatusHandler:       statuses.NewHandler(logger, statusService, rbacMiddleware),
		SalesOrderHandler:   orders.NewHandler(logger, orderService, idempotencyStore, rbacMiddleware),
		CustomerHandler:     customers.NewHandler(logger, customerService, rbacMiddleware),
		ProcurementHandler:  procurement.NewHandler(logger, procurementService, idempotencyStore, rbacMiddleware),
		JobHandler:          jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
