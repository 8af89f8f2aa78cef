package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/production/workorders"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// exportLimit bounds the rows of one export.
const exportLimit = 1000

// Service builds and caches dashboard read models.
type Service struct {
	store      Store
	cache      *cache.Versioned
	expiryDays int
	logger     *slog.Logger
	group      singleflight.Group
	now        func() time.Time
}

// NewService wires Service. A nil cache disables caching.
func NewService(store Store, c *cache.Versioned, expiryDays int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if expiryDays <= 0 {
		expiryDays = 7
	}
	return &Service{store: store, cache: c, expiryDays: expiryDays, logger: logger, now: time.Now}
}

// Invalidate drops every cached view of orgID.
func (s *Service) Invalidate(ctx context.Context, orgID uuid.UUID) error {
	return s.cache.Bump(ctx, orgID.String())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// cached serves dest from the versioned cache, collapsing concurrent misses
// for the same key. The shared load outlives a cancelled caller. Redis
// failures fall back to loading directly.
func (s *Service) cached(ctx context.Context, orgID uuid.UUID, dest any, load func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, orgID.String(), parts...)
	if err != nil {
		s.logger.Warn("dashboard cache unavailable", slog.Any("error", err))
		value, err := load(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		var raw json.RawMessage
		err := s.cache.FetchJSON(loadCtx, key, &raw, load)
		return raw, err
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}

// KPIs returns today's production counters.
func (s *Service) KPIs(ctx context.Context, orgID uuid.UUID) (KPIs, error) {
	today := startOfDay(s.now())
	var out KPIs
	err := s.cached(ctx, orgID, &out, func(ctx context.Context) (any, error) {
		return s.buildKPIs(ctx, orgID, today)
	}, "kpis", today.Format(time.DateOnly))
	return out, err
}

func (s *Service) buildKPIs(ctx context.Context, orgID uuid.UUID, today time.Time) (KPIs, error) {
	k := KPIs{GeneratedAt: s.now().UTC()}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		k.InProgress, err = s.store.CountStatus(ctx, orgID, workorders.StatusInProgress)
		return err
	})
	g.Go(func() error {
		var err error
		k.CompletedToday, err = s.store.CompletedSince(ctx, orgID, today)
		return err
	})
	g.Go(func() error {
		var err error
		k.OutputToday, err = s.store.OutputSince(ctx, orgID, today)
		return err
	})
	g.Go(func() error {
		var err error
		k.ConsumptionToday, err = s.store.ConsumptionSince(ctx, orgID, today)
		return err
	})
	g.Go(func() error {
		alerts, err := s.buildAlerts(ctx, orgID)
		k.OpenAlerts = len(alerts.Items)
		return err
	})
	if err := g.Wait(); err != nil {
		return KPIs{}, err
	}
	return k, nil
}

// ActiveWOs returns one page of the work order board.
func (s *Service) ActiveWOs(ctx context.Context, orgID uuid.UUID, page shared.Page) (ActivePage, error) {
	var out ActivePage
	err := s.cached(ctx, orgID, &out, func(ctx context.Context) (any, error) {
		return s.buildActive(ctx, orgID, page)
	}, "active", strconv.Itoa(page.Page), strconv.Itoa(page.Limit))
	return out, err
}

func (s *Service) buildActive(ctx context.Context, orgID uuid.UUID, page shared.Page) (ActivePage, error) {
	orders, total, err := s.store.Active(ctx, orgID, page)
	if err != nil {
		return ActivePage{}, err
	}
	now := s.now().UTC()
	items := make([]ActiveWO, 0, len(orders))
	for _, wo := range orders {
		items = append(items, newActiveWO(wo, now))
	}
	return ActivePage{Items: items, Total: total}, nil
}

// Alerts returns every open alert, critical first.
func (s *Service) Alerts(ctx context.Context, orgID uuid.UUID) (Alerts, error) {
	var out Alerts
	err := s.cached(ctx, orgID, &out, func(ctx context.Context) (any, error) {
		return s.buildAlerts(ctx, orgID)
	}, "alerts", startOfDay(s.now()).Format(time.DateOnly))
	return out, err
}

func (s *Service) buildAlerts(ctx context.Context, orgID uuid.UUID) (Alerts, error) {
	now := s.now().UTC()
	today := startOfDay(now)
	var (
		shortages []Shortage
		watch     []Alert
		overdue   []workorders.WorkOrder
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		shortages, err = s.store.Shortages(ctx, orgID, today)
		return err
	})
	g.Go(func() error {
		plates, err := s.store.Watchlist(ctx, orgID, today.AddDate(0, 0, s.expiryDays))
		for _, lp := range plates {
			watch = append(watch, plateAlerts(lp, now, s.expiryDays)...)
		}
		return err
	})
	g.Go(func() error {
		var err error
		overdue, err = s.store.Overdue(ctx, orgID, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return Alerts{}, err
	}

	out := Alerts{Items: []Alert{}, Counts: map[string]int{}}
	add := func(a Alert) {
		out.Items = append(out.Items, a)
		out.Counts[a.Type]++
	}
	for _, sh := range shortages {
		add(Alert{
			Type:       AlertMaterialShortage,
			Severity:   SeverityCritical,
			EntityType: "work_order",
			EntityID:   sh.WOID,
			Reference:  sh.WONumber,
			Message:    fmt.Sprintf("%s needs %s more, %s available", sh.ProductCode, sh.Remaining, sh.Available),
		})
	}
	for _, a := range watch {
		add(a)
	}
	for _, wo := range overdue {
		add(Alert{
			Type:       AlertWOOverdue,
			Severity:   SeverityWarning,
			EntityType: "work_order",
			EntityID:   wo.ID,
			Reference:  wo.WONumber,
			Message:    fmt.Sprintf("planned end %s passed", wo.PlannedEnd.UTC().Format(time.DateOnly)),
		})
	}
	sortAlerts(out.Items)
	return out, nil
}

// Export renders the work order board as a table.
func (s *Service) Export(ctx context.Context, orgID uuid.UUID) (httpx.Table, error) {
	active, err := s.buildActive(ctx, orgID, shared.Page{Page: 1, Limit: exportLimit})
	if err != nil {
		return httpx.Table{}, err
	}
	table := httpx.Table{Headers: []string{
		"WO Number", "Product", "Status", "Planned Qty", "Produced Qty", "UoM", "Progress %", "Planned End", "Overdue",
	}}
	for _, wo := range active.Items {
		end := ""
		if wo.PlannedEnd != nil {
			end = wo.PlannedEnd.UTC().Format(time.DateOnly)
		}
		table.Rows = append(table.Rows, []string{
			wo.WONumber,
			wo.ProductCode,
			wo.Status,
			wo.PlannedQty.String(),
			wo.ProducedQty.String(),
			wo.UoM,
			wo.ProgressPercent.StringFixed(1),
			end,
			strconv.FormatBool(wo.Overdue),
		})
	}
	return table, nil
}

// ExportFilename names an export taken on day.
func ExportFilename(day time.Time, format string) string {
	return fmt.Sprintf("production-dashboard-%s.%s", day.UTC().Format(time.DateOnly), format)
}

// Warm rebuilds the cached KPIs and alerts of orgID.
func (s *Service) Warm(ctx context.Context, orgID uuid.UUID) error {
	if err := s.Invalidate(ctx, orgID); err != nil {
		return err
	}
	if _, err := s.KPIs(ctx, orgID); err != nil {
		return err
	}
	_, err := s.Alerts(ctx, orgID)
	return err
}
