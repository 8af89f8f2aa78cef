package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-mes/internal/jobs"
)

// OrgSource lists the organisations a fan-out job visits.
type OrgSource interface {
	ActiveOrgs(ctx context.Context) ([]uuid.UUID, error)
}

// DashboardCache is the slice of the dashboard service the jobs drive.
type DashboardCache interface {
	Warm(ctx context.Context, orgID uuid.UUID) error
	Invalidate(ctx context.Context, orgID uuid.UUID) error
}

// ExpiredCounter counts expired usable plates of one organisation.
type ExpiredCounter interface {
	CountExpired(ctx context.Context, orgID uuid.UUID, now time.Time) (int, error)
}

// ProductionJobs runs the dashboard warmup and the LP expiry scan.
type ProductionJobs struct {
	Orgs      OrgSource
	Dashboard DashboardCache
	Expired   ExpiredCounter
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewProductionJobs wires the production job handlers.
func NewProductionJobs(orgs OrgSource, dashboard DashboardCache, expired ExpiredCounter, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProductionJobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductionJobs{
		Orgs:      orgs,
		Dashboard: dashboard,
		Expired:   expired,
		Logger:    logger,
		Metrics:   metrics,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

func (j *ProductionJobs) targets(ctx context.Context, t *asynq.Task) ([]uuid.UUID, error) {
	var payload OrgPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
	}
	if payload.OrgID != nil {
		return []uuid.UUID{*payload.OrgID}, nil
	}
	return j.Orgs.ActiveOrgs(ctx)
}

// HandleDashboardWarmup rebuilds the cached KPIs and alerts of each organisation.
func (j *ProductionJobs) HandleDashboardWarmup(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Metrics.Track(TaskDashboardWarmup)
	defer func() { err = tracker.End(err) }()

	orgs, err := j.targets(ctx, t)
	if err != nil {
		return err
	}
	var errs []error
	warmed := 0
	for _, org := range orgs {
		orgCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		werr := j.Dashboard.Warm(orgCtx, org)
		cancel()
		if werr != nil {
			j.Logger.Error("dashboard warmup", slog.String("org_id", org.String()), slog.Any("error", werr))
			errs = append(errs, werr)
			continue
		}
		warmed++
	}
	j.Metrics.AddItems(TaskDashboardWarmup, warmed)
	j.Logger.Info("dashboard warmup finished", slog.Int("orgs", len(orgs)), slog.Int("warmed", warmed))
	return errors.Join(errs...)
}

// HandleLPExpiryScan counts expired usable plates per organisation and drops
// the dashboard cache of every organisation that has some, so the expired
// alerts appear without waiting for the cache TTL.
func (j *ProductionJobs) HandleLPExpiryScan(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Metrics.Track(TaskLPExpiryScan)
	defer func() { err = tracker.End(err) }()

	orgs, err := j.targets(ctx, t)
	if err != nil {
		return err
	}
	now := j.clock()
	total := 0
	for _, org := range orgs {
		n, err := j.Expired.CountExpired(ctx, org, now)
		if err != nil {
			return fmt.Errorf("count expired plates of %s: %w", org, err)
		}
		if n == 0 {
			continue
		}
		total += n
		j.Logger.Warn("expired license plates", slog.String("org_id", org.String()), slog.Int("count", n))
		if err := j.Dashboard.Invalidate(ctx, org); err != nil {
			j.Logger.Warn("invalidate dashboard", slog.String("org_id", org.String()), slog.Any("error", err))
		}
	}
	j.Metrics.AddItems(TaskLPExpiryScan, total)
	return nil
}
