package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/spendlens/spendlens/internal/analytics"
	jobmetrics "github.com/spendlens/spendlens/internal/jobs"
	"github.com/spendlens/spendlens/internal/tenancy"
)

// warmupParallelism bounds concurrent per-organization warmups.
const warmupParallelism = 4

// AnalyticsWarmupJob precomputes the unfiltered analytics views so the first
// dashboard request after an ingest hits a hot cache.
type AnalyticsWarmupJob struct {
	Analytics *analytics.Service
	Tenants   *tenancy.Repository
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewAnalyticsWarmupJob wires dependencies for the warmup handler.
func NewAnalyticsWarmupJob(analyticsSvc *analytics.Service, tenants *tenancy.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsWarmupJob {
	return &AnalyticsWarmupJob{Analytics: analyticsSvc, Tenants: tenants, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAnalyticsWarmup tasks.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	var payload AnalyticsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskAnalyticsWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	orgIDs := payload.OrganizationIDs
	if len(orgIDs) == 0 {
		orgs, err := j.Tenants.ListActive(ctx)
		if err != nil {
			return err
		}
		for _, org := range orgs {
			orgIDs = append(orgIDs, org.ID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupParallelism)
	for _, orgID := range orgIDs {
		g.Go(func() error {
			if err := j.Analytics.WarmOrg(gctx, orgID); err != nil {
				// One cold organization should not abort the sweep.
				j.Logger.Warn("analytics warmup failed", "org_id", orgID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	j.Logger.Info("analytics warmup finished", "organizations", len(orgIDs))
	return nil
}
