package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-retail/meridian-erp/internal/jobs"
	"github.com/meridian-retail/meridian-erp/internal/reconcile"
)

// SummaryWarmupJob precomputes reconciliation summaries so the first
// operator of the day reads from cache. It also feeds the flagged-variance
// counter that backs alerting.
type SummaryWarmupJob struct {
	Reconcile *reconcile.Service
	Agencies  []string
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewSummaryWarmupJob wires dependencies for the warmup handler.
func NewSummaryWarmupJob(svc *reconcile.Service, agencies []string, logger *slog.Logger, metrics *jobmetrics.Metrics) *SummaryWarmupJob {
	return &SummaryWarmupJob{Reconcile: svc, Agencies: agencies, Logger: logger, Metrics: metrics}
}

// Handle processes warmup tasks.
func (j *SummaryWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconcile == nil {
		return errors.New("summary warmup: handler not configured")
	}
	var payload ReconcileWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	agencies := payload.AgencyIDs
	if len(agencies) == 0 {
		agencies = j.Agencies
	}
	if len(agencies) == 0 {
		j.logger().Info("summary warmup: no agencies configured")
		return nil
	}

	tracker := j.Metrics.Track(TaskReconcileWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	for i, agencyID := range agencies {
		var (
			summary reconcile.Summary
			err     error
		)
		// Bump once, on the first agency; the rest warm the new version.
		if i == 0 {
			summary, err = j.Reconcile.Rebuild(ctx, agencyID)
		} else {
			summary, err = j.Reconcile.SummaryByAgency(ctx, agencyID)
		}
		if err != nil {
			resultErr = err
			return resultErr
		}
		j.Metrics.AddFlaggedVariances(agencyID, summary.AttentionCount)
		j.logger().Info("summary warmed",
			slog.String("agency_id", agencyID),
			slog.Int("rows", len(summary.Rows)),
			slog.Int("attention", summary.AttentionCount))
	}
	return nil
}

func (j *SummaryWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
