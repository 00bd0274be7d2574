package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-retail/meridian-erp/internal/jobs"
	"github.com/meridian-retail/meridian-erp/internal/ledger"
	"github.com/meridian-retail/meridian-erp/internal/shared"
)

// appendMetrics is the slice of the observability surface this job feeds.
type appendMetrics interface {
	ObserveLedgerAppend(txType string, err error)
}

// StockSyncJob ingests upstream transaction batches into the ledger.
// Malformed rows and replayed rows are logged and skipped; storage failures
// abort the task so Asynq retries the batch (replays are absorbed by the
// idempotency guard on the next attempt).
type StockSyncJob struct {
	Ledger  *ledger.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Appends appendMetrics
}

// NewStockSyncJob wires dependencies for the ingestion handler.
func NewStockSyncJob(ledgerSvc *ledger.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockSyncJob {
	return &StockSyncJob{Ledger: ledgerSvc, Logger: logger, Metrics: metrics}
}

// Handle processes one ingestion batch.
func (j *StockSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("stock sync: handler not configured")
	}
	var payload StockSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.SourceSystem == "" {
		return fmt.Errorf("stock sync: source system missing: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskStockSync)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("source", payload.SourceSystem))
	appended, skipped := 0, 0
	for _, row := range payload.Rows {
		_, err := j.Ledger.Append(ctx, ledger.AppendInput{
			ProductKey:    ledger.ProductKey{ProductID: row.ProductID, Color: row.Color, Size: row.Size},
			AgencyID:      row.AgencyID,
			Type:          ledger.TransactionType(row.Type),
			Quantity:      row.Quantity,
			ReferenceName: row.ReferenceName,
			SourceSystem:  payload.SourceSystem,
			SourceRef:     row.SourceRef,
			OccurredAt:    row.OccurredAt,
		})
		if j.Appends != nil {
			j.Appends.ObserveLedgerAppend(row.Type, err)
		}
		switch {
		case err == nil:
			appended++
		case errors.Is(err, shared.ErrIdempotencyConflict):
			// Replayed row from an at-least-once feed.
			skipped++
		case errors.Is(err, ledger.ErrZeroQuantity),
			errors.Is(err, ledger.ErrUnknownType),
			errors.Is(err, ledger.ErrMissingIdentity):
			skipped++
			logger.Warn("dropping malformed sync row",
				slog.String("source_ref", row.SourceRef),
				slog.Any("error", err))
		default:
			resultErr = fmt.Errorf("stock sync: append %s: %w", row.SourceRef, err)
			return resultErr
		}
	}
	logger.Info("sync batch ingested",
		slog.Int("appended", appended),
		slog.Int("skipped", skipped))
	return nil
}

func (j *StockSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
