// Package jobs runs background work on Asynq: ingestion of upstream
// transaction feeds and reconciliation summary warmup.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockSync ingests a batch of upstream transaction rows into the
	// ledger.
	TaskStockSync = "sync:ingest"
	// TaskReconcileWarmup precomputes per-agency reconciliation summaries.
	TaskReconcileWarmup = "reconcile:warmup"
)

// SyncRow is one upstream transaction to append. SourceRef deduplicates
// replays; upstream feeds promise at-least-once delivery only.
type SyncRow struct {
	ProductID     string    `json:"product_id"`
	Color         string    `json:"color,omitempty"`
	Size          string    `json:"size,omitempty"`
	AgencyID      string    `json:"agency_id"`
	Type          string    `json:"transaction_type"`
	Quantity      int64     `json:"quantity"`
	ReferenceName string    `json:"reference_name,omitempty"`
	SourceRef     string    `json:"source_ref"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// StockSyncPayload carries one ingestion batch from a named source system.
type StockSyncPayload struct {
	SourceSystem string    `json:"source_system"`
	Rows         []SyncRow `json:"rows"`
}

// NewStockSyncTask constructs an ingestion task.
func NewStockSyncTask(payload StockSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockSync, data), nil
}

// ReconcileWarmupPayload names the agencies to precompute. Empty means the
// configured warmup set.
type ReconcileWarmupPayload struct {
	AgencyIDs []string `json:"agency_ids,omitempty"`
}

// NewReconcileWarmupTask constructs a warmup task.
func NewReconcileWarmupTask(payload ReconcileWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileWarmup, data), nil
}
