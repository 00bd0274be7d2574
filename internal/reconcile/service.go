// Package reconcile builds read-only reconciliation reports: per-agency
// summaries of authoritative stock against ledger-derived balances, and
// recent movement history for review screens.
package reconcile

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-retail/meridian-erp/internal/ledger"
	"github.com/meridian-retail/meridian-erp/internal/stock"
)

// DefaultTolerance is the variance magnitude an operator is expected to
// ignore. Anything strictly above it is flagged.
const DefaultTolerance = 1

// summaryWorkers caps the parallel per-key folds of one summary build.
const summaryWorkers = 8

// LedgerPort is the slice of the ledger surface the reporter reads.
type LedgerPort interface {
	Entries(ctx context.Context, key ledger.ProductKey, agencyID string, since *time.Time) ([]ledger.Entry, error)
	RecentByAgency(ctx context.Context, agencyID string, limit int) ([]ledger.Entry, error)
	KeysByAgency(ctx context.Context, agencyID string) ([]ledger.ProductKey, error)
}

// StockPort lists authoritative counters per agency.
type StockPort interface {
	ListByAgency(ctx context.Context, agencyID string) ([]stock.Item, error)
}

// Row is one product key in a summary.
type Row struct {
	ProductID         string `json:"product_id"`
	Color             string `json:"color,omitempty"`
	Size              string `json:"size,omitempty"`
	CurrentStock      int64  `json:"current_stock"`
	StockIn           int64  `json:"stock_in"`
	StockOut          int64  `json:"stock_out"`
	CalculatedBalance int64  `json:"calculated_balance"`
	Variance          int64  `json:"variance"`
	NeedsAttention    bool   `json:"needs_attention"`
}

// Summary is the reconciliation report for one agency.
type Summary struct {
	AgencyID       string    `json:"agency_id"`
	Tolerance      int64     `json:"tolerance"`
	GeneratedAt    time.Time `json:"generated_at"`
	Rows           []Row     `json:"rows"`
	AttentionCount int       `json:"attention_count"`
}

// HistoryEntry is a ledger movement annotated for display.
type HistoryEntry struct {
	ID           int64     `json:"id"`
	ProductID    string    `json:"product_id"`
	Color        string    `json:"color,omitempty"`
	Size         string    `json:"size,omitempty"`
	Type         string    `json:"transaction_type"`
	Quantity     int64     `json:"quantity"`
	ActorName    string    `json:"actor_name,omitempty"`
	SourceSystem string    `json:"source_system,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Service computes summaries and history. It owns no state beyond its
// collaborators and never writes.
type Service struct {
	ledger    LedgerPort
	stock     StockPort
	agg       *stock.Aggregator
	cache     *Cache
	tolerance int64
	now       func() time.Time
}

// NewService builds Service. A non-positive tolerance falls back to the
// default.
func NewService(ledgerPort LedgerPort, stockPort StockPort, cache *Cache, tolerance int64) *Service {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Service{
		ledger:    ledgerPort,
		stock:     stockPort,
		agg:       stock.NewAggregator(stock.DefaultClassification()),
		cache:     cache,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// SummaryByAgency returns the reconciliation summary for an agency, served
// from cache when available. The key set is the union of counters and keys
// with ledger activity, so items that only ever appeared on one side still
// show up.
func (s *Service) SummaryByAgency(ctx context.Context, agencyID string) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, keySummary(agencyID)...)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		return s.buildSummary(ctx, agencyID)
	})
	return summary, err
}

// Rebuild computes a fresh summary and stores it under a bumped cache
// version. Used by the warmup job after ingestion runs.
func (s *Service) Rebuild(ctx context.Context, agencyID string) (Summary, error) {
	if err := s.cache.Bump(ctx); err != nil {
		return Summary{}, err
	}
	return s.SummaryByAgency(ctx, agencyID)
}

func (s *Service) buildSummary(ctx context.Context, agencyID string) (Summary, error) {
	items, err := s.stock.ListByAgency(ctx, agencyID)
	if err != nil {
		return Summary{}, err
	}
	ledgerKeys, err := s.ledger.KeysByAgency(ctx, agencyID)
	if err != nil {
		return Summary{}, err
	}

	counters := make(map[ledger.ProductKey]int64, len(items))
	for _, item := range items {
		counters[item.ProductKey] = item.CurrentStock
	}
	seen := make(map[ledger.ProductKey]bool, len(counters)+len(ledgerKeys))
	keys := make([]ledger.ProductKey, 0, len(counters)+len(ledgerKeys))
	for _, item := range items {
		if !seen[item.ProductKey] {
			seen[item.ProductKey] = true
			keys = append(keys, item.ProductKey)
		}
	}
	for _, key := range ledgerKeys {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	rows := make([]Row, len(keys))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(summaryWorkers)
	for i, key := range keys {
		i, key := i, key
		group.Go(func() error {
			entries, err := s.ledger.Entries(groupCtx, key, agencyID, nil)
			if err != nil {
				return err
			}
			aggregate := s.agg.Fold(key, agencyID, counters[key], entries)
			rows[i] = s.toRow(aggregate)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Summary{}, err
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProductID != rows[j].ProductID {
			return rows[i].ProductID < rows[j].ProductID
		}
		if rows[i].Color != rows[j].Color {
			return rows[i].Color < rows[j].Color
		}
		return rows[i].Size < rows[j].Size
	})

	summary := Summary{
		AgencyID:    agencyID,
		Tolerance:   s.tolerance,
		GeneratedAt: s.now().UTC(),
		Rows:        rows,
	}
	for _, row := range rows {
		if row.NeedsAttention {
			summary.AttentionCount++
		}
	}
	return summary, nil
}

func (s *Service) toRow(a stock.Aggregate) Row {
	variance := a.Variance
	if variance < 0 {
		variance = -variance
	}
	return Row{
		ProductID:         a.ProductKey.ProductID,
		Color:             a.ProductKey.Color,
		Size:              a.ProductKey.Size,
		CurrentStock:      a.CurrentStock,
		StockIn:           a.StockIn,
		StockOut:          a.StockOut,
		CalculatedBalance: a.CalculatedBalance,
		Variance:          a.Variance,
		NeedsAttention:    variance > s.tolerance,
	}
}

// History returns the most recent movements for an agency, newest first,
// annotated with the acting name recorded on each entry.
func (s *Service) History(ctx context.Context, agencyID string, limit int) ([]HistoryEntry, error) {
	entries, err := s.ledger.RecentByAgency(ctx, agencyID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, HistoryEntry{
			ID:           entry.ID,
			ProductID:    entry.ProductKey.ProductID,
			Color:        entry.ProductKey.Color,
			Size:         entry.ProductKey.Size,
			Type:         string(entry.Type),
			Quantity:     entry.Quantity,
			ActorName:    entry.ReferenceName,
			SourceSystem: entry.SourceSystem,
			OccurredAt:   entry.OccurredAt,
		})
	}
	return out, nil
}
