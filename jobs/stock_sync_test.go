package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian-erp/internal/ledger"
)

type fakeLedgerRepo struct {
	entries []ledger.Entry
	nextID  int64
}

func (f *fakeLedgerRepo) Insert(_ context.Context, entry ledger.Entry) (ledger.Entry, error) {
	f.nextID++
	entry.ID = f.nextID
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeLedgerRepo) ListByProductAgency(context.Context, ledger.ProductKey, string, *time.Time) ([]ledger.Entry, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) StreamByProductAgency(context.Context, ledger.ProductKey, string, *time.Time, func(ledger.Entry) error) error {
	return nil
}

func (f *fakeLedgerRepo) RecentByAgency(context.Context, string, int) ([]ledger.Entry, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) ListKeysByAgency(context.Context, string) ([]ledger.ProductKey, error) {
	return nil, nil
}

func TestStockSyncSkipsMalformedRows(t *testing.T) {
	repo := &fakeLedgerRepo{}
	job := NewStockSyncJob(ledger.NewService(repo, nil, nil), nil, nil)

	task, err := NewStockSyncTask(StockSyncPayload{
		SourceSystem: "pos",
		Rows: []SyncRow{
			{ProductID: "P-1", AgencyID: "AG-1", Type: "INTERNAL_SALE", Quantity: -2, SourceRef: "pos-1"},
			{ProductID: "P-2", AgencyID: "AG-1", Type: "INTERNAL_SALE", Quantity: 0, SourceRef: "pos-2"},
			{ProductID: "P-3", AgencyID: "AG-1", Type: "NOT_A_TYPE", Quantity: 4, SourceRef: "pos-3"},
			{ProductID: "P-4", AgencyID: "AG-1", Type: "EXTERNAL_RECEIPT", Quantity: 7, SourceRef: "pos-4"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, repo.entries, 2)
	require.Equal(t, "pos", repo.entries[0].SourceSystem)
	require.Equal(t, "pos-4", repo.entries[1].SourceRef)
}

func TestStockSyncRejectsUnnamedSource(t *testing.T) {
	repo := &fakeLedgerRepo{}
	job := NewStockSyncJob(ledger.NewService(repo, nil, nil), nil, nil)

	task, err := NewStockSyncTask(StockSyncPayload{Rows: []SyncRow{
		{ProductID: "P-1", AgencyID: "AG-1", Type: "EXTERNAL_RECEIPT", Quantity: 1, SourceRef: "x-1"},
	}})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.Empty(t, repo.entries)
}
