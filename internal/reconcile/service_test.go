package reconcile

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian-erp/internal/ledger"
	"github.com/meridian-retail/meridian-erp/internal/stock"
)

type fakeLedger struct {
	entries map[string][]ledger.Entry
	recent  []ledger.Entry
	loads   atomic.Int64
}

func (f *fakeLedger) Entries(_ context.Context, key ledger.ProductKey, agencyID string, _ *time.Time) ([]ledger.Entry, error) {
	f.loads.Add(1)
	return f.entries[agencyID+"/"+key.String()], nil
}

func (f *fakeLedger) RecentByAgency(_ context.Context, _ string, limit int) ([]ledger.Entry, error) {
	if limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakeLedger) KeysByAgency(_ context.Context, agencyID string) ([]ledger.ProductKey, error) {
	var keys []ledger.ProductKey
	for stored := range f.entries {
		agency, raw, _ := strings.Cut(stored, "/")
		if agency != agencyID {
			continue
		}
		parts := strings.SplitN(raw, "|", 3)
		keys = append(keys, ledger.ProductKey{ProductID: parts[0], Color: parts[1], Size: parts[2]})
	}
	return keys, nil
}

type fakeStock struct {
	items []stock.Item
}

func (f *fakeStock) ListByAgency(_ context.Context, agencyID string) ([]stock.Item, error) {
	var out []stock.Item
	for _, item := range f.items {
		if item.AgencyID == agencyID {
			out = append(out, item)
		}
	}
	return out, nil
}

func entryKey(key ledger.ProductKey, agencyID string) string {
	return agencyID + "/" + key.String()
}

func TestSummaryFlagsVariance(t *testing.T) {
	keyA := ledger.ProductKey{ProductID: "P-A", Color: "RED", Size: "M"}
	keyB := ledger.ProductKey{ProductID: "P-B"}
	led := &fakeLedger{entries: map[string][]ledger.Entry{
		entryKey(keyA, "AG-1"): {
			{Type: ledger.TypeExternalReceipt, Quantity: 10},
			{Type: ledger.TypeInternalSale, Quantity: -4},
		},
		entryKey(keyB, "AG-1"): {
			{Type: ledger.TypeExternalReceipt, Quantity: 5},
		},
	}}
	stk := &fakeStock{items: []stock.Item{
		{ProductKey: keyA, AgencyID: "AG-1", CurrentStock: 21},
		{ProductKey: keyB, AgencyID: "AG-1", CurrentStock: 4},
	}}

	svc := NewService(led, stk, nil, 0)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }

	summary, err := svc.SummaryByAgency(context.Background(), "AG-1")
	require.NoError(t, err)
	require.Len(t, summary.Rows, 2)
	require.Equal(t, int64(DefaultTolerance), summary.Tolerance)

	rowA := summary.Rows[0]
	require.Equal(t, "P-A", rowA.ProductID)
	require.Equal(t, int64(10), rowA.StockIn)
	require.Equal(t, int64(4), rowA.StockOut)
	require.Equal(t, int64(6), rowA.CalculatedBalance)
	require.Equal(t, int64(15), rowA.Variance)
	require.True(t, rowA.NeedsAttention)

	// |variance| == tolerance does not trip the flag.
	rowB := summary.Rows[1]
	require.Equal(t, int64(-1), rowB.Variance)
	require.False(t, rowB.NeedsAttention)

	require.Equal(t, 1, summary.AttentionCount)
}

func TestSummaryIncludesLedgerOnlyKeys(t *testing.T) {
	key := ledger.ProductKey{ProductID: "P-ghost"}
	led := &fakeLedger{entries: map[string][]ledger.Entry{
		entryKey(key, "AG-1"): {{Type: ledger.TypeExternalReceipt, Quantity: 3}},
	}}
	svc := NewService(led, &fakeStock{}, nil, 0)

	summary, err := svc.SummaryByAgency(context.Background(), "AG-1")
	require.NoError(t, err)
	require.Len(t, summary.Rows, 1)
	// No counter row: authoritative stock reads zero, variance is negative.
	require.Equal(t, int64(0), summary.Rows[0].CurrentStock)
	require.Equal(t, int64(3), summary.Rows[0].CalculatedBalance)
	require.Equal(t, int64(-3), summary.Rows[0].Variance)
	require.True(t, summary.Rows[0].NeedsAttention)
}

func TestSummaryCustomTolerance(t *testing.T) {
	key := ledger.ProductKey{ProductID: "P-A"}
	led := &fakeLedger{entries: map[string][]ledger.Entry{
		entryKey(key, "AG-1"): {{Type: ledger.TypeExternalReceipt, Quantity: 10}},
	}}
	stk := &fakeStock{items: []stock.Item{{ProductKey: key, AgencyID: "AG-1", CurrentStock: 13}}}

	svc := NewService(led, stk, nil, 5)
	summary, err := svc.SummaryByAgency(context.Background(), "AG-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), summary.Rows[0].Variance)
	require.False(t, summary.Rows[0].NeedsAttention)
}

func TestSummaryServedFromCacheUntilBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	key := ledger.ProductKey{ProductID: "P-A"}
	led := &fakeLedger{entries: map[string][]ledger.Entry{
		entryKey(key, "AG-1"): {{Type: ledger.TypeExternalReceipt, Quantity: 2}},
	}}
	stk := &fakeStock{items: []stock.Item{{ProductKey: key, AgencyID: "AG-1", CurrentStock: 2}}}

	svc := NewService(led, stk, NewCache(client, time.Minute), 0)
	ctx := context.Background()

	first, err := svc.SummaryByAgency(ctx, "AG-1")
	require.NoError(t, err)
	loadsAfterFirst := led.loads.Load()

	second, err := svc.SummaryByAgency(ctx, "AG-1")
	require.NoError(t, err)
	require.Equal(t, first.Rows, second.Rows)
	require.Equal(t, loadsAfterFirst, led.loads.Load(), "second read must hit the cache")

	// Rebuild bumps the version and recomputes.
	_, err = svc.Rebuild(ctx, "AG-1")
	require.NoError(t, err)
	require.Greater(t, led.loads.Load(), loadsAfterFirst)
}

func TestHistoryAnnotatesActors(t *testing.T) {
	led := &fakeLedger{recent: []ledger.Entry{
		{ID: 3, ProductKey: ledger.ProductKey{ProductID: "P-A"}, Type: ledger.TypeAdjustment, Quantity: 5, ReferenceName: "Rae Reviewer", SourceSystem: "adjustments", OccurredAt: time.Now()},
		{ID: 2, ProductKey: ledger.ProductKey{ProductID: "P-A"}, Type: ledger.TypeInternalSale, Quantity: -1, ReferenceName: "POS AG-1", OccurredAt: time.Now()},
	}}
	svc := NewService(led, &fakeStock{}, nil, 0)

	entries, err := svc.History(context.Background(), "AG-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(3), entries[0].ID)
	require.Equal(t, "Rae Reviewer", entries[0].ActorName)
	require.Equal(t, "ADJUSTMENT", entries[0].Type)
}

func TestWriteSummaryCSV(t *testing.T) {
	summary := Summary{
		AgencyID:  "AG-1",
		Tolerance: 1,
		Rows: []Row{
			{ProductID: "P-A", Color: "RED", Size: "M", CurrentStock: 21, StockIn: 10, StockOut: 4, CalculatedBalance: 6, Variance: 15, NeedsAttention: true},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSummaryCSV(&buf, summary))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "Needs Attention")
	require.Equal(t, "P-A,RED,M,21,10,4,6,15,true", lines[1])
}
