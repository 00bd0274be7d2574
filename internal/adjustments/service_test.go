package adjustments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian-erp/internal/ledger"
	"github.com/meridian-retail/meridian-erp/internal/shared"
	"github.com/meridian-retail/meridian-erp/internal/stock"
)

type memoryRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*Request
	order    []uuid.UUID
	stocks   map[string]int64
	entries  []ledger.Entry
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		requests: make(map[uuid.UUID]*Request),
		stocks:   make(map[string]int64),
	}
}

func stockKey(key ledger.ProductKey, agencyID string) string {
	return agencyID + "/" + key.String()
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) InsertRequest(_ context.Context, request Request) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := request
	m.requests[request.ID] = &copied
	m.order = append(m.order, request.ID)
	return request, nil
}

func (m *memoryRepo) GetRequest(_ context.Context, id uuid.UUID) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[id]
	if !ok {
		return Request{}, fmt.Errorf("request %s: %w", id, shared.ErrNotFound)
	}
	return *request, nil
}

func (m *memoryRepo) ListRequests(_ context.Context, filter ListFilter) ([]Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, id := range m.order {
		request := m.requests[id]
		if request.AgencyID != filter.AgencyID {
			continue
		}
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		out = append(out, *request)
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListByBatch(_ context.Context, batchID uuid.UUID) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, id := range m.order {
		if m.requests[id].BatchID == batchID {
			out = append(out, *m.requests[id])
		}
	}
	return out, nil
}

func (m *memoryRepo) setStock(key ledger.ProductKey, agencyID string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[stockKey(key, agencyID)] = value
}

func (m *memoryRepo) ledgerLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GetRequestForUpdate(_ context.Context, id uuid.UUID) (Request, error) {
	request, ok := t.repo.requests[id]
	if !ok {
		return Request{}, fmt.Errorf("request %s: %w", id, shared.ErrNotFound)
	}
	return *request, nil
}

func (t *memoryTx) MarkReviewed(_ context.Context, id uuid.UUID, status Status, reviewerID, reviewerName, notes string, at time.Time) error {
	request, ok := t.repo.requests[id]
	if !ok {
		return fmt.Errorf("request %s: %w", id, shared.ErrNotFound)
	}
	if request.Status != StatusPending {
		return fmt.Errorf("request %s: %w", id, shared.ErrAlreadyReviewed)
	}
	request.Status = status
	request.ReviewedBy = reviewerID
	request.ReviewerName = reviewerName
	request.ReviewNotes = notes
	request.ReviewedAt = &at
	return nil
}

func (t *memoryTx) GetStockForUpdate(_ context.Context, key ledger.ProductKey, agencyID string) (int64, error) {
	return t.repo.stocks[stockKey(key, agencyID)], nil
}

func (t *memoryTx) SetStock(_ context.Context, key ledger.ProductKey, agencyID string, value int64, _ time.Time) error {
	t.repo.stocks[stockKey(key, agencyID)] = value
	return nil
}

func (t *memoryTx) InsertLedgerEntry(_ context.Context, entry ledger.Entry) (int64, error) {
	t.repo.nextID++
	entry.ID = t.repo.nextID
	t.repo.entries = append(t.repo.entries, entry)
	return entry.ID, nil
}

// memoryStock serves submission-time reads from the same counters the tx
// fake mutates.
type memoryStock struct {
	repo *memoryRepo
}

func (m *memoryStock) GetItem(_ context.Context, key ledger.ProductKey, agencyID string) (stock.Item, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	value, ok := m.repo.stocks[stockKey(key, agencyID)]
	if !ok {
		return stock.Item{ProductKey: key, AgencyID: agencyID}, stock.ErrItemNotFound
	}
	return stock.Item{ProductKey: key, AgencyID: agencyID, CurrentStock: value}, nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, &memoryStock{repo: repo}, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return svc, repo
}

var (
	clerk    = shared.Actor{UserID: "u-clerk", DisplayName: "Dana Clerk", Role: shared.RoleClerk, AgencyID: "AG-1"}
	reviewer = shared.Actor{UserID: "u-rev", DisplayName: "Rae Reviewer", Role: shared.RoleReviewer, AgencyID: "AG-1"}
)

func TestSubmitSingleValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	key := ledger.ProductKey{ProductID: "P-1", Color: "RED", Size: "M"}

	cases := []struct {
		name  string
		input SubmitInput
	}{
		{"missing product key", SubmitInput{AgencyID: "AG-1", TargetStock: 5, Reason: ReasonRecount, Justification: "count"}},
		{"missing agency", SubmitInput{ProductKey: key, TargetStock: 5, Reason: ReasonRecount, Justification: "count"}},
		{"negative target", SubmitInput{ProductKey: key, AgencyID: "AG-1", TargetStock: -1, Reason: ReasonRecount, Justification: "count"}},
		{"empty reason", SubmitInput{ProductKey: key, AgencyID: "AG-1", TargetStock: 5, Justification: "count"}},
		{"unknown reason", SubmitInput{ProductKey: key, AgencyID: "AG-1", TargetStock: 5, Reason: "GUESS", Justification: "count"}},
		{"blank justification", SubmitInput{ProductKey: key, AgencyID: "AG-1", TargetStock: 5, Reason: ReasonRecount, Justification: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitSingle(ctx, clerk, tc.input)
			require.True(t, shared.IsValidation(err), "want validation error, got %v", err)
		})
	}
}

func TestSubmitSingleRejectsNoOp(t *testing.T) {
	svc, repo := newTestService()
	key := ledger.ProductKey{ProductID: "P-1"}
	repo.setStock(key, "AG-1", 12)

	_, err := svc.SubmitSingle(context.Background(), clerk, SubmitInput{
		ProductKey:    key,
		AgencyID:      "AG-1",
		TargetStock:   12,
		Reason:        ReasonRecount,
		Justification: "same as counted",
	})
	require.ErrorIs(t, err, shared.ErrNoOp)
	require.Empty(t, repo.requests)
}

func TestSubmitSingleCapturesSnapshot(t *testing.T) {
	svc, repo := newTestService()
	key := ledger.ProductKey{ProductID: "P-1", Color: "BLUE", Size: "S"}
	repo.setStock(key, "AG-1", 50)

	request, err := svc.SubmitSingle(context.Background(), clerk, SubmitInput{
		ProductKey:    key,
		AgencyID:      "AG-1",
		TargetStock:   65,
		Reason:        ReasonRecount,
		Justification: "cycle count found 65",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, request.Status)
	require.Equal(t, int64(50), request.CurrentStockAtRequest)
	require.Equal(t, int64(15), request.Delta())
	require.Equal(t, "u-clerk", request.RequestedBy)
}

func TestSubmitSingleMissingItemReadsZero(t *testing.T) {
	svc, _ := newTestService()
	request, err := svc.SubmitSingle(context.Background(), clerk, SubmitInput{
		ProductKey:    ledger.ProductKey{ProductID: "P-new"},
		AgencyID:      "AG-1",
		TargetStock:   8,
		Reason:        ReasonSyncGap,
		Justification: "item never synced",
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), request.CurrentStockAtRequest)
	require.Equal(t, int64(8), request.Delta())
}

func TestSubmitSingleRequiresKnownActor(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.SubmitSingle(context.Background(), shared.Actor{}, SubmitInput{
		ProductKey:    ledger.ProductKey{ProductID: "P-1"},
		AgencyID:      "AG-1",
		TargetStock:   5,
		Reason:        ReasonRecount,
		Justification: "count",
	})
	require.ErrorIs(t, err, shared.ErrPermission)
}

func TestSubmitBatchItemsAreIndependent(t *testing.T) {
	svc, repo := newTestService()
	repo.setStock(ledger.ProductKey{ProductID: "P-1"}, "AG-1", 10)
	repo.setStock(ledger.ProductKey{ProductID: "P-3"}, "AG-1", 3)

	result, err := svc.SubmitBatch(context.Background(), clerk, "March cycle count", "AG-1", "", []BatchItem{
		{ProductKey: ledger.ProductKey{ProductID: "P-1"}, TargetStock: 14, Reason: ReasonRecount, Justification: "recount"},
		{ProductKey: ledger.ProductKey{ProductID: "P-2"}, TargetStock: 9, Justification: "no reason given"},
		{ProductKey: ledger.ProductKey{ProductID: "P-3"}, TargetStock: 0, Reason: ReasonDamage, Justification: "water damage"},
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)

	require.NoError(t, result.Outcomes[0].Err)
	require.True(t, shared.IsValidation(result.Outcomes[1].Err))
	require.NoError(t, result.Outcomes[2].Err)

	// Only valid items persisted, all under one batch id.
	members, err := repo.ListByBatch(context.Background(), result.BatchID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	for _, member := range members {
		require.Equal(t, "March cycle count", member.BatchName)
	}
}

func TestSubmitBatchDefaultReasonFillsBlanks(t *testing.T) {
	svc, _ := newTestService()
	result, err := svc.SubmitBatch(context.Background(), clerk, "shrink pass", "AG-1", ReasonTheft, []BatchItem{
		{ProductKey: ledger.ProductKey{ProductID: "P-1"}, TargetStock: 4, Justification: "missing units"},
		{ProductKey: ledger.ProductKey{ProductID: "P-2"}, TargetStock: 7, Reason: ReasonDamage, Justification: "crushed box"},
	})
	require.NoError(t, err)
	require.NoError(t, result.Outcomes[0].Err)

	first, err := svc.GetRequest(context.Background(), result.Outcomes[0].RequestID)
	require.NoError(t, err)
	require.Equal(t, ReasonTheft, first.Reason)

	second, err := svc.GetRequest(context.Background(), result.Outcomes[1].RequestID)
	require.NoError(t, err)
	require.Equal(t, ReasonDamage, second.Reason)
}

func TestSubmitBatchRejectsEmptyEnvelope(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	item := BatchItem{ProductKey: ledger.ProductKey{ProductID: "P-1"}, TargetStock: 1, Reason: ReasonRecount, Justification: "x"}

	_, err := svc.SubmitBatch(ctx, clerk, "  ", "AG-1", "", []BatchItem{item})
	require.True(t, shared.IsValidation(err))

	_, err = svc.SubmitBatch(ctx, clerk, "batch", "", "", []BatchItem{item})
	require.True(t, shared.IsValidation(err))

	_, err = svc.SubmitBatch(ctx, clerk, "batch", "AG-1", "", nil)
	require.True(t, shared.IsValidation(err))
}

func TestListBatchUnknownID(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.ListBatch(context.Background(), uuid.New())
	require.True(t, errors.Is(err, shared.ErrNotFound))
}
