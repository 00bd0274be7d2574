package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	entries []Entry
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{}
}

func (r *memoryRepo) Insert(ctx context.Context, entry Entry) (Entry, error) {
	r.nextID++
	entry.ID = r.nextID
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *memoryRepo) ListByProductAgency(ctx context.Context, key ProductKey, agencyID string, since *time.Time) ([]Entry, error) {
	var out []Entry
	err := r.StreamByProductAgency(ctx, key, agencyID, since, func(e Entry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

func (r *memoryRepo) StreamByProductAgency(ctx context.Context, key ProductKey, agencyID string, since *time.Time, fn func(Entry) error) error {
	for _, e := range r.entries {
		if e.ProductKey != key || e.AgencyID != agencyID {
			continue
		}
		if since != nil && e.OccurredAt.Before(*since) {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *memoryRepo) RecentByAgency(ctx context.Context, agencyID string, limit int) ([]Entry, error) {
	var out []Entry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].AgencyID == agencyID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) ListKeysByAgency(ctx context.Context, agencyID string) ([]ProductKey, error) {
	seen := map[ProductKey]bool{}
	var keys []ProductKey
	for _, e := range r.entries {
		if e.AgencyID != agencyID || seen[e.ProductKey] {
			continue
		}
		seen[e.ProductKey] = true
		keys = append(keys, e.ProductKey)
	}
	return keys, nil
}

func TestAppendValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()
	key := ProductKey{ProductID: "P-100", Color: "RED", Size: "M"}

	_, err := svc.Append(ctx, AppendInput{ProductKey: key, AgencyID: "AG-1", Type: TypeInternalSale, Quantity: 0})
	require.ErrorIs(t, err, ErrZeroQuantity)

	_, err = svc.Append(ctx, AppendInput{ProductKey: key, AgencyID: "AG-1", Type: "PHANTOM", Quantity: 3})
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = svc.Append(ctx, AppendInput{ProductKey: ProductKey{}, AgencyID: "AG-1", Type: TypeInternalSale, Quantity: 3})
	require.ErrorIs(t, err, ErrMissingIdentity)

	_, err = svc.Append(ctx, AppendInput{ProductKey: key, AgencyID: "", Type: TypeInternalSale, Quantity: 3})
	require.ErrorIs(t, err, ErrMissingIdentity)
}

func TestAppendPreservesInsertionOrder(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()
	key := ProductKey{ProductID: "P-100"}

	quantities := []int64{10, -4, 7, -1}
	for _, q := range quantities {
		txType := TypeExternalReceipt
		if q < 0 {
			txType = TypeInternalSale
		}
		_, err := svc.Append(ctx, AppendInput{ProductKey: key, AgencyID: "AG-1", Type: txType, Quantity: q})
		require.NoError(t, err)
	}

	entries, err := svc.Entries(ctx, key, "AG-1", nil)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		require.Equal(t, quantities[i], e.Quantity)
		if i > 0 {
			require.Greater(t, e.ID, entries[i-1].ID)
			require.False(t, e.OccurredAt.Before(entries[i-1].OccurredAt))
		}
	}
}

func TestStreamIsRestartable(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()
	key := ProductKey{ProductID: "P-200"}

	for i := 0; i < 3; i++ {
		_, err := svc.Append(ctx, AppendInput{ProductKey: key, AgencyID: "AG-1", Type: TypeExternalReceipt, Quantity: 5})
		require.NoError(t, err)
	}

	count := func() int {
		n := 0
		err := svc.Stream(ctx, key, "AG-1", nil, func(Entry) error {
			n++
			return nil
		})
		require.NoError(t, err)
		return n
	}
	require.Equal(t, 3, count())
	require.Equal(t, 3, count())
}

func TestRecentByAgencyNewestFirst(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()
	key := ProductKey{ProductID: "P-300"}

	for i := int64(1); i <= 5; i++ {
		_, err := svc.Append(ctx, AppendInput{ProductKey: key, AgencyID: "AG-2", Type: TypeExternalReceipt, Quantity: i})
		require.NoError(t, err)
	}

	entries, err := svc.RecentByAgency(ctx, "AG-2", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int64(5), entries[0].Quantity)
	require.Equal(t, int64(4), entries[1].Quantity)
	require.Equal(t, int64(3), entries[2].Quantity)
}

func TestAppendDefaultsOccurredAt(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	before := time.Now().UTC()
	entry, err := svc.Append(context.Background(), AppendInput{
		ProductKey: ProductKey{ProductID: "P-400"},
		AgencyID:   "AG-1",
		Type:       TypeReturnCustomer,
		Quantity:   2,
	})
	require.NoError(t, err)
	require.False(t, entry.OccurredAt.Before(before))
}
