package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger entries in PostgreSQL. Entries are append-only:
// the repository exposes no update or delete.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, product_id, color, size, agency_id, tx_type, quantity, reference_name, source_system, source_ref, occurred_at`

// Insert appends the entry and returns it with the assigned id.
func (r *Repository) Insert(ctx context.Context, entry Entry) (Entry, error) {
	if r == nil || r.pool == nil {
		return Entry{}, fmt.Errorf("ledger repo not initialised")
	}
	const query = `
INSERT INTO transaction_entries (product_id, color, size, agency_id, tx_type, quantity, reference_name, source_system, source_ref, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		entry.ProductKey.ProductID,
		entry.ProductKey.Color,
		entry.ProductKey.Size,
		entry.AgencyID,
		string(entry.Type),
		entry.Quantity,
		entry.ReferenceName,
		entry.SourceSystem,
		entry.SourceRef,
		entry.OccurredAt,
	).Scan(&entry.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: insert entry: %w", err)
	}
	return entry, nil
}

// ListByProductAgency returns entries in insertion order, oldest first.
func (r *Repository) ListByProductAgency(ctx context.Context, key ProductKey, agencyID string, since *time.Time) ([]Entry, error) {
	var entries []Entry
	err := r.StreamByProductAgency(ctx, key, agencyID, since, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// StreamByProductAgency scans entries in insertion order and feeds them to
// fn one at a time. The scan restarts on every call.
func (r *Repository) StreamByProductAgency(ctx context.Context, key ProductKey, agencyID string, since *time.Time, fn func(Entry) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("ledger repo not initialised")
	}
	query := `
SELECT ` + entryColumns + `
FROM transaction_entries
WHERE product_id = $1 AND color = $2 AND size = $3 AND agency_id = $4`
	args := []any{key.ProductID, key.Color, key.Size, agencyID}
	if since != nil {
		query += ` AND occurred_at >= $5`
		args = append(args, *since)
	}
	query += ` ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ledger: query entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RecentByAgency returns the newest entries first for history views.
func (r *Repository) RecentByAgency(ctx context.Context, agencyID string, limit int) ([]Entry, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("ledger repo not initialised")
	}
	const query = `
SELECT ` + entryColumns + `
FROM transaction_entries
WHERE agency_id = $1
ORDER BY id DESC
LIMIT $2`
	rows, err := r.pool.Query(ctx, query, agencyID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: query recent: %w", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListKeysByAgency returns distinct product keys with ledger activity.
func (r *Repository) ListKeysByAgency(ctx context.Context, agencyID string) ([]ProductKey, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("ledger repo not initialised")
	}
	const query = `
SELECT DISTINCT product_id, color, size
FROM transaction_entries
WHERE agency_id = $1
ORDER BY product_id, color, size`
	rows, err := r.pool.Query(ctx, query, agencyID)
	if err != nil {
		return nil, fmt.Errorf("ledger: query keys: %w", err)
	}
	defer rows.Close()
	var keys []ProductKey
	for rows.Next() {
		var k ProductKey
		if err := rows.Scan(&k.ProductID, &k.Color, &k.Size); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func scanEntry(rows pgx.Rows) (Entry, error) {
	var (
		entry     Entry
		txType    string
		sourceRef *string
	)
	if err := rows.Scan(
		&entry.ID,
		&entry.ProductKey.ProductID,
		&entry.ProductKey.Color,
		&entry.ProductKey.Size,
		&entry.AgencyID,
		&txType,
		&entry.Quantity,
		&entry.ReferenceName,
		&entry.SourceSystem,
		&sourceRef,
		&entry.OccurredAt,
	); err != nil {
		return Entry{}, err
	}
	entry.Type = TransactionType(txType)
	if sourceRef != nil {
		entry.SourceRef = *sourceRef
	}
	return entry, nil
}
