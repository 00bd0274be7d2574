package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian-erp/internal/ledger"
)

// Item is the authoritative stock counter for one (productKey, agencyId).
// It is mutated only by approved adjustments or direct movement postings.
type Item struct {
	ProductKey   ledger.ProductKey
	AgencyID     string
	CurrentStock int64
	UpdatedAt    time.Time
}

// ErrItemNotFound indicates a missing stock item row.
var ErrItemNotFound = errors.New("stock: item not found")

// Repository reads authoritative stock counters from PostgreSQL.
// Counter writes happen inside the approval transaction, not here.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetItem fetches a single counter.
func (r *Repository) GetItem(ctx context.Context, key ledger.ProductKey, agencyID string) (Item, error) {
	if r == nil || r.pool == nil {
		return Item{}, fmt.Errorf("stock repo not initialised")
	}
	const query = `
SELECT product_id, color, size, agency_id, current_stock, updated_at
FROM stock_items
WHERE product_id = $1 AND color = $2 AND size = $3 AND agency_id = $4`
	var item Item
	err := r.pool.QueryRow(ctx, query, key.ProductID, key.Color, key.Size, agencyID).Scan(
		&item.ProductKey.ProductID,
		&item.ProductKey.Color,
		&item.ProductKey.Size,
		&item.AgencyID,
		&item.CurrentStock,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{ProductKey: key, AgencyID: agencyID}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// ListByAgency returns all counters for an agency.
func (r *Repository) ListByAgency(ctx context.Context, agencyID string) ([]Item, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("stock repo not initialised")
	}
	const query = `
SELECT product_id, color, size, agency_id, current_stock, updated_at
FROM stock_items
WHERE agency_id = $1
ORDER BY product_id, color, size`
	rows, err := r.pool.Query(ctx, query, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(
			&item.ProductKey.ProductID,
			&item.ProductKey.Color,
			&item.ProductKey.Size,
			&item.AgencyID,
			&item.CurrentStock,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
