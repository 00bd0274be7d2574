package adjustments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian-erp/internal/ledger"
	"github.com/meridian-retail/meridian-erp/internal/platform/db"
	"github.com/meridian-retail/meridian-erp/internal/shared"
)

// Repository persists adjustment requests in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, product_id, color, size, agency_id, current_stock_at_request, target_stock,
reason, justification, requested_by, requested_by_name, requested_at,
status, reviewed_by, reviewer_name, reviewed_at, review_notes, batch_id, batch_name`

// WithTx executes the callback inside a repeatable-read transaction. The
// transaction carries every step of an approval so partial application
// cannot happen.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// InsertRequest stores a new pending request.
func (r *Repository) InsertRequest(ctx context.Context, request Request) (Request, error) {
	if r == nil || r.pool == nil {
		return Request{}, fmt.Errorf("adjustments repo not initialised")
	}
	const query = `
INSERT INTO adjustment_requests (id, product_id, color, size, agency_id, current_stock_at_request, target_stock,
reason, justification, requested_by, requested_by_name, requested_at, status, batch_id, batch_name)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.pool.Exec(ctx, query,
		request.ID,
		request.ProductKey.ProductID,
		request.ProductKey.Color,
		request.ProductKey.Size,
		request.AgencyID,
		request.CurrentStockAtRequest,
		request.TargetStock,
		string(request.Reason),
		request.Justification,
		request.RequestedBy,
		request.RequestedByName,
		request.RequestedAt,
		string(request.Status),
		nullableUUID(request.BatchID),
		request.BatchName,
	)
	if err != nil {
		return Request{}, fmt.Errorf("adjustments: insert request: %w", err)
	}
	return request, nil
}

// GetRequest fetches a request by id.
func (r *Repository) GetRequest(ctx context.Context, id uuid.UUID) (Request, error) {
	if r == nil || r.pool == nil {
		return Request{}, fmt.Errorf("adjustments repo not initialised")
	}
	query := `SELECT ` + requestColumns + ` FROM adjustment_requests WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, fmt.Errorf("request %s: %w", id, shared.ErrNotFound)
		}
		return Request{}, err
	}
	return request, nil
}

// ListRequests lists requests matching the filter with a total count.
func (r *Repository) ListRequests(ctx context.Context, filter ListFilter) ([]Request, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, fmt.Errorf("adjustments repo not initialised")
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	where := ` WHERE agency_id = $1`
	args := []any{filter.AgencyID}
	if filter.Status != "" {
		where += ` AND status = $2`
		args = append(args, string(filter.Status))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM adjustment_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requestColumns + ` FROM adjustment_requests` + where +
		fmt.Sprintf(` ORDER BY requested_at DESC, id LIMIT %d OFFSET %d`, filter.PerPage, (filter.Page-1)*filter.PerPage)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var requests []Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, request)
	}
	return requests, total, rows.Err()
}

// ListByBatch returns batch members, oldest first for deterministic review
// order.
func (r *Repository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]Request, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("adjustments repo not initialised")
	}
	query := `SELECT ` + requestColumns + ` FROM adjustment_requests WHERE batch_id = $1 ORDER BY requested_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetRequestForUpdate(ctx context.Context, id uuid.UUID) (Request, error) {
	query := `SELECT ` + requestColumns + ` FROM adjustment_requests WHERE id = $1 FOR UPDATE`
	request, err := scanRequest(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, fmt.Errorf("request %s: %w", id, shared.ErrNotFound)
		}
		return Request{}, err
	}
	return request, nil
}

// MarkReviewed performs the conditional status transition. The WHERE guard
// on PENDING is the optimistic lock that closes the two-reviewer race.
func (t *txRepo) MarkReviewed(ctx context.Context, id uuid.UUID, status Status, reviewerID, reviewerName, notes string, at time.Time) error {
	const query = `
UPDATE adjustment_requests
SET status = $2, reviewed_by = $3, reviewer_name = $4, review_notes = $5, reviewed_at = $6
WHERE id = $1 AND status = 'PENDING'`
	tag, err := t.tx.Exec(ctx, query, id, string(status), reviewerID, reviewerName, notes, at)
	if err != nil {
		return fmt.Errorf("adjustments: mark reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %s: %w", id, shared.ErrAlreadyReviewed)
	}
	return nil
}

// GetStockForUpdate locks the authoritative counter row so concurrent
// approvals on the same product/agency serialize. A missing row reads as
// zero stock.
func (t *txRepo) GetStockForUpdate(ctx context.Context, key ledger.ProductKey, agencyID string) (int64, error) {
	const query = `
SELECT current_stock FROM stock_items
WHERE product_id = $1 AND color = $2 AND size = $3 AND agency_id = $4
FOR UPDATE`
	var current int64
	err := t.tx.QueryRow(ctx, query, key.ProductID, key.Color, key.Size, agencyID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return current, nil
}

func (t *txRepo) SetStock(ctx context.Context, key ledger.ProductKey, agencyID string, value int64, at time.Time) error {
	const query = `
INSERT INTO stock_items (product_id, color, size, agency_id, current_stock, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (product_id, color, size, agency_id)
DO UPDATE SET current_stock = EXCLUDED.current_stock, updated_at = EXCLUDED.updated_at`
	_, err := t.tx.Exec(ctx, query, key.ProductID, key.Color, key.Size, agencyID, value, at)
	if err != nil {
		return fmt.Errorf("adjustments: set stock: %w", err)
	}
	return nil
}

func (t *txRepo) InsertLedgerEntry(ctx context.Context, entry ledger.Entry) (int64, error) {
	const query = `
INSERT INTO transaction_entries (product_id, color, size, agency_id, tx_type, quantity, reference_name, source_system, source_ref, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
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
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("adjustments: insert ledger entry: %w", err)
	}
	return id, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		request      Request
		reason       string
		status       string
		reviewedBy   *string
		reviewerName *string
		reviewedAt   *time.Time
		reviewNotes  *string
		batchID      *uuid.UUID
		batchName    *string
	)
	if err := row.Scan(
		&request.ID,
		&request.ProductKey.ProductID,
		&request.ProductKey.Color,
		&request.ProductKey.Size,
		&request.AgencyID,
		&request.CurrentStockAtRequest,
		&request.TargetStock,
		&reason,
		&request.Justification,
		&request.RequestedBy,
		&request.RequestedByName,
		&request.RequestedAt,
		&status,
		&reviewedBy,
		&reviewerName,
		&reviewedAt,
		&reviewNotes,
		&batchID,
		&batchName,
	); err != nil {
		return Request{}, err
	}
	request.Reason = Reason(reason)
	request.Status = Status(status)
	if reviewedBy != nil {
		request.ReviewedBy = *reviewedBy
	}
	if reviewerName != nil {
		request.ReviewerName = *reviewerName
	}
	request.ReviewedAt = reviewedAt
	if reviewNotes != nil {
		request.ReviewNotes = *reviewNotes
	}
	if batchID != nil {
		request.BatchID = *batchID
	}
	if batchName != nil {
		request.BatchName = *batchName
	}
	return request, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
