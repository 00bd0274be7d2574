package adjustments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-retail/meridian-erp/internal/ledger"
	"github.com/meridian-retail/meridian-erp/internal/shared"
	"github.com/meridian-retail/meridian-erp/internal/stock"
)

// RepositoryPort abstracts request persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertRequest(ctx context.Context, request Request) (Request, error)
	GetRequest(ctx context.Context, id uuid.UUID) (Request, error)
	ListRequests(ctx context.Context, filter ListFilter) ([]Request, int, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]Request, error)
}

// TxRepository exposes the operations the approval state machine performs
// atomically inside one database transaction.
type TxRepository interface {
	GetRequestForUpdate(ctx context.Context, id uuid.UUID) (Request, error)
	MarkReviewed(ctx context.Context, id uuid.UUID, status Status, reviewerID, reviewerName, notes string, at time.Time) error
	GetStockForUpdate(ctx context.Context, key ledger.ProductKey, agencyID string) (int64, error)
	SetStock(ctx context.Context, key ledger.ProductKey, agencyID string, value int64, at time.Time) error
	InsertLedgerEntry(ctx context.Context, entry ledger.Entry) (int64, error)
}

// StockPort reads the authoritative counter at submission time.
type StockPort interface {
	GetItem(ctx context.Context, key ledger.ProductKey, agencyID string) (stock.Item, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReviewPort records the SUBMIT/APPROVE/REJECT history of a request.
type ReviewPort interface {
	Record(ctx context.Context, log shared.ReviewLog) error
}

const reviewModule = "adjustments"

// Service validates and persists adjustment requests and runs the approval
// state machine.
type Service struct {
	repo    RepositoryPort
	stock   StockPort
	audit   AuditPort
	reviews ReviewPort
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, stockRepo StockPort, audit AuditPort, reviews ReviewPort) *Service {
	return &Service{repo: repo, stock: stockRepo, audit: audit, reviews: reviews, now: time.Now}
}

// SubmitSingle validates a proposal and persists it as PENDING. It fails
// without storing anything when the input is malformed or the change is a
// no-op.
func (s *Service) SubmitSingle(ctx context.Context, actor shared.Actor, input SubmitInput) (Request, error) {
	if !actor.Known() {
		return Request{}, shared.ErrPermission
	}
	if err := validateProposal(input.ProductKey, input.AgencyID, input.TargetStock, input.Reason, input.Justification); err != nil {
		return Request{}, err
	}
	current, err := s.currentStock(ctx, input.ProductKey, input.AgencyID)
	if err != nil {
		return Request{}, err
	}
	if input.TargetStock == current {
		return Request{}, shared.ErrNoOp
	}

	request, err := s.repo.InsertRequest(ctx, Request{
		ID:                    uuid.New(),
		ProductKey:            input.ProductKey,
		AgencyID:              input.AgencyID,
		CurrentStockAtRequest: current,
		TargetStock:           input.TargetStock,
		Reason:                input.Reason,
		Justification:         strings.TrimSpace(input.Justification),
		RequestedBy:           actor.UserID,
		RequestedByName:       actor.DisplayName,
		RequestedAt:           s.now().UTC(),
		Status:                StatusPending,
	})
	if err != nil {
		return Request{}, err
	}
	s.recordSubmission(ctx, actor, request)
	return request, nil
}

// SubmitBatch validates each item independently and persists the valid
// ones under one generated batch id. The contract is "submit what is
// valid, report what is not": a failing item never blocks its siblings.
// A default reason, when supplied, fills items that carry none before the
// per-item validation runs.
func (s *Service) SubmitBatch(ctx context.Context, actor shared.Actor, batchName, agencyID string, defaultReason Reason, items []BatchItem) (BatchResult, error) {
	if !actor.Known() {
		return BatchResult{}, shared.ErrPermission
	}
	if strings.TrimSpace(batchName) == "" {
		return BatchResult{}, shared.NewValidationError("batch_name", "must not be empty")
	}
	if agencyID == "" {
		return BatchResult{}, shared.NewValidationError("agency_id", "must not be empty")
	}
	if len(items) == 0 {
		return BatchResult{}, shared.NewValidationError("items", "must not be empty")
	}

	result := BatchResult{BatchID: uuid.New(), BatchName: batchName}
	for i, item := range items {
		reason := item.Reason
		if reason == "" {
			reason = defaultReason
		}
		outcome := SubmitOutcome{Index: i}
		request, err := s.submitBatchItem(ctx, actor, result, agencyID, item, reason)
		if err != nil {
			outcome.Err = err
		} else {
			outcome.RequestID = request.ID
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}

func (s *Service) submitBatchItem(ctx context.Context, actor shared.Actor, batch BatchResult, agencyID string, item BatchItem, reason Reason) (Request, error) {
	if err := validateProposal(item.ProductKey, agencyID, item.TargetStock, reason, item.Justification); err != nil {
		return Request{}, err
	}
	current, err := s.currentStock(ctx, item.ProductKey, agencyID)
	if err != nil {
		return Request{}, err
	}
	if item.TargetStock == current {
		return Request{}, shared.ErrNoOp
	}
	request, err := s.repo.InsertRequest(ctx, Request{
		ID:                    uuid.New(),
		ProductKey:            item.ProductKey,
		AgencyID:              agencyID,
		CurrentStockAtRequest: current,
		TargetStock:           item.TargetStock,
		Reason:                reason,
		Justification:         strings.TrimSpace(item.Justification),
		RequestedBy:           actor.UserID,
		RequestedByName:       actor.DisplayName,
		RequestedAt:           s.now().UTC(),
		Status:                StatusPending,
		BatchID:               batch.BatchID,
		BatchName:             batch.BatchName,
	})
	if err != nil {
		return Request{}, err
	}
	s.recordSubmission(ctx, actor, request)
	return request, nil
}

// GetRequest fetches a request by id.
func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (Request, error) {
	return s.repo.GetRequest(ctx, id)
}

// ListRequests lists requests with pagination metadata.
func (s *Service) ListRequests(ctx context.Context, filter ListFilter) ([]Request, shared.Pagination, error) {
	requests, total, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return requests, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListBatch returns the member requests of a batch, oldest first.
func (s *Service) ListBatch(ctx context.Context, batchID uuid.UUID) ([]Request, error) {
	requests, err := s.repo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("batch %s: %w", batchID, shared.ErrNotFound)
	}
	return requests, nil
}

func (s *Service) currentStock(ctx context.Context, key ledger.ProductKey, agencyID string) (int64, error) {
	item, err := s.stock.GetItem(ctx, key, agencyID)
	if err != nil {
		if errors.Is(err, stock.ErrItemNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return item.CurrentStock, nil
}

func (s *Service) recordSubmission(ctx context.Context, actor shared.Actor, request Request) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.UserID,
			Action:   "adjustments:SUBMIT",
			Entity:   "adjustment_request",
			EntityID: request.ID.String(),
			Meta: map[string]any{
				"product_key":  request.ProductKey.String(),
				"agency_id":    request.AgencyID,
				"target_stock": request.TargetStock,
				"delta":        request.Delta(),
				"reason":       string(request.Reason),
				"batch_id":     request.BatchID.String(),
			},
		})
	}
	if s.reviews != nil {
		_ = s.reviews.Record(ctx, shared.ReviewLog{
			Module:  reviewModule,
			RefID:   request.ID,
			ActorID: actor.UserID,
			Action:  shared.ReviewSubmit,
			Note:    request.Justification,
		})
	}
}

func validateProposal(key ledger.ProductKey, agencyID string, targetStock int64, reason Reason, justification string) error {
	if key.Empty() {
		return shared.NewValidationError("product_key", "must not be empty")
	}
	if agencyID == "" {
		return shared.NewValidationError("agency_id", "must not be empty")
	}
	if targetStock < 0 {
		return shared.NewValidationError("target_stock", "must not be negative")
	}
	if reason == "" {
		return shared.NewValidationError("reason", "must not be empty")
	}
	if !reason.Valid() {
		return shared.NewValidationError("reason", fmt.Sprintf("unknown reason %q", reason))
	}
	if strings.TrimSpace(justification) == "" {
		return shared.NewValidationError("justification", "must not be empty")
	}
	return nil
}
