package adjustments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-retail/meridian-erp/internal/ledger"
	"github.com/meridian-retail/meridian-erp/internal/shared"
)

// Approve applies a pending request. Inside one transaction it appends an
// ADJUSTMENT ledger entry, moves the authoritative counter to the target
// and marks the request reviewed. The request row is locked and the status
// update is conditional on PENDING, so a concurrent second review observes
// ErrAlreadyReviewed instead of double-applying.
//
// The ledger quantity is re-derived from the authoritative stock at apply
// time, not the stale value captured at submission, so movements posted
// between submission and approval are not lost.
func (s *Service) Approve(ctx context.Context, requestID uuid.UUID, reviewer shared.Actor) (Request, error) {
	if !reviewer.CanReview() {
		return Request{}, shared.ErrPermission
	}

	var reviewed Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		request, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != StatusPending {
			return fmt.Errorf("request %s is %s: %w", requestID, request.Status, shared.ErrAlreadyReviewed)
		}

		current, err := tx.GetStockForUpdate(ctx, request.ProductKey, request.AgencyID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		delta := request.TargetStock - current
		if delta != 0 {
			_, err = tx.InsertLedgerEntry(ctx, ledger.Entry{
				ProductKey:    request.ProductKey,
				AgencyID:      request.AgencyID,
				Type:          ledger.TypeAdjustment,
				Quantity:      delta,
				ReferenceName: reviewer.DisplayName,
				SourceSystem:  "adjustments",
				SourceRef:     request.ID.String(),
				OccurredAt:    now,
			})
			if err != nil {
				return err
			}
		}
		if err := tx.SetStock(ctx, request.ProductKey, request.AgencyID, request.TargetStock, now); err != nil {
			return err
		}
		if err := tx.MarkReviewed(ctx, request.ID, StatusApproved, reviewer.UserID, reviewer.DisplayName, "", now); err != nil {
			return err
		}

		request.Status = StatusApproved
		request.ReviewedBy = reviewer.UserID
		request.ReviewerName = reviewer.DisplayName
		request.ReviewedAt = &now
		reviewed = request
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	s.recordReview(ctx, reviewer, reviewed, shared.ReviewApprove, "")
	return reviewed, nil
}

// Reject declines a pending request. It mutates only the request row:
// no ledger entry is appended and the authoritative counter is untouched.
func (s *Service) Reject(ctx context.Context, requestID uuid.UUID, reviewer shared.Actor, notes string) (Request, error) {
	if !reviewer.CanReview() {
		return Request{}, shared.ErrPermission
	}

	var reviewed Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		request, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != StatusPending {
			return fmt.Errorf("request %s is %s: %w", requestID, request.Status, shared.ErrAlreadyReviewed)
		}
		now := s.now().UTC()
		if err := tx.MarkReviewed(ctx, request.ID, StatusRejected, reviewer.UserID, reviewer.DisplayName, notes, now); err != nil {
			return err
		}
		request.Status = StatusRejected
		request.ReviewedBy = reviewer.UserID
		request.ReviewerName = reviewer.DisplayName
		request.ReviewedAt = &now
		request.ReviewNotes = notes
		reviewed = request
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	s.recordReview(ctx, reviewer, reviewed, shared.ReviewReject, notes)
	return reviewed, nil
}

// ApproveBatch approves every member request, oldest first. Items are
// independent: a failure on one member does not roll back or block the
// others, and the caller must inspect the outcome list.
func (s *Service) ApproveBatch(ctx context.Context, batchID uuid.UUID, reviewer shared.Actor) ([]ReviewOutcome, error) {
	return s.reviewBatch(ctx, batchID, reviewer, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Approve(ctx, id, reviewer)
		return err
	})
}

// RejectBatch rejects every member request, oldest first, with the same
// per-item independence as ApproveBatch.
func (s *Service) RejectBatch(ctx context.Context, batchID uuid.UUID, reviewer shared.Actor, notes string) ([]ReviewOutcome, error) {
	return s.reviewBatch(ctx, batchID, reviewer, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Reject(ctx, id, reviewer, notes)
		return err
	})
}

func (s *Service) reviewBatch(ctx context.Context, batchID uuid.UUID, reviewer shared.Actor, apply func(context.Context, uuid.UUID) error) ([]ReviewOutcome, error) {
	if !reviewer.CanReview() {
		return nil, shared.ErrPermission
	}
	members, err := s.ListBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	outcomes := make([]ReviewOutcome, 0, len(members))
	for _, member := range members {
		outcomes = append(outcomes, ReviewOutcome{
			RequestID: member.ID,
			Err:       apply(ctx, member.ID),
		})
	}
	return outcomes, nil
}

func (s *Service) recordReview(ctx context.Context, reviewer shared.Actor, request Request, action shared.ReviewAction, notes string) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  reviewer.UserID,
			Action:   fmt.Sprintf("adjustments:%s", action),
			Entity:   "adjustment_request",
			EntityID: request.ID.String(),
			Meta: map[string]any{
				"product_key":  request.ProductKey.String(),
				"agency_id":    request.AgencyID,
				"target_stock": request.TargetStock,
				"notes":        notes,
			},
		})
	}
	if s.reviews != nil {
		_ = s.reviews.Record(ctx, shared.ReviewLog{
			Module:  reviewModule,
			RefID:   request.ID,
			ActorID: reviewer.UserID,
			Action:  action,
			Note:    notes,
		})
	}
}
