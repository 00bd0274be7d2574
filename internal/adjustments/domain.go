// Package adjustments implements the stock-correction request engine and
// its approval workflow. Pending requests never touch authoritative stock;
// only an approval writes a ledger entry and moves the counter.
package adjustments

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridian-retail/meridian-erp/internal/ledger"
)

// Status enumerates the request lifecycle. Transitions are one-way:
// PENDING -> APPROVED or PENDING -> REJECTED, both terminal.
type Status string

const (
	// StatusPending marks a request awaiting review.
	StatusPending Status = "PENDING"
	// StatusApproved marks an applied request.
	StatusApproved Status = "APPROVED"
	// StatusRejected marks a declined request.
	StatusRejected Status = "REJECTED"
)

// Reason is the controlled vocabulary for why stock needs correcting.
type Reason string

const (
	// ReasonRecount covers physical recount discrepancies.
	ReasonRecount Reason = "RECOUNT"
	// ReasonDamage covers damaged or written-off goods.
	ReasonDamage Reason = "DAMAGE"
	// ReasonTheft covers shrinkage and theft.
	ReasonTheft Reason = "THEFT"
	// ReasonDataEntry covers keying mistakes in past postings.
	ReasonDataEntry Reason = "DATA_ENTRY"
	// ReasonSyncGap covers upstream integrations that missed rows.
	ReasonSyncGap Reason = "SYNC_GAP"
)

// Valid reports whether r belongs to the controlled vocabulary.
func (r Reason) Valid() bool {
	switch r {
	case ReasonRecount, ReasonDamage, ReasonTheft, ReasonDataEntry, ReasonSyncGap:
		return true
	}
	return false
}

// Request is a proposed stock correction kept for audit; it is never
// physically destroyed.
type Request struct {
	ID                    uuid.UUID
	ProductKey            ledger.ProductKey
	AgencyID              string
	CurrentStockAtRequest int64
	TargetStock           int64
	Reason                Reason
	Justification         string
	RequestedBy           string
	RequestedByName       string
	RequestedAt           time.Time
	Status                Status
	ReviewedBy            string
	ReviewerName          string
	ReviewedAt            *time.Time
	ReviewNotes           string
	BatchID               uuid.UUID // uuid.Nil when not part of a batch
	BatchName             string
}

// Delta is the proposed signed quantity change as captured at submission.
func (r Request) Delta() int64 {
	return r.TargetStock - r.CurrentStockAtRequest
}

// SubmitInput describes a single correction proposal.
type SubmitInput struct {
	ProductKey    ledger.ProductKey
	AgencyID      string
	TargetStock   int64
	Reason        Reason
	Justification string
}

// BatchItem is one proposal inside a batch submission.
type BatchItem struct {
	ProductKey    ledger.ProductKey
	TargetStock   int64
	Reason        Reason
	Justification string
}

// SubmitOutcome reports the per-item result of a batch submission.
type SubmitOutcome struct {
	Index     int
	RequestID uuid.UUID
	Err       error
}

// BatchResult groups the outcomes of a batch submission. Items that failed
// validation do not block their siblings.
type BatchResult struct {
	BatchID   uuid.UUID
	BatchName string
	Outcomes  []SubmitOutcome
}

// ReviewOutcome reports the per-item result of a batch review. A batch
// review is not transactional across members; callers must inspect the
// list to know the true outcome.
type ReviewOutcome struct {
	RequestID uuid.UUID
	Err       error
}

// ListFilter narrows request listings.
type ListFilter struct {
	AgencyID string
	Status   Status
	Page     int
	PerPage  int
}
