package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-retail/meridian-erp/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, entry Entry) (Entry, error)
	ListByProductAgency(ctx context.Context, key ProductKey, agencyID string, since *time.Time) ([]Entry, error)
	StreamByProductAgency(ctx context.Context, key ProductKey, agencyID string, since *time.Time, fn func(Entry) error) error
	RecentByAgency(ctx context.Context, agencyID string, limit int) ([]Entry, error)
	ListKeysByAgency(ctx context.Context, agencyID string) ([]ProductKey, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service validates and appends ledger entries. The ledger is an append
// sink for upstream producers; it never updates or deletes history.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// Append validates the input, appends the entry and returns it with its
// assigned id. Malformed entries are rejected synchronously; storage
// failures are surfaced as-is, never retried with different semantics.
func (s *Service) Append(ctx context.Context, input AppendInput) (Entry, error) {
	if input.Quantity == 0 {
		return Entry{}, ErrZeroQuantity
	}
	if !input.Type.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownType, input.Type)
	}
	if input.ProductKey.Empty() || input.AgencyID == "" {
		return Entry{}, ErrMissingIdentity
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	insertedKey := ""
	if s.idempotency != nil && input.SourceRef != "" {
		key := fmt.Sprintf("%s:%s", input.SourceSystem, input.SourceRef)
		if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
			return Entry{}, err
		}
		insertedKey = key
	}

	entry, err := s.repo.Insert(ctx, Entry{
		ProductKey:    input.ProductKey,
		AgencyID:      input.AgencyID,
		Type:          input.Type,
		Quantity:      input.Quantity,
		ReferenceName: input.ReferenceName,
		SourceSystem:  input.SourceSystem,
		SourceRef:     input.SourceRef,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		if insertedKey != "" {
			_ = s.idempotency.Delete(ctx, insertedKey)
		}
		return Entry{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("ledger:%s", entry.Type),
			Entity:   "transaction_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"product_key": entry.ProductKey.String(),
				"agency_id":   entry.AgencyID,
				"quantity":    entry.Quantity,
				"source":      entry.SourceSystem,
			},
		})
	}
	return entry, nil
}

// Entries returns entries for a product/agency in insertion order, oldest
// first.
func (s *Service) Entries(ctx context.Context, key ProductKey, agencyID string, since *time.Time) ([]Entry, error) {
	if key.Empty() || agencyID == "" {
		return nil, ErrMissingIdentity
	}
	return s.repo.ListByProductAgency(ctx, key, agencyID, since)
}

// Stream walks entries for a product/agency in insertion order without
// materialising them. Each call restarts from the beginning; no cursor
// state is kept between calls.
func (s *Service) Stream(ctx context.Context, key ProductKey, agencyID string, since *time.Time, fn func(Entry) error) error {
	if key.Empty() || agencyID == "" {
		return ErrMissingIdentity
	}
	return s.repo.StreamByProductAgency(ctx, key, agencyID, since, fn)
}

// RecentByAgency returns the most recent entries for an agency, newest
// first, for history views.
func (s *Service) RecentByAgency(ctx context.Context, agencyID string, limit int) ([]Entry, error) {
	if agencyID == "" {
		return nil, ErrMissingIdentity
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.RecentByAgency(ctx, agencyID, limit)
}

// KeysByAgency lists every product key with ledger activity for an agency.
func (s *Service) KeysByAgency(ctx context.Context, agencyID string) ([]ProductKey, error) {
	if agencyID == "" {
		return nil, ErrMissingIdentity
	}
	return s.repo.ListKeysByAgency(ctx, agencyID)
}
