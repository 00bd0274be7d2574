package ledger

import (
	"errors"
	"strings"
	"time"
)

// TransactionType enumerates stock-affecting event sources.
type TransactionType string

const (
	// TypeExternalReceipt represents goods received from an external supplier.
	TypeExternalReceipt TransactionType = "EXTERNAL_RECEIPT"
	// TypeInternalSale represents an internal sales invoice line.
	TypeInternalSale TransactionType = "INTERNAL_SALE"
	// TypeReturnCustomer represents goods returned by a customer.
	TypeReturnCustomer TransactionType = "RETURN_CUSTOMER"
	// TypeReturnCompany represents goods returned to the company/supplier.
	TypeReturnCompany TransactionType = "RETURN_COMPANY"
	// TypeAdjustment represents an approved stock correction.
	TypeAdjustment TransactionType = "ADJUSTMENT"
)

// Valid reports whether t is a recognised transaction type.
// Unknown types are rejected at the boundary, never passed through.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeExternalReceipt, TypeInternalSale, TypeReturnCustomer, TypeReturnCompany, TypeAdjustment:
		return true
	}
	return false
}

// ProductKey identifies a product variant. Color and Size may be empty when
// variants are collapsed into an aggregation key. The key is resolved once at
// entry-creation time and never re-derived by string matching at read time.
type ProductKey struct {
	ProductID string
	Color     string
	Size      string
}

// String renders the stable form used as a grouping key.
func (k ProductKey) String() string {
	return k.ProductID + "|" + k.Color + "|" + k.Size
}

// Empty reports whether the key carries no product identity.
func (k ProductKey) Empty() bool {
	return strings.TrimSpace(k.ProductID) == ""
}

// Entry is a single immutable row of the append-only transaction ledger.
// Corrections are made by inserting a new ADJUSTMENT entry, never by
// mutating or deleting history.
type Entry struct {
	ID            int64
	ProductKey    ProductKey
	AgencyID      string
	Type          TransactionType
	Quantity      int64 // signed; positive = stock increasing
	ReferenceName string
	SourceSystem  string
	SourceRef     string
	OccurredAt    time.Time
}

// AppendInput describes a ledger entry to be appended.
type AppendInput struct {
	ProductKey    ProductKey
	AgencyID      string
	Type          TransactionType
	Quantity      int64
	ReferenceName string
	SourceSystem  string
	SourceRef     string
	OccurredAt    time.Time
	ActorID       string
}

// ErrZeroQuantity indicates an entry that would not move stock.
var ErrZeroQuantity = errors.New("ledger: quantity must be non zero")

// ErrUnknownType indicates an unrecognised transaction type.
var ErrUnknownType = errors.New("ledger: unknown transaction type")

// ErrMissingIdentity indicates an empty product key or agency.
var ErrMissingIdentity = errors.New("ledger: product key and agency required")
