// Package stock derives on-hand balances from the transaction ledger and
// holds the authoritative stock counters.
package stock

import (
	"github.com/meridian-retail/meridian-erp/internal/ledger"
)

// Classification maps transaction types onto the IN/OUT breakdown.
// ADJUSTMENT entries are deliberately absent from both sets: they correct
// the authoritative counter and do not represent a physical movement.
type Classification struct {
	Inbound  map[ledger.TransactionType]bool
	Outbound map[ledger.TransactionType]bool
}

// DefaultClassification returns the standard movement classification.
func DefaultClassification() Classification {
	return Classification{
		Inbound: map[ledger.TransactionType]bool{
			ledger.TypeExternalReceipt: true,
			ledger.TypeReturnCustomer:  true,
		},
		Outbound: map[ledger.TransactionType]bool{
			ledger.TypeInternalSale:  true,
			ledger.TypeReturnCompany: true,
		},
	}
}

// Aggregate is the derived stock view for one (productKey, agencyId).
// It is computed on read and never persisted as a source of truth.
type Aggregate struct {
	ProductKey        ledger.ProductKey
	AgencyID          string
	CurrentStock      int64
	StockIn           int64
	StockOut          int64
	CalculatedBalance int64
	Variance          int64
}

// Totals carries the partial IN/OUT sums of a fold. Summation is
// associative, so partial totals from disjoint entry ranges can be merged,
// allowing a parallel reduction when a key has many entries.
type Totals struct {
	StockIn  int64
	StockOut int64
}

// Merge combines two partial totals.
func (t Totals) Merge(other Totals) Totals {
	return Totals{StockIn: t.StockIn + other.StockIn, StockOut: t.StockOut + other.StockOut}
}

// Aggregator folds ledger entries into aggregates using a classification.
type Aggregator struct {
	class Classification
}

// NewAggregator builds an Aggregator.
func NewAggregator(class Classification) *Aggregator {
	return &Aggregator{class: class}
}

// Accumulate folds a single entry into the running totals.
func (a *Aggregator) Accumulate(t Totals, entry ledger.Entry) Totals {
	qty := entry.Quantity
	if qty < 0 {
		qty = -qty
	}
	switch {
	case a.class.Inbound[entry.Type]:
		t.StockIn += qty
	case a.class.Outbound[entry.Type]:
		t.StockOut += qty
	}
	return t
}

// Finalize turns totals and the authoritative counter into an Aggregate.
// With no ledger entries the calculated balance is zero and the variance
// equals the authoritative stock.
func Finalize(key ledger.ProductKey, agencyID string, currentStock int64, t Totals) Aggregate {
	balance := t.StockIn - t.StockOut
	return Aggregate{
		ProductKey:        key,
		AgencyID:          agencyID,
		CurrentStock:      currentStock,
		StockIn:           t.StockIn,
		StockOut:          t.StockOut,
		CalculatedBalance: balance,
		Variance:          currentStock - balance,
	}
}

// Fold folds a slice of entries for one key.
func (a *Aggregator) Fold(key ledger.ProductKey, agencyID string, currentStock int64, entries []ledger.Entry) Aggregate {
	var t Totals
	for _, e := range entries {
		t = a.Accumulate(t, e)
	}
	return Finalize(key, agencyID, currentStock, t)
}
