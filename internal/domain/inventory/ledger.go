package inventory

import (
	"context"

	"github.com/go-faster/errors"
)

// Request is a demand for quantity units of one variant.
type Request struct {
	VariantID string
	Quantity  int
}

// Ledger validates and reserves stock. It must be called with a context
// carrying the caller's transaction so that a failed reservation is rolled
// back together with everything else.
type Ledger struct {
	repo Repository
}

// NewLedger creates a Ledger backed by the given repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Check looks up every requested variant and verifies the combined demand per
// variant fits the current stock. The returned slice is aligned with reqs.
func (l *Ledger) Check(ctx context.Context, reqs []Request) ([]Variant, error) {
	ids := make([]string, 0, len(reqs))
	demand := make(map[string]int, len(reqs))
	for _, r := range reqs {
		if _, seen := demand[r.VariantID]; !seen {
			ids = append(ids, r.VariantID)
		}
		demand[r.VariantID] += r.Quantity
	}

	found, err := l.repo.Lookup(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lookup variants")
	}
	byID := make(map[string]Variant, len(found))
	for _, v := range found {
		byID[v.ID] = v
	}

	out := make([]Variant, len(reqs))
	for i, r := range reqs {
		v, ok := byID[r.VariantID]
		if !ok {
			return nil, &InsufficientStockError{VariantID: r.VariantID, Requested: demand[r.VariantID]}
		}
		if v.StockQuantity < demand[r.VariantID] {
			return nil, &InsufficientStockError{
				VariantID: r.VariantID,
				Requested: demand[r.VariantID],
				Available: v.StockQuantity,
			}
		}
		out[i] = v
	}
	return out, nil
}

// Reserve decrements the variant's stock by quantity. A concurrent order that
// consumed the stock first makes this fail with InsufficientStockError.
func (l *Ledger) Reserve(ctx context.Context, variantID string, quantity int) error {
	ok, err := l.repo.Decrement(ctx, variantID, quantity)
	if err != nil {
		return errors.Wrapf(err, "reserve variant %q", variantID)
	}
	if !ok {
		return &InsufficientStockError{VariantID: variantID, Requested: quantity}
	}
	return nil
}
