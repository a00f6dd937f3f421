package inventory

import (
	"context"
)

// Ledger is the single writer of stock counters. Every operation is atomic per product
// and returns the counters as they stand after the mutation.
type Ledger interface {
	TryReserve(ctx context.Context, productID string, quantity int) (Stock, error)
	Release(ctx context.Context, productID string, quantity int) (Stock, error)
	Commit(ctx context.Context, productID string, quantity int) (Stock, error)
	Adjust(ctx context.Context, productID string, adj Adjustment) (Stock, error)
	Get(ctx context.Context, productID string) (Stock, error)
}
