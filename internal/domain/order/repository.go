package order

import (
	"context"
	"time"
)

// Store persists orders. Insert enforces orderNumber uniqueness and Update
// enforces optimistic concurrency on Version.
type Store interface {
	Insert(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByOrderNumber(ctx context.Context, number string) (*Order, error)
	// ListAwaitingPayment returns orders still waiting for payment created before the cutoff, oldest first.
	ListAwaitingPayment(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}
