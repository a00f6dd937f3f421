package order

import "context"

type IDGenerator interface {
	NewID() string
}

type OrderNumberGenerator interface {
	NextOrderNumber() (string, error)
}

// OrderLocker serializes work on one order across every process that shares the order store.
type OrderLocker interface {
	LockOrder(ctx context.Context, orderID string) (unlock func(), err error)
}

// Requester is the authenticated caller of an operation.
type Requester struct {
	ID    string
	Admin bool
}

func (r Requester) owns(customerID string) bool {
	return r.ID != "" && r.ID == customerID
}
