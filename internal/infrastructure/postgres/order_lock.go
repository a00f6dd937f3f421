package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	// orderLockSpace keeps order locks apart from other advisory lock users.
	orderLockSpace int32 = 0x4f524452
	unlockTimeout        = 3 * time.Second
)

// Beginner opens transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderLocker serializes work on one order across every replica sharing the database with a
// transaction-scoped advisory lock. The lock lives on its own connection, so store and ledger
// writes made while holding it never wait on it.
type OrderLocker struct {
	db Beginner
}

func NewOrderLocker(db Beginner) *OrderLocker {
	return &OrderLocker{db: db}
}

// LockOrder blocks until the order is free or ctx is done. Ending the transaction releases
// the lock, and so does a dropped connection.
func (l *OrderLocker) LockOrder(ctx context.Context, orderID string) (func(), error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin order lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int4, hashtext($2))`, orderLockSpace, orderID); err != nil {
		rollback(tx)
		return nil, fmt.Errorf("postgres: lock order %s: %w", orderID, err)
	}
	return func() { rollback(tx) }, nil
}

func rollback(tx pgx.Tx) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	_ = tx.Rollback(ctx)
}
