package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

const stockColumns = `product_id, quantity, reserved, low_stock_threshold, version, updated_at`

// InventoryLedger keeps stock counters in the inventory table. Each mutation is a
// single conditional UPDATE, so concurrent reservations never oversell.
type InventoryLedger struct {
	db DB
}

func NewInventoryLedger(db DB) *InventoryLedger {
	return &InventoryLedger{db: db}
}

// Seed inserts stock for a product unless a row already exists.
func (l *InventoryLedger) Seed(ctx context.Context, productID string, quantity, lowStockThreshold int) error {
	if _, err := inventory.NewStock(productID, quantity, lowStockThreshold); err != nil {
		return err
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO inventory (product_id, quantity, reserved, low_stock_threshold, version, updated_at)
		VALUES ($1, $2, 0, $3, 0, now())
		ON CONFLICT (product_id) DO NOTHING
	`, productID, quantity, lowStockThreshold)
	if err != nil {
		return fmt.Errorf("postgres: seed inventory %s: %w", productID, err)
	}
	return nil
}

func (l *InventoryLedger) TryReserve(ctx context.Context, productID string, quantity int) (inventory.Stock, error) {
	if quantity <= 0 {
		return inventory.Stock{}, inventory.ErrInvalidQuantity
	}
	stock, err := l.update(ctx, `
		UPDATE inventory
		SET reserved = reserved + $2, version = version + 1, updated_at = now()
		WHERE product_id = $1 AND quantity - reserved >= $2
		RETURNING `+stockColumns, productID, quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return l.diagnose(ctx, productID, func(s *inventory.Stock) error { return s.Reserve(quantity) }, inventory.ErrInsufficientStock)
	}
	return stock, err
}

func (l *InventoryLedger) Release(ctx context.Context, productID string, quantity int) (inventory.Stock, error) {
	if quantity <= 0 {
		return inventory.Stock{}, inventory.ErrInvalidQuantity
	}
	stock, err := l.update(ctx, `
		UPDATE inventory
		SET reserved = GREATEST(reserved - $2, 0), version = version + 1, updated_at = now()
		WHERE product_id = $1
		RETURNING `+stockColumns, productID, quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Stock{}, inventory.ErrNotFound
	}
	return stock, err
}

func (l *InventoryLedger) Commit(ctx context.Context, productID string, quantity int) (inventory.Stock, error) {
	if quantity <= 0 {
		return inventory.Stock{}, inventory.ErrInvalidQuantity
	}
	stock, err := l.update(ctx, `
		UPDATE inventory
		SET reserved = reserved - $2, quantity = quantity - $2, version = version + 1, updated_at = now()
		WHERE product_id = $1 AND reserved >= $2
		RETURNING `+stockColumns, productID, quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return l.diagnose(ctx, productID, func(s *inventory.Stock) error { return s.Commit(quantity) }, inventory.ErrReservationUnderflow)
	}
	return stock, err
}

func (l *InventoryLedger) Adjust(ctx context.Context, productID string, adj inventory.Adjustment) (inventory.Stock, error) {
	if err := adj.Validate(); err != nil {
		return inventory.Stock{}, err
	}

	var (
		stock inventory.Stock
		err   error
	)
	if adj.Delta != nil {
		stock, err = l.update(ctx, `
			UPDATE inventory
			SET quantity = quantity + $2, version = version + 1, updated_at = now()
			WHERE product_id = $1 AND quantity + $2 >= 0 AND quantity + $2 >= reserved
			RETURNING `+stockColumns, productID, *adj.Delta)
	} else {
		if *adj.Absolute < 0 {
			return l.diagnose(ctx, productID, func(s *inventory.Stock) error { return s.Apply(adj) }, inventory.ErrNegativeBalance)
		}
		stock, err = l.update(ctx, `
			UPDATE inventory
			SET quantity = $2, version = version + 1, updated_at = now()
			WHERE product_id = $1 AND $2 >= reserved
			RETURNING `+stockColumns, productID, *adj.Absolute)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return l.diagnose(ctx, productID, func(s *inventory.Stock) error { return s.Apply(adj) }, inventory.ErrBelowReserved)
	}
	return stock, err
}

func (l *InventoryLedger) Get(ctx context.Context, productID string) (inventory.Stock, error) {
	row := l.db.QueryRow(ctx, `SELECT `+stockColumns+` FROM inventory WHERE product_id = $1`, productID)
	stock, err := scanStock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Stock{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Stock{}, fmt.Errorf("postgres: get inventory %s: %w", productID, err)
	}
	return stock, nil
}

func (l *InventoryLedger) update(ctx context.Context, sql string, productID string, n int) (inventory.Stock, error) {
	stock, err := scanStock(l.db.QueryRow(ctx, sql, productID, n))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return inventory.Stock{}, fmt.Errorf("postgres: update inventory %s: %w", productID, err)
	}
	return stock, err
}

// diagnose explains why a conditional UPDATE matched no row. It replays the
// domain rule on the current counters; if the rule now passes, a concurrent
// writer moved the row and fallback is reported.
func (l *InventoryLedger) diagnose(ctx context.Context, productID string, rule func(*inventory.Stock) error, fallback error) (inventory.Stock, error) {
	current, err := l.Get(ctx, productID)
	if err != nil {
		return inventory.Stock{}, err
	}
	replay := current
	if err := rule(&replay); err != nil {
		return current, err
	}
	return current, fallback
}

func scanStock(row pgx.Row) (inventory.Stock, error) {
	var s inventory.Stock
	err := row.Scan(&s.ProductID, &s.Quantity, &s.Reserved, &s.LowStockThreshold, &s.Version, &s.UpdatedAt)
	return s, err
}

var _ inventory.Ledger = (*InventoryLedger)(nil)
