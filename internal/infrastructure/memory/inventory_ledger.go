package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

// stockCell guards the counters of a single product.
type stockCell struct {
	mu    sync.Mutex
	stock domain.Stock
}

// InventoryLedger keeps stock counters in memory. Each product has its own lock,
// the map lock only protects lookups and seeding.
type InventoryLedger struct {
	mu    sync.RWMutex
	cells map[string]*stockCell
}

func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{
		cells: make(map[string]*stockCell),
	}
}

// Seed creates or replaces the counters for a product.
func (l *InventoryLedger) Seed(productID string, quantity, lowStockThreshold int) error {
	stock, err := domain.NewStock(productID, quantity, lowStockThreshold)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cells[productID] = &stockCell{stock: *stock}
	return nil
}

func (l *InventoryLedger) TryReserve(ctx context.Context, productID string, quantity int) (domain.Stock, error) {
	return l.mutate(ctx, productID, func(s *domain.Stock) error {
		return s.Reserve(quantity)
	})
}

func (l *InventoryLedger) Release(ctx context.Context, productID string, quantity int) (domain.Stock, error) {
	return l.mutate(ctx, productID, func(s *domain.Stock) error {
		return s.Release(quantity)
	})
}

func (l *InventoryLedger) Commit(ctx context.Context, productID string, quantity int) (domain.Stock, error) {
	return l.mutate(ctx, productID, func(s *domain.Stock) error {
		return s.Commit(quantity)
	})
}

func (l *InventoryLedger) Adjust(ctx context.Context, productID string, adj domain.Adjustment) (domain.Stock, error) {
	return l.mutate(ctx, productID, func(s *domain.Stock) error {
		return s.Apply(adj)
	})
}

func (l *InventoryLedger) Get(ctx context.Context, productID string) (domain.Stock, error) {
	if err := ctx.Err(); err != nil {
		return domain.Stock{}, err
	}
	c, err := l.cell(productID)
	if err != nil {
		return domain.Stock{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stock, nil
}

// Snapshot returns every product's counters ordered by product id.
func (l *InventoryLedger) Snapshot() []domain.Stock {
	l.mu.RLock()
	cells := make([]*stockCell, 0, len(l.cells))
	for _, c := range l.cells {
		cells = append(cells, c)
	}
	l.mu.RUnlock()

	out := make([]domain.Stock, 0, len(cells))
	for _, c := range cells {
		c.mu.Lock()
		out = append(out, c.stock)
		c.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (l *InventoryLedger) cell(productID string) (*stockCell, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.cells[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// mutate applies fn to a copy under the product lock and stores it only on success.
func (l *InventoryLedger) mutate(ctx context.Context, productID string, fn func(*domain.Stock) error) (domain.Stock, error) {
	if err := ctx.Err(); err != nil {
		return domain.Stock{}, err
	}
	c, err := l.cell(productID)
	if err != nil {
		return domain.Stock{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.stock
	if err := fn(&next); err != nil {
		return c.stock, err
	}
	c.stock = next
	return next, nil
}
