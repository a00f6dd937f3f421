package memory

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

// Catalog serves product metadata from memory. When a ledger is attached the
// returned product carries a fresh inventory snapshot.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
	ledger   inventory.Ledger
}

func NewCatalog(ledger inventory.Ledger) *Catalog {
	return &Catalog{
		products: make(map[string]catalog.Product),
		ledger:   ledger,
	}
}

func (c *Catalog) Put(p catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *Catalog) FindByID(ctx context.Context, productID string) (catalog.Product, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Product{}, err
	}

	c.mu.RLock()
	p, ok := c.products[productID]
	c.mu.RUnlock()
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}

	if c.ledger != nil {
		if stock, err := c.ledger.Get(ctx, productID); err == nil {
			p.Inventory = stock
		}
	}
	return p, nil
}
