package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/catalog"
)

type Catalog struct {
	db DB
}

func NewCatalog(db DB) *Catalog {
	return &Catalog{db: db}
}

// Put upserts product metadata. Stock lives in the ledger and is untouched.
func (c *Catalog) Put(ctx context.Context, p catalog.Product) error {
	_, err := c.db.Exec(ctx, `
		INSERT INTO products (id, name, price, currency, active)
		VALUES ($1, $2, $3::numeric, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, currency = EXCLUDED.currency, active = EXCLUDED.active
	`, p.ID, p.Name, p.Price.String(), p.Currency, p.Active)
	if err != nil {
		return fmt.Errorf("postgres: put product %s: %w", p.ID, err)
	}
	return nil
}

// FindByID returns the product with an inventory snapshot when the ledger has a row for it.
func (c *Catalog) FindByID(ctx context.Context, productID string) (catalog.Product, error) {
	var (
		p                             catalog.Product
		price                         string
		quantity, reserved, threshold *int
		version                       *int64
	)
	err := c.db.QueryRow(ctx, `
		SELECT p.id, p.name, p.price::text, p.currency, p.active,
		       i.quantity, i.reserved, i.low_stock_threshold, i.version
		FROM products p
		LEFT JOIN inventory i ON i.product_id = p.id
		WHERE p.id = $1
	`, productID).Scan(&p.ID, &p.Name, &price, &p.Currency, &p.Active, &quantity, &reserved, &threshold, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("postgres: find product %s: %w", productID, err)
	}

	if p.Price, err = decimal.NewFromString(price); err != nil {
		return catalog.Product{}, fmt.Errorf("postgres: product %s price: %w", productID, err)
	}
	p.Inventory.ProductID = p.ID
	if quantity != nil {
		p.Inventory.Quantity = *quantity
		p.Inventory.Reserved = *reserved
		p.Inventory.LowStockThreshold = *threshold
		p.Inventory.Version = *version
	}
	return p, nil
}

var _ catalog.Catalog = (*Catalog)(nil)
