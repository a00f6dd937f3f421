package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

const (
	orderColumns = `id, order_number, customer_id, items, total_amount, currency, shipping_address,
		payment_method, payment_intent_id, payment_status, status, stage, tracking, cancel_reason,
		version, created_at, updated_at`

	constraintOrderNumbers = "orders_order_number_key"
)

// OrderStore keeps orders in one row each; line items, address and tracking are JSONB.
type OrderStore struct {
	db DB
}

func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" || o.OrderNumber == "" {
		return fmt.Errorf("order store: id and order number are required")
	}
	doc, err := encodeOrder(o)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16)
	`, o.ID, o.OrderNumber, o.CustomerID, doc.items, o.TotalAmount, o.Currency, doc.address,
		string(o.PaymentMethod), o.PaymentIntentID, string(o.PaymentStatus), string(o.Status), string(o.Stage),
		doc.tracking, o.CancelReason, o.CreatedAt, o.UpdatedAt)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == constraintOrderNumbers {
			return domain.ErrDuplicateOrderNumber
		}
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	o.Version = 1
	return nil
}

// Update writes o when the stored version still equals o.Version, then bumps o.Version.
func (s *OrderStore) Update(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order store: id is required")
	}
	doc, err := encodeOrder(o)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE orders SET
			items = $3, total_amount = $4, shipping_address = $5, payment_intent_id = $6,
			payment_status = $7, status = $8, stage = $9, tracking = $10, cancel_reason = $11,
			updated_at = $12, version = version + 1
		WHERE id = $1 AND version = $2
	`, o.ID, o.Version, doc.items, o.TotalAmount, doc.address, o.PaymentIntentID,
		string(o.PaymentStatus), string(o.Status), string(o.Stage), doc.tracking, o.CancelReason, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrStaleVersion
	}
	o.Version++
	return nil
}

func (s *OrderStore) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *OrderStore) FindByOrderNumber(ctx context.Context, number string) (*domain.Order, error) {
	return s.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
}

func (s *OrderStore) ListAwaitingPayment(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE stage = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, string(domain.StageAwaitingPayment), before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list awaiting payment: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list awaiting payment: %w", err)
	}
	return out, nil
}

func (s *OrderStore) findOne(ctx context.Context, sql, arg string) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return o, err
}

type orderDocument struct {
	items, address, tracking []byte
}

func encodeOrder(o *domain.Order) (orderDocument, error) {
	var (
		doc orderDocument
		err error
	)
	if doc.items, err = json.Marshal(o.Items); err != nil {
		return doc, fmt.Errorf("postgres: encode items: %w", err)
	}
	if doc.address, err = json.Marshal(o.ShippingAddress); err != nil {
		return doc, fmt.Errorf("postgres: encode address: %w", err)
	}
	if doc.tracking, err = json.Marshal(o.Tracking); err != nil {
		return doc, fmt.Errorf("postgres: encode tracking: %w", err)
	}
	return doc, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                                    domain.Order
		doc                                  orderDocument
		method, paymentStatus, status, stage string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &doc.items, &o.TotalAmount, &o.Currency, &doc.address,
		&method, &o.PaymentIntentID, &paymentStatus, &status, &stage, &doc.tracking, &o.CancelReason,
		&o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scan order: %w", err)
	}
	o.PaymentMethod = domain.PaymentMethod(method)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.Status = domain.Status(status)
	o.Stage = domain.Stage(stage)

	if err := json.Unmarshal(doc.items, &o.Items); err != nil {
		return nil, fmt.Errorf("postgres: decode items: %w", err)
	}
	if err := json.Unmarshal(doc.address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("postgres: decode address: %w", err)
	}
	if err := json.Unmarshal(doc.tracking, &o.Tracking); err != nil {
		return nil, fmt.Errorf("postgres: decode tracking: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

var _ domain.Store = (*OrderStore)(nil)
