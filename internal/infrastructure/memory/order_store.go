package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type OrderStore struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order
	byNumber map[string]string
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:   make(map[string]*domain.Order),
		byNumber: make(map[string]string),
	}
}

func (s *OrderStore) Insert(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order == nil || order.ID == "" || order.OrderNumber == "" {
		return fmt.Errorf("order store: id and order number are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return domain.ErrConflict
	}
	if _, exists := s.byNumber[order.OrderNumber]; exists {
		return domain.ErrDuplicateOrderNumber
	}

	order.Version = 1
	s.orders[order.ID] = order.Clone()
	s.byNumber[order.OrderNumber] = order.ID
	return nil
}

// Update replaces the stored order when order.Version matches and bumps the version.
func (s *OrderStore) Update(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order == nil || order.ID == "" {
		return fmt.Errorf("order store: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.orders[order.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if current.Version != order.Version {
		return domain.ErrStaleVersion
	}

	order.Version++
	s.orders[order.ID] = order.Clone()
	return nil
}

func (s *OrderStore) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (s *OrderStore) FindByOrderNumber(ctx context.Context, number string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNumber[number]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.orders[id].Clone(), nil
}

func (s *OrderStore) ListAwaitingPayment(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*domain.Order, 0)
	for _, o := range s.orders {
		if o.Stage == domain.StageAwaitingPayment && o.CreatedAt.Before(before) {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
