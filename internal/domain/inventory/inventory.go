package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrReservationUnderflow means a commit asked for more than is currently reserved.
	ErrReservationUnderflow = errors.New("inventory: commit exceeds reserved quantity")
	// ErrBelowReserved means an adjustment would leave quantity below the reserved amount.
	ErrBelowReserved   = errors.New("inventory: quantity cannot drop below reserved")
	ErrInvalidAdjust   = errors.New("inventory: adjustment needs exactly one of delta or absolute")
	ErrNegativeBalance = errors.New("inventory: quantity cannot be negative")
)

// Stock holds the counters for one product. Available is always derived.
type Stock struct {
	ProductID         string
	Quantity          int
	Reserved          int
	LowStockThreshold int
	Version           int64
	UpdatedAt         time.Time
}

func NewStock(productID string, quantity, lowStockThreshold int) (*Stock, error) {
	if quantity < 0 {
		return nil, ErrNegativeBalance
	}
	return &Stock{
		ProductID:         productID,
		Quantity:          quantity,
		LowStockThreshold: lowStockThreshold,
		UpdatedAt:         time.Now().UTC(),
	}, nil
}

func (s *Stock) Available() int {
	return s.Quantity - s.Reserved
}

// IsLow reports whether available stock sits below the alert threshold.
func (s *Stock) IsLow() bool {
	return s.LowStockThreshold > 0 && s.Available() < s.LowStockThreshold
}

// CrossedLowStock reports whether s dropped under the threshold compared to the earlier snapshot.
func (s *Stock) CrossedLowStock(before Stock) bool {
	return s.IsLow() && !before.IsLow()
}

func (s *Stock) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if s.Available() < quantity {
		return ErrInsufficientStock
	}
	s.Reserved += quantity
	s.touch()
	return nil
}

// Release drops up to quantity from the reserved counter; it never goes below zero.
func (s *Stock) Release(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	s.Reserved -= quantity
	if s.Reserved < 0 {
		s.Reserved = 0
	}
	s.touch()
	return nil
}

// Commit turns a reservation into a sale.
func (s *Stock) Commit(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if s.Reserved < quantity {
		return ErrReservationUnderflow
	}
	s.Reserved -= quantity
	s.Quantity -= quantity
	s.touch()
	return nil
}

// Apply performs an administrative adjustment.
func (s *Stock) Apply(adj Adjustment) error {
	if err := adj.Validate(); err != nil {
		return err
	}
	next := s.Quantity
	if adj.Delta != nil {
		next += *adj.Delta
	} else {
		next = *adj.Absolute
	}
	if next < 0 {
		return ErrNegativeBalance
	}
	if next < s.Reserved {
		return ErrBelowReserved
	}
	s.Quantity = next
	s.touch()
	return nil
}

func (s *Stock) touch() {
	s.Version++
	s.UpdatedAt = time.Now().UTC()
}

// Adjustment is either a relative restock (Delta) or an absolute count (Absolute).
type Adjustment struct {
	Delta    *int
	Absolute *int
	Reason   string
}

func Delta(n int) Adjustment    { return Adjustment{Delta: &n} }
func Absolute(n int) Adjustment { return Adjustment{Absolute: &n} }

func (a Adjustment) Validate() error {
	if (a.Delta == nil) == (a.Absolute == nil) {
		return ErrInvalidAdjust
	}
	return nil
}
