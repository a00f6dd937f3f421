package inventory

import "time"

// StockLowEvent is emitted when available stock crosses below the product's threshold.
type StockLowEvent struct {
	ProductID  string    `json:"product_id"`
	Available  int       `json:"available"`
	Threshold  int       `json:"threshold"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StockLowEvent) EventName() string     { return "inventory.stock_low" }
func (e StockLowEvent) AggregateID() string { return e.ProductID }

func NewStockLowEvent(s Stock) StockLowEvent {
	return StockLowEvent{
		ProductID:  s.ProductID,
		Available:  s.Available(),
		Threshold:  s.LowStockThreshold,
		OccurredAt: time.Now().UTC(),
	}
}

// StockAdjustedEvent is emitted after an administrative restock or recount.
type StockAdjustedEvent struct {
	ProductID   string    `json:"product_id"`
	OldQuantity int       `json:"old_quantity"`
	NewQuantity int       `json:"new_quantity"`
	Reserved    int       `json:"reserved"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (StockAdjustedEvent) EventName() string     { return "inventory.adjusted" }
func (e StockAdjustedEvent) AggregateID() string { return e.ProductID }

func NewStockAdjustedEvent(before, after Stock, reason string) StockAdjustedEvent {
	return StockAdjustedEvent{
		ProductID:   after.ProductID,
		OldQuantity: before.Quantity,
		NewQuantity: after.Quantity,
		Reserved:    after.Reserved,
		Reason:      reason,
		OccurredAt:  time.Now().UTC(),
	}
}
