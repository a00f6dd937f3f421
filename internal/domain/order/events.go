package order

import "time"

type OrderCreatedEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  string    `json:"customer_id"`
	Items       []Item    `json:"items"`
	TotalAmount int64     `json:"total_amount"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (OrderCreatedEvent) EventName() string     { return "order.created" }
func (e OrderCreatedEvent) AggregateID() string { return e.OrderID }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Items:       append([]Item(nil), o.Items...),
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		OccurredAt:  time.Now().UTC(),
	}
}

type OrderPaidEvent struct {
	OrderID         string    `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	TotalAmount     int64     `json:"total_amount"`
	Currency        string    `json:"currency"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (OrderPaidEvent) EventName() string     { return "order.paid" }
func (e OrderPaidEvent) AggregateID() string { return e.OrderID }

func NewOrderPaidEvent(o *Order) OrderPaidEvent {
	return OrderPaidEvent{
		OrderID:         o.ID,
		PaymentIntentID: o.PaymentIntentID,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		OccurredAt:      time.Now().UTC(),
	}
}

type OrderCancelledEvent struct {
	OrderID    string    `json:"order_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderCancelledEvent) EventName() string     { return "order.cancelled" }
func (e OrderCancelledEvent) AggregateID() string { return e.OrderID }

func NewOrderCancelledEvent(o *Order) OrderCancelledEvent {
	return OrderCancelledEvent{OrderID: o.ID, Reason: o.CancelReason, OccurredAt: time.Now().UTC()}
}

type OrderRefundedEvent struct {
	OrderID         string    `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	TotalAmount     int64     `json:"total_amount"`
	Reason          string    `json:"reason"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (OrderRefundedEvent) EventName() string     { return "order.refunded" }
func (e OrderRefundedEvent) AggregateID() string { return e.OrderID }

func NewOrderRefundedEvent(o *Order) OrderRefundedEvent {
	return OrderRefundedEvent{
		OrderID:         o.ID,
		PaymentIntentID: o.PaymentIntentID,
		TotalAmount:     o.TotalAmount,
		Reason:          o.CancelReason,
		OccurredAt:      time.Now().UTC(),
	}
}

type OrderStatusChangedEvent struct {
	OrderID    string    `json:"order_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Tracking   Tracking  `json:"tracking"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderStatusChangedEvent) EventName() string     { return "order.status_changed" }
func (e OrderStatusChangedEvent) AggregateID() string { return e.OrderID }

func NewOrderStatusChangedEvent(o *Order, from Status) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		OrderID:    o.ID,
		From:       from,
		To:         o.Status,
		Tracking:   o.Tracking,
		OccurredAt: time.Now().UTC(),
	}
}
