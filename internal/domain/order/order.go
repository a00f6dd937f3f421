package order

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrNotFound             = errors.New("order: not found")
	ErrDuplicateOrderNumber = errors.New("order: order number already exists")
	ErrConflict             = errors.New("order: already exists")
	ErrStaleVersion         = errors.New("order: stale version")
	ErrNoItems              = errors.New("order: at least one item is required")
	ErrInvalidQuantity      = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice         = errors.New("order: unit price must be greater than zero")
	ErrInvalidTransition    = errors.New("order: invalid transition")
	ErrTotalMismatch        = errors.New("order: total does not match items")
	ErrUnreleased           = errors.New("order: reservations still outstanding")
	ErrMissingAddress       = errors.New("order: shipping address is incomplete")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodWallet       PaymentMethod = "wallet"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodWallet, MethodBankTransfer:
		return true
	}
	return false
}

// RequiresIntent reports whether the method is settled through the payment gateway.
func (m PaymentMethod) RequiresIntent() bool {
	return m == MethodCard || m == MethodWallet
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a Address) Validate() error {
	if strings.TrimSpace(a.Line1) == "" || strings.TrimSpace(a.City) == "" || strings.TrimSpace(a.Country) == "" {
		return ErrMissingAddress
	}
	return nil
}

type Tracking struct {
	Carrier string `json:"carrier,omitempty"`
	Number  string `json:"number,omitempty"`
}

func (t Tracking) Empty() bool { return t.Carrier == "" && t.Number == "" }

// Item is one order line. Reserved and Committed track how much of Quantity is
// currently held in the ledger and how much has been sold.
type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Reserved  int    `json:"reserved"`
	Committed int    `json:"committed"`
}

func (i Item) Subtotal() int64 { return i.UnitPrice * int64(i.Quantity) }

type Order struct {
	ID              string
	OrderNumber     string
	CustomerID      string
	Items           []Item
	TotalAmount     int64
	Currency        string
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	PaymentIntentID string
	PaymentStatus   PaymentStatus
	Status          Status
	Stage           Stage
	Tracking        Tracking
	CancelReason    string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New builds an order in (pending, pending) at the Created stage. Items carry
// captured prices and no reservations yet.
func New(id, customerID string, items []Item, currency string, address Address, method PaymentMethod) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if !method.Valid() {
		return nil, fmt.Errorf("order: unknown payment method %q", method)
	}
	if err := address.Validate(); err != nil {
		return nil, err
	}
	lines := make([]Item, len(items))
	var total int64
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, it.ProductID)
		}
		if it.UnitPrice <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPrice, it.ProductID)
		}
		if int64(it.Quantity) > (math.MaxInt64-total)/it.UnitPrice {
			return nil, fmt.Errorf("%w: %s overflows the order total", ErrInvalidQuantity, it.ProductID)
		}
		lines[i] = Item{ProductID: it.ProductID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity}
		total += lines[i].Subtotal()
	}

	now := time.Now().UTC()
	return &Order{
		ID:              id,
		CustomerID:      customerID,
		Items:           lines,
		TotalAmount:     total,
		Currency:        strings.ToUpper(currency),
		ShippingAddress: address,
		PaymentMethod:   method,
		PaymentStatus:   PaymentPending,
		Status:          StatusPending,
		Stage:           StageCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Advance moves the order to the next workflow stage.
func (o *Order) Advance(to Stage) error {
	if !CanAdvance(o.Stage, to) {
		return fmt.Errorf("%w: stage %s -> %s", ErrInvalidTransition, o.Stage, to)
	}
	o.Stage = to
	o.touch()
	return nil
}

func (o *Order) MarkReserved(i int) {
	o.Items[i].Reserved = o.Items[i].Quantity - o.Items[i].Committed
	o.touch()
}

// MarkCommitted records that line i's reservation became a sale.
func (o *Order) MarkCommitted(i int) {
	o.Items[i].Committed += o.Items[i].Reserved
	o.Items[i].Reserved = 0
	o.touch()
}

func (o *Order) MarkReleased(i int) {
	o.Items[i].Reserved = 0
	o.touch()
}

func (o *Order) HasOutstandingReservations() bool {
	for _, it := range o.Items {
		if it.Reserved > 0 {
			return true
		}
	}
	return false
}

func (o *Order) FullyCommitted() bool {
	for _, it := range o.Items {
		if it.Committed != it.Quantity {
			return false
		}
	}
	return true
}

// MarkPaid records a settled payment. Every line must already be committed.
func (o *Order) MarkPaid() error {
	if o.PaymentStatus == PaymentPaid {
		return nil
	}
	if o.PaymentStatus != PaymentPending || o.Status != StatusPending {
		return fmt.Errorf("%w: pay from %s/%s", ErrInvalidTransition, o.Status, o.PaymentStatus)
	}
	if !o.FullyCommitted() {
		return ErrUnreleased
	}
	if err := o.Advance(StagePaid); err != nil {
		return err
	}
	o.PaymentStatus = PaymentPaid
	return nil
}

func (o *Order) MarkPaymentFailed() {
	if o.PaymentStatus == PaymentPending {
		o.PaymentStatus = PaymentFailed
		o.touch()
	}
}

func (o *Order) StartProcessing() error {
	if err := ValidateStatusChange(o.Status, StatusProcessing, o.PaymentStatus); err != nil {
		return err
	}
	if err := o.Advance(StageProcessing); err != nil {
		return err
	}
	o.Status = StatusProcessing
	return nil
}

func (o *Order) Ship(tracking Tracking) error {
	if err := ValidateStatusChange(o.Status, StatusShipped, o.PaymentStatus); err != nil {
		return err
	}
	if err := o.Advance(StageShipped); err != nil {
		return err
	}
	o.Status = StatusShipped
	if !tracking.Empty() {
		o.Tracking = tracking
	}
	return nil
}

func (o *Order) Deliver(tracking Tracking) error {
	if err := ValidateStatusChange(o.Status, StatusDelivered, o.PaymentStatus); err != nil {
		return err
	}
	if err := o.Advance(StageDelivered); err != nil {
		return err
	}
	o.Status = StatusDelivered
	if !tracking.Empty() {
		o.Tracking = tracking
	}
	return nil
}

// Cancel closes an unpaid order. Reservations must already be released.
func (o *Order) Cancel(reason string) error {
	if o.PaymentStatus == PaymentPaid {
		return fmt.Errorf("%w: paid orders are refunded, not cancelled", ErrInvalidTransition)
	}
	if err := ValidateStatusChange(o.Status, StatusCancelled, o.PaymentStatus); err != nil {
		return err
	}
	if o.HasOutstandingReservations() {
		return ErrUnreleased
	}
	if err := o.Advance(StageCancelled); err != nil {
		return err
	}
	o.Status = StatusCancelled
	o.CancelReason = reason
	return nil
}

// Refund closes a paid, unshipped order. Sold stock stays sold.
func (o *Order) Refund(reason string) error {
	if o.PaymentStatus != PaymentPaid {
		return fmt.Errorf("%w: refund requires a paid order, payment is %s", ErrInvalidTransition, o.PaymentStatus)
	}
	if err := ValidateStatusChange(o.Status, StatusCancelled, o.PaymentStatus); err != nil {
		return err
	}
	if err := o.Advance(StageRefunded); err != nil {
		return err
	}
	o.Status = StatusCancelled
	o.PaymentStatus = PaymentRefunded
	o.CancelReason = reason
	return nil
}

// Validate checks the cross-field invariants of a persisted order.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrNoItems
	}
	if !o.Status.Valid() || !o.PaymentStatus.Valid() || !o.Stage.Valid() || !o.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown state %s/%s/%s", ErrInvalidTransition, o.Status, o.PaymentStatus, o.Stage)
	}
	var total int64
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if it.Reserved < 0 || it.Committed < 0 || it.Reserved+it.Committed > it.Quantity {
			return fmt.Errorf("%w: %s reserved=%d committed=%d", ErrInvalidQuantity, it.ProductID, it.Reserved, it.Committed)
		}
		total += it.Subtotal()
	}
	if total != o.TotalAmount {
		return ErrTotalMismatch
	}
	if (o.Status == StatusShipped || o.Status == StatusDelivered) && o.PaymentStatus != PaymentPaid {
		return fmt.Errorf("%w: %s while payment is %s", ErrInvalidTransition, o.Status, o.PaymentStatus)
	}
	if o.Status == StatusCancelled && o.HasOutstandingReservations() {
		return ErrUnreleased
	}
	return nil
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
