package order

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddress() Address {
	return Address{Name: "Ada", Line1: "1 Main St", City: "Taipei", PostalCode: "100", Country: "TW"}
}

func newTestOrder(t *testing.T, method PaymentMethod) *Order {
	t.Helper()
	o, err := New("o-1", "c-1", []Item{
		{ProductID: "p-1", Name: "Mug", UnitPrice: 1250, Quantity: 2},
		{ProductID: "p-2", Name: "Tea", UnitPrice: 499, Quantity: 1},
	}, "usd", testAddress(), method)
	require.NoError(t, err)
	return o
}

// awaitingPayment walks an order through reservation the way the workflow does.
func awaitingPayment(t *testing.T, o *Order) {
	t.Helper()
	require.NoError(t, o.Advance(StageReservationPending))
	for i := range o.Items {
		o.MarkReserved(i)
	}
	require.NoError(t, o.Advance(StageReserved))
	require.NoError(t, o.Advance(StageAwaitingPayment))
}

func TestNew(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t, MethodCard)
	assert.Equal(t, int64(2999), o.TotalAmount)
	assert.Equal(t, "USD", o.Currency)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, StageCreated, o.Stage)
	require.NoError(t, o.Validate())

	tests := []struct {
		name    string
		items   []Item
		addr    Address
		method  PaymentMethod
		wantErr error
	}{
		{name: "no_items", addr: testAddress(), method: MethodCard, wantErr: ErrNoItems},
		{name: "zero_qty", items: []Item{{ProductID: "p", UnitPrice: 1}}, addr: testAddress(), method: MethodCard, wantErr: ErrInvalidQuantity},
		{name: "zero_price", items: []Item{{ProductID: "p", Quantity: 1}}, addr: testAddress(), method: MethodCard, wantErr: ErrInvalidPrice},
		{name: "no_address", items: []Item{{ProductID: "p", UnitPrice: 1, Quantity: 1}}, method: MethodCard, wantErr: ErrMissingAddress},
		{name: "subtotal_overflow", items: []Item{{ProductID: "p", UnitPrice: math.MaxInt64 / 2, Quantity: 3}}, addr: testAddress(), method: MethodCard, wantErr: ErrInvalidQuantity},
		{name: "total_overflow", items: []Item{
			{ProductID: "p", UnitPrice: math.MaxInt64 / 2, Quantity: 1},
			{ProductID: "q", UnitPrice: math.MaxInt64 / 2, Quantity: 1},
			{ProductID: "r", UnitPrice: 2, Quantity: 1},
		}, addr: testAddress(), method: MethodCard, wantErr: ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New("o", "c", tt.items, "USD", tt.addr, tt.method)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := New("o", "c", []Item{{ProductID: "p", UnitPrice: 1, Quantity: 1}}, "USD", testAddress(), "cash")
	assert.Error(t, err)
}

func TestPaymentMethodRequiresIntent(t *testing.T) {
	t.Parallel()

	assert.True(t, MethodCard.RequiresIntent())
	assert.True(t, MethodWallet.RequiresIntent())
	assert.False(t, MethodBankTransfer.RequiresIntent())
}

func TestPaidLifecycle(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t, MethodCard)
	awaitingPayment(t, o)

	assert.ErrorIs(t, o.MarkPaid(), ErrUnreleased, "cannot pay before commit")

	for i := range o.Items {
		o.MarkCommitted(i)
	}
	require.NoError(t, o.MarkPaid())
	require.NoError(t, o.MarkPaid(), "paying twice is a no-op")
	require.NoError(t, o.StartProcessing())
	assert.Equal(t, StageProcessing, o.Stage)

	require.NoError(t, o.Ship(Tracking{Carrier: "DHL", Number: "123"}))
	require.NoError(t, o.Deliver(Tracking{}))
	assert.Equal(t, StatusDelivered, o.Status)
	assert.Equal(t, "DHL", o.Tracking.Carrier)
	assert.True(t, o.Stage.Terminal())
	require.NoError(t, o.Validate())

	assert.ErrorIs(t, o.Cancel("late"), ErrInvalidTransition)
}

func TestShipRequiresPayment(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t, MethodBankTransfer)
	awaitingPayment(t, o)

	assert.ErrorIs(t, o.StartProcessing(), ErrInvalidTransition)
	assert.ErrorIs(t, o.Ship(Tracking{}), ErrInvalidTransition)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t, MethodCard)
	awaitingPayment(t, o)

	assert.ErrorIs(t, o.Cancel("changed mind"), ErrUnreleased)

	for i := range o.Items {
		o.MarkReleased(i)
	}
	require.NoError(t, o.Cancel("changed mind"))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, StageCancelled, o.Stage)
	assert.Equal(t, "changed mind", o.CancelReason)
	require.NoError(t, o.Validate())

	assert.ErrorIs(t, o.Cancel("again"), ErrInvalidTransition)
}

func TestRefund(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t, MethodCard)
	awaitingPayment(t, o)
	assert.ErrorIs(t, o.Refund("x"), ErrInvalidTransition)

	for i := range o.Items {
		o.MarkCommitted(i)
	}
	require.NoError(t, o.MarkPaid())
	require.NoError(t, o.StartProcessing())
	assert.ErrorIs(t, o.Cancel("x"), ErrInvalidTransition)

	require.NoError(t, o.Refund("customer request"))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, PaymentRefunded, o.PaymentStatus)
	assert.Equal(t, StageRefunded, o.Stage)
	assert.True(t, o.FullyCommitted())
	require.NoError(t, o.Validate())
}

func TestValidateStatusChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    Status
		to      Status
		payment PaymentStatus
		ok      bool
	}{
		{StatusPending, StatusProcessing, PaymentPaid, true},
		{StatusPending, StatusProcessing, PaymentPending, false},
		{StatusPending, StatusShipped, PaymentPaid, false},
		{StatusPending, StatusCancelled, PaymentPending, true},
		{StatusProcessing, StatusShipped, PaymentPaid, true},
		{StatusProcessing, StatusPending, PaymentPaid, false},
		{StatusProcessing, StatusCancelled, PaymentPaid, true},
		{StatusShipped, StatusDelivered, PaymentPaid, true},
		{StatusShipped, StatusCancelled, PaymentPaid, false},
		{StatusDelivered, StatusCancelled, PaymentPaid, false},
		{StatusCancelled, StatusPending, PaymentPending, false},
		{StatusPending, Status("lost"), PaymentPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to)+"_"+string(tt.payment), func(t *testing.T) {
			t.Parallel()
			err := ValidateStatusChange(tt.from, tt.to, tt.payment)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestStageTable(t *testing.T) {
	t.Parallel()

	assert.True(t, CanAdvance(StageReservationPending, StageReservationFailed))
	assert.True(t, CanAdvance(StagePaid, StageRefunded))
	assert.False(t, CanAdvance(StageShipped, StageCancelled))
	assert.False(t, CanAdvance(StageDelivered, StageRefunded))
	assert.True(t, StageReservationFailed.Terminal())
	assert.False(t, Stage("unknown").Valid())
}

func TestValidateInvariants(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t, MethodCard)
	o.TotalAmount++
	assert.ErrorIs(t, o.Validate(), ErrTotalMismatch)

	o = newTestOrder(t, MethodCard)
	o.Status = StatusShipped
	assert.ErrorIs(t, o.Validate(), ErrInvalidTransition)

	o = newTestOrder(t, MethodCard)
	o.MarkReserved(0)
	o.Status = StatusCancelled
	assert.ErrorIs(t, o.Validate(), ErrUnreleased)
}

func TestClone(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t, MethodCard)
	cp := o.Clone()
	cp.Items[0].Reserved = 2
	assert.Zero(t, o.Items[0].Reserved)
}
