package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

func TestCreateOrderReservesAndPersists(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "mug", price: "12.50", quantity: 10}, seed{id: "tea", price: "4.99", quantity: 3})

	res, err := h.create(context.Background(), "c-1", domain.MethodCard, item("mug", 2), item("tea", 1))
	require.NoError(t, err)

	o := res.Order
	assert.NotEmpty(t, o.ID)
	assert.Regexp(t, `^MS-\d{8}-[0-9A-Z]{6}$`, o.OrderNumber)
	assert.Equal(t, int64(2*1250+499), o.TotalAmount)
	assert.Equal(t, "USD", o.Currency)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, domain.PaymentPending, o.PaymentStatus)
	assert.Equal(t, domain.StageAwaitingPayment, o.Stage)
	assert.NotEmpty(t, o.PaymentIntentID)
	assert.NotEmpty(t, res.ClientSecret)

	assert.Equal(t, 2, h.stock(t, "mug").Reserved)
	assert.Equal(t, 1, h.stock(t, "tea").Reserved)

	stored, err := h.store.FindByOrderNumber(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)
	assert.Equal(t, 2, stored.Items[0].Reserved)
	require.NoError(t, stored.Validate())

	assert.Equal(t, 1, h.events.count("order.created"))
}

func TestCreateOrderMergesRepeatedProducts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "mug", price: "10", quantity: 10})

	o := h.mustCreate(t, "c-1", domain.MethodBankTransfer, item("mug", 1), item("mug", 2))
	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, int64(3000), o.TotalAmount)
	assert.Empty(t, o.PaymentIntentID, "offline payments have no intent")
	assert.Equal(t, 3, h.stock(t, "mug").Reserved)
}

func TestCreateOrderConcurrentRequestsNeverOversell(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "1.00", quantity: 10})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.create(context.Background(), "c-1", domain.MethodCard, item("p", 6))
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientInventory):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)

	s := h.stock(t, "p")
	assert.Equal(t, 6, s.Reserved)
	assert.Equal(t, 4, s.Available())
	assert.Equal(t, 1, h.store.Len())
}

func TestCreateOrderManyConcurrentBuyers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "a", price: "1", quantity: 25}, seed{id: "b", price: "1", quantity: 40})

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.create(context.Background(), "c", domain.MethodCard, item("a", 1), item("b", 1))
		}()
	}
	wg.Wait()

	a, b := h.stock(t, "a"), h.stock(t, "b")
	assert.Equal(t, 25, a.Reserved)
	assert.Equal(t, 25, b.Reserved, "b is only held by orders that also got a")
	assert.Equal(t, 25, h.store.Len())
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "first", price: "3", quantity: 5}, seed{id: "second", price: "3", quantity: 1})

	_, err := h.create(context.Background(), "c-1", domain.MethodCard, item("first", 2), item("second", 3))
	require.ErrorIs(t, err, apperr.ErrInsufficientInventory)
	assert.Contains(t, apperr.Message(err), "second")

	assert.Zero(t, h.stock(t, "first").Reserved)
	assert.Zero(t, h.stock(t, "second").Reserved)
	assert.Zero(t, h.store.Len())
	assert.Empty(t, h.events.names())
}

func TestCreateOrderCompensatesWhenIntentFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "3", quantity: 5})
	h.gateway.createErr = errors.New("gateway: 503")

	_, err := h.create(context.Background(), "c-1", domain.MethodWallet, item("p", 2))
	require.ErrorIs(t, err, apperr.ErrPaymentGateway)

	assert.Zero(t, h.stock(t, "p").Reserved)
	assert.Zero(t, h.store.Len())
}

func TestCreateOrderRetriesOrderNumberCollision(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "3", quantity: 5})
	h.numbers = &scriptedNumbers{numbers: []string{"MS-1", "MS-1", "MS-2"}}
	h.build(t)

	first := h.mustCreate(t, "c-1", domain.MethodCard, item("p", 1))
	assert.Equal(t, "MS-1", first.OrderNumber)

	second := h.mustCreate(t, "c-2", domain.MethodCard, item("p", 1))
	assert.Equal(t, "MS-2", second.OrderNumber)
	assert.Equal(t, 2, h.stock(t, "p").Reserved)
}

func TestCreateOrderGivesUpOnPersistentCollisions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "3", quantity: 5})
	h.numbers = &scriptedNumbers{numbers: []string{"MS-1"}}
	h.build(t)

	h.mustCreate(t, "c-1", domain.MethodCard, item("p", 1))

	_, err := h.create(context.Background(), "c-2", domain.MethodCard, item("p", 2))
	require.ErrorIs(t, err, apperr.ErrDuplicateOrderNumber)
	assert.Equal(t, 1, h.stock(t, "p").Reserved, "only the first order holds stock")
	assert.Equal(t, 1, h.store.Len())
}

func TestCreateOrderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		customer string
		method   domain.PaymentMethod
		items    []CreateOrderItem
		wantKind apperr.Kind
	}{
		{name: "missing_customer", method: domain.MethodCard, items: []CreateOrderItem{item("p", 1)}, wantKind: apperr.KindValidation},
		{name: "no_items", customer: "c", method: domain.MethodCard, wantKind: apperr.KindValidation},
		{name: "zero_quantity", customer: "c", method: domain.MethodCard, items: []CreateOrderItem{item("p", 0)}, wantKind: apperr.KindValidation},
		{name: "unknown_method", customer: "c", method: "cash", items: []CreateOrderItem{item("p", 1)}, wantKind: apperr.KindValidation},
		{name: "unknown_product", customer: "c", method: domain.MethodCard, items: []CreateOrderItem{item("p", 1), item("ghost", 1)}, wantKind: apperr.KindNotFound},
		{name: "inactive_product", customer: "c", method: domain.MethodCard, items: []CreateOrderItem{item("retired", 1)}, wantKind: apperr.KindValidation},
		{name: "mixed_currency", customer: "c", method: domain.MethodCard, items: []CreateOrderItem{item("p", 1), item("yen", 1)}, wantKind: apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t,
				seed{id: "p", price: "1", quantity: 5},
				seed{id: "retired", price: "1", quantity: 5, inactive: true},
				seed{id: "yen", price: "100", currency: "JPY", quantity: 5},
			)
			_, err := h.create(context.Background(), tt.customer, tt.method, tt.items...)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))

			for _, p := range []string{"p", "retired", "yen"} {
				assert.Zero(t, h.stock(t, p).Reserved, p)
			}
			assert.Zero(t, h.store.Len())
		})
	}
}

func TestCreateOrderPublishesLowStockAlert(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.ledger.Seed("p", 10, 5))
	h.catalog.Put(productFor("p"))

	h.mustCreate(t, "c", domain.MethodCard, item("p", 4))
	assert.Zero(t, h.events.count("inventory.stock_low"))

	h.mustCreate(t, "c", domain.MethodCard, item("p", 2))
	assert.Equal(t, 1, h.events.count("inventory.stock_low"))

	h.mustCreate(t, "c", domain.MethodCard, item("p", 1))
	assert.Equal(t, 1, h.events.count("inventory.stock_low"), "alert only on crossing")
}

func TestCreateOrderRecordsSpan(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "1", quantity: 1})
	h.mustCreate(t, "c", domain.MethodCard, item("p", 1))
	_, err := h.create(context.Background(), "c", domain.MethodCard, item("p", 1))
	require.Error(t, err)

	spans := h.recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "UC.CreateOrder", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "INSUFFICIENT_INVENTORY", spans[1].Status().Description)
}

func TestCreateOrderAbortVoidsPaymentIntent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "3", quantity: 5})
	h.numbers = &scriptedNumbers{numbers: []string{"MS-1"}}
	h.build(t)
	h.mustCreate(t, "c-1", domain.MethodCard, item("p", 1))

	_, err := h.create(context.Background(), "c-2", domain.MethodCard, item("p", 2))
	require.ErrorIs(t, err, apperr.ErrDuplicateOrderNumber)

	orphan := h.gateway.lastIntent()
	require.NotEmpty(t, orphan)
	assert.Equal(t, dompay.StatusCanceled, h.gateway.status(t, orphan))
}
