package order

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

func (h *harness) cancel(orderID string, r Requester) (*domain.Order, error) {
	return NewCancelOrderUseCase(h.w).Execute(context.Background(), CancelOrderCommand{OrderID: orderID, Requester: r})
}

func TestCancelOrderReleasesReservations(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "a", price: "1", quantity: 10}, seed{id: "b", price: "1", quantity: 10})
	o := h.mustCreate(t, "c-1", domain.MethodCard, item("a", 4), item("b", 6))

	cancelled, err := h.cancel(o.ID, Requester{ID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, ReasonCustomerRequest, cancelled.CancelReason)
	assert.False(t, cancelled.HasOutstandingReservations())

	for _, p := range []string{"a", "b"} {
		s := h.stock(t, p)
		assert.Zero(t, s.Reserved, p)
		assert.Equal(t, 10, s.Quantity, p)
	}

	again, err := h.cancel(o.ID, Requester{ID: "c-1"})
	require.NoError(t, err, "cancelling twice is a no-op")
	assert.Equal(t, domain.StatusCancelled, again.Status)
	assert.Zero(t, h.stock(t, "a").Reserved)
	assert.Equal(t, 1, h.events.count("order.cancelled"))
}

func TestCancelOrderDoesNotTouchOtherReservations(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "1", quantity: 10})
	keep := h.mustCreate(t, "c-1", domain.MethodCard, item("p", 3))
	drop := h.mustCreate(t, "c-2", domain.MethodCard, item("p", 4))

	_, err := h.cancel(drop.ID, Requester{ID: "c-2"})
	require.NoError(t, err)
	_, err = h.cancel(drop.ID, Requester{ID: "c-2"})
	require.NoError(t, err)

	assert.Equal(t, 3, h.stock(t, "p").Reserved)
	_, err = h.confirm(context.Background(), keep.ID, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 7, h.stock(t, "p").Quantity)
}

func TestCancelPaidOrderRefundsAndKeepsSale(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "1", quantity: 10})
	o := h.mustCreate(t, "c-1", domain.MethodCard, item("p", 4))
	_, err := h.confirm(context.Background(), o.ID, "c-1")
	require.NoError(t, err)

	cancelled, err := h.cancel(o.ID, Requester{ID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, domain.PaymentRefunded, cancelled.PaymentStatus)
	assert.Equal(t, domain.StageRefunded, cancelled.Stage)

	s := h.stock(t, "p")
	assert.Equal(t, 6, s.Quantity, "sold stock stays sold")
	assert.Zero(t, s.Reserved)

	intent, err := h.gateway.RetrieveIntent(context.Background(), o.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusRefunded, intent.Status)
}

func TestCancelOrderRefundFailureLeavesOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "1", quantity: 10})
	o := h.mustCreate(t, "c-1", domain.MethodCard, item("p", 4))
	_, err := h.confirm(context.Background(), o.ID, "c-1")
	require.NoError(t, err)
	h.gateway.refundErr = errors.New("gateway: 500")

	_, err = h.cancel(o.ID, admin)
	require.ErrorIs(t, err, apperr.ErrPaymentGateway)

	stored, err := h.store.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
	assert.Equal(t, domain.PaymentPaid, stored.PaymentStatus)
}

func TestCancelOrderRules(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "1", quantity: 10})

	o := h.mustCreate(t, "c-1", domain.MethodCard, item("p", 1))
	_, err := h.cancel(o.ID, Requester{ID: "c-2"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	byAdmin, err := h.cancel(o.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, ReasonAdminCancel, byAdmin.CancelReason)

	shipped := h.mustCreate(t, "c-1", domain.MethodCard, item("p", 1))
	_, err = h.confirm(context.Background(), shipped.ID, "c-1")
	require.NoError(t, err)
	_, err = h.updateStatus(shipped.ID, domain.StatusShipped, domain.Tracking{Carrier: "UPS", Number: "1Z"})
	require.NoError(t, err)

	_, err = h.cancel(shipped.ID, Requester{ID: "c-1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = h.cancel("missing", admin)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancelOrderVoidsPaymentIntent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "2", quantity: 5})
	o := h.mustCreate(t, "c-1", domain.MethodCard, item("p", 1))

	_, err := h.cancel(o.ID, Requester{ID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusCanceled, h.gateway.status(t, o.PaymentIntentID))

	_, err = h.confirm(context.Background(), o.ID, "c-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestCancelOrderRefundsIntentPaidAfterTheFact(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "2", quantity: 5})
	o := h.mustCreate(t, "c-1", domain.MethodCard, item("p", 1))
	require.NoError(t, h.gateway.Settle(o.PaymentIntentID, dompay.StatusSucceeded))

	cancelled, err := h.cancel(o.ID, Requester{ID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, dompay.StatusRefunded, h.gateway.status(t, o.PaymentIntentID))
	assert.Zero(t, h.stock(t, "p").Reserved)
}

func TestCancelOrderSucceedsWhenIntentCannotBeVoided(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "2", quantity: 5})
	o := h.mustCreate(t, "c-1", domain.MethodCard, item("p", 1))
	h.gateway.cancelErr = errors.New("gateway: 503")

	cancelled, err := h.cancel(o.ID, Requester{ID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Zero(t, h.stock(t, "p").Reserved)
}
