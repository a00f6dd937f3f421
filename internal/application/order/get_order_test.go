package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

func TestGetOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, seed{id: "p", price: "1", quantity: 5})
	o := h.mustCreate(t, "c-1", domain.MethodCard, item("p", 1))
	uc := NewGetOrderUseCase(h.w)

	got, err := uc.Execute(context.Background(), GetOrderQuery{OrderID: o.ID, Requester: Requester{ID: "c-1"}})
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)

	_, err = uc.Execute(context.Background(), GetOrderQuery{OrderID: o.ID, Requester: admin})
	require.NoError(t, err)

	_, err = uc.Execute(context.Background(), GetOrderQuery{OrderID: o.ID, Requester: Requester{ID: "c-2"}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = uc.Execute(context.Background(), GetOrderQuery{Requester: admin})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
