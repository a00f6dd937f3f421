package order

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

const useCaseGetOrder = "order.get"

type GetOrderQuery struct {
	OrderID   string
	Requester Requester
}

type GetOrderUseCase struct {
	w *Workflow
}

var _ application.UseCase[GetOrderQuery, *domain.Order] = (*GetOrderUseCase)(nil)

func NewGetOrderUseCase(w *Workflow) *GetOrderUseCase {
	return &GetOrderUseCase{w: w}
}

func (uc *GetOrderUseCase) Execute(ctx context.Context, q GetOrderQuery) (_ *domain.Order, err error) {
	ctx, exec := uc.w.begin(ctx, useCaseGetOrder, "GetOrder",
		attribute.String("order.id", q.OrderID),
	)
	defer func() { exec.end(err) }()

	if strings.TrimSpace(q.OrderID) == "" {
		exec.fail("ORDER_ID_REQUIRED")
		return nil, apperr.Validation("order id is required")
	}
	o, err := uc.w.load(ctx, q.OrderID)
	if err != nil {
		return nil, err
	}
	// Strangers get the same answer as for a missing order.
	if !q.Requester.Admin && !q.Requester.owns(o.CustomerID) {
		exec.fail("NOT_ORDER_OWNER")
		return nil, apperr.NotFound("order not found")
	}
	return o, nil
}
