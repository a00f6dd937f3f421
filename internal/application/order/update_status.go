package order

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const useCaseUpdateStatus = "order.update_status"

type UpdateOrderStatusCommand struct {
	OrderID   string
	Requester Requester
	Status    domain.Status
	Tracking  domain.Tracking
	// Reason is recorded when Status is cancelled.
	Reason string
}

// UpdateOrderStatusUseCase is the admin entry point for fulfilment progress.
type UpdateOrderStatusUseCase struct {
	w *Workflow
}

var _ application.UseCase[UpdateOrderStatusCommand, *domain.Order] = (*UpdateOrderStatusUseCase)(nil)

func NewUpdateOrderStatusUseCase(w *Workflow) *UpdateOrderStatusUseCase {
	return &UpdateOrderStatusUseCase{w: w}
}

func (uc *UpdateOrderStatusUseCase) Execute(ctx context.Context, cmd UpdateOrderStatusCommand) (_ *domain.Order, err error) {
	w := uc.w
	ctx, exec := w.begin(ctx, useCaseUpdateStatus, "UpdateOrderStatus",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.target_status", string(cmd.Status)),
	)
	defer func() { exec.end(err) }()

	if !cmd.Requester.Admin {
		exec.fail("ADMIN_REQUIRED")
		return nil, apperr.Unauthorized("order status changes require an admin")
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		exec.fail("ORDER_ID_REQUIRED")
		return nil, apperr.Validation("order id is required")
	}
	if !cmd.Status.Valid() {
		exec.fail("STATUS_INVALID")
		return nil, apperr.Validation(fmt.Sprintf("unknown order status %q", cmd.Status))
	}
	exec.with(
		observability.F("order_id", cmd.OrderID),
		observability.F("target_status", string(cmd.Status)),
	)

	unlock, err := w.lockOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := w.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	from := o.Status

	switch cmd.Status {
	case domain.StatusCancelled:
		reason := cmd.Reason
		if reason == "" {
			reason = ReasonAdminCancel
		}
		if o.PaymentStatus == domain.PaymentPaid {
			err = w.refund(ctx, o, reason)
		} else {
			err = w.cancel(ctx, o, reason)
		}
		if err != nil {
			return nil, err
		}
	case domain.StatusProcessing:
		if err := w.startProcessing(ctx, o); err != nil {
			return nil, err
		}
	case domain.StatusShipped:
		if err := o.Ship(cmd.Tracking); err != nil {
			return nil, classify("ship order", err)
		}
		if err := w.save(ctx, o); err != nil {
			return nil, err
		}
	case domain.StatusDelivered:
		if err := o.Deliver(cmd.Tracking); err != nil {
			return nil, classify("deliver order", err)
		}
		if err := w.save(ctx, o); err != nil {
			return nil, err
		}
	default:
		if err := domain.ValidateStatusChange(o.Status, cmd.Status, o.PaymentStatus); err != nil {
			return nil, classify("update status", err)
		}
	}

	w.publish(ctx, domain.NewOrderStatusChangedEvent(o, from))
	exec.span.SetAttributes(orderAttrs(o)...)
	return o, nil
}

// startProcessing moves a pending order into fulfilment. Offline payments are collected outside
// the gateway, so the admin's confirmation commits the reservation and records the payment.
func (w *Workflow) startProcessing(ctx context.Context, o *domain.Order) error {
	if o.Status == domain.StatusPending && o.PaymentStatus == domain.PaymentPending {
		if o.PaymentMethod.RequiresIntent() {
			return apperr.Newf(apperr.KindInvalidTransition,
				"%s orders enter processing through payment confirmation", o.PaymentMethod)
		}
		if o.Stage != domain.StageAwaitingPayment {
			return apperr.Newf(apperr.KindInvalidTransition, "order is %s", o.Stage)
		}
		return w.settle(ctx, o)
	}
	if err := o.StartProcessing(); err != nil {
		return classify("start processing", err)
	}
	return w.save(ctx, o)
}
