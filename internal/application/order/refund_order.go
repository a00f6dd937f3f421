package order

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	useCaseRefundOrder = "order.refund"

	ReasonRefund = "refunded"
)

type RefundOrderCommand struct {
	OrderID   string
	Requester Requester
	Reason    string
}

// RefundOrderUseCase returns the payment of a paid, unshipped order. Sold stock is not restocked.
type RefundOrderUseCase struct {
	w *Workflow
}

var _ application.UseCase[RefundOrderCommand, *domain.Order] = (*RefundOrderUseCase)(nil)

func NewRefundOrderUseCase(w *Workflow) *RefundOrderUseCase {
	return &RefundOrderUseCase{w: w}
}

func (uc *RefundOrderUseCase) Execute(ctx context.Context, cmd RefundOrderCommand) (_ *domain.Order, err error) {
	w := uc.w
	ctx, exec := w.begin(ctx, useCaseRefundOrder, "RefundOrder",
		attribute.String("order.id", cmd.OrderID),
	)
	defer func() { exec.end(err) }()

	if !cmd.Requester.Admin {
		exec.fail("ADMIN_REQUIRED")
		return nil, apperr.Unauthorized("refunds require an admin")
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		exec.fail("ORDER_ID_REQUIRED")
		return nil, apperr.Validation("order id is required")
	}
	exec.with(observability.F("order_id", cmd.OrderID))

	unlock, err := w.lockOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := w.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == domain.PaymentRefunded {
		exec.note("ALREADY_REFUNDED")
		return o, nil
	}

	reason := cmd.Reason
	if reason == "" {
		reason = ReasonRefund
	}
	if err := w.refund(ctx, o, reason); err != nil {
		return nil, err
	}
	exec.span.SetAttributes(orderAttrs(o)...)
	return o, nil
}

// refund asks the gateway to return the payment and closes the order. A gateway failure
// leaves the order untouched.
func (w *Workflow) refund(ctx context.Context, o *domain.Order, reason string) error {
	if o.PaymentStatus != domain.PaymentPaid {
		return apperr.Newf(apperr.KindInvalidTransition, "only paid orders can be refunded, payment is %s", o.PaymentStatus)
	}
	if err := domain.ValidateStatusChange(o.Status, domain.StatusCancelled, o.PaymentStatus); err != nil {
		return classify("refund order", err)
	}

	if o.PaymentIntentID != "" {
		err := w.callGateway(ctx, "refund_intent", func(ctx context.Context) error {
			return w.gateway.RefundIntent(ctx, o.PaymentIntentID)
		})
		if err != nil {
			return apperr.Wrap(apperr.KindPaymentGateway, "refund payment", err)
		}
	}

	// Record the refund even if the caller is gone.
	ctx, cancel := compensationContext(ctx)
	defer cancel()

	if err := o.Refund(reason); err != nil {
		return classify("refund order", err)
	}
	if err := w.save(ctx, o); err != nil {
		return err
	}
	w.publish(ctx, domain.NewOrderRefundedEvent(o))
	return nil
}
