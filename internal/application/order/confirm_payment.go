package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const useCaseConfirmPayment = "order.confirm_payment"

type ConfirmPaymentCommand struct {
	OrderID   string
	Requester Requester
}

// ConfirmPaymentUseCase commits an order's reservations once its payment intent succeeded.
// Repeated calls on a paid order return it unchanged.
type ConfirmPaymentUseCase struct {
	w *Workflow
}

var _ application.UseCase[ConfirmPaymentCommand, *domain.Order] = (*ConfirmPaymentUseCase)(nil)

func NewConfirmPaymentUseCase(w *Workflow) *ConfirmPaymentUseCase {
	return &ConfirmPaymentUseCase{w: w}
}

func (uc *ConfirmPaymentUseCase) Execute(ctx context.Context, cmd ConfirmPaymentCommand) (_ *domain.Order, err error) {
	w := uc.w
	ctx, exec := w.begin(ctx, useCaseConfirmPayment, "ConfirmPayment",
		attribute.String("order.id", cmd.OrderID),
	)
	defer func() { exec.end(err) }()

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
	if !cmd.Requester.owns(o.CustomerID) {
		exec.fail("NOT_ORDER_OWNER")
		return nil, apperr.Unauthorized("only the customer who placed the order can confirm its payment")
	}

	if o.PaymentStatus == domain.PaymentPaid {
		exec.note("ALREADY_PAID")
		trace.SpanFromContext(ctx).AddEvent("order.confirm_replay")
		return o, nil
	}

	if err := w.confirm(ctx, o); err != nil {
		return nil, err
	}
	exec.span.SetAttributes(orderAttrs(o)...)
	return o, nil
}

// confirm verifies the intent, commits reservations and moves o to (paid, processing).
// The caller holds the order lock.
func (w *Workflow) confirm(ctx context.Context, o *domain.Order) error {
	if o.Stage != domain.StageAwaitingPayment {
		return apperr.Wrap(apperr.KindInvalidTransition,
			fmt.Sprintf("order is %s, payment can no longer be confirmed", o.Stage), domain.ErrInvalidTransition)
	}
	if !o.PaymentMethod.RequiresIntent() {
		return apperr.Wrap(apperr.KindInvalidTransition,
			fmt.Sprintf("%s payments are settled offline", o.PaymentMethod), domain.ErrInvalidTransition)
	}

	intent, err := w.retrieveIntent(ctx, o)
	if err != nil {
		return err
	}
	if intent.Status != dompay.StatusSucceeded {
		return apperr.Newf(apperr.KindPaymentNotCompleted, "payment intent is %s", intent.Status)
	}
	if intent.Amount != o.TotalAmount || !strings.EqualFold(intent.Currency, o.Currency) {
		return apperr.Newf(apperr.KindInternal, "payment intent amount %d %s does not match order total %d %s",
			intent.Amount, intent.Currency, o.TotalAmount, o.Currency)
	}

	return w.settle(ctx, o)
}

// settle commits every outstanding reservation and records the payment. When a commit fails
// the lines already committed are persisted so a retry resumes where this one stopped.
func (w *Workflow) settle(ctx context.Context, o *domain.Order) error {
	ctx, cancel, err := detach(ctx)
	if err != nil {
		return classify("commit reservations", err)
	}
	defer cancel()

	if err := w.commitReserved(ctx, o); err != nil {
		if saveErr := w.save(ctx, o); saveErr != nil {
			return apperr.Wrap(apperr.KindInternal, "commit reservations", errors.Join(err, saveErr))
		}
		return classify("commit reservations", err)
	}
	if err := o.MarkPaid(); err != nil {
		return classify("mark paid", err)
	}
	if err := o.StartProcessing(); err != nil {
		return classify("start processing", err)
	}
	if err := w.save(ctx, o); err != nil {
		return err
	}
	w.publish(ctx, domain.NewOrderPaidEvent(o))
	return nil
}

func (w *Workflow) retrieveIntent(ctx context.Context, o *domain.Order) (dompay.Intent, error) {
	if o.PaymentIntentID == "" {
		return dompay.Intent{}, apperr.New(apperr.KindPaymentNotCompleted, "order has no payment intent")
	}
	var intent dompay.Intent
	err := w.callGateway(ctx, "retrieve_intent", func(ctx context.Context) error {
		var err error
		intent, err = w.gateway.RetrieveIntent(ctx, o.PaymentIntentID)
		return err
	})
	if err != nil {
		return dompay.Intent{}, apperr.Wrap(apperr.KindPaymentGateway, "retrieve payment intent", err)
	}
	return intent, nil
}
