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
	domcatalog "github.com/Zhima-Mochi/minishop-orders/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const useCaseOrderCreate = "order.create"

type CreateOrderItem struct {
	ProductID string
	Quantity  int
}

type CreateOrderCommand struct {
	CustomerID      string
	Items           []CreateOrderItem
	ShippingAddress domain.Address
	PaymentMethod   domain.PaymentMethod
}

type CreateOrderResult struct {
	Order *domain.Order
	// ClientSecret lets the customer complete an intent-based payment.
	ClientSecret string
}

// CreateOrderUseCase reserves every line and persists the order, or leaves the ledger untouched.
type CreateOrderUseCase struct {
	w *Workflow
}

var _ application.UseCase[CreateOrderCommand, *CreateOrderResult] = (*CreateOrderUseCase)(nil)

func NewCreateOrderUseCase(w *Workflow) *CreateOrderUseCase {
	return &CreateOrderUseCase{w: w}
}

func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderCommand) (_ *CreateOrderResult, err error) {
	w := uc.w
	ctx, exec := w.begin(ctx, useCaseOrderCreate, "CreateOrder",
		attribute.String("order.customer_id", cmd.CustomerID),
		attribute.Int("order.lines", len(cmd.Items)),
	)
	defer func() { exec.end(err) }()

	if strings.TrimSpace(cmd.CustomerID) == "" {
		exec.fail("CUSTOMER_ID_REQUIRED")
		return nil, apperr.Validation("customer id is required")
	}
	if !cmd.PaymentMethod.Valid() {
		exec.fail("PAYMENT_METHOD_INVALID")
		return nil, apperr.Validation(fmt.Sprintf("unsupported payment method %q", cmd.PaymentMethod))
	}
	if err := cmd.ShippingAddress.Validate(); err != nil {
		exec.fail("ADDRESS_INVALID")
		return nil, apperr.Wrap(apperr.KindValidation, "shipping address requires line1, city and country", err)
	}
	lines, verr := mergeLines(cmd.Items)
	if verr != nil {
		exec.fail("ITEMS_INVALID")
		return nil, verr
	}

	// Price every line before touching the ledger so lookups never need compensation.
	items, currency, perr := w.priceLines(ctx, lines)
	if perr != nil {
		return nil, perr
	}

	entity, derr := domain.New(w.ids.NewID(), cmd.CustomerID, items, currency, cmd.ShippingAddress, cmd.PaymentMethod)
	if derr != nil {
		exec.fail("DOMAIN_CONSTRUCTION_FAILED")
		return nil, classify("build order", derr)
	}
	exec.with(observability.F("order_id", entity.ID))
	exec.span.SetAttributes(attribute.String("order.id", entity.ID))

	lowStock, rerr := w.reserveAll(ctx, entity)
	if rerr != nil {
		return nil, rerr
	}

	var clientSecret string
	if entity.PaymentMethod.RequiresIntent() {
		intent, ierr := w.createIntent(ctx, entity)
		if ierr != nil {
			return nil, w.abort(ctx, entity, "PAYMENT_INTENT_FAILED", exec, ierr)
		}
		entity.PaymentIntentID = intent.ID
		clientSecret = intent.ClientSecret
	}
	if aerr := entity.Advance(domain.StageAwaitingPayment); aerr != nil {
		return nil, w.abort(ctx, entity, "STATE_TRANSITION_FAILED", exec, classify("await payment", aerr))
	}

	if ierr := w.insert(ctx, entity); ierr != nil {
		return nil, w.abort(ctx, entity, "REPO_INSERT_FAILED", exec, ierr)
	}

	events := []domoutbox.Event{domain.NewOrderCreatedEvent(entity)}
	events = append(events, lowStock...)
	w.publish(ctx, events...)

	exec.with(
		observability.F("order_number", entity.OrderNumber),
		observability.F("total_amount", entity.TotalAmount),
	)
	exec.span.SetAttributes(orderAttrs(entity)...)
	return &CreateOrderResult{Order: entity, ClientSecret: clientSecret}, nil
}

// mergeLines validates the requested lines and folds repeated products into one line,
// keeping first-seen order.
func mergeLines(in []CreateOrderItem) ([]CreateOrderItem, error) {
	if len(in) == 0 {
		return nil, apperr.Validation("at least one item is required")
	}
	index := make(map[string]int, len(in))
	out := make([]CreateOrderItem, 0, len(in))
	for _, it := range in {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, apperr.Validation("product id is required")
		}
		if it.Quantity <= 0 {
			return nil, apperr.Validation(fmt.Sprintf("quantity for %s must be greater than zero", id))
		}
		if i, ok := index[id]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[id] = len(out)
		out = append(out, CreateOrderItem{ProductID: id, Quantity: it.Quantity})
	}
	return out, nil
}

// priceLines captures name and unit price for every line. All lines must share a currency.
func (w *Workflow) priceLines(ctx context.Context, lines []CreateOrderItem) ([]domain.Item, string, error) {
	items := make([]domain.Item, 0, len(lines))
	var currency string
	for _, l := range lines {
		p, err := w.catalog.FindByID(ctx, l.ProductID)
		if err != nil {
			if errors.Is(err, domcatalog.ErrNotFound) {
				return nil, "", apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("product %s not found", l.ProductID), err)
			}
			return nil, "", classify("catalog lookup", err)
		}
		if !p.Active {
			return nil, "", apperr.Wrap(apperr.KindValidation, fmt.Sprintf("product %s is not for sale", l.ProductID), domcatalog.ErrInactive)
		}
		price, err := p.UnitPriceMinor()
		if err != nil {
			return nil, "", classify(fmt.Sprintf("price of product %s", l.ProductID), err)
		}
		if currency == "" {
			currency = strings.ToUpper(p.Currency)
		} else if !strings.EqualFold(currency, p.Currency) {
			return nil, "", apperr.Validation(fmt.Sprintf("product %s is priced in %s, order is in %s", l.ProductID, p.Currency, currency))
		}
		items = append(items, domain.Item{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: price,
			Quantity:  l.Quantity,
		})
	}
	return items, currency, nil
}

// reserveAll reserves each line in order. On the first failure every earlier reservation
// is released and the ledger is back where it started. It returns low stock alerts to emit
// once the order is persisted.
func (w *Workflow) reserveAll(ctx context.Context, o *domain.Order) ([]domoutbox.Event, error) {
	span := trace.SpanFromContext(ctx)
	if err := o.Advance(domain.StageReservationPending); err != nil {
		return nil, classify("start reservation", err)
	}

	var alerts []domoutbox.Event
	for i, it := range o.Items {
		after, err := w.ledger.TryReserve(ctx, it.ProductID, it.Quantity)
		if err != nil {
			rollback := w.releaseReserved(ctx, o)
			_ = o.Advance(domain.StageReservationFailed)
			span.AddEvent("order.reservation_failed", trace.WithAttributes(
				attribute.String("product.id", it.ProductID),
				attribute.Int("quantity", it.Quantity),
			))

			var cause error
			if errors.Is(err, dominv.ErrInsufficientStock) {
				cause = apperr.Wrap(apperr.KindInsufficientInventory,
					fmt.Sprintf("insufficient inventory for product %s", it.ProductID), err)
			} else {
				cause = classify(fmt.Sprintf("reserve product %s", it.ProductID), err)
			}
			if rollback != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "reservation rollback incomplete", errors.Join(cause, rollback))
			}
			return nil, cause
		}
		o.MarkReserved(i)

		before := after
		before.Reserved -= it.Quantity
		if after.CrossedLowStock(before) {
			alerts = append(alerts, dominv.NewStockLowEvent(after))
		}
	}

	if err := o.Advance(domain.StageReserved); err != nil {
		return nil, classify("finish reservation", err)
	}
	span.AddEvent("order.reserved")
	return alerts, nil
}

func (w *Workflow) createIntent(ctx context.Context, o *domain.Order) (dompay.Intent, error) {
	var intent dompay.Intent
	err := w.callGateway(ctx, "create_intent", func(ctx context.Context) error {
		var err error
		intent, err = w.gateway.CreateIntent(ctx, dompay.IntentRequest{
			Amount:   o.TotalAmount,
			Currency: o.Currency,
			Metadata: map[string]string{
				"order_id":    o.ID,
				"customer_id": o.CustomerID,
			},
		})
		return err
	})
	if err != nil {
		return dompay.Intent{}, apperr.Wrap(apperr.KindPaymentGateway, "create payment intent", err)
	}
	return intent, nil
}

// insert assigns an order number and stores the order, drawing a fresh number on collision.
func (w *Workflow) insert(ctx context.Context, o *domain.Order) error {
	logger := logctx.FromOr(ctx, w.log)
	var last error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := w.numbers.NextOrderNumber()
		if err != nil {
			return classify("generate order number", err)
		}
		o.OrderNumber = number

		err = w.store.Insert(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicateOrderNumber) {
			return classify("insert order", err)
		}
		last = err
		logger.Warn("order_number_collision",
			observability.F("order_number", number),
			observability.F("attempt", attempt),
		)
	}
	return apperr.Wrap(apperr.KindDuplicateOrderNumber,
		fmt.Sprintf("no unique order number after %d attempts", maxNumberAttempts), last)
}

// abort compensates a partially created order and returns the error to surface.
func (w *Workflow) abort(ctx context.Context, o *domain.Order, status string, exec *execution, cause error) error {
	exec.fail(status)
	w.voidIntent(ctx, o)
	if err := w.releaseReserved(ctx, o); err != nil {
		return apperr.Wrap(apperr.KindInternal, "order rollback incomplete", errors.Join(cause, err))
	}
	trace.SpanFromContext(ctx).AddEvent("order.compensated")
	return cause
}
