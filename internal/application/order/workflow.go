package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	domcatalog "github.com/Zhima-Mochi/minishop-orders/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const (
	orderService        = "order-service"
	spanPrefix          = "UC."
	publishPeer         = "outbox"
	gatewayPeer         = "payment_gateway"
	publishTimeout      = 300 * time.Millisecond
	compensationTimeout = 5 * time.Second
	maxNumberAttempts   = 5
)

// Deps are the collaborators shared by every order use case.
type Deps struct {
	Store     domain.Store
	Ledger    dominv.Ledger
	Catalog   domcatalog.Catalog
	Gateway   dompay.Gateway
	Publisher domoutbox.Publisher
	IDs       IDGenerator
	Numbers   OrderNumberGenerator
	// Locker is required when several processes share Store; nil means this process is alone.
	Locker OrderLocker
}

// Workflow is the order state machine core. Use cases are thin entry points over it.
type Workflow struct {
	store     domain.Store
	ledger    dominv.Ledger
	catalog   domcatalog.Catalog
	gateway   dompay.Gateway
	publisher domoutbox.Publisher
	ids       IDGenerator
	numbers   OrderNumberGenerator

	tracer observability.Tracer
	log    observability.Logger

	red         observability.UseCaseRED
	gatewayCall observability.Peer
	outboxCall  observability.Peer
	expired     observability.Counter // orders_expired_total{outcome}

	locks  *keyedMutex
	locker OrderLocker
	now    func() time.Time
}

func NewWorkflow(deps Deps, tel observability.Observability) *Workflow {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()

	return &Workflow{
		store:       deps.Store,
		ledger:      deps.Ledger,
		catalog:     deps.Catalog,
		gateway:     deps.Gateway,
		publisher:   deps.Publisher,
		ids:         deps.IDs,
		numbers:     deps.Numbers,
		tracer:      tel.Tracer(),
		log:         tel.Logger().With(observability.F("service", orderService)),
		red:         observability.NewUseCaseRED(metrics),
		gatewayCall: observability.NewPeer(metrics, gatewayPeer),
		outboxCall:  observability.NewPeer(metrics, publishPeer),
		expired:     metrics.Counter(observability.MOrdersExpired),
		locks:       newKeyedMutex(),
		locker:      deps.Locker,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// execution tracks one use case run for its span, RED metrics and the closing log line.
type execution struct {
	ctx     context.Context
	span    trace.Span
	logger  observability.Logger
	useCase string
	start   time.Time
	outcome string
	status  string
	fields  []observability.Field
	w       *Workflow
}

func (w *Workflow) begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *execution) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := w.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	ctx, logger := logctx.Enrich(ctx, w.log, observability.F("use_case", useCase))

	return ctx, &execution{
		ctx:     ctx,
		span:    span,
		logger:  logger,
		useCase: useCase,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
		w:       w,
	}
}

func (e *execution) fail(status string) {
	e.outcome, e.status = "error", status
}

func (e *execution) note(status string) {
	e.status = status
}

func (e *execution) with(fields ...observability.Field) {
	e.fields = append(e.fields, fields...)
}

func (e *execution) end(err error) {
	lat := time.Since(e.start).Seconds()
	if err != nil && e.outcome == "success" {
		e.fail(statusCode(err))
	}

	if e.span != nil {
		if err != nil {
			e.span.RecordError(err)
			e.span.SetStatus(codes.Error, e.status)
		} else {
			e.span.SetStatus(codes.Ok, e.status)
		}
		e.span.End()
	}

	e.w.red.Observe(e.useCase, e.outcome, lat)

	fields := []observability.Field{
		observability.F("outcome", e.outcome),
		observability.F("status", e.status),
		observability.F("latency_seconds", lat),
	}
	fields = append(fields, observability.SpanFields(e.ctx)...)
	fields = append(fields, e.fields...)
	if err != nil {
		fields = append(fields,
			observability.F("error", err.Error()),
			observability.F("error_kind", string(apperr.KindOf(err))),
		)
	}
	e.logger.Info("use_case_done", fields...)
}

// lockOrder serializes operations on one order: in process first, then through the shared
// locker when one is configured. It must be held from load until the last save.
func (w *Workflow) lockOrder(ctx context.Context, orderID string) (func(), error) {
	unlock, err := w.locks.Lock(ctx, orderID)
	if err != nil {
		return nil, classify("wait for order lock", err)
	}
	if w.locker == nil {
		return unlock, nil
	}
	release, err := w.locker.LockOrder(ctx, orderID)
	if err != nil {
		unlock()
		return nil, classify("lock order", err)
	}
	return func() {
		release()
		unlock()
	}, nil
}

func (w *Workflow) load(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := w.store.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, "order not found", err)
		}
		return nil, classify("load order", err)
	}
	return o, nil
}

// save persists o and logs loudly when the ledger already moved but the order could not follow.
func (w *Workflow) save(ctx context.Context, o *domain.Order) error {
	if err := w.store.Update(ctx, o); err != nil {
		logctx.FromOr(ctx, w.log).Error("order_persist_failed",
			observability.F("order_id", o.ID),
			observability.F("stage", string(o.Stage)),
			observability.F("error", err),
		)
		return classify("persist order", err)
	}
	return nil
}

// compensationContext outlives caller cancellation so rollbacks always run to completion.
func compensationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}

// detach is for a ledger mutation and the store write that records it: once started they
// finish together even if the caller goes away. It refuses to start on a done ctx.
func detach(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	dctx, cancel := compensationContext(ctx)
	return dctx, cancel, nil
}

// releaseReserved returns every outstanding reservation of o to the ledger, last line first.
// Lines that were released are marked on o; failures are joined.
func (w *Workflow) releaseReserved(ctx context.Context, o *domain.Order) error {
	ctx, cancel := compensationContext(ctx)
	defer cancel()

	var errs []error
	for i := len(o.Items) - 1; i >= 0; i-- {
		it := o.Items[i]
		if it.Reserved == 0 {
			continue
		}
		if _, err := w.ledger.Release(ctx, it.ProductID, it.Reserved); err != nil {
			errs = append(errs, fmt.Errorf("release %s x%d: %w", it.ProductID, it.Reserved, err))
			continue
		}
		o.MarkReleased(i)
	}
	if err := errors.Join(errs...); err != nil {
		logctx.FromOr(ctx, w.log).Error("compensation_failed",
			observability.F("order_id", o.ID),
			observability.F("error", err),
		)
		return err
	}
	return nil
}

// commitReserved turns every outstanding reservation of o into a sale. Lines already
// committed are skipped so a retried confirmation never commits twice.
func (w *Workflow) commitReserved(ctx context.Context, o *domain.Order) error {
	for i, it := range o.Items {
		if it.Reserved == 0 {
			continue
		}
		if _, err := w.ledger.Commit(ctx, it.ProductID, it.Reserved); err != nil {
			return fmt.Errorf("commit %s x%d: %w", it.ProductID, it.Reserved, err)
		}
		o.MarkCommitted(i)
	}
	return nil
}

// callGateway runs fn against the payment gateway and records external RED metrics.
func (w *Workflow) callGateway(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	w.gatewayCall.Observe(endpoint, start, err)
	return err
}

// voidIntent keeps the intent of an order that will never be paid from taking money later.
// An intent that already succeeded is refunded instead. Failures are logged, not returned.
func (w *Workflow) voidIntent(ctx context.Context, o *domain.Order) {
	if o.PaymentIntentID == "" {
		return
	}
	ctx, cancel := compensationContext(ctx)
	defer cancel()

	err := w.callGateway(ctx, "cancel_intent", func(ctx context.Context) error {
		return w.gateway.CancelIntent(ctx, o.PaymentIntentID)
	})
	if errors.Is(err, dompay.ErrIntentSettled) {
		err = w.callGateway(ctx, "refund_intent", func(ctx context.Context) error {
			return w.gateway.RefundIntent(ctx, o.PaymentIntentID)
		})
	}
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		logctx.FromOr(ctx, w.log).Error("payment_intent_void_failed",
			observability.F("order_id", o.ID),
			observability.F("payment_intent_id", o.PaymentIntentID),
			observability.F("error", err),
		)
	}
}

// publish emits events best effort. Failures are logged and recorded on the span but never fail the caller.
func (w *Workflow) publish(ctx context.Context, events ...domoutbox.Event) {
	if w.publisher == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	logger := logctx.FromOr(ctx, w.log)

	for _, e := range events {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		start := time.Now()

		err := w.publisher.Publish(pubCtx, e)
		if err == nil && pubCtx.Err() != nil {
			err = pubCtx.Err()
		}
		cancel()
		w.outboxCall.Observe(e.EventName(), start, err)
		if err != nil {
			span.RecordError(err)
			logger.Warn("event_publish_failed",
				observability.F("event", e.EventName()),
				observability.F("error", err),
			)
		}
		span.AddEvent(e.EventName())
	}
}

func orderAttrs(o *domain.Order) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("order.id", o.ID),
		attribute.String("order.status", string(o.Status)),
		attribute.String("order.payment_status", string(o.PaymentStatus)),
		attribute.String("order.stage", string(o.Stage)),
	}
}
