package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	inventoryService   = "inventory-service"
	useCaseAdjustStock = "inventory.adjust"
	useCaseGetStock    = "inventory.get"
	spanPrefix         = "UC."
	publishPeer        = "outbox"
	publishTimeout     = 300 * time.Millisecond
)

type AdjustStockCommand struct {
	ProductID string
	// Exactly one of Delta and Absolute is set.
	Delta    *int
	Absolute *int
	Reason   string
	Admin    bool
}

// AdjustStockUseCase applies administrative restocks and recounts through the ledger.
type AdjustStockUseCase struct {
	ledger    dominv.Ledger
	publisher domoutbox.Publisher
	log       observability.Logger
	tracer    observability.Tracer

	red         observability.UseCaseRED
	publishCall observability.Peer
}

var _ application.UseCase[AdjustStockCommand, dominv.Stock] = (*AdjustStockUseCase)(nil)

func NewAdjustStockUseCase(ledger dominv.Ledger, publisher domoutbox.Publisher, tel observability.Observability) *AdjustStockUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &AdjustStockUseCase{
		ledger:      ledger,
		publisher:   publisher,
		log:         tel.Logger().With(observability.F("service", inventoryService)),
		tracer:      tel.Tracer(),
		red:         observability.NewUseCaseRED(metrics),
		publishCall: observability.NewPeer(metrics, publishPeer),
	}
}

func (uc *AdjustStockUseCase) Execute(ctx context.Context, cmd AdjustStockCommand) (_ dominv.Stock, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseAdjustStock),
		observability.F("product_id", cmd.ProductID),
	)

	ctx, span := uc.tracer.Start(ctx, spanPrefix+"AdjustStock",
		attribute.String("use_case", useCaseAdjustStock),
		attribute.String("product.id", cmd.ProductID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var after dominv.Stock

	defer func() {
		lat := time.Since(start).Seconds()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		uc.red.Observe(useCaseAdjustStock, outcome, lat)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		fields = append(fields, observability.SpanFields(ctx)...)
		if err == nil {
			fields = append(fields,
				observability.F("quantity", after.Quantity),
				observability.F("reserved", after.Reserved),
			)
		} else {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if !cmd.Admin {
		outcome, statusText = "error", "ADMIN_REQUIRED"
		return dominv.Stock{}, apperr.Unauthorized("stock adjustments require an admin")
	}
	if strings.TrimSpace(cmd.ProductID) == "" {
		outcome, statusText = "error", "PRODUCT_ID_REQUIRED"
		return dominv.Stock{}, apperr.Validation("product id is required")
	}
	adj := dominv.Adjustment{Delta: cmd.Delta, Absolute: cmd.Absolute, Reason: cmd.Reason}
	if verr := adj.Validate(); verr != nil {
		outcome, statusText = "error", "ADJUSTMENT_INVALID"
		return dominv.Stock{}, apperr.Wrap(apperr.KindValidation, "provide exactly one of delta or absolute", verr)
	}

	before, err := uc.ledger.Get(ctx, cmd.ProductID)
	if err != nil {
		outcome, statusText = "error", "STOCK_LOOKUP_FAILED"
		return dominv.Stock{}, classify(cmd.ProductID, err)
	}

	after, err = uc.ledger.Adjust(ctx, cmd.ProductID, adj)
	if err != nil {
		outcome, statusText = "error", "ADJUST_FAILED"
		return dominv.Stock{}, classify(cmd.ProductID, err)
	}
	// Reservations may have moved between the two reads; only Quantity is reported from before.
	if cmd.Delta != nil {
		before.Quantity = after.Quantity - *cmd.Delta
	}
	before.Reserved = after.Reserved

	events := []domoutbox.Event{dominv.NewStockAdjustedEvent(before, after, cmd.Reason)}
	if after.CrossedLowStock(before) {
		events = append(events, dominv.NewStockLowEvent(after))
	}
	for _, e := range events {
		if perr := uc.publish(ctx, e); perr != nil {
			statusText = "EVENT_PUBLISH_FAILED"
			logger.Warn("event_publish_failed",
				observability.F("event", e.EventName()),
				observability.F("error", perr),
			)
		}
	}

	span.SetAttributes(
		attribute.Int("inventory.quantity", after.Quantity),
		attribute.Int("inventory.reserved", after.Reserved),
	)
	return after, nil
}

func (uc *AdjustStockUseCase) publish(ctx context.Context, event domoutbox.Event) error {
	if uc.publisher == nil {
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	start := time.Now()
	err := uc.publisher.Publish(pubCtx, event)
	if err == nil {
		err = pubCtx.Err()
	}
	cancel()

	uc.publishCall.Observe(event.EventName(), start, err)
	trace.SpanFromContext(ctx).AddEvent(event.EventName())
	return err
}

type GetStockQuery struct {
	ProductID string
}

type GetStockUseCase struct {
	ledger dominv.Ledger
	log    observability.Logger
	tracer observability.Tracer

	red observability.UseCaseRED
}

var _ application.UseCase[GetStockQuery, dominv.Stock] = (*GetStockUseCase)(nil)

func NewGetStockUseCase(ledger dominv.Ledger, tel observability.Observability) *GetStockUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	return &GetStockUseCase{
		ledger: ledger,
		log:    tel.Logger().With(observability.F("service", inventoryService)),
		tracer: tel.Tracer(),
		red:    observability.NewUseCaseRED(tel.Metrics()),
	}
}

func (uc *GetStockUseCase) Execute(ctx context.Context, q GetStockQuery) (_ dominv.Stock, err error) {
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"GetStock",
		attribute.String("use_case", useCaseGetStock),
		attribute.String("product.id", q.ProductID),
	)
	start := time.Now()
	outcome := "success"

	defer func() {
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperr.KindOf(err)))
			logctx.FromOr(ctx, uc.log).Debug("stock_lookup_failed",
				observability.F("product_id", q.ProductID),
				observability.F("error", err.Error()),
			)
		}
		span.End()
		uc.red.Observe(useCaseGetStock, outcome, time.Since(start).Seconds())
	}()

	if strings.TrimSpace(q.ProductID) == "" {
		return dominv.Stock{}, apperr.Validation("product id is required")
	}
	s, err := uc.ledger.Get(ctx, q.ProductID)
	if err != nil {
		return dominv.Stock{}, classify(q.ProductID, err)
	}
	return s, nil
}

func classify(productID string, err error) error {
	switch {
	case errors.Is(err, dominv.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("product %s has no stock record", productID), err)
	case errors.Is(err, dominv.ErrBelowReserved):
		return apperr.Wrap(apperr.KindConflict, "quantity cannot drop below what open orders have reserved", err)
	case errors.Is(err, dominv.ErrNegativeBalance),
		errors.Is(err, dominv.ErrInvalidAdjust),
		errors.Is(err, dominv.ErrInvalidQuantity):
		return apperr.Wrap(apperr.KindValidation, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindTimeout, "inventory", err)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindCanceled, "inventory", err)
	default:
		return apperr.Wrap(apperr.KindInternal, "inventory", err)
	}
}
