package inventory

import (
	"context"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const workerService = "inventory_worker"

// Worker turns low stock events into alerts: a counter per product and a warn log line.
type Worker struct {
	subscriber domoutbox.Subscriber
	tel        observability.Observability

	log      observability.Logger
	lowStock observability.Counter // inventory_low_stock_total{product_id}
	red      observability.UseCaseRED
}

func NewWorker(subscriber domoutbox.Subscriber, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &Worker{
		subscriber: subscriber,
		tel:        tel,
		log:        tel.Logger().With(observability.F("service", workerService)),
		lowStock:   metrics.Counter(observability.MInventoryLowStock),
		red:        observability.NewUseCaseRED(metrics),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(dominv.StockLowEvent{}.EventName(), w.handleStockLow)
}

func (w *Worker) handleStockLow(ctx context.Context, e domoutbox.Event) error {
	const useCase = "inventory.worker.stock_low"
	evt, ok := e.(dominv.StockLowEvent)
	if !ok {
		w.red.Count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"StockLow",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("product.id", evt.ProductID),
	)
	start := time.Now()

	ctx, logger := logctx.Enrich(ctx, w.log,
		observability.F("use_case", useCase),
		observability.F("event", e.EventName()),
		observability.F("product_id", evt.ProductID),
	)
	logger = logger.With(observability.SpanFields(ctx)...)

	defer func() {
		lat := time.Since(start).Seconds()
		w.red.Observe(useCase, "success", lat)
		logger.Info("use_case_done",
			observability.F("outcome", "success"),
			observability.F("status", "OK"),
			observability.F("latency_seconds", lat),
		)
		span.SetStatus(codes.Ok, "OK")
		span.End()
	}()

	w.lowStock.Add(1, observability.L("product_id", evt.ProductID))
	logger.Warn("inventory_low_stock",
		observability.F("available", evt.Available),
		observability.F("threshold", evt.Threshold),
	)
	return nil
}
