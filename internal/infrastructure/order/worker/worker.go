package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	appOrder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	workerpresentation "github.com/Zhima-Mochi/minishop-orders/internal/presentation/worker"
)

const (
	workerName = "order_reaper"
	tickEvent  = "reaper.tick"
)

type ExpireUnpaid = application.UseCase[appOrder.ExpireUnpaidOrdersCommand, appOrder.ExpireUnpaidOrdersResult]

type Config struct {
	Interval    time.Duration
	TTL         time.Duration
	BatchSize   int
	Concurrency int
}

// Reaper periodically expires orders whose payment never arrived.
type Reaper struct {
	expire ExpireUnpaid
	cfg    Config
	tracer observability.Tracer
	log    observability.Logger
}

func NewReaper(expire ExpireUnpaid, cfg Config, tel observability.Observability) *Reaper {
	if tel == nil {
		tel = observability.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Reaper{
		expire: expire,
		cfg:    cfg,
		tracer: tel.Tracer(),
		log:    tel.Logger().With(observability.F("component", workerName)),
	}
}

// Run ticks until ctx is cancelled. A failed tick is logged and the loop carries on.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.log.Info("worker_started",
		observability.F("interval", r.cfg.Interval.String()),
		observability.F("ttl", r.cfg.TTL.String()),
	)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("worker_stopped")
			return nil
		case <-ticker.C:
			_, _ = r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep in its own root span.
func (r *Reaper) RunOnce(ctx context.Context) (appOrder.ExpireUnpaidOrdersResult, error) {
	ctx, span := r.tracer.Start(trace.ContextWithSpanContext(ctx, trace.SpanContext{}), "Worker.OrderReaper",
		attribute.String("worker", workerName),
	)
	defer span.End()

	ctx, logger := workerpresentation.WithEventContext(ctx, r.log, workerpresentation.EventScope{
		Worker: workerName,
		Event:  tickEvent,
	})

	res, err := r.expire.Execute(ctx, appOrder.ExpireUnpaidOrdersCommand{
		TTL:         r.cfg.TTL,
		Limit:       r.cfg.BatchSize,
		Concurrency: r.cfg.Concurrency,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
		logger.Error("reaper_sweep_failed", observability.F("error", err))
		return res, err
	}
	span.SetStatus(codes.Ok, "OK")
	if res.Scanned > 0 {
		logger.Info("reaper_sweep_done",
			observability.F("scanned", res.Scanned),
			observability.F("expired", res.Expired),
			observability.F("reconciled", res.Reconciled),
			observability.F("failed", res.Failed),
		)
	}
	return res, nil
}
