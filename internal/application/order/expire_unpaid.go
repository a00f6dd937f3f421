package order

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const (
	useCaseExpireUnpaid = "order.expire_unpaid"

	defaultReaperBatch       = 100
	defaultReaperConcurrency = 4
)

type ExpireUnpaidOrdersCommand struct {
	// TTL is how long an order may wait for payment before its reservations are reclaimed.
	TTL         time.Duration
	Limit       int
	Concurrency int
}

type ExpireUnpaidOrdersResult struct {
	Scanned    int
	Expired    int
	Reconciled int
	Skipped    int
	Failed     int
}

// ExpireUnpaidOrdersUseCase reclaims reservations of orders whose payment never arrived.
// Intents that did succeed in the meantime are confirmed instead.
type ExpireUnpaidOrdersUseCase struct {
	w *Workflow
}

var _ application.UseCase[ExpireUnpaidOrdersCommand, ExpireUnpaidOrdersResult] = (*ExpireUnpaidOrdersUseCase)(nil)

func NewExpireUnpaidOrdersUseCase(w *Workflow) *ExpireUnpaidOrdersUseCase {
	return &ExpireUnpaidOrdersUseCase{w: w}
}

type expiryOutcome string

const (
	expiryExpired    expiryOutcome = "expired"
	expiryReconciled expiryOutcome = "reconciled"
	expirySkipped    expiryOutcome = "skipped"
	expiryFailed     expiryOutcome = "failed"
)

func (uc *ExpireUnpaidOrdersUseCase) Execute(ctx context.Context, cmd ExpireUnpaidOrdersCommand) (res ExpireUnpaidOrdersResult, err error) {
	w := uc.w
	ctx, exec := w.begin(ctx, useCaseExpireUnpaid, "ExpireUnpaidOrders",
		attribute.String("reaper.ttl", cmd.TTL.String()),
	)
	defer func() {
		exec.with(
			observability.F("scanned", res.Scanned),
			observability.F("expired", res.Expired),
			observability.F("reconciled", res.Reconciled),
			observability.F("skipped", res.Skipped),
			observability.F("failed", res.Failed),
		)
		exec.end(err)
	}()

	if cmd.TTL <= 0 {
		exec.fail("TTL_INVALID")
		return res, apperr.Validation("ttl must be positive")
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultReaperBatch
	}
	concurrency := cmd.Concurrency
	if concurrency <= 0 {
		concurrency = defaultReaperConcurrency
	}

	cutoff := w.now().Add(-cmd.TTL)
	stale, err := w.store.ListAwaitingPayment(ctx, cutoff, limit)
	if err != nil {
		exec.fail("LIST_FAILED")
		return res, classify("list unpaid orders", err)
	}
	res.Scanned = len(stale)

	var expired, reconciled, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, candidate := range stale {
		g.Go(func() error {
			switch w.expireOne(gctx, candidate.ID, cutoff) {
			case expiryExpired:
				expired.Add(1)
			case expiryReconciled:
				reconciled.Add(1)
			case expirySkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Expired = int(expired.Load())
	res.Reconciled = int(reconciled.Load())
	res.Skipped = int(skipped.Load())
	res.Failed = int(failed.Load())
	if res.Failed > 0 {
		exec.note("PARTIAL_FAILURE")
	}
	return res, nil
}

func (w *Workflow) expireOne(ctx context.Context, orderID string, cutoff time.Time) (outcome expiryOutcome) {
	ctx, logger := logctx.Enrich(ctx, w.log, observability.F("order_id", orderID))
	defer func() {
		w.expired.Add(1, observability.L("outcome", string(outcome)))
	}()

	unlock, err := w.lockOrder(ctx, orderID)
	if err != nil {
		return expiryFailed
	}
	defer unlock()

	// Reload under the lock: the customer may have confirmed or cancelled since listing.
	o, err := w.load(ctx, orderID)
	if err != nil {
		logger.Warn("reaper_load_failed", observability.F("error", err))
		return expiryFailed
	}
	if o.Stage != domain.StageAwaitingPayment || !o.CreatedAt.Before(cutoff) {
		return expirySkipped
	}

	if o.PaymentMethod.RequiresIntent() {
		intent, err := w.retrieveIntent(ctx, o)
		switch {
		case err != nil && apperr.KindOf(err) != apperr.KindPaymentNotCompleted:
			logger.Warn("reaper_intent_lookup_failed", observability.F("error", err))
			return expiryFailed
		case err == nil && intent.Status == dompay.StatusSucceeded:
			if err := w.confirm(ctx, o); err != nil {
				logger.Error("reaper_reconcile_failed", observability.F("error", err))
				return expiryFailed
			}
			logger.Info("order_payment_reconciled")
			return expiryReconciled
		case err == nil && intent.Status == dompay.StatusProcessing:
			return expirySkipped
		}
	}

	o.MarkPaymentFailed()
	if err := w.cancel(ctx, o, ReasonPaymentTimeout); err != nil {
		logger.Error("reaper_cancel_failed", observability.F("error", err))
		return expiryFailed
	}
	logger.Info("order_expired", observability.F("reason", ReasonPaymentTimeout))
	return expiryExpired
}
