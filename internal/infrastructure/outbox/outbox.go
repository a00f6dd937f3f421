package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentOutbox    = "outbox"
	defaultBuffer      = 1024
	defaultConcurrency = 8
	handlerTimeout     = 30 * time.Second
)

// ErrBusStopped is returned by Publish once Stop has been called.
var ErrBusStopped = errors.New("outbox: bus stopped")

// envelope carries the publisher's span so handlers continue the same trace.
type envelope struct {
	event domoutbox.Event
	span  trace.SpanContext
}

// Bus is an in-memory event bus. Events are queued, then fanned out to every
// subscriber of the event name with bounded concurrency. It is not durable:
// anything still queued when the process dies is lost.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]domoutbox.Handler
	stopped bool
	started bool

	queue       chan envelope
	done        chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
	concurrency int
	log         observability.Logger
}

type Option func(*Bus)

// WithBuffer sets the queue capacity.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan envelope, n)
		}
	}
}

// WithConcurrency caps how many handlers run at once for a single event.
func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func NewBus(tel observability.Observability, opts ...Option) *Bus {
	if tel == nil {
		tel = observability.Nop()
	}
	b := &Bus{
		subs:        make(map[string][]domoutbox.Handler),
		queue:       make(chan envelope, defaultBuffer),
		done:        make(chan struct{}),
		concurrency: defaultConcurrency,
		log:         tel.Logger().With(observability.F("component", componentOutbox)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

// Start launches the dispatch loop. The loop runs until Stop drains the queue;
// cancelling ctx does not drop queued events.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		b.mu.Lock()
		b.started = true
		b.mu.Unlock()

		go b.dispatchLoop(context.WithoutCancel(ctx))
		logctx.FromOr(ctx, b.log).Info("event_bus_started",
			observability.F("buffer", cap(b.queue)),
			observability.F("concurrency", b.concurrency),
		)
	})
}

// Stop rejects new events, then waits for queued events to be delivered or ctx to expire.
func (b *Bus) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		started := b.started
		pending := len(b.queue)
		close(b.queue)
		b.mu.Unlock()

		logger := logctx.FromOr(ctx, b.log)
		if !started {
			logger.Info("event_bus_stopped", observability.F("dropped", pending))
			return
		}
		select {
		case <-b.done:
			logger.Info("event_bus_stopped", observability.F("drained", pending))
		case <-ctx.Done():
			err = ctx.Err()
			logger.Warn("event_bus_stop_timeout",
				observability.F("pending", len(b.queue)),
				observability.F("error", err),
			)
		}
	})
	return err
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return ErrBusStopped
	}

	env := envelope{event: e, span: trace.SpanContextFromContext(ctx)}
	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))
	select {
	case b.queue <- env:
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.F("error", ctx.Err()))
		return ctx.Err()
	}
}

// Pending reports how many events are waiting for dispatch.
func (b *Bus) Pending() int {
	return len(b.queue)
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for env := range b.queue {
		b.fanout(ctx, env)
	}
}

func (b *Bus) fanout(base context.Context, env envelope) {
	name := env.event.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := b.log.With(observability.F("event", name))
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	ctx := base
	if env.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, env.span)
		logger = logger.With(
			observability.F("trace_id", env.span.TraceID().String()),
			observability.F("span_id", env.span.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup
	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			defer cancel()
			if err := h(hctx, env.event); err != nil {
				logger.Warn("event_handler_error", observability.F("error", err))
			}
		}()
	}
	wg.Wait()

	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
}

var (
	_ domoutbox.Publisher  = (*Bus)(nil)
	_ domoutbox.Subscriber = (*Bus)(nil)
)
