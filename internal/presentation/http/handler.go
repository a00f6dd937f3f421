package httppresentation

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	appInventory "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domainOrder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	tracerName           = "minishop.http"
	headerRequestID      = "X-Request-ID"
)

// UseCases are the operations exposed over HTTP.
type UseCases struct {
	CreateOrder    application.UseCase[appOrder.CreateOrderCommand, *appOrder.CreateOrderResult]
	GetOrder       application.UseCase[appOrder.GetOrderQuery, *domainOrder.Order]
	ConfirmPayment application.UseCase[appOrder.ConfirmPaymentCommand, *domainOrder.Order]
	CancelOrder    application.UseCase[appOrder.CancelOrderCommand, *domainOrder.Order]
	UpdateStatus   application.UseCase[appOrder.UpdateOrderStatusCommand, *domainOrder.Order]
	RefundOrder    application.UseCase[appOrder.RefundOrderCommand, *domainOrder.Order]
	AdjustStock    application.UseCase[appInventory.AdjustStockCommand, dominv.Stock]
	GetStock       application.UseCase[appInventory.GetStockQuery, dominv.Stock]
}

// NewUseCases builds every order use case over one workflow.
func NewUseCases(w *appOrder.Workflow, adjust *appInventory.AdjustStockUseCase, get *appInventory.GetStockUseCase) UseCases {
	return UseCases{
		CreateOrder:    appOrder.NewCreateOrderUseCase(w),
		GetOrder:       appOrder.NewGetOrderUseCase(w),
		ConfirmPayment: appOrder.NewConfirmPaymentUseCase(w),
		CancelOrder:    appOrder.NewCancelOrderUseCase(w),
		UpdateStatus:   appOrder.NewUpdateOrderStatusUseCase(w),
		RefundOrder:    appOrder.NewRefundOrderUseCase(w),
		AdjustStock:    adjust,
		GetStock:       get,
	}
}

type Handler struct {
	uc     UseCases
	log    observability.Logger
	tel    observability.Observability
	tracer trace.Tracer
}

type Option func(*Handler)

// WithTracerProvider sets the provider for server spans; the global one is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Handler) {
		if tp != nil {
			h.tracer = tp.Tracer(tracerName)
		}
	}
}

func NewHandler(uc UseCases, tel observability.Observability, opts ...Option) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	h := &Handler{
		uc:     uc,
		log:    tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:    tel,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, apperr.NotFound("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Error: errorBody{
			Kind: "method_not_allowed", Status: "Unimplemented", Message: r.Method + " not allowed",
		}})
	})

	// Trace → request logger and HTTP metrics → access log → handler
	h.route(r, http.MethodPost, "/orders", h.handleCreateOrder)
	h.route(r, http.MethodGet, "/orders/{orderID}", h.handleGetOrder)
	h.route(r, http.MethodPost, "/orders/{orderID}/confirm-payment", h.handleConfirmPayment)
	h.route(r, http.MethodPost, "/orders/{orderID}/cancel", h.handleCancelOrder)
	h.route(r, http.MethodPatch, "/orders/{orderID}/status", h.handleUpdateStatus)
	h.route(r, http.MethodPost, "/orders/{orderID}/refund", h.handleRefundOrder)
	h.route(r, http.MethodGet, "/inventory/{productID}", h.handleGetStock)
	h.route(r, http.MethodPost, "/inventory/{productID}/adjust", h.handleAdjustStock)
	h.route(r, http.MethodGet, "/health", h.handleHealth)

	return r
}

func (h *Handler) route(r chi.Router, method, pattern string, handler http.HandlerFunc) {
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			h.tel.Metrics(),
		)(
			h.withAccessLog(handler),
		),
	)
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		wrapped.ServeHTTP(w, req.WithContext(contextWithRoute(req.Context(), pattern)))
	}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request, continuing any W3C parent in the headers.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		route := routeFromContext(parentCtx)

		ctx, span := h.tracer.Start(parentCtx,
			r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
	})
}

type routeKey struct{}

// contextWithRoute stores the route template so metrics and logs keep low-cardinality labels.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
