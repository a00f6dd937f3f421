package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
	"github.com/google/uuid"
)

// ObservabilityMiddleware combines:
// - request-scoped logger injection (dynamic fields only)
// - X-Request-ID generation + echo
// - HTTP metrics (counter + histogram) with low-cardinality labels
//
// It expects the server span to be on the request context already.
func ObservabilityMiddleware(
	base observability.Logger,
	requestID func(*http.Request) string,
	metrics observability.Metrics,
) func(http.Handler) http.Handler {
	if base == nil {
		base = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	requests := metrics.Counter(observability.MHTTPRequests)
	durations := metrics.Histogram(observability.MHTTPRequestDuration)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			rid := ""
			if requestID != nil {
				rid = requestID(r)
			}
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set(headerRequestID, rid)

			fields := []observability.Field{observability.F("request_id", rid)}
			fields = append(fields, observability.SpanFields(ctx)...)
			ctx = logctx.With(ctx, base.With(fields...))

			start := time.Now()
			lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(lrw, r.WithContext(ctx))

			route := routeFromContext(ctx)
			status := strconv.Itoa(lrw.status)
			requests.Add(1,
				observability.L("method", r.Method),
				observability.L("route", route),
				observability.L("status", status),
			)
			durations.Observe(time.Since(start).Seconds(),
				observability.L("method", r.Method),
				observability.L("route", route),
				observability.L("status", status),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
