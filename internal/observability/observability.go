package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Observability interface {
	Tracer() Tracer
	Logger() Logger
	Metrics() Metrics
}

type Metrics interface {
	Counter(name MetricKey) Counter
	Histogram(name MetricKey) Histogram
}

// Tracer is a thin wrapper to start spans.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
}

// Counter is a thin wrapper to add metrics.
type Counter interface {
	Add(delta float64, labels ...Label)
	Bind(labels ...Label) BoundCounter
}

type BoundCounter interface {
	Add(delta float64)
}

type Histogram interface {
	Observe(value float64, labels ...Label)
	Bind(labels ...Label) BoundHistogram
}

type BoundHistogram interface {
	Observe(value float64)
}

type Label struct{ Key, Value string }

func L(k, v string) Label { return Label{Key: k, Value: v} }

type Field struct {
	Key   string
	Value any
}

func F(k string, v any) Field { return Field{Key: k, Value: v} }

// Logger is a thin wrapper to log messages.
type Logger interface {
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type MetricKey string

// SpanFields returns trace_id/span_id fields when ctx carries a valid span.
func SpanFields(ctx context.Context) []Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []Field{
		F("trace_id", sc.TraceID().String()),
		F("span_id", sc.SpanID().String()),
	}
}

// Outcome is the outcome label for a finished call: success, canceled or error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// UseCaseRED records usecase_requests_total{use_case,outcome} and
// usecase_duration_seconds{use_case}.
type UseCaseRED struct {
	requests  Counter
	durations Histogram
}

func NewUseCaseRED(m Metrics) UseCaseRED {
	return UseCaseRED{
		requests:  m.Counter(MUsecaseRequests),
		durations: m.Histogram(MUsecaseDuration),
	}
}

func (r UseCaseRED) Observe(useCase, outcome string, seconds float64) {
	r.Count(useCase, outcome)
	r.durations.Observe(seconds, L("use_case", useCase))
}

// Count records a request that has no meaningful latency.
func (r UseCaseRED) Count(useCase, outcome string) {
	r.requests.Add(1, L("use_case", useCase), L("outcome", outcome))
}

// Peer records calls to one downstream dependency as external_requests_total{peer,endpoint,outcome}
// and external_request_duration_seconds{peer,endpoint}.
type Peer struct {
	name      string
	requests  Counter
	durations Histogram
}

func NewPeer(m Metrics, name string) Peer {
	return Peer{
		name:      name,
		requests:  m.Counter(MExternalRequests),
		durations: m.Histogram(MExternalRequestDuration),
	}
}

// Observe records one call to endpoint that began at start and ended with err.
func (p Peer) Observe(endpoint string, start time.Time, err error) {
	p.requests.Add(1, L("peer", p.name), L("endpoint", endpoint), L("outcome", Outcome(err)))
	p.durations.Observe(time.Since(start).Seconds(), L("peer", p.name), L("endpoint", endpoint))
}
