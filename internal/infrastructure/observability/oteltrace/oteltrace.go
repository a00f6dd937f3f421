package oteltrace

import (
	"context"
	"strings"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultName = "minishop-orders"

// Span name prefixes that imply a non-internal span kind.
var kinds = []struct {
	prefix string
	kind   trace.SpanKind
}{
	{"Kafka.Publish ", trace.SpanKindProducer},
}

type tracer struct{ t trace.Tracer }

// New returns a Tracer backed by tp, or by the global provider when tp is nil.
func New(name string, tp trace.TracerProvider, opts ...trace.TracerOption) observability.Tracer {
	if name == "" {
		name = defaultName
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &tracer{t: tp.Tracer(name, opts...)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(kindOf(name)))
}

func kindOf(name string) trace.SpanKind {
	for _, k := range kinds {
		if strings.HasPrefix(name, k.prefix) {
			return k.kind
		}
	}
	return trace.SpanKindInternal
}
