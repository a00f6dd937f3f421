package workerpresentation

import (
	"context"
	"sort"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
	"github.com/google/uuid"
)

// EventScope names one background execution: a ticker run, a consumed message.
// Attrs must stay low-cardinality (queue, shard, tenant).
type EventScope struct {
	Worker  string
	Event   string
	EventID string
	Attrs   map[string]string
}

// WithEventContext injects an execution-scoped logger for background work, the
// worker-side counterpart of the HTTP request logger. The logger carries
// event_id (generated when empty), the worker and event names, the trace ids
// of ctx when it holds a valid span, and the scope attributes.
func WithEventContext(ctx context.Context, base observability.Logger, scope EventScope) (context.Context, observability.Logger) {
	if base == nil {
		base = observability.NopLogger()
	}

	evtID := scope.EventID
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields := make([]observability.Field, 0, 5+len(scope.Attrs))
	fields = append(fields, observability.F("event_id", evtID))
	if scope.Worker != "" {
		fields = append(fields, observability.F("worker", scope.Worker))
	}
	if scope.Event != "" {
		fields = append(fields, observability.F("event", scope.Event))
	}
	fields = append(fields, observability.SpanFields(ctx)...)

	keys := make([]string, 0, len(scope.Attrs))
	for k, v := range scope.Attrs {
		if v != "" && k != "event_id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, observability.F(k, scope.Attrs[k]))
	}

	logger := base.With(fields...)
	return logctx.With(ctx, logger), logger
}
