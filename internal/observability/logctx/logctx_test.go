package logctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

type recordingLogger struct {
	observability.Logger
	fields []observability.Field
}

func (r *recordingLogger) With(fields ...observability.Field) observability.Logger {
	return &recordingLogger{Logger: observability.NopLogger(), fields: append(append([]observability.Field(nil), r.fields...), fields...)}
}

func TestFromOr(t *testing.T) {
	t.Parallel()

	fallback := &recordingLogger{Logger: observability.NopLogger()}
	assert.Same(t, fallback, FromOr(context.Background(), fallback))
	assert.NotNil(t, FromOr(context.Background(), nil))

	stored := &recordingLogger{Logger: observability.NopLogger()}
	ctx := With(context.Background(), stored)
	assert.Same(t, stored, FromOr(ctx, fallback))
}

func TestEnrich(t *testing.T) {
	t.Parallel()

	base := &recordingLogger{Logger: observability.NopLogger()}
	ctx, logger := Enrich(context.Background(), base, observability.F("order_id", "o-1"))

	got, ok := logger.(*recordingLogger)
	assert.True(t, ok)
	assert.Equal(t, []observability.Field{{Key: "order_id", Value: "o-1"}}, got.fields)
	assert.Same(t, logger, From(ctx))
}
