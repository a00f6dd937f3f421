package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

func TestSandboxGatewaySettlesOnRetrieve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewSandboxGateway(1)

	intent, err := g.CreateIntent(ctx, domain.IntentRequest{Amount: 1999, Currency: "usd", Metadata: map[string]string{"order_id": "o-1"}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequiresAction, intent.Status)
	assert.Equal(t, "USD", intent.Currency)
	assert.NotEmpty(t, intent.ClientSecret)

	got, err := g.RetrieveIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, got.Status)
	assert.Equal(t, "o-1", got.Metadata["order_id"])

	require.NoError(t, g.RefundIntent(ctx, intent.ID))
	require.NoError(t, g.RefundIntent(ctx, intent.ID))
	got, err = g.RetrieveIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, got.Status)
}

func TestSandboxGatewayFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewSandboxGateway(0)

	_, err := g.CreateIntent(ctx, domain.IntentRequest{Amount: 0, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	intent, err := g.CreateIntent(ctx, domain.IntentRequest{Amount: 10, Currency: "USD"})
	require.NoError(t, err)
	got, err := g.RetrieveIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Error(t, g.RefundIntent(ctx, intent.ID))

	_, err = g.RetrieveIntent(ctx, "pi_missing")
	assert.ErrorIs(t, err, domain.ErrIntentNotFound)
}

func TestSandboxGatewaySettle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewSandboxGateway(0)
	intent, err := g.CreateIntent(ctx, domain.IntentRequest{Amount: 10, Currency: "USD"})
	require.NoError(t, err)

	require.NoError(t, g.Settle(intent.ID, domain.StatusSucceeded))
	got, err := g.RetrieveIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, got.Status)
	assert.ErrorIs(t, g.Settle("nope", domain.StatusFailed), domain.ErrIntentNotFound)
}

func TestSandboxGatewayProcessingIsSticky(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewSandboxGateway(1)
	intent, err := g.CreateIntent(ctx, domain.IntentRequest{Amount: 10, Currency: "USD"})
	require.NoError(t, err)
	require.NoError(t, g.Settle(intent.ID, domain.StatusProcessing))

	got, err := g.RetrieveIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
}

func TestSandboxGatewayCancelIntent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := NewSandboxGateway(1)

	open, err := g.CreateIntent(ctx, domain.IntentRequest{Amount: 10, Currency: "USD"})
	require.NoError(t, err)
	require.NoError(t, g.CancelIntent(ctx, open.ID))
	require.NoError(t, g.CancelIntent(ctx, open.ID), "cancelling twice is a no-op")
	got, err := g.RetrieveIntent(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, got.Status, "a cancelled intent never settles")

	paid, err := g.CreateIntent(ctx, domain.IntentRequest{Amount: 10, Currency: "USD"})
	require.NoError(t, err)
	require.NoError(t, g.Settle(paid.ID, domain.StatusSucceeded))
	assert.ErrorIs(t, g.CancelIntent(ctx, paid.ID), domain.ErrIntentSettled)

	assert.ErrorIs(t, g.CancelIntent(ctx, "pi_missing"), domain.ErrIntentNotFound)
}
