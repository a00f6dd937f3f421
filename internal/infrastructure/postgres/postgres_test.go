package postgres

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

const envTestDatabaseURL = "MINISHOP_TEST_DATABASE_URL"

var (
	poolOnce sync.Once
	pool     *pgxpool.Pool
	poolErr  error
)

func testDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv(envTestDatabaseURL)
	if url == "" {
		t.Skipf("%s not set", envTestDatabaseURL)
	}
	poolOnce.Do(func() {
		ctx := context.Background()
		pool, poolErr = Open(ctx, url)
		if poolErr == nil {
			poolErr = Migrate(ctx, pool)
		}
	})
	require.NoError(t, poolErr)
	return pool
}

func uniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func TestInventoryLedgerLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := NewInventoryLedger(testDB(t))
	pid := uniqueID("p")
	require.NoError(t, ledger.Seed(ctx, pid, 5, 2))
	require.NoError(t, ledger.Seed(ctx, pid, 99, 0), "seeding twice keeps the first row")

	s, err := ledger.TryReserve(ctx, pid, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Reserved)
	assert.Equal(t, 0, s.Available())

	s, err = ledger.TryReserve(ctx, pid, 1)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, 5, s.Reserved, "failed reserve reports current counters")

	s, err = ledger.Commit(ctx, pid, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Quantity)
	assert.Equal(t, 2, s.Reserved)

	_, err = ledger.Commit(ctx, pid, 3)
	assert.ErrorIs(t, err, inventory.ErrReservationUnderflow)

	s, err = ledger.Release(ctx, pid, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Reserved, "release clamps at zero")

	_, err = ledger.Release(ctx, uniqueID("missing"), 1)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	_, err = ledger.TryReserve(ctx, uniqueID("missing"), 1)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestInventoryLedgerAdjust(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := NewInventoryLedger(testDB(t))
	pid := uniqueID("p")
	require.NoError(t, ledger.Seed(ctx, pid, 10, 0))
	_, err := ledger.TryReserve(ctx, pid, 4)
	require.NoError(t, err)

	s, err := ledger.Adjust(ctx, pid, inventory.Delta(5))
	require.NoError(t, err)
	assert.Equal(t, 15, s.Quantity)

	_, err = ledger.Adjust(ctx, pid, inventory.Absolute(3))
	assert.ErrorIs(t, err, inventory.ErrBelowReserved)
	_, err = ledger.Adjust(ctx, pid, inventory.Delta(-12))
	assert.ErrorIs(t, err, inventory.ErrBelowReserved)
	_, err = ledger.Adjust(ctx, pid, inventory.Absolute(-1))
	assert.ErrorIs(t, err, inventory.ErrNegativeBalance)

	s, err = ledger.Adjust(ctx, pid, inventory.Absolute(4))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Quantity)
	assert.Equal(t, 0, s.Available())
}

func TestInventoryLedgerConcurrentReserveNeverOversells(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := NewInventoryLedger(testDB(t))
	pid := uniqueID("p")
	require.NoError(t, ledger.Seed(ctx, pid, 10, 0))

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.TryReserve(ctx, pid, 1); err == nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, won.Load())
	s, err := ledger.Get(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 10, s.Reserved)
}

func newOrder(t *testing.T, createdAt time.Time) *domain.Order {
	t.Helper()
	o, err := domain.New(uniqueID("o"), "c-1",
		[]domain.Item{{ProductID: "p-1", Name: "Widget", UnitPrice: 1250, Quantity: 2}},
		"USD", domain.Address{Line1: "1 Main", City: "Taipei", Country: "TW"}, domain.MethodCard)
	require.NoError(t, err)
	o.OrderNumber = uniqueID("MS")
	o.CreatedAt = createdAt
	o.UpdatedAt = createdAt
	return o
}

func TestOrderStoreRoundTripAndVersions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewOrderStore(testDB(t))
	o := newOrder(t, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, store.Insert(ctx, o))
	assert.EqualValues(t, 1, o.Version)

	dup := newOrder(t, o.CreatedAt)
	dup.OrderNumber = o.OrderNumber
	assert.ErrorIs(t, store.Insert(ctx, dup), domain.ErrDuplicateOrderNumber)
	again := newOrder(t, o.CreatedAt)
	again.ID = o.ID
	assert.ErrorIs(t, store.Insert(ctx, again), domain.ErrConflict)

	got, err := store.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Items, got.Items)
	assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
	assert.Equal(t, domain.MethodCard, got.PaymentMethod)
	assert.True(t, o.CreatedAt.Equal(got.CreatedAt))

	byNumber, err := store.FindByOrderNumber(ctx, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byNumber.ID)

	stale, err := store.FindByID(ctx, o.ID)
	require.NoError(t, err)
	got.Items[0].Reserved = 2
	require.NoError(t, store.Update(ctx, got))
	assert.EqualValues(t, 2, got.Version)

	stale.CancelReason = "late"
	assert.ErrorIs(t, store.Update(ctx, stale), domain.ErrStaleVersion)

	missing := newOrder(t, o.CreatedAt)
	assert.ErrorIs(t, store.Update(ctx, missing), domain.ErrNotFound)
	_, err = store.FindByID(ctx, missing.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderStoreListAwaitingPayment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewOrderStore(testDB(t))
	old := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

	waiting := newOrder(t, old)
	waiting.Stage = domain.StageAwaitingPayment
	require.NoError(t, store.Insert(ctx, waiting))
	fresh := newOrder(t, old.Add(48*time.Hour))
	fresh.Stage = domain.StageAwaitingPayment
	require.NoError(t, store.Insert(ctx, fresh))

	got, err := store.ListAwaitingPayment(ctx, old.Add(time.Hour), 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	assert.Contains(t, ids, waiting.ID)
	assert.NotContains(t, ids, fresh.ID)
}

func TestCatalogFindByID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testDB(t)
	cat := NewCatalog(db)
	ledger := NewInventoryLedger(db)

	pid := uniqueID("p")
	require.NoError(t, cat.Put(ctx, catalog.Product{
		ID: pid, Name: "Widget", Price: decimal.RequireFromString("12.50"), Currency: "USD", Active: true,
	}))
	require.NoError(t, ledger.Seed(ctx, pid, 7, 2))

	p, err := cat.FindByID(ctx, pid)
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.5")))
	minor, err := p.UnitPriceMinor()
	require.NoError(t, err)
	assert.EqualValues(t, 1250, minor)
	assert.Equal(t, 7, p.Inventory.Quantity)
	assert.Equal(t, 2, p.Inventory.LowStockThreshold)

	_, err = cat.FindByID(ctx, uniqueID("missing"))
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}
