package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	domcatalog "github.com/Zhima-Mochi/minishop-orders/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/payment"
)

type seed struct {
	id       string
	price    string
	currency string
	quantity int
	inactive bool
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

func (p *recordingPublisher) count(name string) int {
	n := 0
	for _, got := range p.names() {
		if got == name {
			n++
		}
	}
	return n
}

// scriptedGateway wraps the sandbox and fails the calls it was told to fail.
type scriptedGateway struct {
	*payment.SandboxGateway
	createErr   error
	retrieveErr error
	refundErr   error
	cancelErr   error

	mu      sync.Mutex
	created []string
}

func (g *scriptedGateway) CreateIntent(ctx context.Context, req dompay.IntentRequest) (dompay.Intent, error) {
	if g.createErr != nil {
		return dompay.Intent{}, g.createErr
	}
	intent, err := g.SandboxGateway.CreateIntent(ctx, req)
	if err == nil {
		g.mu.Lock()
		g.created = append(g.created, intent.ID)
		g.mu.Unlock()
	}
	return intent, err
}

func (g *scriptedGateway) CancelIntent(ctx context.Context, intentID string) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	return g.SandboxGateway.CancelIntent(ctx, intentID)
}

func (g *scriptedGateway) lastIntent() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.created) == 0 {
		return ""
	}
	return g.created[len(g.created)-1]
}

func (g *scriptedGateway) status(t *testing.T, intentID string) dompay.Status {
	t.Helper()
	intent, err := g.SandboxGateway.RetrieveIntent(context.Background(), intentID)
	require.NoError(t, err)
	return intent.Status
}

func (g *scriptedGateway) RetrieveIntent(ctx context.Context, intentID string) (dompay.Intent, error) {
	if g.retrieveErr != nil {
		return dompay.Intent{}, g.retrieveErr
	}
	return g.SandboxGateway.RetrieveIntent(ctx, intentID)
}

func (g *scriptedGateway) RefundIntent(ctx context.Context, intentID string) error {
	if g.refundErr != nil {
		return g.refundErr
	}
	return g.SandboxGateway.RefundIntent(ctx, intentID)
}

// flakyLedger fails the next commit of one product and runs afterWrite once a commit or
// release has landed.
type flakyLedger struct {
	dominv.Ledger
	mu         sync.Mutex
	failCommit map[string]int
	afterWrite func()
}

func (l *flakyLedger) Commit(ctx context.Context, productID string, quantity int) (dominv.Stock, error) {
	l.mu.Lock()
	if l.failCommit[productID] > 0 {
		l.failCommit[productID]--
		l.mu.Unlock()
		return dominv.Stock{}, errors.New("ledger: connection reset")
	}
	l.mu.Unlock()
	s, err := l.Ledger.Commit(ctx, productID, quantity)
	if err == nil {
		l.wrote()
	}
	return s, err
}

func (l *flakyLedger) Release(ctx context.Context, productID string, quantity int) (dominv.Stock, error) {
	s, err := l.Ledger.Release(ctx, productID, quantity)
	if err == nil {
		l.wrote()
	}
	return s, err
}

func (l *flakyLedger) onWrite(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.afterWrite = fn
}

func (l *flakyLedger) wrote() {
	l.mu.Lock()
	fn := l.afterWrite
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type scriptedNumbers struct {
	mu      sync.Mutex
	numbers []string
	i       int
}

func (s *scriptedNumbers) NextOrderNumber() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.numbers[s.i%len(s.numbers)]
	s.i++
	return n, nil
}

type harness struct {
	ledger   *memory.InventoryLedger
	flaky    *flakyLedger
	store    *memory.OrderStore
	catalog  *memory.Catalog
	gateway  *scriptedGateway
	events   *recordingPublisher
	recorder *tracetest.SpanRecorder
	numbers  OrderNumberGenerator
	w        *Workflow
}

func newHarness(t *testing.T, seeds ...seed) *harness {
	t.Helper()

	h := &harness{
		ledger:   memory.NewInventoryLedger(),
		store:    memory.NewOrderStore(),
		gateway:  &scriptedGateway{SandboxGateway: payment.NewSandboxGateway(1)},
		events:   &recordingPublisher{},
		recorder: tracetest.NewSpanRecorder(),
		numbers:  id.NewOrderNumberGenerator(),
	}
	h.flaky = &flakyLedger{Ledger: h.ledger, failCommit: map[string]int{}}
	h.catalog = memory.NewCatalog(h.ledger)
	for _, s := range seeds {
		require.NoError(t, h.ledger.Seed(s.id, s.quantity, 0))
		currency := s.currency
		if currency == "" {
			currency = "USD"
		}
		h.catalog.Put(domcatalog.Product{
			ID:       s.id,
			Name:     "product " + s.id,
			Price:    decimal.RequireFromString(s.price),
			Currency: currency,
			Active:   !s.inactive,
		})
	}
	h.build(t)
	return h
}

// build (re)creates the workflow from the harness collaborators.
func (h *harness) build(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tel := infraobs.New(
		oteltrace.New("order-test", tp),
		zaplogger.New(zaptest.NewLogger(t)),
		nil, nil,
	)
	h.w = NewWorkflow(Deps{
		Store:     h.store,
		Ledger:    h.flaky,
		Catalog:   h.catalog,
		Gateway:   h.gateway,
		Publisher: h.events,
		IDs:       id.UUIDGenerator{},
		Numbers:   h.numbers,
	}, tel)
}

func (h *harness) stock(t *testing.T, productID string) dominv.Stock {
	t.Helper()
	s, err := h.ledger.Get(context.Background(), productID)
	require.NoError(t, err)
	return s
}

func testAddress() domain.Address {
	return domain.Address{Name: "Ada", Line1: "1 Main St", City: "Taipei", PostalCode: "100", Country: "TW"}
}

func (h *harness) create(ctx context.Context, customer string, method domain.PaymentMethod, items ...CreateOrderItem) (*CreateOrderResult, error) {
	return NewCreateOrderUseCase(h.w).Execute(ctx, CreateOrderCommand{
		CustomerID:      customer,
		Items:           items,
		ShippingAddress: testAddress(),
		PaymentMethod:   method,
	})
}

func (h *harness) mustCreate(t *testing.T, customer string, method domain.PaymentMethod, items ...CreateOrderItem) *domain.Order {
	t.Helper()
	res, err := h.create(context.Background(), customer, method, items...)
	require.NoError(t, err)
	return res.Order
}

func (h *harness) confirm(ctx context.Context, orderID, requester string) (*domain.Order, error) {
	return NewConfirmPaymentUseCase(h.w).Execute(ctx, ConfirmPaymentCommand{
		OrderID:   orderID,
		Requester: Requester{ID: requester},
	})
}

func item(productID string, qty int) CreateOrderItem {
	return CreateOrderItem{ProductID: productID, Quantity: qty}
}

var admin = Requester{ID: "ops-1", Admin: true}

func productFor(id string) domcatalog.Product {
	return domcatalog.Product{ID: id, Name: id, Price: decimal.NewFromInt(1), Currency: "USD", Active: true}
}
