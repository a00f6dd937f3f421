package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appInventory "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/config"
	domcatalog "github.com/Zhima-Mochi/minishop-orders/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/tracing"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/zaplogger"
	orderworker "github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/order/worker"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-orders/internal/presentation/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	baseLogger, err := logging.NewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := zaplogger.New(logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: config.ServiceVersion,
		Environment:    cfg.Env,
		Endpoint:       cfg.OtelEndpoint,
		Insecure:       cfg.OtelInsecure,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, histograms := prometrics.RegisterDefaults(prometrics.New(reg, "", ""))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName, tp), zaplogger.New(baseLogger), counters, histograms)

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()
	if cfg.SeedDemoData {
		if err := seedDemoData(ctx, st, cfg.LowStockThreshold); err != nil {
			return err
		}
		systemLogger.Info("demo_data_seeded", observability.F("products", len(demoProducts)))
	}

	bus := outbox.NewBus(tel)
	workflow := appOrder.NewWorkflow(appOrder.Deps{
		Store:     st.orders,
		Ledger:    st.ledger,
		Catalog:   st.catalog,
		Gateway:   payment.NewSandboxGateway(cfg.PaymentSuccessRate),
		Publisher: bus,
		IDs:       id.UUIDGenerator{},
		Numbers:   id.NewOrderNumberGenerator(),
		Locker:    st.locker,
	}, tel)
	adjustStock := appInventory.NewAdjustStockUseCase(st.ledger, bus, tel)
	getStock := appInventory.NewGetStockUseCase(st.ledger, tel)

	appInventory.NewWorker(bus, tel).Start()
	var relay *kafka.Relay
	if cfg.KafkaEnabled() {
		relay = kafka.NewRelay(kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic), tel)
		relay.Register(bus)
		systemLogger.Info("kafka_relay_enabled", observability.F("topic", cfg.KafkaTopic))
	}
	bus.Start(ctx)

	reaper := orderworker.NewReaper(appOrder.NewExpireUnpaidOrdersUseCase(workflow), orderworker.Config{
		Interval:    cfg.ReaperInterval,
		TTL:         cfg.ReservationTTL,
		BatchSize:   cfg.ReaperBatchSize,
		Concurrency: cfg.ReaperConcurrency,
	}, tel)

	handler := httppresentation.NewHandler(httppresentation.NewUseCases(workflow, adjustStock, getStock), tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return reaper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			systemLogger.Error("http_server_shutdown_error", observability.F("error", err))
			return err
		}
		systemLogger.Info("http_server_stopped")
		return nil
	})
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := bus.Stop(shutdownCtx); err != nil {
		systemLogger.Warn("event_bus_stop_error", observability.F("error", err))
	}
	if relay != nil {
		if err := relay.Close(); err != nil {
			systemLogger.Warn("kafka_relay_close_error", observability.F("error", err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		systemLogger.Warn("tracing_shutdown_error", observability.F("error", err))
	}
	return runErr
}

type stores struct {
	orders  domorder.Store
	ledger  dominv.Ledger
	catalog domcatalog.Catalog
	locker  appOrder.OrderLocker

	putProduct func(context.Context, domcatalog.Product) error
	seedStock  func(ctx context.Context, productID string, quantity, threshold int) error
	close      func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if !cfg.PostgresEnabled() {
		ledger := memory.NewInventoryLedger()
		cat := memory.NewCatalog(ledger)
		return &stores{
			orders:  memory.NewOrderStore(),
			ledger:  ledger,
			catalog: cat,
			putProduct: func(_ context.Context, p domcatalog.Product) error {
				cat.Put(p)
				return nil
			},
			seedStock: func(_ context.Context, productID string, quantity, threshold int) error {
				return ledger.Seed(productID, quantity, threshold)
			},
			close: func() {},
		}, nil
	}

	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	ledger := postgres.NewInventoryLedger(pool)
	cat := postgres.NewCatalog(pool)
	return &stores{
		orders:     postgres.NewOrderStore(pool),
		ledger:     ledger,
		catalog:    cat,
		locker:     postgres.NewOrderLocker(pool),
		putProduct: cat.Put,
		seedStock:  ledger.Seed,
		close:      pool.Close,
	}, nil
}

type demoProduct struct {
	id, name, price, currency string
	quantity                  int
}

var demoProducts = []demoProduct{
	{id: "sku-espresso", name: "Espresso Beans 1kg", price: "18.00", currency: "USD", quantity: 50},
	{id: "sku-grinder", name: "Burr Grinder", price: "129.99", currency: "USD", quantity: 10},
	{id: "sku-matcha", name: "Ceremonial Matcha", price: "1200", currency: "JPY", quantity: 25},
}

func seedDemoData(ctx context.Context, st *stores, threshold int) error {
	for _, p := range demoProducts {
		price, err := decimal.NewFromString(p.price)
		if err != nil {
			return fmt.Errorf("seed %s: %w", p.id, err)
		}
		if err := st.putProduct(ctx, domcatalog.Product{
			ID: p.id, Name: p.name, Price: price, Currency: p.currency, Active: true,
		}); err != nil {
			return err
		}
		if err := st.seedStock(ctx, p.id, p.quantity, threshold); err != nil {
			return fmt.Errorf("seed %s: %w", p.id, err)
		}
	}
	return nil
}
