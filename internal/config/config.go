package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const ServiceVersion = "0.1.0"

// Config holds everything that changes between environments.
type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string
	LogLevel    string
	LogFile     string

	// DatabaseURL selects the Postgres adapters; empty keeps everything in memory.
	DatabaseURL string

	// KafkaBrokers enables the event relay when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// OtelEndpoint is the OTLP/HTTP collector host:port; empty disables export.
	OtelEndpoint string
	OtelInsecure bool

	ReservationTTL     time.Duration
	ReaperInterval     time.Duration
	ReaperConcurrency  int
	ReaperBatchSize    int
	LowStockThreshold  int
	PaymentSuccessRate float64
	ShutdownTimeout    time.Duration
	SeedDemoData       bool
}

// Load reads the environment. Unset variables take defaults; malformed ones are errors.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}
	cfg := &Config{
		ServiceName:        p.str("SERVICE_NAME", "minishop"),
		Env:                p.str("ENV", "dev"),
		HTTPAddr:           p.str("HTTP_ADDR", ":8080"),
		LogLevel:           p.str("LOG_LEVEL", "info"),
		LogFile:            p.str("LOG_FILE", ""),
		DatabaseURL:        p.str("DATABASE_URL", ""),
		KafkaBrokers:       p.list("KAFKA_BROKERS"),
		KafkaTopic:         p.str("KAFKA_TOPIC", "minishop.events"),
		OtelEndpoint:       p.str("OTEL_ENDPOINT", ""),
		OtelInsecure:       p.boolean("OTEL_INSECURE", true),
		ReservationTTL:     p.duration("RESERVATION_TTL", 15*time.Minute),
		ReaperInterval:     p.duration("REAPER_INTERVAL", time.Minute),
		ReaperConcurrency:  p.integer("REAPER_CONCURRENCY", 4),
		ReaperBatchSize:    p.integer("REAPER_BATCH_SIZE", 100),
		LowStockThreshold:  p.integer("LOW_STOCK_THRESHOLD", 5),
		PaymentSuccessRate: p.float("PAYMENT_SUCCESS_RATE", 0.9),
		ShutdownTimeout:    p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		SeedDemoData:       p.boolean("SEED_DEMO_DATA", true),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.ReservationTTL <= 0 {
		errs = append(errs, errors.New("RESERVATION_TTL must be positive"))
	}
	if c.ReaperInterval <= 0 {
		errs = append(errs, errors.New("REAPER_INTERVAL must be positive"))
	}
	if c.ReaperConcurrency < 1 {
		errs = append(errs, errors.New("REAPER_CONCURRENCY must be at least 1"))
	}
	if c.LowStockThreshold < 0 {
		errs = append(errs, errors.New("LOW_STOCK_THRESHOLD cannot be negative"))
	}
	if c.PaymentSuccessRate < 0 || c.PaymentSuccessRate > 1 {
		errs = append(errs, errors.New("PAYMENT_SUCCESS_RATE must be within [0,1]"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// KafkaEnabled reports whether events should be relayed to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// PostgresEnabled reports whether durable storage is configured.
func (c *Config) PostgresEnabled() bool { return c.DatabaseURL != "" }

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) list(key string) []string {
	raw := p.getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return b
}

func (p *parser) fail(key, raw string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
}

func (p *parser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(p.errs...))
}
