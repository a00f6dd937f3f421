// Package kafka relays domain events from the in-process bus to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const (
	componentRelay = "kafka_relay"
	peerKafka      = "kafka"
	writeTimeout   = 5 * time.Second

	HeaderEventName   = "event-name"
	HeaderContentType = "content-type"
)

// DefaultEvents is every event the service emits.
var DefaultEvents = []string{
	"order.created",
	"order.paid",
	"order.cancelled",
	"order.refunded",
	"order.status_changed",
	"inventory.adjusted",
	"inventory.stock_low",
}

// Writer is the subset of *kafka.Writer the relay needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter builds a writer that hashes on the message key so events of one
// aggregate land on one partition.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

type Relay struct {
	writer     Writer
	tracer     observability.Tracer
	log        observability.Logger
	propagator propagation.TextMapPropagator

	writes observability.Peer
}

type Option func(*Relay)

// WithPropagator overrides the global text map propagator used for message headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(r *Relay) {
		if p != nil {
			r.propagator = p
		}
	}
}

func NewRelay(w Writer, tel observability.Observability, opts ...Option) *Relay {
	if tel == nil {
		tel = observability.Nop()
	}
	r := &Relay{
		writer:     w,
		tracer:     tel.Tracer(),
		log:        tel.Logger().With(observability.F("component", componentRelay)),
		propagator: otel.GetTextMapPropagator(),
		writes:     observability.NewPeer(tel.Metrics(), peerKafka),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register subscribes the relay to the named events, or to DefaultEvents when none are given.
func (r *Relay) Register(sub domoutbox.Subscriber, eventNames ...string) {
	if len(eventNames) == 0 {
		eventNames = DefaultEvents
	}
	for _, name := range eventNames {
		sub.Subscribe(name, r.Handle)
	}
}

// Handle writes one event as a JSON message. The span context of ctx is injected into the headers.
func (r *Relay) Handle(ctx context.Context, e domoutbox.Event) error {
	name := e.EventName()
	ctx, span := r.tracer.Start(ctx, "Kafka.Publish "+name,
		attribute.String("messaging.system", peerKafka),
		attribute.String("messaging.operation", "publish"),
		attribute.String("event", name),
	)
	defer span.End()
	logger := logctx.FromOr(ctx, r.log).With(observability.F("event", name))

	msg, err := r.message(ctx, e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		logger.Error("kafka_encode_failed", observability.F("error", err))
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	start := time.Now()
	err = r.writer.WriteMessages(wctx, msg)
	r.writes.Observe(name, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write")
		logger.Warn("kafka_write_failed", observability.F("error", err))
		return fmt.Errorf("kafka: write %s: %w", name, err)
	}
	span.SetStatus(codes.Ok, "OK")
	logger.Debug("kafka_event_relayed", observability.F("key", string(msg.Key)))
	return nil
}

func (r *Relay) message(ctx context.Context, e domoutbox.Event) (kafkago.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("kafka: marshal %s: %w", e.EventName(), err)
	}

	carrier := propagation.MapCarrier{}
	r.propagator.Inject(ctx, carrier)
	headers := make([]kafkago.Header, 0, len(carrier)+2)
	headers = append(headers,
		kafkago.Header{Key: HeaderEventName, Value: []byte(e.EventName())},
		kafkago.Header{Key: HeaderContentType, Value: []byte("application/json")},
	)
	for _, k := range carrier.Keys() {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(carrier.Get(k))})
	}

	msg := kafkago.Message{Value: payload, Headers: headers, Time: time.Now().UTC()}
	if keyed, ok := e.(domoutbox.Keyed); ok {
		msg.Key = []byte(keyed.AggregateID())
	}
	return msg, nil
}

func (r *Relay) Close() error {
	return r.writer.Close()
}
