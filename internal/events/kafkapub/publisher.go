// Package kafkapub publishes domain events to Kafka.
package kafkapub

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/xenking/beauty-shop/internal/events"
)

const headerEventType = "event_type"

// DefaultWriteTimeout bounds a publish when no timeout is configured.
const DefaultWriteTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes events to a single topic. Messages are keyed by the event
// key so one order or variant always lands on the same partition.
type Publisher struct {
	w       messageWriter
	timeout time.Duration
}

var _ events.Publisher = (*Publisher)(nil)

// New creates a Publisher writing to topic on the given brokers. A
// non-positive timeout selects DefaultWriteTimeout.
func New(brokers []string, topic string, timeout time.Duration) *Publisher {
	return &Publisher{
		timeout: timeout,
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish implements events.Publisher. The current trace context is carried
// in message headers. Events are published after the change committed, so
// the write ignores cancellation of ctx and is bounded by the publisher
// timeout instead.
func (p *Publisher) Publish(ctx context.Context, evs ...events.Event) error {
	if len(evs) == 0 {
		return nil
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	msgs := make([]kafka.Message, len(evs))
	for i, ev := range evs {
		headers := make([]kafka.Header, 0, len(carrier)+1)
		headers = append(headers, kafka.Header{Key: headerEventType, Value: []byte(ev.Type)})
		for k, v := range carrier {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		msgs[i] = kafka.Message{
			Key:     []byte(ev.Key),
			Value:   ev.Payload,
			Headers: headers,
			Time:    ev.OccurredAt,
		}
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := p.w.WriteMessages(wctx, msgs...); err != nil {
		return errors.Wrap(err, "write messages")
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
