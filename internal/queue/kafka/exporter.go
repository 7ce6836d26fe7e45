// Package kafkaqueue exports engine lifecycle events to a Kafka topic for
// downstream consumers.
package kafkaqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/updownarb/internal/domain"
	"github.com/alanyoungcy/updownarb/internal/service"
)

// DefaultTopic receives events when Config.Topic is empty.
const DefaultTopic = "updownarb.events"

// Config holds Kafka connection parameters.
type Config struct {
	Brokers []string
	Topic   string
}

// messageWriter is the subset of *kafka.Writer the exporter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Exporter writes each event as one message keyed by market id, so all
// events of a market land on the same partition in order.
type Exporter struct {
	writer  messageWriter
	brokers []string
	topic   string
	logger  *slog.Logger
}

var _ service.EventExporter = (*Exporter)(nil)

// NewWriter returns a writer tuned for small, latency-sensitive batches.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// New creates an Exporter.
func New(cfg Config, logger *slog.Logger) (*Exporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkaqueue: no brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return &Exporter{
		writer:  NewWriter(cfg.Brokers, cfg.Topic),
		brokers: cfg.Brokers,
		topic:   cfg.Topic,
		logger:  logger.With(slog.String("component", "kafka")),
	}, nil
}

// Export implements service.EventExporter.
func (e *Exporter) Export(ctx context.Context, ev domain.Event, payload []byte) error {
	msg := kafka.Message{
		Key:     []byte(ev.MarketID),
		Value:   payload,
		Headers: []kafka.Header{{Key: "event", Value: []byte(ev.Name)}},
		Time:    ev.At,
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafkaqueue: write %s to %s: %w", ev.Name, e.topic, err)
	}
	return nil
}

// Ping dials the first broker.
func (e *Exporter) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", e.brokers[0])
	if err != nil {
		return fmt.Errorf("kafkaqueue: dial %s: %w", e.brokers[0], err)
	}
	return conn.Close()
}

// Close flushes pending messages and closes the writer.
func (e *Exporter) Close() error {
	if err := e.writer.Close(); err != nil {
		e.logger.Warn("kafka writer close failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
