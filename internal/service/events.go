package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// EventsChannel is the signal bus channel lifecycle events are published
// on; EventsStream keeps a replayable copy.
const (
	EventsChannel = "updownarb:events"
	EventsStream  = "updownarb:events:log"
)

// EventNotifier delivers an event to human-facing channels.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// EventHub fans raw payloads out to connected dashboard clients.
type EventHub interface {
	Broadcast(payload []byte)
}

// EventExporter ships encoded events to an external log such as a Kafka
// topic.
type EventExporter interface {
	Export(ctx context.Context, ev domain.Event, payload []byte) error
}

// Broadcaster implements domain.EventSink. Each event is published to the
// signal bus, written to the audit log, pushed to the websocket hub and
// offered to the notifiers. Delivery happens off the caller's goroutine.
// Every sink is optional.
type Broadcaster struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier EventNotifier
	hub      EventHub
	exporter EventExporter
	timeout  time.Duration
	logger   *slog.Logger

	wg sync.WaitGroup
}

var _ domain.EventSink = (*Broadcaster)(nil)

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier EventNotifier,
	hub EventHub,
	logger *slog.Logger,
) *Broadcaster {
	return &Broadcaster{
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		hub:      hub,
		timeout:  10 * time.Second,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// WithExporter adds an external event log to the fan-out.
func (b *Broadcaster) WithExporter(e EventExporter) *Broadcaster {
	b.exporter = e
	return b
}

// Emit schedules delivery of ev and returns immediately.
func (b *Broadcaster) Emit(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		b.deliver(ctx, ev)
	}()
}

// Wait blocks until every emitted event has been delivered.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

func (b *Broadcaster) deliver(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.ErrorContext(ctx, "marshal event failed",
			slog.String("event", ev.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	if b.bus != nil {
		if err := b.bus.Publish(ctx, EventsChannel, payload); err != nil {
			b.logger.WarnContext(ctx, "publish event failed",
				slog.String("event", ev.Name),
				slog.String("error", err.Error()),
			)
		}
		if err := b.bus.StreamAppend(ctx, EventsStream, payload); err != nil {
			b.logger.WarnContext(ctx, "append event stream failed",
				slog.String("event", ev.Name),
				slog.String("error", err.Error()),
			)
		}
	}

	if b.hub != nil {
		b.hub.Broadcast(payload)
	}

	if b.exporter != nil {
		if err := b.exporter.Export(ctx, ev, payload); err != nil {
			b.logger.WarnContext(ctx, "export event failed",
				slog.String("event", ev.Name),
				slog.String("error", err.Error()),
			)
		}
	}

	if b.audit != nil {
		detail := make(map[string]any, len(ev.Detail)+1)
		for k, v := range ev.Detail {
			detail[k] = v
		}
		detail["market_id"] = ev.MarketID
		if err := b.audit.Log(ctx, ev.Name, detail); err != nil {
			b.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", ev.Name),
				slog.String("error", err.Error()),
			)
		}
	}

	if b.notifier != nil {
		if err := b.notifier.NotifyEvent(ctx, ev); err != nil {
			b.logger.WarnContext(ctx, "notify failed",
				slog.String("event", ev.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}
