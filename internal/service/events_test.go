package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (m *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.published == nil {
		m.published = make(map[string][][]byte)
	}
	m.published[channel] = append(m.published[channel], payload)
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (m *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	return m.Publish(context.Background(), stream, payload)
}

func (m *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memHub struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (m *memHub) Broadcast(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, p)
}

type memNotifier struct {
	mu     sync.Mutex
	events []string
}

func (m *memNotifier) NotifyEvent(_ context.Context, ev domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev.Name)
	return nil
}

type memExporter struct {
	mu   sync.Mutex
	keys []string
}

func (m *memExporter) Export(_ context.Context, ev domain.Event, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, ev.MarketID+"/"+ev.Name)
	return nil
}

func TestBroadcasterFansOut(t *testing.T) {
	bus, audit, hub, notifier := &memBus{}, &memAudit{}, &memHub{}, &memNotifier{}
	exporter := &memExporter{}
	b := NewBroadcaster(bus, audit, notifier, hub, testLogger()).WithExporter(exporter)

	b.Emit(domain.Event{Name: domain.EventPositionOpened, MarketID: "pm-1", Detail: map[string]any{"position_id": "p1"}})
	b.Wait()

	if n := len(bus.published[EventsChannel]); n != 1 {
		t.Fatalf("bus published %d", n)
	}
	if n := len(bus.published[EventsStream]); n != 1 {
		t.Fatalf("stream appended %d", n)
	}
	var ev domain.Event
	if err := json.Unmarshal(bus.published[EventsChannel][0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Name != domain.EventPositionOpened || ev.At.IsZero() {
		t.Fatalf("decoded event = %+v", ev)
	}
	if len(audit.entries) != 1 || audit.entries[0].Detail["market_id"] != "pm-1" {
		t.Fatalf("audit = %+v", audit.entries)
	}
	if len(hub.payloads) != 1 || len(notifier.events) != 1 {
		t.Fatalf("hub=%d notifier=%d", len(hub.payloads), len(notifier.events))
	}
	if len(exporter.keys) != 1 || exporter.keys[0] != "pm-1/position_opened" {
		t.Fatalf("exported = %v", exporter.keys)
	}
}

func TestBroadcasterNilSinks(t *testing.T) {
	b := NewBroadcaster(nil, nil, nil, nil, testLogger())
	b.Emit(domain.Event{Name: domain.EventHedgeFailed})
	b.Wait()
}
