package kafkaqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestExporter(w *fakeWriter) *Exporter {
	return &Exporter{
		writer:  w,
		brokers: []string{"localhost:9092"},
		topic:   DefaultTopic,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestExportKeysByMarket(t *testing.T) {
	w := &fakeWriter{}
	e := newTestExporter(w)
	at := time.Date(2025, 10, 9, 8, 45, 0, 0, time.UTC)

	ev := domain.Event{Name: domain.EventPositionOpened, MarketID: "btc-updown-15m-1759999500", At: at}
	if err := e.Export(context.Background(), ev, []byte(`{"event":"position_opened"}`)); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "btc-updown-15m-1759999500" {
		t.Errorf("key = %q", msg.Key)
	}
	if string(msg.Value) != `{"event":"position_opened"}` {
		t.Errorf("value = %q", msg.Value)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != "event" || string(msg.Headers[0].Value) != "position_opened" {
		t.Errorf("headers = %+v", msg.Headers)
	}
	if !msg.Time.Equal(at) {
		t.Errorf("time = %v", msg.Time)
	}
}

func TestExportWrapsWriteError(t *testing.T) {
	boom := errors.New("leader not available")
	e := newTestExporter(&fakeWriter{err: boom})
	err := e.Export(context.Background(), domain.Event{Name: domain.EventHedgeFailed}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewRequiresBrokers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(Config{}, logger); err == nil {
		t.Fatal("expected error without brokers")
	}
	e, err := New(Config{Brokers: []string{"kafka:9092"}}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.topic != DefaultTopic {
		t.Errorf("topic = %q", e.topic)
	}
}

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"a:9092", "b:9092"}, "events")
	if w.Topic != "events" || w.RequiredAcks != kafka.RequireOne {
		t.Fatalf("writer = %+v", w)
	}
	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Fatalf("balancer = %T", w.Balancer)
	}
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	if err := newTestExporter(w).Close(); err != nil || !w.closed {
		t.Fatalf("closed=%v err=%v", w.closed, err)
	}
}
