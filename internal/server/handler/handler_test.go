package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
	"github.com/alanyoungcy/updownarb/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticLedger []domain.Position

func (s staticLedger) All() []domain.Position { return s }

func (s staticLedger) Counts() map[domain.PositionStatus]int {
	out := make(map[domain.PositionStatus]int)
	for _, p := range s {
		out[p.Status]++
	}
	return out
}

var ledgerFixture = staticLedger{
	{ID: "p1", MarketID: "m1", Status: domain.PositionStatusActive},
	{ID: "p2", MarketID: "m2", Status: domain.PositionStatusPartiallyFilled},
	{ID: "p3", MarketID: "m1", Status: domain.PositionStatusRedeemed},
}

func TestListPositions(t *testing.T) {
	h := NewPositionHandler(ledgerFixture)

	tests := []struct {
		name  string
		query string
		code  int
		ids   []string
	}{
		{"all", "", http.StatusOK, []string{"p1", "p2", "p3"}},
		{"single status", "?status=REDEEMED", http.StatusOK, []string{"p3"}},
		{"open statuses lowercase", "?status=active,partially_filled", http.StatusOK, []string{"p1", "p2"}},
		{"market", "?market_id=m1", http.StatusOK, []string{"p1", "p3"}},
		{"no match", "?status=EXPIRED", http.StatusOK, nil},
		{"unknown status", "?status=OPEN", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions"+tt.query, nil))
			if rec.Code != tt.code {
				t.Fatalf("code = %d", rec.Code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var resp listPositionsResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Count != len(tt.ids) || len(resp.Positions) != len(tt.ids) {
				t.Fatalf("got %d positions, want %v", resp.Count, tt.ids)
			}
			for i, id := range tt.ids {
				if resp.Positions[i].ID != id {
					t.Errorf("positions[%d] = %s, want %s", i, resp.Positions[i].ID, id)
				}
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]HealthCheck{"postgres": ok}, testLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]HealthCheck{"postgres": ok, "redis": down}, testLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded code = %d", rec.Code)
	}
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" || body.Dependencies["redis"] != "connection refused" || body.Dependencies["postgres"] != "ok" {
		t.Fatalf("body = %+v", body)
	}
}

type fixedScan struct {
	stats pipeline.TickStats
	at    time.Time
}

func (f fixedScan) LastScan() (pipeline.TickStats, time.Time) { return f.stats, f.at }

func TestGetStatus(t *testing.T) {
	scan := fixedScan{stats: pipeline.TickStats{Pairs: 2, Executed: 1}, at: time.Now()}
	h := NewStatusHandler("trade", false, time.Now().Add(-time.Minute), ledgerFixture, scan)

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var body struct {
		Mode      string         `json:"mode"`
		Uptime    int64          `json:"uptime_seconds"`
		Positions map[string]int `json:"positions"`
		LastScan  *struct {
			Stats pipeline.TickStats `json:"stats"`
		} `json:"last_scan"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Mode != "trade" || body.Uptime < 59 || body.Positions["ACTIVE"] != 1 {
		t.Fatalf("body = %+v", body)
	}
	if body.LastScan == nil || body.LastScan.Stats.Executed != 1 {
		t.Fatalf("last scan = %+v", body.LastScan)
	}
}

type streamBus struct {
	msgs  []domain.StreamMessage
	after string
	count int
	err   error
}

func (b *streamBus) Publish(context.Context, string, []byte) error { return nil }

func (b *streamBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *streamBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *streamBus) StreamRead(_ context.Context, _ string, after string, count int) ([]domain.StreamMessage, error) {
	b.after, b.count = after, count
	return b.msgs, b.err
}

func TestListEvents(t *testing.T) {
	bus := &streamBus{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"event":"position_opened"}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
		{ID: "3-0", Payload: []byte(`{"event":"position_redeemed"}`)},
	}}
	h := NewEventsHandler(bus, "updownarb:events:log", testLogger())

	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=5000", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if bus.after != "0" || bus.count != 1000 {
		t.Fatalf("read after=%q count=%d", bus.after, bus.count)
	}
	var body struct {
		Events []streamEvent `json:"events"`
		LastID string        `json:"last_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Events) != 2 || body.LastID != "3-0" {
		t.Fatalf("body = %+v", body)
	}

	bus.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/events?after=3-0", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("error code = %d", rec.Code)
	}
}
