package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
	"github.com/alanyoungcy/updownarb/internal/server/handler"
)

type emptyLedger struct{}

func (emptyLedger) All() []domain.Position { return nil }

func (emptyLedger) Counts() map[domain.PositionStatus]int { return nil }

func TestRoutesAndAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newHandler(Config{APIKey: "k"}, Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Positions: handler.NewPositionHandler(emptyLedger{}),
		Status:    handler.NewStatusHandler("monitor", true, time.Now(), emptyLedger{}, nil),
	}, nil, logger)
	srv := httptest.NewServer(h)
	defer srv.Close()

	tests := []struct {
		path string
		key  string
		want int
	}{
		{"/api/health", "", http.StatusOK},
		{"/api/positions", "", http.StatusUnauthorized},
		{"/api/positions", "k", http.StatusOK},
		{"/api/status", "k", http.StatusOK},
		{"/api/events", "k", http.StatusNotFound},
		{"/ws", "k", http.StatusNotFound},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+tt.path, nil)
		if tt.key != "" {
			req.Header.Set("X-API-Key", tt.key)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s (key %q) = %d, want %d", tt.path, tt.key, resp.StatusCode, tt.want)
		}
	}
}
