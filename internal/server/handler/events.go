package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// EventsHandler replays lifecycle events from the signal bus stream.
type EventsHandler struct {
	bus    domain.SignalBus
	stream string
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler reading stream.
func NewEventsHandler(bus domain.SignalBus, stream string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, stream: stream, logger: logger}
}

type streamEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents returns up to limit events after the stream id in ?after=
// (default: from the start). The last id is returned for paging.
// GET /api/events?after=...&limit=...
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := queryLimit(r, 100, 1000)

	msgs, err := h.bus.StreamRead(r.Context(), h.stream, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read event stream failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "event stream unavailable")
		return
	}

	events := make([]streamEvent, 0, len(msgs))
	last := after
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		events = append(events, streamEvent{ID: m.ID, Event: m.Payload})
		last = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "last_id": last})
}
