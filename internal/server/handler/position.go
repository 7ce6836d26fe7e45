package handler

import (
	"net/http"
	"strings"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// PositionSource exposes the in-memory ledger.
type PositionSource interface {
	All() []domain.Position
}

// PositionHandler serves the ledger.
type PositionHandler struct {
	positions PositionSource
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionSource) *PositionHandler {
	return &PositionHandler{positions: positions}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
	Count     int               `json:"count"`
}

var knownStatuses = map[domain.PositionStatus]bool{
	domain.PositionStatusActive:          true,
	domain.PositionStatusPartiallyFilled: true,
	domain.PositionStatusRedeemed:        true,
	domain.PositionStatusExpired:         true,
}

// ListPositions returns ledger positions, optionally filtered by a
// comma-separated status list and a market id.
// GET /api/positions?status=ACTIVE,PARTIALLY_FILLED&market_id=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var statuses map[domain.PositionStatus]bool
	if raw := q.Get("status"); raw != "" {
		statuses = make(map[domain.PositionStatus]bool)
		for _, s := range strings.Split(raw, ",") {
			st := domain.PositionStatus(strings.ToUpper(strings.TrimSpace(s)))
			if !knownStatuses[st] {
				writeError(w, http.StatusBadRequest, "unknown status "+s)
				return
			}
			statuses[st] = true
		}
	}
	marketID := q.Get("market_id")

	out := []domain.Position{}
	for _, p := range h.positions.All() {
		if statuses != nil && !statuses[p.Status] {
			continue
		}
		if marketID != "" && p.MarketID != marketID {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: out, Count: len(out)})
}
