package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
	"github.com/alanyoungcy/updownarb/internal/pipeline"
)

// LedgerCounter reports position counts per status.
type LedgerCounter interface {
	Counts() map[domain.PositionStatus]int
}

// ScanReporter reports the most recent scan tick.
type ScanReporter interface {
	LastScan() (pipeline.TickStats, time.Time)
}

// StatusHandler serves engine counters for the dashboard.
type StatusHandler struct {
	mode      string
	dryRun    bool
	startedAt time.Time
	ledger    LedgerCounter
	scans     ScanReporter
}

// NewStatusHandler creates a StatusHandler. scans may be nil when no scan
// loop runs in this mode.
func NewStatusHandler(mode string, dryRun bool, startedAt time.Time, ledger LedgerCounter, scans ScanReporter) *StatusHandler {
	return &StatusHandler{mode: mode, dryRun: dryRun, startedAt: startedAt, ledger: ledger, scans: scans}
}

// GetStatus responds with the mode, uptime, ledger counts and last scan.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.mode,
		"dry_run":        h.dryRun,
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"positions":      h.ledger.Counts(),
	}
	if h.scans != nil {
		stats, at := h.scans.LastScan()
		if !at.IsZero() {
			body["last_scan"] = map[string]any{
				"at":    at.Format(time.RFC3339),
				"stats": stats,
			}
		}
	}
	writeJSON(w, http.StatusOK, body)
}
