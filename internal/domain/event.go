package domain

import "time"

// Event names published on the signal bus and offered to notifiers.
const (
	EventOpportunityDetected = "opportunity_detected"
	EventPositionOpened      = "position_opened"
	EventPositionPartial     = "position_partial"
	EventPositionRedeemed    = "position_redeemed"
	EventPositionExpired     = "position_expired"
	EventHedgeFailed         = "hedge_failed"
)

// Event is a lifecycle notification fanned out to the bus, the websocket
// hub and the notifiers.
type Event struct {
	Name     string         `json:"event"`
	MarketID string         `json:"market_id"`
	Detail   map[string]any `json:"detail,omitempty"`
	At       time.Time      `json:"at"`
}

// EventSink receives lifecycle events. Implementations must not block.
type EventSink interface {
	Emit(ev Event)
}
