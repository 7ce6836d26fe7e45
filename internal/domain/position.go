package domain

import "time"

// PositionStatus tracks a hedge through its lifecycle.
type PositionStatus string

const (
	PositionStatusActive          PositionStatus = "ACTIVE"
	PositionStatusPartiallyFilled PositionStatus = "PARTIALLY_FILLED"
	PositionStatusRedeemed        PositionStatus = "REDEEMED"
	PositionStatusExpired         PositionStatus = "EXPIRED"
)

// Open reports whether the status still holds exposure at a venue.
func (s PositionStatus) Open() bool {
	return s == PositionStatusActive || s == PositionStatusPartiallyFilled
}

// LegAmounts is the USD notional held per outcome on one venue.
type LegAmounts struct {
	Up   float64 `json:"up"`
	Down float64 `json:"down"`
}

// Amount returns the notional held on the given outcome.
func (l LegAmounts) Amount(o Outcome) float64 {
	if o == OutcomeUp {
		return l.Up
	}
	return l.Down
}

// Position is a hedge opened by the executor.
type Position struct {
	ID             string         `json:"id"`
	MarketID       string         `json:"market_id"`
	VenueAMarketID string         `json:"venue_a_market_id"`
	VenueBMarketID string         `json:"venue_b_market_id"`
	Title          string         `json:"title"`
	Action         TradeAction    `json:"action"`
	VenueALeg      LegAmounts     `json:"venue_a_leg"`
	VenueBLeg      LegAmounts     `json:"venue_b_leg"`
	TotalCost      float64        `json:"total_cost"`
	ExpectedProfit float64        `json:"expected_profit"`
	Status         PositionStatus `json:"status"`
	EndTime        time.Time      `json:"end_time"`
	OpenedAt       time.Time      `json:"opened_at"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
	Note           string         `json:"note,omitempty"`
}
