package domain

import "time"

// OpportunityKind records which leg combinations were under threshold.
type OpportunityKind string

const (
	KindBoth     OpportunityKind = "BOTH"
	KindAUpBDown OpportunityKind = "A_UP_B_DOWN"
	KindADownBUp OpportunityKind = "A_DOWN_B_UP"
)

// TradeAction is the directional decision for an opportunity.
type TradeAction string

const (
	ActionBuyAUpBDown TradeAction = "BUY_A_UP_B_DOWN"
	ActionBuyADownBUp TradeAction = "BUY_A_DOWN_B_UP"
	ActionSkip        TradeAction = "SKIP"
)

// LegPrices are the four best prices observed at detection time.
type LegPrices struct {
	AUp   float64 `json:"a_up"`
	ADown float64 `json:"a_down"`
	BUp   float64 `json:"b_up"`
	BDown float64 `json:"b_down"`
}

// Opportunity is an immutable evaluation result for one matched market.
type Opportunity struct {
	MarketID        string
	VenueAMarketID  string
	VenueBMarketID  string
	Title           string
	EndTime         time.Time
	Kind            OpportunityKind
	TotalCost       float64
	ProfitPotential float64
	Action          TradeAction
	LegPrices       LegPrices
	SettlementA     *float64
	SettlementB     *float64
	DetectedAt      time.Time
}

// Legs returns the outcome bought on each venue for the opportunity's action.
func (o Opportunity) Legs() (a, b Outcome, ok bool) {
	switch o.Action {
	case ActionBuyAUpBDown:
		return OutcomeUp, OutcomeDown, true
	case ActionBuyADownBUp:
		return OutcomeDown, OutcomeUp, true
	default:
		return "", "", false
	}
}

// LegPrice returns the detection-time price for an outcome on venue A or B.
func (o Opportunity) LegPrice(venueA bool, outcome Outcome) float64 {
	switch {
	case venueA && outcome == OutcomeUp:
		return o.LegPrices.AUp
	case venueA:
		return o.LegPrices.ADown
	case outcome == OutcomeUp:
		return o.LegPrices.BUp
	default:
		return o.LegPrices.BDown
	}
}
