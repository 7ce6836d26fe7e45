package domain

import "time"

// Quote is a normalized best-price snapshot for one market on one venue.
// Prices are on a 0-100 scale where 100 is the par payout.
type Quote struct {
	UpPrice   float64
	DownPrice float64
	// SettlementPrice is set only once the venue has begun or completed
	// settlement. Nil is the normal pre-settlement state.
	SettlementPrice *float64
	ObservedAt      time.Time
}

// HasSettlement reports whether the venue published a settlement-implied price.
func (q Quote) HasSettlement() bool {
	return q.SettlementPrice != nil
}

// MarketDescriptor is a venue's open-market listing entry.
type MarketDescriptor struct {
	ID        string
	Title     string
	CloseTime time.Time
	SeriesTag string
}

// MarketPair links a venue-A market to its equivalent on venue B.
type MarketPair struct {
	A MarketDescriptor
	B MarketDescriptor
}

// MatchedMarket is a MarketPair with the quotes observed this tick. It is
// rebuilt every scan and never cached.
type MatchedMarket struct {
	MarketID       string // venue-A market id
	Title          string
	VenueAMarketID string
	VenueBMarketID string
	EndTime        time.Time
	Resolved       bool
	VenueAQuote    Quote
	VenueBQuote    Quote
}

// Float returns a pointer to v. Handy for optional prices.
func Float(v float64) *float64 {
	return &v
}
