// Package arbitrage decides whether a matched cross-venue market offers a
// hedge cheaper than par, and which direction to trade.
package arbitrage

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

const (
	// Par is the guaranteed combined payout of opposite outcomes.
	Par = 100.0
	// DefaultThreshold is the maximum combined cost considered eligible.
	DefaultThreshold = 90.0
	// DefaultStaleTolerance is the absolute per-leg move that invalidates
	// a detected opportunity.
	DefaultStaleTolerance = 2.0
)

// Evaluator turns a matched market's quotes into at most one Opportunity.
type Evaluator struct {
	threshold      float64
	staleTolerance float64
	now            func() time.Time
}

// NewEvaluator creates an Evaluator. Non-positive arguments use the defaults.
func NewEvaluator(threshold, staleTolerance float64) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if staleTolerance <= 0 {
		staleTolerance = DefaultStaleTolerance
	}
	return &Evaluator{
		threshold:      threshold,
		staleTolerance: staleTolerance,
		now:            time.Now,
	}
}

// Threshold returns the configured eligibility threshold.
func (e *Evaluator) Threshold() float64 {
	return e.threshold
}

// Evaluate returns the actionable opportunity for m, or false when no combo
// is eligible or the decision is SKIP.
func (e *Evaluator) Evaluate(m domain.MatchedMarket) (domain.Opportunity, bool) {
	opp, eligible := e.Decide(m)
	if !eligible || opp.Action == domain.ActionSkip {
		return domain.Opportunity{}, false
	}
	return opp, true
}

// Decide runs the full decision tree. The bool is false when neither leg
// combination is under threshold; otherwise the opportunity is returned
// with its action, which may be SKIP.
func (e *Evaluator) Decide(m domain.MatchedMarket) (domain.Opportunity, bool) {
	qa, qb := m.VenueAQuote, m.VenueBQuote

	costUpDown := qa.UpPrice + qb.DownPrice
	costDownUp := qa.DownPrice + qb.UpPrice
	eligibleUpDown := costUpDown < e.threshold
	eligibleDownUp := costDownUp < e.threshold

	if !eligibleUpDown && !eligibleDownUp {
		return domain.Opportunity{}, false
	}

	sA, sB := qa.SettlementPrice, qb.SettlementPrice
	opp := domain.Opportunity{
		MarketID:       m.MarketID,
		VenueAMarketID: m.VenueAMarketID,
		VenueBMarketID: m.VenueBMarketID,
		Title:          m.Title,
		EndTime:        m.EndTime,
		LegPrices: domain.LegPrices{
			AUp:   qa.UpPrice,
			ADown: qa.DownPrice,
			BUp:   qb.UpPrice,
			BDown: qb.DownPrice,
		},
		SettlementA: copyPrice(sA),
		SettlementB: copyPrice(sB),
		DetectedAt:  e.now(),
	}

	switch {
	case eligibleUpDown && eligibleDownUp:
		opp.Kind = domain.KindBoth
		opp.TotalCost = math.Min(costUpDown, costDownUp)
		switch {
		case sA != nil && sB != nil && *sB > *sA:
			opp.Action = domain.ActionBuyAUpBDown
		case sA != nil && sB != nil && *sA > *sB:
			opp.Action = domain.ActionBuyADownBUp
		case costUpDown <= costDownUp:
			opp.Action = domain.ActionBuyAUpBDown
		default:
			opp.Action = domain.ActionBuyADownBUp
		}

	case eligibleUpDown:
		opp.Kind = domain.KindAUpBDown
		opp.TotalCost = costUpDown
		opp.Action = domain.ActionSkip
		if sA != nil && sB != nil && *sA < *sB {
			opp.Action = domain.ActionBuyAUpBDown
		}

	default:
		opp.Kind = domain.KindADownBUp
		opp.TotalCost = costDownUp
		opp.Action = domain.ActionSkip
		if sA != nil && sB != nil && *sA > *sB {
			opp.Action = domain.ActionBuyADownBUp
		}
	}

	opp.ProfitPotential = ProfitPotential(opp.TotalCost)
	return opp, true
}

// Validate re-checks opp against fresh quotes and returns ErrStaleQuote if
// any of the four leg prices moved by the stale tolerance or more.
func (e *Evaluator) Validate(opp domain.Opportunity, qa, qb domain.Quote) error {
	legs := []struct {
		name     string
		was, now float64
	}{
		{"a_up", opp.LegPrices.AUp, qa.UpPrice},
		{"a_down", opp.LegPrices.ADown, qa.DownPrice},
		{"b_up", opp.LegPrices.BUp, qb.UpPrice},
		{"b_down", opp.LegPrices.BDown, qb.DownPrice},
	}
	for _, l := range legs {
		if math.Abs(l.now-l.was) >= e.staleTolerance {
			return fmt.Errorf("arbitrage: %s %.2f -> %.2f: %w", l.name, l.was, l.now, domain.ErrStaleQuote)
		}
	}
	return nil
}

// ProfitPotential is the percentage return of buying a hedge at totalCost
// and collecting par.
func ProfitPotential(totalCost float64) float64 {
	if totalCost <= 0 {
		return 0
	}
	return (Par - totalCost) / totalCost * 100
}

func copyPrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
