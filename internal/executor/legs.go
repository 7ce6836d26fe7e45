package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// leg is one side of a cross-venue hedge.
type leg struct {
	venue    domain.Venue
	venueA   bool
	marketID string
	outcome  domain.Outcome
	price    float64
}

// legOutcome is the observed result of placing one leg.
type legOutcome struct {
	leg
	amount  float64
	result  domain.OrderResult
	err     error
	elapsed time.Duration
}

func (o legOutcome) ok() bool {
	return o.err == nil && o.result.Filled()
}

// held returns the contracts the leg actually acquired. A reported fill
// counts even when the call also returned an error.
func (o legOutcome) held() float64 {
	if o.result.FilledAmount > 0 {
		return o.result.FilledAmount
	}
	if o.ok() {
		return o.amount
	}
	return 0
}

func (o legOutcome) failure() string {
	switch {
	case o.err != nil:
		return o.err.Error()
	case o.result.Message != "":
		return fmt.Sprintf("status %s: %s", o.result.Status, o.result.Message)
	default:
		return "status " + string(o.result.Status)
	}
}

// placeLegs submits every leg concurrently and waits for all of them. A
// failing leg never cancels its sibling; each call gets its own timeout
// and an expired call counts as a failed leg.
func placeLegs(ctx context.Context, legs []leg, amount float64, timeout time.Duration) []legOutcome {
	out := make([]legOutcome, len(legs))

	var g errgroup.Group
	for i, l := range legs {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			res, err := l.venue.PlaceOrder(callCtx, domain.OrderRequest{
				MarketID:   l.marketID,
				Outcome:    l.outcome,
				Side:       domain.OrderSideBuy,
				Amount:     amount,
				LimitPrice: l.price,
			})
			if err == nil && callCtx.Err() != nil {
				err = callCtx.Err()
			}
			out[i] = legOutcome{leg: l, amount: amount, result: res, err: err, elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
