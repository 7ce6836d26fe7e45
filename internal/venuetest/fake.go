// Package venuetest provides an in-memory domain.Venue for tests.
package venuetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// Venue is a scriptable domain.Venue. Hooks left nil fall back to simple
// defaults: orders fill, markets are unresolved, redemption succeeds.
type Venue struct {
	VenueName string

	Markets    []domain.MarketDescriptor
	ListErr    error
	Quotes     map[string]domain.Quote
	QuoteErr   error
	OnOrder    func(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	Resolved   map[string]bool
	ResolveErr error
	OnRedeem   func(ctx context.Context, marketID string, outcome domain.Outcome) (bool, error)

	mu       sync.Mutex
	orders   []domain.OrderRequest
	redeems  []string
	seq      atomic.Int64
	quoteHit atomic.Int64
}

var _ domain.Venue = (*Venue)(nil)

// New returns a Venue with empty maps.
func New(name string) *Venue {
	return &Venue{
		VenueName: name,
		Quotes:    make(map[string]domain.Quote),
		Resolved:  make(map[string]bool),
	}
}

func (v *Venue) Name() string { return v.VenueName }

func (v *Venue) ListOpenMarkets(context.Context, string) ([]domain.MarketDescriptor, error) {
	if v.ListErr != nil {
		return nil, v.ListErr
	}
	return v.Markets, nil
}

func (v *Venue) GetQuote(_ context.Context, marketID string) (domain.Quote, error) {
	v.quoteHit.Add(1)
	if v.QuoteErr != nil {
		return domain.Quote{}, v.QuoteErr
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	q, ok := v.Quotes[marketID]
	if !ok {
		return domain.Quote{}, fmt.Errorf("venuetest: no quote for %s: %w", marketID, domain.ErrNotFound)
	}
	return q, nil
}

// SetQuote replaces the quote served for marketID.
func (v *Venue) SetQuote(marketID string, q domain.Quote) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Quotes[marketID] = q
}

func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	v.mu.Lock()
	v.orders = append(v.orders, req)
	v.mu.Unlock()

	if v.OnOrder != nil {
		return v.OnOrder(ctx, req)
	}
	return domain.OrderResult{
		ID:           fmt.Sprintf("%s-%d", v.VenueName, v.seq.Add(1)),
		Status:       domain.FillStatusFilled,
		FilledAmount: req.Amount,
	}, nil
}

func (v *Venue) IsResolved(_ context.Context, marketID string) (bool, error) {
	if v.ResolveErr != nil {
		return false, v.ResolveErr
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Resolved[marketID], nil
}

// SetResolved marks marketID resolved or not.
func (v *Venue) SetResolved(marketID string, resolved bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Resolved[marketID] = resolved
}

func (v *Venue) Redeem(ctx context.Context, marketID string, outcome domain.Outcome) (bool, error) {
	v.mu.Lock()
	v.redeems = append(v.redeems, marketID+":"+string(outcome))
	v.mu.Unlock()

	if v.OnRedeem != nil {
		return v.OnRedeem(ctx, marketID, outcome)
	}
	return true, nil
}

// Orders returns the order requests received so far.
func (v *Venue) Orders() []domain.OrderRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.OrderRequest(nil), v.orders...)
}

// Redeems returns "market:outcome" for every redeem call received.
func (v *Venue) Redeems() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.redeems...)
}

// QuoteCalls returns how many times GetQuote was called.
func (v *Venue) QuoteCalls() int {
	return int(v.quoteHit.Load())
}

// Reject is an OnOrder hook that rejects every order.
func Reject(context.Context, domain.OrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{Status: domain.FillStatusRejected, Message: "rejected"}, nil
}
