package domain

import "context"

// Venue is the adapter contract every trading venue implements. Adapters
// normalize venue payloads before returning; callers never see raw shapes.
type Venue interface {
	Name() string
	ListOpenMarkets(ctx context.Context, seriesFilter string) ([]MarketDescriptor, error)
	GetQuote(ctx context.Context, marketID string) (Quote, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	IsResolved(ctx context.Context, marketID string) (bool, error)
	// Redeem claims the payout for one outcome. Redeeming an already
	// redeemed leg succeeds without side effects.
	Redeem(ctx context.Context, marketID string, outcome Outcome) (bool, error)
}
