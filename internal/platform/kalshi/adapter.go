package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// DefaultSeriesTicker is Kalshi's 15-minute BTC up/down series.
const DefaultSeriesTicker = "KXBTC15M"

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	SeriesTicker string
	// SeriesTag is the canonical tag stamped on every listed market.
	SeriesTag string
}

// Adapter exposes Kalshi as a domain.Venue. Up maps to the YES side and
// down to NO.
type Adapter struct {
	client *Client
	cfg    AdapterConfig
	logger *slog.Logger
	now    func() time.Time
}

var _ domain.Venue = (*Adapter)(nil)

// NewAdapter wraps client.
func NewAdapter(client *Client, cfg AdapterConfig, logger *slog.Logger) *Adapter {
	if cfg.SeriesTicker == "" {
		cfg.SeriesTicker = DefaultSeriesTicker
	}
	return &Adapter{
		client: client,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "kalshi")),
		now:    time.Now,
	}
}

func (a *Adapter) Name() string { return "kalshi" }

// ListOpenMarkets lists open markets in seriesFilter, or the configured
// series when the filter is empty. Markets that already closed are dropped.
func (a *Adapter) ListOpenMarkets(ctx context.Context, seriesFilter string) ([]domain.MarketDescriptor, error) {
	series := seriesFilter
	if series == "" {
		series = a.cfg.SeriesTicker
	}

	markets, err := a.client.ListMarkets(ctx, series, "open")
	if err != nil {
		return nil, err
	}

	now := a.now()
	out := make([]domain.MarketDescriptor, 0, len(markets))
	for _, m := range markets {
		closeAt, err := time.Parse(time.RFC3339, m.CloseTime)
		if err != nil {
			a.logger.DebugContext(ctx, "skipping market with bad close time",
				slog.String("ticker", m.Ticker),
				slog.String("close_time", m.CloseTime),
			)
			continue
		}
		if !closeAt.After(now) {
			continue
		}
		out = append(out, domain.MarketDescriptor{
			ID:        m.Ticker,
			Title:     m.Title,
			CloseTime: closeAt,
			SeriesTag: a.cfg.SeriesTag,
		})
	}
	return out, nil
}

// GetQuote reads the market's best asks. Kalshi quotes in cents so the
// 0-100 scale carries over unchanged.
func (a *Adapter) GetQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	m, err := a.client.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Quote{}, err
	}
	if m.YesAsk <= 0 || m.NoAsk <= 0 {
		return domain.Quote{}, fmt.Errorf("kalshi: %s: %w", marketID, domain.ErrNoLiquidity)
	}
	return domain.Quote{
		UpPrice:         m.YesAsk,
		DownPrice:       m.NoAsk,
		SettlementPrice: settlementPrice(m),
		ObservedAt:      a.now().UTC(),
	}, nil
}

// settlementPrice is 100/0 once the result is known, the last traded price
// after trading has closed, and nil while the market is still trading.
func settlementPrice(m Market) *float64 {
	switch m.Result {
	case "yes":
		return domain.Float(100)
	case "no":
		return domain.Float(0)
	}
	switch m.Status {
	case "closed", "determined", "settled", "finalized":
		if m.LastPrice > 0 {
			return domain.Float(m.LastPrice)
		}
	}
	return nil
}

// PlaceOrder sends an immediate-or-cancel limit order for floor(Amount)
// contracts. Any unfilled remainder left resting is cancelled.
func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	count := int64(math.Floor(req.Amount))
	if count < 1 {
		return domain.OrderResult{}, fmt.Errorf("kalshi: amount %.4f below one contract: %w", req.Amount, domain.ErrInvalidOrder)
	}

	price := clampCents(req.LimitPrice)
	order := Order{
		Ticker:        req.MarketID,
		ClientOrderID: uuid.NewString(),
		Action:        string(req.Side),
		Type:          "limit",
		Count:         count,
		TimeInForce:   "immediate_or_cancel",
	}
	if req.Outcome == domain.OutcomeUp {
		order.Side = "yes"
		order.YesPrice = &price
	} else {
		order.Side = "no"
		order.NoPrice = &price
	}

	state, err := a.client.CreateOrder(ctx, order)
	if err != nil {
		return domain.OrderResult{Status: domain.FillStatusRejected, Message: err.Error()}, err
	}

	if state.Status == "resting" && state.RemainingCount > 0 {
		if err := a.client.CancelOrder(ctx, state.OrderID); err != nil {
			a.logger.WarnContext(ctx, "cancel resting remainder failed",
				slog.String("order_id", state.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}

	filled := state.Filled()
	res := domain.OrderResult{
		ID:           state.OrderID,
		FilledAmount: float64(filled),
		Message:      state.Status,
	}
	switch {
	case filled >= count:
		res.Status = domain.FillStatusFilled
	case filled > 0:
		res.Status = domain.FillStatusPartial
	default:
		res.Status = domain.FillStatusCancelled
	}

	a.logger.InfoContext(ctx, "order placed",
		slog.String("ticker", req.MarketID),
		slog.String("side", order.Side),
		slog.String("action", order.Action),
		slog.Int64("count", count),
		slog.Int64("price", price),
		slog.Int64("filled", filled),
	)
	return res, nil
}

// IsResolved reports whether the market has a final result.
func (a *Adapter) IsResolved(ctx context.Context, marketID string) (bool, error) {
	m, err := a.client.GetMarket(ctx, marketID)
	if err != nil {
		return false, err
	}
	return resolved(m), nil
}

func resolved(m Market) bool {
	switch strings.ToLower(m.Status) {
	case "settled", "finalized":
		return true
	}
	return m.Result != ""
}

// Redeem is a no-op on Kalshi, which pays settled positions to the cash
// balance automatically. It reports true once the market has settled.
func (a *Adapter) Redeem(ctx context.Context, marketID string, outcome domain.Outcome) (bool, error) {
	ok, err := a.IsResolved(ctx, marketID)
	if err != nil {
		return false, err
	}
	if ok {
		a.logger.DebugContext(ctx, "kalshi leg settled",
			slog.String("ticker", marketID),
			slog.String("outcome", string(outcome)),
		)
	}
	return ok, nil
}

// clampCents rounds a 0-100 price to whole cents within Kalshi's 1-99 range.
func clampCents(p float64) int64 {
	c := int64(math.Round(p))
	if c < 1 {
		return 1
	}
	if c > 99 {
		return 99
	}
	return c
}
