// Package polymarket is a client for the Polymarket Gamma and CLOB APIs,
// the on-chain CTF redeemer and the domain.Venue adapter built on them.
package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownarb/internal/crypto"
	"github.com/alanyoungcy/updownarb/internal/domain"
)

// DefaultSlugPrefix names the 15-minute BTC up/down markets. A window's
// slug is the prefix followed by the window start as unix seconds.
const DefaultSlugPrefix = "btc-updown-15m"

const (
	outcomeUpLabel   = "Up"
	outcomeDownLabel = "Down"
	zeroAddress      = "0x0000000000000000000000000000000000000000"
)

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	SlugPrefix string
	SeriesTag  string
	Window     time.Duration
	// Lookahead is how many windows after the current one are listed.
	Lookahead int
	Exchange  common.Address
	OrderType string
	// Retention is how long past its end a market stays in the metadata
	// and redemption caches.
	Retention time.Duration
}

// Adapter exposes Polymarket as a domain.Venue. Market ids are Gamma
// slugs. Prices are converted between the CLOB's 0-1 and the 0-100 scale.
type Adapter struct {
	gamma    *GammaClient
	clob     *ClobClient
	signer   *crypto.Signer
	redeemer Redeemer
	cfg      AdapterConfig
	logger   *slog.Logger
	now      func() time.Time
	salt     func() int64

	mu       sync.Mutex
	markets  map[string]GammaMarket
	redeemed map[common.Hash]time.Time

	redeemMu sync.Mutex
}

var _ domain.Venue = (*Adapter)(nil)

// NewAdapter creates an Adapter. signer is required for PlaceOrder and
// redeemer for Redeem; either may be nil in read-only deployments.
func NewAdapter(gamma *GammaClient, clob *ClobClient, signer *crypto.Signer, redeemer Redeemer, cfg AdapterConfig, logger *slog.Logger) *Adapter {
	if cfg.SlugPrefix == "" {
		cfg.SlugPrefix = DefaultSlugPrefix
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Lookahead < 0 {
		cfg.Lookahead = 0
	}
	if cfg.Exchange == (common.Address{}) {
		cfg.Exchange = DefaultExchangeAddress
	}
	if cfg.OrderType == "" {
		cfg.OrderType = "FOK"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Adapter{
		gamma:    gamma,
		clob:     clob,
		signer:   signer,
		redeemer: redeemer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "polymarket")),
		now:      time.Now,
		salt:     func() int64 { return rand.Int64N(1 << 53) },
		markets:  make(map[string]GammaMarket),
		redeemed: make(map[common.Hash]time.Time),
	}
}

func (a *Adapter) Name() string { return "polymarket" }

// ListOpenMarkets probes the current window and the configured number of
// upcoming ones by slug. seriesFilter overrides the slug prefix.
func (a *Adapter) ListOpenMarkets(ctx context.Context, seriesFilter string) ([]domain.MarketDescriptor, error) {
	prefix := seriesFilter
	if prefix == "" {
		prefix = a.cfg.SlugPrefix
	}

	now := a.now()
	a.prune(now)
	window := int64(a.cfg.Window / time.Second)
	start := now.Unix() / window * window

	found := make([]*domain.MarketDescriptor, a.cfg.Lookahead+1)
	g, gctx := errgroup.WithContext(ctx)
	for i := range found {
		windowStart := start + int64(i)*window
		g.Go(func() error {
			slug := fmt.Sprintf("%s-%d", prefix, windowStart)
			m, err := a.gamma.GetMarketBySlug(gctx, slug)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			a.remember(slug, m)
			if bool(m.Closed) || !bool(m.Active) {
				return nil
			}
			closeAt, err := m.EndTime()
			if err != nil {
				closeAt = time.Unix(windowStart, 0).Add(a.cfg.Window)
			}
			if !closeAt.After(now) {
				return nil
			}
			found[i] = &domain.MarketDescriptor{
				ID:        slug,
				Title:     m.Question,
				CloseTime: closeAt.UTC(),
				SeriesTag: a.cfg.SeriesTag,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.MarketDescriptor, 0, len(found))
	for _, d := range found {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out, nil
}

// GetQuote reads the best ask of both outcome books. The settlement price
// is the Up outcome price once the market has closed or entered
// resolution.
func (a *Adapter) GetQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	m, err := a.gamma.GetMarketBySlug(ctx, marketID)
	if err != nil {
		return domain.Quote{}, err
	}
	a.remember(marketID, m)

	upToken, err := m.TokenID(outcomeUpLabel)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket: %s: %w", marketID, err)
	}
	downToken, err := m.TokenID(outcomeDownLabel)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket: %s: %w", marketID, err)
	}

	var up, down float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := a.bestAsk(gctx, upToken)
		up = p
		return err
	})
	g.Go(func() error {
		p, err := a.bestAsk(gctx, downToken)
		down = p
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket: %s: %w", marketID, err)
	}

	q := domain.Quote{
		UpPrice:    toCents(up),
		DownPrice:  toCents(down),
		ObservedAt: a.now().UTC(),
	}
	if m.Settling() {
		if p, err := m.OutcomePrice(outcomeUpLabel); err == nil {
			q.SettlementPrice = domain.Float(toCents(p))
		}
	}
	return q, nil
}

func (a *Adapter) bestAsk(ctx context.Context, tokenID string) (float64, error) {
	book, err := a.clob.GetBook(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	p, ok := book.BestAsk()
	if !ok {
		return 0, fmt.Errorf("token %s: %w", tokenID, domain.ErrNoLiquidity)
	}
	return p, nil
}

// PlaceOrder signs and posts an order for req.Amount outcome tokens at
// req.LimitPrice. Orders default to fill-or-kill.
func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if a.signer == nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: no signer configured: %w", domain.ErrUnauthorized)
	}
	m, err := a.market(ctx, req.MarketID)
	if err != nil {
		return domain.OrderResult{}, err
	}
	label := outcomeUpLabel
	if req.Outcome == domain.OutcomeDown {
		label = outcomeDownLabel
	}
	tokenID, err := m.TokenID(label)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: %s: %w", req.MarketID, err)
	}

	price := clampPrice(req.LimitPrice / 100)
	size := math.Floor(req.Amount*100) / 100
	if size <= 0 {
		return domain.OrderResult{}, fmt.Errorf("polymarket: size %.4f: %w", req.Amount, domain.ErrInvalidOrder)
	}
	makerAmt, takerAmt, side := orderAmounts(req.Side, price, size)

	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(a.salt(), 10),
		Maker:         a.signer.Address().Hex(),
		Signer:        a.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   makerAmt.String(),
		TakerAmount:   takerAmt.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          side,
		SignatureType: crypto.SignatureTypeEOA,
	}
	sig, err := a.signer.SignOrder(a.cfg.Exchange, payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: %w: %v", domain.ErrSigningFailed, err)
	}

	salt, _ := strconv.ParseInt(payload.Salt, 10, 64)
	sideStr := "BUY"
	if side == crypto.SideSell {
		sideStr = "SELL"
	}
	owner := ""
	if creds := a.clob.apiCreds(); creds != nil {
		owner = creds.Key
	}

	resp, err := a.clob.PostOrder(ctx, PostOrderRequest{
		Order: SignedOrder{
			Salt:          salt,
			Maker:         payload.Maker,
			Signer:        payload.Signer,
			Taker:         payload.Taker,
			TokenID:       payload.TokenID,
			MakerAmount:   payload.MakerAmount,
			TakerAmount:   payload.TakerAmount,
			Expiration:    payload.Expiration,
			Nonce:         payload.Nonce,
			FeeRateBps:    payload.FeeRateBps,
			Side:          sideStr,
			SignatureType: payload.SignatureType,
			Signature:     sig,
		},
		Owner:     owner,
		OrderType: a.cfg.OrderType,
	})
	if err != nil {
		return domain.OrderResult{Status: domain.FillStatusRejected, Message: err.Error()}, err
	}

	res := domain.OrderResult{ID: resp.OrderID, Message: resp.ErrorMsg}
	if len(resp.TxHashes) > 0 {
		res.TxRef = resp.TxHashes[0]
	}
	switch {
	case !resp.Success:
		res.Status = domain.FillStatusRejected
	case resp.Status == "matched":
		res.Status = domain.FillStatusFilled
		res.FilledAmount = size
	case resp.Status == "live", resp.Status == "delayed":
		res.Status = domain.FillStatusOpen
	default:
		res.Status = domain.FillStatusCancelled
	}

	a.logger.InfoContext(ctx, "order posted",
		slog.String("market_id", req.MarketID),
		slog.String("outcome", label),
		slog.String("side", sideStr),
		slog.Float64("price", price),
		slog.Float64("size", size),
		slog.String("status", resp.Status),
		slog.String("order_id", resp.OrderID),
	)
	return res, nil
}

// orderAmounts converts price and size into the signed maker/taker
// amounts (6 decimals). Buyers give USDC for tokens, sellers the reverse.
func orderAmounts(side domain.OrderSide, price, size float64) (maker, taker *big.Int, signedSide int) {
	usdc := toMicro(price * size)
	tokens := toMicro(size)
	if side == domain.OrderSideSell {
		return tokens, usdc, crypto.SideSell
	}
	return usdc, tokens, crypto.SideBuy
}

func toMicro(v float64) *big.Int {
	return big.NewInt(int64(math.Round(v * 1e6)))
}

// toCents converts a 0-1 CLOB price to the 0-100 scale.
func toCents(p float64) float64 {
	return math.Round(p*1e4) / 100
}

// clampPrice rounds to the 0.01 tick within the CLOB's 0.01-0.99 range.
func clampPrice(p float64) float64 {
	p = math.Round(p*100) / 100
	return math.Min(math.Max(p, 0.01), 0.99)
}

// IsResolved reports whether Gamma shows the market closed with a final
// outcome.
func (a *Adapter) IsResolved(ctx context.Context, marketID string) (bool, error) {
	m, err := a.gamma.GetMarketBySlug(ctx, marketID)
	if err != nil {
		return false, err
	}
	a.remember(marketID, m)
	a.prune(a.now())
	return m.Resolved(), nil
}

// Redeem burns the market's outcome tokens through the CTF contract. A
// condition is redeemed once; later calls for either outcome report
// success without sending another transaction.
func (a *Adapter) Redeem(ctx context.Context, marketID string, outcome domain.Outcome) (bool, error) {
	if a.redeemer == nil {
		return false, fmt.Errorf("polymarket: no redeemer configured: %w", domain.ErrUnauthorized)
	}
	m, err := a.market(ctx, marketID)
	if err != nil {
		return false, err
	}
	if !strings.HasPrefix(m.ConditionID, "0x") {
		return false, fmt.Errorf("polymarket: %s: bad condition id %q", marketID, m.ConditionID)
	}
	cond := common.HexToHash(m.ConditionID)

	a.redeemMu.Lock()
	defer a.redeemMu.Unlock()

	a.mu.Lock()
	_, done := a.redeemed[cond]
	a.mu.Unlock()
	if done {
		return true, nil
	}

	resolved, err := a.IsResolved(ctx, marketID)
	if err != nil {
		return false, err
	}
	if !resolved {
		return false, nil
	}

	tx, err := a.redeemer.RedeemCondition(ctx, cond)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	a.redeemed[cond] = a.endOf(marketID, m)
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "condition redeemed",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.String("tx", tx.Hex()),
	)
	return true, nil
}

func (a *Adapter) remember(slug string, m GammaMarket) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.markets[slug] = m
}

// endOf returns when a market's window closes, from Gamma's end date or
// else from the window start encoded in the slug.
func (a *Adapter) endOf(slug string, m GammaMarket) time.Time {
	if t, err := m.EndTime(); err == nil {
		return t
	}
	if i := strings.LastIndex(slug, "-"); i >= 0 {
		if start, err := strconv.ParseInt(slug[i+1:], 10, 64); err == nil {
			return time.Unix(start, 0).Add(a.cfg.Window)
		}
	}
	return time.Time{}
}

// prune drops cached markets and redeemed conditions whose window ended
// more than Retention before now.
func (a *Adapter) prune(now time.Time) {
	cutoff := now.Add(-a.cfg.Retention)

	a.mu.Lock()
	defer a.mu.Unlock()
	for slug, m := range a.markets {
		if a.endOf(slug, m).Before(cutoff) {
			delete(a.markets, slug)
		}
	}
	for cond, end := range a.redeemed {
		if end.Before(cutoff) {
			delete(a.redeemed, cond)
		}
	}
}

// market returns cached metadata for slug, fetching it on a miss. Token
// ids and condition ids never change for a market.
func (a *Adapter) market(ctx context.Context, slug string) (GammaMarket, error) {
	a.mu.Lock()
	m, ok := a.markets[slug]
	a.mu.Unlock()
	if ok {
		return m, nil
	}
	m, err := a.gamma.GetMarketBySlug(ctx, slug)
	if err != nil {
		return GammaMarket{}, err
	}
	a.remember(slug, m)
	return m, nil
}
