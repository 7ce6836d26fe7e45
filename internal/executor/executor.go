// Package executor sizes and places the two legs of a cross-venue hedge.
package executor

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

// Config holds the executor's trading limits.
type Config struct {
	MinTradeAmount float64
	MaxTradeAmount float64
	PerCallTimeout time.Duration
	// UnwindEnabled sells back the surviving leg when its sibling fails.
	UnwindEnabled bool
	// UnwindSlippage is subtracted from the entry price to form the unwind
	// limit price, on the 0-100 scale.
	UnwindSlippage float64
}

// Executor places hedges on venue A and venue B.
type Executor struct {
	venueA domain.Venue
	venueB domain.Venue
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Executor. A zero PerCallTimeout defaults to 10s.
func New(venueA, venueB domain.Venue, cfg Config, logger *slog.Logger) *Executor {
	if cfg.PerCallTimeout <= 0 {
		cfg.PerCallTimeout = 10 * time.Second
	}
	return &Executor{
		venueA: venueA,
		venueB: venueB,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "executor")),
		now:    time.Now,
	}
}

// contractEpsilon absorbs float noise when comparing contract counts.
const contractEpsilon = 1e-9

// Size returns balance*pct clamped to [lo, hi] and rounded down to whole
// contracts so both venues can fill the same count.
func Size(balance, pct, lo, hi float64) float64 {
	return math.Floor(math.Min(math.Max(balance*pct, lo), hi) + contractEpsilon)
}

// Size applies the executor's trade band to balance*pct.
func (e *Executor) Size(balance, pct float64) float64 {
	return Size(balance, pct, e.cfg.MinTradeAmount, e.cfg.MaxTradeAmount)
}

// Execute places both legs of opp for amount contracts.
//
// It returns an ACTIVE position when both legs fill the same number of
// contracts. An amount outside the configured band yields
// ErrAmountOutOfRange. Uneven fills, including partial fills, go through
// reconcile: the excess is unwound if enabled and anything still
// unbalanced comes back as a PARTIALLY_FILLED position with
// ErrPartialFill so the caller can record the exposure.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity, amount float64) (*domain.Position, error) {
	log := e.logger.With(
		slog.String("market_id", opp.MarketID),
		slog.String("action", string(opp.Action)),
		slog.Float64("amount", amount),
	)

	if amount < e.cfg.MinTradeAmount || amount > e.cfg.MaxTradeAmount {
		log.WarnContext(ctx, "trade amount outside band, skipping",
			slog.Float64("min", e.cfg.MinTradeAmount),
			slog.Float64("max", e.cfg.MaxTradeAmount),
		)
		return nil, fmt.Errorf("executor: amount %.2f: %w", amount, domain.ErrAmountOutOfRange)
	}

	outA, outB, ok := opp.Legs()
	if !ok {
		return nil, fmt.Errorf("executor: action %s: %w", opp.Action, domain.ErrInvalidOrder)
	}

	legs := []leg{
		{venue: e.venueA, venueA: true, marketID: opp.VenueAMarketID, outcome: outA, price: opp.LegPrice(true, outA)},
		{venue: e.venueB, venueA: false, marketID: opp.VenueBMarketID, outcome: outB, price: opp.LegPrice(false, outB)},
	}

	outcomes := placeLegs(ctx, legs, amount, e.cfg.PerCallTimeout)
	for _, o := range outcomes {
		attrs := []any{
			slog.String("venue", o.venue.Name()),
			slog.String("outcome", string(o.outcome)),
			slog.Float64("limit_price", o.price),
			slog.Float64("filled", o.held()),
			slog.Duration("elapsed", o.elapsed),
		}
		if o.ok() {
			log.InfoContext(ctx, "leg filled", append(attrs, slog.String("order_id", o.result.ID))...)
		} else {
			log.WarnContext(ctx, "leg failed", append(attrs, slog.String("error", o.failure()))...)
		}
	}

	a, b := outcomes[0], outcomes[1]
	ha, hb := a.held(), b.held()
	switch {
	case a.ok() && b.ok() && sameSize(ha, hb):
		pos := e.hedged(opp, a, b, ha)
		log.InfoContext(ctx, "hedge opened",
			slog.String("position_id", pos.ID),
			slog.Float64("total_cost", pos.TotalCost),
			slog.Float64("expected_profit", pos.ExpectedProfit),
		)
		return &pos, nil

	case ha == 0 && hb == 0:
		return nil, fmt.Errorf("executor: both legs failed (a: %s; b: %s): %w", a.failure(), b.failure(), domain.ErrLegFailed)
	}
	return e.reconcile(ctx, log, opp, a, b)
}

// reconcile settles a hedge whose legs hold different contract counts.
// The larger leg's excess is unwound when enabled. Balanced leftovers
// become an ACTIVE hedge of the smaller size; anything else is recorded as
// PARTIALLY_FILLED with each leg credited what it holds.
func (e *Executor) reconcile(ctx context.Context, log *slog.Logger, opp domain.Opportunity, a, b legOutcome) (*domain.Position, error) {
	outs := [2]legOutcome{a, b}
	held := [2]float64{a.held(), b.held()}
	note := fillNote(a, b)

	over, under := 0, 1
	if held[1] > held[0] {
		over, under = 1, 0
	}
	if excess := held[over] - held[under]; e.cfg.UnwindEnabled && excess > contractEpsilon {
		sold, err := e.unwind(ctx, outs[over], excess)
		if err == nil {
			held[over] = held[under]
			log.WarnContext(ctx, "excess leg unwound",
				slog.String("unwound_venue", outs[over].venue.Name()),
				slog.Float64("contracts", excess),
			)
		} else {
			held[over] -= sold
			note += "; unwind failed: " + err.Error()
		}
	}

	if sameSize(held[0], held[1]) {
		if held[0] <= contractEpsilon {
			return nil, fmt.Errorf("executor: %s, filled leg unwound: %w", note, domain.ErrLegFailed)
		}
		pos := e.hedged(opp, a, b, held[0])
		pos.Note = note
		log.WarnContext(ctx, "hedge opened at reduced size",
			slog.String("position_id", pos.ID),
			slog.Float64("contracts", held[0]),
			slog.String("reason", note),
		)
		return &pos, nil
	}

	pos := e.newPosition(opp, domain.PositionStatusPartiallyFilled)
	for i, o := range outs {
		if held[i] > 0 {
			credit(&pos, o.leg, held[i])
			pos.TotalCost += o.price * held[i] / 100
		}
	}
	pos.Note = note
	log.ErrorContext(ctx, "hedge partially filled, exposure left open",
		slog.String("position_id", pos.ID),
		slog.Float64("venue_a_contracts", held[0]),
		slog.Float64("venue_b_contracts", held[1]),
		slog.String("reason", note),
	)
	return &pos, fmt.Errorf("executor: %s: %w", note, domain.ErrPartialFill)
}

// hedged builds an ACTIVE position holding contracts on both legs.
func (e *Executor) hedged(opp domain.Opportunity, a, b legOutcome, contracts float64) domain.Position {
	pos := e.newPosition(opp, domain.PositionStatusActive)
	credit(&pos, a.leg, contracts)
	credit(&pos, b.leg, contracts)
	pos.TotalCost = opp.TotalCost * contracts / 100
	pos.ExpectedProfit = opp.ProfitPotential * contracts / 100
	return pos
}

func fillNote(a, b legOutcome) string {
	var parts []string
	for _, o := range []legOutcome{a, b} {
		if !o.ok() {
			parts = append(parts, fmt.Sprintf("%s leg failed: %s (held %g of %g)", o.venue.Name(), o.failure(), o.held(), o.amount))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("leg fills differ: %s %g, %s %g", a.venue.Name(), a.held(), b.venue.Name(), b.held())
	}
	return strings.Join(parts, "; ")
}

func sameSize(x, y float64) bool {
	return math.Abs(x-y) <= contractEpsilon
}

// unwind sells back contracts of a filled leg at its entry price less the
// configured slippage. It returns how many contracts were sold, which can
// be non-zero alongside an error when the sell only partly fills.
func (e *Executor) unwind(ctx context.Context, l legOutcome, contracts float64) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.PerCallTimeout)
	defer cancel()

	res, err := l.venue.PlaceOrder(callCtx, domain.OrderRequest{
		MarketID:   l.marketID,
		Outcome:    l.outcome,
		Side:       domain.OrderSideSell,
		Amount:     contracts,
		LimitPrice: l.price - e.cfg.UnwindSlippage,
	})
	sold := math.Min(res.FilledAmount, contracts)
	if err != nil {
		return sold, fmt.Errorf("unwind on %s: %w", l.venue.Name(), err)
	}
	if !res.Filled() {
		return sold, fmt.Errorf("unwind on %s: order %s not filled (%s)", l.venue.Name(), res.ID, res.Status)
	}
	return contracts, nil
}

func (e *Executor) newPosition(opp domain.Opportunity, status domain.PositionStatus) domain.Position {
	return domain.Position{
		ID:             uuid.New().String(),
		MarketID:       opp.MarketID,
		VenueAMarketID: opp.VenueAMarketID,
		VenueBMarketID: opp.VenueBMarketID,
		Title:          opp.Title,
		Action:         opp.Action,
		Status:         status,
		EndTime:        opp.EndTime,
		OpenedAt:       e.now().UTC(),
	}
}

// credit attributes contracts to the position leg matching l.
func credit(p *domain.Position, l leg, contracts float64) {
	side := &p.VenueBLeg
	if l.venueA {
		side = &p.VenueALeg
	}
	if l.outcome == domain.OutcomeUp {
		side.Up = contracts
	} else {
		side.Down = contracts
	}
}
