// Package pipeline drives the engine: a scan loop that turns matched
// markets into hedges and a redeem loop that settles them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownarb/internal/arbitrage"
	"github.com/alanyoungcy/updownarb/internal/domain"
	"github.com/alanyoungcy/updownarb/internal/service"
)

// PairResolver yields this tick's matched market pairs.
type PairResolver interface {
	Resolve(ctx context.Context) []domain.MarketPair
}

// HedgeExecutor sizes and places hedges.
type HedgeExecutor interface {
	Size(balance, pct float64) float64
	Execute(ctx context.Context, opp domain.Opportunity, amount float64) (*domain.Position, error)
}

// PositionLedger is the part of the ledger the scan loop needs.
type PositionLedger interface {
	Reserve(marketID string) (release func(), ok bool)
	Append(ctx context.Context, p domain.Position) error
}

// Poller runs one resolution pass.
type Poller interface {
	Poll(ctx context.Context) service.PollResult
}

// Config holds loop cadence and sizing inputs.
type Config struct {
	ScanInterval     time.Duration
	RedeemInterval   time.Duration
	AvailableBalance float64
	TradePercentage  float64
	CallTimeout      time.Duration
	LockTTL          time.Duration
	// DryRun evaluates opportunities without placing orders.
	DryRun bool
}

// Deps are the collaborators of an Orchestrator. Locks, Events and
// Archiver are optional.
type Deps struct {
	Resolver  PairResolver
	VenueA    domain.Venue
	VenueB    domain.Venue
	Evaluator *arbitrage.Evaluator
	Executor  HedgeExecutor
	Ledger    PositionLedger
	Monitor   Poller
	Locks     domain.LockManager
	Events    domain.EventSink
	Archiver  *Archiver
}

// TickStats summarizes one scan tick.
type TickStats struct {
	Pairs         int `json:"pairs"`
	Opportunities int `json:"opportunities"`
	Executed      int `json:"executed"`
	Partial       int `json:"partial"`
	Skipped       int `json:"skipped"`
}

// Orchestrator schedules the scan and redeem loops.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastScan TickStats
	lastAt   time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 5 * time.Second
	}
	if cfg.RedeemInterval <= 0 {
		cfg.RedeemInterval = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "orchestrator")),
		now:    time.Now,
	}
}

// Run starts the scan and redeem loops and blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "orchestrator starting",
		slog.Duration("scan_interval", o.cfg.ScanInterval),
		slog.Duration("redeem_interval", o.cfg.RedeemInterval),
		slog.Bool("dry_run", o.cfg.DryRun),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.RunScanLoop(gctx) })
	g.Go(func() error { return o.RunRedeemLoop(gctx) })

	err := g.Wait()
	o.finalSnapshot()
	if err != nil && ctx.Err() == nil {
		o.logger.Error("orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("orchestrator stopped cleanly")
	return nil
}

// RunScanLoop runs ScanTick on the scan interval.
func (o *Orchestrator) RunScanLoop(ctx context.Context) error {
	return RunSingleFlight(ctx, o.logger, "scan", o.cfg.ScanInterval, func(ctx context.Context) error {
		o.ScanTick(ctx)
		return nil
	})
}

// RunRedeemLoop runs RedeemTick on the redeem interval.
func (o *Orchestrator) RunRedeemLoop(ctx context.Context) error {
	return RunSingleFlight(ctx, o.logger, "redeem", o.cfg.RedeemInterval, o.RedeemTick)
}

// RedeemTick polls open positions and archives the ledger when due.
func (o *Orchestrator) RedeemTick(ctx context.Context) error {
	if o.deps.Monitor != nil {
		o.deps.Monitor.Poll(ctx)
	}
	if o.deps.Archiver != nil {
		if _, err := o.deps.Archiver.MaybeSnapshot(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) finalSnapshot() {
	if o.deps.Archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := o.deps.Archiver.Snapshot(ctx); err != nil {
		o.logger.Warn("final ledger snapshot failed", slog.String("error", err.Error()))
	}
}

// ScanTick runs one detection and execution pass over every matched pair.
func (o *Orchestrator) ScanTick(ctx context.Context) TickStats {
	pairs := o.deps.Resolver.Resolve(ctx)
	stats := TickStats{Pairs: len(pairs)}

	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		switch o.processPair(ctx, pair) {
		case outcomeExecuted:
			stats.Opportunities++
			stats.Executed++
		case outcomePartial:
			stats.Opportunities++
			stats.Partial++
		case outcomeSkipped:
			stats.Opportunities++
			stats.Skipped++
		}
	}

	o.mu.Lock()
	o.lastScan, o.lastAt = stats, o.now().UTC()
	o.mu.Unlock()

	if stats.Pairs > 0 {
		o.logger.DebugContext(ctx, "scan tick complete",
			slog.Int("pairs", stats.Pairs),
			slog.Int("opportunities", stats.Opportunities),
			slog.Int("executed", stats.Executed),
			slog.Int("partial", stats.Partial),
		)
	}
	return stats
}

// LastScan returns the stats of the most recent scan tick and when it
// finished. The time is zero before the first tick.
func (o *Orchestrator) LastScan() (TickStats, time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastScan, o.lastAt
}

type pairOutcome int

const (
	outcomeNone pairOutcome = iota
	outcomeSkipped
	outcomeExecuted
	outcomePartial
)

func (o *Orchestrator) processPair(ctx context.Context, pair domain.MarketPair) pairOutcome {
	log := o.logger.With(
		slog.String("market_id", pair.A.ID),
		slog.String("venue_b_market_id", pair.B.ID),
	)

	qa, qb, err := o.quotes(ctx, pair)
	if err != nil {
		log.DebugContext(ctx, "quotes unavailable, skipping market", slog.String("error", err.Error()))
		return outcomeNone
	}

	m := domain.MatchedMarket{
		MarketID:       pair.A.ID,
		Title:          pair.A.Title,
		VenueAMarketID: pair.A.ID,
		VenueBMarketID: pair.B.ID,
		EndTime:        pair.A.CloseTime,
		Resolved:       !o.now().Before(pair.A.CloseTime),
		VenueAQuote:    qa,
		VenueBQuote:    qb,
	}
	if m.Resolved {
		return outcomeNone
	}

	opp, ok := o.deps.Evaluator.Evaluate(m)
	if !ok {
		return outcomeNone
	}
	if o.cfg.DryRun {
		o.detected(ctx, log, opp)
		return outcomeSkipped
	}

	release, ok := o.deps.Ledger.Reserve(opp.MarketID)
	if !ok {
		log.DebugContext(ctx, "position already open or in flight, skipping")
		return outcomeSkipped
	}
	defer release()
	o.detected(ctx, log, opp)

	if o.deps.Locks != nil {
		unlock, err := o.deps.Locks.Acquire(ctx, marketLockKey(opp.MarketID), o.cfg.LockTTL)
		if err != nil {
			log.InfoContext(ctx, "market lock unavailable, skipping", slog.String("error", err.Error()))
			return outcomeSkipped
		}
		defer unlock()
	}

	fa, fb, err := o.quotes(ctx, pair)
	if err != nil {
		log.DebugContext(ctx, "revalidation quotes unavailable, skipping", slog.String("error", err.Error()))
		return outcomeSkipped
	}
	if err := o.deps.Evaluator.Validate(opp, fa, fb); err != nil {
		log.InfoContext(ctx, "opportunity no longer valid, skipping", slog.String("error", err.Error()))
		return outcomeSkipped
	}

	amount := o.deps.Executor.Size(o.cfg.AvailableBalance, o.cfg.TradePercentage)
	pos, err := o.deps.Executor.Execute(ctx, opp, amount)

	if pos != nil {
		if appendErr := o.deps.Ledger.Append(ctx, *pos); appendErr != nil {
			log.ErrorContext(ctx, "record position failed",
				slog.String("position_id", pos.ID),
				slog.String("error", appendErr.Error()),
			)
		}
	}

	switch {
	case err == nil && pos != nil:
		o.emit(domain.EventPositionOpened, opp.MarketID, positionDetail(pos))
		return outcomeExecuted
	case errors.Is(err, domain.ErrPartialFill) && pos != nil:
		o.emit(domain.EventPositionPartial, opp.MarketID, positionDetail(pos))
		return outcomePartial
	case errors.Is(err, domain.ErrAmountOutOfRange):
		return outcomeSkipped
	default:
		msg := "unknown"
		if err != nil {
			msg = err.Error()
		}
		o.emit(domain.EventHedgeFailed, opp.MarketID, map[string]any{
			"action": string(opp.Action),
			"amount": amount,
			"error":  msg,
		})
		return outcomeSkipped
	}
}

// detected logs and emits an opportunity. Live scans call it only after
// the market is reserved, so an open position is not re-announced on every
// tick.
func (o *Orchestrator) detected(ctx context.Context, log *slog.Logger, opp domain.Opportunity) {
	log.InfoContext(ctx, "opportunity detected",
		slog.String("action", string(opp.Action)),
		slog.Float64("total_cost", opp.TotalCost),
		slog.Float64("profit_potential", opp.ProfitPotential),
	)
	o.emit(domain.EventOpportunityDetected, opp.MarketID, map[string]any{
		"kind":             string(opp.Kind),
		"action":           string(opp.Action),
		"total_cost":       opp.TotalCost,
		"profit_potential": opp.ProfitPotential,
		"dry_run":          o.cfg.DryRun,
	})
}

// quotes fetches both venues' quotes concurrently.
func (o *Orchestrator) quotes(ctx context.Context, pair domain.MarketPair) (domain.Quote, domain.Quote, error) {
	var qa, qb domain.Quote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(gctx, o.cfg.CallTimeout)
		defer cancel()
		q, err := o.deps.VenueA.GetQuote(callCtx, pair.A.ID)
		if err != nil {
			return fmt.Errorf("%s quote: %w", o.deps.VenueA.Name(), err)
		}
		qa = q
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(gctx, o.cfg.CallTimeout)
		defer cancel()
		q, err := o.deps.VenueB.GetQuote(callCtx, pair.B.ID)
		if err != nil {
			return fmt.Errorf("%s quote: %w", o.deps.VenueB.Name(), err)
		}
		qb = q
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Quote{}, domain.Quote{}, err
	}
	return qa, qb, nil
}

func (o *Orchestrator) emit(name, marketID string, detail map[string]any) {
	if o.deps.Events == nil {
		return
	}
	o.deps.Events.Emit(domain.Event{Name: name, MarketID: marketID, Detail: detail, At: o.now().UTC()})
}

func positionDetail(p *domain.Position) map[string]any {
	return map[string]any{
		"position_id":     p.ID,
		"action":          string(p.Action),
		"status":          string(p.Status),
		"total_cost":      p.TotalCost,
		"expected_profit": p.ExpectedProfit,
	}
}

func marketLockKey(marketID string) string {
	return "market:" + marketID
}
