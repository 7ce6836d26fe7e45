package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// PositionLedger is the subset of the ledger the monitor drives.
type PositionLedger interface {
	ListActive() []domain.Position
	MarkRedeemed(ctx context.Context, id string) error
	MarkExpired(ctx context.Context, id string) error
}

// MonitorConfig configures a ResolutionMonitor.
type MonitorConfig struct {
	CallTimeout time.Duration
	// ExpireAfter marks an open position EXPIRED once its market end time
	// is this far in the past and the venues still do not report it
	// resolved. Zero disables expiry.
	ExpireAfter time.Duration
}

// PollResult summarizes one monitor pass.
type PollResult struct {
	Checked  int
	Resolved int
	Redeemed int
	Expired  int
}

// ResolutionMonitor tracks open hedges to settlement: it polls both venues
// for resolution and redeems every held leg once both have settled.
type ResolutionMonitor struct {
	venueA domain.Venue
	venueB domain.Venue
	ledger PositionLedger
	events domain.EventSink
	cfg    MonitorConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewResolutionMonitor creates a ResolutionMonitor. events may be nil.
func NewResolutionMonitor(
	venueA, venueB domain.Venue,
	ledger PositionLedger,
	events domain.EventSink,
	cfg MonitorConfig,
	logger *slog.Logger,
) *ResolutionMonitor {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &ResolutionMonitor{
		venueA: venueA,
		venueB: venueB,
		ledger: ledger,
		events: events,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "resolution_monitor")),
		now:    time.Now,
	}
}

// Poll checks every open position once. Positions are processed
// concurrently and a failure on one never affects another.
func (m *ResolutionMonitor) Poll(ctx context.Context) PollResult {
	open := m.ledger.ListActive()

	var (
		mu  sync.Mutex
		res = PollResult{Checked: len(open)}
		wg  sync.WaitGroup
	)
	for _, pos := range open {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resolved, redeemed, expired := m.check(ctx, pos)
			mu.Lock()
			defer mu.Unlock()
			if resolved {
				res.Resolved++
			}
			if redeemed {
				res.Redeemed++
			}
			if expired {
				res.Expired++
			}
		}()
	}
	wg.Wait()

	if res.Checked > 0 {
		m.logger.DebugContext(ctx, "resolution poll complete",
			slog.Int("checked", res.Checked),
			slog.Int("resolved", res.Resolved),
			slog.Int("redeemed", res.Redeemed),
			slog.Int("expired", res.Expired),
		)
	}
	return res
}

func (m *ResolutionMonitor) check(ctx context.Context, pos domain.Position) (resolved, redeemed, expired bool) {
	if !m.bothResolved(ctx, pos) {
		return false, false, m.maybeExpire(ctx, pos)
	}

	if !m.redeemAll(ctx, pos) {
		return true, false, false
	}
	if err := m.ledger.MarkRedeemed(ctx, pos.ID); err != nil {
		m.logger.ErrorContext(ctx, "mark redeemed failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
		return true, false, false
	}

	m.logger.InfoContext(ctx, "position redeemed",
		slog.String("position_id", pos.ID),
		slog.String("market_id", pos.MarketID),
		slog.Float64("total_cost", pos.TotalCost),
		slog.Float64("expected_profit", pos.ExpectedProfit),
	)
	m.emit(domain.EventPositionRedeemed, pos, map[string]any{
		"position_id":     pos.ID,
		"previous_status": string(pos.Status),
		"total_cost":      pos.TotalCost,
		"expected_profit": pos.ExpectedProfit,
	})
	return true, true, false
}

// bothResolved queries both venues in parallel. Errors count as not resolved.
func (m *ResolutionMonitor) bothResolved(ctx context.Context, pos domain.Position) bool {
	var resA, resB bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		resA = m.isResolved(ctx, m.venueA, pos.VenueAMarketID)
	}()
	go func() {
		defer wg.Done()
		resB = m.isResolved(ctx, m.venueB, pos.VenueBMarketID)
	}()
	wg.Wait()
	return resA && resB
}

func (m *ResolutionMonitor) isResolved(ctx context.Context, v domain.Venue, marketID string) bool {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	ok, err := v.IsResolved(callCtx, marketID)
	if err != nil {
		m.logger.DebugContext(ctx, "resolution check failed",
			slog.String("venue", v.Name()),
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}

type heldLeg struct {
	venue    domain.Venue
	marketID string
	outcome  domain.Outcome
}

func (m *ResolutionMonitor) heldLegs(pos domain.Position) []heldLeg {
	var legs []heldLeg
	add := func(v domain.Venue, marketID string, amounts domain.LegAmounts) {
		for _, o := range []domain.Outcome{domain.OutcomeUp, domain.OutcomeDown} {
			if amounts.Amount(o) != 0 {
				legs = append(legs, heldLeg{venue: v, marketID: marketID, outcome: o})
			}
		}
	}
	add(m.venueA, pos.VenueAMarketID, pos.VenueALeg)
	add(m.venueB, pos.VenueBMarketID, pos.VenueBLeg)
	return legs
}

// redeemAll redeems every non-zero leg concurrently and reports whether
// all of them succeeded.
func (m *ResolutionMonitor) redeemAll(ctx context.Context, pos domain.Position) bool {
	legs := m.heldLegs(pos)
	ok := make([]bool, len(legs))

	var wg sync.WaitGroup
	for i, l := range legs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
			defer cancel()

			done, err := l.venue.Redeem(callCtx, l.marketID, l.outcome)
			switch {
			case err != nil:
				m.logger.WarnContext(ctx, "redeem failed",
					slog.String("position_id", pos.ID),
					slog.String("venue", l.venue.Name()),
					slog.String("market_id", l.marketID),
					slog.String("outcome", string(l.outcome)),
					slog.String("error", err.Error()),
				)
			case !done:
				m.logger.WarnContext(ctx, "redeem not accepted",
					slog.String("position_id", pos.ID),
					slog.String("venue", l.venue.Name()),
					slog.String("market_id", l.marketID),
					slog.String("outcome", string(l.outcome)),
				)
			default:
				ok[i] = true
			}
		}()
	}
	wg.Wait()

	for _, v := range ok {
		if !v {
			m.logger.InfoContext(ctx, "redemption incomplete, retrying next poll",
				slog.String("position_id", pos.ID),
			)
			return false
		}
	}
	return true
}

func (m *ResolutionMonitor) maybeExpire(ctx context.Context, pos domain.Position) bool {
	if m.cfg.ExpireAfter <= 0 || pos.EndTime.IsZero() {
		return false
	}
	if m.now().Sub(pos.EndTime) < m.cfg.ExpireAfter {
		return false
	}
	if err := m.ledger.MarkExpired(ctx, pos.ID); err != nil {
		m.logger.ErrorContext(ctx, "mark expired failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	m.logger.WarnContext(ctx, "position expired without resolution",
		slog.String("position_id", pos.ID),
		slog.String("market_id", pos.MarketID),
		slog.Time("end_time", pos.EndTime),
	)
	m.emit(domain.EventPositionExpired, pos, map[string]any{
		"position_id": pos.ID,
		"end_time":    pos.EndTime,
	})
	return true
}

func (m *ResolutionMonitor) emit(name string, pos domain.Position, detail map[string]any) {
	if m.events == nil {
		return
	}
	m.events.Emit(domain.Event{Name: name, MarketID: pos.MarketID, Detail: detail, At: m.now().UTC()})
}
