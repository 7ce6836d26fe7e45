package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownarb/internal/pipeline"
	"github.com/alanyoungcy/updownarb/internal/server"
	"github.com/alanyoungcy/updownarb/internal/server/handler"
	"github.com/alanyoungcy/updownarb/internal/service"
)

// TradeMode runs the scan loop with live order placement, the redeem loop
// and, when enabled, the dashboard server.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)
	orch := a.newOrchestrator(deps, false)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	a.startDashboard(ctx, g, deps, orch, false)
	return g.Wait()
}

// MonitorMode scans and reports opportunities without placing orders. The
// redeem loop still settles positions left by an earlier trading run.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	orch := a.newOrchestrator(deps, true)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	a.startDashboard(ctx, g, deps, orch, true)
	return g.Wait()
}

// RedeemMode only runs the redeem loop, draining open positions without
// opening new ones.
func (a *App) RedeemMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting redeem mode",
		slog.Int("open_positions", len(deps.Ledger.ListActive())),
	)

	g, ctx := errgroup.WithContext(ctx)
	orch := a.newOrchestrator(deps, true)
	g.Go(func() error {
		return orch.RunRedeemLoop(ctx)
	})
	a.startDashboard(ctx, g, deps, nil, true)
	return g.Wait()
}

func (a *App) newOrchestrator(deps *Dependencies, dryRun bool) *pipeline.Orchestrator {
	arb := a.cfg.Arbitrage
	d := pipeline.Deps{
		Resolver:  deps.Resolver,
		VenueA:    deps.Polymarket,
		VenueB:    deps.Kalshi,
		Evaluator: deps.Evaluator,
		Executor:  deps.Executor,
		Ledger:    deps.Ledger,
		Monitor:   deps.Monitor,
		Locks:     deps.Locks,
		Events:    deps.Events,
		Archiver:  deps.Archiver,
	}
	return pipeline.NewOrchestrator(d, pipeline.Config{
		ScanInterval:     arb.ScanInterval.Duration,
		RedeemInterval:   arb.RedeemInterval.Duration,
		AvailableBalance: arb.AvailableBalance,
		TradePercentage:  arb.TradePercentage,
		CallTimeout:      arb.PerCallTimeout.Duration,
		LockTTL:          arb.LockTTL.Duration,
		DryRun:           dryRun,
	}, a.logger)
}

// startDashboard starts the HTTP API and websocket hub when the server is
// enabled. scans may be nil.
func (a *App) startDashboard(ctx context.Context, g *errgroup.Group, deps *Dependencies, scans *pipeline.Orchestrator, dryRun bool) {
	if !a.cfg.Server.Enabled {
		return
	}

	var reporter handler.ScanReporter
	if scans != nil {
		reporter = scans
	}
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Health, a.logger),
		Positions: handler.NewPositionHandler(deps.Ledger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, dryRun, deps.StartedAt, deps.Ledger, reporter),
	}
	if deps.Bus != nil {
		handlers.Events = handler.NewEventsHandler(deps.Bus, service.EventsStream, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, deps.Hub, a.logger)

	g.Go(func() error {
		return srv.Run(ctx)
	})
	if deps.Hub == nil {
		return
	}
	g.Go(func() error {
		return deps.Hub.Run(ctx)
	})
	if deps.Bus != nil {
		g.Go(func() error {
			return relay(ctx, deps, a.logger)
		})
	}
}

// relay forwards the bus events channel to the hub. A failed subscription
// degrades the dashboard but must not stop trading.
func relay(ctx context.Context, deps *Dependencies, logger *slog.Logger) error {
	if err := deps.Hub.Relay(ctx, deps.Bus, service.EventsChannel); err != nil {
		logger.WarnContext(ctx, "event relay stopped", slog.String("error", err.Error()))
	}
	return nil
}
