// Package matcher pairs equivalent markets listed on two venues.
package matcher

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// DefaultTolerance is the maximum close-time gap between paired markets.
const DefaultTolerance = 60 * time.Second

// Lister is the slice of domain.Venue the resolver needs.
type Lister interface {
	Name() string
	ListOpenMarkets(ctx context.Context, seriesFilter string) ([]domain.MarketDescriptor, error)
}

// Config configures a Resolver.
type Config struct {
	VenueA    Lister
	VenueB    Lister
	SeriesA   string // venue-native listing filter for venue A
	SeriesB   string // venue-native listing filter for venue B
	SeriesTag string // canonical tag both adapters normalize to
	Tolerance time.Duration
}

// Resolver fetches both venues' open listings and pairs them.
type Resolver struct {
	cfg    Config
	logger *slog.Logger
}

// NewResolver creates a Resolver. A zero tolerance falls back to DefaultTolerance.
func NewResolver(cfg Config, logger *slog.Logger) *Resolver {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Resolver{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// Resolve lists open markets on both venues concurrently and returns the
// matched pairs. A listing failure on either side yields no pairs for this
// tick rather than an error.
func (r *Resolver) Resolve(ctx context.Context) []domain.MarketPair {
	var listA, listB []domain.MarketDescriptor

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		listA, err = r.cfg.VenueA.ListOpenMarkets(gctx, r.cfg.SeriesA)
		return err
	})
	g.Go(func() error {
		var err error
		listB, err = r.cfg.VenueB.ListOpenMarkets(gctx, r.cfg.SeriesB)
		return err
	})
	if err := g.Wait(); err != nil {
		r.logger.WarnContext(ctx, "listing fetch failed, no pairs this tick",
			slog.String("venue_a", r.cfg.VenueA.Name()),
			slog.String("venue_b", r.cfg.VenueB.Name()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	pairs := Match(listA, listB, r.cfg.SeriesTag, r.cfg.Tolerance)
	r.logger.DebugContext(ctx, "markets resolved",
		slog.Int("venue_a_markets", len(listA)),
		slog.Int("venue_b_markets", len(listB)),
		slog.Int("pairs", len(pairs)),
	)
	return pairs
}

// Match pairs each venue-A market with the first venue-B market, in list
// order, that carries the same series tag and closes within tolerance.
// An empty seriesTag accepts any tag as long as both sides agree.
func Match(a, b []domain.MarketDescriptor, seriesTag string, tolerance time.Duration) []domain.MarketPair {
	var pairs []domain.MarketPair
	for _, ma := range a {
		if seriesTag != "" && ma.SeriesTag != seriesTag {
			continue
		}
		for _, mb := range b {
			if mb.SeriesTag != ma.SeriesTag {
				continue
			}
			if absDuration(ma.CloseTime.Sub(mb.CloseTime)) < tolerance {
				pairs = append(pairs, domain.MarketPair{A: ma, B: mb})
				break
			}
		}
	}
	return pairs
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
