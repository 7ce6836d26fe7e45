package matcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

const tag = "BTC-15M"

func desc(id string, closeAt time.Time) domain.MarketDescriptor {
	return domain.MarketDescriptor{ID: id, Title: id, CloseTime: closeAt, SeriesTag: tag}
}

func TestMatchFirstWithinTolerance(t *testing.T) {
	base := time.Date(2026, 1, 2, 15, 15, 0, 0, time.UTC)
	a := []domain.MarketDescriptor{desc("pm-1", base)}
	b := []domain.MarketDescriptor{
		desc("k-far", base.Add(5*time.Minute)),
		desc("k-first", base.Add(50*time.Second)),
		desc("k-exact", base),
	}

	pairs := Match(a, b, tag, DefaultTolerance)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].B.ID != "k-first" {
		t.Fatalf("expected list-order winner k-first, got %s", pairs[0].B.ID)
	}
}

func TestMatchToleranceIsStrict(t *testing.T) {
	base := time.Date(2026, 1, 2, 15, 15, 0, 0, time.UTC)
	a := []domain.MarketDescriptor{desc("pm-1", base)}
	b := []domain.MarketDescriptor{desc("k-1", base.Add(-60*time.Second))}

	if pairs := Match(a, b, tag, DefaultTolerance); len(pairs) != 0 {
		t.Fatalf("a 60s gap must not match, got %+v", pairs)
	}
}

func TestMatchRequiresSameSeries(t *testing.T) {
	base := time.Date(2026, 1, 2, 15, 15, 0, 0, time.UTC)
	other := desc("k-eth", base)
	other.SeriesTag = "ETH-15M"
	a := []domain.MarketDescriptor{desc("pm-1", base), {ID: "pm-eth", CloseTime: base, SeriesTag: "ETH-15M"}}
	b := []domain.MarketDescriptor{other}

	if pairs := Match(a, b, tag, DefaultTolerance); len(pairs) != 0 {
		t.Fatalf("expected no pairs across series, got %+v", pairs)
	}
}

func TestMatchAtMostOnePerVenueAMarket(t *testing.T) {
	base := time.Date(2026, 1, 2, 15, 15, 0, 0, time.UTC)
	a := []domain.MarketDescriptor{desc("pm-1", base), desc("pm-2", base.Add(15*time.Minute))}
	b := []domain.MarketDescriptor{
		desc("k-1", base),
		desc("k-1b", base.Add(time.Second)),
		desc("k-2", base.Add(15*time.Minute)),
	}

	pairs := Match(a, b, tag, DefaultTolerance)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].A.ID != "pm-1" || pairs[0].B.ID != "k-1" {
		t.Errorf("pair 0 = %s/%s", pairs[0].A.ID, pairs[0].B.ID)
	}
	if pairs[1].A.ID != "pm-2" || pairs[1].B.ID != "k-2" {
		t.Errorf("pair 1 = %s/%s", pairs[1].A.ID, pairs[1].B.ID)
	}
}

type stubLister struct {
	name    string
	markets []domain.MarketDescriptor
	err     error
	filter  string
}

func (s *stubLister) Name() string { return s.name }

func (s *stubLister) ListOpenMarkets(_ context.Context, filter string) ([]domain.MarketDescriptor, error) {
	s.filter = filter
	return s.markets, s.err
}

func TestResolverFetchFailureYieldsNoPairs(t *testing.T) {
	base := time.Now()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := &stubLister{name: "a", markets: []domain.MarketDescriptor{desc("pm-1", base)}}
	b := &stubLister{name: "b", err: errors.New("boom")}
	r := NewResolver(Config{VenueA: a, VenueB: b, SeriesTag: tag}, logger)

	if pairs := r.Resolve(context.Background()); len(pairs) != 0 {
		t.Fatalf("expected empty result on fetch error, got %d", len(pairs))
	}
}

func TestResolverPassesVenueFilters(t *testing.T) {
	base := time.Now()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := &stubLister{name: "a", markets: []domain.MarketDescriptor{desc("pm-1", base)}}
	b := &stubLister{name: "b", markets: []domain.MarketDescriptor{desc("k-1", base.Add(10*time.Second))}}
	r := NewResolver(Config{VenueA: a, VenueB: b, SeriesA: "btc-updown-15m", SeriesB: "KXBTC15M", SeriesTag: tag}, logger)

	pairs := r.Resolve(context.Background())
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if a.filter != "btc-updown-15m" || b.filter != "KXBTC15M" {
		t.Fatalf("filters not forwarded: %q %q", a.filter, b.filter)
	}
}
