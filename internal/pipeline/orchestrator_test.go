package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/updownarb/internal/arbitrage"
	"github.com/alanyoungcy/updownarb/internal/domain"
	"github.com/alanyoungcy/updownarb/internal/executor"
	"github.com/alanyoungcy/updownarb/internal/ledger"
	"github.com/alanyoungcy/updownarb/internal/matcher"
	"github.com/alanyoungcy/updownarb/internal/service"
	"github.com/alanyoungcy/updownarb/internal/venuetest"
)

type recordingSink struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingSink) Emit(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, ev.Name)
}

func (r *recordingSink) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

func (r *recordingSink) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

// driftingVenue serves its scripted quote once, then the drifted one.
type driftingVenue struct {
	*venuetest.Venue
	calls atomic.Int32
	drift domain.Quote
}

func (d *driftingVenue) GetQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	if d.calls.Add(1) > 1 {
		return d.drift, nil
	}
	return d.Venue.GetQuote(ctx, marketID)
}

type harness struct {
	a, b   *venuetest.Venue
	ledger *ledger.Ledger
	sink   *recordingSink
	deps   Deps
	cfg    Config
}

// newHarness wires real components around two fake venues quoting the
// canonical single-eligibility scenario: A={40,63,s38}, B={45,48,s42}.
func newHarness(t *testing.T) *harness {
	t.Helper()
	closeAt := time.Now().Add(10 * time.Minute)
	a, b := venuetest.New("polymarket"), venuetest.New("kalshi")
	a.Markets = []domain.MarketDescriptor{{ID: "pm-1", Title: "BTC up or down", CloseTime: closeAt, SeriesTag: "BTC-15M"}}
	b.Markets = []domain.MarketDescriptor{{ID: "k-1", CloseTime: closeAt.Add(20 * time.Second), SeriesTag: "BTC-15M"}}
	a.SetQuote("pm-1", domain.Quote{UpPrice: 40, DownPrice: 63, SettlementPrice: domain.Float(38)})
	b.SetQuote("k-1", domain.Quote{UpPrice: 45, DownPrice: 48, SettlementPrice: domain.Float(42)})

	h := &harness{a: a, b: b, ledger: ledger.New(nil, testLogger()), sink: &recordingSink{}}
	h.cfg = Config{AvailableBalance: 100, TradePercentage: 0.1}
	h.deps = Deps{
		Resolver:  matcher.NewResolver(matcher.Config{VenueA: a, VenueB: b, SeriesTag: "BTC-15M"}, testLogger()),
		VenueA:    a,
		VenueB:    b,
		Evaluator: arbitrage.NewEvaluator(arbitrage.DefaultThreshold, arbitrage.DefaultStaleTolerance),
		Executor: executor.New(a, b, executor.Config{
			MinTradeAmount: 1,
			MaxTradeAmount: 50,
			PerCallTimeout: time.Second,
		}, testLogger()),
		Ledger: h.ledger,
		Events: h.sink,
	}
	return h
}

func (h *harness) orchestrator() *Orchestrator {
	return NewOrchestrator(h.deps, h.cfg, testLogger())
}

func TestScanTickOpensHedge(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator()
	stats := o.ScanTick(context.Background())

	if stats.Pairs != 1 || stats.Executed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if last, at := o.LastScan(); last != stats || at.IsZero() {
		t.Fatalf("last scan = %+v at %v", last, at)
	}
	active := h.ledger.ListActive()
	if len(active) != 1 {
		t.Fatalf("active = %d", len(active))
	}
	p := active[0]
	if p.Action != domain.ActionBuyAUpBDown || p.VenueALeg.Up != 10 || p.VenueBLeg.Down != 10 {
		t.Fatalf("position = %+v", p)
	}
	if p.TotalCost != 8.8 {
		t.Errorf("total cost = %v", p.TotalCost)
	}
	if !h.sink.has(domain.EventOpportunityDetected) || !h.sink.has(domain.EventPositionOpened) {
		t.Errorf("events = %v", h.sink.names)
	}
}

func TestScanTickSkipsWithoutSettlementData(t *testing.T) {
	h := newHarness(t)
	h.a.SetQuote("pm-1", domain.Quote{UpPrice: 40, DownPrice: 63})
	h.b.SetQuote("k-1", domain.Quote{UpPrice: 45, DownPrice: 48})

	stats := h.orchestrator().ScanTick(context.Background())
	if stats.Opportunities != 0 || len(h.a.Orders()) != 0 {
		t.Fatalf("stats = %+v orders = %d", stats, len(h.a.Orders()))
	}
}

func TestScanTickDoesNotDuplicateOpenPosition(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator()
	ctx := context.Background()

	o.ScanTick(ctx)
	stats := o.ScanTick(ctx)
	if stats.Executed != 0 || stats.Skipped != 1 {
		t.Fatalf("second tick stats = %+v", stats)
	}
	if n := len(h.ledger.ListActive()); n != 1 {
		t.Fatalf("active = %d", n)
	}
	if n := h.sink.count(domain.EventOpportunityDetected); n != 1 {
		t.Fatalf("opportunity_detected emitted %d times while the position is open", n)
	}
}

func TestConcurrentTicksOpenOnePosition(t *testing.T) {
	h := newHarness(t)
	slow := func(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
		time.Sleep(30 * time.Millisecond)
		return domain.OrderResult{ID: "x", Status: domain.FillStatusFilled, FilledAmount: req.Amount}, nil
	}
	h.a.OnOrder = slow
	h.b.OnOrder = slow
	o := h.orchestrator()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.ScanTick(context.Background())
		}()
	}
	wg.Wait()

	if n := len(h.ledger.All()); n != 1 {
		t.Fatalf("positions = %d", n)
	}
	if n := len(h.a.Orders()); n != 1 {
		t.Fatalf("venue A orders = %d", n)
	}
}

func TestScanTickSkipsStaleQuotes(t *testing.T) {
	h := newHarness(t)
	drifting := &driftingVenue{Venue: h.b, drift: domain.Quote{UpPrice: 45, DownPrice: 50, SettlementPrice: domain.Float(42)}}
	h.deps.VenueB = drifting

	stats := h.orchestrator().ScanTick(context.Background())
	if stats.Skipped != 1 || stats.Executed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(h.a.Orders())+len(h.b.Orders()) != 0 {
		t.Fatal("no orders may be placed on stale quotes")
	}
}

func TestScanTickRespectsMarketLock(t *testing.T) {
	h := newHarness(t)
	h.deps.Locks = heldLocks{}

	stats := h.orchestrator().ScanTick(context.Background())
	if stats.Skipped != 1 || len(h.a.Orders()) != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if _, ok := h.ledger.Reserve("pm-1"); !ok {
		t.Fatal("reservation must be released after a skipped tick")
	}
}

func TestScanTickRecordsPartialFill(t *testing.T) {
	h := newHarness(t)
	h.b.OnOrder = venuetest.Reject

	stats := h.orchestrator().ScanTick(context.Background())
	if stats.Partial != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	p, ok := h.ledger.FindByMarket("pm-1")
	if !ok || p.Status != domain.PositionStatusPartiallyFilled {
		t.Fatalf("position = %+v ok=%v", p, ok)
	}
	if !h.sink.has(domain.EventPositionPartial) {
		t.Errorf("events = %v", h.sink.names)
	}
}

func TestScanTickBothLegsFail(t *testing.T) {
	h := newHarness(t)
	h.a.OnOrder = venuetest.Reject
	h.b.OnOrder = venuetest.Reject

	h.orchestrator().ScanTick(context.Background())
	if n := len(h.ledger.All()); n != 0 {
		t.Fatalf("positions = %d", n)
	}
	if !h.sink.has(domain.EventHedgeFailed) {
		t.Errorf("events = %v", h.sink.names)
	}
}

func TestScanTickDryRun(t *testing.T) {
	h := newHarness(t)
	h.cfg.DryRun = true

	stats := h.orchestrator().ScanTick(context.Background())
	if stats.Opportunities != 1 || len(h.a.Orders()) != 0 {
		t.Fatalf("stats = %+v orders = %d", stats, len(h.a.Orders()))
	}
	if !h.sink.has(domain.EventOpportunityDetected) {
		t.Error("dry run still reports the opportunity")
	}
}

func TestScanTickSkipsClosedAndUnquotedMarkets(t *testing.T) {
	t.Run("closed", func(t *testing.T) {
		h := newHarness(t)
		past := time.Now().Add(-time.Minute)
		h.a.Markets[0].CloseTime = past
		h.b.Markets[0].CloseTime = past
		if stats := h.orchestrator().ScanTick(context.Background()); stats.Opportunities != 0 {
			t.Fatalf("stats = %+v", stats)
		}
	})
	t.Run("quote error", func(t *testing.T) {
		h := newHarness(t)
		h.b.QuoteErr = domain.ErrRateLimited
		if stats := h.orchestrator().ScanTick(context.Background()); stats.Pairs != 1 || stats.Opportunities != 0 {
			t.Fatalf("stats = %+v", stats)
		}
	})
}

type countingPoller struct{ n atomic.Int32 }

func (c *countingPoller) Poll(context.Context) service.PollResult {
	c.n.Add(1)
	return service.PollResult{}
}

func TestRedeemTickPollsAndArchives(t *testing.T) {
	h := newHarness(t)
	poller := &countingPoller{}
	blob := &memBlob{}
	h.deps.Monitor = poller
	h.deps.Archiver = NewArchiver(blob, h.ledger, time.Hour, testLogger())

	o := h.orchestrator()
	for range 2 {
		if err := o.RedeemTick(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if poller.n.Load() != 2 {
		t.Fatalf("polls = %d", poller.n.Load())
	}
	if len(blob.paths) != 1 {
		t.Fatalf("snapshots = %d", len(blob.paths))
	}
}

func TestRunStopsCleanlyAndSnapshots(t *testing.T) {
	h := newHarness(t)
	blob := &memBlob{}
	h.deps.Monitor = &countingPoller{}
	h.deps.Archiver = NewArchiver(blob, h.ledger, time.Hour, testLogger())
	h.cfg.ScanInterval = 10 * time.Millisecond
	h.cfg.RedeemInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := h.orchestrator().Run(ctx); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if len(blob.paths) < 2 {
		t.Fatalf("expected periodic and final snapshots, got %d", len(blob.paths))
	}
}
