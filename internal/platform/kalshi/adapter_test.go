package kalshi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

type fakeKalshi struct {
	mu        sync.Mutex
	markets   map[string]Market
	order     OrderState
	placed    []Order
	cancelled []string
	paths     []string
}

func (f *fakeKalshi) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)

	if r.Header.Get("KALSHI-ACCESS-SIGNATURE") == "" || r.Header.Get("KALSHI-ACCESS-KEY") != "key-1" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/trade-api/v2/markets":
		var list []Market
		for _, m := range f.markets {
			list = append(list, m)
		}
		_ = json.NewEncoder(w).Encode(MarketsPage{Markets: list})
	case r.Method == http.MethodGet && len(r.URL.Path) > len("/trade-api/v2/markets/"):
		ticker := r.URL.Path[len("/trade-api/v2/markets/"):]
		m, ok := f.markets[ticker]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"market not found"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]Market{"market": m})
	case r.Method == http.MethodPost && r.URL.Path == "/trade-api/v2/portfolio/orders":
		var o Order
		_ = json.NewDecoder(r.Body).Decode(&o)
		f.placed = append(f.placed, o)
		_ = json.NewEncoder(w).Encode(OrderResponse{Order: f.order})
	case r.Method == http.MethodDelete:
		f.cancelled = append(f.cancelled, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestAdapter(t *testing.T, f *fakeKalshi) *Adapter {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/trade-api/v2", "key-1")
	if err := c.SetRSAPrivateKey(testKey(t)); err != nil {
		t.Fatal(err)
	}
	return NewAdapter(c, AdapterConfig{SeriesTag: "BTC-15M"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestListOpenMarkets(t *testing.T) {
	future := time.Now().Add(10 * time.Minute).UTC().Format(time.RFC3339)
	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	f := &fakeKalshi{markets: map[string]Market{
		"KXBTC15M-A": {Ticker: "KXBTC15M-A", Title: "BTC up?", CloseTime: future},
		"KXBTC15M-B": {Ticker: "KXBTC15M-B", CloseTime: past},
		"KXBTC15M-C": {Ticker: "KXBTC15M-C", CloseTime: "garbage"},
	}}
	a := newTestAdapter(t, f)

	got, err := a.ListOpenMarkets(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "KXBTC15M-A" || got[0].SeriesTag != "BTC-15M" {
		t.Fatalf("markets = %+v", got)
	}
}

func TestGetQuote(t *testing.T) {
	f := &fakeKalshi{markets: map[string]Market{
		"open":    {Ticker: "open", Status: "active", YesAsk: 45, NoAsk: 48},
		"settled": {Ticker: "settled", Status: "settled", YesAsk: 99, NoAsk: 1, Result: "no"},
		"closed":  {Ticker: "closed", Status: "closed", YesAsk: 60, NoAsk: 41, LastPrice: 58},
		"empty":   {Ticker: "empty", Status: "active"},
	}}
	a := newTestAdapter(t, f)
	ctx := context.Background()

	q, err := a.GetQuote(ctx, "open")
	if err != nil {
		t.Fatal(err)
	}
	if q.UpPrice != 45 || q.DownPrice != 48 || q.HasSettlement() {
		t.Fatalf("open quote = %+v", q)
	}

	q, _ = a.GetQuote(ctx, "settled")
	if q.SettlementPrice == nil || *q.SettlementPrice != 0 {
		t.Fatalf("settled quote = %+v", q)
	}

	q, _ = a.GetQuote(ctx, "closed")
	if q.SettlementPrice == nil || *q.SettlementPrice != 58 {
		t.Fatalf("closed quote = %+v", q)
	}

	if _, err := a.GetQuote(ctx, "empty"); !errors.Is(err, domain.ErrNoLiquidity) {
		t.Fatalf("empty book err = %v", err)
	}
	if _, err := a.GetQuote(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing market err = %v", err)
	}
}

func TestPlaceOrder(t *testing.T) {
	f := &fakeKalshi{order: OrderState{OrderID: "o-1", Status: "executed", TakerFillCount: 7}}
	a := newTestAdapter(t, f)

	res, err := a.PlaceOrder(context.Background(), domain.OrderRequest{
		MarketID:   "KXBTC15M-A",
		Outcome:    domain.OutcomeDown,
		Side:       domain.OrderSideBuy,
		Amount:     7.9,
		LimitPrice: 48.4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Filled() || res.FilledAmount != 7 {
		t.Fatalf("result = %+v", res)
	}

	o := f.placed[0]
	if o.Side != "no" || o.Action != "buy" || o.Count != 7 || o.NoPrice == nil || *o.NoPrice != 48 || o.YesPrice != nil {
		t.Fatalf("order = %+v", o)
	}
	if o.ClientOrderID == "" || o.TimeInForce != "immediate_or_cancel" {
		t.Fatalf("order = %+v", o)
	}
}

func TestPlaceOrderCancelsRestingRemainder(t *testing.T) {
	f := &fakeKalshi{order: OrderState{OrderID: "o-2", Status: "resting", RemainingCount: 3, TakerFillCount: 2}}
	a := newTestAdapter(t, f)

	res, err := a.PlaceOrder(context.Background(), domain.OrderRequest{
		MarketID: "T", Outcome: domain.OutcomeUp, Side: domain.OrderSideBuy, Amount: 5, LimitPrice: 120,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.FillStatusPartial || res.FilledAmount != 2 {
		t.Fatalf("result = %+v", res)
	}
	if *f.placed[0].YesPrice != 99 {
		t.Fatalf("limit price not clamped: %d", *f.placed[0].YesPrice)
	}
	if len(f.cancelled) != 1 || f.cancelled[0] != "/trade-api/v2/portfolio/orders/o-2" {
		t.Fatalf("cancelled = %v", f.cancelled)
	}
}

func TestPlaceOrderRejectsFractionalContract(t *testing.T) {
	a := newTestAdapter(t, &fakeKalshi{})
	_, err := a.PlaceOrder(context.Background(), domain.OrderRequest{MarketID: "T", Amount: 0.5, LimitPrice: 40})
	if !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("err = %v", err)
	}
}

func TestResolutionAndRedeem(t *testing.T) {
	f := &fakeKalshi{markets: map[string]Market{
		"done":    {Ticker: "done", Status: "finalized", Result: "yes"},
		"pending": {Ticker: "pending", Status: "closed"},
	}}
	a := newTestAdapter(t, f)
	ctx := context.Background()

	for _, tt := range []struct {
		ticker string
		want   bool
	}{{"done", true}, {"pending", false}} {
		got, err := a.IsResolved(ctx, tt.ticker)
		if err != nil || got != tt.want {
			t.Errorf("IsResolved(%s) = %v, %v", tt.ticker, got, err)
		}
		for range 2 {
			ok, err := a.Redeem(ctx, tt.ticker, domain.OutcomeUp)
			if err != nil || ok != tt.want {
				t.Errorf("Redeem(%s) = %v, %v", tt.ticker, ok, err)
			}
		}
	}
}

func TestUnsignedClientIsRejected(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "key-1")
	_, err := c.GetMarket(context.Background(), "T")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
}
