package strategy

import (
	"context"
	"testing"
	"time"

	"tycho/internal/backtest"
	"tycho/internal/domain"
	"tycho/internal/pricedata"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string                 { return s.name }
func (s *stubStrategy) Init(_ context.Context) error { return nil }
func (s *stubStrategy) Decide(_ context.Context, _ time.Time, _ pricedata.DayPrices, _ backtest.PortfolioView) ([]domain.Intent, error) {
	return nil, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	s := &stubStrategy{name: "test-strategy"}

	r.Register(s)

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if got.Name() != "test-strategy" {
		t.Errorf("Get returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{name: "alpha"})
	r.Register(&stubStrategy{name: "beta"})

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func TestBuiltinRegistry(t *testing.T) {
	r := Builtin([]string{"AAA"})
	for _, name := range []string{"buy-and-hold", "sma-cross"} {
		if _, ok := r.Get(name); !ok {
			t.Errorf("builtin strategy %q not registered", name)
		}
	}
}

func dayFor(closes map[string]float64) pricedata.DayPrices {
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make(map[string]domain.Bar, len(closes))
	for sym, c := range closes {
		bars[sym] = domain.Bar{Symbol: sym, Date: date, Close: c}
	}
	return pricedata.DayPrices{Date: date, Bars: bars}
}

func TestBuyAndHoldBuysOncePerSymbol(t *testing.T) {
	s := NewBuyAndHold([]string{"AAA", "BBB"})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	view := backtest.PortfolioView{Cash: 10_000}

	intents, err := s.Decide(context.Background(), time.Now(), dayFor(map[string]float64{"AAA": 10, "BBB": 50}), view)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(intents) != 2 {
		t.Fatalf("intents = %d, want 2", len(intents))
	}
	// 5000 per symbol: 500 of AAA at 10, 100 of BBB at 50.
	for _, in := range intents {
		want := 500.0
		if in.Symbol == "BBB" {
			want = 100
		}
		if in.Action != domain.ActionBuy || in.Quantity != want {
			t.Errorf("intent %+v, want buy %v", in, want)
		}
	}

	intents, err = s.Decide(context.Background(), time.Now(), dayFor(map[string]float64{"AAA": 10, "BBB": 50}), view)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(intents) != 0 {
		t.Errorf("second call produced intents %v, want none", intents)
	}
}

func TestBuyAndHoldWaitsForFirstBar(t *testing.T) {
	s := NewBuyAndHold([]string{"AAA", "BBB"})
	view := backtest.PortfolioView{Cash: 10_000}

	intents, err := s.Decide(context.Background(), time.Now(), dayFor(map[string]float64{"AAA": 10}), view)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(intents) != 1 || intents[0].Symbol != "AAA" {
		t.Fatalf("intents = %v, want single AAA buy", intents)
	}

	// BBB's allocation is still live once its first bar arrives.
	intents, err = s.Decide(context.Background(), time.Now(), dayFor(map[string]float64{"AAA": 10, "BBB": 50}), view)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(intents) != 1 || intents[0].Symbol != "BBB" || intents[0].Quantity != 100 {
		t.Fatalf("intents = %v, want BBB buy of 100", intents)
	}
}

func TestSMACrossInitValidatesPeriods(t *testing.T) {
	if err := NewSMACross([]string{"AAA"}, 30, 10).Init(context.Background()); err == nil {
		t.Error("Init accepted fast >= slow")
	}
	if err := NewSMACross([]string{"AAA"}, 0, 10).Init(context.Background()); err == nil {
		t.Error("Init accepted fast = 0")
	}
	if err := NewSMACross([]string{"AAA"}, 2, 4).Init(context.Background()); err != nil {
		t.Errorf("Init rejected valid periods: %v", err)
	}
}

func TestSMACrossBuysOnUpCrossAndLiquidatesOnDownCross(t *testing.T) {
	s := NewSMACross([]string{"AAA"}, 2, 3)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	feed := func(price float64, view backtest.PortfolioView) []domain.Intent {
		t.Helper()
		intents, err := s.Decide(context.Background(), time.Now(), dayFor(map[string]float64{"AAA": price}), view)
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		return intents
	}

	flat := backtest.PortfolioView{Cash: 10_000}
	// Rising prices: warm-up, then the fast average sits above the slow one.
	if got := feed(10, flat); len(got) != 0 {
		t.Fatalf("warm-up produced intents %v", got)
	}
	if got := feed(11, flat); len(got) != 0 {
		t.Fatalf("warm-up produced intents %v", got)
	}
	got := feed(12, flat)
	if len(got) != 1 || got[0].Action != domain.ActionBuy {
		t.Fatalf("up-cross intents = %v, want one buy", got)
	}

	held := backtest.PortfolioView{
		Cash:      10_000 - got[0].Quantity*12,
		Positions: map[string]domain.Position{"AAA": {Symbol: "AAA", Quantity: got[0].Quantity, AvgCost: 12}},
	}
	// While the trend holds, no repeat buy.
	if got := feed(13, held); len(got) != 0 {
		t.Fatalf("trend continuation produced intents %v", got)
	}
	// A sharp reversal drags the fast average below the slow one: fast SMA of
	// (13, 8) is 10.5 against a slow SMA of 11.
	got = feed(8, held)
	if len(got) != 1 || got[0].Action != domain.ActionSell || got[0].Quantity != held.Positions["AAA"].Quantity {
		t.Fatalf("down-cross intents = %v, want full liquidation", got)
	}
	// Flat after liquidation: no further signal while below.
	if got := feed(5, flat); len(got) != 0 {
		t.Errorf("post-liquidation produced intents %v", got)
	}
}
