package strategy

import (
	"context"
	"math"
	"time"

	"tycho/internal/backtest"
	"tycho/internal/domain"
	"tycho/internal/pricedata"
)

// BuyAndHold splits the starting cash equally across its symbols on the first
// date each symbol has a price, then holds to the end of the run.
type BuyAndHold struct {
	symbols []string
	bought  map[string]bool
	alloc   float64
}

var _ Strategy = (*BuyAndHold)(nil)

// NewBuyAndHold creates a buy-and-hold strategy over the given symbols.
func NewBuyAndHold(symbols []string) *BuyAndHold {
	return &BuyAndHold{symbols: symbols, bought: make(map[string]bool, len(symbols))}
}

func (s *BuyAndHold) Name() string { return "buy-and-hold" }

func (s *BuyAndHold) Init(_ context.Context) error {
	s.bought = make(map[string]bool, len(s.symbols))
	s.alloc = 0
	return nil
}

func (s *BuyAndHold) Decide(_ context.Context, _ time.Time, prices pricedata.DayPrices, view backtest.PortfolioView) ([]domain.Intent, error) {
	// The per-symbol allocation is fixed from the cash seen on the first
	// decision, so late first bars do not inflate later buys.
	if s.alloc == 0 && len(s.symbols) > 0 {
		s.alloc = view.Cash / float64(len(s.symbols))
	}

	var intents []domain.Intent
	for _, sym := range s.symbols {
		if s.bought[sym] {
			continue
		}
		price, ok := prices.Close(sym)
		if !ok || price <= 0 {
			continue
		}
		qty := math.Floor(s.alloc / price)
		if qty < 1 {
			s.bought[sym] = true
			continue
		}
		intents = append(intents, domain.Intent{Symbol: sym, Action: domain.ActionBuy, Quantity: qty})
		s.bought[sym] = true
	}
	return intents, nil
}
