package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"tycho/internal/backtest"
	"tycho/internal/domain"
	"tycho/internal/indicator"
	"tycho/internal/pricedata"
)

// SMACross trades a fast/slow moving-average crossover per symbol: it buys
// when the fast average crosses above the slow one and liquidates the
// position when it crosses back below. Each symbol gets an equal share of the
// starting cash.
type SMACross struct {
	symbols []string
	fast    int
	slow    int

	closes map[string][]float64
	above  map[string]bool
	alloc  float64
}

var _ Strategy = (*SMACross)(nil)

// NewSMACross creates a crossover strategy with the given fast and slow
// periods.
func NewSMACross(symbols []string, fast, slow int) *SMACross {
	return &SMACross{
		symbols: symbols,
		fast:    fast,
		slow:    slow,
		closes:  make(map[string][]float64, len(symbols)),
		above:   make(map[string]bool, len(symbols)),
	}
}

func (s *SMACross) Name() string { return "sma-cross" }

func (s *SMACross) Init(_ context.Context) error {
	if s.fast <= 0 || s.slow <= s.fast {
		return fmt.Errorf("sma-cross: need 0 < fast < slow, got fast=%d slow=%d", s.fast, s.slow)
	}
	s.closes = make(map[string][]float64, len(s.symbols))
	s.above = make(map[string]bool, len(s.symbols))
	s.alloc = 0
	return nil
}

func (s *SMACross) Decide(_ context.Context, _ time.Time, prices pricedata.DayPrices, view backtest.PortfolioView) ([]domain.Intent, error) {
	if s.alloc == 0 && len(s.symbols) > 0 {
		s.alloc = view.Cash / float64(len(s.symbols))
	}

	var intents []domain.Intent
	for _, sym := range s.symbols {
		price, ok := prices.Close(sym)
		if !ok {
			continue
		}
		s.closes[sym] = append(s.closes[sym], price)

		series := s.closes[sym]
		if len(series) < s.slow {
			continue
		}
		fast := indicator.SMA(series, s.fast)
		slow := indicator.SMA(series, s.slow)
		last := len(series) - 1
		nowAbove := fast[last] > slow[last]

		wasAbove := s.above[sym]
		s.above[sym] = nowAbove

		switch {
		case nowAbove && !wasAbove:
			if _, held := view.Positions[sym]; held {
				continue
			}
			qty := math.Floor(s.alloc / price)
			if qty >= 1 {
				intents = append(intents, domain.Intent{Symbol: sym, Action: domain.ActionBuy, Quantity: qty})
			}
		case !nowAbove && wasAbove:
			if pos, held := view.Positions[sym]; held && pos.Quantity > 0 {
				intents = append(intents, domain.Intent{Symbol: sym, Action: domain.ActionSell, Quantity: pos.Quantity})
			}
		}
	}
	return intents, nil
}
