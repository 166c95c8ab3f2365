// Package strategy defines the Strategy interface for backtest decision
// logic and provides a Registry for managing multiple strategy
// implementations.
package strategy

import (
	"context"
	"sort"
	"time"

	"tycho/internal/backtest"
	"tycho/internal/domain"
	"tycho/internal/pricedata"
)

// Strategy is the interface that all backtest strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// processing market data.
	Init(ctx context.Context) error

	// Decide is called once per simulated date with that date's price context
	// and a read-only view of the portfolio. It returns zero or more trade
	// intents.
	Decide(ctx context.Context, date time.Time, prices pricedata.DayPrices, view backtest.PortfolioView) ([]domain.Intent, error)
}

// Func adapts a Strategy to the engine's decision function type.
func Func(s Strategy) backtest.DecisionFunc {
	return s.Decide
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a registry preloaded with the built-in strategies.
func Builtin(symbols []string) *Registry {
	r := NewRegistry()
	r.Register(NewBuyAndHold(symbols))
	r.Register(NewSMACross(symbols, 10, 30))
	return r
}
