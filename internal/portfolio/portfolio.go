// Package portfolio implements the mutable cash-and-positions ledger that is
// the single source of truth for capital state during a simulation. All
// mutation goes through ApplyFill; every other operation is a pure read.
package portfolio

import (
	"fmt"
	"time"

	"tycho/internal/domain"
)

const epsilon = 1e-9

// MissingPriceError reports that a held symbol could not be valued because no
// price (current or last-known) was supplied for it.
type MissingPriceError struct {
	Symbol string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("no price available for held symbol %s", e.Symbol)
}

// InvariantError reports a capital-conservation or quantity-accounting
// violation. It is fatal to a run.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "portfolio invariant violated: " + e.Reason
}

// Portfolio is the run-scoped ledger. It is exclusively owned by one engine
// for the duration of a run and is not safe for concurrent use.
type Portfolio struct {
	cash        float64
	floor       float64 // cash may not drop below this (== -margin limit)
	realizedPnL float64
	positions   map[string]domain.Position
}

// New creates a Portfolio with the given starting cash. marginLimit extends
// the cash floor below zero; a limit of 0 means cash must stay non-negative.
func New(initialCash, marginLimit float64) *Portfolio {
	return &Portfolio{
		cash:      initialCash,
		floor:     -marginLimit,
		positions: make(map[string]domain.Position),
	}
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// Floor returns the configured cash floor.
func (p *Portfolio) Floor() float64 { return p.floor }

// RealizedPnL returns the cumulative realized profit and loss.
func (p *Portfolio) RealizedPnL() float64 { return p.realizedPnL }

// Position returns the position for symbol. The second return value reports
// whether a position exists; zero-quantity positions never exist.
func (p *Portfolio) Position(symbol string) (domain.Position, bool) {
	pos, ok := p.positions[symbol]
	return pos, ok
}

// Positions returns a copy of all open positions keyed by symbol.
func (p *Portfolio) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(p.positions))
	for sym, pos := range p.positions {
		out[sym] = pos
	}
	return out
}

// ApplyFill applies one executed fill to the ledger: cash moves by
// fill.CashDelta and the named position is updated with weighted-average-cost
// accounting on increases and realized-P&L extraction on decreases. It fails
// with an InvariantError, leaving the ledger untouched, if the fill would
// breach the cash floor or is inconsistent with the current position.
func (p *Portfolio) ApplyFill(f domain.Fill) error {
	if f.Quantity <= 0 {
		return &InvariantError{Reason: fmt.Sprintf("fill for %s has non-positive quantity %v", f.Symbol, f.Quantity)}
	}

	newCash := p.cash + f.CashDelta
	if newCash < p.floor-epsilon {
		return &InvariantError{Reason: fmt.Sprintf(
			"fill for %s would drive cash to %.2f, below floor %.2f", f.Symbol, newCash, p.floor)}
	}

	pos := p.positions[f.Symbol]

	var newPos domain.Position
	var realized float64

	switch f.Action {
	case domain.ActionBuy:
		if pos.Quantity < 0 {
			return &InvariantError{Reason: fmt.Sprintf("buy applied to short position in %s", f.Symbol)}
		}
		newQty := pos.Quantity + f.Quantity
		newPos = domain.Position{
			Symbol:   f.Symbol,
			Quantity: newQty,
			AvgCost:  (pos.AvgCost*pos.Quantity + f.Price*f.Quantity) / newQty,
		}

	case domain.ActionSell:
		if f.Quantity > pos.Quantity+epsilon {
			return &InvariantError{Reason: fmt.Sprintf(
				"sell of %v exceeds held %v in %s", f.Quantity, pos.Quantity, f.Symbol)}
		}
		realized = (f.Price - pos.AvgCost) * f.Quantity
		newPos = domain.Position{Symbol: f.Symbol, Quantity: pos.Quantity - f.Quantity, AvgCost: pos.AvgCost}

	case domain.ActionShort:
		if pos.Quantity > 0 {
			return &InvariantError{Reason: fmt.Sprintf("short applied to long position in %s", f.Symbol)}
		}
		held := -pos.Quantity
		newHeld := held + f.Quantity
		newPos = domain.Position{
			Symbol:   f.Symbol,
			Quantity: -newHeld,
			AvgCost:  (pos.AvgCost*held + f.Price*f.Quantity) / newHeld,
		}

	case domain.ActionCover:
		if pos.Quantity >= 0 || f.Quantity > -pos.Quantity+epsilon {
			return &InvariantError{Reason: fmt.Sprintf(
				"cover of %v exceeds short %v in %s", f.Quantity, -pos.Quantity, f.Symbol)}
		}
		realized = (pos.AvgCost - f.Price) * f.Quantity
		newPos = domain.Position{Symbol: f.Symbol, Quantity: pos.Quantity + f.Quantity, AvgCost: pos.AvgCost}

	default:
		return &InvariantError{Reason: fmt.Sprintf("fill for %s has unexpected action %q", f.Symbol, f.Action)}
	}

	p.cash = newCash
	p.realizedPnL += realized
	if newPos.Quantity > -epsilon && newPos.Quantity < epsilon {
		delete(p.positions, f.Symbol)
	} else {
		p.positions[f.Symbol] = newPos
	}
	return nil
}

// Valuation returns total equity: cash plus the sum over open positions of
// quantity times the supplied price. It fails with a MissingPriceError if a
// held symbol has no entry in prices; the caller decides the frozen-price
// fallback before calling.
func (p *Portfolio) Valuation(prices map[string]float64) (float64, error) {
	equity := p.cash
	for sym, pos := range p.positions {
		price, ok := prices[sym]
		if !ok {
			return 0, &MissingPriceError{Symbol: sym}
		}
		equity += pos.Quantity * price
	}
	return equity, nil
}

// Snapshot captures an immutable view of the ledger for one date. warnings
// (for example frozen-price valuations) are attached verbatim. Snapshot does
// not mutate the portfolio.
func (p *Portfolio) Snapshot(date time.Time, prices map[string]float64, warnings []string) (domain.Snapshot, error) {
	equity, err := p.Valuation(prices)
	if err != nil {
		return domain.Snapshot{}, err
	}
	var w []string
	if len(warnings) > 0 {
		w = append(w, warnings...)
	}
	return domain.Snapshot{
		Date:      date,
		Cash:      p.cash,
		Positions: p.Positions(),
		Equity:    equity,
		Warnings:  w,
	}, nil
}
