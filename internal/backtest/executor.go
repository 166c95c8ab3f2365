// Package backtest implements the date-ordered simulation engine: trade
// execution against the portfolio ledger, performance statistics, benchmark
// comparison, and the orchestrating run loop.
package backtest

import (
	"math"
	"time"

	"tycho/internal/config"
	"tycho/internal/domain"
	"tycho/internal/portfolio"
	"tycho/internal/pricedata"
)

const epsilon = 1e-9

// ExecConfig controls executor policy for one run.
type ExecConfig struct {
	// AllowShort permits short intents. Disabled by default; a sell beyond
	// the held quantity is then a rejection, never a short.
	AllowShort bool
	// OnInsufficientCash selects reject (default) or clip for buys whose
	// notional exceeds available cash.
	OnInsufficientCash config.CashPolicy
	// CostBps is a flat commission in basis points of notional, charged on
	// every fill.
	CostBps float64
}

// Executor validates trade intents and applies them to a portfolio. Intents
// are processed strictly in the order supplied; every accepted intent yields
// exactly one fill and one ledger application. Execution within a date is
// sequential, not atomic: an earlier rejection does not roll back later fills.
type Executor struct {
	cfg ExecConfig
}

// NewExecutor creates an Executor with the given policy.
func NewExecutor(cfg ExecConfig) *Executor {
	if cfg.OnInsufficientCash == "" {
		cfg.OnInsufficientCash = config.CashPolicyReject
	}
	return &Executor{cfg: cfg}
}

// Execute runs the day's intents against the portfolio at the day's prices.
// Per-intent failures become rejections and the batch continues; a returned
// error means the ledger reported an invariant violation, which is fatal to
// the run. Fills recorded before the failure are returned alongside it.
func (e *Executor) Execute(date time.Time, intents []domain.Intent, pf *portfolio.Portfolio, prices pricedata.DayPrices) ([]domain.Fill, []domain.Rejection, error) {
	var fills []domain.Fill
	var rejections []domain.Rejection

	for _, intent := range intents {
		if !actionable(intent) {
			continue
		}

		price, ok := prices.Close(intent.Symbol)
		if !ok {
			rejections = append(rejections, domain.Rejection{Intent: intent, Date: date, Reason: domain.RejectNoPrice})
			continue
		}

		fill, reason, ok := e.buildFill(date, intent, price, pf)
		if !ok {
			rejections = append(rejections, domain.Rejection{Intent: intent, Date: date, Reason: reason})
			continue
		}

		if err := pf.ApplyFill(fill); err != nil {
			return fills, rejections, err
		}
		fills = append(fills, fill)
	}

	return fills, rejections, nil
}

// buildFill validates one intent and computes the fill that would execute it.
// The third return value is false when the intent must be rejected.
func (e *Executor) buildFill(date time.Time, intent domain.Intent, price float64, pf *portfolio.Portfolio) (domain.Fill, domain.RejectReason, bool) {
	costRate := e.cfg.CostBps / 10_000

	switch intent.Action {
	case domain.ActionBuy:
		qty := intent.Quantity
		clipped := false

		unitCost := price * (1 + costRate)
		available := pf.Cash() - pf.Floor()
		required := qty * unitCost

		if required > available+epsilon {
			if e.cfg.OnInsufficientCash == config.CashPolicyClip {
				qty = math.Floor(available / unitCost)
				if qty <= 0 {
					return domain.Fill{}, domain.RejectInsufficientCash, false
				}
				clipped = true
			} else {
				return domain.Fill{}, domain.RejectInsufficientCash, false
			}
		}

		notional := qty * price
		return domain.Fill{
			Symbol: intent.Symbol, Action: domain.ActionBuy,
			Quantity: qty, Price: price, Date: date,
			CashDelta: -(notional + notional*costRate),
			Clipped:   clipped,
		}, "", true

	case domain.ActionSell:
		pos, ok := pf.Position(intent.Symbol)
		if !ok || pos.Quantity <= 0 || intent.Quantity > pos.Quantity+epsilon {
			// Never clipped and never converted into a short.
			return domain.Fill{}, domain.RejectInsufficientShares, false
		}
		notional := intent.Quantity * price
		return domain.Fill{
			Symbol: intent.Symbol, Action: domain.ActionSell,
			Quantity: intent.Quantity, Price: price, Date: date,
			CashDelta: notional - notional*costRate,
		}, "", true

	case domain.ActionShort:
		if !e.cfg.AllowShort {
			return domain.Fill{}, domain.RejectShortingDisabled, false
		}
		if pos, ok := pf.Position(intent.Symbol); ok && pos.Quantity > 0 {
			// Long position must be sold, not shorted over.
			return domain.Fill{}, domain.RejectInsufficientShares, false
		}
		notional := intent.Quantity * price
		return domain.Fill{
			Symbol: intent.Symbol, Action: domain.ActionShort,
			Quantity: intent.Quantity, Price: price, Date: date,
			CashDelta: notional - notional*costRate,
		}, "", true

	case domain.ActionCover:
		pos, ok := pf.Position(intent.Symbol)
		if !ok || pos.Quantity >= 0 {
			return domain.Fill{}, domain.RejectInsufficientShares, false
		}
		qty := intent.Quantity
		clipped := false
		if held := -pos.Quantity; qty > held {
			qty = held // cover is clipped to the open short
			clipped = true
		}
		notional := qty * price
		return domain.Fill{
			Symbol: intent.Symbol, Action: domain.ActionCover,
			Quantity: qty, Price: price, Date: date,
			CashDelta: -(notional + notional*costRate),
			Clipped:   clipped,
		}, "", true
	}

	return domain.Fill{}, "", false
}

// actionable reports whether an intent requests an executable trade. Holds,
// zero quantities, and unknown actions are no-ops.
func actionable(intent domain.Intent) bool {
	if intent.Quantity <= 0 {
		return false
	}
	switch intent.Action {
	case domain.ActionBuy, domain.ActionSell, domain.ActionShort, domain.ActionCover:
		return true
	}
	return false
}
