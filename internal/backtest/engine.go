package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tycho/internal/config"
	"tycho/internal/domain"
	"tycho/internal/portfolio"
	"tycho/internal/pricedata"
)

// State is the engine lifecycle state.
type State string

const (
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// FailReason classifies why a run transitioned to StateFailed.
type FailReason string

const (
	FailDecision         FailReason = "decision_function_error"
	FailInvariant        FailReason = "invariant_violation"
	FailMissingPrice     FailReason = "missing_price"
	FailCancelled        FailReason = "cancelled"
	FailCalendarMismatch FailReason = "calendar_mismatch"
)

// PortfolioView is the read-only portfolio state handed to the decision
// function. It is a copy; mutating it has no effect on the run, and it must
// not be retained across calls as a live view.
type PortfolioView struct {
	Cash      float64
	Positions map[string]domain.Position
}

// DecisionFunc maps one simulated date, its price context, and the current
// portfolio view to a set of trade intents. It is the engine's sole external
// collaborator inside the loop and is invoked synchronously, at most once per
// date. An error (or panic) is fatal to the run.
type DecisionFunc func(ctx context.Context, date time.Time, prices pricedata.DayPrices, view PortfolioView) ([]domain.Intent, error)

// Config holds the simulation parameters for one run.
type Config struct {
	InitialCash        float64
	MarginLimit        float64
	AllowShort         bool
	OnInsufficientCash config.CashPolicy
	CostBps            float64
	RiskFreeRate       float64
}

// Result is the complete outcome of a run. On failure the snapshots, fills,
// and rejections recorded up to the failure point are preserved for
// diagnostics and Report is nil.
type Result struct {
	State      State               `json:"state"`
	FailReason FailReason          `json:"fail_reason,omitempty"`
	Snapshots  []domain.Snapshot   `json:"snapshots"`
	Fills      []domain.Fill       `json:"fills"`
	Rejections []domain.Rejection  `json:"rejections"`
	Gaps       map[string][]string `json:"gaps,omitempty"`
	Report     *Report             `json:"report,omitempty"`
	Err        error               `json:"-"`
}

// Engine drives the date-ordered simulation loop. It exclusively owns its
// Portfolio for the duration of a run; the loop is strictly sequential
// because each date depends on the portfolio state the previous date left
// behind.
type Engine struct {
	series   *pricedata.Series
	decide   DecisionFunc
	cfg      Config
	executor *Executor
	log      *slog.Logger

	state State

	// onSnapshot, when set, observes each snapshot as it is appended. Used
	// by progress streaming; must not block for long.
	onSnapshot func(domain.Snapshot)
}

// NewEngine creates an engine bound to a validated price dataset and a
// decision function.
func NewEngine(series *pricedata.Series, decide DecisionFunc, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		series: series,
		decide: decide,
		cfg:    cfg,
		executor: NewExecutor(ExecConfig{
			AllowShort:         cfg.AllowShort,
			OnInsufficientCash: cfg.OnInsufficientCash,
			CostBps:            cfg.CostBps,
		}),
		log:   log.With("component", "backtest"),
		state: StateInitialized,
	}
}

// OnSnapshot registers a hook invoked after every appended snapshot. Must be
// called before Run.
func (e *Engine) OnSnapshot(fn func(domain.Snapshot)) {
	e.onSnapshot = fn
}

// State returns the engine's lifecycle state.
func (e *Engine) State() State { return e.state }

// Run executes the simulation over the dataset's full calendar. It returns a
// Result in every case; the error is non-nil exactly when the run failed.
// Cancellation is checked between dates only: a cancelled run finishes the
// current date's fills, then fails with reason cancelled, keeping partial
// snapshots.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.state != StateInitialized {
		return nil, fmt.Errorf("engine already ran (state %s)", e.state)
	}

	calendar := e.series.Calendar()
	if len(calendar) == 0 {
		return nil, fmt.Errorf("price dataset has no trading dates")
	}

	e.state = StateRunning
	e.log.Info("run started",
		"dates", len(calendar),
		"symbols", len(e.series.Symbols()),
		"initialCash", e.cfg.InitialCash,
	)

	res := &Result{State: StateRunning, Gaps: formatGaps(e.series.Gaps())}
	pf := portfolio.New(e.cfg.InitialCash, e.cfg.MarginLimit)
	lastKnown := make(map[string]float64)

	for _, date := range calendar {
		// Cancellation is checked between dates, never mid-fill.
		if err := ctx.Err(); err != nil {
			return e.fail(res, FailCancelled, fmt.Errorf("run cancelled at %s: %w", day(date), err))
		}

		prices := e.series.Day(date)
		for sym, bar := range prices.Bars {
			lastKnown[sym] = bar.Close
		}

		intents, err := e.invokeDecision(ctx, date, prices, pf)
		if err != nil {
			return e.fail(res, FailDecision, fmt.Errorf("decision function at %s: %w", day(date), err))
		}

		fills, rejections, err := e.executor.Execute(date, intents, pf, prices)
		res.Fills = append(res.Fills, fills...)
		res.Rejections = append(res.Rejections, rejections...)
		if err != nil {
			return e.fail(res, FailInvariant, fmt.Errorf("executing at %s: %w", day(date), err))
		}

		valuation, warnings := e.valuationPrices(pf, prices, lastKnown, date)
		snap, err := pf.Snapshot(date, valuation, warnings)
		if err != nil {
			return e.fail(res, FailMissingPrice, fmt.Errorf("snapshot at %s: %w", day(date), err))
		}
		res.Snapshots = append(res.Snapshots, snap)
		if e.onSnapshot != nil {
			e.onSnapshot(snap)
		}
	}

	report, err := BuildReport(res.Snapshots, e.series.Benchmark(), e.cfg.RiskFreeRate)
	if err != nil {
		return e.fail(res, FailCalendarMismatch, fmt.Errorf("building report: %w", err))
	}

	e.state = StateCompleted
	res.State = StateCompleted
	res.Report = report
	e.log.Info("run completed",
		"finalEquity", report.FinalEquity,
		"fills", len(res.Fills),
		"rejections", len(res.Rejections),
	)
	return res, nil
}

// invokeDecision calls the external decision function with a copied view of
// portfolio state, converting a panic into an error so external code cannot
// take the whole process down.
func (e *Engine) invokeDecision(ctx context.Context, date time.Time, prices pricedata.DayPrices, pf *portfolio.Portfolio) (intents []domain.Intent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decision function panicked: %v", r)
		}
	}()

	view := PortfolioView{Cash: pf.Cash(), Positions: pf.Positions()}
	return e.decide(ctx, date, prices, view)
}

// valuationPrices builds the price map for valuing the portfolio at the end
// of one date. Held symbols without a bar today are valued at the last known
// price (frozen), each with a warning attached to the day's snapshot.
func (e *Engine) valuationPrices(pf *portfolio.Portfolio, prices pricedata.DayPrices, lastKnown map[string]float64, date time.Time) (map[string]float64, []string) {
	valuation := make(map[string]float64)
	var warnings []string
	for sym := range pf.Positions() {
		if c, ok := prices.Close(sym); ok {
			valuation[sym] = c
			continue
		}
		if frozen, ok := lastKnown[sym]; ok {
			valuation[sym] = frozen
			warnings = append(warnings, fmt.Sprintf("no bar for %s on %s: valued at last known price %.4f", sym, day(date), frozen))
			e.log.Warn("valuing at frozen price", "symbol", sym, "date", day(date), "price", frozen)
		}
		// A held symbol with no known price at all is left out; the ledger
		// reports it as a MissingPriceError.
	}
	return valuation, warnings
}

func (e *Engine) fail(res *Result, reason FailReason, err error) (*Result, error) {
	e.state = StateFailed
	res.State = StateFailed
	res.FailReason = reason
	res.Err = err
	lastDay := "none"
	if n := len(res.Snapshots); n > 0 {
		lastDay = res.Snapshots[n-1].Day()
	}
	e.log.Error("run failed", "reason", reason, "lastSnapshot", lastDay, "error", err)
	return res, err
}

func day(t time.Time) string {
	return t.UTC().Format(domain.DateLayout)
}

func formatGaps(gaps map[string][]time.Time) map[string][]string {
	if len(gaps) == 0 {
		return nil
	}
	out := make(map[string][]string, len(gaps))
	for sym, dates := range gaps {
		days := make([]string, len(dates))
		for i, d := range dates {
			days[i] = d.Format(domain.DateLayout)
		}
		out[sym] = days
	}
	return out
}
