package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tycho/internal/domain"
	"tycho/internal/gather"
	"tycho/internal/store"
	"tycho/internal/util"
)

var _ gather.Gatherer = (*DailyBarGatherer)(nil)

// DailyBarGatherer gathers daily bar data for a configured list of US equity
// symbols via the Alpaca market-data API and writes them to the bar store.
type DailyBarGatherer struct {
	client     *marketdata.Client
	store      store.BarStore
	symbols    []string
	maxWorkers int
	limiter    *util.RateLimiter
	startDate  string
	apiKey     string
	apiSecret  string
	baseURL    string // live trading API, used for the calendar
	log        *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer configured with the given
// Alpaca credentials, target store, symbol universe, and rate limits.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL, baseURL string, s store.BarStore, symbols []string, maxWorkers, rateLimitPerMin int, startDate string) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &DailyBarGatherer{
		client:     marketdata.NewClient(opts),
		store:      s,
		symbols:    symbols,
		maxWorkers: maxWorkers,
		limiter:    util.NewRateLimiter(rateLimitPerMin),
		startDate:  startDate,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		log:        slog.Default().With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars for every configured symbol from the Alpaca API and
// writes them to the store. Rewriting an already-gathered range is safe: the
// store merges by (symbol, date).
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	start, err := time.Parse(domain.DateLayout, g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}

	end, err := LatestFinishedTradingDay(g.apiKey, g.apiSecret, g.baseURL)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}

	g.log.Info("starting us-daily",
		"symbols", len(g.symbols),
		"start", g.startDate,
		"end", end.Format(domain.DateLayout),
	)

	symbolCh := make(chan string, len(g.symbols))
	for _, sym := range g.symbols {
		symbolCh <- strings.ToUpper(sym)
	}
	close(symbolCh)

	var (
		wg       sync.WaitGroup
		gathered atomic.Int64
		failed   atomic.Int64
		runStart = time.Now()
	)

	workers := min(g.maxWorkers, len(g.symbols))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symbolCh {
				if ctx.Err() != nil {
					return
				}
				if err := g.gatherSymbol(ctx, sym, start, end); err != nil {
					failed.Add(1)
					g.log.Error("gathering failed", "symbol", sym, "err", err)
					continue
				}
				gathered.Add(1)
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("gathering failed for %d of %d symbols", n, len(g.symbols))
	}

	g.log.Info("complete",
		"symbols", gathered.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// gatherSymbol fetches and persists one symbol's daily bars, retrying
// transient API failures.
func (g *DailyBarGatherer) gatherSymbol(ctx context.Context, symbol string, start, end time.Time) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	var bars []domain.Bar
	err := util.Retry(ctx, 3, time.Second, func() error {
		fetched, err := g.fetchBars(symbol, start, end)
		if err != nil {
			return err
		}
		bars = fetched
		return nil
	})
	if err != nil {
		return err
	}

	if len(bars) == 0 {
		g.log.Warn("no bars returned", "symbol", symbol)
		return nil
	}
	return g.store.WriteBars(ctx, bars, string(domain.MarketUS))
}

// fetchBars fetches daily bars for one symbol in a single API call.
func (g *DailyBarGatherer) fetchBars(symbol string, start, end time.Time) ([]domain.Bar, error) {
	alpacaBars, err := g.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol: symbol,
			Date:   ab.Timestamp.UTC(),
			Open:   ab.Open,
			High:   ab.High,
			Low:    ab.Low,
			Close:  ab.Close,
			Volume: int64(ab.Volume),
		})
	}
	return bars, nil
}
