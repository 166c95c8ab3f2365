package pricedata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tycho/internal/domain"
)

// Source supplies historical bars. It is satisfied by store.BarStore.
type Source interface {
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)
}

// Load prefetches bars for every symbol plus the benchmark from src, in
// parallel on at most maxWorkers goroutines, and validates the assembled
// dataset. The simulation loop itself never touches I/O; everything it needs
// is in the returned Series.
//
// The benchmark symbol may also appear in symbols; its bars are then shared
// between the trading universe and the benchmark series.
func Load(ctx context.Context, src Source, market string, symbols []string, benchmark string, start, end time.Time, maxWorkers int) (*Series, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	// Deduplicated fetch set.
	seen := make(map[string]struct{}, len(symbols)+1)
	fetch := make([]string, 0, len(symbols)+1)
	for _, sym := range symbols {
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		fetch = append(fetch, sym)
	}
	if benchmark != "" {
		if _, ok := seen[benchmark]; !ok {
			fetch = append(fetch, benchmark)
		}
	}

	var mu sync.Mutex
	fetched := make(map[string][]domain.Bar, len(fetch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for _, symbol := range fetch {
		g.Go(func() error {
			series, err := src.ReadBars(gctx, symbol, market, start, end)
			if err != nil {
				return fmt.Errorf("reading bars for %s: %w", symbol, err)
			}
			if len(series) == 0 {
				return fmt.Errorf("no bars for %s in [%s, %s]",
					symbol, start.Format(domain.DateLayout), end.Format(domain.DateLayout))
			}

			mu.Lock()
			fetched[symbol] = series
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	bars := make(map[string][]domain.Bar, len(symbols)+1)
	for _, sym := range symbols {
		bars[sym] = fetched[sym]
	}
	if benchmark != "" {
		bars[domain.BenchmarkKey] = fetched[benchmark]
	}

	return New(bars)
}
