// Package pricedata holds the immutable per-run price dataset: ordered daily
// bar series for every ticker in the universe plus the benchmark series. The
// dataset is loaded and validated once before a simulation starts and is
// read-only afterwards; no shared cache crosses run boundaries.
package pricedata

import (
	"fmt"
	"sort"
	"time"

	"tycho/internal/domain"
)

// Series is a validated, read-only collection of daily bar series. Bars are
// sorted ascending by date and dates within a symbol are unique.
type Series struct {
	bars      map[string][]domain.Bar // symbol -> ascending bars
	benchmark []domain.Bar
	calendar  []time.Time // union of trading-symbol dates, ascending
	byDay     map[string]map[string]domain.Bar
}

// New builds a Series from per-symbol bar slices. The benchmark series is
// supplied under domain.BenchmarkKey and is excluded from the trading
// calendar. New fails if any series is unsorted or contains duplicate dates.
func New(bars map[string][]domain.Bar) (*Series, error) {
	s := &Series{
		bars:  make(map[string][]domain.Bar, len(bars)),
		byDay: make(map[string]map[string]domain.Bar),
	}

	daySet := make(map[string]time.Time)

	for symbol, series := range bars {
		if err := validateSeries(symbol, series); err != nil {
			return nil, err
		}

		if symbol == domain.BenchmarkKey {
			s.benchmark = series
			continue
		}

		s.bars[symbol] = series
		for _, b := range series {
			day := b.Day()
			if _, ok := daySet[day]; !ok {
				daySet[day] = normalize(b.Date)
			}
			if s.byDay[day] == nil {
				s.byDay[day] = make(map[string]domain.Bar)
			}
			s.byDay[day][symbol] = b
		}
	}

	s.calendar = make([]time.Time, 0, len(daySet))
	for _, d := range daySet {
		s.calendar = append(s.calendar, d)
	}
	sort.Slice(s.calendar, func(i, j int) bool { return s.calendar[i].Before(s.calendar[j]) })

	return s, nil
}

func validateSeries(symbol string, series []domain.Bar) error {
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1].Date, series[i].Date
		if !cur.After(prev) {
			if prev.UTC().Format(domain.DateLayout) == cur.UTC().Format(domain.DateLayout) {
				return fmt.Errorf("series %s: duplicate date %s", symbol, series[i].Day())
			}
			return fmt.Errorf("series %s: bars not sorted at %s", symbol, series[i].Day())
		}
	}
	return nil
}

func normalize(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Symbols returns the sorted trading symbols in the dataset (benchmark
// excluded).
func (s *Series) Symbols() []string {
	symbols := make([]string, 0, len(s.bars))
	for sym := range s.bars {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// Calendar returns the ascending union of all trading-symbol dates. A date is
// tradeable if at least one symbol has a bar for it.
func (s *Series) Calendar() []time.Time {
	out := make([]time.Time, len(s.calendar))
	copy(out, s.calendar)
	return out
}

// Bars returns the full series for one symbol, or nil if unknown.
func (s *Series) Bars(symbol string) []domain.Bar {
	return s.bars[symbol]
}

// Benchmark returns the benchmark bar series (may be empty if none was
// supplied).
func (s *Series) Benchmark() []domain.Bar {
	return s.benchmark
}

// Day returns the price context for a single date: every symbol's bar for
// that date. Symbols without a bar that day are absent from the map.
func (s *Series) Day(date time.Time) DayPrices {
	day := normalize(date).Format(domain.DateLayout)
	return DayPrices{Date: normalize(date), Bars: s.byDay[day]}
}

// Gaps reports, per symbol, the calendar dates for which the symbol has no
// bar. Gaps are reported to the caller, never filled.
func (s *Series) Gaps() map[string][]time.Time {
	gaps := make(map[string][]time.Time)
	for symbol := range s.bars {
		have := make(map[string]struct{}, len(s.bars[symbol]))
		for _, b := range s.bars[symbol] {
			have[b.Day()] = struct{}{}
		}
		for _, d := range s.calendar {
			if _, ok := have[d.Format(domain.DateLayout)]; !ok {
				gaps[symbol] = append(gaps[symbol], d)
			}
		}
	}
	return gaps
}

// DayPrices is the read-only price context for one simulated date.
type DayPrices struct {
	Date time.Time
	Bars map[string]domain.Bar
}

// Close returns the closing price for symbol on this date. The second return
// value reports whether a bar exists.
func (d DayPrices) Close(symbol string) (float64, bool) {
	b, ok := d.Bars[symbol]
	if !ok {
		return 0, false
	}
	return b.Close, true
}
