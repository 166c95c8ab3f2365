package backtest

import (
	"fmt"
	"sort"

	"tycho/internal/domain"
)

// CalendarMismatchError reports that the benchmark series and the strategy's
// snapshot dates cannot be meaningfully aligned.
type CalendarMismatchError struct {
	CommonDates int
}

func (e *CalendarMismatchError) Error() string {
	return fmt.Sprintf("benchmark calendar mismatch: %d common dates, need at least 2", e.CommonDates)
}

// BenchmarkComparison holds the single-factor relative metrics of a strategy
// against its benchmark, computed over the inner join of the two calendars.
type BenchmarkComparison struct {
	Alpha                 float64 `json:"alpha"`
	Beta                  float64 `json:"beta"`
	StrategyTotalReturn   float64 `json:"strategy_total_return"`
	BenchmarkTotalReturn  float64 `json:"benchmark_total_return"`
	CommonDates           int     `json:"common_dates"`
	// DroppedDates lists, in ascending order, dates present in exactly one
	// of the two calendars. They are excluded from the comparison, never
	// silently discarded.
	DroppedDates []string `json:"dropped_dates,omitempty"`
}

// CompareBenchmark aligns the benchmark bars to the snapshot dates (inner
// join on civil date) and computes relative metrics. It fails with a
// CalendarMismatchError when fewer than two dates overlap.
func CompareBenchmark(snapshots []domain.Snapshot, benchmark []domain.Bar) (*BenchmarkComparison, error) {
	stratByDay := make(map[string]float64, len(snapshots))
	for _, s := range snapshots {
		stratByDay[s.Day()] = s.Equity
	}
	benchByDay := make(map[string]float64, len(benchmark))
	for _, b := range benchmark {
		benchByDay[b.Day()] = b.Close
	}

	var common, dropped []string
	for day := range stratByDay {
		if _, ok := benchByDay[day]; ok {
			common = append(common, day)
		} else {
			dropped = append(dropped, day)
		}
	}
	for day := range benchByDay {
		if _, ok := stratByDay[day]; !ok {
			dropped = append(dropped, day)
		}
	}
	sort.Strings(common)
	sort.Strings(dropped)

	if len(common) < 2 {
		return nil, &CalendarMismatchError{CommonDates: len(common)}
	}

	stratReturns := make([]float64, 0, len(common)-1)
	benchReturns := make([]float64, 0, len(common)-1)
	for i := 1; i < len(common); i++ {
		prevS, curS := stratByDay[common[i-1]], stratByDay[common[i]]
		prevB, curB := benchByDay[common[i-1]], benchByDay[common[i]]
		var rs, rb float64
		if prevS != 0 {
			rs = curS/prevS - 1
		}
		if prevB != 0 {
			rb = curB/prevB - 1
		}
		stratReturns = append(stratReturns, rs)
		benchReturns = append(benchReturns, rb)
	}

	beta := 0.0
	if v := variance(benchReturns); v > 0 {
		beta = covariance(stratReturns, benchReturns) / v
	}
	alpha := mean(stratReturns) - beta*mean(benchReturns)

	cmp := &BenchmarkComparison{
		Alpha:        alpha,
		Beta:         beta,
		CommonDates:  len(common),
		DroppedDates: dropped,
	}

	first, last := common[0], common[len(common)-1]
	if stratByDay[first] != 0 {
		cmp.StrategyTotalReturn = stratByDay[last]/stratByDay[first] - 1
	}
	if benchByDay[first] != 0 {
		cmp.BenchmarkTotalReturn = benchByDay[last]/benchByDay[first] - 1
	}

	return cmp, nil
}

// variance is the population variance.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		diff := v - m
		sum += diff * diff
	}
	return sum / float64(len(values))
}

// covariance is the population covariance of two equal-length series.
func covariance(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	ma, mb := mean(a), mean(b)
	var sum float64
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(n)
}
