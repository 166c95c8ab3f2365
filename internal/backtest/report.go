package backtest

import (
	"tycho/internal/domain"
)

// Report is the serializable result of a completed run: the performance
// statistics plus the benchmark comparison. Together with the snapshot
// sequence and the fill/rejection lists it is the only contract downstream
// presentation layers may rely on.
type Report struct {
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	TradingDays   int     `json:"trading_days"`
	InitialEquity float64 `json:"initial_equity"`
	FinalEquity   float64 `json:"final_equity"`

	Performance Performance          `json:"performance"`
	Benchmark   *BenchmarkComparison `json:"benchmark,omitempty"`
}

// BuildReport assembles the final report from the snapshot sequence and the
// benchmark series. With an empty benchmark series the comparison is omitted;
// with a benchmark that cannot be aligned it fails with a
// CalendarMismatchError.
func BuildReport(snapshots []domain.Snapshot, benchmark []domain.Bar, riskFreeRate float64) (*Report, error) {
	r := &Report{
		Performance: ComputePerformance(snapshots, riskFreeRate),
	}

	if len(snapshots) > 0 {
		r.StartDate = snapshots[0].Day()
		r.EndDate = snapshots[len(snapshots)-1].Day()
		r.TradingDays = len(snapshots)
		r.InitialEquity = snapshots[0].Equity
		r.FinalEquity = snapshots[len(snapshots)-1].Equity
	}

	if len(benchmark) > 0 {
		cmp, err := CompareBenchmark(snapshots, benchmark)
		if err != nil {
			return nil, err
		}
		r.Benchmark = cmp
	}

	return r, nil
}
