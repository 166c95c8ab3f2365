package backtest

import (
	"math"

	"tycho/internal/domain"
)

// tradingDaysPerYear is the annualization factor for daily return series.
const tradingDaysPerYear = 252

// Performance holds the risk and return statistics derived from one equity
// curve. It is fully recomputable from the snapshot sequence.
type Performance struct {
	ReturnSeries []float64 `json:"return_series"`
	TotalReturn  float64   `json:"total_return"`
	CAGR         float64   `json:"cagr"`
	Volatility   float64   `json:"volatility"`
	Sharpe       float64   `json:"sharpe"`
	// Sortino is nil when there are no negative excess returns: the ratio is
	// undefined, never silently zero.
	Sortino     *float64 `json:"sortino"`
	MaxDrawdown float64  `json:"max_drawdown"`
}

// ComputePerformance derives statistics from an ordered snapshot sequence.
// riskFreeRate is an annual rate; it is divided across trading days and
// subtracted from each daily return before the Sharpe and Sortino ratios.
func ComputePerformance(snapshots []domain.Snapshot, riskFreeRate float64) Performance {
	returns := dailyReturns(snapshots)

	perf := Performance{
		ReturnSeries: returns,
		Volatility:   annualizedVolatility(returns),
		MaxDrawdown:  maxDrawdown(snapshots),
	}

	if len(snapshots) >= 2 {
		initial := snapshots[0].Equity
		final := snapshots[len(snapshots)-1].Equity
		if initial > 0 {
			perf.TotalReturn = final/initial - 1
			perf.CAGR = math.Pow(final/initial, tradingDaysPerYear/float64(len(returns))) - 1
		}
	}

	dailyRF := riskFreeRate / tradingDaysPerYear
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - dailyRF
	}

	perf.Sharpe = sharpe(excess)
	perf.Sortino = sortino(excess)

	return perf
}

// dailyReturns computes equity[i]/equity[i-1] - 1 for i >= 1. The result has
// length len(snapshots)-1.
func dailyReturns(snapshots []domain.Snapshot) []float64 {
	if len(snapshots) < 2 {
		return nil
	}
	returns := make([]float64, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].Equity
		if prev != 0 {
			returns[i-1] = snapshots[i].Equity/prev - 1
		}
	}
	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev returns the sample (n-1) standard deviation, or 0 for fewer
// than two values.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

func annualizedVolatility(returns []float64) float64 {
	return sampleStdDev(returns) * math.Sqrt(tradingDaysPerYear)
}

// sharpe computes the annualized Sharpe ratio over daily excess returns.
// Zero variance yields an explicit 0, never NaN.
func sharpe(excess []float64) float64 {
	std := sampleStdDev(excess)
	if std == 0 {
		return 0
	}
	return mean(excess) / std * math.Sqrt(tradingDaysPerYear)
}

// sortino computes the annualized Sortino ratio using downside deviation:
// the root mean square of only the negative excess returns. With no negative
// returns the ratio is undefined and nil is returned.
func sortino(excess []float64) *float64 {
	var downSquares float64
	downCount := 0
	for _, r := range excess {
		if r < 0 {
			downSquares += r * r
			downCount++
		}
	}
	if downCount == 0 {
		return nil
	}
	downDev := math.Sqrt(downSquares / float64(downCount))
	if downDev == 0 {
		return nil
	}
	s := mean(excess) / downDev * math.Sqrt(tradingDaysPerYear)
	return &s
}

// maxDrawdown returns the maximum peak-to-trough decline of the equity curve
// as a non-negative fraction.
func maxDrawdown(snapshots []domain.Snapshot) float64 {
	if len(snapshots) == 0 {
		return 0
	}
	peak := snapshots[0].Equity
	var maxDD float64
	for _, s := range snapshots {
		if s.Equity > peak {
			peak = s.Equity
		}
		if peak > 0 {
			if dd := (peak - s.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
