// Package indicator provides technical indicator computations over price
// series. Every function is pure: inputs are never mutated and results are
// returned as new slices, so callers can share input data freely.
package indicator

// SMA computes the simple moving average of values with the given period.
// The result has the same length as the input; entries before a full window
// is available are zero.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average of values with the given
// period, seeded with the SMA of the first window. Entries before a full
// window is available are zero.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	var seed float64
	for _, v := range values[:period] {
		seed += v
	}
	seed /= float64(period)
	out[period-1] = seed

	k := 2.0 / float64(period+1)
	prev := seed
	for i := period; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// RSI computes the Wilder relative strength index with the given period.
// The result has the same length as the input; entries before a full window
// is available are zero. A period of all gains yields 100, all losses 0.
func RSI(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
