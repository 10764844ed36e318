// Package indicators provides pure, deterministic technical-indicator
// calculations over an ordered price window. Functions report ok=false when
// the window is too short; callers must treat that as "not enough data yet",
// never as a fault.
package indicators

// SMA computes the simple moving average of the last period prices.
func SMA(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}
	total := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		total += prices[i]
	}
	return total / float64(period), true
}

// EMA computes the exponential moving average over the full window, seeded
// with the SMA of the first period prices.
func EMA(prices []float64, period int) (float64, bool) {
	series, ok := emaSeries(prices, period)
	if !ok {
		return 0, false
	}
	return series[len(series)-1], true
}

// emaSeries returns EMA values aligned to prices[period-1:]. The first value
// is the seed SMA of prices[:period].
func emaSeries(prices []float64, period int) ([]float64, bool) {
	if period <= 0 || len(prices) < period {
		return nil, false
	}
	multiplier := 2.0 / float64(period+1)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += prices[i]
	}
	seed /= float64(period)

	series := make([]float64, 0, len(prices)-period+1)
	series = append(series, seed)
	ema := seed
	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		series = append(series, ema)
	}
	return series, true
}

// RSI computes the Relative Strength Index using Wilder's smoothing method.
// A window with no losses is defined as RSI=100, not a divide-by-zero fault.
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) <= period {
		return 0, false
	}

	changes := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		changes = append(changes, prices[i]-prices[i-1])
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		if changes[i] > 0 {
			avgGain += changes[i]
		} else {
			avgLoss -= changes[i]
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < len(changes); i++ {
		if changes[i] > 0 {
			avgGain = (avgGain*float64(period-1) + changes[i]) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) - changes[i]) / float64(period)
		}
	}

	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))
	if rsi > 100 {
		rsi = 100
	} else if rsi < 0 {
		rsi = 0
	}
	return rsi, true
}

// MACDValue holds the three MACD outputs for the latest price.
type MACDValue struct {
	Line      float64 // fast EMA - slow EMA
	Signal    float64 // EMA of the MACD line
	Histogram float64 // Line - Signal
}

// MACD computes the Moving Average Convergence Divergence. Requires at least
// slow+signal-1 prices.
func MACD(prices []float64, fast, slow, signal int) (MACDValue, bool) {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return MACDValue{}, false
	}
	if len(prices) < slow+signal-1 {
		return MACDValue{}, false
	}

	fastSeries, okF := emaSeries(prices, fast)
	slowSeries, okS := emaSeries(prices, slow)
	if !okF || !okS {
		return MACDValue{}, false
	}

	// Align the two EMA series on the slow series' start.
	offset := len(fastSeries) - len(slowSeries)
	macdLine := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdLine[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries, ok := emaSeries(macdLine, signal)
	if !ok {
		return MACDValue{}, false
	}

	line := macdLine[len(macdLine)-1]
	sig := signalSeries[len(signalSeries)-1]
	return MACDValue{Line: line, Signal: sig, Histogram: line - sig}, true
}
