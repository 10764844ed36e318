package indicators

// Config holds the lookback periods for the full indicator set.
type Config struct {
	ShortMAPeriod int // e.g., 5
	LongMAPeriod  int // e.g., 20
	RSIPeriod     int // e.g., 14
	MACDFast      int // e.g., 12
	MACDSlow      int // e.g., 26
	MACDSignal    int // e.g., 9
}

// RequiredDataPoints returns the longest lookback among the configured
// indicators. RSI looks one step further back than its period.
func (c Config) RequiredDataPoints() int {
	max := c.LongMAPeriod
	if c.RSIPeriod+1 > max {
		max = c.RSIPeriod + 1
	}
	if c.MACDSlow+c.MACDSignal-1 > max {
		max = c.MACDSlow + c.MACDSignal - 1
	}
	return max
}

// IndicatorSet is the result of one Compute call. Each HasX flag reports
// whether the window was long enough for that indicator; a partial set is a
// valid result, not an error.
type IndicatorSet struct {
	ShortMA    float64
	HasShortMA bool
	LongMA     float64
	HasLongMA  bool
	RSI        float64
	HasRSI     bool
	MACD       MACDValue
	HasMACD    bool
}

// Compute evaluates the configured indicators over the price window. Pure and
// deterministic; no state beyond the window.
func Compute(prices []float64, cfg Config) IndicatorSet {
	var set IndicatorSet
	set.ShortMA, set.HasShortMA = SMA(prices, cfg.ShortMAPeriod)
	set.LongMA, set.HasLongMA = SMA(prices, cfg.LongMAPeriod)
	set.RSI, set.HasRSI = RSI(prices, cfg.RSIPeriod)
	set.MACD, set.HasMACD = MACD(prices, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	return set
}
