package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
		want   float64
		wantOK bool
	}{
		{
			name:   "exact window",
			prices: []float64{1, 2, 3},
			period: 3,
			want:   2,
			wantOK: true,
		},
		{
			name:   "uses only last period prices",
			prices: []float64{100, 200, 3, 4, 5},
			period: 3,
			want:   4,
			wantOK: true,
		},
		{
			name:   "insufficient data",
			prices: []float64{1, 2},
			period: 3,
			wantOK: false,
		},
		{
			name:   "zero period",
			prices: []float64{1, 2, 3},
			period: 0,
			wantOK: false,
		},
		{
			name:   "empty window",
			prices: nil,
			period: 3,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SMA(tt.prices, tt.period)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestEMA(t *testing.T) {
	t.Run("seeded with SMA then smoothed", func(t *testing.T) {
		// period 3: multiplier 0.5, seed SMA(1,2,3)=2,
		// then (4-2)*0.5+2=3, then (5-3)*0.5+3=4.
		got, ok := EMA([]float64{1, 2, 3, 4, 5}, 3)
		require.True(t, ok)
		assert.InDelta(t, 4.0, got, 1e-9)
	})

	t.Run("constant prices stay constant", func(t *testing.T) {
		got, ok := EMA([]float64{50, 50, 50, 50, 50, 50}, 4)
		require.True(t, ok)
		assert.InDelta(t, 50.0, got, 1e-9)
	})

	t.Run("insufficient data", func(t *testing.T) {
		_, ok := EMA([]float64{1, 2}, 3)
		assert.False(t, ok)
	})
}

func TestRSI(t *testing.T) {
	t.Run("balanced gains and losses is 50", func(t *testing.T) {
		// period 2 over [1,2,3,2]: Wilder-smoothed avgGain == avgLoss.
		got, ok := RSI([]float64{1, 2, 3, 2}, 2)
		require.True(t, ok)
		assert.InDelta(t, 50.0, got, 1e-9)
	})

	t.Run("all gains is 100", func(t *testing.T) {
		got, ok := RSI([]float64{1, 2, 3, 4, 5}, 3)
		require.True(t, ok)
		assert.Equal(t, 100.0, got)
	})

	t.Run("flat window has zero losses and is 100", func(t *testing.T) {
		// Denominator-zero case: no losses at all must yield 100, not a fault.
		got, ok := RSI([]float64{10, 10, 10, 10, 10}, 3)
		require.True(t, ok)
		assert.Equal(t, 100.0, got)
	})

	t.Run("all losses is 0", func(t *testing.T) {
		got, ok := RSI([]float64{5, 4, 3, 2, 1}, 3)
		require.True(t, ok)
		assert.Equal(t, 0.0, got)
	})

	t.Run("needs period+1 prices", func(t *testing.T) {
		_, ok := RSI([]float64{1, 2, 3}, 3)
		assert.False(t, ok)

		_, ok = RSI([]float64{1, 2, 3, 4}, 3)
		assert.True(t, ok)
	})

	t.Run("result stays within 0..100", func(t *testing.T) {
		prices := []float64{100, 103, 99, 104, 98, 105, 97, 106, 96, 107, 95, 108, 94, 109, 93, 110}
		got, ok := RSI(prices, 14)
		require.True(t, ok)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 100.0)
	})
}

func TestMACD(t *testing.T) {
	t.Run("constant prices yield zero line and histogram", func(t *testing.T) {
		prices := make([]float64, 40)
		for i := range prices {
			prices[i] = 250
		}
		got, ok := MACD(prices, 12, 26, 9)
		require.True(t, ok)
		assert.InDelta(t, 0.0, got.Line, 1e-9)
		assert.InDelta(t, 0.0, got.Signal, 1e-9)
		assert.InDelta(t, 0.0, got.Histogram, 1e-9)
	})

	t.Run("uptrend puts the fast EMA above the slow one", func(t *testing.T) {
		prices := make([]float64, 40)
		for i := range prices {
			prices[i] = 100 + float64(i)
		}
		got, ok := MACD(prices, 12, 26, 9)
		require.True(t, ok)
		assert.Greater(t, got.Line, 0.0)
	})

	t.Run("minimum window is slow+signal-1", func(t *testing.T) {
		prices := make([]float64, 33)
		for i := range prices {
			prices[i] = float64(i)
		}
		_, ok := MACD(prices, 12, 26, 9)
		assert.False(t, ok)

		_, ok = MACD(append(prices, 33), 12, 26, 9)
		assert.True(t, ok)
	})

	t.Run("fast period must be below slow", func(t *testing.T) {
		prices := make([]float64, 50)
		_, ok := MACD(prices, 26, 12, 9)
		assert.False(t, ok)
	})
}

func TestComputeDeterminism(t *testing.T) {
	// The same window must always produce the identical set.
	cfg := Config{ShortMAPeriod: 5, LongMAPeriod: 20, RSIPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9}
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i%7)*1.5
	}

	first := Compute(prices, cfg)
	second := Compute(prices, cfg)
	assert.Equal(t, first, second)
	assert.True(t, first.HasShortMA)
	assert.True(t, first.HasLongMA)
	assert.True(t, first.HasRSI)
	assert.True(t, first.HasMACD)
}

func TestComputePartialWindow(t *testing.T) {
	// A short window yields a partial set, not an error.
	cfg := Config{ShortMAPeriod: 5, LongMAPeriod: 20, RSIPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9}
	set := Compute([]float64{1, 2, 3, 4, 5, 6}, cfg)
	assert.True(t, set.HasShortMA)
	assert.False(t, set.HasLongMA)
	assert.False(t, set.HasRSI)
	assert.False(t, set.HasMACD)
}

func TestRequiredDataPoints(t *testing.T) {
	cfg := Config{ShortMAPeriod: 5, LongMAPeriod: 20, RSIPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9}
	// MACD needs 26+9-1 = 34, the longest lookback here.
	assert.Equal(t, 34, cfg.RequiredDataPoints())

	cfg = Config{ShortMAPeriod: 5, LongMAPeriod: 60, RSIPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9}
	assert.Equal(t, 60, cfg.RequiredDataPoints())
}
