package risk

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/domain"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	warnMsgs []string
	infoMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func testConfig() Config {
	return Config{
		PositionSizePct:   0.10,
		StopLossPct:       0.02,
		TakeProfitPct:     0.05,
		DailyLossLimitPct: 0.03,
		MaxOpenPositions:  5,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(testConfig(), FeeModel{}, &mockLogger{})
	require.NoError(t, err)
	m.RolloverDay(10_000_000, time.Now())
	return m
}

func TestNewManagerValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero position size", func(c *Config) { c.PositionSizePct = 0 }},
		{"position size of one", func(c *Config) { c.PositionSizePct = 1 }},
		{"negative stop loss", func(c *Config) { c.StopLossPct = -0.01 }},
		{"zero take profit", func(c *Config) { c.TakeProfitPct = 0 }},
		{"loss limit over one", func(c *Config) { c.DailyLossLimitPct = 1.5 }},
		{"zero position cap", func(c *Config) { c.MaxOpenPositions = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewManager(cfg, FeeModel{}, &mockLogger{})
			assert.Error(t, err)
		})
	}

	t.Run("nil logger", func(t *testing.T) {
		_, err := NewManager(testConfig(), FeeModel{}, nil)
		assert.Error(t, err)
	})
}

func TestSizePosition(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		name   string
		equity float64
		price  float64
		want   int64
	}{
		{"ten million at 73700 buys 13 shares", 10_000_000, 73_700, 13},
		{"exact division", 10_000_000, 100_000, 10},
		{"truncates toward zero", 10_000_000, 999_999, 1},
		{"price above budget yields zero", 10_000_000, 1_500_000, 0},
		{"zero price", 10_000_000, 0, 0},
		{"negative price", 10_000_000, -5, 0},
		{"zero equity", 0, 73_700, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.SizePosition(tt.equity, tt.price))
		})
	}
}

func TestValidateEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("approves a clean entry", func(t *testing.T) {
		m := newTestManager(t)
		d := m.ValidateEntry(ctx, "005930", 13, 73_700)
		assert.True(t, d.Approved, d.Reason)
	})

	t.Run("rejects duplicate position", func(t *testing.T) {
		m := newTestManager(t)
		_, err := m.OpenPosition(ctx, "005930", "Samsung", 13, 73_700, time.Now())
		require.NoError(t, err)

		d := m.ValidateEntry(ctx, "005930", 13, 73_700)
		assert.False(t, d.Approved)
		assert.Contains(t, d.Reason, "already exists")
	})

	t.Run("rejects at the position cap", func(t *testing.T) {
		m := newTestManager(t)
		codes := []string{"000100", "000200", "000300", "000400", "000500"}
		for _, code := range codes {
			_, err := m.OpenPosition(ctx, code, "", 1, 100, time.Now())
			require.NoError(t, err)
		}
		d := m.ValidateEntry(ctx, "000600", 1, 100)
		assert.False(t, d.Approved)
		assert.Contains(t, d.Reason, "maximum")
	})

	t.Run("rejects after the daily loss latch trips", func(t *testing.T) {
		m := newTestManager(t)
		m.RestoreDailyState(-300_001, 1) // beyond 3% of 10M
		d := m.ValidateEntry(ctx, "005930", 13, 73_700)
		assert.False(t, d.Approved)
		assert.Contains(t, d.Reason, "daily loss limit")
	})

	t.Run("rejects oversized notional", func(t *testing.T) {
		m := newTestManager(t)
		// 20 * 73,700 = 1,474,000 > 1,000,000 cap.
		d := m.ValidateEntry(ctx, "005930", 20, 73_700)
		assert.False(t, d.Approved)
		assert.Contains(t, d.Reason, "cap")
	})

	t.Run("rejects invalid parameters", func(t *testing.T) {
		m := newTestManager(t)
		assert.False(t, m.ValidateEntry(ctx, "005930", 0, 73_700).Approved)
		assert.False(t, m.ValidateEntry(ctx, "005930", 13, 0).Approved)
	})
}

func TestExitTriggers(t *testing.T) {
	ctx := context.Background()

	t.Run("stop loss fires at the derived level", func(t *testing.T) {
		m := newTestManager(t)
		pos, err := m.OpenPosition(ctx, "005930", "Samsung", 13, 100_000, time.Now())
		require.NoError(t, err)
		assert.InDelta(t, 98_000, pos.StopLossPrice, 1e-6)
		assert.InDelta(t, 105_000, pos.TakeProfitPrice, 1e-6)

		m.UpdatePrice("005930", 98_500)
		_, triggered := m.CheckExitTriggers("005930")
		assert.False(t, triggered)

		m.UpdatePrice("005930", 98_000) // boundary is inclusive
		reason, triggered := m.CheckExitTriggers("005930")
		assert.True(t, triggered)
		assert.Equal(t, domain.ExitStopLoss, reason)
	})

	t.Run("take profit fires at the derived level", func(t *testing.T) {
		m := newTestManager(t)
		_, err := m.OpenPosition(ctx, "005930", "Samsung", 13, 100_000, time.Now())
		require.NoError(t, err)

		m.UpdatePrice("005930", 105_000)
		reason, triggered := m.CheckExitTriggers("005930")
		assert.True(t, triggered)
		assert.Equal(t, domain.ExitTakeProfit, reason)
	})

	t.Run("no position means no trigger", func(t *testing.T) {
		m := newTestManager(t)
		_, triggered := m.CheckExitTriggers("005930")
		assert.False(t, triggered)
	})
}

func TestClosePositionAccounting(t *testing.T) {
	ctx := context.Background()
	fees := FeeModel{BuyFeeRate: 0.00015, SellFeeRate: 0.00015, SellTaxRate: 0.0018}
	logger := &mockLogger{}
	m, err := NewManager(testConfig(), fees, logger)
	require.NoError(t, err)
	m.RolloverDay(10_000_000, time.Now())

	_, err = m.OpenPosition(ctx, "005930", "Samsung", 13, 73_700, time.Now())
	require.NoError(t, err)

	trade, err := m.ClosePosition(ctx, "005930", 77_000, time.Now(), domain.ExitTakeProfit)
	require.NoError(t, err)

	buyNotional := 73_700.0 * 13
	sellNotional := 77_000.0 * 13
	wantGross := (77_000.0 - 73_700.0) * 13
	wantFees := buyNotional*0.00015 + sellNotional*0.00015
	wantTax := sellNotional * 0.0018

	assert.InDelta(t, wantGross, trade.GrossPnL, 1e-6)
	assert.InDelta(t, wantFees, trade.Fees, 1e-6)
	assert.InDelta(t, wantTax, trade.Tax, 1e-6)
	assert.InDelta(t, wantGross-wantFees-wantTax, trade.NetPnL, 1e-6)
	assert.Equal(t, domain.ExitTakeProfit, trade.ExitReason)

	assert.False(t, m.HasPosition("005930"))
	assert.InDelta(t, trade.NetPnL, m.DailyState().RealizedPnLToday, 1e-6)
}

// Net P&L must always equal gross minus fees minus tax, for any trade.
func TestAccountingIdentityProperty(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	fees := FeeModel{BuyFeeRate: 0.0002, SellFeeRate: 0.0002, SellTaxRate: 0.0023}

	for i := 0; i < 200; i++ {
		m, err := NewManager(Config{
			PositionSizePct:   0.9,
			StopLossPct:       0.02,
			TakeProfitPct:     0.05,
			DailyLossLimitPct: 0.99,
			MaxOpenPositions:  5,
		}, fees, &mockLogger{})
		require.NoError(t, err)
		m.RolloverDay(1e9, time.Now())

		entry := 1_000 + rng.Float64()*500_000
		exit := entry * (0.8 + rng.Float64()*0.4)
		qty := int64(1 + rng.Intn(500))

		_, err = m.OpenPosition(ctx, "000001", "", qty, entry, time.Now())
		require.NoError(t, err)
		trade, err := m.ClosePosition(ctx, "000001", exit, time.Now(), domain.ExitSignal)
		require.NoError(t, err)

		assert.InDelta(t, trade.GrossPnL-trade.Fees-trade.Tax, trade.NetPnL, 1e-6)
		assert.InDelta(t, (exit-entry)*float64(qty), trade.GrossPnL, 1e-6)
	}
}

func TestDailyLossLatch(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	// Losses accumulate across trades; the latch trips when the running total
	// crosses 3% of the 10M starting equity.
	_, err := m.OpenPosition(ctx, "000100", "", 10, 20_000, time.Now())
	require.NoError(t, err)
	_, err = m.ClosePosition(ctx, "000100", 10_000, time.Now(), domain.ExitStopLoss)
	require.NoError(t, err)
	assert.False(t, m.DailyState().LossLimitReached) // -100,000 of -300,000

	_, err = m.OpenPosition(ctx, "000200", "", 10, 40_000, time.Now())
	require.NoError(t, err)
	_, err = m.ClosePosition(ctx, "000200", 19_000, time.Now(), domain.ExitStopLoss)
	require.NoError(t, err)
	assert.True(t, m.DailyState().LossLimitReached) // -310,000 total

	// The latch is one-way: a profitable trade does not clear it.
	_, err = m.OpenPosition(ctx, "000300", "", 10, 10_000, time.Now())
	require.NoError(t, err)
	_, err = m.ClosePosition(ctx, "000300", 50_000, time.Now(), domain.ExitTakeProfit)
	require.NoError(t, err)
	assert.True(t, m.DailyState().LossLimitReached)
	assert.False(t, m.ValidateEntry(ctx, "000400", 1, 100).Approved)

	// Only the day rollover clears it.
	m.RolloverDay(9_690_000, time.Now().Add(24*time.Hour))
	assert.False(t, m.DailyState().LossLimitReached)
	assert.True(t, m.ValidateEntry(ctx, "000400", 1, 100).Approved)
}

func TestRestoreDailyStateRetripsLatch(t *testing.T) {
	m := newTestManager(t)
	m.RestoreDailyState(-400_000, 3)
	assert.True(t, m.DailyState().LossLimitReached)
	assert.InDelta(t, -400_000, m.DailyState().RealizedPnLToday, 1e-9)
	assert.Equal(t, 3, m.DailyState().TradesToday)
}

func TestTradesTodayCountsClosedRoundTrips(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.OpenPosition(ctx, "005930", "Samsung", 13, 73_700, time.Now())
	require.NoError(t, err)
	_, err = m.ClosePosition(ctx, "005930", 75_000, time.Now(), domain.ExitTakeProfit)
	require.NoError(t, err)
	assert.Equal(t, 1, m.DailyState().TradesToday)

	_, err = m.OpenPosition(ctx, "000660", "Hynix", 5, 100_000, time.Now())
	require.NoError(t, err)
	_, err = m.ClosePosition(ctx, "000660", 98_000, time.Now(), domain.ExitStopLoss)
	require.NoError(t, err)
	assert.Equal(t, 2, m.DailyState().TradesToday)

	// The counter resets with the day.
	m.RolloverDay(10_000_000, time.Now().Add(24*time.Hour))
	assert.Zero(t, m.DailyState().TradesToday)
}

func TestValidateExit(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	assert.False(t, m.ValidateExit(ctx, "005930", 10).Approved)

	_, err := m.OpenPosition(ctx, "005930", "Samsung", 13, 73_700, time.Now())
	require.NoError(t, err)

	assert.True(t, m.ValidateExit(ctx, "005930", 13).Approved)
	assert.False(t, m.ValidateExit(ctx, "005930", 14).Approved)
}

func TestSyncPosition(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	err := m.SyncPosition(ctx, &domain.Position{
		StockCode: "005930", StockName: "Samsung", Quantity: 13, BuyPrice: 73_700,
	})
	require.NoError(t, err)

	pos, ok := m.PositionFor("005930")
	require.True(t, ok)
	assert.InDelta(t, 73_700*0.98, pos.StopLossPrice, 1e-6)
	assert.InDelta(t, 73_700*1.05, pos.TakeProfitPrice, 1e-6)
	assert.InDelta(t, 73_700, pos.CurrentPrice, 1e-6)

	// A second sync for the same code is rejected.
	err = m.SyncPosition(ctx, &domain.Position{StockCode: "005930", Quantity: 1, BuyPrice: 100})
	assert.Error(t, err)

	// Invalid payloads are rejected.
	assert.Error(t, m.SyncPosition(ctx, nil))
	assert.Error(t, m.SyncPosition(ctx, &domain.Position{StockCode: "", Quantity: 1, BuyPrice: 100}))
}

func TestHasCapacity(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	assert.True(t, m.HasCapacity())

	for i, code := range []string{"000100", "000200", "000300", "000400", "000500"} {
		_, err := m.OpenPosition(ctx, code, "", 1, float64(100+i), time.Now())
		require.NoError(t, err)
	}
	assert.False(t, m.HasCapacity())
	assert.Equal(t, 5, m.OpenPositionCount())
}
