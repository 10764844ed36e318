package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "stockbot_test.db"),
		Logger: mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTrade(code string, netPnL float64, exitTime time.Time) *domain.Trade {
	gross := netPnL + 1_500 + 2_700
	return &domain.Trade{
		StockCode:  code,
		StockName:  "Test Stock",
		Quantity:   13,
		EntryPrice: 73_700,
		ExitPrice:  75_000,
		GrossPnL:   gross,
		Fees:       1_500,
		Tax:        2_700,
		NetPnL:     netPnL,
		EntryTime:  exitTime.Add(-2 * time.Hour),
		ExitTime:   exitTime,
		ExitReason: domain.ExitTakeProfit,
	}
}

func TestNewRepositoryRequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestCreateTradeAssignsID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	trade := sampleTrade("005930", 12_700, time.Now())
	id, err := repo.CreateTrade(ctx, trade)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, trade.ID)

	id2, err := repo.CreateTrade(ctx, sampleTrade("005930", -5_000, time.Now()))
	require.NoError(t, err)
	assert.Greater(t, id2, id)
}

func TestFindByCode(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 5; i++ {
		trade := sampleTrade("005930", float64(1000*(i+1)), now.Add(time.Duration(i)*time.Minute))
		_, err := repo.CreateTrade(ctx, trade)
		require.NoError(t, err)
	}
	_, err := repo.CreateTrade(ctx, sampleTrade("000660", 999, now))
	require.NoError(t, err)

	t.Run("orders newest first and honors the limit", func(t *testing.T) {
		trades, err := repo.FindByCode(ctx, "005930", 3)
		require.NoError(t, err)
		require.Len(t, trades, 3)
		assert.InDelta(t, 5000, trades[0].NetPnL, 0.01)
		assert.InDelta(t, 4000, trades[1].NetPnL, 0.01)
		assert.InDelta(t, 3000, trades[2].NetPnL, 0.01)
		for _, trade := range trades {
			assert.Equal(t, "005930", trade.StockCode)
		}
	})

	t.Run("round-trips all fields", func(t *testing.T) {
		trades, err := repo.FindByCode(ctx, "000660", 1)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		got := trades[0]
		assert.Equal(t, int64(13), got.Quantity)
		assert.InDelta(t, 73_700, got.EntryPrice, 0.01)
		assert.InDelta(t, 75_000, got.ExitPrice, 0.01)
		assert.InDelta(t, 1_500, got.Fees, 0.01)
		assert.InDelta(t, 2_700, got.Tax, 0.01)
		assert.Equal(t, domain.ExitTakeProfit, got.ExitReason)
		assert.WithinDuration(t, now, got.ExitTime, time.Second)
	})

	t.Run("unknown code returns empty slice", func(t *testing.T) {
		trades, err := repo.FindByCode(ctx, "999999", 10)
		require.NoError(t, err)
		assert.Empty(t, trades)
	})
}

func TestDailyAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Two trades today, one well in the past.
	_, err := repo.CreateTrade(ctx, sampleTrade("005930", -100_000, time.Now()))
	require.NoError(t, err)
	_, err = repo.CreateTrade(ctx, sampleTrade("000660", 40_000, time.Now()))
	require.NoError(t, err)
	_, err = repo.CreateTrade(ctx, sampleTrade("035720", -999_999, time.Now().Add(-72*time.Hour)))
	require.NoError(t, err)

	count, err := repo.CountToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	total, err := repo.SumNetPnLToday(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -60_000, total, 0.01)
}

func TestSumNetPnLTodayEmpty(t *testing.T) {
	repo := newTestRepo(t)
	total, err := repo.SumNetPnLToday(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestTickSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	ticks := []domain.Tick{
		{StockCode: "005930", Price: 73_700, Volume: 1_000, ChangePct: 0.5, At: now.Add(-48 * time.Hour)},
		{StockCode: "005930", Price: 74_000, Volume: 2_000, ChangePct: 0.9, At: now.Add(-25 * time.Hour)},
		{StockCode: "000660", Price: 120_000, Volume: 500, ChangePct: -0.2, At: now},
	}
	for _, tick := range ticks {
		require.NoError(t, repo.RecordTick(ctx, tick))
	}

	deleted, err := repo.PruneBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// Pruning again finds nothing left to delete.
	deleted, err = repo.PruneBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestQueryErrorsWrapSentinel(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Close())

	_, err := repo.CreateTrade(context.Background(), sampleTrade("005930", 1, time.Now()))
	assert.ErrorIs(t, err, ports.ErrQueryFailed)

	_, err = repo.CountToday(context.Background())
	assert.ErrorIs(t, err, ports.ErrQueryFailed)
}
