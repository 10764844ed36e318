package ports

import (
	"context"
	"time"

	"stockbot/internal/domain"
)

// TradeRepository defines the interface for storing and retrieving completed
// trades. The execution loop emits every closed round trip here so realized
// P&L survives restarts.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindByCode retrieves the most recent trades for a stock, up to a limit.
	FindByCode(ctx context.Context, stockCode string, limit int) ([]*domain.Trade, error)
	// CountToday counts trades closed during the current trading day.
	CountToday(ctx context.Context) (int, error)
	// SumNetPnLToday sums net realized P&L for the current trading day,
	// used to restore the daily risk state after a restart.
	SumNetPnLToday(ctx context.Context) (float64, error)
}

// TickRepository stores periodic price snapshots for later analysis.
type TickRepository interface {
	// RecordTick persists one observed tick.
	RecordTick(ctx context.Context, tick domain.Tick) error
	// PruneBefore removes snapshots older than the cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
