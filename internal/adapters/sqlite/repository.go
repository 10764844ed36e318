package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stockbot/internal/domain"
	"stockbot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository and ports.TickRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (or creates) the database and verifies the schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/stockbot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the trade writer and snapshots.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver behaves best with a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_code TEXT NOT NULL,
		stock_name TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		gross_pnl REAL NOT NULL,
		fees REAL NOT NULL DEFAULT 0,
		tax REAL NOT NULL DEFAULT 0,
		net_pnl REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		exit_reason TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tick_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_code TEXT NOT NULL,
		price REAL NOT NULL,
		volume INTEGER NOT NULL DEFAULT 0,
		change_pct REAL NOT NULL DEFAULT 0,
		observed_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trade_history_code_exit_time ON trade_history (stock_code, exit_time);
	CREATE INDEX IF NOT EXISTS idx_trade_history_exit_time ON trade_history (exit_time);
	CREATE INDEX IF NOT EXISTS idx_tick_snapshots_observed_at ON tick_snapshots (observed_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeRepository Implementation ---

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trade_history (stock_code, stock_name, quantity, entry_price, exit_price,
	                           gross_pnl, fees, tax, net_pnl, entry_time, exit_time, exit_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.StockCode, trade.StockName, trade.Quantity, trade.EntryPrice, trade.ExitPrice,
		trade.GrossPnL, trade.Fees, trade.Tax, trade.NetPnL, trade.EntryTime, trade.ExitTime, trade.ExitReason)
	if err != nil {
		return 0, fmt.Errorf("%w: insert trade for %s: %v", ports.ErrQueryFailed, trade.StockCode, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert ID for trade %s: %v", ports.ErrQueryFailed, trade.StockCode, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade recorded", map[string]interface{}{"tradeID": id, "stockCode": trade.StockCode, "netPnL": trade.NetPnL})
	return id, nil
}

// FindByCode retrieves the most recent trades for a stock, up to a limit.
func (r *Repository) FindByCode(ctx context.Context, stockCode string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, stock_code, stock_name, quantity, entry_price, exit_price,
	       gross_pnl, fees, tax, net_pnl, entry_time, exit_time, exit_reason
	FROM trade_history
	WHERE stock_code = ? ORDER BY exit_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, stockCode, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query trades for %s: %v", ports.ErrQueryFailed, stockCode, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindByCode: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// CountToday counts trades closed during the current trading day.
func (r *Repository) CountToday(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM trade_history WHERE date(exit_time) = date('now', 'localtime')`
	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count trades today: %v", ports.ErrQueryFailed, err)
	}
	return count, nil
}

// SumNetPnLToday sums net realized P&L for trades closed during the current
// trading day. Used to restore the daily loss state after a restart.
func (r *Repository) SumNetPnLToday(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(net_pnl), 0) FROM trade_history WHERE date(exit_time) = date('now', 'localtime')`
	var total float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: sum net P&L today: %v", ports.ErrQueryFailed, err)
	}
	return total, nil
}

// --- TickRepository Implementation ---

// RecordTick persists one observed tick snapshot.
func (r *Repository) RecordTick(ctx context.Context, tick domain.Tick) error {
	const query = `
	INSERT INTO tick_snapshots (stock_code, price, volume, change_pct, observed_at)
	VALUES (?, ?, ?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, query, tick.StockCode, tick.Price, tick.Volume, tick.ChangePct, tick.At); err != nil {
		return fmt.Errorf("%w: insert tick snapshot for %s: %v", ports.ErrQueryFailed, tick.StockCode, err)
	}
	return nil
}

// PruneBefore removes snapshots older than the cutoff and reports how many
// rows were deleted.
func (r *Repository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM tick_snapshots WHERE observed_at < ?`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune tick snapshots: %v", ports.ErrQueryFailed, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected for prune: %v", ports.ErrQueryFailed, err)
	}
	if deleted > 0 {
		r.logger.Debug(ctx, "Pruned tick snapshots", map[string]interface{}{"deleted": deleted, "cutoff": cutoff})
	}
	return deleted, nil
}

// --- Helper Scan Functions ---

// scanner is compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var exitReason string
	err := s.Scan(
		&t.ID, &t.StockCode, &t.StockName, &t.Quantity, &t.EntryPrice, &t.ExitPrice,
		&t.GrossPnL, &t.Fees, &t.Tax, &t.NetPnL, &t.EntryTime, &t.ExitTime, &exitReason)
	if err != nil {
		return nil, err
	}
	t.ExitReason = domain.ExitReason(exitReason)
	return t, nil
}
