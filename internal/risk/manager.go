// Package risk owns the authoritative in-memory table of open positions and
// the per-day loss counters. It is the single writer for both; all access goes
// through the Manager's mutex.
package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
)

// Config holds risk-limit parameters.
type Config struct {
	PositionSizePct   float64 // fraction of account equity per position, e.g. 0.10
	StopLossPct       float64 // e.g. 0.03
	TakeProfitPct     float64 // e.g. 0.05
	DailyLossLimitPct float64 // fraction of starting-day equity, e.g. 0.05
	MaxOpenPositions  int
}

// Decision is the structured result of an entry validation. Validation
// failures are never returned as errors so the execution loop can
// log-and-continue on every rejection.
type Decision struct {
	Approved bool
	Reason   string
}

func reject(format string, args ...interface{}) Decision {
	return Decision{Approved: false, Reason: fmt.Sprintf(format, args...)}
}

// Manager enforces position, sizing and daily-loss limits and performs the
// cash-settlement math on exits.
type Manager struct {
	cfg    Config
	fees   FeeModel
	logger ports.Logger

	mu        sync.Mutex
	positions map[string]*domain.Position
	day       domain.DailyRiskState
}

// NewManager creates a risk manager. Percentages must be in (0, 1).
func NewManager(cfg Config, fees FeeModel, logger ports.Logger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for risk manager")
	}
	if cfg.PositionSizePct <= 0 || cfg.PositionSizePct >= 1 {
		return nil, fmt.Errorf("PositionSizePct must be between 0 and 1 (exclusive)")
	}
	if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 1 {
		return nil, fmt.Errorf("StopLossPct must be between 0 and 1 (exclusive)")
	}
	if cfg.TakeProfitPct <= 0 || cfg.TakeProfitPct >= 1 {
		return nil, fmt.Errorf("TakeProfitPct must be between 0 and 1 (exclusive)")
	}
	if cfg.DailyLossLimitPct <= 0 || cfg.DailyLossLimitPct >= 1 {
		return nil, fmt.Errorf("DailyLossLimitPct must be between 0 and 1 (exclusive)")
	}
	if cfg.MaxOpenPositions <= 0 {
		return nil, fmt.Errorf("MaxOpenPositions must be positive")
	}
	return &Manager{
		cfg:       cfg,
		fees:      fees,
		logger:    logger,
		positions: make(map[string]*domain.Position),
	}, nil
}

// RolloverDay resets the daily counters for a new trading day. This is the
// only code path that clears the daily-loss latch.
func (m *Manager) RolloverDay(startEquity float64, day time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.day = domain.DailyRiskState{
		TradingDay:  day.Format("2006-01-02"),
		StartEquity: startEquity,
	}
}

// RestoreDailyState seeds today's realized P&L and closed-trade count after a
// restart, re-tripping the latch if the restored loss already exceeds the cap.
func (m *Manager) RestoreDailyState(realized float64, tradesToday int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.day.RealizedPnLToday = realized
	m.day.TradesToday = tradesToday
	m.latchIfLimitBreachedLocked()
}

// DailyState returns a snapshot of the daily risk counters.
func (m *Manager) DailyState() domain.DailyRiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.day
}

// ValidateEntry checks a proposed entry against the risk limits. All failures
// come back as structured decisions, never as errors.
func (m *Manager) ValidateEntry(ctx context.Context, stockCode string, quantity int64, price float64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if quantity <= 0 || price <= 0 {
		return reject("invalid entry parameters: quantity=%d price=%.2f", quantity, price)
	}
	if _, exists := m.positions[stockCode]; exists {
		return reject("position already exists for %s", stockCode)
	}
	if len(m.positions) >= m.cfg.MaxOpenPositions {
		return reject("open position count %d at maximum %d", len(m.positions), m.cfg.MaxOpenPositions)
	}
	if m.day.LossLimitReached {
		return reject("daily loss limit reached, no new entries today")
	}
	if m.day.StartEquity > 0 {
		maxNotional := m.day.StartEquity * m.cfg.PositionSizePct
		if notional := price * float64(quantity); notional > maxNotional*1.0001 { // tolerate float rounding
			return reject("notional %.0f exceeds per-position cap %.0f", notional, maxNotional)
		}
	}
	return Decision{Approved: true}
}

// ValidateExit is the defense-in-depth check that a sell refers to an actual
// holding of sufficient size.
func (m *Manager) ValidateExit(ctx context.Context, stockCode string, quantity int64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.positions[stockCode]
	if !exists {
		return reject("no open position for %s", stockCode)
	}
	if quantity > pos.Quantity {
		return reject("sell quantity %d exceeds held %d", quantity, pos.Quantity)
	}
	return Decision{Approved: true}
}

// SizePosition returns the share count for a new entry:
// floor((equity * PositionSizePct) / price). Returns 0, never a negative value
// or an error, when price is non-positive or the computed count truncates to
// zero; callers must treat 0 as "do not enter".
func (m *Manager) SizePosition(accountEquity, price float64) int64 {
	if price <= 0 || accountEquity <= 0 {
		return 0
	}
	qty := math.Floor(accountEquity * m.cfg.PositionSizePct / price)
	if qty < 1 {
		return 0
	}
	return int64(qty)
}

// OpenPosition records a confirmed entry fill, deriving the stop-loss and
// take-profit trigger prices from the configured percentages. Called from the
// fill-callback path only, never optimistically at submission time.
func (m *Manager) OpenPosition(ctx context.Context, stockCode, stockName string, quantity int64, fillPrice float64, filledAt time.Time) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[stockCode]; exists {
		return nil, fmt.Errorf("position already exists for %s", stockCode)
	}
	if quantity <= 0 || fillPrice <= 0 {
		return nil, fmt.Errorf("invalid fill: quantity=%d price=%.2f", quantity, fillPrice)
	}

	pos := &domain.Position{
		StockCode:       stockCode,
		StockName:       stockName,
		Quantity:        quantity,
		BuyPrice:        fillPrice,
		CurrentPrice:    fillPrice,
		StopLossPrice:   fillPrice * (1 - m.cfg.StopLossPct),
		TakeProfitPrice: fillPrice * (1 + m.cfg.TakeProfitPct),
		OpenedAt:        filledAt,
	}
	m.positions[stockCode] = pos

	m.logger.Info(ctx, "Position opened", map[string]interface{}{
		"stockCode":  stockCode,
		"quantity":   quantity,
		"buyPrice":   fillPrice,
		"stopLoss":   pos.StopLossPrice,
		"takeProfit": pos.TakeProfitPrice,
	})
	cp := *pos
	return &cp, nil
}

// UpdatePrice marks the position's current price on a tick. No-op for codes
// without an open position.
func (m *Manager) UpdatePrice(stockCode string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos, ok := m.positions[stockCode]; ok && price > 0 {
		pos.CurrentPrice = price
	}
}

// CheckExitTriggers reports whether the position's current price has crossed
// its stop-loss or take-profit level. Stop-loss is evaluated first: if a price
// gap between ticks leaps over both thresholds, the loss-limiting exit wins.
func (m *Manager) CheckExitTriggers(stockCode string) (domain.ExitReason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.positions[stockCode]
	if !exists {
		return "", false
	}
	if pos.CurrentPrice <= pos.StopLossPrice {
		return domain.ExitStopLoss, true
	}
	if pos.CurrentPrice >= pos.TakeProfitPrice {
		return domain.ExitTakeProfit, true
	}
	return "", false
}

// ClosePosition settles a confirmed exit fill: computes net realized P&L
// (gross minus buy fee, sell fee and sell tax), updates the daily counters,
// trips the daily-loss latch when the cap is breached and removes the
// position from the table.
func (m *Manager) ClosePosition(ctx context.Context, stockCode string, fillPrice float64, exitedAt time.Time, reason domain.ExitReason) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.positions[stockCode]
	if !exists {
		return nil, fmt.Errorf("no open position for %s", stockCode)
	}
	if fillPrice <= 0 {
		return nil, fmt.Errorf("invalid exit fill price %.2f for %s", fillPrice, stockCode)
	}

	buyNotional := pos.BuyPrice * float64(pos.Quantity)
	sellNotional := fillPrice * float64(pos.Quantity)
	gross := (fillPrice - pos.BuyPrice) * float64(pos.Quantity)
	fees := m.fees.BuyFee(buyNotional) + m.fees.SellFee(sellNotional)
	tax := m.fees.SellTax(sellNotional)
	net := gross - fees - tax

	trade := &domain.Trade{
		StockCode:  pos.StockCode,
		StockName:  pos.StockName,
		Quantity:   pos.Quantity,
		EntryPrice: pos.BuyPrice,
		ExitPrice:  fillPrice,
		GrossPnL:   gross,
		Fees:       fees,
		Tax:        tax,
		NetPnL:     net,
		EntryTime:  pos.OpenedAt,
		ExitTime:   exitedAt,
		ExitReason: reason,
	}

	delete(m.positions, stockCode)
	m.day.RealizedPnLToday += net
	m.day.TradesToday++
	m.latchIfLimitBreachedLocked()

	m.logger.Info(ctx, "Position closed", map[string]interface{}{
		"stockCode":   stockCode,
		"exitPrice":   fillPrice,
		"grossPnL":    gross,
		"netPnL":      net,
		"fees":        fees,
		"tax":         tax,
		"reason":      reason,
		"dailyPnL":    m.day.RealizedPnLToday,
		"lossLatched": m.day.LossLimitReached,
	})
	return trade, nil
}

// latchIfLimitBreachedLocked trips the one-way daily-loss latch. Requires m.mu.
func (m *Manager) latchIfLimitBreachedLocked() {
	if m.day.LossLimitReached || m.day.StartEquity <= 0 {
		return
	}
	if m.day.RealizedPnLToday <= -m.cfg.DailyLossLimitPct*m.day.StartEquity {
		m.day.LossLimitReached = true
	}
}

// HasPosition reports whether an open position exists for the code.
func (m *Manager) HasPosition(stockCode string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.positions[stockCode]
	return ok
}

// PositionFor returns a copy of the open position for the code, if any.
func (m *Manager) PositionFor(stockCode string) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[stockCode]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// OpenPositionCount returns the number of open positions.
func (m *Manager) OpenPositionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// HasCapacity reports whether a new position may still be opened under the
// position-count cap. The surge admission gate pre-checks this before feeding
// a candidate into the execution loop.
func (m *Manager) HasCapacity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions) < m.cfg.MaxOpenPositions
}

// SyncPosition seeds the table from the broker's view at startup. Stop-loss
// and take-profit levels are re-derived from the recorded buy price.
func (m *Manager) SyncPosition(ctx context.Context, pos *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos == nil || pos.StockCode == "" || pos.Quantity <= 0 || pos.BuyPrice <= 0 {
		return fmt.Errorf("invalid position for sync")
	}
	if _, exists := m.positions[pos.StockCode]; exists {
		return fmt.Errorf("position already exists for %s", pos.StockCode)
	}
	cp := *pos
	if cp.StopLossPrice == 0 {
		cp.StopLossPrice = cp.BuyPrice * (1 - m.cfg.StopLossPct)
	}
	if cp.TakeProfitPrice == 0 {
		cp.TakeProfitPrice = cp.BuyPrice * (1 + m.cfg.TakeProfitPct)
	}
	if cp.CurrentPrice == 0 {
		cp.CurrentPrice = cp.BuyPrice
	}
	m.positions[cp.StockCode] = &cp
	m.logger.Info(ctx, "Existing position synced from broker", map[string]interface{}{
		"stockCode": cp.StockCode, "quantity": cp.Quantity, "buyPrice": cp.BuyPrice,
	})
	return nil
}
