package domain

import "time"

// Trade represents a completed round trip (entry fill through exit fill).
// NetPnL is always inclusive of fees and tax; reporting gross-only P&L to the
// user is a correctness bug this design explicitly avoids.
type Trade struct {
	ID         int64 // Assigned by the repository
	StockCode  string
	StockName  string
	Quantity   int64
	EntryPrice float64
	ExitPrice  float64
	GrossPnL   float64 // (exit - entry) * quantity
	Fees       float64 // Buy-side + sell-side commission
	Tax        float64 // Sell-side transaction tax (real accounts)
	NetPnL     float64 // GrossPnL - Fees - Tax
	EntryTime  time.Time
	ExitTime   time.Time
	ExitReason ExitReason
}

// DailyRiskState is a snapshot of the per-account daily risk counters.
// LossLimitReached is a one-way latch for the remainder of the session: once
// true it stays true until the next day-rollover reset.
type DailyRiskState struct {
	TradingDay       string  // YYYY-MM-DD
	StartEquity      float64 // Account equity at the start of the trading day
	RealizedPnLToday float64 // Signed, net of fees and tax
	TradesToday      int     // Round trips closed today
	LossLimitReached bool
}
