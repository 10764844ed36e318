package domain

import "time"

// Position represents one open holding in one stock for one account.
// A given stock code maps to at most one open position; the risk manager
// enforces this invariant.
type Position struct {
	StockCode       string    // Exchange ticker (e.g., "005930")
	StockName       string    // Display name
	Quantity        int64     // Number of shares, always >= 1 once open
	BuyPrice        float64   // Average entry price
	CurrentPrice    float64   // Last known mark, updated on every tick
	StopLossPrice   float64   // Derived at entry from the configured percentage
	TakeProfitPrice float64   // Derived at entry from the configured percentage
	OpenedAt        time.Time // Timestamp of the confirmed entry fill
}

// Notional returns the current market value of the position.
func (p *Position) Notional() float64 {
	return p.CurrentPrice * float64(p.Quantity)
}

// EntryNotional returns the cost basis of the position (entry price * quantity).
func (p *Position) EntryNotional() float64 {
	return p.BuyPrice * float64(p.Quantity)
}
