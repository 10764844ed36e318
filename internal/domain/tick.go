package domain

import "time"

// Tick is one incoming price/volume update for a stock code from the broker.
type Tick struct {
	StockCode string
	Price     float64
	Volume    int64   // Cumulative traded volume for the day
	ChangePct float64 // Intraday change percentage
	At        time.Time
}

// Fill is the broker's confirmation that an order executed. This design
// assumes full fills only.
type Fill struct {
	OrderID   string
	StockCode string
	Side      OrderSide
	Quantity  int64
	Price     float64
	At        time.Time
}

// MarketStat is one row of the top-value-traded snapshot used by the surge
// detector. AvgVolume is the recent average volume the current volume is
// compared against.
type MarketStat struct {
	StockCode string
	Name      string
	Price     float64
	ChangePct float64
	Volume    int64
	AvgVolume int64
}
