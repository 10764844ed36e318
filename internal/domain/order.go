package domain

import "time"

// PendingOrder tracks an order that was handed to the broker but has not yet
// reached a terminal state. Owned exclusively by the execution loop.
type PendingOrder struct {
	OrderID       string // Broker-assigned ID, may be empty until ack
	ClientOrderID string // Locally generated ID for correlation
	StockCode     string
	Side          OrderSide
	Quantity      int64
	Price         float64 // 0 means market order
	SubmittedAt   time.Time
	Status        OrderStatus
}

// IsMarket reports whether the order was submitted without a limit price.
func (o *PendingOrder) IsMarket() bool {
	return o.Price == 0
}
