package ports

import (
	"context"

	"stockbot/internal/domain"
)

// AccountBalance holds the cash and mark-to-market stock value of the account.
type AccountBalance struct {
	Cash       float64
	StockValue float64
}

// Equity returns total account equity (cash + stock value).
func (b AccountBalance) Equity() float64 {
	return b.Cash + b.StockValue
}

// OrderAck is the broker's immediate response to an order submission. A
// definitive rejection is returned as an error from PlaceOrder, not here.
type OrderAck struct {
	OrderID string
}

// TickHandler receives price updates for subscribed stock codes.
type TickHandler func(tick domain.Tick)

// FillHandler receives order execution confirmations.
type FillHandler func(fill domain.Fill)

// BrokerGateway defines the narrow interface to the broker's trading API.
// This abstraction allows a paper/simulated implementation and a real bridge
// implementation to be swapped without touching the execution loop.
//
// The broker enforces a connection-wide per-second call ceiling and a per-day
// query ceiling; callers must route all order and quote-registration calls
// through the order throttle to stay under them.
type BrokerGateway interface {
	// Login authenticates the session. Must be called before any other method.
	Login(ctx context.Context) error

	// GetAccountBalance retrieves current cash and stock value.
	GetAccountBalance(ctx context.Context) (AccountBalance, error)

	// GetPositions retrieves the broker's view of open holdings, used to sync
	// state at startup.
	GetPositions(ctx context.Context) ([]*domain.Position, error)

	// PlaceOrder submits an order. A zero price means market order.
	// Definitive rejections (e.g. insufficient funds) are returned wrapped in
	// ErrInsufficientFunds or ErrOrderRejected and must not be retried;
	// transient failures wrap ErrBrokerUnavailable or ErrConnectionFailed.
	PlaceOrder(ctx context.Context, stockCode string, side domain.OrderSide, quantity int64, price float64) (*OrderAck, error)

	// CancelOrder cancels an open order by its broker-assigned ID.
	CancelOrder(ctx context.Context, orderID string) error

	// SubscribeQuotes registers the given codes for real-time tick delivery.
	SubscribeQuotes(ctx context.Context, codes []string, handler TickHandler) error

	// SubscribeFills registers the handler invoked on order executions.
	// For a single stock code, fills arrive in submission order (broker
	// guarantee; this is a documented trust boundary).
	SubscribeFills(ctx context.Context, handler FillHandler) error

	// TopValueTraded retrieves the top-n stocks by traded value with the
	// volume statistics the surge detector needs.
	TopValueTraded(ctx context.Context, n int) ([]domain.MarketStat, error)

	// Ping checks connectivity to the broker.
	Ping(ctx context.Context) error
}
