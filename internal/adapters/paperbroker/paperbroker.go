// Package paperbroker implements ports.BrokerGateway against an in-memory
// simulated account: no real capital at risk, immediate full fills at the
// requested or last-tick price. It backs paper-mode runs and tests.
package paperbroker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
)

// Config holds the simulated account's starting state.
type Config struct {
	StartingCash float64
	Logger       ports.Logger
	// FillDelay simulates the gap between submission ack and fill callback.
	// Zero means fills are delivered synchronously from PlaceOrder.
	FillDelay time.Duration
}

// Broker is the simulated gateway. Safe for concurrent use.
type Broker struct {
	logger    ports.Logger
	fillDelay time.Duration

	mu         sync.Mutex
	loggedIn   bool
	cash       float64
	holdings   map[string]*domain.Position
	lastPrice  map[string]float64
	subscribed map[string]bool
	onTick     ports.TickHandler
	onFill     ports.FillHandler
	topList    []domain.MarketStat
}

// New creates a simulated broker with the given starting cash.
func New(cfg Config) (*Broker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for paper broker")
	}
	if cfg.StartingCash <= 0 {
		return nil, fmt.Errorf("starting cash must be positive")
	}
	return &Broker{
		logger:     cfg.Logger,
		fillDelay:  cfg.FillDelay,
		cash:       cfg.StartingCash,
		holdings:   make(map[string]*domain.Position),
		lastPrice:  make(map[string]float64),
		subscribed: make(map[string]bool),
	}, nil
}

// Login marks the session active.
func (b *Broker) Login(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loggedIn = true
	b.logger.Info(ctx, "Paper broker session started")
	return nil
}

// Ping reports whether the session is active.
func (b *Broker) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loggedIn {
		return fmt.Errorf("%w: not logged in", ports.ErrConnectionFailed)
	}
	return nil
}

// GetAccountBalance returns cash plus mark-to-market holdings value.
func (b *Broker) GetAccountBalance(ctx context.Context) (ports.AccountBalance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stockValue := 0.0
	for code, pos := range b.holdings {
		price := b.lastPrice[code]
		if price == 0 {
			price = pos.BuyPrice
		}
		stockValue += price * float64(pos.Quantity)
	}
	return ports.AccountBalance{Cash: b.cash, StockValue: stockValue}, nil
}

// GetPositions returns copies of the simulated holdings.
func (b *Broker) GetPositions(ctx context.Context) ([]*domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*domain.Position, 0, len(b.holdings))
	for _, pos := range b.holdings {
		cp := *pos
		out = append(out, &cp)
	}
	return out, nil
}

// PlaceOrder validates funds/holdings, then delivers a full fill at the
// requested price (or the last tick for market orders).
func (b *Broker) PlaceOrder(ctx context.Context, stockCode string, side domain.OrderSide, quantity int64, price float64) (*ports.OrderAck, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ports.ErrInvalidRequest)
	}

	b.mu.Lock()
	if !b.loggedIn {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: not logged in", ports.ErrConnectionFailed)
	}

	fillPrice := price
	if fillPrice == 0 {
		fillPrice = b.lastPrice[stockCode]
	}
	if fillPrice <= 0 {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: no market price known for %s", ports.ErrOrderRejected, stockCode)
	}

	notional := fillPrice * float64(quantity)
	switch side {
	case domain.Buy:
		if notional > b.cash {
			b.mu.Unlock()
			return nil, fmt.Errorf("%w: need %.0f, have %.0f", ports.ErrInsufficientFunds, notional, b.cash)
		}
		b.cash -= notional
		if pos, ok := b.holdings[stockCode]; ok {
			// Average up; the core never layers, but the simulator stays
			// consistent if asked to.
			total := pos.BuyPrice*float64(pos.Quantity) + notional
			pos.Quantity += quantity
			pos.BuyPrice = total / float64(pos.Quantity)
		} else {
			b.holdings[stockCode] = &domain.Position{
				StockCode: stockCode, Quantity: quantity, BuyPrice: fillPrice,
				CurrentPrice: fillPrice, OpenedAt: time.Now(),
			}
		}
	case domain.Sell:
		pos, ok := b.holdings[stockCode]
		if !ok || pos.Quantity < quantity {
			b.mu.Unlock()
			return nil, fmt.Errorf("%w: insufficient holdings of %s", ports.ErrOrderRejected, stockCode)
		}
		b.cash += notional
		pos.Quantity -= quantity
		if pos.Quantity == 0 {
			delete(b.holdings, stockCode)
		}
	default:
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: unknown side %q", ports.ErrInvalidRequest, side)
	}

	orderID := uuid.NewString()
	onFill := b.onFill
	delay := b.fillDelay
	b.mu.Unlock()

	fill := domain.Fill{
		OrderID:   orderID,
		StockCode: stockCode,
		Side:      side,
		Quantity:  quantity,
		Price:     fillPrice,
		At:        time.Now(),
	}
	if onFill != nil {
		if delay > 0 {
			go func() {
				time.Sleep(delay)
				onFill(fill)
			}()
		} else {
			onFill(fill)
		}
	}
	return &ports.OrderAck{OrderID: orderID}, nil
}

// CancelOrder is a no-op: paper fills are immediate, so there is never an
// open order to cancel.
func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	return fmt.Errorf("%w: order %s", ports.ErrOrderNotFound, orderID)
}

// SubscribeQuotes registers codes for tick delivery via InjectTick.
func (b *Broker) SubscribeQuotes(ctx context.Context, codes []string, handler ports.TickHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTick = handler
	for _, code := range codes {
		b.subscribed[code] = true
	}
	return nil
}

// SubscribeFills registers the fill callback.
func (b *Broker) SubscribeFills(ctx context.Context, handler ports.FillHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFill = handler
	return nil
}

// TopValueTraded returns the configured market snapshot (see SetTopList).
func (b *Broker) TopValueTraded(ctx context.Context, n int) ([]domain.MarketStat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.topList) {
		n = len(b.topList)
	}
	out := make([]domain.MarketStat, n)
	copy(out, b.topList[:n])
	return out, nil
}

// SetTopList configures the snapshot served by TopValueTraded.
func (b *Broker) SetTopList(stats []domain.MarketStat) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topList = append([]domain.MarketStat(nil), stats...)
}

// InjectTick feeds a price update into the simulator, forwarding it to the
// quote subscriber when the code is registered. Tests and paper-mode feeds
// drive the market through this.
func (b *Broker) InjectTick(tick domain.Tick) {
	b.mu.Lock()
	b.lastPrice[tick.StockCode] = tick.Price
	if pos, ok := b.holdings[tick.StockCode]; ok {
		pos.CurrentPrice = tick.Price
	}
	handler := b.onTick
	subscribed := b.subscribed[tick.StockCode]
	b.mu.Unlock()

	if handler != nil && subscribed {
		handler(tick)
	}
}
