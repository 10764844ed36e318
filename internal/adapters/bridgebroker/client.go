// Package bridgebroker implements ports.BrokerGateway against the broker's
// local bridge process over a websocket JSON protocol. The bridge owns the
// vendor's session and event plumbing; this adapter only correlates requests
// with responses and maps bridge error codes onto the standard port errors.
package bridgebroker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
)

// Config holds bridge connection settings. The credentials are forwarded to
// the bridge on login; the bridge owns the vendor certificate store.
type Config struct {
	URL            string // e.g. ws://127.0.0.1:9443/bridge
	AccountID      string
	AccountPass    string
	CertPass       string
	Logger         ports.Logger
	RequestTimeout time.Duration // default 10s
	WriteTimeout   time.Duration // default 5s
}

// request is one outbound bridge call.
type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response is the bridge's answer to a request, or an unsolicited push when
// Event is non-empty.
type response struct {
	ID     uint64          `json:"id,omitempty"`
	OK     bool            `json:"ok"`
	Error  *bridgeError    `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type bridgeError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Client is the websocket bridge gateway. Safe for concurrent use; writes are
// serialized on a mutex, reads run on a single loop goroutine.
type Client struct {
	cfg    Config
	logger ports.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan *response
	onTick  ports.TickHandler
	onFill  ports.FillHandler
	closed  bool
}

// New connects to the bridge and starts the read loop.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for bridge client")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: bridge URL must be set", ports.ErrConfigurationError)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	conn, _, err := websocket.DefaultDialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ports.ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		conn:    conn,
		pending: make(map[uint64]chan *response),
	}
	go c.readLoop()
	return c, nil
}

// Close shuts down the connection and fails all in-flight requests.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

// readLoop dispatches responses to their waiters and pushes to the handlers.
func (c *Client) readLoop() {
	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.mu.Lock()
			closed := c.closed
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.mu.Unlock()
			if !closed {
				c.logger.Error(context.Background(), err, "Bridge connection read failed")
			}
			return
		}

		if resp.Event != "" {
			c.dispatchPush(&resp)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- &resp
			close(ch)
		}
	}
}

func (c *Client) dispatchPush(resp *response) {
	switch resp.Event {
	case "tick":
		var tick domain.Tick
		if err := json.Unmarshal(resp.Data, &tick); err != nil {
			c.logger.Warn(context.Background(), "Malformed tick push from bridge", map[string]interface{}{"error": err.Error()})
			return
		}
		c.mu.Lock()
		handler := c.onTick
		c.mu.Unlock()
		if handler != nil {
			handler(tick)
		}
	case "fill":
		var fill domain.Fill
		if err := json.Unmarshal(resp.Data, &fill); err != nil {
			c.logger.Warn(context.Background(), "Malformed fill push from bridge", map[string]interface{}{"error": err.Error()})
			return
		}
		c.mu.Lock()
		handler := c.onFill
		c.mu.Unlock()
		if handler != nil {
			handler(fill)
		}
	default:
		c.logger.Debug(context.Background(), "Ignoring unknown bridge push", map[string]interface{}{"event": resp.Event})
	}
}

// call performs one request/response round trip.
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%w: marshal %s params: %v", ports.ErrInvalidRequest, method, err)
		}
		raw = data
	}
	id := c.nextID.Add(1)
	ch := make(chan *response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: bridge connection closed", ports.ErrConnectionFailed)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err := c.conn.WriteJSON(request{ID: id, Method: method, Params: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("%w: write %s: %v", ports.ErrConnectionFailed, method, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ports.ErrContextCanceled, method, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: %s after %s", ports.ErrTimeout, method, c.cfg.RequestTimeout)
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%w: bridge connection lost during %s", ports.ErrConnectionFailed, method)
		}
		if !resp.OK {
			return mapBridgeError(method, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%w: decode %s result: %v", ports.ErrUnknown, method, err)
			}
		}
		return nil
	}
}

// mapBridgeError wraps bridge error codes in the standard port errors so the
// throttle's retry policy can classify them.
func mapBridgeError(method string, be *bridgeError) error {
	if be == nil {
		return fmt.Errorf("%w: %s failed without detail", ports.ErrUnknown, method)
	}
	var base error
	switch be.Code {
	case "insufficient_funds":
		base = ports.ErrInsufficientFunds
	case "order_rejected", "invalid_price":
		base = ports.ErrOrderRejected
	case "order_not_found":
		base = ports.ErrOrderNotFound
	case "rate_limited":
		base = ports.ErrRateLimited
	case "auth_failed":
		base = ports.ErrAuthenticationFailed
	case "unavailable":
		base = ports.ErrBrokerUnavailable
	default:
		if be.Retryable {
			base = ports.ErrBrokerUnavailable
		} else {
			base = ports.ErrUnknown
		}
	}
	return fmt.Errorf("%w: %s: %s (%s)", base, method, be.Message, be.Code)
}

// --- ports.BrokerGateway implementation ---

func (c *Client) Login(ctx context.Context) error {
	params := map[string]string{
		"accountId":   c.cfg.AccountID,
		"accountPass": c.cfg.AccountPass,
		"certPass":    c.cfg.CertPass,
	}
	return c.call(ctx, "login", params, nil)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

func (c *Client) GetAccountBalance(ctx context.Context) (ports.AccountBalance, error) {
	var out struct {
		Cash       float64 `json:"cash"`
		StockValue float64 `json:"stockValue"`
	}
	if err := c.call(ctx, "balance", nil, &out); err != nil {
		return ports.AccountBalance{}, err
	}
	return ports.AccountBalance{Cash: out.Cash, StockValue: out.StockValue}, nil
}

func (c *Client) GetPositions(ctx context.Context) ([]*domain.Position, error) {
	var out []*domain.Position
	if err := c.call(ctx, "positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PlaceOrder(ctx context.Context, stockCode string, side domain.OrderSide, quantity int64, price float64) (*ports.OrderAck, error) {
	params := map[string]interface{}{
		"stockCode": stockCode,
		"side":      side,
		"quantity":  quantity,
	}
	if price > 0 {
		params["price"] = price
	}
	var out struct {
		OrderID string `json:"orderId"`
	}
	if err := c.call(ctx, "place_order", params, &out); err != nil {
		return nil, err
	}
	return &ports.OrderAck{OrderID: out.OrderID}, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.call(ctx, "cancel_order", map[string]string{"orderId": orderID}, nil)
}

func (c *Client) SubscribeQuotes(ctx context.Context, codes []string, handler ports.TickHandler) error {
	c.mu.Lock()
	c.onTick = handler
	c.mu.Unlock()
	return c.call(ctx, "subscribe_quotes", map[string][]string{"codes": codes}, nil)
}

func (c *Client) SubscribeFills(ctx context.Context, handler ports.FillHandler) error {
	c.mu.Lock()
	c.onFill = handler
	c.mu.Unlock()
	return c.call(ctx, "subscribe_fills", nil, nil)
}

func (c *Client) TopValueTraded(ctx context.Context, n int) ([]domain.MarketStat, error) {
	var out []domain.MarketStat
	if err := c.call(ctx, "top_value_traded", map[string]int{"count": n}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
