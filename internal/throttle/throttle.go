// Package throttle serializes all outbound order and quote-registration calls
// against the broker's per-second and per-day call budgets. There is exactly
// one throttle per broker connection: the broker's limit is connection-wide,
// so all calls share one timestamp history regardless of symbol.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
)

// Config holds throttle tunables. Defaults are deliberately conservative,
// below the broker's documented ceilings, to absorb jitter.
type Config struct {
	MaxCallsPerSec  int           // max calls in any trailing 1s window (default 2)
	MinInterval     time.Duration // fixed minimum spacing between calls (default 500ms)
	SafetyMargin    time.Duration // added to window waits (default 100ms)
	MaxRetries      int           // retries on transient failure (default 3)
	DailyCallBudget int           // local per-day order-call ceiling (default 500)
	QuoteBatchSize  int           // max codes per quote-registration call (default 50)
	QuoteBatchPause time.Duration // pause between registration batches (default 2s)
}

func (c *Config) applyDefaults() {
	if c.MaxCallsPerSec <= 0 {
		c.MaxCallsPerSec = 2
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 500 * time.Millisecond
	}
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = 100 * time.Millisecond
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.DailyCallBudget <= 0 {
		c.DailyCallBudget = 500
	}
	if c.QuoteBatchSize <= 0 {
		c.QuoteBatchSize = 50
	}
	if c.QuoteBatchPause <= 0 {
		c.QuoteBatchPause = 2 * time.Second
	}
}

// Throttle rate-limits and retries calls into the broker gateway.
type Throttle struct {
	cfg     Config
	gateway ports.BrokerGateway
	logger  ports.Logger

	// Injected for tests; default to the real clock.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu         sync.Mutex
	history    []time.Time // timestamps of recent calls, oldest first
	callsToday int
	day        string // YYYY-MM-DD of callsToday
}

// New creates the single connection-wide throttle.
func New(cfg Config, gateway ports.BrokerGateway, logger ports.Logger) (*Throttle, error) {
	if gateway == nil || logger == nil {
		return nil, fmt.Errorf("gateway and logger are required for throttle")
	}
	cfg.applyDefaults()
	return &Throttle{
		cfg:     cfg,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SubmitOrder submits an order through the rate limiter with bounded retry on
// transient failures. Definitive broker rejections are returned immediately
// without any retry. Once the daily call budget is exhausted, BUY orders are
// rejected locally, without touching the broker, wrapped in
// ports.ErrDailyCallBudget; SELL orders are exempt so risk-reducing exits can
// always go out.
func (t *Throttle) SubmitOrder(ctx context.Context, stockCode string, side domain.OrderSide, quantity int64, price float64) (string, error) {
	if side == domain.Buy {
		if err := t.consumeDailyBudget(); err != nil {
			return "", err
		}
	}

	bo := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 5 * time.Second, Factor: 2}
	var lastErr error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := bo.Duration()
			t.logger.Warn(ctx, "Retrying order submission after transient failure", map[string]interface{}{
				"stockCode": stockCode, "attempt": attempt, "wait": wait.String(), "lastError": lastErr.Error(),
			})
			if err := t.sleep(ctx, wait); err != nil {
				return "", fmt.Errorf("%w: %v", ports.ErrContextCanceled, err)
			}
		}
		if err := t.waitForSlot(ctx); err != nil {
			return "", err
		}

		ack, err := t.gateway.PlaceOrder(ctx, stockCode, side, quantity, price)
		if err == nil {
			return ack.OrderID, nil
		}
		if !ports.IsTransient(err) {
			// Definitive rejection (insufficient funds, invalid price, ...):
			// never retried.
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("order submission failed after %d retries: %w", t.cfg.MaxRetries, lastErr)
}

// CancelOrder cancels an order through the rate limiter. Cancels are not
// retried: a cancel racing a fill is resolved by the fill callback.
func (t *Throttle) CancelOrder(ctx context.Context, orderID string) error {
	if err := t.waitForSlot(ctx); err != nil {
		return err
	}
	return t.gateway.CancelOrder(ctx, orderID)
}

// RegisterQuotes subscribes codes for real-time ticks, splitting large lists
// into sequential batches with a pause in between so the real-time-data
// subsystem is not overwhelmed. Registration calls share the order throttle's
// timestamp history.
func (t *Throttle) RegisterQuotes(ctx context.Context, codes []string, handler ports.TickHandler) error {
	for start := 0; start < len(codes); start += t.cfg.QuoteBatchSize {
		end := start + t.cfg.QuoteBatchSize
		if end > len(codes) {
			end = len(codes)
		}
		if start > 0 {
			if err := t.sleep(ctx, t.cfg.QuoteBatchPause); err != nil {
				return fmt.Errorf("%w: %v", ports.ErrContextCanceled, err)
			}
		}
		if err := t.waitForSlot(ctx); err != nil {
			return err
		}
		if err := t.gateway.SubscribeQuotes(ctx, codes[start:end], handler); err != nil {
			return fmt.Errorf("quote registration failed for batch %d-%d: %w", start, end, err)
		}
		t.logger.Debug(ctx, "Quote batch registered", map[string]interface{}{
			"from": start, "to": end, "total": len(codes),
		})
	}
	return nil
}

// CallsToday returns the number of budget-counted calls made today.
func (t *Throttle) CallsToday() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(t.now())
	return t.callsToday
}

// consumeDailyBudget counts one order call against today's budget, rejecting
// locally once the ceiling is reached.
func (t *Throttle) consumeDailyBudget() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(t.now())
	if t.callsToday >= t.cfg.DailyCallBudget {
		return fmt.Errorf("%w: %d calls made", ports.ErrDailyCallBudget, t.callsToday)
	}
	t.callsToday++
	return nil
}

func (t *Throttle) rolloverLocked(now time.Time) {
	day := now.Format("2006-01-02")
	if day != t.day {
		t.day = day
		t.callsToday = 0
	}
}

// waitForSlot blocks until a call is allowed under both the sliding 1-second
// window and the minimum inter-call spacing, then records the call timestamp.
// The wait duration is computed under the lock but the sleep itself happens
// with the lock released.
func (t *Throttle) waitForSlot(ctx context.Context) error {
	for {
		t.mu.Lock()
		now := t.now()
		wait := t.nextWaitLocked(now)
		if wait <= 0 {
			t.history = append(t.history, now)
			t.trimHistoryLocked(now)
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()

		if err := t.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w: %v", ports.ErrContextCanceled, err)
		}
	}
}

// nextWaitLocked returns how long the caller must wait before the next call is
// permitted, or <= 0 if it may proceed now. Requires t.mu.
func (t *Throttle) nextWaitLocked(now time.Time) time.Duration {
	var wait time.Duration

	// Fixed minimum spacing regardless of window occupancy.
	if n := len(t.history); n > 0 {
		if since := now.Sub(t.history[n-1]); since < t.cfg.MinInterval {
			wait = t.cfg.MinInterval - since
		}
	}

	// Sliding 1-second window: if full, wait until the oldest in-window call
	// ages out, plus a small safety margin.
	windowStart := now.Add(-time.Second)
	inWindow := 0
	oldest := time.Time{}
	for _, ts := range t.history {
		if ts.After(windowStart) {
			if inWindow == 0 {
				oldest = ts
			}
			inWindow++
		}
	}
	if inWindow >= t.cfg.MaxCallsPerSec {
		windowWait := oldest.Add(time.Second).Sub(now) + t.cfg.SafetyMargin
		if windowWait > wait {
			wait = windowWait
		}
	}
	return wait
}

// trimHistoryLocked drops timestamps too old to matter. Requires t.mu.
func (t *Throttle) trimHistoryLocked(now time.Time) {
	cutoff := now.Add(-2 * time.Second)
	idx := 0
	for idx < len(t.history) && !t.history[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		t.history = append(t.history[:0], t.history[idx:]...)
	}
}
