// Package app hosts the execution loop: the orchestrator that turns price
// ticks into risk-validated, throttled broker orders and keeps the position
// state machine per stock code. Ticks and fills arrive asynchronously from the
// broker gateway but are serialized onto one consumer goroutine through a
// bounded event channel; nothing in this package touches shared state from
// more than one goroutine.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
	"stockbot/internal/risk"
	"stockbot/internal/throttle"
)

const (
	maxPriceWindow  = 500 // rolling price history per code
	eventQueueSize  = 4096
	houseKeepPeriod = time.Second
)

// Config holds execution-loop parameters.
type Config struct {
	WatchCodes             []string
	OrderTimeout           time.Duration // pending order considered indeterminate after this (default 30s)
	MaxConsecutiveFailures int           // circuit breaker threshold (default 5)
	TickSnapshotInterval   time.Duration // per-code persistence sampling (default 1m)
	TickRetention          time.Duration // snapshots older than this are pruned at rollover (default 7d)
}

func (c *Config) applyDefaults() {
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 30 * time.Second
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 5
	}
	if c.TickSnapshotInterval <= 0 {
		c.TickSnapshotInterval = time.Minute
	}
	if c.TickRetention <= 0 {
		c.TickRetention = 7 * 24 * time.Hour
	}
}

// event is one unit of work for the consumer goroutine. Exactly one field is
// set.
type event struct {
	tick  *domain.Tick
	fill  *domain.Fill
	surge *surgeRequest
}

// surgeRequest carries an admitted surge candidate into the loop; done is
// closed (with the admission error, if any) once processing finishes so the
// admission gate can hold its single-candidate flag until then.
type surgeRequest struct {
	cand domain.SurgeCandidate
	done chan error
}

// TradingService orchestrates the signal-to-order execution loop.
type TradingService struct {
	cfg       Config
	logger    ports.Logger
	gateway   ports.BrokerGateway
	riskMgr   *risk.Manager
	evaluator ports.SignalEvaluator
	throttle  *throttle.Throttle
	tradeRepo ports.TradeRepository
	tickRepo  ports.TickRepository
	notifier  ports.Notifier
	sentiment ports.SentimentProvider // optional

	// Consumer-goroutine state. Not locked: single owner.
	codes          map[string]*codeRuntime
	equity         float64
	tradingDay     string
	consecFailures int
	entriesHalted  bool
	haltReason     string
	budgetStopped  bool // daily call budget exhausted, reset on rollover

	events chan event
}

// NewTradingService creates the execution loop. The sentiment provider is
// optional; every other dependency is required.
func NewTradingService(
	cfg Config,
	logger ports.Logger,
	gateway ports.BrokerGateway,
	riskMgr *risk.Manager,
	evaluator ports.SignalEvaluator,
	thr *throttle.Throttle,
	tradeRepo ports.TradeRepository,
	tickRepo ports.TickRepository,
	notifier ports.Notifier,
	sentiment ports.SentimentProvider,
) (*TradingService, error) {
	if logger == nil || gateway == nil || riskMgr == nil || evaluator == nil ||
		thr == nil || tradeRepo == nil || tickRepo == nil || notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if len(cfg.WatchCodes) == 0 {
		return nil, fmt.Errorf("at least one watch code is required")
	}
	cfg.applyDefaults()
	s := &TradingService{
		cfg:       cfg,
		logger:    logger,
		gateway:   gateway,
		riskMgr:   riskMgr,
		evaluator: evaluator,
		throttle:  thr,
		tradeRepo: tradeRepo,
		tickRepo:  tickRepo,
		notifier:  notifier,
		sentiment: sentiment,
		codes:     make(map[string]*codeRuntime, len(cfg.WatchCodes)),
		events:    make(chan event, eventQueueSize),
	}
	// Runtimes for the watch list exist from construction so ticks for watched
	// codes are never dropped, whatever the startup path.
	for _, code := range cfg.WatchCodes {
		s.runtimeFor(code)
	}
	return s, nil
}

// Start logs in, synchronizes state, subscribes to quotes and fills, then
// consumes events until the context is cancelled or a shutdown signal arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.initialize(ctx); err != nil {
		return err
	}

	s.notify(ctx, domain.Event{
		Type:    domain.EventLifecycle,
		Message: "trading service started",
		At:      time.Now(),
		Fields:  map[string]interface{}{"watchCodes": len(s.cfg.WatchCodes), "equity": s.equity},
	})

	err := s.consume(ctx)

	s.notify(context.Background(), domain.Event{
		Type:    domain.EventLifecycle,
		Message: "trading service stopped",
		At:      time.Now(),
	})
	s.logger.Info(ctx, "Trading service stopped")
	return err
}

// initialize performs the startup sequence: login, balance, position sync,
// daily P&L restore, fill subscription and quote registration.
func (s *TradingService) initialize(ctx context.Context) error {
	if err := s.gateway.Login(ctx); err != nil {
		return fmt.Errorf("broker login failed: %w", err)
	}
	s.logger.Info(ctx, "Broker login successful")

	balance, err := s.gateway.GetAccountBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch account balance: %w", err)
	}
	s.equity = balance.Equity()
	now := time.Now()
	s.tradingDay = now.Format("2006-01-02")
	s.riskMgr.RolloverDay(s.equity, now)
	s.logger.Info(ctx, "Account state loaded", map[string]interface{}{
		"cash": balance.Cash, "stockValue": balance.StockValue, "equity": s.equity,
	})

	// Restore today's realized P&L and trade count so a mid-day restart keeps
	// the daily loss picture (and latch) intact.
	realized, err := s.tradeRepo.SumNetPnLToday(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore today's realized P&L: %w", err)
	}
	tradeCount, err := s.tradeRepo.CountToday(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore today's trade count: %w", err)
	}
	s.riskMgr.RestoreDailyState(realized, tradeCount)
	s.logger.Info(ctx, "Daily state restored", map[string]interface{}{
		"realized": realized, "tradesToday": tradeCount,
	})

	// Sync open positions from the broker's view.
	positions, err := s.gateway.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch open positions: %w", err)
	}
	for _, pos := range positions {
		if err := s.riskMgr.SyncPosition(ctx, pos); err != nil {
			s.logger.Warn(ctx, "Skipping position sync", map[string]interface{}{
				"stockCode": pos.StockCode, "reason": err.Error(),
			})
			continue
		}
		rt := s.runtimeFor(pos.StockCode)
		rt.name = pos.StockName
		rt.state = stateHolding
	}

	if err := s.gateway.SubscribeFills(ctx, s.enqueueFill); err != nil {
		return fmt.Errorf("failed to subscribe to fills: %w", err)
	}

	// Register the watch list plus any synced holdings, batched by the
	// throttle.
	codes := make([]string, 0, len(s.cfg.WatchCodes)+len(s.codes))
	seen := make(map[string]bool, len(s.cfg.WatchCodes))
	for _, code := range s.cfg.WatchCodes {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
			s.runtimeFor(code)
		}
	}
	for code := range s.codes {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	if err := s.throttle.RegisterQuotes(ctx, codes, s.enqueueTick); err != nil {
		return fmt.Errorf("failed to register quotes: %w", err)
	}
	s.logger.Info(ctx, "Quotes registered", map[string]interface{}{"codes": len(codes)})
	return nil
}

// consume is the single-owner event loop. All state mutation happens here.
func (s *TradingService) consume(ctx context.Context) error {
	housekeeping := time.NewTicker(houseKeepPeriod)
	defer housekeeping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-s.events:
			switch {
			case evt.tick != nil:
				s.handleTick(ctx, *evt.tick)
			case evt.fill != nil:
				s.handleFill(ctx, *evt.fill)
			case evt.surge != nil:
				evt.surge.done <- s.handleSurge(ctx, evt.surge.cand)
				close(evt.surge.done)
			}
		case <-housekeeping.C:
			s.checkPendingTimeouts(ctx, time.Now())
			s.checkDayRollover(ctx, time.Now())
		}
	}
}

// enqueueTick is invoked from the gateway's callback goroutine. Ticks are
// droppable under backpressure; a skipped tick is recovered by the next one.
func (s *TradingService) enqueueTick(tick domain.Tick) {
	select {
	case s.events <- event{tick: &tick}:
	default:
		s.logger.Warn(context.Background(), "Event queue full, dropping tick", map[string]interface{}{
			"stockCode": tick.StockCode,
		})
	}
}

// enqueueFill is invoked from the gateway's callback goroutine. Fills are
// never dropped: losing one would desynchronize the position table.
func (s *TradingService) enqueueFill(fill domain.Fill) {
	s.events <- event{fill: &fill}
}

// AdmitSurge feeds a surge candidate into the execution loop as a synthetic
// BUY and blocks until the loop has processed it, so the caller's
// single-candidate admission gate stays held for the whole registration plus
// entry-submission sequence.
func (s *TradingService) AdmitSurge(ctx context.Context, cand domain.SurgeCandidate) error {
	req := &surgeRequest{cand: cand, done: make(chan error, 1)}
	select {
	case s.events <- event{surge: req}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TradingService) runtimeFor(code string) *codeRuntime {
	rt, ok := s.codes[code]
	if !ok {
		rt = &codeRuntime{stockCode: code, state: stateIdle}
		s.codes[code] = rt
	}
	return rt
}

// handleTick drives the per-code state machine for one price update.
func (s *TradingService) handleTick(ctx context.Context, tick domain.Tick) {
	rt, ok := s.codes[tick.StockCode]
	if !ok {
		// Tick for a code we never registered; ignore.
		return
	}

	rt.pushPrice(tick.Price, maxPriceWindow)
	s.riskMgr.UpdatePrice(tick.StockCode, tick.Price)
	s.snapshotTick(ctx, rt, tick)

	switch rt.state {
	case stateEntryPending, stateExitPending:
		// Re-entrancy rule: while an order is pending for this code, further
		// signals are ignored, not queued.
		return

	case stateHolding:
		if reason, triggered := s.riskMgr.CheckExitTriggers(tick.StockCode); triggered {
			s.logger.Info(ctx, "Exit trigger fired", map[string]interface{}{
				"stockCode": tick.StockCode, "reason": reason, "price": tick.Price,
			})
			s.notify(ctx, domain.Event{
				Type:      domain.EventRisk,
				StockCode: tick.StockCode,
				Message:   string(reason) + " triggered",
				At:        tick.At,
				Fields:    map[string]interface{}{"price": tick.Price},
			})
			s.submitExit(ctx, rt, reason)
			return
		}
		result := s.evaluateSignal(ctx, rt, true)
		if result.Signal == domain.SignalSell {
			s.logger.Info(ctx, "Strategy SELL for held position", map[string]interface{}{
				"stockCode": tick.StockCode, "reason": result.Reason, "strength": result.Strength,
			})
			s.submitExit(ctx, rt, domain.ExitSignal)
		}

	case stateIdle:
		if s.entriesBlocked(ctx) {
			return
		}
		result := s.evaluateSignal(ctx, rt, false)
		if result.Signal != domain.SignalBuy {
			return
		}
		s.logger.Info(ctx, "Strategy BUY signal", map[string]interface{}{
			"stockCode": tick.StockCode, "reason": result.Reason, "strength": result.Strength,
		})
		s.tryEnter(ctx, rt, tick.Price)
	}
}

// evaluateSignal calls the strategy layer with a panic boundary: a fault in
// indicator or strategy computation must not crash the loop and is treated as
// an implicit HOLD for this tick.
func (s *TradingService) evaluateSignal(ctx context.Context, rt *codeRuntime, isHolding bool) (result domain.SignalResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, fmt.Errorf("strategy panic: %v", r), "Strategy evaluation failed, holding", map[string]interface{}{
				"stockCode": rt.stockCode,
			})
			result = domain.Hold("strategy fault")
		}
	}()

	var newsScore *int
	if s.sentiment != nil {
		if score, ok := s.sentiment.ScoreFor(ctx, rt.stockCode); ok {
			newsScore = &score
		}
	}
	return s.evaluator.Evaluate(ctx, rt.stockCode, rt.prices, isHolding, newsScore)
}

// tryEnter sizes, validates and submits a BUY for the code. Every rejection
// is logged and the loop continues; only submission success moves the state
// machine to ENTRY_PENDING.
func (s *TradingService) tryEnter(ctx context.Context, rt *codeRuntime, price float64) {
	quantity := s.riskMgr.SizePosition(s.equity, price)
	if quantity == 0 {
		s.logger.Debug(ctx, "Position size computed as zero, not entering", map[string]interface{}{
			"stockCode": rt.stockCode, "equity": s.equity, "price": price,
		})
		return
	}

	decision := s.riskMgr.ValidateEntry(ctx, rt.stockCode, quantity, price)
	if !decision.Approved {
		s.logger.Warn(ctx, "Entry rejected by risk manager", map[string]interface{}{
			"stockCode": rt.stockCode, "reason": decision.Reason,
		})
		return
	}

	s.submitOrder(ctx, rt, domain.Buy, quantity, "")
}

// submitExit validates and submits a full exit of the held position.
func (s *TradingService) submitExit(ctx context.Context, rt *codeRuntime, reason domain.ExitReason) {
	pos, ok := s.riskMgr.PositionFor(rt.stockCode)
	if !ok {
		s.logger.Warn(ctx, "Exit requested but no position held", map[string]interface{}{"stockCode": rt.stockCode})
		rt.state = stateIdle
		return
	}
	decision := s.riskMgr.ValidateExit(ctx, rt.stockCode, pos.Quantity)
	if !decision.Approved {
		s.logger.Warn(ctx, "Exit rejected by risk manager", map[string]interface{}{
			"stockCode": rt.stockCode, "reason": decision.Reason,
		})
		return
	}
	s.submitOrder(ctx, rt, domain.Sell, pos.Quantity, reason)
}

// submitOrder hands an order to the throttle and advances the state machine
// on success. Full market orders only in this design.
func (s *TradingService) submitOrder(ctx context.Context, rt *codeRuntime, side domain.OrderSide, quantity int64, exitReason domain.ExitReason) {
	orderID, err := s.throttle.SubmitOrder(ctx, rt.stockCode, side, quantity, 0)
	if err != nil {
		s.handleSubmitError(ctx, rt, side, err)
		return
	}

	s.consecFailures = 0
	rt.pending = &domain.PendingOrder{
		OrderID:       orderID,
		ClientOrderID: uuid.NewString(),
		StockCode:     rt.stockCode,
		Side:          side,
		Quantity:      quantity,
		SubmittedAt:   time.Now(),
		Status:        domain.OrderSubmitted,
	}
	rt.pendingSince = rt.pending.SubmittedAt
	rt.reconcileWarned = false
	if side == domain.Buy {
		rt.state = stateEntryPending
	} else {
		rt.state = stateExitPending
		rt.pendingExit = exitReason
	}
	s.logger.Info(ctx, "Order submitted", map[string]interface{}{
		"stockCode": rt.stockCode, "side": side, "quantity": quantity, "orderID": orderID,
		"market": rt.pending.IsMarket(), "state": rt.state.String(),
	})
}

// handleSubmitError classifies a failed submission. The state machine stays
// where it was (IDLE for entries, HOLDING for exits) so a later tick can
// re-attempt from scratch; failed submissions are never auto-resubmitted.
func (s *TradingService) handleSubmitError(ctx context.Context, rt *codeRuntime, side domain.OrderSide, err error) {
	switch {
	case errors.Is(err, ports.ErrDailyCallBudget):
		s.budgetStopped = true
		s.logger.Warn(ctx, "Daily call budget exhausted, stopping new entries for today", map[string]interface{}{
			"stockCode": rt.stockCode,
		})
		s.notify(ctx, domain.Event{
			Type:    domain.EventRisk,
			Message: "daily call budget exhausted, no further entries today",
			At:      time.Now(),
		})

	case errors.Is(err, ports.ErrInsufficientFunds) || errors.Is(err, ports.ErrOrderRejected):
		// Definitive rejection; nothing to retry.
		s.logger.Warn(ctx, "Order definitively rejected by broker", map[string]interface{}{
			"stockCode": rt.stockCode, "side": side, "error": err.Error(),
		})

	default:
		s.consecFailures++
		s.logger.Error(ctx, err, "Order submission failed", map[string]interface{}{
			"stockCode": rt.stockCode, "side": side, "consecutiveFailures": s.consecFailures,
		})
		if s.consecFailures >= s.cfg.MaxConsecutiveFailures && !s.entriesHalted {
			s.entriesHalted = true
			s.haltReason = fmt.Sprintf("%d consecutive submission failures", s.consecFailures)
			s.logger.Error(ctx, err, "Circuit breaker open: halting new entries, manual intervention required", map[string]interface{}{
				"consecutiveFailures": s.consecFailures,
			})
			s.notify(ctx, domain.Event{
				Type:    domain.EventRisk,
				Message: "automated trading halted, manual intervention required",
				At:      time.Now(),
				Fields:  map[string]interface{}{"reason": s.haltReason},
			})
		}
	}
}

// entriesBlocked reports whether new entries are currently disallowed. Exits
// are never blocked by these conditions.
func (s *TradingService) entriesBlocked(ctx context.Context) bool {
	if s.entriesHalted || s.budgetStopped {
		return true
	}
	return s.riskMgr.DailyState().LossLimitReached
}

// handleFill processes an execution confirmation. Positions are recorded here,
// on broker confirmation, never optimistically at submission time.
func (s *TradingService) handleFill(ctx context.Context, fill domain.Fill) {
	rt, ok := s.codes[fill.StockCode]
	if !ok || rt.pending == nil {
		s.logger.Warn(ctx, "Fill for unknown or non-pending order", map[string]interface{}{
			"stockCode": fill.StockCode, "orderID": fill.OrderID,
		})
		return
	}
	if rt.pending.OrderID != "" && fill.OrderID != "" && rt.pending.OrderID != fill.OrderID {
		s.logger.Warn(ctx, "Fill order ID does not match pending order", map[string]interface{}{
			"stockCode": fill.StockCode, "pendingOrderID": rt.pending.OrderID, "fillOrderID": fill.OrderID,
		})
		return
	}

	switch {
	case rt.state == stateEntryPending && fill.Side == domain.Buy:
		s.completeEntry(ctx, rt, fill)
	case rt.state == stateExitPending && fill.Side == domain.Sell:
		s.completeExit(ctx, rt, fill)
	default:
		s.logger.Warn(ctx, "Fill does not match state machine", map[string]interface{}{
			"stockCode": fill.StockCode, "state": rt.state.String(), "side": fill.Side,
		})
	}
}

func (s *TradingService) completeEntry(ctx context.Context, rt *codeRuntime, fill domain.Fill) {
	rt.pending.Status = domain.OrderFilled
	pos, err := s.riskMgr.OpenPosition(ctx, rt.stockCode, rt.name, fill.Quantity, fill.Price, fill.At)
	if err != nil {
		// Should not happen given the entry validation; surface loudly and
		// fall back to IDLE so the code is not wedged.
		s.logger.Error(ctx, err, "Failed to record confirmed entry fill", map[string]interface{}{
			"stockCode": rt.stockCode,
		})
		rt.pending = nil
		rt.state = stateIdle
		return
	}
	rt.pending = nil
	rt.state = stateHolding

	s.notify(ctx, domain.Event{
		Type:      domain.EventTradeExecuted,
		StockCode: rt.stockCode,
		Message:   "buy filled",
		At:        fill.At,
		Fields: map[string]interface{}{
			"side": domain.Buy, "quantity": fill.Quantity, "price": fill.Price,
			"stopLoss": pos.StopLossPrice, "takeProfit": pos.TakeProfitPrice,
		},
	})
}

func (s *TradingService) completeExit(ctx context.Context, rt *codeRuntime, fill domain.Fill) {
	rt.pending.Status = domain.OrderFilled
	reason := rt.pendingExit
	trade, err := s.riskMgr.ClosePosition(ctx, rt.stockCode, fill.Price, fill.At, reason)
	rt.pending = nil
	rt.pendingExit = ""
	rt.state = stateIdle
	if err != nil {
		s.logger.Error(ctx, err, "Failed to settle confirmed exit fill", map[string]interface{}{
			"stockCode": rt.stockCode,
		})
		return
	}

	s.equity += trade.NetPnL

	if _, err := s.tradeRepo.CreateTrade(ctx, trade); err != nil {
		// Persistence failure must not stall trading; the in-memory daily
		// state remains authoritative for this session.
		s.logger.Error(ctx, err, "Failed to persist closed trade", map[string]interface{}{
			"stockCode": rt.stockCode,
		})
	}

	s.notify(ctx, domain.Event{
		Type:      domain.EventTradeExecuted,
		StockCode: rt.stockCode,
		Message:   "sell filled",
		At:        fill.At,
		Fields: map[string]interface{}{
			"side": domain.Sell, "quantity": trade.Quantity, "price": fill.Price,
			"netPnL": trade.NetPnL, "reason": reason,
		},
	})

	if day := s.riskMgr.DailyState(); day.LossLimitReached {
		s.logger.Warn(ctx, "Daily loss limit reached, no new entries for the rest of the day", map[string]interface{}{
			"realizedPnL": day.RealizedPnLToday, "startEquity": day.StartEquity,
		})
		s.notify(ctx, domain.Event{
			Type:    domain.EventRisk,
			Message: "daily loss limit reached",
			At:      time.Now(),
			Fields:  map[string]interface{}{"realizedPnL": day.RealizedPnLToday},
		})
	}
}

// handleSurge processes an admitted surge candidate: registers its quotes and
// submits the synthetic BUY through the same validation path every other
// signal uses.
func (s *TradingService) handleSurge(ctx context.Context, cand domain.SurgeCandidate) error {
	if s.entriesBlocked(ctx) {
		return fmt.Errorf("entries currently blocked")
	}
	if s.riskMgr.HasPosition(cand.StockCode) {
		return fmt.Errorf("position already exists for %s", cand.StockCode)
	}
	if rt, ok := s.codes[cand.StockCode]; ok && rt.state != stateIdle {
		return fmt.Errorf("order already pending for %s", cand.StockCode)
	}
	if !s.riskMgr.HasCapacity() {
		return fmt.Errorf("open-position cap reached")
	}

	quantity := s.riskMgr.SizePosition(s.equity, cand.Price)
	if quantity == 0 {
		return fmt.Errorf("computed position size is zero at price %.0f", cand.Price)
	}
	decision := s.riskMgr.ValidateEntry(ctx, cand.StockCode, quantity, cand.Price)
	if !decision.Approved {
		return fmt.Errorf("entry rejected: %s", decision.Reason)
	}

	if err := s.throttle.RegisterQuotes(ctx, []string{cand.StockCode}, s.enqueueTick); err != nil {
		return fmt.Errorf("quote registration failed: %w", err)
	}
	rt := s.runtimeFor(cand.StockCode)
	rt.name = cand.Name
	rt.pushPrice(cand.Price, maxPriceWindow)

	s.submitOrder(ctx, rt, domain.Buy, quantity, "")
	if rt.state != stateEntryPending {
		return fmt.Errorf("surge entry submission failed for %s", cand.StockCode)
	}
	return nil
}

// snapshotTick persists a sampled price snapshot per code.
func (s *TradingService) snapshotTick(ctx context.Context, rt *codeRuntime, tick domain.Tick) {
	if tick.At.Sub(rt.lastSnapshot) < s.cfg.TickSnapshotInterval {
		return
	}
	rt.lastSnapshot = tick.At
	if err := s.tickRepo.RecordTick(ctx, tick); err != nil {
		s.logger.Error(ctx, err, "Failed to persist tick snapshot", map[string]interface{}{
			"stockCode": tick.StockCode,
		})
	}
}

// checkPendingTimeouts flags orders with no callback within the configured
// timeout as indeterminate. They are logged for manual reconciliation, never
// silently retried: retrying a possibly-filled order risks double execution.
func (s *TradingService) checkPendingTimeouts(ctx context.Context, now time.Time) {
	for _, rt := range s.codes {
		if rt.pending == nil || rt.reconcileWarned {
			continue
		}
		if now.Sub(rt.pendingSince) < s.cfg.OrderTimeout {
			continue
		}
		rt.reconcileWarned = true
		s.logger.Error(ctx, ports.ErrTimeout, "Pending order timed out, state indeterminate, manual reconciliation required", map[string]interface{}{
			"stockCode": rt.stockCode, "orderID": rt.pending.OrderID, "side": rt.pending.Side,
			"submittedAt": rt.pendingSince,
		})
		s.notify(ctx, domain.Event{
			Type:      domain.EventRisk,
			StockCode: rt.stockCode,
			Message:   "pending order indeterminate, manual reconciliation required",
			At:        now,
			Fields:    map[string]interface{}{"orderID": rt.pending.OrderID},
		})
	}
}

// checkDayRollover resets the daily risk state and entry stops when the
// calendar day changes.
func (s *TradingService) checkDayRollover(ctx context.Context, now time.Time) {
	day := now.Format("2006-01-02")
	if day == s.tradingDay {
		return
	}
	s.tradingDay = day
	s.budgetStopped = false
	s.riskMgr.RolloverDay(s.equity, now)
	s.logger.Info(ctx, "Trading day rolled over", map[string]interface{}{
		"day": day, "startEquity": s.equity,
	})

	cutoff := now.Add(-s.cfg.TickRetention)
	deleted, err := s.tickRepo.PruneBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to prune tick snapshots", map[string]interface{}{"cutoff": cutoff})
		return
	}
	if deleted > 0 {
		s.logger.Info(ctx, "Pruned old tick snapshots", map[string]interface{}{"deleted": deleted, "cutoff": cutoff})
	}
}

// notify publishes an event, logging and continuing on failure.
func (s *TradingService) notify(ctx context.Context, evt domain.Event) {
	if err := s.notifier.Publish(ctx, evt); err != nil {
		s.logger.Warn(ctx, "Failed to publish notification event", map[string]interface{}{
			"type": evt.Type, "error": err.Error(),
		})
	}
}
