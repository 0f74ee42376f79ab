// Package orders manages order execution and lifecycle.
//
// The Manager executes strategy signals through the exchange client after
// the risk gates clear, tracks every in-flight order in an active map, and
// runs a background monitor (monitor.go) that polls order status, reconciles
// the fills feed, sweeps stale resting orders, and simulates fills and
// settlement in paper mode.
//
// Trade state machine (initial PENDING):
//
//	PENDING   → SUBMITTED   exchange accepted
//	PENDING   → FAILED      rejection or network error after retries
//	SUBMITTED → FILLED      status "executed" or fill seen in the fills feed
//	SUBMITTED → CANCELLED   cancel accepted, stale sweep, or market halt
//	SUBMITTED → REJECTED    explicit rejection after acceptance
//
// FILLED, CANCELLED, REJECTED, FAILED are terminal and never transition.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kalshi-taker/internal/exchange"
	"kalshi-taker/internal/risk"
	"kalshi-taker/pkg/types"
)

var (
	tradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_trades_total",
		Help: "Trades by terminal status.",
	}, []string{"status"})
	signalsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_signals_rejected_total",
		Help: "Signals dropped at a gate before execution.",
	}, []string{"gate"})
)

const (
	// staleOrderAge is 14 minutes, just under one 15-minute window: an order
	// still resting that long has almost no market life left to fill in.
	staleOrderAge = 14 * time.Minute

	completedCap = 500
	cancelChunk  = 20
)

// Manager owns the order lifecycle. All shared maps are guarded by mu; the
// execute path and the monitor never hold the lock across a network call.
type Manager struct {
	client *exchange.Client
	risk   *risk.Manager
	dryRun atomic.Bool
	logger *slog.Logger

	mu                 sync.Mutex
	active             map[string]*types.Trade // internal id → trade
	completed          []types.Trade           // terminal trades, newest last, capped
	submittedClientIDs map[string]struct{}     // every client_order_id ever sent
	lastFillsTS        int64                   // unix seconds of last successful fills poll

	monitorMu     sync.Mutex
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// NewManager creates an order manager.
func NewManager(client *exchange.Client, riskMgr *risk.Manager, dryRun bool, logger *slog.Logger) *Manager {
	m := &Manager{
		client:             client,
		risk:               riskMgr,
		logger:             logger.With("component", "orders"),
		active:             make(map[string]*types.Trade),
		submittedClientIDs: make(map[string]struct{}),
	}
	m.dryRun.Store(dryRun)
	return m
}

// DryRun reports the current execution mode.
func (m *Manager) DryRun() bool { return m.dryRun.Load() }

// SetDryRun switches between paper and live execution. Takes effect on the
// next signal. Each trade records the mode it was created under, but the
// monitor follows the current mode: paper trades are simulated only while
// dry-run is on, and live orders are polled only while it is off.
func (m *Manager) SetDryRun(dry bool) { m.dryRun.Store(dry) }

// ————————————————————————————————————————————————————————————————————————
// Signal execution
// ————————————————————————————————————————————————————————————————————————

// ExecuteSignal validates a signal against the edge and risk gates, builds a
// Trade, and submits it. Returns nil when a gate refuses; returns the trade
// (possibly FAILED) once execution was attempted.
func (m *Manager) ExecuteSignal(ctx context.Context, sig types.Signal) *types.Trade {
	now := time.Now().UTC()
	if !sig.IsValid(now) {
		m.logger.Warn("signal invalid or expired", "ticker", sig.Ticker)
		signalsRejected.WithLabelValues("validity").Inc()
		return nil
	}

	if ok, reason := m.risk.ValidateSignalEdge(sig.Edge, sig.Confidence); !ok {
		m.logger.Warn("signal rejected (edge)", "ticker", sig.Ticker, "reason", reason)
		signalsRejected.WithLabelValues("edge").Inc()
		return nil
	}

	if ok, reason := m.risk.CheckTradeAllowed(sig.Ticker, sig.Quantity, sig.Price); !ok {
		m.logger.Warn("signal rejected (risk)", "ticker", sig.Ticker, "reason", reason)
		signalsRejected.WithLabelValues("risk").Inc()
		return nil
	}

	dryRun := m.dryRun.Load()
	trade := &types.Trade{
		ID:           uuid.NewString(),
		Ticker:       sig.Ticker,
		Side:         sig.Direction,
		OrderType:    types.OrderTypeLimit,
		Quantity:     sig.Quantity,
		Price:        sig.Price,
		Status:       types.TradePending,
		StrategyName: sig.StrategyName,
		Edge:         sig.Edge,
		Confidence:   sig.Confidence,
		DryRun:       dryRun,
		CreatedAt:    now,
	}

	if dryRun {
		// Paper path: no exchange mutation at all. The monitor simulates
		// the fill after its queue delay.
		trade.SubmittedAt = now
		m.track(trade)
		m.risk.RecordTrade(*trade)
		m.logger.Info("paper trade created",
			"trade_id", trade.ID, "ticker", trade.Ticker, "side", trade.Side,
			"qty", trade.Quantity, "price", trade.Price)
		return trade
	}

	req, err := exchange.BuildLimitOrder(sig.Ticker, sig.Direction, "buy", sig.Quantity, sig.Price)
	if err != nil {
		trade.Status = types.TradeFailed
		trade.Notes = err.Error()
		m.recordTerminal(trade)
		return trade
	}

	m.mu.Lock()
	m.submittedClientIDs[req.ClientOrderID] = struct{}{}
	m.mu.Unlock()

	order, err := m.client.PlaceOrder(ctx, req)
	if err != nil {
		trade.Status = types.TradeFailed
		trade.Notes = fmt.Sprintf("place order: %v", err)
		m.logger.Error("signal execution failed", "ticker", sig.Ticker, "error", err)
		m.recordTerminal(trade)
		return trade
	}

	trade.OrderID = order.OrderID
	trade.Status = types.TradeSubmitted
	trade.SubmittedAt = time.Now().UTC()
	m.track(trade)
	m.risk.RecordTrade(*trade)

	m.logger.Info("signal executed",
		"trade_id", trade.ID, "order_id", trade.OrderID,
		"ticker", trade.Ticker, "side", trade.Side,
		"qty", trade.Quantity, "price", trade.Price, "edge", sig.Edge)
	return trade
}

// ————————————————————————————————————————————————————————————————————————
// Cancellation and modification
// ————————————————————————————————————————————————————————————————————————

// Cancel cancels one resting order by internal trade id. Cancelling a
// terminal trade is refused and returns false.
func (m *Manager) Cancel(ctx context.Context, tradeID string) bool {
	m.mu.Lock()
	trade, ok := m.active[tradeID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("cancel: trade not found in active orders", "trade_id", tradeID)
		return false
	}
	if trade.Status.IsTerminal() {
		m.mu.Unlock()
		m.logger.Warn("cancel: trade already terminal", "trade_id", tradeID, "status", trade.Status)
		return false
	}
	orderID := trade.OrderID
	m.mu.Unlock()

	if orderID == "" {
		m.logger.Warn("cancel: trade has no exchange order id", "trade_id", tradeID)
		return false
	}

	if _, err := m.client.CancelOrder(ctx, orderID); err != nil {
		m.logger.Error("cancel failed", "trade_id", tradeID, "order_id", orderID, "error", err)
		return false
	}

	m.mu.Lock()
	trade.Status = types.TradeCancelled
	trade.CancelledAt = time.Now().UTC()
	m.moveToCompletedLocked(tradeID)
	m.mu.Unlock()
	m.syncOpenCount()

	m.logger.Info("order cancelled", "trade_id", tradeID, "order_id", orderID)
	return true
}

// CancelByOrderID cancels by exchange order id, falling back to a raw cancel
// for orders the manager is not tracking.
func (m *Manager) CancelByOrderID(ctx context.Context, orderID string) bool {
	m.mu.Lock()
	var tradeID string
	for id, t := range m.active {
		if t.OrderID == orderID {
			tradeID = id
			break
		}
	}
	m.mu.Unlock()

	if tradeID != "" {
		return m.Cancel(ctx, tradeID)
	}

	if _, err := m.client.CancelOrder(ctx, orderID); err != nil {
		m.logger.Error("cancel untracked order failed", "order_id", orderID, "error", err)
		return false
	}
	m.logger.Info("sent cancel for untracked order", "order_id", orderID)
	return true
}

// CancelAll batch-cancels every resting order in chunks of 20 and marks all
// active trades cancelled locally. Returns the number cancelled.
func (m *Manager) CancelAll(ctx context.Context) int {
	dry := m.dryRun.Load()

	m.mu.Lock()
	tradeIDs := make([]string, 0, len(m.active))
	var restingIDs []string
	for id, t := range m.active {
		tradeIDs = append(tradeIDs, id)
		if t.OrderID != "" && !dry {
			restingIDs = append(restingIDs, t.OrderID)
		}
	}
	m.mu.Unlock()

	cancelled := 0
	for i := 0; i < len(restingIDs); i += cancelChunk {
		end := i + cancelChunk
		if end > len(restingIDs) {
			end = len(restingIDs)
		}
		chunk := restingIDs[i:end]
		if err := m.client.BatchCancelOrders(ctx, chunk); err != nil {
			m.logger.Error("batch cancel chunk failed", "error", err)
			continue
		}
		cancelled += len(chunk)
	}

	now := time.Now().UTC()
	m.mu.Lock()
	for _, id := range tradeIDs {
		if t, ok := m.active[id]; ok {
			t.Status = types.TradeCancelled
			t.CancelledAt = now
			m.moveToCompletedLocked(id)
		}
	}
	m.mu.Unlock()
	m.syncOpenCount()

	if dry {
		cancelled = len(tradeIDs)
	}
	m.logger.Info("cancel all complete", "cancelled", cancelled)
	return cancelled
}

// Decrease reduces a resting order's remaining count. Exactly one of
// reduceBy/reduceTo must be set; reduceTo=0 is equivalent to cancel.
func (m *Manager) Decrease(ctx context.Context, tradeID string, reduceBy, reduceTo *int) bool {
	m.mu.Lock()
	trade, ok := m.active[tradeID]
	if !ok || trade.OrderID == "" {
		m.mu.Unlock()
		return false
	}
	orderID := trade.OrderID
	m.mu.Unlock()

	if _, err := m.client.DecreaseOrder(ctx, orderID, reduceBy, reduceTo); err != nil {
		m.logger.Error("decrease failed", "trade_id", tradeID, "error", err)
		return false
	}

	if reduceTo != nil && *reduceTo == 0 {
		m.mu.Lock()
		trade.Status = types.TradeCancelled
		trade.CancelledAt = time.Now().UTC()
		m.moveToCompletedLocked(tradeID)
		m.mu.Unlock()
		m.syncOpenCount()
	}

	m.logger.Info("order decreased", "trade_id", tradeID)
	return true
}

// Amend replaces price and/or quantity on a resting order. The exchange
// issues a new order id; the trade is retargeted to it and the old id is
// never consulted again.
func (m *Manager) Amend(ctx context.Context, tradeID string, newPrice *float64, newQuantity *int) (string, error) {
	m.mu.Lock()
	trade, ok := m.active[tradeID]
	if !ok || trade.OrderID == "" {
		m.mu.Unlock()
		return "", fmt.Errorf("trade %s not found or not resting", tradeID)
	}
	orderID := trade.OrderID
	ticker := trade.Ticker
	side := trade.Side
	m.mu.Unlock()

	var yesPrice, noPrice *int
	if newPrice != nil {
		cents, err := exchange.CentsFromFraction(*newPrice)
		if err != nil {
			return "", err
		}
		if side == types.SideYes {
			yesPrice = &cents
		} else {
			noPrice = &cents
		}
	}

	resp, err := m.client.AmendOrder(ctx, orderID, ticker, side, "buy", yesPrice, noPrice, newQuantity)
	if err != nil {
		m.logger.Error("amend failed", "trade_id", tradeID, "error", err)
		return "", err
	}

	m.mu.Lock()
	trade.OrderID = resp.Order.OrderID
	if newPrice != nil {
		trade.Price = *newPrice
	}
	if newQuantity != nil {
		trade.Quantity = *newQuantity
	}
	m.mu.Unlock()

	m.logger.Info("order amended",
		"trade_id", tradeID, "old_order_id", orderID, "new_order_id", resp.Order.OrderID)
	return resp.Order.OrderID, nil
}

// ————————————————————————————————————————————————————————————————————————
// Bookkeeping
// ————————————————————————————————————————————————————————————————————————

func (m *Manager) track(trade *types.Trade) {
	m.mu.Lock()
	m.active[trade.ID] = trade
	m.mu.Unlock()
	m.syncOpenCount()
}

// recordTerminal books a trade that died before tracking (FAILED builds).
func (m *Manager) recordTerminal(trade *types.Trade) {
	m.mu.Lock()
	m.completed = append(m.completed, *trade)
	m.trimCompletedLocked()
	m.mu.Unlock()
	tradesExecuted.WithLabelValues(string(trade.Status)).Inc()
	m.risk.RecordTrade(*trade)
}

// moveToCompletedLocked shifts a trade from the active map to the completed
// ring. Caller holds mu.
func (m *Manager) moveToCompletedLocked(tradeID string) {
	trade, ok := m.active[tradeID]
	if !ok {
		return
	}
	delete(m.active, tradeID)
	m.completed = append(m.completed, *trade)
	m.trimCompletedLocked()
	tradesExecuted.WithLabelValues(string(trade.Status)).Inc()
}

func (m *Manager) trimCompletedLocked() {
	if len(m.completed) > completedCap {
		m.completed = m.completed[len(m.completed)-completedCap:]
	}
}

func (m *Manager) syncOpenCount() {
	m.mu.Lock()
	n := len(m.active)
	m.mu.Unlock()
	m.risk.SetOpenOrdersCount(n)
}

// ————————————————————————————————————————————————————————————————————————
// Accessors
// ————————————————————————————————————————————————————————————————————————

// ActiveTrades returns a copy of all in-flight trades.
func (m *Manager) ActiveTrades() []types.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Trade, 0, len(m.active))
	for _, t := range m.active {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CompletedTrades returns up to limit terminal trades, newest first.
func (m *Manager) CompletedTrades(limit int) []types.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Trade, len(m.completed))
	copy(out, m.completed)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// OrderSummary is the counters block for the operator surface.
type OrderSummary struct {
	ActiveCount    int `json:"active_count"`
	CompletedCount int `json:"completed_count"`
	FilledCount    int `json:"filled_count"`
	CancelledCount int `json:"cancelled_count"`
	FailedCount    int `json:"failed_count"`
}

// Summary builds the counters block.
func (m *Manager) Summary() OrderSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := OrderSummary{
		ActiveCount:    len(m.active),
		CompletedCount: len(m.completed),
	}
	for _, t := range m.completed {
		switch t.Status {
		case types.TradeFilled:
			s.FilledCount++
		case types.TradeCancelled:
			s.CancelledCount++
		case types.TradeFailed:
			s.FailedCount++
		}
	}
	return s
}
