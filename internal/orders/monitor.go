package orders

import (
	"context"
	"log/slog"
	"time"

	"kalshi-taker/internal/exchange"
	"kalshi-taker/pkg/types"
)

const (
	monitorInterval = 2 * time.Second
	// fillsEvery counts monitor ticks between fills-feed reconciliations
	// (every 5th tick = 10 s). Paper settlement runs on the same cadence.
	fillsEvery = 5

	paperFillDelay = 2 * time.Second
)

// StartMonitor launches the background monitor. Calling it twice is a no-op.
func (m *Manager) StartMonitor(parent context.Context) {
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()

	if m.monitorCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	m.monitorCancel = cancel
	m.monitorDone = done

	go func() {
		defer close(done)
		m.monitorLoop(ctx)
	}()
	m.logger.Info("order monitoring started")
}

// StopMonitor cancels the monitor and waits for its cooperative exit.
func (m *Manager) StopMonitor() {
	m.monitorMu.Lock()
	cancel := m.monitorCancel
	done := m.monitorDone
	m.monitorCancel = nil
	m.monitorDone = nil
	m.monitorMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("order monitoring stopped")
}

// monitorLoop ticks every 2 seconds:
//  1. poll each active order's status (paper mode: simulate fills)
//  2. every 5th tick, reconcile the fills feed (paper: settlement scan)
//  3. sweep resting orders older than 14 minutes
//  4. push the open-order count into the risk manager
//
// A panic in one tick is logged and the loop keeps running.
func (m *Manager) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.safeTick(func() {
				m.pollActiveOrders(ctx)

				tick++
				if tick >= fillsEvery {
					tick = 0
					m.reconcileFills(ctx)
				}

				m.cancelStaleOrders(ctx)
			})
			m.syncOpenCount()
		}
	}
}

func (m *Manager) safeTick(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor tick panicked", "panic", r)
		}
	}()
	fn()
}

// pollActiveOrders fetches each tracked order's exchange status and applies
// the state machine. Paper trades are simulated instead.
func (m *Manager) pollActiveOrders(ctx context.Context) {
	if m.dryRun.Load() {
		m.simulatePaperFills()
		return
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id, t := range m.active {
		if t.OrderID != "" {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, tradeID := range ids {
		m.mu.Lock()
		trade, ok := m.active[tradeID]
		if !ok {
			m.mu.Unlock()
			continue
		}
		orderID := trade.OrderID
		m.mu.Unlock()

		order, err := m.client.GetOrderStatus(ctx, orderID)
		if err != nil {
			m.logger.Error("status poll failed", "order_id", orderID, "error", err)
			continue
		}

		m.mu.Lock()
		trade, ok = m.active[tradeID]
		if !ok {
			m.mu.Unlock()
			continue
		}
		applyOrderStatus(trade, order, m.logger)
		if trade.Status.IsTerminal() {
			snapshot := *trade
			m.moveToCompletedLocked(tradeID)
			m.mu.Unlock()
			m.risk.RecordTrade(snapshot)
			continue
		}
		m.mu.Unlock()
	}
}

// applyOrderStatus maps the exchange order snapshot onto the trade.
//
// The exchange's terminal fill status is the literal "executed"; "filled" is
// not a valid status and must not be matched. A trade already FILLED is
// never downgraded.
func applyOrderStatus(trade *types.Trade, order *types.APIOrder, logger *slog.Logger) {
	if trade.Status == types.TradeFilled {
		return
	}

	switch order.Status {
	case "resting":
		trade.Status = types.TradeSubmitted
	case "executed":
		trade.Status = types.TradeFilled
		trade.FilledAt = time.Now().UTC()
	case "canceled":
		trade.Status = types.TradeCancelled
		trade.CancelledAt = time.Now().UTC()
	default:
		logger.Debug("unhandled order status", "order_id", order.OrderID, "status", order.Status)
	}

	if order.FillCount > 0 {
		trade.FilledQuantity = order.FillCount
		totalCostCents := order.TakerFillCost + order.MakerFillCost
		if totalCostCents > 0 {
			trade.AverageFillPrice = float64(totalCostCents) / float64(order.FillCount) / 100
		}
	}
	if trade.FilledQuantity > 0 && trade.AverageFillPrice > 0 {
		trade.Cost = float64(trade.FilledQuantity) * trade.AverageFillPrice
	}
}

// simulatePaperFills transitions PENDING paper trades to FILLED at their
// limit price after a short queue delay. Realized P&L stays nil until the
// settlement scan resolves the market.
func (m *Manager) simulatePaperFills() {
	now := time.Now().UTC()

	m.mu.Lock()
	var filled []types.Trade
	for id, trade := range m.active {
		if trade.Status != types.TradePending || !trade.DryRun {
			continue
		}
		submitted := trade.SubmittedAt
		if submitted.IsZero() {
			submitted = trade.CreatedAt
		}
		if now.Sub(submitted) < paperFillDelay {
			continue
		}

		fillPrice := trade.Price
		if fillPrice <= 0 {
			fillPrice = 0.5
		}
		trade.Status = types.TradeFilled
		trade.FilledAt = now
		trade.FilledQuantity = trade.Quantity
		trade.AverageFillPrice = fillPrice
		trade.Cost = float64(trade.Quantity) * fillPrice
		trade.PnL = nil

		filled = append(filled, *trade)
		m.moveToCompletedLocked(id)
	}
	m.mu.Unlock()

	for _, t := range filled {
		m.risk.RecordTrade(t)
		m.logger.Info("paper fill simulated",
			"ticker", t.Ticker, "side", t.Side, "qty", t.FilledQuantity, "price", t.AverageFillPrice)
	}
}

// reconcileFills polls the fills feed since the last successful fetch and
// force-fills any active order whose id appears there but was missed by
// status polling. Paper mode runs the settlement scan instead.
func (m *Manager) reconcileFills(ctx context.Context) {
	if m.dryRun.Load() {
		m.settlePaperPositions(ctx)
		return
	}

	now := time.Now().UTC().Unix()
	m.mu.Lock()
	minTS := m.lastFillsTS
	m.mu.Unlock()
	if minTS == 0 {
		minTS = now - 300
	}

	page, err := m.client.GetFills(ctx, exchange.FillsQuery{MinTS: minTS, Limit: 200})
	if err != nil {
		m.logger.Error("fills reconciliation failed", "error", err)
		return
	}

	for _, fill := range page.Fills {
		if fill.OrderID == "" {
			continue
		}

		m.mu.Lock()
		var tradeID string
		var trade *types.Trade
		for id, t := range m.active {
			if t.OrderID == fill.OrderID {
				tradeID, trade = id, t
				break
			}
		}
		if trade == nil || trade.Status == types.TradeFilled {
			m.mu.Unlock()
			continue
		}

		priceCents := fill.YesPrice
		if trade.Side == types.SideNo {
			priceCents = fill.NoPrice
		}
		trade.Status = types.TradeFilled
		trade.FilledAt = time.Now().UTC()
		trade.FilledQuantity = fill.Count
		trade.AverageFillPrice = exchange.FractionFromCents(priceCents)
		trade.Cost = float64(trade.FilledQuantity) * trade.AverageFillPrice

		snapshot := *trade
		m.moveToCompletedLocked(tradeID)
		m.mu.Unlock()

		m.risk.RecordTrade(snapshot)
		m.logger.Info("fill reconciled", "order_id", fill.OrderID, "qty", fill.Count)
	}

	m.mu.Lock()
	m.lastFillsTS = now
	m.mu.Unlock()
}

// settlePaperPositions resolves open paper positions against live market
// state. The market fetch is read-only, so it is safe in any mode. A market
// counts as resolved once it is closed or settled and its YES price has
// collapsed to one of the boundaries.
//
// Settlement P&L:
//
//	YES holder, resolves YES:  (1 − entry) × qty
//	YES holder, resolves NO:   −entry × qty
//	NO  holder, resolves NO:   (1 − entry) × qty
//	NO  holder, resolves YES:  −entry × qty
func (m *Manager) settlePaperPositions(ctx context.Context) {
	for _, pos := range m.risk.Positions() {
		market, err := m.client.GetMarket(ctx, pos.Ticker)
		if err != nil {
			m.logger.Error("paper settlement check failed", "ticker", pos.Ticker, "error", err)
			continue
		}
		if market.Status != types.MarketClosed && market.Status != types.MarketSettled {
			continue
		}

		var resolvedYes bool
		switch {
		case market.YesPrice >= 0.99:
			resolvedYes = true
		case market.YesPrice <= 0.01:
			resolvedYes = false
		default:
			continue // still mid-settlement
		}

		entry := pos.AverageEntryPrice
		qty := float64(pos.Quantity)
		var pnl float64
		if pos.Side == types.SideYes {
			if resolvedYes {
				pnl = (1 - entry) * qty
			} else {
				pnl = -entry * qty
			}
		} else {
			if resolvedYes {
				pnl = -entry * qty
			} else {
				pnl = (1 - entry) * qty
			}
		}

		m.risk.ClosePosition(pos.Ticker, pnl)
		outcome := "NO"
		if resolvedYes {
			outcome = "YES"
		}
		m.logger.Info("paper position settled",
			"ticker", pos.Ticker, "resolved", outcome, "pnl", pnl,
			"side", pos.Side, "qty", pos.Quantity, "entry", entry)
	}
}

// cancelStaleOrders sweeps resting orders older than staleOrderAge (14
// minutes). A resting order that old has almost no market life left.
func (m *Manager) cancelStaleOrders(ctx context.Context) {
	now := time.Now().UTC()

	m.mu.Lock()
	var stale []string
	for id, trade := range m.active {
		if trade.Status != types.TradeSubmitted {
			continue
		}
		ref := trade.SubmittedAt
		if ref.IsZero() {
			ref = trade.CreatedAt
		}
		if now.Sub(ref) > staleOrderAge {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.logger.Warn("auto-cancelling stale order", "trade_id", id)
		m.Cancel(ctx, id)
	}
}
