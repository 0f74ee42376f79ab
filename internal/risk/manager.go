// Package risk enforces the multi-layer risk envelope for the trading bot.
//
// The manager validates every new trade against seven ordered gates, tracks
// positions and P&L across three independent equity windows, and latches a
// three-layer circuit breaker:
//
//	Layer 1 - daily loss ≥ 5% of bankroll       (auto-clears at UTC midnight)
//	Layer 2 - weekly drawdown ≥ 10%             (auto-clears Monday 00:00 UTC)
//	Layer 3 - session drawdown ≥ 15% from peak  (operator reset only)
//
// Once latched, Gate 1 refuses every trade until the breaker clears. The
// auto-clears only fire when the stored reason carries the matching layer
// tag, so a Layer-3 trip survives any number of rollovers.
package risk

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kalshi-taker/internal/config"
	"kalshi-taker/pkg/types"
)

var (
	equityGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_current_equity_dollars",
		Help: "Session equity: start equity plus daily P&L.",
	})
	breakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_circuit_breaker_trips_total",
		Help: "Circuit breaker activations.",
	})
)

// Metrics is the full risk snapshot, rebuilt on every record and admission.
type Metrics struct {
	TotalPositions  int     `json:"total_positions"`
	OpenOrdersCount int     `json:"open_orders_count"`
	TotalExposure   float64 `json:"total_exposure"`

	DailyPnL      float64 `json:"daily_pnl"`
	DailyLoss     float64 `json:"daily_loss"` // negative portion only, ≤ 0
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`

	MaxDrawdown     float64 `json:"max_drawdown"`
	CurrentDrawdown float64 `json:"current_drawdown"`
	WeeklyDrawdown  float64 `json:"weekly_drawdown"`
	WinRate         float64 `json:"win_rate"`
	EVPerTrade      float64 `json:"ev_per_trade"`

	CircuitBreakerTriggered bool   `json:"circuit_breaker_triggered"`
	CircuitBreakerReason    string `json:"circuit_breaker_reason"`

	ExposurePerMarket map[string]float64 `json:"exposure_per_market"`
	LastUpdated       time.Time          `json:"last_updated"`
}

// Manager validates trades, tracks positions, and owns the circuit breaker.
// All state is guarded by one mutex: the execute path and the monitor are
// the only writers and never overlap a single mutation.
type Manager struct {
	logger *slog.Logger

	mu       sync.Mutex
	cfg      config.RiskConfig
	bankroll float64

	allTrades []types.Trade
	positions map[string]*types.Position

	// Daily window, reset at UTC midnight.
	dailyDate     time.Time // date only, UTC
	dailyRealized float64

	// Weekly window, pinned at Monday 00:00 UTC.
	weeklyStartDate   time.Time
	weeklyStartEquity float64
	weeklyPeakEquity  float64

	// Session window, never auto-reset.
	sessionStartEquity float64
	sessionPeakEquity  float64

	maxDrawdown float64

	breakerActive bool
	breakerAt     time.Time
	breakerReason string

	openOrders int
	metrics    Metrics
}

// NewManager creates a risk manager with all three equity anchors pinned to
// the configured bankroll.
func NewManager(cfg config.RiskConfig, logger *slog.Logger) *Manager {
	now := time.Now().UTC()
	m := &Manager{
		logger:             logger.With("component", "risk"),
		cfg:                cfg,
		bankroll:           cfg.Bankroll,
		positions:          make(map[string]*types.Position),
		dailyDate:          dateOf(now),
		weeklyStartDate:    mondayOf(now),
		weeklyStartEquity:  cfg.Bankroll,
		weeklyPeakEquity:   cfg.Bankroll,
		sessionStartEquity: cfg.Bankroll,
		sessionPeakEquity:  cfg.Bankroll,
	}
	m.recomputeLocked(now)
	return m
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mondayOf returns Monday 00:00 UTC of t's ISO week.
func mondayOf(t time.Time) time.Time {
	d := dateOf(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// ————————————————————————————————————————————————————————————————————————
// Admission gates
// ————————————————————————————————————————————————————————————————————————

// CheckTradeAllowed runs the seven gates in order and returns (false, reason)
// at the first failure.
func (m *Manager) CheckTradeAllowed(ticker string, quantity int, price float64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkTradeAllowedLocked(ticker, quantity, price, time.Now().UTC())
}

func (m *Manager) checkTradeAllowedLocked(ticker string, quantity int, price float64, now time.Time) (bool, string) {
	m.maybeResetDailyLocked(now)
	m.maybeResetWeeklyLocked(now)
	m.recomputeLocked(now)

	positionValue := float64(quantity) * price

	// Gate 1: latched circuit breaker.
	if m.breakerActive {
		return false, fmt.Sprintf("circuit breaker active: %s", m.breakerReason)
	}

	// Gate 2: per-trade ceiling.
	ceiling := m.bankroll * m.cfg.PositionCeilingPct
	if positionValue > ceiling {
		return false, fmt.Sprintf("position $%.2f exceeds bankroll ceiling $%.2f", positionValue, ceiling)
	}

	// Gate 3: concurrent positions.
	if len(m.positions) >= m.cfg.MaxConcurrentPositions {
		return false, fmt.Sprintf("max concurrent positions (%d) reached", m.cfg.MaxConcurrentPositions)
	}

	// Gate 4: daily realized loss.
	dailyCap := m.bankroll * m.cfg.DailyLossThreshold
	if m.dailyRealized < 0 && -m.dailyRealized >= dailyCap {
		return false, fmt.Sprintf("daily loss $%.2f at or above cap $%.2f", -m.dailyRealized, dailyCap)
	}

	// Gate 5: weekly drawdown.
	weeklyDD := m.weeklyDrawdownLocked()
	if weeklyDD >= m.cfg.WeeklyDrawdownCap {
		return false, fmt.Sprintf("weekly drawdown %.1f%% at or above cap %.0f%%", weeklyDD*100, m.cfg.WeeklyDrawdownCap*100)
	}

	// Gate 6: total exposure.
	exposure := m.totalExposureLocked()
	maxExposure := ceiling * float64(m.cfg.MaxConcurrentPositions)
	if exposure+positionValue > maxExposure {
		return false, fmt.Sprintf("total exposure $%.2f would exceed limit $%.2f", exposure+positionValue, maxExposure)
	}

	// Gate 7: one position per market.
	if _, exists := m.positions[ticker]; exists {
		return false, fmt.Sprintf("already have an open position in %s", ticker)
	}

	return true, ""
}

// ValidateSignalEdge is the separate edge gate: the absolute edge must clear
// the configured floor plus the uncertainty buffer, and confidence must be
// at least 0.5.
func (m *Manager) ValidateSignalEdge(edge, confidence float64) (bool, string) {
	m.mu.Lock()
	minEdge := m.cfg.MinEdgeThreshold + m.cfg.UncertaintyBuffer
	m.mu.Unlock()

	abs := edge
	if abs < 0 {
		abs = -abs
	}
	if abs < minEdge {
		return false, fmt.Sprintf("edge %.3f below minimum %.3f", edge, minEdge)
	}
	if confidence < 0.5 {
		return false, fmt.Sprintf("confidence %.2f below 0.50 minimum", confidence)
	}
	return true, ""
}

// ————————————————————————————————————————————————————————————————————————
// Trade and position recording
// ————————————————————————————————————————————————————————————————————————

// RecordTrade folds a trade into the books: fills create or grow positions,
// settlement P&L lands in the daily realized bucket, and metrics plus the
// breaker layers are re-evaluated.
func (m *Manager) RecordTrade(trade types.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.maybeResetDailyLocked(now)
	m.maybeResetWeeklyLocked(now)

	m.allTrades = append(m.allTrades, trade)

	if trade.Status == types.TradeFilled {
		m.applyFillLocked(trade, now)
		if trade.PnL != nil {
			m.dailyRealized += *trade.PnL
		}
	}

	m.recomputeLocked(now)
}

func (m *Manager) applyFillLocked(trade types.Trade, now time.Time) {
	qty := trade.FilledQuantity
	if qty <= 0 {
		return
	}
	price := trade.AverageFillPrice
	if price == 0 {
		price = trade.Price
	}

	pos, exists := m.positions[trade.Ticker]
	if !exists {
		entryTime := trade.FilledAt
		if entryTime.IsZero() {
			entryTime = now
		}
		m.positions[trade.Ticker] = &types.Position{
			Ticker:            trade.Ticker,
			Side:              trade.Side,
			Quantity:          qty,
			AverageEntryPrice: price,
			EntryTime:         entryTime,
			LastUpdated:       now,
			MaxLoss:           float64(qty) * price,
			MaxGain:           float64(qty) * (1 - price),
		}
		m.logger.Info("new position",
			"ticker", trade.Ticker, "side", trade.Side, "qty", qty, "entry", price)
		return
	}

	total := pos.Quantity + qty
	pos.AverageEntryPrice = (pos.AverageEntryPrice*float64(pos.Quantity) + price*float64(qty)) / float64(total)
	pos.Quantity = total
	pos.MaxLoss = float64(total) * pos.AverageEntryPrice
	pos.MaxGain = float64(total) * (1 - pos.AverageEntryPrice)
	pos.LastUpdated = now
}

// ClosePosition removes a settled position and books its exit P&L.
func (m *Manager) ClosePosition(ticker string, exitPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[ticker]; !exists {
		return
	}
	delete(m.positions, ticker)
	m.dailyRealized += exitPnL
	m.recomputeLocked(time.Now().UTC())
	m.logger.Info("position closed", "ticker", ticker, "pnl", exitPnL)
}

// UpdatePositionPrice marks an open position to the current contract price.
func (m *Manager) UpdatePositionPrice(ticker string, currentPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.positions[ticker]
	if !exists {
		return
	}
	pos.CurrentPrice = currentPrice
	pos.UnrealizedPnL = pos.PnLAt(currentPrice)
	pos.LastUpdated = time.Now().UTC()
}

// SetOpenOrdersCount is called by the order manager after every monitor tick.
func (m *Manager) SetOpenOrdersCount(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openOrders = count
	m.metrics.OpenOrdersCount = count
}

// Positions returns a sorted copy of all open positions.
func (m *Manager) Positions() []types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// PositionFor returns one position by ticker.
func (m *Manager) PositionFor(ticker string) (types.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[ticker]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// Bankroll returns the current sizing reference.
func (m *Manager) Bankroll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bankroll
}

// UpdateLimits applies a live bankroll/risk-settings change from the
// operator surface. Takes effect on the next admission check.
func (m *Manager) UpdateLimits(bankroll float64, ceilingPct, dailyLossThreshold *float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bankroll = bankroll
	m.sessionStartEquity = bankroll
	if m.sessionPeakEquity < bankroll {
		m.sessionPeakEquity = bankroll
	}
	if ceilingPct != nil {
		m.cfg.PositionCeilingPct = *ceilingPct
	}
	if dailyLossThreshold != nil {
		m.cfg.DailyLossThreshold = *dailyLossThreshold
	}
	m.recomputeLocked(time.Now().UTC())
	m.logger.Info("risk limits updated", "bankroll", bankroll)
}

// Config returns a copy of the active risk configuration.
func (m *Manager) Config() config.RiskConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// ————————————————————————————————————————————————————————————————————————
// Metrics
// ————————————————————————————————————————————————————————————————————————

// Metrics recomputes and returns the current snapshot.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recomputeLocked(time.Now().UTC())
	return m.metrics
}

func (m *Manager) totalExposureLocked() float64 {
	var total float64
	for _, p := range m.positions {
		total += float64(p.Quantity) * p.AverageEntryPrice
	}
	return total
}

// weeklyDrawdownLocked returns the drawdown fraction from the weekly peak,
// ratcheting the peak up first. Weekly equity tracks realized P&L only.
func (m *Manager) weeklyDrawdownLocked() float64 {
	if m.weeklyPeakEquity <= 0 {
		return 0
	}
	equity := m.sessionStartEquity + m.dailyRealized
	if equity > m.weeklyPeakEquity {
		m.weeklyPeakEquity = equity
	}
	dd := (m.weeklyPeakEquity - equity) / m.weeklyPeakEquity
	if dd < 0 {
		return 0
	}
	return dd
}

func (m *Manager) recomputeLocked(now time.Time) {
	totalExposure := 0.0
	unrealized := 0.0
	exposurePerMarket := make(map[string]float64, len(m.positions))
	for ticker, p := range m.positions {
		exposure := float64(p.Quantity) * p.AverageEntryPrice
		totalExposure += exposure
		unrealized += p.UnrealizedPnL
		exposurePerMarket[ticker] = exposure
	}

	dailyPnL := m.dailyRealized + unrealized
	dailyLoss := dailyPnL
	if dailyLoss > 0 {
		dailyLoss = 0
	}

	// Session drawdown from the ratcheting peak.
	equity := m.sessionStartEquity + dailyPnL
	if equity > m.sessionPeakEquity {
		m.sessionPeakEquity = equity
	}
	sessionDD := 0.0
	if m.sessionPeakEquity > 0 {
		sessionDD = (m.sessionPeakEquity - equity) / m.sessionPeakEquity
	}
	if sessionDD > m.maxDrawdown {
		m.maxDrawdown = sessionDD
	}

	weeklyDD := m.weeklyDrawdownLocked()

	// Win rate and EV over settled fills.
	wins, closed := 0, 0
	var pnlSum float64
	for _, t := range m.allTrades {
		if t.Status != types.TradeFilled || t.PnL == nil {
			continue
		}
		closed++
		pnlSum += *t.PnL
		if *t.PnL > 0 {
			wins++
		}
	}
	winRate, evPerTrade := 0.0, 0.0
	if closed > 0 {
		winRate = float64(wins) / float64(closed)
		evPerTrade = pnlSum / float64(closed)
	}

	m.metrics = Metrics{
		TotalPositions:          len(m.positions),
		OpenOrdersCount:         m.openOrders,
		TotalExposure:           totalExposure,
		DailyPnL:                dailyPnL,
		DailyLoss:               dailyLoss,
		UnrealizedPnL:           unrealized,
		RealizedPnL:             m.dailyRealized,
		MaxDrawdown:             m.maxDrawdown,
		CurrentDrawdown:         sessionDD,
		WeeklyDrawdown:          weeklyDD,
		WinRate:                 winRate,
		EVPerTrade:              evPerTrade,
		CircuitBreakerTriggered: m.breakerActive,
		CircuitBreakerReason:    m.breakerReason,
		ExposurePerMarket:       exposurePerMarket,
		LastUpdated:             now,
	}

	equityGauge.Set(equity)

	m.checkBreakersLocked()
}

// ————————————————————————————————————————————————————————————————————————
// Circuit breaker
// ————————————————————————————————————————————————————————————————————————

// checkBreakersLocked trips the first breached layer. The reason string
// carries the layer tag that the rollover auto-clears match on.
func (m *Manager) checkBreakersLocked() {
	if m.breakerActive {
		return
	}

	if m.bankroll > 0 && m.metrics.DailyLoss < 0 {
		lossPct := -m.metrics.DailyLoss / m.bankroll
		if lossPct >= m.cfg.DailyLossThreshold {
			m.triggerLocked(fmt.Sprintf("Layer-1 daily loss %.1f%% at or above %.0f%% of bankroll",
				lossPct*100, m.cfg.DailyLossThreshold*100))
			return
		}
	}

	if m.metrics.WeeklyDrawdown >= m.cfg.WeeklyDrawdownCap {
		m.triggerLocked(fmt.Sprintf("Layer-2 weekly drawdown %.1f%% at or above %.0f%%",
			m.metrics.WeeklyDrawdown*100, m.cfg.WeeklyDrawdownCap*100))
		return
	}

	if m.metrics.CurrentDrawdown >= m.cfg.SessionDrawdownThreshold {
		m.triggerLocked(fmt.Sprintf("Layer-3 session drawdown %.1f%% at or above %.0f%%",
			m.metrics.CurrentDrawdown*100, m.cfg.SessionDrawdownThreshold*100))
	}
}

func (m *Manager) triggerLocked(reason string) {
	m.breakerActive = true
	m.breakerAt = time.Now().UTC()
	m.breakerReason = reason
	m.metrics.CircuitBreakerTriggered = true
	m.metrics.CircuitBreakerReason = reason
	breakerTrips.Inc()
	m.logger.Error("CIRCUIT BREAKER TRIGGERED", "reason", reason)
}

// TriggerCircuitBreaker latches the breaker with an operator-supplied reason.
func (m *Manager) TriggerCircuitBreaker(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerActive {
		m.triggerLocked(reason)
	}
}

// ResetCircuitBreaker clears the latch. Operator acknowledgment path.
func (m *Manager) ResetCircuitBreaker() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetBreakerLocked()
}

func (m *Manager) resetBreakerLocked() {
	if !m.breakerActive {
		return
	}
	m.breakerActive = false
	m.breakerAt = time.Time{}
	m.breakerReason = ""
	m.metrics.CircuitBreakerTriggered = false
	m.metrics.CircuitBreakerReason = ""
	m.logger.Warn("circuit breaker reset")
}

// BreakerActive reports the latch state.
func (m *Manager) BreakerActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerActive
}

// ————————————————————————————————————————————————————————————————————————
// Periodic resets
// ————————————————————————————————————————————————————————————————————————

// maybeResetDailyLocked zeroes the daily bucket at UTC midnight and
// auto-clears a Layer-1 trip.
func (m *Manager) maybeResetDailyLocked(now time.Time) {
	today := dateOf(now)
	if !today.After(m.dailyDate) {
		return
	}
	m.logger.Info("day rollover, resetting daily metrics", "previous_daily_pnl", m.dailyRealized)
	m.dailyDate = today
	m.dailyRealized = 0
	if m.breakerActive && strings.Contains(m.breakerReason, "Layer-1") {
		m.resetBreakerLocked()
	}
}

// maybeResetWeeklyLocked re-pins the weekly anchors at Monday 00:00 UTC and
// auto-clears a Layer-2 trip.
func (m *Manager) maybeResetWeeklyLocked(now time.Time) {
	monday := mondayOf(now)
	if !monday.After(m.weeklyStartDate) {
		return
	}
	m.weeklyStartDate = monday
	m.weeklyStartEquity = m.sessionStartEquity + m.dailyRealized
	m.weeklyPeakEquity = m.weeklyStartEquity
	m.logger.Info("week rollover, re-pinning weekly equity", "weekly_start_equity", m.weeklyStartEquity)
	if m.breakerActive && strings.Contains(m.breakerReason, "Layer-2") {
		m.resetBreakerLocked()
	}
}

// ————————————————————————————————————————————————————————————————————————
// Summaries
// ————————————————————————————————————————————————————————————————————————

// PositionSummary is the expanded positions block for the operator surface.
type PositionSummary struct {
	Count              int              `json:"count"`
	Positions          []types.Position `json:"positions"`
	TotalExposure      float64          `json:"total_exposure"`
	TotalUnrealizedPnL float64          `json:"total_unrealized_pnl"`
}

// Summary builds the positions block.
func (m *Manager) Summary() PositionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := PositionSummary{Count: len(m.positions)}
	for _, p := range m.positions {
		out.Positions = append(out.Positions, *p)
		out.TotalExposure += float64(p.Quantity) * p.AverageEntryPrice
		out.TotalUnrealizedPnL += p.UnrealizedPnL
	}
	sort.Slice(out.Positions, func(i, j int) bool { return out.Positions[i].Ticker < out.Positions[j].Ticker })
	return out
}
