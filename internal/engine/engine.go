// Package engine is the central orchestrator of the trading bot.
//
// It wires together all subsystems:
//
//  1. The exchange client and spot-price source feed the trading loop.
//  2. The trading loop ticks every second: discover markets for the series,
//     narrow to the active 15-minute window, fetch spot price and book, run
//     each enabled strategy, and hand signals to the order manager.
//  3. The order manager gates signals through the risk manager, submits,
//     and its background monitor walks every order to a terminal state.
//  4. The operator surface starts/stops the loop and streams state.
//
// Lifecycle: New() → Start() → [operator start/stop at will] → Shutdown().
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kalshi-taker/internal/api"
	"kalshi-taker/internal/config"
	"kalshi-taker/internal/exchange"
	"kalshi-taker/internal/orders"
	"kalshi-taker/internal/risk"
	"kalshi-taker/internal/spot"
	"kalshi-taker/internal/strategy"
	"kalshi-taker/pkg/types"
)

const (
	tickInterval = time.Second

	// Backoffs when the discovery funnel comes up empty.
	noMarketsBackoff   = 10 * time.Second
	noTradeableBackoff = 10 * time.Second
	noActiveBackoff    = 5 * time.Second
	errorBackoff       = 5 * time.Second

	// priceHistoryWindow is the trailing spot history the strategies see.
	priceHistoryWindow = 15 * time.Minute
)

// Bot coordinates strategies, execution, and risk management.
type Bot struct {
	cfg      config.Config
	client   *exchange.Client
	spot     *spot.Source
	riskMgr  *risk.Manager
	orderMgr *orders.Manager
	logger   *slog.Logger

	strategies []strategy.Strategy
	hct        *strategy.HighConfidence

	// priceHistory is the rolling 15-minute spot window, pruned each tick.
	historyMu    sync.Mutex
	priceHistory []types.PricePoint

	events chan api.Event

	runMu     sync.Mutex
	running   bool
	loopCancel context.CancelFunc
	group     *errgroup.Group
}

// New creates and wires all components. The bot starts stopped; Start (or
// the operator surface) launches the loops.
func New(cfg config.Config, logger *slog.Logger) (*Bot, error) {
	client, err := exchange.NewClient(cfg.Exchange, cfg.DryRun, logger)
	if err != nil {
		return nil, err
	}

	riskMgr := risk.NewManager(cfg.Risk, logger)
	orderMgr := orders.NewManager(client, riskMgr, cfg.DryRun, logger)
	spotSrc := spot.NewSource(cfg.Spot, logger)

	b := &Bot{
		cfg:      cfg,
		client:   client,
		spot:     spotSrc,
		riskMgr:  riskMgr,
		orderMgr: orderMgr,
		logger:   logger.With("component", "engine"),
		events:   make(chan api.Event, 100),
	}

	for _, name := range cfg.Strategy.Enabled {
		switch name {
		case "high_confidence_threshold":
			b.hct = strategy.NewHighConfidence(cfg.Strategy, cfg.Risk.Bankroll, logger)
			b.strategies = append(b.strategies, b.hct)
		default:
			logger.Warn("unknown strategy", "name", name)
		}
	}
	if len(b.strategies) == 0 {
		return nil, fmt.Errorf("no strategies enabled")
	}

	return b, nil
}

// ————————————————————————————————————————————————————————————————————————
// Lifecycle
// ————————————————————————————————————————————————————————————————————————

// Start launches the order monitor and the trading loop.
func (b *Bot) Start() error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.running {
		return fmt.Errorf("bot is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	b.orderMgr.StartMonitor(ctx)
	g.Go(func() error {
		b.tradingLoop(gctx)
		return nil
	})

	b.loopCancel = cancel
	b.group = g
	b.running = true

	b.logger.Info("trading bot started", "dry_run", b.orderMgr.DryRun())
	return nil
}

// Stop cancels the monitor, awaits its cooperative exit, then drops the
// trading loop. In-flight orders keep their last observed state; nothing is
// implicitly cancelled.
func (b *Bot) Stop() error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if !b.running {
		return fmt.Errorf("bot is not running")
	}

	b.orderMgr.StopMonitor()
	b.loopCancel()
	_ = b.group.Wait()

	b.running = false
	b.loopCancel = nil
	b.group = nil

	b.logger.Info("trading bot stopped")
	return nil
}

// Running reports whether the trading loop is live.
func (b *Bot) Running() bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.running
}

// Shutdown stops everything for process exit.
func (b *Bot) Shutdown() {
	if b.Running() {
		_ = b.Stop()
	}
	close(b.events)
	b.logger.Info("shutdown complete")
}

// ————————————————————————————————————————————————————————————————————————
// Trading loop
// ————————————————————————————————————————————————————————————————————————

func (b *Bot) tradingLoop(ctx context.Context) {
	b.logger.Info("trading loop started", "series", b.cfg.Exchange.SeriesTicker)

	for {
		delay := b.tick(ctx)
		select {
		case <-ctx.Done():
			b.logger.Info("trading loop exited")
			return
		case <-time.After(delay):
		}
	}
}

// tick runs one pass of the decision pipeline and returns how long to wait
// before the next one. Every failure logs and backs off; nothing aborts the
// loop.
func (b *Bot) tick(ctx context.Context) time.Duration {
	now := time.Now().UTC()

	// 1. Discover open markets for the series.
	markets, err := b.client.ListMarkets(ctx, b.cfg.Exchange.SeriesTicker, "open", 100)
	if err != nil {
		if ctx.Err() != nil {
			return errorBackoff
		}
		b.logger.Error("market discovery failed", "error", err)
		return errorBackoff
	}
	if len(markets) == 0 {
		b.logger.Info("no markets returned for series, waiting", "series", b.cfg.Exchange.SeriesTicker)
		return noMarketsBackoff
	}

	// 2. Narrow to tradeable.
	tradeable := markets[:0]
	for _, m := range markets {
		if m.IsTradeable(now) {
			tradeable = append(tradeable, m)
		}
	}
	if len(tradeable) == 0 {
		b.logger.Info("markets found but none tradeable, waiting", "total", len(markets))
		return noTradeableBackoff
	}

	// 3. Narrow to the current 15-minute window.
	var active []types.Market
	for _, m := range tradeable {
		if m.IsActive(now) {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		b.logger.Info("tradeable markets exist but none in the current window, waiting",
			"tradeable", len(tradeable))
		return noActiveBackoff
	}

	// 4. Deterministic selection: first market in exchange order.
	market := active[0]

	// 5. Spot price, primary then fallback. Full failure skips the tick.
	spotPrice, err := b.spot.Fetch(ctx)
	if err != nil {
		b.logger.Warn("spot price unavailable, skipping tick", "error", err)
		return errorBackoff
	}

	// 6. Orderbook is best-effort; strategies handle nil.
	orderbook, err := b.client.GetOrderbook(ctx, market.Ticker)
	if err != nil {
		b.logger.Warn("orderbook fetch failed", "ticker", market.Ticker, "error", err)
		orderbook = nil
	}

	// 7. Run every enabled strategy and execute its signals.
	history := b.historySnapshot()
	for _, strat := range b.strategies {
		if !strat.Enabled() {
			continue
		}

		sig := strat.Analyze(market, spotPrice, history, orderbook, now)
		if sig == nil || !sig.IsValid(now) {
			continue
		}

		b.emit(api.Event{Type: "trading_signal", Data: sig})

		trade := b.orderMgr.ExecuteSignal(ctx, *sig)
		if trade != nil {
			b.emit(api.Event{Type: "trade_execution", Data: trade})
		}
	}

	// 8. Fold the observation into the rolling history.
	b.appendPrice(spotPrice, now)

	return tickInterval
}

func (b *Bot) appendPrice(price float64, now time.Time) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.priceHistory = append(b.priceHistory, types.PricePoint{
		Price:       price,
		TimestampMS: now.UnixMilli(),
	})

	cutoff := now.Add(-priceHistoryWindow).UnixMilli()
	i := 0
	for i < len(b.priceHistory) && b.priceHistory[i].TimestampMS < cutoff {
		i++
	}
	if i > 0 {
		b.priceHistory = b.priceHistory[i:]
	}
}

func (b *Bot) historySnapshot() []types.PricePoint {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	out := make([]types.PricePoint, len(b.priceHistory))
	copy(out, b.priceHistory)
	return out
}

func (b *Bot) emit(evt api.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	select {
	case b.events <- evt:
	default:
		// Operator surface can't keep up, drop the event.
	}
}

// ————————————————————————————————————————————————————————————————————————
// Operator surface (api.BotController)
// ————————————————————————————————————————————————————————————————————————

// DryRun reports the execution mode.
func (b *Bot) DryRun() bool { return b.orderMgr.DryRun() }

// SetDryRun switches execution mode on the order manager and the exchange
// client together.
func (b *Bot) SetDryRun(dry bool) {
	b.orderMgr.SetDryRun(dry)
	b.client.SetDryRun(dry)
	b.logger.Warn("execution mode changed", "dry_run", dry)
}

// EnabledStrategies lists the names of currently enabled strategies.
func (b *Bot) EnabledStrategies() []string {
	var names []string
	for _, s := range b.strategies {
		if s.Enabled() {
			names = append(names, s.Name())
		}
	}
	return names
}

// DisableAllStrategies turns every strategy off (emergency halt path).
func (b *Bot) DisableAllStrategies() {
	for _, s := range b.strategies {
		s.SetEnabled(false)
	}
}

// SetKellyFraction updates the sizing fraction on strategies that use it.
func (b *Bot) SetKellyFraction(f float64) {
	if b.hct != nil && f > 0 && f <= 1 {
		b.hct.SetKellyFraction(f)
		b.logger.Info("kelly fraction updated", "fraction", f)
	}
}

// EmergencyHalt stops the bot, disables strategies, cancels all resting
// orders, and latches the circuit breaker. Returns orders cancelled.
func (b *Bot) EmergencyHalt(ctx context.Context) int {
	if b.Running() {
		_ = b.Stop()
	}
	b.DisableAllStrategies()
	cancelled := b.orderMgr.CancelAll(ctx)
	b.riskMgr.TriggerCircuitBreaker("OPERATOR EMERGENCY HALT")
	b.logger.Error("EMERGENCY HALT EXECUTED", "orders_cancelled", cancelled)
	return cancelled
}

// UpdateBankroll applies a live bankroll/risk change and propagates the new
// sizing reference to the strategies.
func (b *Bot) UpdateBankroll(bankroll float64, ceilingPct, dailyLossThreshold *float64) {
	b.riskMgr.UpdateLimits(bankroll, ceilingPct, dailyLossThreshold)
	if b.hct != nil {
		b.hct.SetBankroll(bankroll)
	}
}

// Risk exposes the risk manager to the operator surface.
func (b *Bot) Risk() *risk.Manager { return b.riskMgr }

// Orders exposes the order manager to the operator surface.
func (b *Bot) Orders() *orders.Manager { return b.orderMgr }

// Exchange exposes the exchange client to the operator surface.
func (b *Bot) Exchange() *exchange.Client { return b.client }

// Events returns the push-event stream consumed by the operator surface.
func (b *Bot) Events() <-chan api.Event { return b.events }
