package strategy

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"kalshi-taker/internal/config"
	"kalshi-taker/pkg/types"
)

// HighConfidence is the high-confidence threshold strategy. It trades both
// YES and NO contracts when the probability model reaches 95% conviction on
// one side and the market prices that side at least 5% too cheap.
//
// Entry conditions, all required:
//  1. Market tradeable, 30 s to 10 min remaining in the window.
//  2. Usable YES price in (0, 1); NO derived as 1 − YES when absent.
//  3. At least MinSamples spot observations.
//  4. Annualised EWMA volatility > 0, floored at MicrostructureFloor/√T.
//  5. No volatility-spike regime.
//  6. Model conviction ≥ MinProbability and edge ≥ MinEdge on the side.
//
// Sizing is fractional Kelly (15%) with a 50% haircut when risk/reward
// exceeds 5:1, clamped to [0.5%, 2%] of bankroll in dollars.
type HighConfidence struct {
	base
	cfg      config.StrategyConfig
	bankroll atomic.Uint64 // float64 bits; live-updatable via the operator surface
	kelly    atomic.Uint64 // float64 bits; live-updatable via the operator surface
	logger   *slog.Logger
}

// NewHighConfidence creates the strategy.
func NewHighConfidence(cfg config.StrategyConfig, bankroll float64, logger *slog.Logger) *HighConfidence {
	h := &HighConfidence{
		base:   newBase("high_confidence_threshold"),
		cfg:    cfg,
		logger: logger.With("component", "strategy", "strategy", "high_confidence_threshold"),
	}
	h.bankroll.Store(math.Float64bits(bankroll))
	h.kelly.Store(math.Float64bits(cfg.KellyFraction))
	return h
}

// SetBankroll updates the sizing reference; takes effect on the next Analyze.
func (h *HighConfidence) SetBankroll(v float64) {
	h.bankroll.Store(math.Float64bits(v))
}

// Bankroll returns the current sizing reference.
func (h *HighConfidence) Bankroll() float64 {
	return math.Float64frombits(h.bankroll.Load())
}

// SetKellyFraction updates the applied Kelly fraction.
func (h *HighConfidence) SetKellyFraction(f float64) {
	h.kelly.Store(math.Float64bits(f))
}

// KellyFraction returns the applied Kelly fraction.
func (h *HighConfidence) KellyFraction() float64 {
	return math.Float64frombits(h.kelly.Load())
}

// Analyze evaluates one market for a YES or NO signal.
func (h *HighConfidence) Analyze(market types.Market, spotPrice float64, history []types.PricePoint, orderbook *types.Orderbook, now time.Time) *types.Signal {
	if !market.IsTradeable(now) {
		return nil
	}

	timeRemaining := market.TimeRemaining(now)
	if timeRemaining < float64(h.cfg.MinTimeRemaining) {
		h.logger.Debug("too close to expiry", "ticker", market.Ticker, "remaining_s", timeRemaining)
		return nil
	}
	if timeRemaining > float64(h.cfg.MaxTimeRemaining) {
		h.logger.Debug("too far from expiry", "ticker", market.Ticker, "remaining_s", timeRemaining)
		return nil
	}

	yesPrice := market.YesPrice
	if yesPrice <= 0 || yesPrice >= 1 {
		return nil
	}
	noPrice := market.NoPrice
	if noPrice == 0 {
		noPrice = 1 - yesPrice
	}

	if len(history) < h.cfg.MinSamples {
		return nil
	}

	vol := ewmaVolatility(history, h.cfg.VolLambda)
	if vol <= 0 {
		return nil
	}

	tYears := timeRemaining / secondsPerYear
	if tYears <= 0 {
		return nil
	}
	// Microstructure floor: short windows otherwise produce spurious
	// near-certainty from a handful of quiet samples.
	volFloor := h.cfg.MicrostructureFloor / math.Sqrt(tYears)
	volTotal := math.Max(vol, volFloor)

	if detectVolatilitySpike(history, h.cfg.VolRegimeLookback, h.cfg.VolSpikeThreshold) {
		h.logger.Info("volatility clustering, skipping", "ticker", market.Ticker)
		return nil
	}

	drift := momentumDrift(history, h.cfg.MomentumWindow)

	var trueProb float64
	if h.cfg.UseMonteCarlo {
		trueProb = monteCarloProbability(spotPrice, market.StrikePrice, tYears, volTotal, drift, h.cfg.NumSimulations)
	} else {
		trueProb = probabilityAboveStrike(spotPrice, market.StrikePrice, tYears, volTotal, drift)
	}

	yesSignal := h.evaluateSide(types.SideYes, trueProb, yesPrice, market, orderbook, timeRemaining, volTotal, drift, now)
	noSignal := h.evaluateSide(types.SideNo, 1-trueProb, noPrice, market, orderbook, timeRemaining, volTotal, drift, now)

	// Both sides passing means the better edge wins; ties go to YES.
	var signal *types.Signal
	switch {
	case yesSignal != nil && noSignal != nil:
		if yesSignal.Edge >= noSignal.Edge {
			signal = yesSignal
		} else {
			signal = noSignal
		}
	case yesSignal != nil:
		signal = yesSignal
	default:
		signal = noSignal
	}

	if signal != nil {
		h.noteSignal(now)
		h.logger.Warn("signal",
			"ticker", signal.Ticker,
			"direction", signal.Direction,
			"prob", signal.TrueProbability,
			"edge", signal.Edge,
			"qty", signal.Quantity,
			"price", signal.Price,
		)
	}
	return signal
}

// evaluateSide checks conviction and edge for one side and sizes the trade.
// sideProb is the model probability that THIS side pays out; sidePrice is
// the market's price for it.
func (h *HighConfidence) evaluateSide(side types.Side, sideProb, sidePrice float64, market types.Market, orderbook *types.Orderbook, timeRemaining, vol, drift float64, now time.Time) *types.Signal {
	if sideProb < h.cfg.MinProbability {
		return nil
	}

	edge := sideProb - sidePrice
	if edge < h.cfg.MinEdge {
		return nil
	}

	quantity := h.positionSize(edge, sidePrice)
	if quantity <= 0 {
		return nil
	}

	price := h.optimalPrice(side, market, orderbook)
	if price < 0.01 {
		price = 0.01
	}
	strength := strengthFor(edge)

	return &types.Signal{
		StrategyName:      h.name,
		Ticker:            market.Ticker,
		Direction:         side,
		Strength:          strength,
		TrueProbability:   sideProb,
		MarketProbability: sidePrice,
		Edge:              edge,
		Quantity:          quantity,
		Price:             price,
		Confidence:        confidenceFor(strength),
		Reasoning: fmt.Sprintf(
			"%s signal: model=%.1f%%, market=%.1f%%, edge=%.1f%%, vol=%.3f, time=%.1fmin, drift=%.4f",
			side, sideProb*100, sidePrice*100, edge*100, vol, timeRemaining/60, drift,
		),
		CreatedAt: now,
		ExpiresAt: market.CloseTime,
	}
}

// positionSize applies 15% Kelly with the asymmetric-payoff haircut and the
// hard floor/ceiling, then converts dollars to contracts.
func (h *HighConfidence) positionSize(edge, marketPrice float64) int {
	if edge <= 0 || marketPrice <= 0 || marketPrice >= 1 {
		return 0
	}

	bankroll := h.Bankroll()
	fullKelly := edge / marketPrice
	adjusted := fullKelly * h.KellyFraction()

	// Paying 5x the potential reward deserves half the size.
	riskReward := marketPrice / (1 - marketPrice)
	if riskReward > 5.0 {
		adjusted *= 0.5
		h.logger.Debug("asymmetric haircut applied", "risk_reward", riskReward)
	}

	dollars := bankroll * adjusted
	dollars = math.Max(dollars, bankroll*h.cfg.PositionFloorPct)
	dollars = math.Min(dollars, bankroll*h.cfg.PositionCeilingPct)

	quantity := int(dollars / marketPrice)
	if quantity < 1 {
		quantity = 1
	}
	return quantity
}

// optimalPrice undercuts the best resting ask by one cent when a book is
// available, otherwise falls back to the side's last market price.
func (h *HighConfidence) optimalPrice(side types.Side, market types.Market, orderbook *types.Orderbook) float64 {
	fallback := market.YesPrice
	if side == types.SideNo {
		fallback = market.NoPrice
		if fallback == 0 && market.YesPrice > 0 {
			fallback = 1 - market.YesPrice
		}
	}
	if orderbook == nil {
		return fallback
	}

	var ask float64
	var ok bool
	if side == types.SideYes {
		ask, ok = orderbook.BestYesAsk()
	} else {
		ask, ok = orderbook.BestNoAsk()
	}
	if !ok {
		return fallback
	}
	return math.Max(0.01, ask-0.01)
}
