// Package strategy implements signal generation for 15-minute binary
// markets.
//
// A Strategy looks at one market plus the live spot price and its trailing
// history, and either emits a Signal or nothing. Strategies are pure over
// their inputs and internal configuration: Analyze may be called
// concurrently for different markets and must not mutate shared state
// between calls (the enabled flag and signal counters are the only mutable
// bits, guarded separately).
//
// One strategy ships built in, the high-confidence threshold model (hct.go).
// New strategies plug in by conforming to the Strategy interface.
package strategy

import (
	"sync"
	"sync/atomic"
	"time"

	"kalshi-taker/pkg/types"
)

// Strategy is the contract between the trading loop and a signal model.
type Strategy interface {
	// Name returns the strategy's registry name.
	Name() string
	// Analyze evaluates one market and returns a signal, or nil when any
	// gate fails. orderbook may be nil when the book fetch failed.
	Analyze(market types.Market, spotPrice float64, history []types.PricePoint, orderbook *types.Orderbook, now time.Time) *types.Signal
	// Enabled reports whether the loop should run this strategy.
	Enabled() bool
	// SetEnabled toggles the strategy (operator halt disables all).
	SetEnabled(enabled bool)
}

// base carries the bookkeeping every strategy shares.
type base struct {
	name        string
	enabled     atomic.Bool
	signalCount atomic.Int64

	mu         sync.Mutex
	lastSignal time.Time
}

func newBase(name string) base {
	b := base{name: name}
	b.enabled.Store(true)
	return b
}

func (b *base) Name() string             { return b.name }
func (b *base) Enabled() bool            { return b.enabled.Load() }
func (b *base) SetEnabled(enabled bool)  { b.enabled.Store(enabled) }
func (b *base) SignalCount() int64       { return b.signalCount.Load() }

func (b *base) noteSignal(now time.Time) {
	b.signalCount.Add(1)
	b.mu.Lock()
	b.lastSignal = now
	b.mu.Unlock()
}

// confidenceFor maps signal strength to a confidence score.
func confidenceFor(strength types.SignalStrength) float64 {
	switch strength {
	case types.StrengthHigh:
		return 0.9
	case types.StrengthMedium:
		return 0.75
	default:
		return 0.6
	}
}

// strengthFor buckets an edge: high at 10%+, medium at 7%+, low below.
func strengthFor(edge float64) types.SignalStrength {
	switch {
	case edge >= 0.10:
		return types.StrengthHigh
	case edge >= 0.07:
		return types.StrengthMedium
	default:
		return types.StrengthLow
	}
}
