package strategy

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"kalshi-taker/internal/config"
	"kalshi-taker/pkg/types"
)

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
		MinProbability:      0.95,
		MinEdge:             0.05,
		MinTimeRemaining:    30,
		MaxTimeRemaining:    600,
		MinSamples:          5,
		VolLambda:           0.94,
		MicrostructureFloor: 0.0007,
		MomentumWindow:      60,
		VolRegimeLookback:   300,
		VolSpikeThreshold:   2.0,
		NumSimulations:      10000,
		KellyFraction:       0.15,
		PositionFloorPct:    0.005,
		PositionCeilingPct:  0.02,
	}
}

func newTestStrategy() *HighConfidence {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHighConfidence(testStrategyConfig(), 10000, logger)
}

// testMarket is active with the given time remaining and YES at 0.88.
func testMarket(now time.Time, remaining time.Duration, strike float64) types.Market {
	return types.Market{
		Ticker:         "KXSOL15M-T90",
		EventTicker:    "KXSOL15M",
		Status:         types.MarketActive,
		StrikePrice:    strike,
		Direction:      "up",
		WindowStart:    now.Add(remaining - 15*time.Minute),
		WindowEnd:      now.Add(remaining),
		CloseTime:      now.Add(remaining),
		ExpirationTime: now.Add(remaining),
		YesPrice:       0.88,
		NoPrice:        0.12,
	}
}

// calmHistory is 10 gently oscillating spot samples around 100. Few enough
// samples that the spike filter stays out of the way.
func calmHistory() []types.PricePoint {
	return history(100.00, 100.05, 100.00, 100.05, 100.00, 100.05, 100.00, 100.05, 100.00, 100.05)
}

func TestAnalyzeEmitsYesSignal(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()
	now := time.Now().UTC()

	// Spot 100 far above the 90 strike: model conviction clamps at 0.999.
	sig := s.Analyze(testMarket(now, 5*time.Minute, 90), 100, calmHistory(), nil, now)
	if sig == nil {
		t.Fatal("expected a YES signal")
	}
	if sig.Direction != types.SideYes {
		t.Errorf("direction = %v, want yes", sig.Direction)
	}
	if sig.TrueProbability != 0.999 {
		t.Errorf("true probability = %v, want clamp at 0.999", sig.TrueProbability)
	}
	if sig.MarketProbability != 0.88 {
		t.Errorf("market probability = %v", sig.MarketProbability)
	}
	if diff := sig.Edge - 0.119; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("edge = %v, want 0.119", sig.Edge)
	}
	if sig.Strength != types.StrengthHigh {
		t.Errorf("strength = %v, want high", sig.Strength)
	}
	if sig.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", sig.Confidence)
	}
	// 15% Kelly with the >5:1 asymmetry haircut: $101.42 at 0.88 = 115.
	if sig.Quantity != 115 {
		t.Errorf("quantity = %d, want 115", sig.Quantity)
	}
	// No orderbook: recommended price falls back to the last YES price.
	if sig.Price != 0.88 {
		t.Errorf("price = %v, want 0.88", sig.Price)
	}
	if !sig.ExpiresAt.Equal(testMarket(now, 5*time.Minute, 90).CloseTime) {
		t.Error("signal should expire at market close")
	}
}

func TestAnalyzeEmitsNoSignal(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()
	now := time.Now().UTC()

	// Spot 100 far below the 110 strike: implied NO probability 0.999
	// against a NO price of 0.12.
	sig := s.Analyze(testMarket(now, 5*time.Minute, 110), 100, calmHistory(), nil, now)
	if sig == nil {
		t.Fatal("expected a NO signal")
	}
	if sig.Direction != types.SideNo {
		t.Errorf("direction = %v, want no", sig.Direction)
	}
	if sig.MarketProbability != 0.12 {
		t.Errorf("market probability = %v, want 0.12", sig.MarketProbability)
	}
	// No asymmetry haircut at 0.12; ceiling caps dollars at $200.
	if sig.Quantity != 1666 {
		t.Errorf("quantity = %d, want 1666", sig.Quantity)
	}
}

func TestAnalyzeTimeGates(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()
	now := time.Now().UTC()

	tests := []struct {
		remaining time.Duration
		want      bool
	}{
		{29 * time.Second, false},
		{30 * time.Second, true},
		{600 * time.Second, true},
		{601 * time.Second, false},
	}
	for _, tt := range tests {
		sig := s.Analyze(testMarket(now, tt.remaining, 90), 100, calmHistory(), nil, now)
		if got := sig != nil; got != tt.want {
			t.Errorf("remaining %v: signal = %v, want %v", tt.remaining, got, tt.want)
		}
	}
}

func TestAnalyzeRequiresTradeableMarket(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()
	now := time.Now().UTC()

	m := testMarket(now, 5*time.Minute, 90)
	m.Status = types.MarketClosed
	if sig := s.Analyze(m, 100, calmHistory(), nil, now); sig != nil {
		t.Error("closed market should produce no signal")
	}
}

func TestAnalyzeRequiresUsableYesPrice(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()
	now := time.Now().UTC()

	m := testMarket(now, 5*time.Minute, 90)
	m.YesPrice = 0
	if sig := s.Analyze(m, 100, calmHistory(), nil, now); sig != nil {
		t.Error("market without a YES price should produce no signal")
	}
}

func TestAnalyzeRequiresSamples(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()
	now := time.Now().UTC()

	short := history(100, 100.05, 100, 100.05)
	if sig := s.Analyze(testMarket(now, 5*time.Minute, 90), 100, short, nil, now); sig != nil {
		t.Error("four samples should produce no signal")
	}
}

func TestAnalyzeRequiresVolatility(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()
	now := time.Now().UTC()

	flat := history(100, 100, 100, 100, 100, 100)
	if sig := s.Analyze(testMarket(now, 5*time.Minute, 90), 100, flat, nil, now); sig != nil {
		t.Error("zero volatility should produce no signal")
	}
}

func TestAnalyzeSkipsVolatilitySpike(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()
	now := time.Now().UTC()

	prices := make([]float64, 0, 30)
	p := 100.0
	for i := 0; i < 24; i++ {
		if i%2 == 0 {
			p += 0.01
		} else {
			p -= 0.01
		}
		prices = append(prices, p)
	}
	for i := 0; i < 6; i++ {
		if i%2 == 0 {
			p += 5
		} else {
			p -= 5
		}
		prices = append(prices, p)
	}

	if sig := s.Analyze(testMarket(now, 5*time.Minute, 90), 100, history(prices...), nil, now); sig != nil {
		t.Error("volatility-spike regime should produce no signal")
	}
}

func TestAnalyzeNoEdgeNoSignal(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()
	now := time.Now().UTC()

	// Market already prices YES at 0.97: edge 0.029 < 0.05.
	m := testMarket(now, 5*time.Minute, 90)
	m.YesPrice = 0.97
	m.NoPrice = 0.03
	if sig := s.Analyze(m, 100, calmHistory(), nil, now); sig != nil {
		t.Errorf("edge below threshold emitted %+v", sig)
	}
}

func TestRecommendedPriceUndercutsBestAsk(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()
	now := time.Now().UTC()

	ob := &types.Orderbook{
		Ticker:  "KXSOL15M-T90",
		YesAsks: []types.OrderbookLevel{{Price: 0.90, Size: 100}, {Price: 0.92, Size: 50}},
	}
	sig := s.Analyze(testMarket(now, 5*time.Minute, 90), 100, calmHistory(), ob, now)
	if sig == nil {
		t.Fatal("expected signal")
	}
	if sig.Price != 0.89 {
		t.Errorf("price = %v, want best ask − 0.01 = 0.89", sig.Price)
	}
}

func TestPositionSizeFloorAndCeiling(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()

	// Tiny edge: Kelly ≈ 0, but the floor guarantees ⌊50/price⌋.
	if got := s.positionSize(0.0001, 0.50); got != 100 {
		t.Errorf("floored size = %d, want 100 (= $50 / 0.50)", got)
	}

	// Huge edge: ceiling caps at ⌊200/price⌋.
	if got := s.positionSize(0.90, 0.10); got != 2000 {
		t.Errorf("capped size = %d, want 2000 (= $200 / 0.10)", got)
	}

	// Degenerate inputs size to zero.
	if got := s.positionSize(0, 0.50); got != 0 {
		t.Errorf("zero edge size = %d, want 0", got)
	}
	if got := s.positionSize(0.05, 1.0); got != 0 {
		t.Errorf("price 1.0 size = %d, want 0", got)
	}
}

func TestSetEnabledToggles(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()

	if !s.Enabled() {
		t.Fatal("strategy should start enabled")
	}
	s.SetEnabled(false)
	if s.Enabled() {
		t.Error("strategy should be disabled")
	}
}

func TestSetBankrollAffectsSizing(t *testing.T) {
	t.Parallel()
	s := newTestStrategy()

	before := s.positionSize(0.0001, 0.50) // floor-driven: 0.5% of bankroll
	s.SetBankroll(20000)
	after := s.positionSize(0.0001, 0.50)

	if after != before*2 {
		t.Errorf("size before %d, after doubling bankroll %d", before, after)
	}
}
