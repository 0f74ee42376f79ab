package strategy

import (
	"math"
	"testing"

	"kalshi-taker/pkg/types"
)

// history builds evenly spaced price points, one second apart, starting at a
// fixed epoch-millisecond base.
func history(prices ...float64) []types.PricePoint {
	out := make([]types.PricePoint, len(prices))
	base := int64(1_700_000_000_000)
	for i, p := range prices {
		out[i] = types.PricePoint{Price: p, TimestampMS: base + int64(i)*1000}
	}
	return out
}

func TestEWMAVolatilityConstantPrices(t *testing.T) {
	t.Parallel()
	h := history(100, 100, 100, 100, 100)
	if got := ewmaVolatility(h, 0.94); got != 0 {
		t.Errorf("constant prices vol = %v, want 0", got)
	}
}

func TestEWMAVolatilitySingleReturn(t *testing.T) {
	t.Parallel()
	h := history(100, 101)
	got := ewmaVolatility(h, 0.94)

	// One return r: variance = (1-λ)·r², annualised.
	r := math.Log(101.0 / 100.0)
	want := math.Sqrt(0.06 * r * r * secondsPerYear)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("vol = %v, want %v", got, want)
	}
}

func TestEWMAVolatilityWeightsRecentMost(t *testing.T) {
	t.Parallel()

	// One 5% jump among small moves: the jump at the end must produce
	// higher vol than the same jump at the start.
	calm := history(100, 105, 105.1, 105.2, 105.1, 105.2)
	spiky := history(100.1, 100.2, 100.1, 100.2, 100, 105)

	if ewmaVolatility(spiky, 0.94) <= ewmaVolatility(calm, 0.94) {
		t.Error("recent move should be weighted more than an old one")
	}
}

func TestEWMAVolatilityUnsortedInput(t *testing.T) {
	t.Parallel()

	sorted := history(100, 101, 102, 101, 100)
	shuffled := []types.PricePoint{sorted[3], sorted[0], sorted[4], sorted[1], sorted[2]}

	if ewmaVolatility(sorted, 0.94) != ewmaVolatility(shuffled, 0.94) {
		t.Error("volatility must sort by timestamp before differencing")
	}
}

func TestMomentumDriftDirection(t *testing.T) {
	t.Parallel()

	up := history(100, 101, 102, 103, 104)
	if drift := momentumDrift(up, 60); drift <= 0 {
		t.Errorf("uptrend drift = %v, want > 0", drift)
	}

	down := history(104, 103, 102, 101, 100)
	if drift := momentumDrift(down, 60); drift >= 0 {
		t.Errorf("downtrend drift = %v, want < 0", drift)
	}
}

func TestMomentumDriftTooFewSamples(t *testing.T) {
	t.Parallel()
	if drift := momentumDrift(history(100), 60); drift != 0 {
		t.Errorf("drift = %v, want 0", drift)
	}
}

func TestDetectVolatilitySpikeNeedsSamples(t *testing.T) {
	t.Parallel()
	h := history(100, 101, 100, 101, 100)
	if detectVolatilitySpike(h, 300, 2.0) {
		t.Error("fewer than 20 samples can never flag a spike")
	}
}

func TestDetectVolatilitySpike(t *testing.T) {
	t.Parallel()

	// 24 calm samples then 6 violent ones: recent σ blows out historical σ.
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

	if !detectVolatilitySpike(history(prices...), 300, 2.0) {
		t.Error("violent recent tail should flag a spike")
	}

	calm := make([]float64, 30)
	for i := range calm {
		calm[i] = 100 + 0.01*float64(i%2)
	}
	if detectVolatilitySpike(history(calm...), 300, 2.0) {
		t.Error("uniform history should not flag a spike")
	}
}

func TestNormCDF(t *testing.T) {
	t.Parallel()

	if got := normCDF(0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Φ(0) = %v, want 0.5", got)
	}
	if got := normCDF(1.96); math.Abs(got-0.975) > 0.001 {
		t.Errorf("Φ(1.96) = %v, want ~0.975", got)
	}
	if got := normCDF(-1.96); math.Abs(got-0.025) > 0.001 {
		t.Errorf("Φ(-1.96) = %v, want ~0.025", got)
	}
}

func TestProbabilityAboveStrikeClamped(t *testing.T) {
	t.Parallel()

	// Deep in the money with tiny vol: raw Φ ≈ 1, must clamp to 0.999.
	if got := probabilityAboveStrike(200, 100, 0.001, 0.05, 0); got != 0.999 {
		t.Errorf("p = %v, want clamp at 0.999", got)
	}
	// Deep out of the money: clamp at 0.001.
	if got := probabilityAboveStrike(50, 100, 0.001, 0.05, 0); got != 0.001 {
		t.Errorf("p = %v, want clamp at 0.001", got)
	}
}

func TestProbabilityDegenerateInputs(t *testing.T) {
	t.Parallel()

	for _, tc := range [][5]float64{
		{100, 100, 0, 0.5, 0},  // T = 0
		{100, 100, 0.1, 0, 0},  // σ = 0
		{0, 100, 0.1, 0.5, 0},  // S0 = 0
		{100, 0, 0.1, 0.5, 0},  // K = 0
	} {
		if got := probabilityAboveStrike(tc[0], tc[1], tc[2], tc[3], tc[4]); got != 0.5 {
			t.Errorf("degenerate input %v: p = %v, want 0.5", tc, got)
		}
	}
}

func TestMonteCarloAgreesWithClosedForm(t *testing.T) {
	t.Parallel()

	s0, k, tYears, sigma, mu := 100.0, 98.0, 0.01, 0.4, 0.0
	closed := probabilityAboveStrike(s0, k, tYears, sigma, mu)
	mc := monteCarloProbability(s0, k, tYears, sigma, mu, 50000)

	if math.Abs(closed-mc) > 0.02 {
		t.Errorf("closed form %v vs monte carlo %v diverge", closed, mc)
	}
}
