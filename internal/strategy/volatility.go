package strategy

import (
	"math"
	"math/rand/v2"
	"sort"

	"kalshi-taker/pkg/types"
)

// secondsPerYear annualises per-sample statistics (Julian year).
const secondsPerYear = 31_557_600

// logReturns sorts the history by timestamp and returns ln(p_i / p_{i-1})
// for each consecutive pair.
func logReturns(history []types.PricePoint) []float64 {
	if len(history) < 2 {
		return nil
	}

	sorted := make([]types.PricePoint, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TimestampMS < sorted[j].TimestampMS
	})

	returns := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Price <= 0 || sorted[i].Price <= 0 {
			continue
		}
		returns = append(returns, math.Log(sorted[i].Price/sorted[i-1].Price))
	}
	return returns
}

// ewmaVolatility computes annualised EWMA volatility over log returns.
// The recurrence v = λ·v + (1−λ)·r² runs chronologically from v = 0, so the
// most recent observation carries the most weight. The resulting variance
// is annualised before the square root.
func ewmaVolatility(history []types.PricePoint, lambda float64) float64 {
	returns := logReturns(history)
	if len(returns) == 0 {
		return 0
	}

	variance := 0.0
	for _, r := range returns {
		variance = lambda*variance + (1-lambda)*r*r
	}
	return math.Sqrt(variance * secondsPerYear)
}

// momentumDrift is the annualised mean log return over the trailing
// windowSec seconds. Returns 0 when fewer than two samples fall inside.
func momentumDrift(history []types.PricePoint, windowSec int) float64 {
	if len(history) < 2 {
		return 0
	}

	var newest int64
	for _, p := range history {
		if p.TimestampMS > newest {
			newest = p.TimestampMS
		}
	}
	cutoff := newest - int64(windowSec)*1000

	var recent []types.PricePoint
	for _, p := range history {
		if p.TimestampMS >= cutoff {
			recent = append(recent, p)
		}
	}

	returns := logReturns(recent)
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	return sum / float64(len(returns)) * secondsPerYear
}

// detectVolatilitySpike compares recent realized volatility against the
// preceding stretch inside lookbackSec. The returns are split at 80% of
// length; a recent/historical ratio above threshold means the regime has
// shifted and near-expiry probability estimates cannot be trusted.
func detectVolatilitySpike(history []types.PricePoint, lookbackSec int, threshold float64) bool {
	if len(history) < 20 {
		return false
	}

	var newest int64
	for _, p := range history {
		if p.TimestampMS > newest {
			newest = p.TimestampMS
		}
	}
	cutoff := newest - int64(lookbackSec)*1000

	var recent []types.PricePoint
	for _, p := range history {
		if p.TimestampMS >= cutoff {
			recent = append(recent, p)
		}
	}
	if len(recent) < 10 {
		return false
	}

	returns := logReturns(recent)
	if len(returns) < 5 {
		return false
	}

	split := int(float64(len(returns)) * 0.8)
	recentVol := stddev(returns[split:])
	histVol := stddev(returns[:split])

	return histVol > 0 && recentVol/histVol > threshold
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}

// probabilityAboveStrike is the closed-form P(S_T > K) under GBM:
// Φ(d) with d = (ln(S0/K) + (μ − σ²/2)·T) / (σ·√T).
// Degenerate inputs return 0.5; the output is clamped to [0.001, 0.999]
// before any edge math sees it.
func probabilityAboveStrike(s0, k, tYears, sigma, mu float64) float64 {
	if tYears <= 0 || sigma <= 0 || s0 <= 0 || k <= 0 {
		return 0.5
	}
	d := (math.Log(s0/k) + (mu-0.5*sigma*sigma)*tYears) / (sigma * math.Sqrt(tYears))
	return clampProbability(normCDF(d))
}

// monteCarloProbability estimates P(S_T > K) with n GBM terminal draws:
// S_T = S0·exp((μ − σ²/2)·T + σ·√T·Z).
func monteCarloProbability(s0, k, tYears, sigma, mu float64, n int) float64 {
	if tYears <= 0 || sigma <= 0 || s0 <= 0 || k <= 0 {
		return 0.5
	}
	if n <= 0 {
		n = 10000
	}

	drift := (mu - 0.5*sigma*sigma) * tYears
	diffusion := sigma * math.Sqrt(tYears)

	above := 0
	for i := 0; i < n; i++ {
		st := s0 * math.Exp(drift+diffusion*rand.NormFloat64())
		if st > k {
			above++
		}
	}
	return clampProbability(float64(above) / float64(n))
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func clampProbability(p float64) float64 {
	if p < 0.001 {
		return 0.001
	}
	if p > 0.999 {
		return 0.999
	}
	return p
}
