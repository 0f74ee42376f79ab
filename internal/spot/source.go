// Package spot fetches the underlying asset's spot price from two
// independent public HTTP endpoints. The primary is tried first on every
// tick; the fallback only when the primary fails. Neither requires
// authentication and both are capped at a short timeout so a slow venue
// never stalls the trading tick.
package spot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"kalshi-taker/internal/config"
)

// Source resolves the current spot price with fallback.
type Source struct {
	primary      *resty.Client
	fallback     *resty.Client
	primaryURL   string
	symbol       string
	fallbackURL  string
	fallbackPair string
	logger       *slog.Logger
}

// NewSource creates a spot-price source from config.
func NewSource(cfg config.SpotConfig, logger *slog.Logger) *Source {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Source{
		primary:      resty.New().SetTimeout(timeout),
		fallback:     resty.New().SetTimeout(timeout),
		primaryURL:   cfg.PrimaryURL,
		symbol:       cfg.PrimarySymbol,
		fallbackURL:  cfg.FallbackURL,
		fallbackPair: cfg.FallbackPair,
		logger:       logger.With("component", "spot"),
	}
}

// Fetch returns the current spot price, trying primary then fallback.
func (s *Source) Fetch(ctx context.Context) (float64, error) {
	price, primaryErr := s.fetchPrimary(ctx)
	if primaryErr == nil {
		return price, nil
	}
	s.logger.Warn("primary spot fetch failed, trying fallback", "error", primaryErr)

	price, fallbackErr := s.fetchFallback(ctx)
	if fallbackErr == nil {
		return price, nil
	}

	return 0, fmt.Errorf("spot price unavailable: primary: %v; fallback: %v", primaryErr, fallbackErr)
}

// fetchPrimary reads {"symbol": "...", "price": "123.45"}.
func (s *Source) fetchPrimary(ctx context.Context) (float64, error) {
	var result struct {
		Price string `json:"price"`
	}
	resp, err := s.primary.R().
		SetContext(ctx).
		SetQueryParam("symbol", s.symbol).
		SetResult(&result).
		Get(s.primaryURL)
	if err != nil {
		return 0, fmt.Errorf("primary fetch: %w", err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("primary fetch: status %d", resp.StatusCode())
	}

	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("primary fetch: bad price %q", result.Price)
	}
	return price, nil
}

// fetchFallback reads the Kraken ticker shape: the last trade price lives at
// result.<pair>.c[0] as a string.
func (s *Source) fetchFallback(ctx context.Context) (float64, error) {
	var result struct {
		Result map[string]struct {
			C []string `json:"c"`
		} `json:"result"`
	}
	resp, err := s.fallback.R().
		SetContext(ctx).
		SetQueryParam("pair", s.fallbackPair).
		SetResult(&result).
		Get(s.fallbackURL)
	if err != nil {
		return 0, fmt.Errorf("fallback fetch: %w", err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("fallback fetch: status %d", resp.StatusCode())
	}

	pair, ok := result.Result[s.fallbackPair]
	if !ok || len(pair.C) == 0 {
		return 0, fmt.Errorf("fallback fetch: pair %s missing from response", s.fallbackPair)
	}
	price, err := strconv.ParseFloat(pair.C[0], 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("fallback fetch: bad price %q", pair.C[0])
	}
	return price, nil
}
