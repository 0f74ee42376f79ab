// Kalshi Taker — an automated taker bot for Kalshi 15-minute binary price
// markets using a high-confidence threshold model.
//
// Architecture:
//
//	main.go              — entry point: loads config, starts engine + operator server, waits for SIGINT/SIGTERM
//	engine/engine.go     — orchestrator: 1 s decision loop from market discovery to signal execution
//	strategy/hct.go      — high-confidence threshold model: EWMA volatility, GBM probability, Kelly sizing
//	strategy/volatility.go — the quant helpers: log returns, drift, spike filter, Φ
//	orders/manager.go    — signal execution, order lifecycle, cancel/amend/decrease
//	orders/monitor.go    — 2 s status polling, fills reconciliation, stale sweep, paper fills + settlement
//	risk/manager.go      — seven admission gates, P&L windows, three-layer latching circuit breaker
//	exchange/client.go   — Kalshi REST client: RSA-PSS auth, request pacing, retry taxonomy
//	spot/source.go       — spot price with primary/fallback public endpoints
//	api/server.go        — operator REST + WebSocket control surface, Prometheus metrics
//
// How it makes money:
//
//	Every second the bot compares its own probability estimate for the
//	15-minute binary (driven by live spot volatility and drift) against the
//	market's quoted probability. When the model reaches 95% conviction and
//	the market underprices that side by 5% or more, it buys the cheap side,
//	sized at fractional Kelly inside a hard risk envelope.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kalshi-taker/internal/api"
	"kalshi-taker/internal/config"
	"kalshi-taker/internal/engine"
)

func main() {
	// .env first so viper's env overrides see it
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if p := os.Getenv("KALSHI_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger, closeLog, err := buildLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	bot, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	apiServer := api.NewServer(cfg.Operator, bot, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("operator server failed", "error", err)
		}
	}()

	if err := bot.Start(); err != nil {
		logger.Error("failed to start bot", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE: no real orders will be placed")
	}

	logger.Info("kalshi taker started",
		"series", cfg.Exchange.SeriesTicker,
		"bankroll", cfg.Risk.Bankroll,
		"max_positions", cfg.Risk.MaxConcurrentPositions,
		"dry_run", cfg.DryRun,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := apiServer.Stop(); err != nil {
		logger.Error("failed to stop operator server", "error", err)
	}
	bot.Shutdown()
}

// buildLogger creates the slog logger, teeing output to an append-only file
// whose name is derived from startup time.
func buildLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	name := fmt.Sprintf("kalshi-taker_%s.log", time.Now().UTC().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	out := io.MultiWriter(os.Stdout, f)
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), func() { f.Close() }, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
