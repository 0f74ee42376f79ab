package api

import (
	"context"
	"time"

	"kalshi-taker/internal/exchange"
	"kalshi-taker/internal/orders"
	"kalshi-taker/internal/risk"
)

// Event is the wrapper for every frame pushed over the operator WebSocket:
// "status_update", "trading_signal", "trade_execution", "alert".
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// AlertData is the payload of an "alert" frame.
type AlertData struct {
	AlertType string `json:"alert_type"`
	Message   string `json:"message"`
	Level     string `json:"level"` // info, warning, error, critical
}

// BotController is what the operator surface needs from the trading engine.
// Defined here so the engine can depend on this package for Event without a
// cycle.
type BotController interface {
	Start() error
	Stop() error
	Running() bool
	DryRun() bool
	SetDryRun(dry bool)

	EnabledStrategies() []string
	DisableAllStrategies()
	SetKellyFraction(f float64)

	// EmergencyHalt stops the bot, disables every strategy, cancels all
	// resting orders, and latches the circuit breaker. Returns the number
	// of orders cancelled.
	EmergencyHalt(ctx context.Context) int

	UpdateBankroll(bankroll float64, ceilingPct, dailyLossThreshold *float64)

	Risk() *risk.Manager
	Orders() *orders.Manager
	Exchange() *exchange.Client

	// Events returns the engine's push-event stream (may be nil).
	Events() <-chan Event
}

// StatusPayload is the GET /status (and status_update frame) body.
type StatusPayload struct {
	Running           bool                 `json:"running"`
	DryRun            bool                 `json:"dry_run"`
	EnabledStrategies []string             `json:"enabled_strategies"`
	RiskMetrics       risk.Metrics         `json:"risk_metrics"`
	OrderSummary      orders.OrderSummary  `json:"order_summary"`
	PositionSummary   risk.PositionSummary `json:"position_summary"`
	ClientHealth      exchange.HealthInfo  `json:"client_health"`
	Timestamp         time.Time            `json:"timestamp"`
}

// SystemHealthPayload is the GET /system/health body. It always answers,
// breaker latched or not.
type SystemHealthPayload struct {
	APIConnected          bool       `json:"api_connected"`
	AuthOK                bool       `json:"auth_ok"`
	LastSuccessfulRequest *time.Time `json:"last_successful_request"`
	ConsecutiveErrors     int        `json:"consecutive_errors"`
	TotalRequests         int        `json:"total_requests"`
	CircuitBreakerActive  bool       `json:"circuit_breaker_active"`
	CircuitBreakerReason  string     `json:"circuit_breaker_reason"`
	BotRunning            bool       `json:"bot_running"`
	DryRunMode            bool       `json:"dry_run_mode"`
	OpenOrders            int        `json:"open_orders"`
	Timestamp             time.Time  `json:"timestamp"`
}

// BalancePayload is the GET /balance body, converted from cents.
type BalancePayload struct {
	BalanceCents         int     `json:"balance_cents"`
	PortfolioValueCents  int     `json:"portfolio_value_cents"`
	BalanceDollars       float64 `json:"balance_dollars"`
	PortfolioValueDollar float64 `json:"portfolio_value_dollars"`
	TotalValueDollars    float64 `json:"total_value_dollars"`
}

// BankrollUpdate is the POST /bankroll request.
type BankrollUpdate struct {
	Bankroll           float64  `json:"bankroll"`
	KellyFraction      *float64 `json:"kelly_fraction,omitempty"`
	PositionCeilingPct *float64 `json:"position_ceiling_pct,omitempty"`
	DailyLossThreshold *float64 `json:"daily_loss_threshold,omitempty"`
}

// ModeUpdate is the POST /mode request. Switching to live demands an
// explicit risk acknowledgment and a confirmed bankroll.
type ModeUpdate struct {
	Mode              string  `json:"mode"` // "dry_run" | "paper" | "live"
	RiskAcknowledged  bool    `json:"risk_acknowledged"`
	ConfirmedBankroll float64 `json:"confirmed_bankroll"`
}

// DecreaseRequest is the POST /trades/{id}/decrease request. Exactly one of
// the two fields must be set.
type DecreaseRequest struct {
	ReduceBy *int `json:"reduce_by,omitempty"`
	ReduceTo *int `json:"reduce_to,omitempty"`
}

// AmendRequest is the POST /trades/{id}/amend request.
type AmendRequest struct {
	NewPrice    *float64 `json:"new_price,omitempty"`
	NewQuantity *int     `json:"new_quantity,omitempty"`
}
