package api

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"kalshi-taker/internal/config"
	"kalshi-taker/internal/exchange"
)

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	bot    BotController
	cfg    config.OperatorConfig
	hub    *Hub
	logger *slog.Logger
}

// NewHandlers creates a handlers instance.
func NewHandlers(bot BotController, cfg config.OperatorConfig, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		bot:    bot,
		cfg:    cfg,
		hub:    hub,
		logger: logger.With("component", "api-handlers"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// ————————————————————————————————————————————————————————————————————————
// Health & status
// ————————————————————————————————————————————————————————————————————————

// HandleHealth is the liveness probe: 200 even when the bot is stopped.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "kalshi-taker",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) statusPayload() StatusPayload {
	return StatusPayload{
		Running:           h.bot.Running(),
		DryRun:            h.bot.DryRun(),
		EnabledStrategies: h.bot.EnabledStrategies(),
		RiskMetrics:       h.bot.Risk().Metrics(),
		OrderSummary:      h.bot.Orders().Summary(),
		PositionSummary:   h.bot.Risk().Summary(),
		ClientHealth:      h.bot.Exchange().Health(),
		Timestamp:         time.Now().UTC(),
	}
}

// HandleStatus always answers 200 with the full bot state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.statusPayload())
}

// HandleSystemHealth exposes connectivity and breaker state.
func (h *Handlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	health := h.bot.Exchange().Health()
	metrics := h.bot.Risk().Metrics()
	writeJSON(w, http.StatusOK, SystemHealthPayload{
		APIConnected:          health.Healthy,
		AuthOK:                health.ConsecutiveErrors == 0,
		LastSuccessfulRequest: health.LastSuccessfulRequest,
		ConsecutiveErrors:     health.ConsecutiveErrors,
		TotalRequests:         health.TotalRequests,
		CircuitBreakerActive:  metrics.CircuitBreakerTriggered,
		CircuitBreakerReason:  metrics.CircuitBreakerReason,
		BotRunning:            h.bot.Running(),
		DryRunMode:            h.bot.DryRun(),
		OpenOrders:            metrics.OpenOrdersCount,
		Timestamp:             time.Now().UTC(),
	})
}

// ————————————————————————————————————————————————————————————————————————
// Bot lifecycle
// ————————————————————————————————————————————————————————————————————————

func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if h.bot.Running() {
		writeError(w, http.StatusBadRequest, "bot is already running")
		return
	}
	if err := h.bot.Start(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "bot started", "dry_run": h.bot.DryRun()})
}

func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if !h.bot.Running() {
		writeError(w, http.StatusBadRequest, "bot is not running")
		return
	}
	if err := h.bot.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "bot stopped"})
}

// HandleEmergencyHalt stops everything: bot, strategies, resting orders, and
// latches the breaker until an operator reset.
func (h *Handlers) HandleEmergencyHalt(w http.ResponseWriter, r *http.Request) {
	cancelled := h.bot.EmergencyHalt(r.Context())
	h.hub.BroadcastEvent(Event{
		Type: "alert",
		Data: AlertData{AlertType: "emergency_halt", Message: "EMERGENCY HALT EXECUTED", Level: "critical"},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "EMERGENCY HALT EXECUTED",
		"orders_cancelled": cancelled,
		"circuit_breaker":  true,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) HandleCancelAll(w http.ResponseWriter, r *http.Request) {
	cancelled := h.bot.Orders().CancelAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"message": "orders cancelled", "count": cancelled})
}

func (h *Handlers) HandleBreakerReset(w http.ResponseWriter, r *http.Request) {
	h.bot.Risk().ResetCircuitBreaker()
	writeJSON(w, http.StatusOK, map[string]string{"message": "circuit breaker reset"})
}

// ————————————————————————————————————————————————————————————————————————
// Portfolio
// ————————————————————————————————————————————————————————————————————————

func (h *Handlers) HandleBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.bot.Exchange().GetBalance(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, BalancePayload{
		BalanceCents:         bal.BalanceCents,
		PortfolioValueCents:  bal.PortfolioValueCents,
		BalanceDollars:       float64(bal.BalanceCents) / 100,
		PortfolioValueDollar: float64(bal.PortfolioValueCents) / 100,
		TotalValueDollars:    float64(bal.BalanceCents+bal.PortfolioValueCents) / 100,
	})
}

// HandlePositions merges local position tracking with the exchange's view.
func (h *Handlers) HandlePositions(w http.ResponseWriter, r *http.Request) {
	local := h.bot.Risk().Summary()

	exchangePositions, err := h.bot.Exchange().GetPositions(r.Context())
	if err != nil {
		h.logger.Warn("exchange positions fetch failed", "error", err)
		exchangePositions = nil
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":                local.Count,
		"positions":            local.Positions,
		"total_exposure":       local.TotalExposure,
		"total_unrealized_pnl": local.TotalUnrealizedPnL,
		"exchange_positions":   exchangePositions,
	})
}

func (h *Handlers) HandleFills(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := h.bot.Exchange().GetFills(r.Context(), exchange.FillsQuery{
		Ticker: r.URL.Query().Get("ticker"),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) HandleSettlements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := h.bot.Exchange().GetSettlements(r.Context(), r.URL.Query().Get("ticker"), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.bot.Exchange().ListOrders(r.Context(), r.URL.Query().Get("ticker"), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

// HandleOrderCancel cancels by exchange order id, covering orders the
// manager is not tracking locally.
func (h *Handlers) HandleOrderCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.bot.Orders().CancelByOrderID(r.Context(), id) {
		writeError(w, http.StatusBadGateway, "cancel failed for order "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "order " + id + " cancelled"})
}

func (h *Handlers) HandleQueuePositions(w http.ResponseWriter, r *http.Request) {
	list, err := h.bot.Exchange().GetAllQueuePositions(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue_positions": list})
}

func (h *Handlers) HandleQueuePosition(w http.ResponseWriter, r *http.Request) {
	qp, err := h.bot.Exchange().GetQueuePosition(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, qp)
}

// ————————————————————————————————————————————————————————————————————————
// Trades
// ————————————————————————————————————————————————————————————————————————

func (h *Handlers) HandleTrades(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	trades := h.bot.Orders().CompletedTrades(limit)

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := trades[:0]
		for _, t := range trades {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *Handlers) HandleActiveTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bot.Orders().ActiveTrades())
}

func (h *Handlers) HandleTradeCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.bot.Orders().Cancel(r.Context(), id) {
		writeError(w, http.StatusNotFound, "trade "+id+" not found or not cancellable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "trade " + id + " cancelled"})
}

func (h *Handlers) HandleTradeDecrease(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req DecreaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.ReduceBy == nil) == (req.ReduceTo == nil) {
		writeError(w, http.StatusBadRequest, "provide exactly one of reduce_by or reduce_to")
		return
	}

	if !h.bot.Orders().Decrease(r.Context(), id, req.ReduceBy, req.ReduceTo) {
		writeError(w, http.StatusNotFound, "trade "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "trade " + id + " decreased"})
}

func (h *Handlers) HandleTradeAmend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req AmendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NewPrice == nil && req.NewQuantity == nil {
		writeError(w, http.StatusBadRequest, "provide new_price or new_quantity")
		return
	}

	newOrderID, err := h.bot.Orders().Amend(r.Context(), id, req.NewPrice, req.NewQuantity)
	if err != nil {
		writeError(w, http.StatusNotFound, "trade "+id+" amend failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "trade " + id + " amended",
		"new_order_id": newOrderID,
	})
}

// ————————————————————————————————————————————————————————————————————————
// Bankroll & mode
// ————————————————————————————————————————————————————————————————————————

func (h *Handlers) HandleBankrollGet(w http.ResponseWriter, r *http.Request) {
	riskMgr := h.bot.Risk()
	metrics := riskMgr.Metrics()
	cfg := riskMgr.Config()
	bankroll := riskMgr.Bankroll()

	remaining := bankroll - metrics.TotalExposure
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bankroll":                 bankroll,
		"position_ceiling_pct":     cfg.PositionCeilingPct,
		"daily_loss_threshold":     cfg.DailyLossThreshold,
		"max_concurrent_positions": cfg.MaxConcurrentPositions,
		"total_exposure":           metrics.TotalExposure,
		"remaining_capacity":       remaining,
		"daily_pnl":                metrics.DailyPnL,
	})
}

// HandleBankrollUpdate applies a live bankroll and risk-settings change.
// Takes effect on the next admission check.
func (h *Handlers) HandleBankrollUpdate(w http.ResponseWriter, r *http.Request) {
	var req BankrollUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Bankroll <= 0 {
		writeError(w, http.StatusBadRequest, "bankroll must be > 0")
		return
	}

	h.bot.UpdateBankroll(req.Bankroll, req.PositionCeilingPct, req.DailyLossThreshold)
	if req.KellyFraction != nil {
		h.bot.SetKellyFraction(*req.KellyFraction)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "bankroll updated",
		"bankroll": req.Bankroll,
	})
}

// HandleMode switches between dry_run/paper and live execution. Going live
// requires risk_acknowledged=true and a positive confirmed_bankroll.
func (h *Handlers) HandleMode(w http.ResponseWriter, r *http.Request) {
	var req ModeUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Mode {
	case "dry_run", "paper":
		h.bot.SetDryRun(true)
	case "live":
		if !req.RiskAcknowledged {
			writeError(w, http.StatusBadRequest, "live mode requires risk_acknowledged=true")
			return
		}
		if req.ConfirmedBankroll <= 0 {
			writeError(w, http.StatusBadRequest, "live mode requires confirmed_bankroll > 0")
			return
		}
		h.bot.SetDryRun(false)
		h.hub.BroadcastEvent(Event{
			Type: "alert",
			Data: AlertData{AlertType: "mode_change", Message: "LIVE TRADING ENABLED", Level: "warning"},
		})
	default:
		writeError(w, http.StatusBadRequest, "mode must be one of dry_run, paper, live")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "mode updated", "dry_run": h.bot.DryRun()})
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket
// ————————————————————————————————————————————————————————————————————————

// HandleWebSocket upgrades the connection and wires inbound commands.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.cfg, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(h.hub, conn, h.handleWSCommand)

	// Initial status frame
	client.sendEvent(Event{Type: "status_update", Data: h.statusPayload()})
}

func (h *Handlers) handleWSCommand(cmd string, c *WSClient) {
	switch cmd {
	case "ping":
		c.sendEvent(Event{Type: "pong"})
	case "get_status":
		c.sendEvent(Event{Type: "status_update", Data: h.statusPayload()})
	case "start_bot":
		if !h.bot.Running() {
			if err := h.bot.Start(); err != nil {
				h.logger.Error("ws start_bot failed", "error", err)
			}
		}
		c.sendEvent(Event{Type: "status_update", Data: h.statusPayload()})
	case "stop_bot":
		if h.bot.Running() {
			if err := h.bot.Stop(); err != nil {
				h.logger.Error("ws stop_bot failed", "error", err)
			}
		}
		c.sendEvent(Event{Type: "status_update", Data: h.statusPayload()})
	default:
		h.logger.Debug("unknown ws command", "command", cmd)
	}
}

func isOriginAllowed(origin string, cfg config.OperatorConfig, reqHost string) bool {
	if origin == "" {
		// Non-browser clients often omit Origin; keep this path functional.
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
