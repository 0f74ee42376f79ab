// Package api is the operator control surface: REST commands, a WebSocket
// stream of bot state, and the Prometheus metrics endpoint, all mounted
// under a configurable prefix.
//
// REST essentials:
//
//	POST {p}/start /stop /emergency/halt /emergency/cancel-all /circuit-breaker/reset
//	GET  {p}/status /system/health /balance /positions /fills /settlements
//	GET  {p}/trades /trades/active /orders /orders/queue-positions
//	POST {p}/trades/{id}/cancel|decrease|amend
//	GET+POST {p}/bankroll, POST {p}/mode
//	GET  {p}/ws (WebSocket), GET {p}/metrics
//
// The WebSocket pushes status_update, trading_signal, trade_execution, and
// alert frames, and accepts ping, get_status, start_bot, stop_bot.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kalshi-taker/internal/config"
)

// statusPushInterval paces the unsolicited status_update frames.
const statusPushInterval = 5 * time.Second

// Server runs the HTTP/WebSocket operator surface.
type Server struct {
	cfg      config.OperatorConfig
	bot      BotController
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger

	stopCh chan struct{}
}

// NewServer wires routes and creates the HTTP server.
func NewServer(cfg config.OperatorConfig, bot BotController, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(bot, cfg, hub, logger)

	prefix := strings.TrimSuffix(cfg.Prefix, "/")

	mux := http.NewServeMux()
	route := func(pattern string, handler http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.HandleFunc(method+" "+prefix+path, handler)
	}

	route("GET /health", handlers.HandleHealth)
	route("GET /status", handlers.HandleStatus)
	route("GET /system/health", handlers.HandleSystemHealth)

	route("POST /start", handlers.HandleStart)
	route("POST /stop", handlers.HandleStop)
	route("POST /emergency/halt", handlers.HandleEmergencyHalt)
	route("POST /emergency/cancel-all", handlers.HandleCancelAll)
	route("POST /circuit-breaker/reset", handlers.HandleBreakerReset)

	route("GET /balance", handlers.HandleBalance)
	route("GET /positions", handlers.HandlePositions)
	route("GET /fills", handlers.HandleFills)
	route("GET /settlements", handlers.HandleSettlements)
	route("GET /orders", handlers.HandleListOrders)
	route("GET /orders/queue-positions", handlers.HandleQueuePositions)
	route("GET /orders/{id}/queue-position", handlers.HandleQueuePosition)
	route("POST /orders/{id}/cancel", handlers.HandleOrderCancel)

	route("GET /trades", handlers.HandleTrades)
	route("GET /trades/active", handlers.HandleActiveTrades)
	route("POST /trades/{id}/cancel", handlers.HandleTradeCancel)
	route("POST /trades/{id}/decrease", handlers.HandleTradeDecrease)
	route("POST /trades/{id}/amend", handlers.HandleTradeAmend)

	route("GET /bankroll", handlers.HandleBankrollGet)
	route("POST /bankroll", handlers.HandleBankrollUpdate)
	route("POST /mode", handlers.HandleMode)

	route("GET /ws", handlers.HandleWebSocket)
	mux.Handle("GET "+prefix+"/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		bot:      bot,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
		stopCh:   make(chan struct{}),
	}
}

// Start runs the hub, the push loops, and the HTTP listener. Blocks until
// the listener exits.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeEvents()
	go s.pushStatus()

	s.logger.Info("operator server starting", "addr", s.server.Addr, "prefix", s.cfg.Prefix)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the listener.
func (s *Server) Stop() error {
	s.logger.Info("stopping operator server")
	close(s.stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// consumeEvents relays engine events (signals, executions, alerts) to all
// connected operator sessions.
func (s *Server) consumeEvents() {
	events := s.bot.Events()
	if events == nil {
		return
	}

	for {
		select {
		case <-s.stopCh:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.hub.BroadcastEvent(evt)
		}
	}
}

// pushStatus broadcasts a status_update frame on a fixed cadence.
func (s *Server) pushStatus() {
	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.hub.BroadcastEvent(Event{Type: "status_update", Data: s.handlers.statusPayload()})
		}
	}
}
