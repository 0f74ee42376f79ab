package orders

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"kalshi-taker/internal/config"
	"kalshi-taker/internal/exchange"
	"kalshi-taker/internal/risk"
	"kalshi-taker/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		Bankroll:                 10000,
		PositionCeilingPct:       0.02,
		MaxConcurrentPositions:   5,
		DailyLossThreshold:       0.05,
		WeeklyDrawdownCap:        0.10,
		SessionDrawdownThreshold: 0.15,
		MinEdgeThreshold:         0.02,
		UncertaintyBuffer:        0.03,
	}
}

// newPaperManager builds a dry-run manager whose client points at baseURL
// (reads only; paper mutations never touch the network).
func newPaperManager(t *testing.T, baseURL string) (*Manager, *risk.Manager) {
	t.Helper()
	client, err := exchange.NewClient(config.ExchangeConfig{
		APIKeyID:          "test-key",
		PrivateKeyContent: testKeyPEM(t),
		BaseURL:           baseURL,
		SeriesTicker:      "KXSOL15M",
	}, true, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	riskMgr := risk.NewManager(testRiskConfig(), testLogger())
	return NewManager(client, riskMgr, true, testLogger()), riskMgr
}

func testSignal(ticker string) types.Signal {
	now := time.Now().UTC()
	return types.Signal{
		StrategyName:      "high_confidence_threshold",
		Ticker:            ticker,
		Direction:         types.SideYes,
		Strength:          types.StrengthHigh,
		TrueProbability:   0.999,
		MarketProbability: 0.88,
		Edge:              0.119,
		Quantity:          10,
		Price:             0.88,
		Confidence:        0.9,
		CreatedAt:         now,
		ExpiresAt:         now.Add(5 * time.Minute),
	}
}

func TestExecuteSignalPaperCreatesPendingTrade(t *testing.T) {
	t.Parallel()
	m, riskMgr := newPaperManager(t, "http://localhost:0")

	trade := m.ExecuteSignal(t.Context(), testSignal("KXSOL15M-A"))
	if trade == nil {
		t.Fatal("expected a trade")
	}
	if trade.Status != types.TradePending {
		t.Errorf("status = %v, want pending", trade.Status)
	}
	if !trade.DryRun {
		t.Error("trade should be marked dry-run")
	}
	if trade.OrderID != "" {
		t.Error("paper trade must not carry an exchange order id")
	}
	if len(m.ActiveTrades()) != 1 {
		t.Errorf("active = %d, want 1", len(m.ActiveTrades()))
	}
	if riskMgr.Metrics().OpenOrdersCount != 1 {
		t.Error("open order count not synced")
	}
}

func TestExecuteSignalEdgeGateRefuses(t *testing.T) {
	t.Parallel()
	m, _ := newPaperManager(t, "http://localhost:0")

	sig := testSignal("KXSOL15M-A")
	sig.Edge = 0.03 // below 0.02 + 0.03
	if trade := m.ExecuteSignal(t.Context(), sig); trade != nil {
		t.Error("edge gate should drop the signal, no trade created")
	}
	if len(m.ActiveTrades()) != 0 {
		t.Error("no trade should be tracked")
	}
}

func TestExecuteSignalExpiredRefused(t *testing.T) {
	t.Parallel()
	m, _ := newPaperManager(t, "http://localhost:0")

	sig := testSignal("KXSOL15M-A")
	sig.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if trade := m.ExecuteSignal(t.Context(), sig); trade != nil {
		t.Error("expired signal should be dropped")
	}
}

func TestPaperFillThenGate7RefusesSameTicker(t *testing.T) {
	t.Parallel()
	m, riskMgr := newPaperManager(t, "http://localhost:0")

	trade := m.ExecuteSignal(t.Context(), testSignal("KXSOL15M-A"))
	if trade == nil {
		t.Fatal("expected a trade")
	}

	// Age the trade past the simulated queue delay, then run the monitor's
	// paper pass directly.
	m.mu.Lock()
	m.active[trade.ID].SubmittedAt = time.Now().UTC().Add(-3 * time.Second)
	m.mu.Unlock()

	m.simulatePaperFills()

	completed := m.CompletedTrades(10)
	if len(completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(completed))
	}
	got := completed[0]
	if got.Status != types.TradeFilled {
		t.Errorf("status = %v, want filled", got.Status)
	}
	if got.AverageFillPrice != 0.88 {
		t.Errorf("fill price = %v, want limit price 0.88", got.AverageFillPrice)
	}
	if got.FilledQuantity != 10 {
		t.Errorf("filled quantity = %d, want 10", got.FilledQuantity)
	}
	if got.PnL != nil {
		t.Error("paper fill P&L must stay nil until settlement")
	}

	pos, ok := riskMgr.PositionFor("KXSOL15M-A")
	if !ok {
		t.Fatal("position should exist after the fill")
	}
	if pos.Side != types.SideYes || pos.Quantity != 10 || pos.AverageEntryPrice != 0.88 {
		t.Errorf("position = %+v", pos)
	}

	// Gate 7: the same ticker is now refused.
	if trade := m.ExecuteSignal(t.Context(), testSignal("KXSOL15M-A")); trade != nil {
		t.Error("second signal on a held ticker should be refused")
	}
}

func TestPaperFillNotBeforeQueueDelay(t *testing.T) {
	t.Parallel()
	m, _ := newPaperManager(t, "http://localhost:0")

	trade := m.ExecuteSignal(t.Context(), testSignal("KXSOL15M-A"))
	if trade == nil {
		t.Fatal("expected a trade")
	}

	m.simulatePaperFills()

	if len(m.ActiveTrades()) != 1 {
		t.Error("trade younger than the queue delay must stay pending")
	}
}

func TestCancelRefusesTerminalTrade(t *testing.T) {
	t.Parallel()
	m, _ := newPaperManager(t, "http://localhost:0")

	trade := &types.Trade{
		ID:      "t-1",
		Ticker:  "KXSOL15M-A",
		Side:    types.SideYes,
		Status:  types.TradeCancelled,
		OrderID: "ord-1",
	}
	m.mu.Lock()
	m.active["t-1"] = trade
	m.mu.Unlock()

	if m.Cancel(t.Context(), "t-1") {
		t.Error("cancel on a terminal trade must refuse and return false")
	}
}

func TestCancelUnknownTrade(t *testing.T) {
	t.Parallel()
	m, _ := newPaperManager(t, "http://localhost:0")

	if m.Cancel(t.Context(), "missing") {
		t.Error("cancel on unknown trade should return false")
	}
}

func TestCancelAllMarksEverythingCancelled(t *testing.T) {
	t.Parallel()
	m, riskMgr := newPaperManager(t, "http://localhost:0")

	m.ExecuteSignal(t.Context(), testSignal("KXSOL15M-A"))
	m.ExecuteSignal(t.Context(), testSignal("KXSOL15M-B"))

	cancelled := m.CancelAll(t.Context())
	if cancelled != 2 {
		t.Errorf("cancelled = %d, want 2", cancelled)
	}
	if len(m.ActiveTrades()) != 0 {
		t.Error("active orders should be empty")
	}
	if riskMgr.Metrics().OpenOrdersCount != 0 {
		t.Error("open order count should be 0 after cancel all")
	}
	for _, tr := range m.CompletedTrades(10) {
		if tr.Status != types.TradeCancelled {
			t.Errorf("trade %s status = %v, want cancelled", tr.ID, tr.Status)
		}
	}
}

func TestApplyOrderStatusExecutedMapsToFilled(t *testing.T) {
	t.Parallel()

	trade := &types.Trade{Status: types.TradeSubmitted, Quantity: 10}
	applyOrderStatus(trade, &types.APIOrder{
		Status:        "executed",
		FillCount:     10,
		TakerFillCost: 550, // cents
	}, testLogger())

	if trade.Status != types.TradeFilled {
		t.Errorf("status = %v, want filled", trade.Status)
	}
	if trade.AverageFillPrice != 0.55 {
		t.Errorf("avg fill price = %v, want 0.55", trade.AverageFillPrice)
	}
	if trade.FilledQuantity != 10 {
		t.Errorf("filled = %d, want 10", trade.FilledQuantity)
	}
	if trade.Cost != 5.5 {
		t.Errorf("cost = %v, want 5.5", trade.Cost)
	}
}

func TestApplyOrderStatusIgnoresFilledString(t *testing.T) {
	t.Parallel()

	// "filled" is not a valid exchange status; only "executed" is terminal.
	trade := &types.Trade{Status: types.TradeSubmitted, Quantity: 10}
	applyOrderStatus(trade, &types.APIOrder{Status: "filled"}, testLogger())

	if trade.Status != types.TradeSubmitted {
		t.Errorf("status = %v, want unchanged submitted", trade.Status)
	}
}

func TestApplyOrderStatusNeverDowngradesFilled(t *testing.T) {
	t.Parallel()

	trade := &types.Trade{Status: types.TradeFilled, FilledQuantity: 10, AverageFillPrice: 0.55}
	applyOrderStatus(trade, &types.APIOrder{Status: "resting"}, testLogger())

	if trade.Status != types.TradeFilled {
		t.Errorf("status = %v, reconciliation must never downgrade a fill", trade.Status)
	}
}

func TestStaleOrderSweep(t *testing.T) {
	t.Parallel()
	m, _ := newPaperManager(t, "http://localhost:0")

	old := &types.Trade{
		ID:          "t-old",
		Ticker:      "KXSOL15M-A",
		Side:        types.SideYes,
		Status:      types.TradeSubmitted,
		OrderID:     "ord-old",
		Quantity:    10,
		Price:       0.55,
		SubmittedAt: time.Now().UTC().Add(-15 * time.Minute),
	}
	fresh := &types.Trade{
		ID:          "t-fresh",
		Ticker:      "KXSOL15M-B",
		Side:        types.SideYes,
		Status:      types.TradeSubmitted,
		OrderID:     "ord-fresh",
		Quantity:    10,
		Price:       0.55,
		SubmittedAt: time.Now().UTC().Add(-1 * time.Minute),
	}
	m.mu.Lock()
	m.active[old.ID] = old
	m.active[fresh.ID] = fresh
	m.mu.Unlock()

	m.cancelStaleOrders(t.Context())

	if len(m.ActiveTrades()) != 1 {
		t.Fatalf("active = %d, want only the fresh order", len(m.ActiveTrades()))
	}
	if m.ActiveTrades()[0].ID != "t-fresh" {
		t.Error("wrong order swept")
	}
	completed := m.CompletedTrades(10)
	if len(completed) != 1 || completed[0].Status != types.TradeCancelled {
		t.Error("stale order should be cancelled")
	}
}

func TestPaperSettlementClosesPosition(t *testing.T) {
	t.Parallel()

	// Exchange reports the market settled with YES collapsed to 0.99.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"market": types.APIMarket{
				Ticker:         "KXSOL15M-A",
				Status:         "settled",
				LastPrice:      99,
				OpenTime:       "2026-08-01T14:30:00Z",
				CloseTime:      "2026-08-01T14:45:00Z",
				ExpirationTime: "2026-08-01T14:45:00Z",
			},
		})
	}))
	defer ts.Close()

	m, riskMgr := newPaperManager(t, ts.URL)

	// Seed a YES position at 0.88.
	riskMgr.RecordTrade(types.Trade{
		ID:               "t-1",
		Ticker:           "KXSOL15M-A",
		Side:             types.SideYes,
		Status:           types.TradeFilled,
		Quantity:         10,
		FilledQuantity:   10,
		AverageFillPrice: 0.88,
		FilledAt:         time.Now().UTC(),
	})

	m.settlePaperPositions(t.Context())

	if _, ok := riskMgr.PositionFor("KXSOL15M-A"); ok {
		t.Fatal("position should be closed after settlement")
	}
	metrics := riskMgr.Metrics()
	// YES holder, resolves YES: (1 − 0.88) × 10 = 1.2
	if metrics.RealizedPnL < 1.19 || metrics.RealizedPnL > 1.21 {
		t.Errorf("realized = %v, want 1.2", metrics.RealizedPnL)
	}
}

func TestPaperSettlementSkipsUnresolved(t *testing.T) {
	t.Parallel()

	// Closed but YES still mid-range: not resolved yet.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"market": types.APIMarket{
				Ticker:         "KXSOL15M-A",
				Status:         "closed",
				LastPrice:      60,
				OpenTime:       "2026-08-01T14:30:00Z",
				CloseTime:      "2026-08-01T14:45:00Z",
				ExpirationTime: "2026-08-01T14:45:00Z",
			},
		})
	}))
	defer ts.Close()

	m, riskMgr := newPaperManager(t, ts.URL)
	riskMgr.RecordTrade(types.Trade{
		ID:               "t-1",
		Ticker:           "KXSOL15M-A",
		Side:             types.SideYes,
		Status:           types.TradeFilled,
		Quantity:         10,
		FilledQuantity:   10,
		AverageFillPrice: 0.88,
		FilledAt:         time.Now().UTC(),
	})

	m.settlePaperPositions(t.Context())

	if _, ok := riskMgr.PositionFor("KXSOL15M-A"); !ok {
		t.Error("mid-settlement market must leave the position open")
	}
}

func TestCompletedTradesCapped(t *testing.T) {
	t.Parallel()
	m, _ := newPaperManager(t, "http://localhost:0")

	m.mu.Lock()
	for i := 0; i < completedCap+50; i++ {
		m.completed = append(m.completed, types.Trade{ID: "t", Status: types.TradeFilled})
	}
	m.trimCompletedLocked()
	n := len(m.completed)
	m.mu.Unlock()

	if n != completedCap {
		t.Errorf("completed length = %d, want cap %d", n, completedCap)
	}
}

func TestReconcileFillsForceFillsMissedOrder(t *testing.T) {
	t.Parallel()

	// Status polling said resting, but the fills feed has the execution.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"fills": []types.Fill{{
				FillID:   "f-1",
				OrderID:  "ord-1",
				Ticker:   "KXSOL15M-A",
				Side:     "yes",
				Count:    10,
				YesPrice: 55,
				NoPrice:  45,
			}},
		})
	}))
	defer ts.Close()

	client, err := exchange.NewClient(config.ExchangeConfig{
		APIKeyID:          "test-key",
		PrivateKeyContent: testKeyPEM(t),
		BaseURL:           ts.URL,
		SeriesTicker:      "KXSOL15M",
	}, false, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	riskMgr := risk.NewManager(testRiskConfig(), testLogger())
	m := NewManager(client, riskMgr, false, testLogger())

	m.mu.Lock()
	m.active["t-1"] = &types.Trade{
		ID:          "t-1",
		Ticker:      "KXSOL15M-A",
		Side:        types.SideYes,
		Status:      types.TradeSubmitted,
		OrderID:     "ord-1",
		Quantity:    10,
		Price:       0.56,
		SubmittedAt: time.Now().UTC(),
	}
	m.mu.Unlock()

	m.reconcileFills(t.Context())

	completed := m.CompletedTrades(10)
	if len(completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(completed))
	}
	got := completed[0]
	if got.Status != types.TradeFilled {
		t.Errorf("status = %v, want filled", got.Status)
	}
	if got.AverageFillPrice != 0.55 {
		t.Errorf("avg fill price = %v, want 0.55 from the YES cents", got.AverageFillPrice)
	}
	if got.FilledQuantity != 10 {
		t.Errorf("filled quantity = %d, want 10", got.FilledQuantity)
	}
}

func TestAmendRetargetsToNewOrderID(t *testing.T) {
	t.Parallel()
	m, _ := newPaperManager(t, "http://localhost:0")

	m.mu.Lock()
	m.active["t-1"] = &types.Trade{
		ID:       "t-1",
		Ticker:   "KXSOL15M-A",
		Side:     types.SideYes,
		Status:   types.TradeSubmitted,
		OrderID:  "ord-A",
		Quantity: 10,
		Price:    0.50,
	}
	m.mu.Unlock()

	newPrice := 0.52
	newID, err := m.Amend(t.Context(), "t-1", &newPrice, nil)
	if err != nil {
		t.Fatal(err)
	}
	if newID == "" || newID == "ord-A" {
		t.Errorf("new order id = %q, want a fresh id", newID)
	}

	trades := m.ActiveTrades()
	if len(trades) != 1 {
		t.Fatal("trade should remain active after amend")
	}
	if trades[0].OrderID != newID {
		t.Errorf("trade order id = %q, want retargeted to %q", trades[0].OrderID, newID)
	}
	if trades[0].Price != 0.52 {
		t.Errorf("trade price = %v, want 0.52", trades[0].Price)
	}
}
