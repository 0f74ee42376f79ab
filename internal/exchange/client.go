// Package exchange implements the Kalshi trade API client.
//
// The REST client (Client) covers everything the control plane consumes:
//   - ListMarkets / GetMarket:    GET  /markets, /markets/{ticker}
//   - GetOrderbook:               GET  /markets/{ticker}/orderbook
//   - GetBalance / GetPositions:  GET  /portfolio/balance, /portfolio/positions
//   - GetFills / GetSettlements:  GET  /portfolio/fills, /portfolio/settlements (cursor-paginated)
//   - ListOrders / GetOrderStatus: GET /portfolio/orders[...]
//   - GetQueuePosition:           GET  /portfolio/orders/{id}/queue_position
//   - PlaceOrder / CancelOrder / AmendOrder / DecreaseOrder
//   - BatchCreateOrders / BatchCancelOrders (20 per call)
//
// Every request is paced at least 200 ms apart, signed with RSA-PSS, and
// routed through a retry policy keyed on the error taxonomy: 429 backs off
// exponentially, 5xx retries once, network errors back off up to three
// times, 409 on POST resolves to the duplicate's original response, and any
// other 4xx fails immediately.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kalshi-taker/internal/config"
	"kalshi-taker/pkg/types"
)

var apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kalshi_api_requests_total",
	Help: "Outbound Kalshi API requests by outcome.",
}, []string{"outcome"})

const (
	requestTimeout = 30 * time.Second
	minSpacing     = 200 * time.Millisecond
	maxRetries     = 3
	batchLimit     = 20
)

// Client is the authenticated Kalshi REST client. When dryRun is set, every
// mutating method logs and returns a synthetic success without touching the
// network; reads always hit the live API.
type Client struct {
	http     *resty.Client
	auth     *Auth
	pacer    *Pacer
	basePath string // URL path prefix included in signatures, e.g. "/trade-api/v2"
	dryRun   atomic.Bool
	logger   *slog.Logger

	healthMu          sync.Mutex
	lastSuccessful    time.Time
	consecutiveErrors int
	totalRequests     int
}

// NewClient creates a REST client from config.
func NewClient(cfg config.ExchangeConfig, dryRun bool, logger *slog.Logger) (*Client, error) {
	auth, err := NewAuth(cfg.APIKeyID, cfg.PrivateKeyPath, cfg.PrivateKeyContent)
	if err != nil {
		return nil, fmt.Errorf("kalshi auth: %w", err)
	}

	basePath := ""
	if i := strings.Index(cfg.BaseURL, "://"); i >= 0 {
		if j := strings.Index(cfg.BaseURL[i+3:], "/"); j >= 0 {
			basePath = cfg.BaseURL[i+3+j:]
		}
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	c := &Client{
		http:     httpClient,
		auth:     auth,
		pacer:    NewPacer(minSpacing),
		basePath: basePath,
		logger:   logger.With("component", "exchange"),
	}
	c.dryRun.Store(dryRun)
	return c, nil
}

// SetDryRun flips the mutation guard. Live mode sends real orders.
func (c *Client) SetDryRun(dry bool) { c.dryRun.Store(dry) }

// DryRun reports whether mutations are simulated.
func (c *Client) DryRun() bool { return c.dryRun.Load() }

// HealthInfo is the connectivity snapshot exposed by the operator surface.
type HealthInfo struct {
	LastSuccessfulRequest *time.Time `json:"last_successful_request"`
	ConsecutiveErrors     int        `json:"consecutive_errors"`
	TotalRequests         int        `json:"total_requests"`
	Healthy               bool       `json:"healthy"`
}

// Health returns current connectivity counters.
func (c *Client) Health() HealthInfo {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	info := HealthInfo{
		ConsecutiveErrors: c.consecutiveErrors,
		TotalRequests:     c.totalRequests,
		Healthy:           c.consecutiveErrors < 5,
	}
	if !c.lastSuccessful.IsZero() {
		t := c.lastSuccessful
		info.LastSuccessfulRequest = &t
	}
	return info
}

// ————————————————————————————————————————————————————————————————————————
// Core transport
// ————————————————————————————————————————————————————————————————————————

// request performs one paced, signed HTTP round trip and classifies failures.
func (c *Client) request(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return err
	}

	headers, err := c.auth.Headers(method, c.basePath+path)
	if err != nil {
		return fmt.Errorf("auth headers: %w", err)
	}

	c.healthMu.Lock()
	c.totalRequests++
	c.healthMu.Unlock()

	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.noteFailure()
		apiRequests.WithLabelValues("network_error").Inc()
		return &APIError{Kind: KindTransientNetwork, Message: err.Error()}
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		c.noteSuccess()
		apiRequests.WithLabelValues("ok").Inc()
		if out != nil && len(resp.Body()) > 0 {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return nil
	}

	c.noteFailure()
	msg := string(resp.Body())
	if len(msg) > 500 {
		msg = msg[:500]
	}

	switch {
	case status == http.StatusTooManyRequests:
		apiRequests.WithLabelValues("rate_limited").Inc()
		return &APIError{Kind: KindRateLimited, Status: status, Message: msg}
	case status >= 500:
		apiRequests.WithLabelValues("server_error").Inc()
		return &APIError{Kind: KindTransientNetwork, Status: status, Message: msg}
	case status == http.StatusConflict && method == http.MethodPost:
		// Duplicate client_order_id: the exchange already has this order.
		// Decode the duplicate's body as the original accepted response.
		apiRequests.WithLabelValues("duplicate").Inc()
		if out != nil && len(resp.Body()) > 0 {
			if err := json.Unmarshal(resp.Body(), out); err == nil {
				c.logger.Info("409 duplicate client_order_id, treating as idempotent success", "path", path)
				return nil
			}
		}
		return &APIError{Kind: KindIdempotentDuplicate, Status: status, Message: msg}
	default:
		apiRequests.WithLabelValues("validation").Inc()
		return &APIError{Kind: KindValidation, Status: status, Message: msg}
	}
}

// do wraps request with the retry policy.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	for attempt := 0; ; attempt++ {
		err := c.request(ctx, method, path, query, body, out)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return err
		}

		var delay time.Duration
		switch {
		case apiErr.Kind == KindRateLimited && attempt < maxRetries:
			delay = time.Duration(1<<attempt) * time.Second
			c.logger.Warn("rate limited, backing off", "attempt", attempt+1, "delay", delay)
		case apiErr.Kind == KindTransientNetwork && apiErr.Status >= 500 && attempt == 0:
			delay = 2 * time.Second
			c.logger.Warn("server error, retrying once", "status", apiErr.Status)
		case apiErr.Kind == KindTransientNetwork && apiErr.Status == 0 && attempt < maxRetries:
			delay = time.Duration(1<<attempt) * time.Second
			c.logger.Warn("network error, backing off", "attempt", attempt+1, "delay", delay)
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) noteSuccess() {
	c.healthMu.Lock()
	c.lastSuccessful = time.Now().UTC()
	c.consecutiveErrors = 0
	c.healthMu.Unlock()
}

func (c *Client) noteFailure() {
	c.healthMu.Lock()
	c.consecutiveErrors++
	c.healthMu.Unlock()
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// ListMarkets fetches markets for a series, already parsed into the internal
// Market type.
func (c *Client) ListMarkets(ctx context.Context, series, status string, limit int) ([]types.Market, error) {
	if limit <= 0 {
		limit = 100
	}
	query := map[string]string{
		"series_ticker": series,
		"status":        status,
		"limit":         strconv.Itoa(limit),
	}

	var result struct {
		Markets []types.APIMarket `json:"markets"`
		Cursor  string            `json:"cursor"`
	}
	if err := c.do(ctx, http.MethodGet, "/markets", query, nil, &result); err != nil {
		return nil, err
	}

	markets := make([]types.Market, 0, len(result.Markets))
	for _, m := range result.Markets {
		markets = append(markets, parseMarket(m))
	}
	return markets, nil
}

// GetMarket fetches a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*types.Market, error) {
	var result struct {
		Market types.APIMarket `json:"market"`
	}
	if err := c.do(ctx, http.MethodGet, "/markets/"+ticker, nil, nil, &result); err != nil {
		return nil, err
	}
	m := parseMarket(result.Market)
	return &m, nil
}

// GetOrderbook fetches the live book for a market.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*types.Orderbook, error) {
	var result struct {
		Orderbook types.APIOrderbook `json:"orderbook"`
	}
	if err := c.do(ctx, http.MethodGet, "/markets/"+ticker+"/orderbook", nil, nil, &result); err != nil {
		return nil, err
	}

	ob := &types.Orderbook{Ticker: ticker}
	for _, lvl := range result.Orderbook.Yes {
		if len(lvl) >= 2 {
			ob.YesAsks = append(ob.YesAsks, types.OrderbookLevel{Price: FractionFromCents(lvl[0]), Size: lvl[1]})
		}
	}
	for _, lvl := range result.Orderbook.No {
		if len(lvl) >= 2 {
			ob.NoAsks = append(ob.NoAsks, types.OrderbookLevel{Price: FractionFromCents(lvl[0]), Size: lvl[1]})
		}
	}
	return ob, nil
}

// parseMarket converts a raw API market into the internal representation:
// cents become fractions, timestamps are parsed, the strike is resolved from
// floor/cap, and the missing NO price is derived from YES.
func parseMarket(m types.APIMarket) types.Market {
	strike := m.FloorStrike
	if m.CapStrike > 0 {
		strike = m.CapStrike
	}

	direction := "up"
	if strings.Contains(strings.ToLower(m.YesSubTitle), "below") {
		direction = "down"
	}

	openTime, _ := time.Parse(time.RFC3339, m.OpenTime)
	closeTime, _ := time.Parse(time.RFC3339, m.CloseTime)
	expiration, _ := time.Parse(time.RFC3339, m.ExpirationTime)

	yesPrice := FractionFromCents(m.LastPrice)
	noPrice := 0.0
	if m.LastPrice > 0 {
		noPrice = 1 - yesPrice
	}

	return types.Market{
		Ticker:         m.Ticker,
		EventTicker:    m.EventTicker,
		Title:          m.Title,
		StrikePrice:    strike,
		Direction:      direction,
		WindowStart:    openTime,
		WindowEnd:      expiration,
		CloseTime:      closeTime,
		ExpirationTime: expiration,
		Status:         types.MarketStatus(strings.ToLower(m.Status)),
		YesPrice:       yesPrice,
		NoPrice:        noPrice,
		YesBid:         FractionFromCents(m.YesBid),
		YesAsk:         FractionFromCents(m.YesAsk),
		NoBid:          FractionFromCents(m.NoBid),
		NoAsk:          FractionFromCents(m.NoAsk),
		Volume:         m.Volume,
		Volume24h:      m.Volume24h,
	}
}

// ————————————————————————————————————————————————————————————————————————
// Portfolio reads
// ————————————————————————————————————————————————————————————————————————

// GetBalance fetches available balance and portfolio value, in cents.
func (c *Client) GetBalance(ctx context.Context) (*types.Balance, error) {
	var result types.Balance
	if err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPositions fetches exchange-side positions.
func (c *Client) GetPositions(ctx context.Context) ([]types.APIPosition, error) {
	var result struct {
		MarketPositions []types.APIPosition `json:"market_positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/portfolio/positions", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.MarketPositions, nil
}

// FillsQuery narrows a GET /portfolio/fills request. Zero values are omitted.
type FillsQuery struct {
	Ticker  string
	OrderID string
	MinTS   int64
	Limit   int
	Cursor  string
}

// FillsPage is one page of fills plus the cursor for the next.
type FillsPage struct {
	Fills  []types.Fill `json:"fills"`
	Cursor string       `json:"cursor"`
}

// GetFills fetches recent fills.
func (c *Client) GetFills(ctx context.Context, q FillsQuery) (*FillsPage, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	query := map[string]string{"limit": strconv.Itoa(q.Limit)}
	if q.Ticker != "" {
		query["ticker"] = q.Ticker
	}
	if q.OrderID != "" {
		query["order_id"] = q.OrderID
	}
	if q.MinTS > 0 {
		query["min_ts"] = strconv.FormatInt(q.MinTS, 10)
	}
	if q.Cursor != "" {
		query["cursor"] = q.Cursor
	}

	var result FillsPage
	if err := c.do(ctx, http.MethodGet, "/portfolio/fills", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CollectFills walks the fills cursor until exhausted (capped at 10 pages).
func (c *Client) CollectFills(ctx context.Context, q FillsQuery) ([]types.Fill, error) {
	var all []types.Fill
	for page := 0; page < 10; page++ {
		resp, err := c.GetFills(ctx, q)
		if err != nil {
			return all, err
		}
		all = append(all, resp.Fills...)
		if resp.Cursor == "" || len(resp.Fills) < q.Limit {
			break
		}
		q.Cursor = resp.Cursor
	}
	return all, nil
}

// SettlementsPage is one page of settlements plus the next cursor.
type SettlementsPage struct {
	Settlements []types.Settlement `json:"settlements"`
	Cursor      string             `json:"cursor"`
}

// GetSettlements fetches settled-market results.
func (c *Client) GetSettlements(ctx context.Context, ticker string, limit int, cursor string) (*SettlementsPage, error) {
	if limit <= 0 {
		limit = 100
	}
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if ticker != "" {
		query["ticker"] = ticker
	}
	if cursor != "" {
		query["cursor"] = cursor
	}

	var result SettlementsPage
	if err := c.do(ctx, http.MethodGet, "/portfolio/settlements", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListOrders fetches exchange-side orders, optionally filtered.
// status is one of "resting", "canceled", "executed".
func (c *Client) ListOrders(ctx context.Context, ticker, status string) ([]types.APIOrder, error) {
	query := map[string]string{"limit": "100"}
	if ticker != "" {
		query["ticker"] = ticker
	}
	if status != "" {
		query["status"] = status
	}

	var result struct {
		Orders []types.APIOrder `json:"orders"`
		Cursor string           `json:"cursor"`
	}
	if err := c.do(ctx, http.MethodGet, "/portfolio/orders", query, nil, &result); err != nil {
		return nil, err
	}
	return result.Orders, nil
}

// GetOrderStatus fetches a single order snapshot.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*types.APIOrder, error) {
	var result types.OrderResponse
	if err := c.do(ctx, http.MethodGet, "/portfolio/orders/"+orderID, nil, nil, &result); err != nil {
		return nil, err
	}
	return &result.Order, nil
}

// GetQueuePosition fetches depth ahead of one resting order.
func (c *Client) GetQueuePosition(ctx context.Context, orderID string) (*types.QueuePosition, error) {
	var result types.QueuePosition
	if err := c.do(ctx, http.MethodGet, "/portfolio/orders/"+orderID+"/queue_position", nil, nil, &result); err != nil {
		return nil, err
	}
	if result.OrderID == "" {
		result.OrderID = orderID
	}
	return &result, nil
}

// GetAllQueuePositions fetches queue depth for every resting order.
func (c *Client) GetAllQueuePositions(ctx context.Context) ([]types.QueuePosition, error) {
	var result struct {
		QueuePositions []types.QueuePosition `json:"queue_positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/portfolio/orders/queue_positions", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.QueuePositions, nil
}

// ————————————————————————————————————————————————————————————————————————
// Order mutations
// ————————————————————————————————————————————————————————————————————————

// BuildLimitOrder assembles a limit OrderRequest with a fresh UUIDv4
// client_order_id and the side-correct price field. The other side's price
// key is omitted entirely; the API rejects explicit nulls.
func BuildLimitOrder(ticker string, side types.Side, action string, quantity int, price float64) (types.OrderRequest, error) {
	cents, err := CentsFromFraction(price)
	if err != nil {
		return types.OrderRequest{}, err
	}

	req := types.OrderRequest{
		Ticker:        ticker,
		ClientOrderID: uuid.NewString(),
		Side:          string(side),
		Action:        action,
		Count:         quantity,
		Type:          string(types.OrderTypeLimit),
	}
	if side == types.SideYes {
		req.YesPrice = &cents
	} else {
		req.NoPrice = &cents
	}
	return req, nil
}

// BuildMarketBuy assembles a market buy. buyMaxCost (cents) is mandatory and
// no price field is set.
func BuildMarketBuy(ticker string, side types.Side, quantity, buyMaxCost int) (types.OrderRequest, error) {
	if buyMaxCost <= 0 {
		return types.OrderRequest{}, fmt.Errorf("buy_max_cost is required for market buys")
	}
	return types.OrderRequest{
		Ticker:        ticker,
		ClientOrderID: uuid.NewString(),
		Side:          string(side),
		Action:        "buy",
		Count:         quantity,
		Type:          string(types.OrderTypeMarket),
		BuyMaxCost:    &buyMaxCost,
	}, nil
}

// PlaceOrder submits one order. A 409 duplicate resolves to the original
// accepted order, making retries safe under the same client_order_id.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.APIOrder, error) {
	if req.Type == string(types.OrderTypeMarket) && req.Action == "buy" && req.BuyMaxCost == nil {
		return nil, fmt.Errorf("buy_max_cost is required for market buys")
	}
	if req.YesPrice != nil && req.NoPrice != nil {
		return nil, fmt.Errorf("yes_price and no_price are mutually exclusive")
	}
	if c.dryRun.Load() {
		c.logger.Info("DRY-RUN: would place order",
			"ticker", req.Ticker, "side", req.Side, "count", req.Count)
		return &types.APIOrder{
			OrderID:       "dry-run-" + req.ClientOrderID,
			ClientOrderID: req.ClientOrderID,
			Ticker:        req.Ticker,
			Status:        "resting",
			Side:          req.Side,
			Action:        req.Action,
			Type:          req.Type,
		}, nil
	}

	var result types.OrderResponse
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", nil, req, &result); err != nil {
		return nil, err
	}
	c.logger.Info("order submitted",
		"order_id", result.Order.OrderID,
		"client_id", req.ClientOrderID,
		"status", result.Order.Status,
	)
	return &result.Order, nil
}

// CancelOrder cancels one resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*types.CancelResponse, error) {
	if c.dryRun.Load() {
		c.logger.Info("DRY-RUN: would cancel order", "order_id", orderID)
		return &types.CancelResponse{Order: types.APIOrder{OrderID: orderID, Status: "canceled"}}, nil
	}

	var result types.CancelResponse
	if err := c.do(ctx, http.MethodDelete, "/portfolio/orders/"+orderID, nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AmendOrder replaces price/count on a resting order. The exchange cancels
// the old order and returns a NEW order id; callers must retarget to it.
func (c *Client) AmendOrder(ctx context.Context, orderID, ticker string, side types.Side, action string, yesPrice, noPrice *int, count *int) (*types.AmendResponse, error) {
	if c.dryRun.Load() {
		c.logger.Info("DRY-RUN: would amend order", "order_id", orderID)
		return &types.AmendResponse{
			Order:    types.APIOrder{OrderID: "dry-run-amend-" + uuid.NewString(), Status: "resting"},
			OldOrder: types.APIOrder{OrderID: orderID, Status: "canceled"},
		}, nil
	}
	if yesPrice != nil && noPrice != nil {
		return nil, fmt.Errorf("yes_price and no_price are mutually exclusive")
	}

	body := map[string]any{"ticker": ticker, "side": string(side), "action": action}
	if yesPrice != nil {
		body["yes_price"] = *yesPrice
	}
	if noPrice != nil {
		body["no_price"] = *noPrice
	}
	if count != nil {
		body["count"] = *count
	}

	var result types.AmendResponse
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders/"+orderID+"/amend", nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DecreaseOrder reduces a resting order's remaining count. Exactly one of
// reduceBy/reduceTo must be set; reduceTo=0 is equivalent to cancel.
func (c *Client) DecreaseOrder(ctx context.Context, orderID string, reduceBy, reduceTo *int) (*types.APIOrder, error) {
	if (reduceBy == nil) == (reduceTo == nil) {
		return nil, fmt.Errorf("provide exactly one of reduce_by or reduce_to")
	}
	if c.dryRun.Load() {
		c.logger.Info("DRY-RUN: would decrease order", "order_id", orderID)
		return &types.APIOrder{OrderID: orderID, Status: "resting"}, nil
	}

	body := map[string]any{}
	if reduceBy != nil {
		body["reduce_by"] = *reduceBy
	}
	if reduceTo != nil {
		body["reduce_to"] = *reduceTo
	}

	var result types.OrderResponse
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders/"+orderID+"/decrease", nil, body, &result); err != nil {
		return nil, err
	}
	return &result.Order, nil
}

// BatchCreateOrders places up to 20 orders in one call.
func (c *Client) BatchCreateOrders(ctx context.Context, orders []types.OrderRequest) ([]types.APIOrder, error) {
	if len(orders) > batchLimit {
		return nil, fmt.Errorf("batch create limited to %d orders, got %d", batchLimit, len(orders))
	}
	if c.dryRun.Load() {
		c.logger.Info("DRY-RUN: would batch create orders", "count", len(orders))
		return nil, nil
	}

	var result struct {
		Orders []types.OrderResponse `json:"orders"`
	}
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders/batched", nil, map[string]any{"orders": orders}, &result); err != nil {
		return nil, err
	}
	out := make([]types.APIOrder, 0, len(result.Orders))
	for _, r := range result.Orders {
		out = append(out, r.Order)
	}
	return out, nil
}

// BatchCancelOrders cancels up to 20 orders by id in one call.
func (c *Client) BatchCancelOrders(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) > batchLimit {
		return fmt.Errorf("batch cancel limited to %d orders, got %d", batchLimit, len(orderIDs))
	}
	if c.dryRun.Load() {
		c.logger.Info("DRY-RUN: would batch cancel orders", "count", len(orderIDs))
		return nil
	}

	return c.do(ctx, http.MethodDelete, "/portfolio/orders/batched", nil, map[string]any{"ids": orderIDs}, nil)
}
