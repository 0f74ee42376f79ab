// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot: market metadata, order
// book snapshots, strategy signals, trade lifecycle records, and the Kalshi
// wire payloads. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import (
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side identifies which contract leg an order or position is on.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// OrderType enumerates the supported Kalshi order types.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// MarketStatus is the exchange-reported lifecycle state of a market.
type MarketStatus string

const (
	MarketOpen      MarketStatus = "open"
	MarketActive    MarketStatus = "active" // the API reports "active" for live markets
	MarketClosed    MarketStatus = "closed"
	MarketSettled   MarketStatus = "settled"
	MarketSuspended MarketStatus = "suspended"
)

// TradeStatus is the internal order lifecycle state.
//
// PENDING → SUBMITTED → {FILLED, CANCELLED, REJECTED}
// PENDING → FAILED on rejection or network error after retries.
// FILLED, CANCELLED, REJECTED and FAILED are terminal.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeSubmitted TradeStatus = "submitted"
	TradeFilled    TradeStatus = "filled"
	TradeCancelled TradeStatus = "cancelled"
	TradeRejected  TradeStatus = "rejected"
	TradeFailed    TradeStatus = "failed"
)

// IsTerminal reports whether a trade in this status can never transition again.
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case TradeFilled, TradeCancelled, TradeRejected, TradeFailed:
		return true
	}
	return false
}

// SignalStrength buckets a signal by the size of its edge.
type SignalStrength string

const (
	StrengthLow    SignalStrength = "low"
	StrengthMedium SignalStrength = "medium"
	StrengthHigh   SignalStrength = "high"
)

// ————————————————————————————————————————————————————————————————————————
// Market metadata
// ————————————————————————————————————————————————————————————————————————

// Market is the internal representation of a 15-minute binary market.
// Prices are fractions in [0, 1]; the exchange boundary converts to cents.
// A zero YesPrice means the exchange did not report one.
type Market struct {
	Ticker      string  // e.g. "KXSOL15M-26AUG01-1430-T163.50"
	EventTicker string  // parent event series
	Title       string
	StrikePrice float64 // underlying strike in quote currency
	Direction   string  // "up" or "down"

	WindowStart    time.Time // start of the 15-minute window
	WindowEnd      time.Time // end of the window (expected settlement reference)
	CloseTime      time.Time // order entry cutoff
	ExpirationTime time.Time

	Status MarketStatus

	YesPrice float64 // last traded YES price, 0 = unknown
	NoPrice  float64 // derived 1 - YesPrice when the exchange omits it
	YesBid   float64
	YesAsk   float64
	NoBid    float64
	NoAsk    float64

	Volume    int
	Volume24h int
}

// IsTradeable reports whether orders can still be entered: the market is open
// or active and the close time has not passed.
func (m Market) IsTradeable(now time.Time) bool {
	if m.Status != MarketOpen && m.Status != MarketActive {
		return false
	}
	return now.Before(m.CloseTime)
}

// IsActive reports whether now falls inside the market's 15-minute window.
func (m Market) IsActive(now time.Time) bool {
	if m.Status != MarketOpen && m.Status != MarketActive {
		return false
	}
	return !now.Before(m.WindowStart) && now.Before(m.WindowEnd)
}

// TimeRemaining returns seconds until the window end, floored at zero.
func (m Market) TimeRemaining(now time.Time) float64 {
	rem := m.WindowEnd.Sub(now).Seconds()
	if rem < 0 {
		return 0
	}
	return rem
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// OrderbookLevel is a single resting level: price as a fraction, size in contracts.
type OrderbookLevel struct {
	Price float64 `json:"price"`
	Size  int     `json:"size"`
}

// Orderbook is a per-tick snapshot of one market's book. Only the ask sides
// matter to a taker strategy; both are kept sorted as received.
type Orderbook struct {
	Ticker  string           `json:"ticker"`
	YesAsks []OrderbookLevel `json:"yes_asks"`
	NoAsks  []OrderbookLevel `json:"no_asks"`
}

// BestYesAsk returns the lowest YES ask, if any.
func (ob *Orderbook) BestYesAsk() (float64, bool) {
	return bestAsk(ob.YesAsks)
}

// BestNoAsk returns the lowest NO ask, if any.
func (ob *Orderbook) BestNoAsk() (float64, bool) {
	return bestAsk(ob.NoAsks)
}

func bestAsk(levels []OrderbookLevel) (float64, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	best := levels[0].Price
	for _, l := range levels[1:] {
		if l.Price < best {
			best = l.Price
		}
	}
	return best, true
}

// PricePoint is one spot-price observation with a millisecond timestamp.
type PricePoint struct {
	Price       float64 `json:"price"`
	TimestampMS int64   `json:"timestamp_ms"`
}

// ————————————————————————————————————————————————————————————————————————
// Signals
// ————————————————————————————————————————————————————————————————————————

// Signal is a trade recommendation emitted by a strategy. The order manager
// runs it through the edge and risk gates before anything touches the
// exchange. Edge is model probability minus market probability on the chosen
// side; a signal is only emitted when edge and probability already clear the
// strategy's own thresholds.
type Signal struct {
	StrategyName      string         `json:"strategy_name"`
	Ticker            string         `json:"ticker"`
	Direction         Side           `json:"direction"`
	Strength          SignalStrength `json:"strength"`
	TrueProbability   float64        `json:"true_probability"`
	MarketProbability float64        `json:"market_probability"`
	Edge              float64        `json:"edge"`
	Quantity          int            `json:"recommended_quantity"`
	Price             float64        `json:"recommended_price"`
	Confidence        float64        `json:"confidence"`
	Reasoning         string         `json:"reasoning"`
	CreatedAt         time.Time      `json:"created_at"`
	ExpiresAt         time.Time      `json:"expires_at"`
}

// IsValid reports whether the signal is structurally sound and not expired.
func (s Signal) IsValid(now time.Time) bool {
	if s.Ticker == "" || s.Quantity < 1 {
		return false
	}
	if s.Price < 0.01 || s.Price > 0.99 {
		return false
	}
	if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
		return false
	}
	return true
}

// ————————————————————————————————————————————————————————————————————————
// Trades and positions
// ————————————————————————————————————————————————————————————————————————

// Trade is the internal record of one order through its whole lifecycle.
// ID is the internal UUID; OrderID is the exchange-assigned id, set once the
// order is accepted (never in dry-run).
type Trade struct {
	ID      string `json:"trade_id"`
	OrderID string `json:"order_id,omitempty"`
	Ticker  string `json:"ticker"`

	Side      Side      `json:"side"`
	OrderType OrderType `json:"order_type"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"` // limit price as a fraction

	Status           TradeStatus `json:"status"`
	FilledQuantity   int         `json:"filled_quantity"`
	AverageFillPrice float64     `json:"average_fill_price,omitempty"`

	Cost float64  `json:"cost,omitempty"`
	PnL  *float64 `json:"pnl,omitempty"` // realized P&L, nil until settlement

	StrategyName string  `json:"strategy_name"`
	Edge         float64 `json:"edge,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`

	DryRun      bool      `json:"dry_run"`
	CreatedAt   time.Time `json:"created_at"`
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
	FilledAt    time.Time `json:"filled_at,omitempty"`
	CancelledAt time.Time `json:"cancelled_at,omitempty"`

	Notes string `json:"notes,omitempty"`
}

// Position is the bot's holding in one market. At most one position exists
// per ticker at any time; repeat fills fold into the weighted average entry.
type Position struct {
	Ticker            string    `json:"ticker"`
	Side              Side      `json:"side"`
	Quantity          int       `json:"quantity"`
	AverageEntryPrice float64   `json:"average_entry_price"`
	CurrentPrice      float64   `json:"current_price,omitempty"`
	UnrealizedPnL     float64   `json:"unrealized_pnl"`
	EntryTime         time.Time `json:"entry_time"`
	LastUpdated       time.Time `json:"last_updated"`
	MaxLoss           float64   `json:"max_loss"` // quantity × entry
	MaxGain           float64   `json:"max_gain"` // quantity × (1 − entry)
}

// PnLAt returns the unrealized P&L marked at the given contract price.
func (p Position) PnLAt(price float64) float64 {
	if p.Side == SideYes {
		return (price - p.AverageEntryPrice) * float64(p.Quantity)
	}
	return (p.AverageEntryPrice - price) * float64(p.Quantity)
}

// ————————————————————————————————————————————————————————————————————————
// Kalshi wire payloads
// ————————————————————————————————————————————————————————————————————————
// These structs map 1:1 to the Kalshi trade API JSON. Prices on the wire are
// integer cents in [1, 99]. Optional request fields are pointers so absent
// values are omitted entirely; the API rejects explicit nulls.

// APIMarket is the raw market object from GET /markets.
type APIMarket struct {
	Ticker         string  `json:"ticker"`
	EventTicker    string  `json:"event_ticker"`
	Title          string  `json:"title"`
	Status         string  `json:"status"`
	FloorStrike    float64 `json:"floor_strike"`
	CapStrike      float64 `json:"cap_strike"`
	YesSubTitle    string  `json:"yes_sub_title"`
	OpenTime       string  `json:"open_time"`
	CloseTime      string  `json:"close_time"`
	ExpirationTime string  `json:"expiration_time"`
	LastPrice      int     `json:"last_price"` // cents
	YesBid         int     `json:"yes_bid"`
	YesAsk         int     `json:"yes_ask"`
	NoBid          int     `json:"no_bid"`
	NoAsk          int     `json:"no_ask"`
	Volume         int     `json:"volume"`
	Volume24h      int     `json:"volume_24h"`
}

// APIOrderbook is the raw book from GET /markets/{ticker}/orderbook.
// Levels are [price_cents, size] pairs.
type APIOrderbook struct {
	Yes [][]int `json:"yes"`
	No  [][]int `json:"no"`
}

// OrderRequest is the body for POST /portfolio/orders.
//
// Exactly one of YesPrice/NoPrice is set on a limit order, matching the
// order's side. Market buys set BuyMaxCost (cents) and no price field.
type OrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`   // "yes" | "no"
	Action        string `json:"action"` // "buy" | "sell"
	Count         int    `json:"count"`
	Type          string `json:"type"` // "limit" | "market"

	YesPrice     *int   `json:"yes_price,omitempty"`
	NoPrice      *int   `json:"no_price,omitempty"`
	BuyMaxCost   *int   `json:"buy_max_cost,omitempty"`
	TimeInForce  string `json:"time_in_force,omitempty"`
	PostOnly     *bool  `json:"post_only,omitempty"`
	ReduceOnly   *bool  `json:"reduce_only,omitempty"`
	ExpirationTS *int64 `json:"expiration_ts,omitempty"`
}

// APIOrder is the order snapshot inside order responses and status polls.
// Status is one of "resting", "canceled", "executed" — the terminal fill
// state is the literal "executed", never "filled".
type APIOrder struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	Action         string `json:"action"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	RemainingCount int    `json:"remaining_count"`
	FillCount      int    `json:"fill_count"`
	TakerFillCost  int    `json:"taker_fill_cost"` // cents
	MakerFillCost  int    `json:"maker_fill_cost"` // cents
}

// OrderResponse wraps a placed or amended order.
type OrderResponse struct {
	Order APIOrder `json:"order"`
}

// AmendResponse is returned by POST /portfolio/orders/{id}/amend. The amend
// creates a new order id; OldOrder carries the superseded one.
type AmendResponse struct {
	Order    APIOrder `json:"order"`
	OldOrder APIOrder `json:"old_order"`
}

// CancelResponse is returned by DELETE /portfolio/orders/{id}.
type CancelResponse struct {
	Order     APIOrder `json:"order"`
	ReducedBy int      `json:"reduced_by"`
}

// Balance is returned by GET /portfolio/balance, in cents.
type Balance struct {
	BalanceCents        int `json:"balance"`
	PortfolioValueCents int `json:"portfolio_value"`
}

// APIPosition is an exchange-side position row.
type APIPosition struct {
	Ticker             string `json:"ticker"`
	Position           int    `json:"position"` // positive = YES, negative = NO
	MarketExposure     int    `json:"market_exposure"`
	RestingOrdersCount int    `json:"resting_orders_count"`
	RealizedPnL        int    `json:"realized_pnl"`
	TotalTraded        int    `json:"total_traded"`
}

// Fill is one execution row from GET /portfolio/fills.
type Fill struct {
	FillID      string `json:"fill_id"`
	OrderID     string `json:"order_id"`
	Ticker      string `json:"ticker"`
	Side        string `json:"side"`
	Action      string `json:"action"`
	Count       int    `json:"count"`
	YesPrice    int    `json:"yes_price"` // cents
	NoPrice     int    `json:"no_price"`  // cents
	IsTaker     bool   `json:"is_taker"`
	CreatedTime string `json:"created_time"`
}

// Settlement is one row from GET /portfolio/settlements.
type Settlement struct {
	Ticker       string `json:"ticker"`
	MarketResult string `json:"market_result"` // "yes" | "no"
	YesCount     int    `json:"yes_count"`
	NoCount      int    `json:"no_count"`
	Revenue      int    `json:"revenue"` // cents
	SettledTime  string `json:"settled_time"`
}

// QueuePosition reports live depth ahead of a resting order.
type QueuePosition struct {
	OrderID       string `json:"order_id"`
	QueuePosition int    `json:"queue_position"`
}
