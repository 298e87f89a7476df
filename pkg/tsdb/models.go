package tsdb

import (
	"encoding/json"
	"time"
)

// PriceRow is one row of the prices table.
type PriceRow struct {
	Symbol      string    `db:"symbol"`
	Timestamp   time.Time `db:"ts"`
	Price       float64   `db:"price"`
	Volume      float64   `db:"volume"`
	QuoteVolume float64   `db:"quote_volume"`
}

// OrderbookRow is one row of the orderbooks table; bids/asks are stored
// as JSON arrays of {price, qty}.
type OrderbookRow struct {
	Symbol    string          `db:"symbol"`
	Timestamp time.Time       `db:"ts"`
	Bids      json.RawMessage `db:"bids"`
	Asks      json.RawMessage `db:"asks"`
}

// IndicatorRow is one row of the indicators table.
type IndicatorRow struct {
	SessionID  string          `db:"session_id"`
	Symbol     string          `db:"symbol"`
	VariantID  string          `db:"variant_id"`
	Timestamp  time.Time       `db:"ts"`
	Value      *float64        `db:"value"`
	Blob       json.RawMessage `db:"blob"`
	Confidence float64         `db:"confidence"`
}

// SignalRow is one row of the strategy_signals table.
type SignalRow struct {
	StrategyID      string          `db:"strategy_id"`
	Symbol          string          `db:"symbol"`
	SignalType      string          `db:"signal_type"`
	Timestamp       time.Time       `db:"ts"`
	Action          string          `db:"action"`
	Triggered       bool            `db:"triggered"`
	ConditionsMet   json.RawMessage `db:"conditions_met"`
	IndicatorValues json.RawMessage `db:"indicator_values"`
	Metadata        json.RawMessage `db:"metadata"`
}

// OrderRow is one row of the orders table.
type OrderRow struct {
	OrderID     string          `db:"order_id"`
	StrategyID  string          `db:"strategy_id"`
	Symbol      string          `db:"symbol"`
	Side        string          `db:"side"`
	OrderType   string          `db:"order_type"`
	Qty         float64         `db:"qty"`
	Price       *float64        `db:"price"`
	FilledQty   float64         `db:"filled_qty"`
	FilledPrice *float64        `db:"filled_price"`
	Commission  float64         `db:"commission"`
	Status      string          `db:"status"`
	Timestamp   time.Time       `db:"ts"`
	Metadata    json.RawMessage `db:"metadata"`
}

// PositionRow is one row of the positions table.
type PositionRow struct {
	PositionID    string    `db:"position_id"`
	Symbol        string    `db:"symbol"`
	Side          string    `db:"side"`
	Qty           float64   `db:"qty"`
	EntryPrice    float64   `db:"entry_price"`
	CurrentPrice  float64   `db:"current_price"`
	UnrealizedPnL float64   `db:"unrealized_pnl"`
	RealizedPnL   float64   `db:"realized_pnl"`
	StopLoss      *float64  `db:"stop_loss"`
	TakeProfit    *float64  `db:"take_profit"`
	Status        string    `db:"status"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// SessionRow is one row of the execution_sessions table.
type SessionRow struct {
	SessionID    string          `db:"session_id"`
	Mode         string          `db:"mode"`
	Symbols      json.RawMessage `db:"symbols"`
	Status       string          `db:"status"`
	Parameters   json.RawMessage `db:"parameters"`
	StartTime    *time.Time      `db:"start_time"`
	EndTime      *time.Time      `db:"end_time"`
	Progress     float64         `db:"progress"`
	Metrics      json.RawMessage `db:"metrics"`
	ErrorMessage *string         `db:"error_message"`
}
