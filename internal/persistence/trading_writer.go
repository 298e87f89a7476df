package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"trading-core/internal/events"
	"trading-core/internal/logging"
	"trading-core/internal/order"
	"trading-core/internal/strategy"
	"trading-core/pkg/db"
	"trading-core/pkg/tsdb"
)

// TradingWriter subscribes to signal, order, and position events on the
// bus and persists each into pkg/tsdb, independent of which execution
// mode (live/paper/backtest) produced it. A write failure is logged and
// swallowed rather than returned: losing one persistence row must never
// retry-storm the event it's attached to or block order flow waiting on
// it.
//
// Signal inserts run through batch, the same buffer-and-flush engine the
// teacher uses elsewhere for high-volume writes, since a tick-driven
// evaluator can emit signals far more often than orders or positions
// change. Order and position rows upsert immediately: both carry a
// stable ID the same row is later updated by, so batching them would
// only add latency before the next read sees a fill or a PnL update.
type TradingWriter struct {
	store *tsdb.Store
	bus   *events.Bus
	log   zerolog.Logger
	batch *BatchWriter

	unsubs []func()
}

// NewTradingWriter builds a writer against store, publishing no events of
// its own.
func NewTradingWriter(bus *events.Bus, store *tsdb.Store) *TradingWriter {
	return &TradingWriter{
		store: store,
		bus:   bus,
		log:   logging.For("trading.persistence"),
		batch: NewBatchWriter(store.SQLDB(), 50, 500*time.Millisecond),
	}
}

// Start subscribes to every event this writer persists. Call once; Stop
// tears the subscriptions back down.
func (w *TradingWriter) Start() error {
	subs := []struct {
		topic   events.Event
		handler func(context.Context, any) error
	}{
		{events.EventSignalGenerated, w.onSignal},
		{events.EventOrderCreated, w.onOrder},
		{events.EventOrderSubmitted, w.onOrder},
		{events.EventOrderAccepted, w.onOrder},
		{events.EventOrderFilled, w.onOrder},
		{events.EventOrderUpdate, w.onOrder},
		{events.EventOrderCancelled, w.onOrder},
		{events.EventPositionOpened, w.onPosition},
		{events.EventPositionUpdate, w.onPosition},
		{events.EventPositionClosed, w.onPosition},
	}
	for _, s := range subs {
		unsub, err := w.bus.Subscribe(s.topic, s.handler)
		if err != nil {
			w.Stop()
			return err
		}
		w.unsubs = append(w.unsubs, unsub)
	}
	return nil
}

// Stop removes every subscription this writer registered and flushes and
// closes the batch writer behind it. Idempotent.
func (w *TradingWriter) Stop() {
	for _, unsub := range w.unsubs {
		unsub()
	}
	w.unsubs = nil
	_ = w.batch.Close()
}

func (w *TradingWriter) onSignal(_ context.Context, payload any) error {
	sig, ok := payload.(strategy.Signal)
	if !ok {
		return nil
	}

	conditions, _ := json.Marshal(sig.ConditionsMet)
	indicatorValues, _ := json.Marshal(sig.IndicatorValues)
	metadata, _ := json.Marshal(sig.Metadata)

	ts := sig.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	w.batch.Write(WriteOp{
		Table: "strategy_signals",
		Query: `INSERT INTO strategy_signals
			(strategy_id, symbol, signal_type, ts, action, triggered, conditions_met, indicator_values, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		Args: []any{
			sig.StrategyID, sig.Symbol, string(sig.SignalType), ts, string(sig.Action),
			sig.Triggered, []byte(conditions), []byte(indicatorValues), []byte(metadata),
		},
	})
	return nil
}

// orderFill documents the anonymous shape the Live order manager's
// user-data stream handlers and the Paper manager's dry-run executor
// publish on order_filled, distinct from the fuller order.Order/db.Order
// rows the submit path publishes. Go type switches match on exact type
// identity, so the match against that anonymous struct below has to
// spell it out inline rather than name this type.
type orderFill struct {
	ID     string
	Symbol string
	Side   string
	Qty    float64
	Price  float64
}

func (w *TradingWriter) onOrder(ctx context.Context, payload any) error {
	row, ok := orderRowFrom(payload)
	if !ok {
		return nil
	}
	if err := w.store.UpsertOrder(ctx, row); err != nil {
		w.log.Warn().Err(err).Str("order_id", row.OrderID).Str("symbol", row.Symbol).
			Msg("order persistence failed")
	}
	return nil
}

func orderRowFrom(payload any) (tsdb.OrderRow, bool) {
	switch v := payload.(type) {
	case order.Order:
		price := v.Price
		return tsdb.OrderRow{
			OrderID:     v.ID,
			StrategyID:  v.StrategyInstanceID,
			Symbol:      v.Symbol,
			Side:        v.Side,
			OrderType:   v.Type,
			Qty:         v.Qty,
			Price:       &price,
			FilledQty:   v.FilledQty,
			Status:      v.Status,
			Timestamp:   orDefault(v.CreatedAt),
		}, true
	case db.Order:
		price := v.Price
		return tsdb.OrderRow{
			OrderID:    v.ID,
			StrategyID: v.StrategyInstanceID,
			Symbol:     v.Symbol,
			Side:       v.Side,
			OrderType:  "MARKET",
			Qty:        v.Qty,
			Price:      &price,
			FilledQty:  v.FilledQty,
			Status:     v.Status,
			Timestamp:  orDefault(v.CreatedAt),
		}, true
	case struct {
		ID     string
		Symbol string
		Side   string
		Qty    float64
		Price  float64
	}:
		price := v.Price
		return tsdb.OrderRow{
			OrderID:     v.ID,
			Symbol:      v.Symbol,
			Side:        v.Side,
			OrderType:   "MARKET",
			Qty:         v.Qty,
			Price:       &price,
			FilledQty:   v.Qty,
			FilledPrice: &price,
			Status:      "FILLED",
			Timestamp:   time.Now(),
		}, true
	default:
		return tsdb.OrderRow{}, false
	}
}

func orDefault(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// onPosition persists a position snapshot. No in-tree publisher emits a
// concrete Position type yet (the state/reconciliation managers track
// positions in memory and in pkg/db's own tables); this accepts the
// map[string]any shape spec.md's future position-tracking publishers
// should use, keyed the same as tsdb.PositionRow's columns.
func (w *TradingWriter) onPosition(ctx context.Context, payload any) error {
	data, ok := payload.(map[string]any)
	if !ok {
		return nil
	}

	row := tsdb.PositionRow{
		PositionID:    stringField(data, "position_id"),
		Symbol:        stringField(data, "symbol"),
		Side:          stringField(data, "side"),
		Qty:           floatField(data, "qty"),
		EntryPrice:    floatField(data, "entry_price"),
		CurrentPrice:  floatField(data, "current_price"),
		UnrealizedPnL: floatField(data, "unrealized_pnl"),
		RealizedPnL:   floatField(data, "realized_pnl"),
		Status:        stringField(data, "status"),
		UpdatedAt:     time.Now(),
	}
	if row.PositionID == "" {
		return nil
	}
	if sl, ok := data["stop_loss"].(float64); ok {
		row.StopLoss = &sl
	}
	if tp, ok := data["take_profit"].(float64); ok {
		row.TakeProfit = &tp
	}

	if err := w.store.UpsertPosition(ctx, row); err != nil {
		w.log.Warn().Err(err).Str("position_id", row.PositionID).Str("symbol", row.Symbol).
			Msg("position persistence failed")
	}
	return nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func floatField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
