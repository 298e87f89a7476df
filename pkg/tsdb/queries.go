package tsdb

import (
	"context"
	"fmt"
	"time"
)

// InsertPrice writes a single price tick.
func (s *Store) InsertPrice(ctx context.Context, r PriceRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO prices (symbol, ts, price, volume, quote_volume)
		VALUES (:symbol, :ts, :price, :volume, :quote_volume)
		ON CONFLICT (symbol, ts) DO NOTHING`, r)
	if err != nil {
		return fmt.Errorf("tsdb: insert price: %w", err)
	}
	return nil
}

// BatchInsertPrices bulk-inserts prices in one round trip, standing in
// for the ILP fast path.
func (s *Store) BatchInsertPrices(ctx context.Context, rows []PriceRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO prices (symbol, ts, price, volume, quote_volume)
		VALUES (:symbol, :ts, :price, :volume, :quote_volume)
		ON CONFLICT (symbol, ts) DO NOTHING`, rows)
	if err != nil {
		return fmt.Errorf("tsdb: batch insert prices: %w", err)
	}
	return nil
}

// InsertOrderbook writes a single order book snapshot.
func (s *Store) InsertOrderbook(ctx context.Context, r OrderbookRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO orderbooks (symbol, ts, bids, asks)
		VALUES (:symbol, :ts, :bids, :asks)
		ON CONFLICT (symbol, ts) DO NOTHING`, r)
	if err != nil {
		return fmt.Errorf("tsdb: insert orderbook: %w", err)
	}
	return nil
}

// BatchInsertOrderbooks bulk-inserts order book snapshots.
func (s *Store) BatchInsertOrderbooks(ctx context.Context, rows []OrderbookRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO orderbooks (symbol, ts, bids, asks)
		VALUES (:symbol, :ts, :bids, :asks)
		ON CONFLICT (symbol, ts) DO NOTHING`, rows)
	if err != nil {
		return fmt.Errorf("tsdb: batch insert orderbooks: %w", err)
	}
	return nil
}

// InsertIndicator writes a single computed indicator value. Callers must
// not call this with a null value — the indicator engine skips those
// before reaching persistence.
func (s *Store) InsertIndicator(ctx context.Context, r IndicatorRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO indicators (session_id, symbol, variant_id, ts, value, blob, confidence)
		VALUES (:session_id, :symbol, :variant_id, :ts, :value, :blob, :confidence)
		ON CONFLICT (session_id, variant_id, ts) DO NOTHING`, r)
	if err != nil {
		return fmt.Errorf("tsdb: insert indicator: %w", err)
	}
	return nil
}

// BatchInsertIndicators bulk-inserts indicator values; used by the SIE's
// scheduler flush path.
func (s *Store) BatchInsertIndicators(ctx context.Context, rows []IndicatorRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO indicators (session_id, symbol, variant_id, ts, value, blob, confidence)
		VALUES (:session_id, :symbol, :variant_id, :ts, :value, :blob, :confidence)
		ON CONFLICT (session_id, variant_id, ts) DO NOTHING`, rows)
	if err != nil {
		return fmt.Errorf("tsdb: batch insert indicators: %w", err)
	}
	return nil
}

// InsertSignal records a strategy signal emission.
func (s *Store) InsertSignal(ctx context.Context, r SignalRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO strategy_signals
			(strategy_id, symbol, signal_type, ts, action, triggered, conditions_met, indicator_values, metadata)
		VALUES
			(:strategy_id, :symbol, :signal_type, :ts, :action, :triggered, :conditions_met, :indicator_values, :metadata)`, r)
	if err != nil {
		return fmt.Errorf("tsdb: insert signal: %w", err)
	}
	return nil
}

// UpsertOrder inserts or updates an order row by order_id.
func (s *Store) UpsertOrder(ctx context.Context, r OrderRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO orders
			(order_id, strategy_id, symbol, side, order_type, qty, price, filled_qty, filled_price, commission, status, ts, metadata)
		VALUES
			(:order_id, :strategy_id, :symbol, :side, :order_type, :qty, :price, :filled_qty, :filled_price, :commission, :status, :ts, :metadata)
		ON CONFLICT (order_id) DO UPDATE SET
			filled_qty = EXCLUDED.filled_qty,
			filled_price = EXCLUDED.filled_price,
			commission = EXCLUDED.commission,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata`, r)
	if err != nil {
		return fmt.Errorf("tsdb: upsert order: %w", err)
	}
	return nil
}

// UpsertPosition inserts or updates a position row by position_id.
func (s *Store) UpsertPosition(ctx context.Context, r PositionRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO positions
			(position_id, symbol, side, qty, entry_price, current_price, unrealized_pnl, realized_pnl, stop_loss, take_profit, status, updated_at)
		VALUES
			(:position_id, :symbol, :side, :qty, :entry_price, :current_price, :unrealized_pnl, :realized_pnl, :stop_loss, :take_profit, :status, :updated_at)
		ON CONFLICT (position_id) DO UPDATE SET
			qty = EXCLUDED.qty,
			current_price = EXCLUDED.current_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			realized_pnl = EXCLUDED.realized_pnl,
			stop_loss = EXCLUDED.stop_loss,
			take_profit = EXCLUDED.take_profit,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`, r)
	if err != nil {
		return fmt.Errorf("tsdb: upsert position: %w", err)
	}
	return nil
}

// UpsertSession inserts or updates execution session metadata, used by
// the Execution Controller and by data-collection/paper-trading session
// bookkeeping.
func (s *Store) UpsertSession(ctx context.Context, r SessionRow) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO execution_sessions
			(session_id, mode, symbols, status, parameters, start_time, end_time, progress, metrics, error_message)
		VALUES
			(:session_id, :mode, :symbols, :status, :parameters, :start_time, :end_time, :progress, :metrics, :error_message)
		ON CONFLICT (session_id) DO UPDATE SET
			status = EXCLUDED.status,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			progress = EXCLUDED.progress,
			metrics = EXCLUDED.metrics,
			error_message = EXCLUDED.error_message`, r)
	if err != nil {
		return fmt.Errorf("tsdb: upsert session: %w", err)
	}
	return nil
}

// PricesInRange reads prices for symbol between start and end, used by
// the Historical replay DataSource.
func (s *Store) PricesInRange(ctx context.Context, symbol string, start, end time.Time) ([]PriceRow, error) {
	var rows []PriceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT symbol, ts, price, volume, quote_volume FROM prices
		WHERE symbol = $1 AND ts > $2 AND ts <= $3
		ORDER BY ts ASC`, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("tsdb: prices in range: %w", err)
	}
	return rows, nil
}
