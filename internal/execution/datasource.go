package execution

import (
	"context"
	"time"

	"trading-core/internal/events"
	"trading-core/internal/indicators"
	"trading-core/pkg/tsdb"
)

// DataPoint is one unit of market data handed from a DataSource to the
// Controller's processing loop: either a price tick or an orderbook
// snapshot, never both.
type DataPoint struct {
	Tick      *indicators.Tick
	Orderbook *indicators.OrderbookSnapshot
}

// DataSource is the execution loop's feed abstraction: historical replay,
// a live exchange adapter, or a recorded file replay all implement it the
// same way so the Controller's run loop never branches on mode.
type DataSource interface {
	StartStream(ctx context.Context) error
	NextBatch(ctx context.Context) ([]DataPoint, error)
	StopStream(ctx context.Context) error
	Progress() *float64 // nil for unbounded/live sources
}

// HistoricalReplayDataSource replays prices recorded in the time-series
// store between two timestamps, for backtest sessions.
type HistoricalReplayDataSource struct {
	store     *tsdb.Store
	symbols   []string
	start, end time.Time
	batchSize int

	rows     []tsdb.PriceRow
	cursor   int
	loaded   bool
}

func NewHistoricalReplayDataSource(store *tsdb.Store, symbols []string, start, end time.Time) *HistoricalReplayDataSource {
	return &HistoricalReplayDataSource{store: store, symbols: symbols, start: start, end: end, batchSize: 256}
}

func (h *HistoricalReplayDataSource) StartStream(ctx context.Context) error {
	var all []tsdb.PriceRow
	for _, sym := range h.symbols {
		rows, err := h.store.PricesInRange(ctx, sym, h.start, h.end)
		if err != nil {
			return err
		}
		all = append(all, rows...)
	}
	h.rows = all
	h.loaded = true
	return nil
}

func (h *HistoricalReplayDataSource) NextBatch(ctx context.Context) ([]DataPoint, error) {
	if !h.loaded || h.cursor >= len(h.rows) {
		return nil, nil
	}
	end := h.cursor + h.batchSize
	if end > len(h.rows) {
		end = len(h.rows)
	}
	batch := make([]DataPoint, 0, end-h.cursor)
	for _, r := range h.rows[h.cursor:end] {
		batch = append(batch, DataPoint{Tick: &indicators.Tick{
			Symbol:      r.Symbol,
			Timestamp:   r.Timestamp,
			Price:       r.Price,
			Volume:      r.Volume,
			QuoteVolume: r.QuoteVolume,
		}})
	}
	h.cursor = end
	return batch, nil
}

func (h *HistoricalReplayDataSource) StopStream(ctx context.Context) error {
	return nil
}

func (h *HistoricalReplayDataSource) Progress() *float64 {
	if len(h.rows) == 0 {
		p := 100.0
		return &p
	}
	p := 100.0 * float64(h.cursor) / float64(len(h.rows))
	return &p
}

// LiveDataSource bridges the existing market adapter's event.Bus topics
// into the Controller's batch-pull model via a bounded channel per topic.
// Bus.SubscribeChan already drops a payload rather than blocking the
// publisher when a channel is full, so a saturated feed silently sheds its
// newest updates instead of stalling the bus.
type LiveDataSource struct {
	bus     *events.Bus
	symbols map[string]bool

	priceCh               <-chan any
	bookCh                <-chan any
	unsubPrice, unsubBook func()
}

func NewLiveDataSource(bus *events.Bus, symbols []string) *LiveDataSource {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return &LiveDataSource{bus: bus, symbols: set}
}

func (l *LiveDataSource) StartStream(ctx context.Context) error {
	l.priceCh, l.unsubPrice = l.bus.SubscribeChan(events.EventPriceTick, 1000)
	l.bookCh, l.unsubBook = l.bus.SubscribeChan(events.EventOrderbookUpdate, 1000)
	return nil
}

func (l *LiveDataSource) NextBatch(ctx context.Context) ([]DataPoint, error) {
	var batch []DataPoint
	timeout := time.After(5 * time.Second)
	for len(batch) < 256 {
		select {
		case p, ok := <-l.priceCh:
			if !ok {
				return batch, nil
			}
			payload, ok := p.(indicators.PriceUpdatePayload)
			if !ok || !l.symbols[payload.Tick.Symbol] {
				continue
			}
			t := payload.Tick
			batch = append(batch, DataPoint{Tick: &t})
		case b, ok := <-l.bookCh:
			if !ok {
				return batch, nil
			}
			payload, ok := b.(indicators.OrderbookUpdatePayload)
			if !ok || !l.symbols[payload.Snapshot.Symbol] {
				continue
			}
			s := payload.Snapshot
			batch = append(batch, DataPoint{Orderbook: &s})
		case <-timeout:
			if len(batch) == 0 {
				return nil, nil
			}
			return batch, nil
		case <-ctx.Done():
			return batch, ctx.Err()
		}
	}
	return batch, nil
}

func (l *LiveDataSource) StopStream(ctx context.Context) error {
	if l.unsubPrice != nil {
		l.unsubPrice()
	}
	if l.unsubBook != nil {
		l.unsubBook()
	}
	return nil
}

func (l *LiveDataSource) Progress() *float64 {
	return nil
}

// FileReplayDataSource replays CSV rows captured by a prior data-collection
// run, grounded on the same kline-row shape internal/data/historical.go
// uses for exchange klines.
type FileReplayDataSource struct {
	rows   []indicators.Tick
	cursor int
}

// NewFileReplayDataSource builds a replay source from pre-parsed rows; the
// caller (session pre-start hook) is responsible for CSV parsing, matching
// the legacy data-collection file format (timestamp,price,volume,quote_volume).
func NewFileReplayDataSource(rows []indicators.Tick) *FileReplayDataSource {
	return &FileReplayDataSource{rows: rows}
}

func (f *FileReplayDataSource) StartStream(ctx context.Context) error { return nil }

func (f *FileReplayDataSource) NextBatch(ctx context.Context) ([]DataPoint, error) {
	if f.cursor >= len(f.rows) {
		return nil, nil
	}
	end := f.cursor + 256
	if end > len(f.rows) {
		end = len(f.rows)
	}
	batch := make([]DataPoint, 0, end-f.cursor)
	for i := f.cursor; i < end; i++ {
		t := f.rows[i]
		batch = append(batch, DataPoint{Tick: &t})
	}
	f.cursor = end
	return batch, nil
}

func (f *FileReplayDataSource) StopStream(ctx context.Context) error { return nil }

func (f *FileReplayDataSource) Progress() *float64 {
	if len(f.rows) == 0 {
		p := 100.0
		return &p
	}
	p := 100.0 * float64(f.cursor) / float64(len(f.rows))
	return &p
}
