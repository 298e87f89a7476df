package indicators

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-core/internal/events"
	"trading-core/internal/logging"
)

// TimeDrivenSchedule declares a fixed-cadence refresh for an indicator
// instead of the default event-driven (on-tick) evaluation.
type TimeDrivenSchedule struct {
	Interval time.Duration
}

// StreamingIndicator is one runtime instance: a variant bound to a symbol
// and timeframe, backed by the symbol's ring buffer.
type StreamingIndicator struct {
	SessionID string
	Symbol    string
	Timeframe string
	Variant   Variant
	Schedule  *TimeDrivenSchedule // nil => event-driven

	lastValue IndicatorValue
}

// PersistenceSink receives computed, non-null indicator values for
// durable storage. Implemented by internal/indicators/persistence.go.
type PersistenceSink interface {
	WriteIndicatorValue(ctx context.Context, sessionID, symbol, variantID string, v IndicatorValue) error
}

// Engine is the Streaming Indicator Engine: it owns per-symbol ring
// buffers, the variant/base-type registries, and the runtime indicator
// instances bound to active sessions.
type Engine struct {
	mu sync.RWMutex

	baseTypes *BaseTypeRegistry
	variants  *VariantRegistry

	buffers           map[string]*SymbolBuffer       // symbol -> buffer
	indicatorsBySym   map[string][]*StreamingIndicator // symbol -> bound instances
	bufferCapacity    int

	bus  *events.Bus
	sink PersistenceSink
	log  zerolog.Logger

	unsubPrice     func()
	unsubOrderbook func()

	stopTickers chan struct{}
	tickerWG    sync.WaitGroup
}

// NewEngine builds a Streaming Indicator Engine wired to bus for
// event-driven ticks and sink for persistence forwarding. sink may be nil
// (values are simply not persisted, still emitted on the bus).
func NewEngine(bus *events.Bus, sink PersistenceSink) *Engine {
	baseTypes := NewBaseTypeRegistry()
	e := &Engine{
		baseTypes:       baseTypes,
		variants:        NewVariantRegistry(baseTypes),
		buffers:         make(map[string]*SymbolBuffer),
		indicatorsBySym: make(map[string][]*StreamingIndicator),
		bufferCapacity:  DefaultBufferCapacity,
		bus:             bus,
		sink:            sink,
		log:             logging.For("sie"),
		stopTickers:     make(chan struct{}),
	}
	if bus != nil {
		e.unsubPrice, _ = subscribeOrNoop(bus, events.EventPriceTick, e.handlePriceUpdate)
		e.unsubOrderbook, _ = subscribeOrNoop(bus, events.EventOrderbookUpdate, e.handleOrderbookUpdate)
	}
	return e
}

func subscribeOrNoop(bus *events.Bus, topic events.Event, fn func(context.Context, any) error) (func(), error) {
	return bus.Subscribe(topic, fn)
}

// BaseTypes exposes the base type registry (read-only usage expected).
func (e *Engine) BaseTypes() *BaseTypeRegistry { return e.baseTypes }

// Variants exposes the variant registry.
func (e *Engine) Variants() *VariantRegistry { return e.variants }

func (e *Engine) bufferFor(symbol string) *SymbolBuffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf, ok := e.buffers[symbol]
	if !ok {
		buf = NewSymbolBuffer(symbol, e.bufferCapacity)
		e.buffers[symbol] = buf
	}
	return buf
}

// AddIndicatorToSession is the only path that registers a runtime
// indicator under the per-symbol index. Market data for symbols without
// at least one bound indicator is ignored by recompute.
func (e *Engine) AddIndicatorToSession(sessionID, symbol, variantID string, timeframe string, schedule *TimeDrivenSchedule) (*StreamingIndicator, error) {
	v, err := e.variants.GetVariant(variantID)
	if err != nil {
		return nil, err
	}
	e.bufferFor(symbol) // ensure a buffer exists even before the first tick

	si := &StreamingIndicator{
		SessionID: sessionID,
		Symbol:    symbol,
		Timeframe: timeframe,
		Variant:   v,
		Schedule:  schedule,
	}

	e.mu.Lock()
	e.indicatorsBySym[symbol] = append(e.indicatorsBySym[symbol], si)
	e.mu.Unlock()

	if schedule != nil {
		e.startTimeDriven(si)
	}
	return si, nil
}

// RemoveSessionIndicators tears down every runtime indicator registered
// for sessionID, across all symbols. Called from session cleanup.
func (e *Engine) RemoveSessionIndicators(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for sym, sis := range e.indicatorsBySym {
		kept := sis[:0]
		for _, si := range sis {
			if si.SessionID != sessionID {
				kept = append(kept, si)
			}
		}
		if len(kept) == 0 {
			delete(e.indicatorsBySym, sym)
		} else {
			e.indicatorsBySym[sym] = kept
		}
	}
}

// PriceUpdatePayload is the expected shape on market.price_update.
type PriceUpdatePayload struct {
	Tick Tick
}

// OrderbookUpdatePayload is the expected shape on market.orderbook_update.
type OrderbookUpdatePayload struct {
	Snapshot OrderbookSnapshot
}

func (e *Engine) handlePriceUpdate(ctx context.Context, payload any) error {
	pu, ok := payload.(PriceUpdatePayload)
	if !ok {
		return nil
	}
	buf := e.bufferFor(pu.Tick.Symbol)
	if !buf.PushTick(pu.Tick) {
		e.log.Debug().Str("symbol", pu.Tick.Symbol).Msg("dropped out-of-order tick")
		return nil
	}
	e.recomputeEventDriven(ctx, pu.Tick.Symbol, pu.Tick.Timestamp)
	return nil
}

func (e *Engine) handleOrderbookUpdate(ctx context.Context, payload any) error {
	ou, ok := payload.(OrderbookUpdatePayload)
	if !ok {
		return nil
	}
	buf := e.bufferFor(ou.Snapshot.Symbol)
	buf.PushOrderbook(ou.Snapshot)
	e.recomputeEventDriven(ctx, ou.Snapshot.Symbol, ou.Snapshot.Timestamp)
	return nil
}

// recomputeEventDriven recomputes every event-driven (non-scheduled)
// indicator bound to symbol and emits/persists non-null results.
func (e *Engine) recomputeEventDriven(ctx context.Context, symbol string, now time.Time) {
	e.mu.RLock()
	sis := append([]*StreamingIndicator{}, e.indicatorsBySym[symbol]...)
	e.mu.RUnlock()

	if len(sis) == 0 {
		return
	}
	buf := e.bufferFor(symbol)
	for _, si := range sis {
		if si.Schedule != nil {
			continue // handled by its own ticker
		}
		e.computeAndEmit(ctx, si, buf, now)
	}
}

func (e *Engine) computeAndEmit(ctx context.Context, si *StreamingIndicator, buf *SymbolBuffer, now time.Time) {
	bt, err := e.baseTypes.Get(si.Variant.BaseType)
	if err != nil {
		e.log.Warn().Str("base_type", si.Variant.BaseType).Msg("unknown base type, skipping")
		return
	}
	v := bt.Compute(buf, now, si.Variant.Parameters)
	si.lastValue = v
	if !v.Valid {
		return
	}

	if e.bus != nil {
		e.bus.Publish(events.EventIndicatorUpdated, IndicatorUpdatePayload{
			SessionID: si.SessionID,
			Symbol:    si.Symbol,
			VariantID: si.Variant.ID,
			Value:     v,
		})
	}
	if e.sink != nil {
		if err := e.sink.WriteIndicatorValue(ctx, si.SessionID, si.Symbol, si.Variant.ID, v); err != nil {
			e.log.Warn().Err(err).Str("variant_id", si.Variant.ID).Msg("indicator persistence failed")
		}
	}
}

// IndicatorUpdatePayload is the shape published on indicator.updated.
type IndicatorUpdatePayload struct {
	SessionID string
	Symbol    string
	VariantID string
	Value     IndicatorValue
}

// startTimeDriven launches a monotonic ticker goroutine for a
// time-driven indicator. Stopped by Shutdown.
func (e *Engine) startTimeDriven(si *StreamingIndicator) {
	e.tickerWG.Add(1)
	go func() {
		defer e.tickerWG.Done()
		ticker := time.NewTicker(si.Schedule.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopTickers:
				return
			case <-ticker.C:
				e.mu.RLock()
				stopped := e.stoppedLocked(si)
				e.mu.RUnlock()
				if stopped {
					return
				}
				buf := e.bufferFor(si.Symbol)
				e.computeAndEmit(context.Background(), si, buf, time.Now())
			}
		}
	}()
}

func (e *Engine) stoppedLocked(target *StreamingIndicator) bool {
	for _, si := range e.indicatorsBySym[target.Symbol] {
		if si == target {
			return false
		}
	}
	return true
}

// Shutdown unsubscribes from the bus and stops all time-driven tickers.
func (e *Engine) Shutdown() {
	if e.unsubPrice != nil {
		e.unsubPrice()
	}
	if e.unsubOrderbook != nil {
		e.unsubOrderbook()
	}
	close(e.stopTickers)
	e.tickerWG.Wait()

	e.mu.Lock()
	e.indicatorsBySym = make(map[string][]*StreamingIndicator)
	e.mu.Unlock()
}
