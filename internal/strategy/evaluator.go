package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-core/internal/events"
	"trading-core/internal/indicators"
	"trading-core/internal/logging"
)

// symbolKey is the composite key for per-(strategy,symbol) state.
type symbolKey struct {
	strategyID string
	symbol     string
}

// Evaluator maintains per-(strategy, symbol) SymbolState and translates
// indicator updates into trading signals via the five condition groups.
type Evaluator struct {
	mu sync.RWMutex

	strategies map[string]*Strategy // strategyID -> definition
	states     map[symbolKey]*SymbolState
	// indicatorValues[symbol][indicatorID] = latest value.
	indicatorValues map[string]map[string]float64
	// subscriptions[strategyID][symbol] = indicator ids that strategy cares
	// about for that symbol; drives which symbols re-evaluate on update.
	subscriptions map[string]map[string][]string

	bus *events.Bus
	log zerolog.Logger

	unsubIndicator func()
}

// NewEvaluator builds a strategy evaluator wired to bus for
// indicator.updated input and signal_generated output.
func NewEvaluator(bus *events.Bus) *Evaluator {
	e := &Evaluator{
		strategies:      make(map[string]*Strategy),
		states:          make(map[symbolKey]*SymbolState),
		indicatorValues: make(map[string]map[string]float64),
		subscriptions:   make(map[string]map[string][]string),
		bus:             bus,
		log:             logging.For("strategy"),
	}
	if bus != nil {
		e.unsubIndicator, _ = bus.Subscribe(events.EventIndicatorUpdated, e.handleIndicatorUpdate)
	}
	return e
}

// ActivateStrategy registers a strategy for evaluation on symbol, with
// indicatorIDs declaring which indicators it wants to watch for that
// symbol. Evaluation for symbol runs whenever any of those indicators
// updates.
func (e *Evaluator) ActivateStrategy(s *Strategy, symbol string, indicatorIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.strategies[s.ID] = s
	key := symbolKey{strategyID: s.ID, symbol: symbol}
	if _, ok := e.states[key]; !ok {
		e.states[key] = &SymbolState{State: StateIdle}
	}
	if _, ok := e.subscriptions[s.ID]; !ok {
		e.subscriptions[s.ID] = make(map[string][]string)
	}
	e.subscriptions[s.ID][symbol] = indicatorIDs
}

// DeactivateStrategy removes a strategy's state for symbol (or every
// symbol if symbol is empty).
func (e *Evaluator) DeactivateStrategy(strategyID, symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if symbol == "" {
		for key := range e.states {
			if key.strategyID == strategyID {
				delete(e.states, key)
			}
		}
		delete(e.subscriptions, strategyID)
		delete(e.strategies, strategyID)
		return
	}
	delete(e.states, symbolKey{strategyID: strategyID, symbol: symbol})
	if subs, ok := e.subscriptions[strategyID]; ok {
		delete(subs, symbol)
	}
}

func (e *Evaluator) handleIndicatorUpdate(ctx context.Context, payload any) error {
	upd, ok := payload.(indicators.IndicatorUpdatePayload)
	if !ok || !upd.Value.Valid {
		return nil
	}

	e.mu.Lock()
	values, ok := e.indicatorValues[upd.Symbol]
	if !ok {
		values = make(map[string]float64)
		e.indicatorValues[upd.Symbol] = values
	}
	values[upd.VariantID] = upd.Value.Value
	e.mu.Unlock()

	e.EvaluateSymbol(upd.Symbol)
	return nil
}

// EvaluateSymbol re-evaluates every active strategy bound to symbol
// against the latest indicator values.
func (e *Evaluator) EvaluateSymbol(symbol string) {
	e.mu.RLock()
	var candidates []*Strategy
	for id, subs := range e.subscriptions {
		if _, bound := subs[symbol]; bound {
			if s, ok := e.strategies[id]; ok && s.Enabled {
				candidates = append(candidates, s)
			}
		}
	}
	values := cloneValues(e.indicatorValues[symbol])
	e.mu.RUnlock()

	now := time.Now()
	for _, s := range candidates {
		e.evaluateStrategySymbol(s, symbol, values, now)
	}
}

func cloneValues(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (e *Evaluator) evaluateStrategySymbol(s *Strategy, symbol string, values map[string]float64, now time.Time) {
	key := symbolKey{strategyID: s.ID, symbol: symbol}

	e.mu.Lock()
	state, ok := e.states[key]
	if !ok {
		state = &SymbolState{State: StateIdle}
		e.states[key] = state
	}
	e.mu.Unlock()

	// Emergency is always checked first, rate-limited by cooldown.
	if triggered, met := s.Emergency.Evaluate(values); triggered {
		e.mu.Lock()
		coolOK := now.After(state.EmergencyCooldownEnd) || now.Equal(state.EmergencyCooldownEnd)
		if coolOK {
			state.EmergencyCooldownEnd = now.Add(s.EmergencyCooldown)
		}
		e.mu.Unlock()

		if coolOK {
			e.emit(s, symbol, SignalEmergency, true, met, values, ActionClose, now)
			return
		}
	}

	e.mu.Lock()
	current := state.State
	e.mu.Unlock()

	switch current {
	case StateIdle:
		if triggered, met := s.S1.Evaluate(values); triggered {
			e.mu.Lock()
			state.State = StateS1Active
			state.SignalStartTime = now
			e.mu.Unlock()
			e.emit(s, symbol, SignalS1, true, met, values, ActionLockSymbol, now)
		}

	case StateS1Active:
		if e.checkCancel(s, state, values, now) {
			e.emit(s, symbol, SignalO1, true, nil, values, ActionCancel, now)
			return
		}
		if triggered, met := s.Z1.Evaluate(values); triggered {
			e.mu.Lock()
			state.State = StateZ1Active
			state.OrderPlacedTime = now
			e.mu.Unlock()
			action := ActionBuy
			if s.Direction == DirectionShort {
				action = ActionSell
			}
			e.emit(s, symbol, SignalZ1, true, met, values, action, now)
		}

	case StateZ1Active:
		if e.checkCancel(s, state, values, now) {
			e.emit(s, symbol, SignalO1, true, nil, values, ActionCancel, now)
			return
		}
		if triggered, met := s.ZE1.Evaluate(values); triggered {
			e.mu.Lock()
			state.State = StateIdle
			state.PositionActive = false
			e.mu.Unlock()
			e.emit(s, symbol, SignalZE1, true, met, values, ActionClose, now)
		}

	case StateZE1Active:
		// Reserved for implementations that model a distinct post-close
		// settlement phase; current lifecycle returns directly to IDLE
		// from Z1_ACTIVE on ZE1, so this state is not entered by EvaluateSymbol.
	}
}

// checkCancel evaluates O1: the group is true, OR the section has been
// active at least as long as the strategy's O1Timeout (when non-zero).
// On cancel it resets state to IDLE.
func (e *Evaluator) checkCancel(s *Strategy, state *SymbolState, values map[string]float64, now time.Time) bool {
	groupTrue, _ := s.O1.Evaluate(values)

	e.mu.RLock()
	start := state.SignalStartTime
	e.mu.RUnlock()

	timedOut := s.O1Timeout > 0 && !start.IsZero() && now.Sub(start) >= s.O1Timeout

	if !groupTrue && !timedOut {
		return false
	}

	e.mu.Lock()
	state.State = StateIdle
	state.PositionActive = false
	e.mu.Unlock()
	return true
}

func (e *Evaluator) emit(s *Strategy, symbol string, st SignalType, triggered bool, met []Condition, values map[string]float64, action Action, now time.Time) {
	sig := Signal{
		StrategyID:      s.ID,
		Symbol:          symbol,
		SignalType:      st,
		Triggered:       triggered,
		ConditionsMet:   met,
		IndicatorValues: values,
		Action:          action,
		Timestamp:       now,
	}
	e.log.Info().Str("strategy", s.ID).Str("symbol", symbol).Str("type", string(st)).Str("action", string(action)).Msg("signal generated")
	if e.bus != nil {
		e.bus.Publish(events.EventSignalGenerated, sig)
	}
}

// Shutdown unsubscribes from the bus.
func (e *Evaluator) Shutdown() {
	if e.unsubIndicator != nil {
		e.unsubIndicator()
	}
}
