package strategy

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"trading-core/internal/indicators"
	"trading-core/internal/logging"
)

// Engine loads strategy_instances rows, builds their condition-group
// Strategy definitions via the preset builders, registers the indicator
// variants each preset needs with the indicator engine, and activates
// them on the Evaluator. It is the integration point the Execution
// Controller's pre-start hook calls (engine.ActivateAll) before the data
// source begins streaming.
type Engine struct {
	db        *sql.DB
	evaluator *Evaluator
	indicator *indicators.Engine
}

// NewEngine builds a strategy loading/activation engine.
func NewEngine(db *sql.DB, evaluator *Evaluator, indicator *indicators.Engine) *Engine {
	return &Engine{db: db, evaluator: evaluator, indicator: indicator}
}

// ActivateAll loads every ACTIVE strategy_instances row for sessionID's
// symbols, builds its preset, registers required indicator variants, and
// activates it on the Evaluator.
func (e *Engine) ActivateAll(sessionID string, symbols []string) error {
	symbolSet := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		symbolSet[s] = true
	}

	rows, err := e.db.Query(`
		SELECT id, strategy_type, symbol, parameters
		FROM strategy_instances
		WHERE is_active = 1`)
	if err != nil {
		return fmt.Errorf("strategy: load active instances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, sType, symbol, paramsJSON string
		if err := rows.Scan(&id, &sType, &symbol, &paramsJSON); err != nil {
			return fmt.Errorf("strategy: scan instance: %w", err)
		}
		if len(symbolSet) > 0 && !symbolSet[symbol] {
			continue
		}
		if err := e.activateOne(sessionID, id, sType, symbol, paramsJSON); err != nil {
			logging.For("strategy").Warn().Err(err).Str("instance_id", id).Msg("failed to activate strategy instance")
		}
	}
	return rows.Err()
}

// ActivateOne loads a single strategy_instances row by id and activates it
// on the Evaluator, regardless of its is_active flag. Used for manual
// start/resume commands outside the session-wide ActivateAll pass.
func (e *Engine) ActivateOne(id string) error {
	var sType, symbol, paramsJSON string
	err := e.db.QueryRow(`
		SELECT strategy_type, symbol, parameters FROM strategy_instances WHERE id = ?
	`, id).Scan(&sType, &symbol, &paramsJSON)
	if err != nil {
		return fmt.Errorf("strategy: load instance %s: %w", id, err)
	}
	return e.activateOne("manual", id, sType, symbol, paramsJSON)
}

// DeactivateOne removes a single strategy instance's evaluator state across
// every symbol it was activated for. Used for manual pause/stop commands.
func (e *Engine) DeactivateOne(id string) {
	e.evaluator.DeactivateStrategy(id, "")
}

func (e *Engine) activateOne(sessionID, id, sType, symbol, paramsJSON string) error {
	var params map[string]float64
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return fmt.Errorf("unmarshal parameters: %w", err)
	}
	direction := DirectionBoth

	var s *Strategy
	var indicatorVariantIDs []string

	switch sType {
	case "ma_cross":
		fast, err := e.registerVariant(sessionID, symbol, "SMA_SHORT", windowParamsOf(params))
		if err != nil {
			return err
		}
		slow, err := e.registerVariant(sessionID, symbol, "SMA_LONG", windowParamsOf(params))
		if err != nil {
			return err
		}
		s = MACrossPreset(id, fast, slow, params["level"], direction)
		indicatorVariantIDs = []string{fast, slow}

	case "rsi":
		rsi, err := e.registerVariant(sessionID, symbol, "RSI", windowParamsOf(params))
		if err != nil {
			return err
		}
		s = RSIPreset(id, rsi, params["oversold"], params["overbought"], direction)
		indicatorVariantIDs = []string{rsi}

	case "bollinger":
		price, err := e.registerVariant(sessionID, symbol, "TWPA", windowParamsOf(params))
		if err != nil {
			return err
		}
		s = BollingerPreset(id, price, params["lower_level"], params["mid_level"], direction)
		indicatorVariantIDs = []string{price}

	case "grid":
		price, err := e.registerVariant(sessionID, symbol, "TWPA", windowParamsOf(params))
		if err != nil {
			return err
		}
		s = GridPreset(id, price, params["lower_entry"], params["upper_exit"], direction)
		indicatorVariantIDs = []string{price}

	case "volume_profile":
		vol, err := e.registerVariant(sessionID, symbol, "VOLUME_SURGE", windowParamsOf(params))
		if err != nil {
			return err
		}
		s = VolumeProfilePreset(id, vol, params["surge_threshold"], direction)
		indicatorVariantIDs = []string{vol}

	case "orderbook_imbalance":
		imb, err := e.registerVariant(sessionID, symbol, "BID_ASK_IMBALANCE", windowParamsOf(params))
		if err != nil {
			return err
		}
		s = OrderbookImbalancePreset(id, imb, params["threshold"], direction)
		indicatorVariantIDs = []string{imb}

	case "demo":
		vel, err := e.registerVariant(sessionID, symbol, "PRICE_VELOCITY", windowParamsOf(params))
		if err != nil {
			return err
		}
		s = DemoPreset(id, vel, params["threshold"])
		indicatorVariantIDs = []string{vel}

	default:
		return fmt.Errorf("unknown strategy type: %s", sType)
	}

	e.evaluator.ActivateStrategy(s, symbol, indicatorVariantIDs)
	return nil
}

func (e *Engine) registerVariant(sessionID, symbol, baseType string, windowParams map[string]float64) (string, error) {
	v, err := e.indicator.Variants().CreateVariant(baseType, indicators.VariantGeneral, windowParams, "strategy-engine")
	if err != nil {
		return "", err
	}
	if _, err := e.indicator.AddIndicatorToSession(sessionID, symbol, v.ID, "", nil); err != nil {
		return "", err
	}
	return v.ID, nil
}

func windowParamsOf(params map[string]float64) map[string]float64 {
	out := make(map[string]float64, 2)
	if t1, ok := params["t1"]; ok {
		out["t1"] = t1
	}
	if t2, ok := params["t2"]; ok {
		out["t2"] = t2
	}
	if period, ok := params["period"]; ok {
		out["period"] = period
	}
	return out
}

// DeactivateAll tears down every strategy activated for sessionID.
func (e *Engine) DeactivateAll(sessionID string) {
	for id := range e.activeIDs(sessionID) {
		e.evaluator.DeactivateStrategy(id, "")
	}
}

func (e *Engine) activeIDs(sessionID string) map[string]bool {
	ids := make(map[string]bool)
	rows, err := e.db.Query(`SELECT id FROM strategy_instances WHERE is_active = 1`)
	if err != nil {
		return ids
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if rows.Scan(&id) == nil {
			ids[id] = true
		}
	}
	return ids
}
