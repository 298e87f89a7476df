package strategy

import "time"

// MACrossPreset builds a Strategy approximating the legacy moving-average
// crossover: S1 fires when the fast SMA rises above level, Z1 confirms
// when the fast SMA is above level and the slow SMA below it (two
// single-indicator conditions ANDed together, since the condition DSL
// compares an indicator to a constant rather than to another indicator),
// ZE1 closes when the fast SMA falls back under level.
//
// fastVariantID/slowVariantID are SMA_SHORT/SMA_LONG indicator variant
// ids created by the caller (typically the execution controller's
// pre-start hook) via the indicator engine; level is the slow MA level to
// compare against, fixed when the Strategy is built (legacy preset, not a
// literal reproduction of crossover detection).
func MACrossPreset(id string, fastVariantID, slowVariantID string, level float64, direction Direction) *Strategy {
	return &Strategy{
		ID:        id,
		Name:      "ma_cross",
		Direction: direction,
		Enabled:   true,
		S1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: fastVariantID, Operator: OpGT, Value: level},
		}},
		Z1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: fastVariantID, Operator: OpGT, Value: level},
			{IndicatorID: slowVariantID, Operator: OpLT, Value: level, Logic: LogicAND},
		}},
		ZE1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: fastVariantID, Operator: OpLT, Value: level},
		}},
		O1Timeout:         5 * time.Minute,
		EmergencyCooldown: time.Minute,
	}
}
