package strategy

import "time"

// GridPreset builds a Strategy that enters when the price falls to
// lowerEntry and closes once it recovers to upperExit, a single-level
// approximation of a grid strategy's buy-the-dip ladder within the
// condition DSL.
func GridPreset(id, priceVariantID string, lowerEntry, upperExit float64, direction Direction) *Strategy {
	return &Strategy{
		ID:        id,
		Name:      "grid",
		Direction: direction,
		Enabled:   true,
		S1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: priceVariantID, Operator: OpLE, Value: lowerEntry},
		}},
		Z1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: priceVariantID, Operator: OpLE, Value: lowerEntry},
		}},
		ZE1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: priceVariantID, Operator: OpGE, Value: upperExit},
		}},
		O1Timeout:         30 * time.Minute,
		EmergencyCooldown: time.Minute,
	}
}
