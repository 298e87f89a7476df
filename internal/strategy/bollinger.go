package strategy

import "time"

// BollingerPreset builds a Strategy from a single windowed price variant
// standing in for the legacy strategy's std-dev bands: S1 fires when the
// price drops below lowerLevel, Z1 confirms, ZE1 closes once the price
// rises back above midLevel. There is no upper band, and lowerLevel and
// midLevel are fixed when the Strategy is built.
func BollingerPreset(id, priceVariantID string, lowerLevel, midLevel float64, direction Direction) *Strategy {
	return &Strategy{
		ID:        id,
		Name:      "bollinger",
		Direction: direction,
		Enabled:   true,
		S1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: priceVariantID, Operator: OpLT, Value: lowerLevel},
		}},
		Z1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: priceVariantID, Operator: OpLT, Value: lowerLevel},
		}},
		ZE1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: priceVariantID, Operator: OpGT, Value: midLevel},
		}},
		O1Timeout:         10 * time.Minute,
		EmergencyCooldown: time.Minute,
	}
}
