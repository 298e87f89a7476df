package strategy

import "time"

// DemoPreset builds a minimal momentum Strategy for exercising order flow
// against mock data: S1/Z1 fire on a PRICE_VELOCITY reading above
// threshold, ZE1 closes once velocity drops back to flat.
func DemoPreset(id, velocityVariantID string, threshold float64) *Strategy {
	return &Strategy{
		ID:        id,
		Name:      "demo",
		Direction: DirectionBoth,
		Enabled:   true,
		S1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: velocityVariantID, Operator: OpGT, Value: threshold},
		}},
		Z1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: velocityVariantID, Operator: OpGT, Value: threshold},
		}},
		ZE1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: velocityVariantID, Operator: OpLE, Value: 0},
		}},
		O1Timeout:         time.Minute,
		EmergencyCooldown: 15 * time.Second,
	}
}
