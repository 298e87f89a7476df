package strategy

import "time"

// OrderbookImbalancePreset builds a Strategy around BID_ASK_IMBALANCE: S1
// fires when the imbalance exceeds threshold (buy pressure) or falls
// below -threshold (sell pressure), Z1 confirms, ZE1 closes once the
// imbalance reverts toward neutral.
func OrderbookImbalancePreset(id, imbalanceVariantID string, threshold float64, direction Direction) *Strategy {
	entryOp := OpGT
	entryLevel := threshold
	exitOp := OpLT
	exitLevel := threshold / 2
	if direction == DirectionShort {
		entryOp = OpLT
		entryLevel = -threshold
		exitOp = OpGT
		exitLevel = -threshold / 2
	}

	return &Strategy{
		ID:        id,
		Name:      "orderbook_imbalance",
		Direction: direction,
		Enabled:   true,
		S1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: imbalanceVariantID, Operator: entryOp, Value: entryLevel},
		}},
		Z1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: imbalanceVariantID, Operator: entryOp, Value: entryLevel},
		}},
		ZE1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: imbalanceVariantID, Operator: exitOp, Value: exitLevel},
		}},
		O1Timeout:         5 * time.Minute,
		EmergencyCooldown: 30 * time.Second,
	}
}
