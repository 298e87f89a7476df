package strategy

import "time"

// RSIPreset builds a Strategy reproducing the legacy RSI overbought/
// oversold entry: S1 fires when RSI drops below oversold (long bias) or
// rises above overbought (short bias), Z1 confirms the same condition
// held on the next update, ZE1 closes on RSI crossing back through the
// midpoint.
func RSIPreset(id, rsiVariantID string, oversold, overbought float64, direction Direction) *Strategy {
	entryOp := OpLT
	entryLevel := oversold
	exitOp := OpGT
	exitLevel := 50.0
	if direction == DirectionShort {
		entryOp = OpGT
		entryLevel = overbought
		exitOp = OpLT
	}

	return &Strategy{
		ID:        id,
		Name:      "rsi",
		Direction: direction,
		Enabled:   true,
		S1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: rsiVariantID, Operator: entryOp, Value: entryLevel},
		}},
		Z1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: rsiVariantID, Operator: entryOp, Value: entryLevel},
		}},
		ZE1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: rsiVariantID, Operator: exitOp, Value: exitLevel},
		}},
		O1Timeout:         10 * time.Minute,
		EmergencyCooldown: time.Minute,
	}
}
