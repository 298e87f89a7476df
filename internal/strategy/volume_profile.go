package strategy

import "time"

// VolumeProfilePreset builds a Strategy around VOLUME_SURGE: S1 fires
// when volume surges past surgeThreshold relative to baseline, Z1
// confirms the surge is sustained, ZE1 closes once the surge has faded
// back under 1.0 (current volume no stronger than baseline).
func VolumeProfilePreset(id, volumeSurgeVariantID string, surgeThreshold float64, direction Direction) *Strategy {
	return &Strategy{
		ID:        id,
		Name:      "volume_profile",
		Direction: direction,
		Enabled:   true,
		S1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: volumeSurgeVariantID, Operator: OpGT, Value: surgeThreshold},
		}},
		Z1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: volumeSurgeVariantID, Operator: OpGT, Value: surgeThreshold},
		}},
		ZE1: ConditionGroup{Conditions: []Condition{
			{IndicatorID: volumeSurgeVariantID, Operator: OpLE, Value: 1.0},
		}},
		O1Timeout:         15 * time.Minute,
		EmergencyCooldown: time.Minute,
	}
}
