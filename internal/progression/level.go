// Package progression implements the XP, leveling, streak, and tier
// mechanics for the Repz app.
package progression

// baseLevelRequirement is the XP needed to complete level 1. Each
// subsequent level requires floor(previous * 1.2).
const baseLevelRequirement = 100

// LevelState is the derived view of a cumulative XP total. It is
// recomputed on every read and never stored.
type LevelState struct {
	Level     int `json:"level"`
	CurrentXP int `json:"current_xp"`
	XPToNext  int `json:"xp_to_next"`
}

// ComputeLevel maps a cumulative XP total to its LevelState. Negative
// totals clamp to 0. The mapping is deterministic and total-order
// preserving: a larger total never yields a lower level.
func ComputeLevel(totalXP int) LevelState {
	if totalXP < 0 {
		totalXP = 0
	}

	level := 1
	requirement := baseLevelRequirement
	remainder := totalXP
	for remainder >= requirement {
		remainder -= requirement
		level++
		requirement = requirement * 12 / 10
	}

	return LevelState{
		Level:     level,
		CurrentXP: remainder,
		XPToNext:  requirement - remainder,
	}
}
