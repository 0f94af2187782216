package progression

import "math"

// WorkoutScoreInput captures the signals from a single logged workout.
type WorkoutScoreInput struct {
	Volume      float64 `json:"volume"`
	PRCount     int     `json:"pr_count"`
	Streak      int     `json:"streak"`
	IsChallenge bool    `json:"is_challenge"`
}

// WorkoutScore is the XP award for a workout, with its breakdown.
type WorkoutScore struct {
	Total          int `json:"total"`
	BaseXP         int `json:"base_xp"`
	PRBonus        int `json:"pr_bonus"`
	StreakBonus    int `json:"streak_bonus"`
	ChallengeBoost int `json:"challenge_boost"`
}

// ScoreWorkout converts a workout into an XP award. All scoring
// constants live here; game balance changes touch only this function.
//
// Negative or non-finite volume clamps to 0, as do negative counts.
func ScoreWorkout(in WorkoutScoreInput) WorkoutScore {
	volume := in.Volume
	if volume < 0 || math.IsNaN(volume) || math.IsInf(volume, 0) {
		volume = 0
	}
	prCount := in.PRCount
	if prCount < 0 {
		prCount = 0
	}
	streak := in.Streak
	if streak < 0 {
		streak = 0
	}

	score := WorkoutScore{
		BaseXP:  int(volume / 200),
		PRBonus: prCount * 10,
	}
	if streak > 5 {
		score.StreakBonus = 15
	} else {
		score.StreakBonus = streak * 2
	}
	if in.IsChallenge {
		score.ChallengeBoost = 25
	}

	score.Total = score.BaseXP + score.PRBonus + score.StreakBonus + score.ChallengeBoost
	return score
}
