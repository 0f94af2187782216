package progression

import "time"

// dayKeyFormat is the canonical calendar-date encoding for activity
// days. All day math happens in UTC.
const dayKeyFormat = "2006-01-02"

// DayKey identifies one UTC calendar date with at least one logged
// activity.
type DayKey string

// DayKeyOf normalizes a timestamp to its UTC calendar date.
func DayKeyOf(t time.Time) DayKey {
	return DayKey(t.UTC().Format(dayKeyFormat))
}

// StreakState is the derived streak view. CurrentStreak and
// IsTodayLogged are tracked independently: a streak of 0 does not imply
// today is unlogged, and vice versa.
type StreakState struct {
	CurrentStreak int  `json:"current_streak"`
	IsTodayLogged bool `json:"is_today_logged"`
}

// StreakKind distinguishes the two milestone bonus tables.
type StreakKind string

const (
	StreakWorkout StreakKind = "workout"
	StreakBattle  StreakKind = "battle"
)

// Milestone bonus tables. The workout and battle tables overlap on
// length 3 and must stay distinct.
var (
	workoutStreakBonuses = map[int]int{3: 50, 7: 100, 14: 200}
	battleStreakBonuses  = map[int]int{3: 75, 5: 150, 10: 300}
)

// StreakBonus looks up the bonus for a milestone length. The second
// return is false when the length is not a milestone for the kind.
func StreakBonus(kind StreakKind, length int) (int, bool) {
	table := workoutStreakBonuses
	if kind == StreakBattle {
		table = battleStreakBonuses
	}
	bonus, ok := table[length]
	return bonus, ok
}

// ComputeStreak walks backward from today over the activity-day set and
// counts consecutive logged days, stopping at the first gap. A missing
// today yields a streak of 0.
func ComputeStreak(today time.Time, days map[DayKey]struct{}) StreakState {
	day := today.UTC().Truncate(24 * time.Hour)

	state := StreakState{}
	if _, ok := days[DayKeyOf(day)]; ok {
		state.IsTodayLogged = true
	}

	for {
		if _, ok := days[DayKeyOf(day)]; !ok {
			break
		}
		state.CurrentStreak++
		day = day.AddDate(0, 0, -1)
	}

	return state
}

// CrossedMilestone reports the milestone reached when the streak moves
// from prev to current, or false when current is not a milestone or was
// already granted. prev is the MilestoneRecord: the last length for
// which a bonus was handed out.
func CrossedMilestone(kind StreakKind, prev, current int) (int, bool) {
	if _, ok := StreakBonus(kind, current); !ok {
		return 0, false
	}
	if current == prev {
		return 0, false
	}
	return current, true
}
