// Package events defines the cross-service event payloads published
// and consumed by the progression service.
package events

import "time"

// XPAwarded is emitted when points are added to a user's total
// (workout awards, wager wins, streak bonuses).
type XPAwarded struct {
	EntryID    string    `json:"entry_id"`
	UserID     string    `json:"user_id"`
	Amount     int       `json:"amount"`
	Total      int       `json:"total"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// XPAdjusted is emitted for downward or administrative changes (spends,
// wager losses, resets). Amount carries the signed delta.
type XPAdjusted struct {
	EntryID    string    `json:"entry_id"`
	UserID     string    `json:"user_id"`
	Amount     int       `json:"amount"`
	Total      int       `json:"total"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StreakMilestone is emitted once per milestone crossing, after the
// bonus is granted.
type StreakMilestone struct {
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Length     int       `json:"length"`
	Bonus      int       `json:"bonus"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WorkoutCompleted is consumed from the workout tracker when a user
// finishes a session; it drives the scoring pipeline.
type WorkoutCompleted struct {
	WorkoutID   string    `json:"workout_id"`
	UserID      string    `json:"user_id"`
	Volume      float64   `json:"volume"`
	PRCount     int       `json:"pr_count"`
	IsChallenge bool      `json:"is_challenge"`
	CompletedAt time.Time `json:"completed_at"`
}
