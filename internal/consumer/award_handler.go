package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hireai24/repz-app-sub000/internal/events"
	"github.com/hireai24/repz-app-sub000/internal/progression"
)

const eventWorkoutCompleted = "workout.completed"

// AwardHandler routes workout completion events into the progression
// engine: the day is logged for the streak and the workout is scored
// and awarded through the user's session.
type AwardHandler struct {
	manager *progression.Manager
	logger  zerolog.Logger
}

// NewAwardHandler constructs a handler over the session manager.
func NewAwardHandler(manager *progression.Manager, logger zerolog.Logger) *AwardHandler {
	return &AwardHandler{manager: manager, logger: logger}
}

// Handle processes one decoded event. Unknown event types are skipped
// without error so a shared topic does not wedge the consumer group.
func (h *AwardHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != eventWorkoutCompleted {
		h.logger.Debug().Str("event_type", msg.EventType).Msg("skipping unhandled event type")
		return nil
	}

	var evt events.WorkoutCompleted
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode workout.completed payload: %w", err)
	}
	if evt.UserID == "" {
		return errors.New("workout.completed payload missing user_id")
	}

	session := h.manager.Session(ctx, evt.UserID)
	result := session.LogWorkout(ctx, evt.Volume, evt.PRCount, evt.IsChallenge)

	h.logger.Info().
		Str("user_id", evt.UserID).
		Str("workout_id", evt.WorkoutID).
		Int("awarded", result.Score.Total).
		Int("total", result.Total).
		Int("level", result.Level.Level).
		Int("streak", result.Streak.CurrentStreak).
		Msg("workout scored")
	return nil
}
