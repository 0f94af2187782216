package outbox

const xpAwardedSchema = `{
  "type": "object",
  "title": "XPAwarded",
  "properties": {
    "entry_id": {"type": "string"},
    "user_id": {"type": "string"},
    "amount": {"type": "integer"},
    "total": {"type": "integer"},
    "source": {"type": "string"},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entry_id", "user_id", "amount", "total", "source", "recorded_at"],
  "additionalProperties": false
}`

const xpAdjustedSchema = `{
  "type": "object",
  "title": "XPAdjusted",
  "properties": {
    "entry_id": {"type": "string"},
    "user_id": {"type": "string"},
    "amount": {"type": "integer"},
    "total": {"type": "integer"},
    "reason": {"type": "string"},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entry_id", "user_id", "amount", "total", "reason", "recorded_at"],
  "additionalProperties": false
}`

const streakMilestoneSchema = `{
  "type": "object",
  "title": "StreakMilestone",
  "properties": {
    "user_id": {"type": "string"},
    "kind": {"type": "string"},
    "length": {"type": "integer"},
    "bonus": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "kind", "length", "bonus", "occurred_at"],
  "additionalProperties": false
}`
