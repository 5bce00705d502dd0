package outbox

const sessionCompletedSchema = `{
  "type": "object",
  "title": "SessionCompleted",
  "properties": {
    "session_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "completed_at": {"type": "string", "format": "date-time"},
    "day_delta": {"type": "integer"},
    "duration_delta": {"type": "number"},
    "tier": {"type": "string"},
    "score": {"type": "number"}
  },
  "required": ["session_id", "tenant_id", "user_id", "activity_id", "completed_at", "day_delta", "duration_delta", "tier", "score"],
  "additionalProperties": false
}`

const syncCompletedSchema = `{
  "type": "object",
  "title": "SyncCompleted",
  "properties": {
    "sync_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "policy": {"type": "string"},
    "accepted_count": {"type": "integer"},
    "conflict_skips": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["sync_id", "tenant_id", "user_id", "policy", "accepted_count", "conflict_skips", "occurred_at"],
  "additionalProperties": false
}`
