package realtime

import "github.com/google/uuid"

type SSEEvent string

const (
	SSEEventSessionStarted       SSEEvent = "ReadingSessionStarted"
	SSEEventSessionPhaseChanged  SSEEvent = "ReadingSessionPhaseChanged"
	SSEEventSessionEventRecorded SSEEvent = "ReadingSessionEventRecorded"
	SSEEventSessionFinished      SSEEvent = "ReadingSessionFinished"
	SSEEventSessionArchived      SSEEvent = "ReadingSessionArchived"
)

// SSEMessage is what the gateway relays to connected clients. Channel is
// the owning user's id so a user's tabs all see their own sessions.
type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data"`
}

func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}
