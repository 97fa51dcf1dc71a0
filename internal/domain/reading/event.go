package reading

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventMarkUnknownWord    EventType = "MARK_UNKNOWN_WORD"
	EventMarkKeyIdea        EventType = "MARK_KEY_IDEA"
	EventCheckpointResponse EventType = "CHECKPOINT_RESPONSE"
	EventQuizResponse       EventType = "QUIZ_RESPONSE"
	EventProductionSubmit   EventType = "PRODUCTION_SUBMIT"
)

var EventTypes = []EventType{
	EventMarkUnknownWord,
	EventMarkKeyIdea,
	EventCheckpointResponse,
	EventQuizResponse,
	EventProductionSubmit,
}

func (t EventType) Valid() bool {
	for _, et := range EventTypes {
		if t == et {
			return true
		}
	}
	return false
}

// SessionEvent is one immutable learner action. (SessionID, Sequence) is the
// total order of a session's log.
type SessionEvent struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_reading_event_seq,priority:1" json:"session_id"`
	Sequence   int64          `gorm:"column:sequence;not null;uniqueIndex:idx_reading_event_seq,priority:2" json:"sequence"`
	Type       EventType      `gorm:"column:type;type:text;not null;index" json:"type"`
	Payload    datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	Phase      Phase          `gorm:"column:phase;type:text;not null" json:"phase"`
	RecordedAt time.Time      `gorm:"column:recorded_at;not null" json:"recorded_at"`
}

func (SessionEvent) TableName() string { return "reading_session_event" }
