package reading

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Phase string

const (
	PhasePre      Phase = "PRE"
	PhaseDuring   Phase = "DURING"
	PhasePost     Phase = "POST"
	PhaseFinished Phase = "FINISHED"
)

func (p Phase) Valid() bool {
	switch p {
	case PhasePre, PhaseDuring, PhasePost, PhaseFinished:
		return true
	}
	return false
}

// Session is one learner's timed interaction with one piece of content.
// Rows are never deleted; ArchivedAt hides them from default listings.
type Session struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ContentID uuid.UUID `gorm:"type:uuid;not null;index" json:"content_id"`

	Phase Phase `gorm:"column:phase;type:text;not null;index" json:"phase"`

	// PRE-phase fields. Immutable once Phase leaves PRE.
	GoalStatement  *string        `gorm:"column:goal_statement;type:text" json:"goal_statement,omitempty"`
	PredictionText *string        `gorm:"column:prediction_text;type:text" json:"prediction_text,omitempty"`
	TargetWords    datatypes.JSON `gorm:"column:target_words" json:"target_words,omitempty"`

	// EventCount is the next event sequence number.
	EventCount int64 `gorm:"column:event_count;not null" json:"event_count"`

	StartedAt  time.Time  `gorm:"column:started_at;not null;index" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	ArchivedAt *time.Time `gorm:"column:archived_at;index" json:"archived_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Session) TableName() string { return "reading_session" }

// Words decodes TargetWords. Malformed or empty JSON yields nil.
func (s *Session) Words() []string {
	if s == nil || len(s.TargetWords) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(s.TargetWords, &out); err != nil {
		return nil
	}
	return out
}

func (s *Session) Archived() bool { return s != nil && s.ArchivedAt != nil }
