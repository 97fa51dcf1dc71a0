package reading

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is derived from a session's event log and recomputed, never edited.
type Outcome struct {
	SessionID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"session_id"`
	ComprehensionScore float64   `gorm:"column:comprehension_score;not null" json:"comprehension_score"`
	ProductionScore    float64   `gorm:"column:production_score;not null" json:"production_score"`
	FrustrationIndex   float64   `gorm:"column:frustration_index;not null" json:"frustration_index"`
	EventCount         int64     `gorm:"column:event_count;not null" json:"event_count"`
	ComputedAt         time.Time `gorm:"column:computed_at;not null" json:"computed_at"`
}

func (Outcome) TableName() string { return "reading_session_outcome" }

// SameScores reports whether two outcomes carry identical scores.
func (o *Outcome) SameScores(other *Outcome) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.ComprehensionScore == other.ComprehensionScore &&
		o.ProductionScore == other.ProductionScore &&
		o.FrustrationIndex == other.FrustrationIndex &&
		o.EventCount == other.EventCount
}
