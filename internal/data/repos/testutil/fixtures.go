package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/readsession-backend/internal/domain/reading"
)

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, phase types.Phase) *types.Session {
	tb.Helper()
	now := time.Now().UTC()
	s := &types.Session{
		ID:        uuid.New(),
		UserID:    userID,
		ContentID: uuid.New(),
		Phase:     phase,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if phase != types.PhasePre {
		words, _ := json.Marshal([]string{"chlorophyll", "stomata", "glucose"})
		s.GoalStatement = PtrString("I want to learn photosynthesis")
		s.PredictionText = PtrString("Plants convert light to energy")
		s.TargetWords = words
	}
	if phase == types.PhaseFinished {
		s.FinishedAt = PtrTime(now)
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

func PtrString(v string) *string { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
