package reading

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	types "github.com/yungbote/readsession-backend/internal/domain/reading"
)

type eventLog struct {
	sessionID uuid.UUID
	at        time.Time
	events    []*types.SessionEvent
}

func (l *eventLog) add(t types.EventType, payload string, after time.Duration) {
	l.at = l.at.Add(after)
	l.events = append(l.events, &types.SessionEvent{
		ID:         uuid.New(),
		SessionID:  l.sessionID,
		Sequence:   int64(len(l.events)),
		Type:       t,
		Payload:    datatypes.JSON(payload),
		Phase:      types.PhaseDuring,
		RecordedAt: l.at,
	})
}

func newEventLog(s types.Session) *eventLog {
	return &eventLog{sessionID: s.ID, at: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func TestScoreEmptyLogIsZero(t *testing.T) {
	s := preparedSession(types.PhaseFinished)
	now := time.Now().UTC()
	o, err := NewScorer(DefaultPolicy().Scoring).Score(&s, nil, now)
	require.NoError(t, err)
	require.Equal(t, s.ID, o.SessionID)
	require.Zero(t, o.ComprehensionScore)
	require.Zero(t, o.ProductionScore)
	require.Zero(t, o.FrustrationIndex)
	require.Zero(t, o.EventCount)
	require.Equal(t, now, o.ComputedAt)
}

func TestScoreComprehension(t *testing.T) {
	s := preparedSession(types.PhaseFinished)
	l := newEventLog(s)
	// correct by rubric mean, partial by confidence, neutral quality is partial.
	l.add(types.EventCheckpointResponse, `{"blockId":"b1","questionId":"q1","answerText":"a","rubric":{"comprehension":1,"inference":0.8}}`, 0)
	l.add(types.EventQuizResponse, `{"quizId":"z","questionId":"q2","answerText":"a","confidence":0.5}`, time.Minute)
	l.add(types.EventQuizResponse, `{"quizId":"z","questionId":"q3","answerText":"a"}`, time.Minute)

	o, err := NewScorer(DefaultPolicy().Scoring).Score(&s, l.events, time.Now())
	require.NoError(t, err)
	// 100 * (1 + 0.5*2) / (3+1)
	require.Equal(t, 50.0, o.ComprehensionScore)
	require.Equal(t, int64(3), o.EventCount)
}

func TestScoreComprehensionIsMonotonicInCorrectAnswers(t *testing.T) {
	s := preparedSession(types.PhaseFinished)
	sc := NewScorer(DefaultPolicy().Scoring)
	l := newEventLog(s)
	prev := 0.0
	for i := 0; i < 6; i++ {
		l.add(types.EventCheckpointResponse, `{"blockId":"b","questionId":"q","answerText":"a","confidence":1}`, time.Minute)
		o, err := sc.Score(&s, l.events, time.Now())
		require.NoError(t, err)
		require.Greater(t, o.ComprehensionScore, prev)
		require.LessOrEqual(t, o.ComprehensionScore, 100.0)
		prev = o.ComprehensionScore
	}
}

func TestScoreProductionUsesBestSubmission(t *testing.T) {
	s := preparedSession(types.PhaseFinished)
	l := newEventLog(s)
	l.add(types.EventProductionSubmit, `{"type":"FREE_RECALL","text":"Plants are green."}`, 0)
	l.add(types.EventProductionSubmit, `{"type":"SENTENCES","text":"Chlorophyll captures light and glucose is stored.","usedWords":["stomata"]}`, time.Minute)

	o, err := NewScorer(DefaultPolicy().Scoring).Score(&s, l.events, time.Now())
	require.NoError(t, err)
	// 2/3 targets in the text, 7 of 40 words: 100*(0.7*2/3 + 0.3*7/40)
	require.Equal(t, 51.92, o.ProductionScore)
}

func TestScoreProductionIgnoresDeclaredWordsMissingFromText(t *testing.T) {
	s := preparedSession(types.PhaseFinished)
	sc := NewScorer(DefaultPolicy().Scoring)

	claimed := newEventLog(s)
	claimed.add(types.EventProductionSubmit, `{"type":"SENTENCES","text":"plants","usedWords":["chlorophyll","stomata","glucose"]}`, 0)
	o, err := sc.Score(&s, claimed.events, time.Now())
	require.NoError(t, err)
	// no target in the text, 1 of 40 words: 100*0.3/40
	require.Equal(t, 0.75, o.ProductionScore)

	written := newEventLog(s)
	written.add(types.EventProductionSubmit, `{"type":"SENTENCES","text":"chlorophyll stomata glucose"}`, 0)
	o2, err := sc.Score(&s, written.events, time.Now())
	require.NoError(t, err)
	require.Greater(t, o2.ProductionScore, 70.0)
}

func TestScoreProductionWithoutTargets(t *testing.T) {
	s := preparedSession(types.PhaseFinished)
	s.TargetWords = nil
	l := newEventLog(s)
	l.add(types.EventProductionSubmit, `{"type":"ORAL","text":"one two three four five six seven eight nine ten"}`, 0)

	o, err := NewScorer(DefaultPolicy().Scoring).Score(&s, l.events, time.Now())
	require.NoError(t, err)
	require.Equal(t, 25.0, o.ProductionScore)
}

func TestScoreFrustration(t *testing.T) {
	s := preparedSession(types.PhaseFinished)
	l := newEventLog(s)
	failed := `{"blockId":"b","questionId":"q","answerText":"no idea","confidence":0.1}`
	l.add(types.EventCheckpointResponse, failed, 0)
	l.add(types.EventCheckpointResponse, failed, 30*time.Second)
	l.add(types.EventCheckpointResponse, failed, 10*time.Minute)
	for i := 0; i < 12; i++ {
		l.add(types.EventMarkUnknownWord, `{"word":"w","language":"EN","origin":"READ"}`, time.Second)
	}

	o, err := NewScorer(DefaultPolicy().Scoring).Score(&s, l.events, time.Now())
	require.NoError(t, err)
	// 3 failed, 1 burst, 2 unknown words over the allowance
	require.Equal(t, 30.0+15.0+4.0, o.FrustrationIndex)
	require.Zero(t, o.ComprehensionScore)
}

func TestScoreFrustrationIsClamped(t *testing.T) {
	s := preparedSession(types.PhaseFinished)
	l := newEventLog(s)
	for i := 0; i < 20; i++ {
		l.add(types.EventCheckpointResponse, `{"blockId":"b","questionId":"q","answerText":"?","confidence":0}`, time.Second)
	}
	o, err := NewScorer(DefaultPolicy().Scoring).Score(&s, l.events, time.Now())
	require.NoError(t, err)
	require.Equal(t, 100.0, o.FrustrationIndex)
}

func TestScoreIsDeterministic(t *testing.T) {
	s := preparedSession(types.PhaseFinished)
	l := newEventLog(s)
	l.add(types.EventMarkKeyIdea, `{"blockId":"b1","excerpt":"x"}`, 0)
	l.add(types.EventCheckpointResponse, `{"blockId":"b1","questionId":"q1","answerText":"a","confidence":0.45}`, time.Minute)
	l.add(types.EventProductionSubmit, `{"type":"OPEN_DIALOGUE","text":"glucose"}`, time.Minute)

	sc := NewScorer(DefaultPolicy().Scoring)
	a, err := sc.Score(&s, l.events, time.Now())
	require.NoError(t, err)
	b, err := sc.Score(&s, l.events, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.True(t, a.SameScores(b))
}

func TestScoreRejectsCorruptPayload(t *testing.T) {
	s := preparedSession(types.PhaseFinished)
	l := newEventLog(s)
	l.add(types.EventProductionSubmit, `not json`, 0)
	_, err := NewScorer(DefaultPolicy().Scoring).Score(&s, l.events, time.Now())
	require.Error(t, err)
}

func TestTokenize(t *testing.T) {
	require.Equal(t, []string{"fotossíntese", "é", "vital", "42"}, tokenize("Fotossíntese é VITAL, 42!"))
	require.Empty(t, tokenize(" ... "))
}
