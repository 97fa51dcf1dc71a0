package reading

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	types "github.com/yungbote/readsession-backend/internal/domain/reading"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
}

func TestParsePolicyOverlaysDefaults(t *testing.T) {
	raw := []byte(`
min_goal_chars: 20
min_events_for_post: 0
post_phase_event_types: [PRODUCTION_SUBMIT, QUIZ_RESPONSE]
scoring:
  frustration_window: 5m
  burst_weight: 20
`)
	p, err := ParsePolicy(raw)
	require.NoError(t, err)
	require.Equal(t, 20, p.MinGoalChars)
	require.Equal(t, 10, p.MinPredictionChars)
	require.Equal(t, 0, p.MinEventsForPost)
	require.Equal(t, []types.EventType{types.EventProductionSubmit, types.EventQuizResponse}, p.PostPhaseEventTypes)
	require.Equal(t, 5*time.Minute, p.Scoring.FrustrationWindow)
	require.Equal(t, 20.0, p.Scoring.BurstWeight)
	require.Equal(t, 0.6, p.Scoring.CorrectThreshold)
}

func TestParsePolicyRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown key":        "min_goal_charz: 3\n",
		"zero goal":          "min_goal_chars: 0\n",
		"bad event":          "post_phase_event_types: [NOPE]\n",
		"inverted threshold": "scoring:\n  low_threshold: 0.9\n  correct_threshold: 0.5\n",
		"zero weights":       "scoring:\n  coverage_weight: 0\n  length_weight: 0\n",
	}
	for name, raw := range cases {
		_, err := ParsePolicy([]byte(raw))
		require.Error(t, err, name)
	}
}

func TestParsePolicyEmptyDocument(t *testing.T) {
	p, err := ParsePolicy(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultPolicy(), p)
}

func TestLoadPolicyFromFile(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	require.Equal(t, DefaultPolicy(), p)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_target_words: 5\n"), 0o600))
	p, err = LoadPolicy(path)
	require.NoError(t, err)
	require.Equal(t, 5, p.MinTargetWords)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestAllowsEvent(t *testing.T) {
	p := DefaultPolicy()
	require.False(t, p.AllowsEvent(types.PhasePre, types.EventMarkKeyIdea))
	require.True(t, p.AllowsEvent(types.PhaseDuring, types.EventQuizResponse))
	require.True(t, p.AllowsEvent(types.PhasePost, types.EventProductionSubmit))
	require.False(t, p.AllowsEvent(types.PhasePost, types.EventCheckpointResponse))
	require.False(t, p.AllowsEvent(types.PhaseFinished, types.EventProductionSubmit))
}

func TestSamplePolicyFileMatchesDefaults(t *testing.T) {
	p, err := LoadPolicy(filepath.Join("..", "..", "..", "config", "reading_policy.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultPolicy(), p)
}
