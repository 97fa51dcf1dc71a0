package reading

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	types "github.com/yungbote/readsession-backend/internal/domain/reading"
)

// nextPhase is the only forward edge allowed out of each phase.
var nextPhase = map[types.Phase]types.Phase{
	types.PhasePre:    types.PhaseDuring,
	types.PhaseDuring: types.PhasePost,
	types.PhasePost:   types.PhaseFinished,
}

// Transition is the result of applying a phase command to a session snapshot.
type Transition struct {
	Session types.Session
	// Changed is false for the same-phase no-op.
	Changed bool
	// Finished is true when this transition entered FINISHED.
	Finished bool
}

// ParsePhase accepts any casing and surrounding whitespace.
func ParsePhase(raw string) (types.Phase, error) {
	p := types.Phase(strings.ToUpper(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", validationErr("toPhase", "unknown phase %q", raw)
	}
	return p, nil
}

// Advance applies "move to phase to" to s without touching storage.
// s is taken by value; the caller persists Transition.Session.
func Advance(s types.Session, to types.Phase, p Policy, now time.Time) (Transition, error) {
	if !to.Valid() {
		return Transition{}, validationErr("toPhase", "unknown phase %q", to)
	}
	if s.Phase == to {
		return Transition{Session: s}, nil
	}
	if nextPhase[s.Phase] != to {
		return Transition{}, invalidTransitionErr(s.Phase, to)
	}

	switch to {
	case types.PhaseDuring:
		if err := validatePrePhase(derefString(s.GoalStatement), derefString(s.PredictionText), s.Words(), p); err != nil {
			return Transition{}, err
		}
	case types.PhasePost:
		if s.EventCount < int64(p.MinEventsForPost) {
			return Transition{}, validationErr("events", "at least %d event(s) required before POST, have %d", p.MinEventsForPost, s.EventCount)
		}
	case types.PhaseFinished:
		finishedAt := now
		s.FinishedAt = &finishedAt
	}

	s.Phase = to
	return Transition{Session: s, Changed: true, Finished: to == types.PhaseFinished}, nil
}

type PrePhaseInput struct {
	GoalStatement  string
	PredictionText string
	TargetWords    []string
}

// ApplyPrePhase validates and stores PRE-phase fields. Repeating it while
// still in PRE overwrites the previous values.
func ApplyPrePhase(s types.Session, in PrePhaseInput, p Policy) (types.Session, error) {
	if s.Phase != types.PhasePre {
		return s, invalidPhaseErr("pre-phase fields are immutable once the session is in %s", s.Phase)
	}
	goal := strings.TrimSpace(in.GoalStatement)
	prediction := strings.TrimSpace(in.PredictionText)
	words := NormalizeTargetWords(in.TargetWords)
	if err := validatePrePhase(goal, prediction, words, p); err != nil {
		return s, err
	}
	raw, err := json.Marshal(words)
	if err != nil {
		return s, err
	}
	s.GoalStatement = &goal
	s.PredictionText = &prediction
	s.TargetWords = raw
	return s, nil
}

// NormalizeTargetWords trims entries and drops blanks and case-insensitive
// duplicates, keeping first-seen order.
func NormalizeTargetWords(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		key := strings.ToLower(w)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
	}
	return out
}

func validatePrePhase(goal, prediction string, words []string, p Policy) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(goal)); n < p.MinGoalChars {
		return validationErr("goalStatement", "must be at least %d characters, got %d", p.MinGoalChars, n)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(prediction)); n < p.MinPredictionChars {
		return validationErr("predictionText", "must be at least %d characters, got %d", p.MinPredictionChars, n)
	}
	if len(words) < p.MinTargetWords {
		return validationErr("targetWordsJson", "must contain at least %d words, got %d", p.MinTargetWords, len(words))
	}
	return nil
}

// CheckEventAllowed gates an event type on the session's phase.
func CheckEventAllowed(s *types.Session, t types.EventType, p Policy) error {
	if !p.AllowsEvent(s.Phase, t) {
		return invalidPhaseErr("%s cannot be recorded while the session is in %s", t, s.Phase)
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
