package reading

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/montanaflynn/stats"

	types "github.com/yungbote/readsession-backend/internal/domain/reading"
)

// Scorer turns a session and its ordered event log into an Outcome.
// Implementations must be deterministic for a given log.
type Scorer interface {
	Score(s *types.Session, events []*types.SessionEvent, now time.Time) (*types.Outcome, error)
}

type OutcomeScorer struct {
	policy ScoringPolicy
}

func NewScorer(p ScoringPolicy) *OutcomeScorer {
	return &OutcomeScorer{policy: p}
}

const neutralQuality = 0.5

type responseGrade int

const (
	gradeFailed responseGrade = iota
	gradePartial
	gradeCorrect
)

func (sc *OutcomeScorer) Score(s *types.Session, events []*types.SessionEvent, now time.Time) (*types.Outcome, error) {
	if s == nil {
		return nil, fmt.Errorf("score: nil session")
	}
	var (
		correct, partial, responses int
		failed, bursts, unknown     int
		lastFailedAt                *time.Time
		productions                 []float64
	)
	targets := s.Words()

	for _, e := range events {
		if e == nil {
			continue
		}
		switch e.Type {
		case types.EventCheckpointResponse, types.EventQuizResponse:
			q, err := responseQuality(e)
			if err != nil {
				return nil, err
			}
			responses++
			switch sc.grade(q) {
			case gradeCorrect:
				correct++
			case gradePartial:
				partial++
			case gradeFailed:
				if e.Type != types.EventCheckpointResponse {
					continue
				}
				failed++
				at := e.RecordedAt
				if lastFailedAt != nil && at.Sub(*lastFailedAt) <= sc.policy.FrustrationWindow {
					bursts++
				}
				lastFailedAt = &at
			}
		case types.EventProductionSubmit:
			var p ProductionPayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return nil, fmt.Errorf("score: decode event %d: %w", e.Sequence, err)
			}
			productions = append(productions, sc.productionScore(p, targets))
		case types.EventMarkUnknownWord:
			unknown++
		}
	}

	comprehension := 0.0
	if responses > 0 {
		comprehension = 100 * (float64(correct) + 0.5*float64(partial)) / float64(responses+1)
	}

	production := 0.0
	if len(productions) > 0 {
		best, err := stats.Max(productions)
		if err != nil {
			return nil, fmt.Errorf("score: production max: %w", err)
		}
		production = best
	}

	extraUnknown := unknown - sc.policy.UnknownWordAllowance
	if extraUnknown < 0 {
		extraUnknown = 0
	}
	frustration := sc.policy.FailedWeight*float64(failed) +
		sc.policy.BurstWeight*float64(bursts) +
		sc.policy.UnknownWordWeight*float64(extraUnknown)

	return &types.Outcome{
		SessionID:          s.ID,
		ComprehensionScore: round2(clamp100(comprehension)),
		ProductionScore:    round2(clamp100(production)),
		FrustrationIndex:   round2(clamp100(frustration)),
		EventCount:         int64(len(events)),
		ComputedAt:         now,
	}, nil
}

func (sc *OutcomeScorer) grade(q float64) responseGrade {
	switch {
	case q >= sc.policy.CorrectThreshold:
		return gradeCorrect
	case q < sc.policy.LowThreshold:
		return gradeFailed
	default:
		return gradePartial
	}
}

// responseQuality prefers rubric marks, then self-reported confidence.
func responseQuality(e *types.SessionEvent) (float64, error) {
	switch e.Type {
	case types.EventCheckpointResponse:
		var p CheckpointPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return 0, fmt.Errorf("score: decode event %d: %w", e.Sequence, err)
		}
		if p.Rubric != nil {
			var marks []float64
			if p.Rubric.Comprehension != nil {
				marks = append(marks, *p.Rubric.Comprehension)
			}
			if p.Rubric.Inference != nil {
				marks = append(marks, *p.Rubric.Inference)
			}
			if len(marks) > 0 {
				return stats.Mean(marks)
			}
		}
		if p.Confidence != nil {
			return *p.Confidence, nil
		}
	case types.EventQuizResponse:
		var p QuizPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return 0, fmt.Errorf("score: decode event %d: %w", e.Sequence, err)
		}
		if p.Confidence != nil {
			return *p.Confidence, nil
		}
	}
	return neutralQuality, nil
}

func (sc *OutcomeScorer) productionScore(p ProductionPayload, targets []string) float64 {
	tokens := tokenize(p.Text)
	length := math.Min(float64(len(tokens))/float64(sc.policy.FullLengthWordCount), 1)

	wCov, wLen := sc.policy.CoverageWeight, sc.policy.LengthWeight
	if len(targets) == 0 {
		return 100 * length
	}

	// usedWords is the learner's claim; a target only counts once it shows up in the text.
	haystack := " " + strings.Join(tokens, " ") + " "

	used := 0
	for _, target := range targets {
		key := strings.Join(tokenize(target), " ")
		if key == "" {
			continue
		}
		if strings.Contains(haystack, " "+key+" ") {
			used++
		}
	}
	coverage := float64(used) / float64(len(targets))
	return 100 * (wCov*coverage + wLen*length) / (wCov + wLen)
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	out, err := stats.Round(v, 2)
	if err != nil {
		return v
	}
	return out
}
