package reading

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	types "github.com/yungbote/readsession-backend/internal/domain/reading"
)

// Policy holds the product knobs of the session workflow.
type Policy struct {
	MinGoalChars       int `yaml:"min_goal_chars"`
	MinPredictionChars int `yaml:"min_prediction_chars"`
	MinTargetWords     int `yaml:"min_target_words"`

	// MinEventsForPost is the event count required before DURING -> POST.
	MinEventsForPost int `yaml:"min_events_for_post"`
	// PostPhaseEventTypes may still be recorded once the session is in POST.
	PostPhaseEventTypes []types.EventType `yaml:"post_phase_event_types"`

	Scoring ScoringPolicy `yaml:"scoring"`
}

type ScoringPolicy struct {
	// A response with quality >= CorrectThreshold is correct, < LowThreshold failed.
	CorrectThreshold float64 `yaml:"correct_threshold"`
	LowThreshold     float64 `yaml:"low_threshold"`

	CoverageWeight      float64 `yaml:"coverage_weight"`
	LengthWeight        float64 `yaml:"length_weight"`
	FullLengthWordCount int     `yaml:"full_length_word_count"`

	FrustrationWindow    time.Duration `yaml:"frustration_window"`
	FailedWeight         float64       `yaml:"failed_weight"`
	BurstWeight          float64       `yaml:"burst_weight"`
	UnknownWordWeight    float64       `yaml:"unknown_word_weight"`
	UnknownWordAllowance int           `yaml:"unknown_word_allowance"`
}

func DefaultPolicy() Policy {
	return Policy{
		MinGoalChars:        10,
		MinPredictionChars:  10,
		MinTargetWords:      3,
		MinEventsForPost:    1,
		PostPhaseEventTypes: []types.EventType{types.EventProductionSubmit},
		Scoring: ScoringPolicy{
			CorrectThreshold:     0.6,
			LowThreshold:         0.4,
			CoverageWeight:       0.7,
			LengthWeight:         0.3,
			FullLengthWordCount:  40,
			FrustrationWindow:    2 * time.Minute,
			FailedWeight:         10,
			BurstWeight:          15,
			UnknownWordWeight:    2,
			UnknownWordAllowance: 10,
		},
	}
}

// LoadPolicy overlays a YAML file on DefaultPolicy. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw)
}

func ParsePolicy(raw []byte) (Policy, error) {
	p := DefaultPolicy()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, fmt.Errorf("decode policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if p.MinGoalChars < 1 || p.MinPredictionChars < 1 {
		return fmt.Errorf("policy: min_goal_chars and min_prediction_chars must be >= 1")
	}
	if p.MinTargetWords < 1 {
		return fmt.Errorf("policy: min_target_words must be >= 1")
	}
	if p.MinEventsForPost < 0 {
		return fmt.Errorf("policy: min_events_for_post must be >= 0")
	}
	for _, et := range p.PostPhaseEventTypes {
		if !et.Valid() {
			return fmt.Errorf("policy: unknown post_phase_event_types entry %q", et)
		}
	}
	s := p.Scoring
	if s.LowThreshold < 0 || s.CorrectThreshold > 1 || s.LowThreshold > s.CorrectThreshold {
		return fmt.Errorf("policy: need 0 <= low_threshold <= correct_threshold <= 1")
	}
	if s.CoverageWeight < 0 || s.LengthWeight < 0 || s.CoverageWeight+s.LengthWeight <= 0 {
		return fmt.Errorf("policy: coverage_weight and length_weight must be >= 0 with a positive sum")
	}
	if s.FullLengthWordCount < 1 {
		return fmt.Errorf("policy: full_length_word_count must be >= 1")
	}
	if s.FrustrationWindow < 0 || s.FailedWeight < 0 || s.BurstWeight < 0 || s.UnknownWordWeight < 0 || s.UnknownWordAllowance < 0 {
		return fmt.Errorf("policy: frustration settings must be >= 0")
	}
	return nil
}

// AllowsEvent reports whether an event of type t may be recorded in phase.
func (p Policy) AllowsEvent(phase types.Phase, t types.EventType) bool {
	switch phase {
	case types.PhaseDuring:
		return true
	case types.PhasePost:
		for _, et := range p.PostPhaseEventTypes {
			if et == t {
				return true
			}
		}
	}
	return false
}
