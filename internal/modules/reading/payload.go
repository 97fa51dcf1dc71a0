package reading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/readsession-backend/internal/domain/reading"
)

const (
	maxShortText = 512
	maxLongText  = 20000
)

type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SpanRef is either a {start,end} range or an opaque selector string.
type SpanRef struct {
	Range *Span
	Ref   string
}

func (s *SpanRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Ref)
	}
	var r Span
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return err
	}
	s.Range = &r
	return nil
}

func (s SpanRef) MarshalJSON() ([]byte, error) {
	if s.Range != nil {
		return json.Marshal(s.Range)
	}
	return json.Marshal(s.Ref)
}

type UnknownWordPayload struct {
	Word     string   `json:"word"`
	Language string   `json:"language"`
	Origin   string   `json:"origin"`
	BlockID  *string  `json:"blockId,omitempty"`
	ChunkID  *string  `json:"chunkId,omitempty"`
	Page     *int     `json:"page,omitempty"`
	Span     *SpanRef `json:"span,omitempty"`
	Note     *string  `json:"note,omitempty"`
}

type KeyIdeaPayload struct {
	BlockID string  `json:"blockId"`
	Excerpt string  `json:"excerpt"`
	Note    *string `json:"note,omitempty"`
}

type Rubric struct {
	Comprehension *float64 `json:"comprehension,omitempty"`
	Inference     *float64 `json:"inference,omitempty"`
}

type CheckpointPayload struct {
	BlockID      string   `json:"blockId"`
	QuestionID   string   `json:"questionId"`
	QuestionText *string  `json:"questionText,omitempty"`
	AnswerText   string   `json:"answerText"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Rubric       *Rubric  `json:"rubric,omitempty"`
}

type QuizPayload struct {
	QuizID     string   `json:"quizId"`
	QuestionID string   `json:"questionId"`
	AnswerText string   `json:"answerText"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type ProductionPayload struct {
	Type       string   `json:"type"`
	Text       string   `json:"text"`
	UsedWords  []string `json:"usedWords,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

var (
	languages       = []string{"PT", "EN", "KO"}
	origins         = []string{"SKIM", "READ"}
	productionTypes = []string{"FREE_RECALL", "SENTENCES", "ORAL", "OPEN_DIALOGUE"}
)

// DecodePayload strictly decodes raw into the payload struct for t and
// validates it. Unknown fields and trailing data are rejected.
func DecodePayload(t types.EventType, raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, validationErr("payload", "required")
	}
	var out interface{ validate() error }
	switch t {
	case types.EventMarkUnknownWord:
		out = &UnknownWordPayload{}
	case types.EventMarkKeyIdea:
		out = &KeyIdeaPayload{}
	case types.EventCheckpointResponse:
		out = &CheckpointPayload{}
	case types.EventQuizResponse:
		out = &QuizPayload{}
	case types.EventProductionSubmit:
		out = &ProductionPayload{}
	default:
		return nil, validationErr("eventType", "unknown event type %q", t)
	}
	if err := strictDecode(raw, out); err != nil {
		return nil, validationErr("payload", "%v", err)
	}
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizePayload validates raw and returns its canonical JSON encoding.
func NormalizePayload(t types.EventType, raw json.RawMessage) (json.RawMessage, error) {
	v, err := DecodePayload(t, raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func strictDecode(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after payload object")
	}
	return nil
}

func (p *UnknownWordPayload) validate() error {
	p.Word = strings.TrimSpace(p.Word)
	if err := requireText("payload.word", p.Word, maxShortText); err != nil {
		return err
	}
	if err := oneOf("payload.language", p.Language, languages); err != nil {
		return err
	}
	if err := oneOf("payload.origin", p.Origin, origins); err != nil {
		return err
	}
	if p.Page != nil && *p.Page < 0 {
		return validationErr("payload.page", "must be >= 0")
	}
	if p.Span != nil {
		if r := p.Span.Range; r != nil {
			if r.Start < 0 || r.End < r.Start {
				return validationErr("payload.span", "need 0 <= start <= end")
			}
		} else if strings.TrimSpace(p.Span.Ref) == "" {
			return validationErr("payload.span", "must not be empty")
		}
	}
	return optionalText("payload.note", p.Note, maxLongText)
}

func (p *KeyIdeaPayload) validate() error {
	if err := requireText("payload.blockId", p.BlockID, maxShortText); err != nil {
		return err
	}
	if err := requireText("payload.excerpt", p.Excerpt, maxLongText); err != nil {
		return err
	}
	return optionalText("payload.note", p.Note, maxLongText)
}

func (p *CheckpointPayload) validate() error {
	if err := requireText("payload.blockId", p.BlockID, maxShortText); err != nil {
		return err
	}
	if err := requireText("payload.questionId", p.QuestionID, maxShortText); err != nil {
		return err
	}
	if err := optionalText("payload.questionText", p.QuestionText, maxLongText); err != nil {
		return err
	}
	if err := requireText("payload.answerText", p.AnswerText, maxLongText); err != nil {
		return err
	}
	if err := unitInterval("payload.confidence", p.Confidence); err != nil {
		return err
	}
	if p.Rubric != nil {
		if err := unitInterval("payload.rubric.comprehension", p.Rubric.Comprehension); err != nil {
			return err
		}
		if err := unitInterval("payload.rubric.inference", p.Rubric.Inference); err != nil {
			return err
		}
	}
	return nil
}

func (p *QuizPayload) validate() error {
	if err := requireText("payload.quizId", p.QuizID, maxShortText); err != nil {
		return err
	}
	if err := requireText("payload.questionId", p.QuestionID, maxShortText); err != nil {
		return err
	}
	if err := requireText("payload.answerText", p.AnswerText, maxLongText); err != nil {
		return err
	}
	return unitInterval("payload.confidence", p.Confidence)
}

func (p *ProductionPayload) validate() error {
	if err := oneOf("payload.type", p.Type, productionTypes); err != nil {
		return err
	}
	if err := requireText("payload.text", p.Text, maxLongText); err != nil {
		return err
	}
	for i, w := range p.UsedWords {
		if strings.TrimSpace(w) == "" {
			return validationErr(fmt.Sprintf("payload.usedWords[%d]", i), "must not be empty")
		}
	}
	return unitInterval("payload.confidence", p.Confidence)
}

func requireText(field, v string, max int) error {
	if strings.TrimSpace(v) == "" {
		return validationErr(field, "required")
	}
	if utf8.RuneCountInString(v) > max {
		return validationErr(field, "must be at most %d characters", max)
	}
	return nil
}

func optionalText(field string, v *string, max int) error {
	if v != nil && utf8.RuneCountInString(*v) > max {
		return validationErr(field, "must be at most %d characters", max)
	}
	return nil
}

func oneOf(field, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return validationErr(field, "must be one of %s, got %q", strings.Join(allowed, "|"), v)
}

func unitInterval(field string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return validationErr(field, "must be within [0,1], got %v", *v)
	}
	return nil
}
