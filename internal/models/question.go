package models

import (
	"encoding/json"
)

// QuestionType enumerates the auto-gradable (and one non-gradable) kinds.
type QuestionType string

const (
	QuestionMCQ           QuestionType = "mcq"
	QuestionMSQ           QuestionType = "msq"
	QuestionFillBlank     QuestionType = "fillblank"
	QuestionComprehension QuestionType = "comprehension"
	QuestionBroad         QuestionType = "broad"
)

// NumericRange is the accepted answer interval for numeric fill-in-the-blank
// questions. Both ends are inclusive.
type NumericRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Question is a single item in a test's pool. Comprehension questions carry a
// passage plus nested sub-questions; every other type is a leaf. IDs are
// globally unique within a test, sub-questions included.
type Question struct {
	ID      string       `json:"id" yaml:"id"`
	Type    QuestionType `json:"type" yaml:"type"`
	Text    string       `json:"text" yaml:"text"`
	Options []string     `json:"options,omitempty" yaml:"options,omitempty"`

	CorrectOption  *int         `json:"correctOption,omitempty" yaml:"correct_option,omitempty"`
	CorrectOptions []int        `json:"correctOptions,omitempty" yaml:"correct_options,omitempty"`
	CorrectText    string       `json:"correctText,omitempty" yaml:"correct_text,omitempty"`
	CaseSensitive  bool         `json:"caseSensitive,omitempty" yaml:"case_sensitive,omitempty"`
	Range          *NumericRange `json:"range,omitempty" yaml:"range,omitempty"`

	Passage      string     `json:"passage,omitempty" yaml:"passage,omitempty"`
	SubQuestions []Question `json:"subQuestions,omitempty" yaml:"sub_questions,omitempty"`

	Marks            float64 `json:"marks" yaml:"marks"`
	NegativeMarks    float64 `json:"negativeMarks" yaml:"negative_marks"`
	TimeLimitSeconds int     `json:"timeLimitSeconds,omitempty" yaml:"time_limit_seconds,omitempty"`
}

// IsGradable reports whether the question itself produces an award. A
// comprehension item is a container; its sub-questions are graded instead.
func (q Question) IsGradable() bool {
	return q.Type == QuestionMCQ || q.Type == QuestionMSQ || q.Type == QuestionFillBlank || q.Type == QuestionBroad
}

// Stripped is the student-facing view of a question: everything a client
// needs to render it, with all answer material removed.
type Stripped struct {
	ID               string       `json:"id"`
	Type             QuestionType `json:"type"`
	Text             string       `json:"text"`
	Options          []string     `json:"options,omitempty"`
	Passage          string       `json:"passage,omitempty"`
	SubQuestions     []Stripped   `json:"subQuestions,omitempty"`
	Marks            float64      `json:"marks"`
	NegativeMarks    float64      `json:"negativeMarks"`
	TimeLimitSeconds int          `json:"timeLimitSeconds,omitempty"`
}

// Strip removes answer keys, ranges, and case flags, recursing into
// comprehension sub-questions. Served to students for both the live preview
// and the snapshot view.
func Strip(q Question) Stripped {
	s := Stripped{
		ID:               q.ID,
		Type:             q.Type,
		Text:             q.Text,
		Options:          q.Options,
		Passage:          q.Passage,
		Marks:            q.Marks,
		NegativeMarks:    q.NegativeMarks,
		TimeLimitSeconds: q.TimeLimitSeconds,
	}
	for _, sub := range q.SubQuestions {
		s.SubQuestions = append(s.SubQuestions, Strip(sub))
	}
	return s
}

// StripAll strips a whole served list.
func StripAll(qs []Question) []Stripped {
	out := make([]Stripped, 0, len(qs))
	for _, q := range qs {
		out = append(out, Strip(q))
	}
	return out
}

// AnswerRecord is one saved answer keyed by question id. Value holds the raw
// submitted JSON (a number for mcq, an array of numbers for msq, a string for
// fillblank/broad). Correctness and award are filled in by grading.
type AnswerRecord struct {
	QuestionID   string          `json:"questionId"`
	Value        json.RawMessage `json:"value,omitempty"`
	TimeTakenMs  int64           `json:"timeTakenMs,omitempty"`
	IsCorrect    bool            `json:"isCorrect"`
	MarksAwarded float64         `json:"marksAwarded"`
}

// MergeAnswers upserts incoming records into an existing answer set by
// question id, preserving the order answers were first seen. Autosave relies
// on this being idempotent.
func MergeAnswers(existing, incoming []AnswerRecord) []AnswerRecord {
	merged := make([]AnswerRecord, len(existing))
	copy(merged, existing)
	index := make(map[string]int, len(merged))
	for i, a := range merged {
		index[a.QuestionID] = i
	}
	for _, a := range incoming {
		if i, ok := index[a.QuestionID]; ok {
			merged[i].Value = a.Value
			merged[i].TimeTakenMs = a.TimeTakenMs
		} else {
			index[a.QuestionID] = len(merged)
			merged = append(merged, AnswerRecord{
				QuestionID:  a.QuestionID,
				Value:       a.Value,
				TimeTakenMs: a.TimeTakenMs,
			})
		}
	}
	return merged
}
