// Package grading scores submitted answers against an attempt's question
// snapshot. It is pure: no clock, no database, no reference to the live pool.
package grading

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
)

// DefaultPassingPercentage applies when a test config leaves it unset.
const DefaultPassingPercentage = 40

// Outcome is the graded result of one attempt.
type Outcome struct {
	Answers    []models.AnswerRecord
	Score      float64
	TotalMarks float64
	Percentage int
	Passed     bool
}

// Grade scores the submitted answer set against the served snapshot. Every
// gradable question in the snapshot yields one record, in served order;
// submitted answers for unknown question ids are kept but scored zero and
// incorrect rather than failing the submission. The total score is clamped
// at zero after summation, so per-question deductions apply but the attempt
// total never goes negative.
func Grade(snapshot []models.Question, submitted []models.AnswerRecord, passingPct int) Outcome {
	if passingPct <= 0 {
		passingPct = DefaultPassingPercentage
	}

	// Top-level and nested ids share one lookup table; ids are globally
	// unique within a snapshot.
	leaves := flatten(snapshot)
	byID := make(map[string]models.AnswerRecord, len(submitted))
	for _, a := range submitted {
		byID[a.QuestionID] = a
	}

	out := Outcome{Answers: make([]models.AnswerRecord, 0, len(leaves))}
	seen := make(map[string]bool, len(leaves))

	var sum float64
	for _, q := range leaves {
		rec := byID[q.ID]
		rec.QuestionID = q.ID
		seen[q.ID] = true

		rec.IsCorrect, rec.MarksAwarded = scoreOne(q, rec.Value)
		sum += rec.MarksAwarded
		out.TotalMarks += q.Marks
		out.Answers = append(out.Answers, rec)
	}

	// Answers for question ids not in the snapshot are tolerated, not fatal.
	for _, a := range submitted {
		if seen[a.QuestionID] {
			continue
		}
		a.IsCorrect = false
		a.MarksAwarded = 0
		out.Answers = append(out.Answers, a)
	}

	if sum < 0 {
		sum = 0
	}
	out.Score = sum

	served := out.TotalMarks
	if served <= 0 {
		served = 1
	}
	out.Percentage = int(math.Round(100 * out.Score / served))
	out.Passed = out.Percentage >= passingPct

	return out
}

// flatten expands comprehension containers into their sub-questions,
// preserving served order.
func flatten(qs []models.Question) []models.Question {
	var leaves []models.Question
	for _, q := range qs {
		if q.Type == models.QuestionComprehension {
			leaves = append(leaves, flatten(q.SubQuestions)...)
			continue
		}
		leaves = append(leaves, q)
	}
	return leaves
}

// scoreOne applies the per-type correctness rule. A blank answer always
// scores zero and incorrect; negative marking never applies to an unanswered
// question.
func scoreOne(q models.Question, value json.RawMessage) (bool, float64) {
	if isBlank(value) {
		return false, 0
	}

	switch q.Type {
	case models.QuestionMCQ:
		idx, ok := parseIndex(value)
		if ok && q.CorrectOption != nil && idx == *q.CorrectOption {
			return true, q.Marks
		}
		return false, -q.NegativeMarks

	case models.QuestionMSQ:
		got, ok := parseIndexSet(value)
		if !ok || len(got) == 0 {
			// An empty selection is blank, not wrong.
			if ok {
				return false, 0
			}
			return false, -q.NegativeMarks
		}
		if sameSet(got, q.CorrectOptions) {
			return true, q.Marks
		}
		return false, -q.NegativeMarks

	case models.QuestionFillBlank:
		text, ok := parseText(value)
		if !ok {
			return false, -q.NegativeMarks
		}
		if q.Range != nil {
			n, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
			if err == nil && n >= q.Range.Min && n <= q.Range.Max {
				return true, q.Marks
			}
			return false, -q.NegativeMarks
		}
		if normalize(text, q.CaseSensitive) == normalize(q.CorrectText, q.CaseSensitive) {
			return true, q.Marks
		}
		return false, -q.NegativeMarks

	case models.QuestionBroad:
		// Free text is never auto-gradable.
		return false, 0

	default:
		return false, 0
	}
}

// isBlank treats JSON null, an empty/whitespace string, and an empty array as
// unanswered.
func isBlank(value json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(value))
	if trimmed == "" || trimmed == "null" || trimmed == `""` || trimmed == "[]" {
		return true
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}

// parseIndex accepts a JSON number or a numeric string.
func parseIndex(value json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(value, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// parseIndexSet accepts an array of JSON numbers or numeric strings.
func parseIndexSet(value json.RawMessage) ([]int, bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal(value, &raw); err != nil {
		return nil, false
	}
	out := make([]int, 0, len(raw))
	for _, r := range raw {
		n, ok := parseIndex(r)
		if !ok {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

func parseText(value json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s, true
	}
	var n float64
	if err := json.Unmarshal(value, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	return "", false
}

// sameSet is exact set equality: same size, same members, order-insensitive.
func sameSet(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	counts := make(map[int]int, len(want))
	for _, v := range want {
		counts[v]++
	}
	for _, v := range got {
		if counts[v] == 0 {
			return false
		}
		counts[v]--
	}
	return true
}

// normalize trims, collapses internal whitespace, and lowercases unless the
// question is case-sensitive.
func normalize(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}
