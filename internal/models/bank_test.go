package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankYAML = `
tests:
  - title: "Algebra Unit Test"
    subject: "Mathematics"
    status: "deployed"
    config:
      shuffle_questions: true
      max_questions_to_attempt: 2
      passing_percentage: 40
    deployment:
      batches: ["batch-a"]
      duration_minutes: 30
    questions:
      - id: "q1"
        type: "mcq"
        text: "2 + 2 = ?"
        options: ["3", "4"]
        correct_option: 1
        marks: 4
        negative_marks: 1
      - id: "q2"
        type: "fillblank"
        text: "Square root of 225 is ____."
        range:
          min: 15
          max: 15
        marks: 3
      - id: "c1"
        type: "comprehension"
        passage: "A short passage."
        sub_questions:
          - id: "c1a"
            type: "mcq"
            text: "Sub question"
            options: ["a", "b"]
            correct_option: 0
            marks: 2
`

func TestLoadQuestionBank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bankYAML), 0644))

	bank, err := LoadQuestionBank(path)
	require.NoError(t, err)
	require.Len(t, bank.Tests, 1)

	bt := bank.Tests[0]
	assert.Equal(t, "Algebra Unit Test", bt.Title)
	assert.Equal(t, "deployed", bt.Status)
	assert.True(t, bt.Config.ShuffleQuestions)
	assert.Equal(t, 2, bt.Config.MaxQuestionsToAttempt)
	assert.Equal(t, []string{"batch-a"}, bt.Deployment.Batches)
	assert.Equal(t, 30, bt.Deployment.DurationMinutes)

	require.Len(t, bt.Questions, 3)
	q1 := bt.Questions[0]
	require.NotNil(t, q1.CorrectOption)
	assert.Equal(t, 1, *q1.CorrectOption)
	assert.Equal(t, 1.0, q1.NegativeMarks)

	q2 := bt.Questions[1]
	require.NotNil(t, q2.Range)
	assert.Equal(t, 15.0, q2.Range.Min)

	c1 := bt.Questions[2]
	assert.Equal(t, QuestionComprehension, c1.Type)
	require.Len(t, c1.SubQuestions, 1)
	assert.Equal(t, "c1a", c1.SubQuestions[0].ID)
}

func TestLoadQuestionBankMissingFile(t *testing.T) {
	_, err := LoadQuestionBank(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
