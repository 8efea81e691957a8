package analytics

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
)

func completedAttempt(studentID uuid.UUID, score float64, pct int, passed bool) models.Attempt {
	return models.Attempt{
		ID:         uuid.New(),
		StudentID:  studentID,
		Status:     models.AttemptCompleted,
		Score:      score,
		Percentage: pct,
		Passed:     passed,
	}
}

func TestBuildTestReportStatusCounts(t *testing.T) {
	roster := []models.Student{
		{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()},
	}
	attempts := []models.Attempt{
		completedAttempt(roster[0].ID, 10, 50, true),
		completedAttempt(roster[1].ID, 4, 20, false),
		{ID: uuid.New(), StudentID: roster[2].ID, Status: models.AttemptInProgress},
	}

	report := BuildTestReport(attempts, roster)

	assert.Equal(t, 4, report.TotalStudents)
	assert.Equal(t, 2, report.Completed)
	assert.Equal(t, 1, report.InProgress)
	assert.Equal(t, 1, report.NotStarted)
	assert.Equal(t, 75.0, report.ParticipationRate)
	assert.Equal(t, 1, report.PassedCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.Equal(t, 50.0, report.PassRate)
}

func TestBuildTestReportScoreStats(t *testing.T) {
	s1, s2, s3 := uuid.New(), uuid.New(), uuid.New()
	roster := []models.Student{{ID: s1}, {ID: s2}, {ID: s3}}
	attempts := []models.Attempt{
		completedAttempt(s1, 10, 50, true),
		completedAttempt(s2, 20, 100, true),
		completedAttempt(s3, 4, 20, false),
	}

	report := BuildTestReport(attempts, roster)

	assert.Equal(t, 11.33, report.AverageScore)
	assert.Equal(t, 10.0, report.MedianScore)
	assert.Equal(t, 20.0, report.HighestScore)
	assert.Equal(t, 4.0, report.LowestScore)
	assert.Equal(t, 56.67, report.AveragePercentage)
}

func TestBuildTestReportMedianEvenCount(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	roster := []models.Student{{ID: s1}, {ID: s2}}
	attempts := []models.Attempt{
		completedAttempt(s1, 10, 50, true),
		completedAttempt(s2, 15, 75, true),
	}

	report := BuildTestReport(attempts, roster)
	assert.Equal(t, 12.5, report.MedianScore)
}

func TestBuildTestReportHistogram(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	roster := make([]models.Student, 0, len(ids))
	for _, id := range ids {
		roster = append(roster, models.Student{ID: id})
	}
	attempts := []models.Attempt{
		completedAttempt(ids[0], 0, 0, false),
		completedAttempt(ids[1], 0, 9, false),
		completedAttempt(ids[2], 0, 55, true),
		completedAttempt(ids[3], 0, 100, true),
	}

	report := BuildTestReport(attempts, roster)

	assert.Equal(t, 2, report.Histogram[0], "0 and 9 share the first bucket")
	assert.Equal(t, 1, report.Histogram[5])
	assert.Equal(t, 1, report.Histogram[9], "100 folds into the top bucket")
}

func TestBuildTestReportBatchAverages(t *testing.T) {
	s1 := models.Student{ID: uuid.New(), Batches: []string{"batch-a"}}
	s2 := models.Student{ID: uuid.New(), Batches: []string{"batch-a", "batch-b"}}
	roster := []models.Student{s1, s2}
	attempts := []models.Attempt{
		completedAttempt(s1.ID, 0, 40, true),
		completedAttempt(s2.ID, 0, 80, true),
	}

	report := BuildTestReport(attempts, roster)

	assert.Equal(t, 60.0, report.BatchAverages["batch-a"])
	assert.Equal(t, 80.0, report.BatchAverages["batch-b"])
}

func TestBuildTestReportQuestionStats(t *testing.T) {
	s1, s2, s3 := uuid.New(), uuid.New(), uuid.New()
	roster := []models.Student{{ID: s1}, {ID: s2}, {ID: s3}}

	withAnswers := func(studentID uuid.UUID, recs []models.AnswerRecord) models.Attempt {
		a := completedAttempt(studentID, 0, 0, false)
		a.Answers = datatypes.NewJSONType(recs)
		return a
	}

	attempts := []models.Attempt{
		withAnswers(s1, []models.AnswerRecord{
			{QuestionID: "q1", Value: json.RawMessage("0"), IsCorrect: true},
			{QuestionID: "q2", Value: json.RawMessage("1")},
		}),
		withAnswers(s2, []models.AnswerRecord{
			{QuestionID: "q1", Value: json.RawMessage("2")},
			{QuestionID: "q2"}, // blank, never attempted
		}),
		withAnswers(s3, []models.AnswerRecord{
			{QuestionID: "q1", Value: json.RawMessage("0"), IsCorrect: true},
		}),
	}

	report := BuildTestReport(attempts, roster)

	assert.Len(t, report.QuestionStats, 2)
	q1 := report.QuestionStats[0]
	assert.Equal(t, "q1", q1.QuestionID)
	assert.Equal(t, 3, q1.Attempted)
	assert.Equal(t, 2, q1.Correct)
	assert.Equal(t, 66.67, q1.Accuracy)

	q2 := report.QuestionStats[1]
	assert.Equal(t, 1, q2.Attempted, "blank answers do not count as attempted")
	assert.Equal(t, 0, q2.Correct)
}

func TestBuildTestReportEmpty(t *testing.T) {
	report := BuildTestReport(nil, nil)
	assert.Equal(t, 0, report.TotalStudents)
	assert.Equal(t, 0.0, report.ParticipationRate)
	assert.Equal(t, 0.0, report.AverageScore)
}
