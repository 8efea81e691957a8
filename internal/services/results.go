package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/analytics"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/repository"
)

// StudentResult is one roster row in the admin results view.
type StudentResult struct {
	StudentID  uuid.UUID `json:"studentId"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Status     string    `json:"status"`
	Score      float64   `json:"score"`
	Percentage int       `json:"percentage"`
	Passed     bool      `json:"passed"`
}

// TestResults is the full admin analytics payload for one test.
type TestResults struct {
	TestID     uuid.UUID            `json:"testId"`
	Title      string               `json:"title"`
	TotalMarks float64              `json:"totalMarks"`
	Report     analytics.TestReport `json:"report"`
	Roster     []StudentResult      `json:"roster"`
}

// Results aggregates a test's completed attempts into the admin report plus
// a per-student roster breakdown.
func (s *AttemptService) Results(ctx context.Context, testID uuid.UUID) (*TestResults, error) {
	test, err := repository.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}

	attempts, err := repository.ListAttemptsByTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	roster, err := repository.RosterFor(ctx, test.Deployment.Data())
	if err != nil {
		return nil, err
	}

	byStudent := make(map[uuid.UUID]models.Attempt, len(attempts))
	for _, a := range attempts {
		byStudent[a.StudentID] = a
	}

	rows := make([]StudentResult, 0, len(roster))
	for _, st := range roster {
		row := StudentResult{
			StudentID: st.ID,
			Name:      st.Name,
			Phone:     st.Phone,
			Status:    "not_started",
		}
		if a, ok := byStudent[st.ID]; ok {
			row.Status = a.Status.String()
			row.Score = a.Score
			row.Percentage = a.Percentage
			row.Passed = a.Passed
		}
		rows = append(rows, row)
	}

	return &TestResults{
		TestID:     test.ID,
		Title:      test.Title,
		TotalMarks: test.TotalMarks(),
		Report:     analytics.BuildTestReport(attempts, roster),
		Roster:     rows,
	}, nil
}

// StudentAnalytics builds the cross-test report for one student against their
// primary batch.
func (s *AttemptService) StudentAnalytics(ctx context.Context, studentID uuid.UUID) (*analytics.StudentReport, error) {
	student, err := repository.GetStudentByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, err
	}

	peers := []models.Student{*student}
	if len(student.Batches) > 0 {
		peers, err = repository.ListBatchStudents(ctx, student.Batches[0])
		if err != nil {
			return nil, err
		}
	}

	ids := make([]uuid.UUID, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.ID)
	}
	attempts, err := repository.ListAttemptsByStudents(ctx, ids)
	if err != nil {
		return nil, err
	}

	grouped := make(map[uuid.UUID][]models.Attempt, len(peers))
	for _, a := range attempts {
		grouped[a.StudentID] = append(grouped[a.StudentID], a)
	}

	report := analytics.BuildStudentReport(studentID, peers, grouped)
	return &report, nil
}
