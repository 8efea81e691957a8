package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TestStatus tracks a test definition through authoring and deployment.
type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestDeployed  TestStatus = "deployed"
	TestCompleted TestStatus = "completed"
)

func (s TestStatus) String() string { return string(s) }

func (s TestStatus) Valid() bool {
	switch s {
	case TestDraft, TestDeployed, TestCompleted:
		return true
	default:
		return false
	}
}

func (s *TestStatus) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = ""
		return nil
	case string:
		*s = TestStatus(v)
	case []byte:
		*s = TestStatus(string(v))
	default:
		return fmt.Errorf("unsupported type for TestStatus: %T", value)
	}
	if !s.Valid() {
		return fmt.Errorf("invalid TestStatus: %q", *s)
	}
	return nil
}

func (s TestStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid TestStatus: %q", s)
	}
	return string(s), nil
}

// TestConfig holds the per-test behavior switches set by the author.
type TestConfig struct {
	ShuffleQuestions       bool `json:"shuffleQuestions" yaml:"shuffle_questions"`
	MaxQuestionsToAttempt  int  `json:"maxQuestionsToAttempt" yaml:"max_questions_to_attempt"`
	PerQuestionTimer       bool `json:"perQuestionTimer" yaml:"per_question_timer"`
	PerQuestionSeconds     int  `json:"perQuestionSeconds" yaml:"per_question_seconds"`
	PassingPercentage      int  `json:"passingPercentage" yaml:"passing_percentage"`
	ShowResultsImmediately bool `json:"showResultsImmediately" yaml:"show_results_immediately"`
}

// Deployment is the time window and audience a test is released to. Students
// (a phone allow-list) overrides batch targeting when present.
type Deployment struct {
	Batches         []string  `json:"batches" yaml:"batches"`
	Students        []string  `json:"students,omitempty" yaml:"students,omitempty"`
	StartTime       time.Time `json:"startTime" yaml:"start_time"`
	EndTime         time.Time `json:"endTime" yaml:"end_time"`
	DurationMinutes int       `json:"durationMinutes" yaml:"duration_minutes"`
}

// Test is the authored test definition. The question pool, config, and
// deployment are JSON documents so an author edit is a single row write and
// attempts can snapshot the pool wholesale.
type Test struct {
	ID         uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"id"`
	Title      string                          `gorm:"not null" json:"title"`
	Subject    string                          `json:"subject"`
	Status     TestStatus                      `gorm:"type:varchar(16);not null;default:'draft'" json:"status"`
	Pool       datatypes.JSONType[[]Question]  `json:"-"`
	Config     datatypes.JSONType[TestConfig]  `json:"config"`
	Deployment datatypes.JSONType[Deployment]  `json:"deployment"`
	CreatedAt  time.Time                       `json:"createdAt"`
	UpdatedAt  time.Time                       `json:"updatedAt"`
}

func (t *Test) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TestDraft
	}
	return nil
}

// TotalMarks sums the authored pool's marks, counting comprehension
// sub-questions instead of their containers.
func (t *Test) TotalMarks() float64 {
	return totalMarks(t.Pool.Data())
}

func totalMarks(qs []Question) float64 {
	var total float64
	for _, q := range qs {
		if q.Type == QuestionComprehension {
			total += totalMarks(q.SubQuestions)
			continue
		}
		total += q.Marks
	}
	return total
}

// WindowOpen reports whether now falls inside the deployment window.
func (t *Test) WindowOpen(now time.Time) bool {
	d := t.Deployment.Data()
	return !now.Before(d.StartTime) && now.Before(d.EndTime)
}

// WindowClosed reports whether the deployment end time has passed.
func (t *Test) WindowClosed(now time.Time) bool {
	return now.After(t.Deployment.Data().EndTime)
}
