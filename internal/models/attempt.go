package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Termination reasons recorded when an attempt is completed early.
const (
	TerminationResumeLimit  = "exceeded resume limit"
	TerminationWarningLimit = "exceeded warning limit"
	TerminationTimeExpired  = "time expired"
	TerminationForced       = "force completed"
)

// AttemptStatus is the attempt lifecycle state. Completed is terminal; a
// terminated attempt is a completed attempt with a termination reason.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

func (s AttemptStatus) String() string { return string(s) }

func (s AttemptStatus) Valid() bool {
	return s == AttemptInProgress || s == AttemptCompleted
}

func (s *AttemptStatus) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = ""
		return nil
	case string:
		*s = AttemptStatus(v)
	case []byte:
		*s = AttemptStatus(string(v))
	default:
		return fmt.Errorf("unsupported type for AttemptStatus: %T", value)
	}
	if !s.Valid() {
		return fmt.Errorf("invalid AttemptStatus: %q", *s)
	}
	return nil
}

func (s AttemptStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid AttemptStatus: %q", s)
	}
	return string(s), nil
}

// Attempt is one student's run at one deployed test. The snapshot is the
// exact served question list, captured once at start; grading and the served
// total marks always read it, never the live pool. The (test, student) pair
// is unique, so a retake requires deleting the old attempt first.
type Attempt struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TestID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_attempts_test_student,priority:1" json:"testId"`
	StudentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_attempts_test_student,priority:2" json:"studentId"`

	Status      AttemptStatus `gorm:"type:varchar(16);not null;default:'in_progress'" json:"status"`
	StartedAt   time.Time     `gorm:"not null" json:"startedAt"`
	SubmittedAt *time.Time    `json:"submittedAt,omitempty"`
	TimeSpentMs int64         `json:"timeSpentMs"`

	Snapshot datatypes.JSONType[[]Question]    `json:"-"`
	Answers  datatypes.JSONType[[]AnswerRecord] `json:"-"`

	Score      float64 `json:"score"`
	Percentage int     `json:"percentage"`
	Passed     bool    `json:"passed"`

	ResumeCount       int     `gorm:"not null;default:0" json:"resumeCount"`
	WarningCount      int     `gorm:"not null;default:0" json:"warningCount"`
	TerminationReason *string `json:"terminationReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (a *Attempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = AttemptInProgress
	}
	return nil
}

// Terminated reports whether the attempt was closed by something other than a
// plain submit.
func (a *Attempt) Terminated() bool {
	return a.Status == AttemptCompleted && a.TerminationReason != nil
}

// ServedTotalMarks sums marks over exactly the snapshot's questions,
// comprehension sub-questions included.
func (a *Attempt) ServedTotalMarks() float64 {
	return totalMarks(a.Snapshot.Data())
}
