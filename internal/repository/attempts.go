package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/database"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
)

func CreateAttempt(ctx context.Context, attempt *models.Attempt) error {
	return database.DB.WithContext(ctx).Create(attempt).Error
}

func GetAttempt(ctx context.Context, testID, studentID uuid.UUID) (*models.Attempt, error) {
	var attempt models.Attempt
	result := database.DB.WithContext(ctx).
		First(&attempt, "test_id = ? AND student_id = ?", testID, studentID)
	return &attempt, result.Error
}

func GetAttemptByID(ctx context.Context, id uuid.UUID) (*models.Attempt, error) {
	var attempt models.Attempt
	result := database.DB.WithContext(ctx).First(&attempt, "id = ?", id)
	return &attempt, result.Error
}

// SaveAnswers writes the merged answer set and time spent for an in-progress
// attempt. The status guard makes autosave a no-op once the attempt has been
// completed by a racing submit; the caller learns that from the return value.
func SaveAnswers(ctx context.Context, attemptID uuid.UUID, answers []models.AnswerRecord, timeSpentMs int64) (bool, error) {
	result := database.DB.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"answers":       datatypes.NewJSONType(answers),
			"time_spent_ms": timeSpentMs,
		})
	return result.RowsAffected > 0, result.Error
}

// IncrementResumeCount bumps the resume counter in a single atomic UPDATE
// guarded on status and returns the stored count afterwards. Duplicate
// network retries each land their own increment, which is exactly what the
// resume-abuse policy counts.
func IncrementResumeCount(ctx context.Context, attemptID uuid.UUID) (int, error) {
	result := database.DB.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptInProgress).
		UpdateColumn("resume_count", gorm.Expr("resume_count + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	attempt, err := GetAttemptByID(ctx, attemptID)
	if err != nil {
		return 0, err
	}
	return attempt.ResumeCount, nil
}

// IncrementWarningCount is the integrity monitor's single primitive: an
// atomic increment returning the new count.
func IncrementWarningCount(ctx context.Context, attemptID uuid.UUID) (int, error) {
	result := database.DB.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptInProgress).
		UpdateColumn("warning_count", gorm.Expr("warning_count + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	attempt, err := GetAttemptByID(ctx, attemptID)
	if err != nil {
		return 0, err
	}
	return attempt.WarningCount, nil
}

// Finalization is the terminal write for an attempt.
type Finalization struct {
	Answers           []models.AnswerRecord
	Score             float64
	Percentage        int
	Passed            bool
	TimeSpentMs       int64
	WarningCount      *int
	TerminationReason *string
	SubmittedAt       time.Time
}

// FinalizeAttempt completes an attempt with its graded outcome. The write is
// a compare-and-set on status, so of two racing submits exactly one wins and
// the other sees false. A completed attempt can never be finalized again.
func FinalizeAttempt(ctx context.Context, attemptID uuid.UUID, fin Finalization) (bool, error) {
	updates := map[string]interface{}{
		"status":        models.AttemptCompleted,
		"answers":       datatypes.NewJSONType(fin.Answers),
		"score":         fin.Score,
		"percentage":    fin.Percentage,
		"passed":        fin.Passed,
		"submitted_at":  fin.SubmittedAt,
		"time_spent_ms": fin.TimeSpentMs,
	}
	if fin.WarningCount != nil {
		updates["warning_count"] = *fin.WarningCount
	}
	if fin.TerminationReason != nil {
		updates["termination_reason"] = *fin.TerminationReason
	}

	result := database.DB.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptInProgress).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}

func ListAttemptsByTest(ctx context.Context, testID uuid.UUID) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := database.DB.WithContext(ctx).Where("test_id = ?", testID).Find(&attempts).Error
	return attempts, err
}

func ListInProgressByTest(ctx context.Context, testID uuid.UUID) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := database.DB.WithContext(ctx).
		Where("test_id = ? AND status = ?", testID, models.AttemptInProgress).
		Find(&attempts).Error
	return attempts, err
}

// ListAttemptsByStudents fetches every attempt belonging to the given
// students, for cross-test analytics.
func ListAttemptsByStudents(ctx context.Context, studentIDs []uuid.UUID) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := database.DB.WithContext(ctx).
		Where("student_id IN ?", studentIDs).
		Find(&attempts).Error
	return attempts, err
}

// DeleteAttempts removes the attempts for the given students on one test and
// reports how many records went away. The unique (test, student) index means
// each deleted student may start one fresh attempt.
func DeleteAttempts(ctx context.Context, testID uuid.UUID, studentIDs []uuid.UUID) (int64, error) {
	result := database.DB.WithContext(ctx).
		Where("test_id = ? AND student_id IN ?", testID, studentIDs).
		Delete(&models.Attempt{})
	return result.RowsAffected, result.Error
}
