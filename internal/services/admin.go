package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/repository"
)

// ForceComplete grades and completes every in-progress attempt on a test
// whose deployment window has closed, reconciling students who abandoned the
// browser without submitting. Returns the number of attempts closed.
func (s *AttemptService) ForceComplete(ctx context.Context, testID uuid.UUID) (int, error) {
	test, err := repository.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrTestNotFound
		}
		return 0, err
	}
	if !test.WindowClosed(time.Now().UTC()) {
		return 0, ErrWindowOpen
	}

	attempts, err := repository.ListInProgressByTest(ctx, testID)
	if err != nil {
		return 0, err
	}

	reason := models.TerminationForced
	completed := 0
	for i := range attempts {
		a := attempts[i]
		err := s.finalizeWith(ctx, test, &a, a.Answers.Data(), a.TimeSpentMs, nil, &reason)
		if err != nil {
			if errors.Is(err, ErrInvalidState) {
				// Raced a late submit; the attempt is already closed.
				continue
			}
			return completed, err
		}
		completed++
	}

	s.log.Info("Force-completed attempts",
		zap.String("testID", testID.String()),
		zap.Int("count", completed),
	)
	return completed, nil
}

// Reassign deletes the attempts of the named students (by phone) on one
// test, which is what permits each of them exactly one fresh attempt. The
// test definition is untouched.
func (s *AttemptService) Reassign(ctx context.Context, testID uuid.UUID, phones []string) (int64, error) {
	if len(phones) == 0 {
		return 0, ErrValidation
	}
	if _, err := repository.GetTest(ctx, testID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrTestNotFound
		}
		return 0, err
	}

	students, err := repository.ListStudentsByPhones(ctx, phones)
	if err != nil {
		return 0, err
	}
	ids := make([]uuid.UUID, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := repository.DeleteAttempts(ctx, testID, ids)
	if err != nil {
		return 0, err
	}
	s.log.Info("Reassigned attempts",
		zap.String("testID", testID.String()),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

// ReassignMissed reopens the deployment window so students who never started
// get another chance; the test reverts to deployed.
func (s *AttemptService) ReassignMissed(ctx context.Context, testID uuid.UUID, start, end time.Time) error {
	if !end.After(start) {
		return ErrValidation
	}
	if err := repository.ReopenDeployment(ctx, testID, start, end); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTestNotFound
		}
		return err
	}
	return nil
}
