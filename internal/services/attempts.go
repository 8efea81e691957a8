package services

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/access"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/config"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/grading"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/repository"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/selection"
)

// AttemptService owns the attempt lifecycle: start, resume accounting,
// autosave, submit, warnings, and the administrative transitions. Each
// terminal transition goes through the repository's compare-and-set write, so
// concurrent requests for the same attempt resolve to exactly one winner.
type AttemptService struct {
	log *zap.Logger
}

func NewAttemptService(log *zap.Logger) *AttemptService {
	return &AttemptService{log: log}
}

// Policy accessors fall back to the shipped defaults when config has not been
// initialized (tests construct the service directly).

func resumeLimit() int {
	if config.Conf != nil && config.Conf.Exam.ResumeLimit > 0 {
		return config.Conf.Exam.ResumeLimit
	}
	return 1
}

func warningLimit() int {
	if config.Conf != nil && config.Conf.Exam.WarningLimit > 0 {
		return config.Conf.Exam.WarningLimit
	}
	return 3
}

func passingPercentage(cfg models.TestConfig) int {
	if cfg.PassingPercentage > 0 {
		return cfg.PassingPercentage
	}
	if config.Conf != nil && config.Conf.Exam.PassingPercentage > 0 {
		return config.Conf.Exam.PassingPercentage
	}
	return grading.DefaultPassingPercentage
}

// TestView is the student-facing payload for a test: stripped questions plus
// whatever attempt state already exists. Correct answers never appear here.
type TestView struct {
	TestID            uuid.UUID              `json:"testId"`
	Title             string                 `json:"title"`
	Subject           string                 `json:"subject"`
	DurationMinutes   int                    `json:"durationMinutes"`
	TotalMarks        float64                `json:"totalMarks"`
	PassingPercentage int                    `json:"passingPercentage"`
	Questions         []models.Stripped      `json:"questions"`
	AttemptStatus     string                 `json:"attemptStatus"`
	SavedAnswers      []models.AnswerRecord  `json:"savedAnswers,omitempty"`
	TimeSpentMs       int64                  `json:"timeSpentMs"`
	ResumeCount       int                    `json:"resumeCount"`
	WarningCount      int                    `json:"warningCount"`
	EndTime           time.Time              `json:"endTime"`
}

// resolveAccess loads test, student, and any existing attempt, then runs the
// access check. Every student-facing operation funnels through here.
func (s *AttemptService) resolveAccess(ctx context.Context, testID, studentID uuid.UUID) (*models.Test, *models.Student, *models.Attempt, error) {
	student, err := repository.GetStudentByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, ErrAccessDenied
		}
		return nil, nil, nil, err
	}

	test, err := repository.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, ErrTestNotFound
		}
		return nil, nil, nil, err
	}

	attempt, err := repository.GetAttempt(ctx, testID, studentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, err
		}
		attempt = nil
	}

	switch access.Resolve(test, student, time.Now().UTC(), attempt != nil) {
	case access.NotFound:
		return nil, nil, nil, ErrTestNotFound
	case access.AccessDenied:
		return nil, nil, nil, ErrAccessDenied
	case access.NotYetOpen:
		return nil, nil, nil, ErrNotYetOpen
	}

	return test, student, attempt, nil
}

// View returns the stripped question payload. With no attempt it is the
// live-pool preview (shuffled only if the test asks, never persisted); with
// an attempt it is always the snapshot, in snapshot order.
func (s *AttemptService) View(ctx context.Context, testID, studentID uuid.UUID) (*TestView, error) {
	test, _, attempt, err := s.resolveAccess(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}

	cfg := test.Config.Data()
	dep := test.Deployment.Data()

	view := &TestView{
		TestID:            test.ID,
		Title:             test.Title,
		Subject:           test.Subject,
		PassingPercentage: passingPercentage(cfg),
		AttemptStatus:     "not_started",
		EndTime:           dep.EndTime,
	}

	if attempt == nil {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		served := selection.Preview(test.Pool.Data(), cfg, r)
		view.Questions = models.StripAll(served)
		view.TotalMarks = test.TotalMarks()
		view.DurationMinutes = selection.DurationMinutes(served, cfg, dep)
		return view, nil
	}

	served := attempt.Snapshot.Data()
	view.Questions = models.StripAll(served)
	view.TotalMarks = attempt.ServedTotalMarks()
	view.DurationMinutes = selection.DurationMinutes(served, cfg, dep)
	view.AttemptStatus = attempt.Status.String()
	view.SavedAnswers = savedValues(attempt.Answers.Data())
	view.TimeSpentMs = attempt.TimeSpentMs
	view.ResumeCount = attempt.ResumeCount
	view.WarningCount = attempt.WarningCount
	return view, nil
}

// savedValues strips grading fields off saved answers before they go back to
// a client that is still mid-attempt.
func savedValues(answers []models.AnswerRecord) []models.AnswerRecord {
	out := make([]models.AnswerRecord, 0, len(answers))
	for _, a := range answers {
		out = append(out, models.AnswerRecord{
			QuestionID:  a.QuestionID,
			Value:       a.Value,
			TimeTakenMs: a.TimeTakenMs,
		})
	}
	return out
}

// StartResult tells the handler which of the three start outcomes happened.
type StartResult struct {
	Attempt       *models.Attempt
	View          *TestView
	Resumed       bool
	AutoSubmitted bool
}

// Start creates a new attempt, or handles re-entry into an existing one.
// First resume: counted, question view served again. Beyond the allowed
// resumes: the attempt is graded against its saved answers, terminated, and
// the caller is told to redirect instead of showing questions.
func (s *AttemptService) Start(ctx context.Context, testID, studentID uuid.UUID) (*StartResult, error) {
	test, _, attempt, err := s.resolveAccess(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}

	if attempt == nil {
		created, err := s.createAttempt(ctx, test, studentID)
		if err != nil {
			return nil, err
		}
		if created != nil {
			view, err := s.View(ctx, testID, studentID)
			if err != nil {
				return nil, err
			}
			return &StartResult{Attempt: created, View: view}, nil
		}
		// Lost a creation race to a duplicate request; fall through to the
		// resume path against the winner's row.
		attempt, err = repository.GetAttempt(ctx, testID, studentID)
		if err != nil {
			return nil, err
		}
	}

	if attempt.Status == models.AttemptCompleted {
		return &StartResult{Attempt: attempt, AutoSubmitted: attempt.Terminated()}, nil
	}

	count, err := repository.IncrementResumeCount(ctx, attempt.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Completed between the read and the increment.
			attempt, err = repository.GetAttempt(ctx, testID, studentID)
			if err != nil {
				return nil, err
			}
			return &StartResult{Attempt: attempt, AutoSubmitted: attempt.Terminated()}, nil
		}
		return nil, err
	}

	if count > resumeLimit() {
		s.log.Warn("Resume limit exceeded, auto-submitting attempt",
			zap.String("attemptID", attempt.ID.String()),
			zap.Int("resumeCount", count),
		)
		reason := models.TerminationResumeLimit
		if err := s.finalizeWith(ctx, test, attempt, attempt.Answers.Data(), attempt.TimeSpentMs, nil, &reason); err != nil && !errors.Is(err, ErrInvalidState) {
			return nil, err
		}
		final, err := repository.GetAttempt(ctx, testID, studentID)
		if err != nil {
			return nil, err
		}
		return &StartResult{Attempt: final, AutoSubmitted: true}, nil
	}

	view, err := s.View(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	attempt, err = repository.GetAttempt(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	return &StartResult{Attempt: attempt, View: view, Resumed: true}, nil
}

// createAttempt snapshots the served question list and inserts the attempt.
// Returns (nil, nil) when the unique (test, student) index rejects the insert
// because a concurrent request already created one.
func (s *AttemptService) createAttempt(ctx context.Context, test *models.Test, studentID uuid.UUID) (*models.Attempt, error) {
	r := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(uuid.New().ID())))
	served := selection.Snapshot(test.Pool.Data(), test.Config.Data(), r)

	attempt := &models.Attempt{
		TestID:    test.ID,
		StudentID: studentID,
		Status:    models.AttemptInProgress,
		StartedAt: time.Now().UTC(),
		Snapshot:  datatypes.NewJSONType(served),
		Answers:   datatypes.NewJSONType([]models.AnswerRecord{}),
	}
	if err := repository.CreateAttempt(ctx, attempt); err != nil {
		if _, lookupErr := repository.GetAttempt(ctx, test.ID, studentID); lookupErr == nil {
			return nil, nil
		}
		return nil, err
	}
	return attempt, nil
}

// Autosave merges newly submitted answers into the saved set without grading
// and without touching status. Safe to retry: merging is idempotent.
func (s *AttemptService) Autosave(ctx context.Context, testID, studentID uuid.UUID, incoming []models.AnswerRecord, timeSpentMs int64) error {
	_, _, attempt, err := s.resolveAccess(ctx, testID, studentID)
	if err != nil {
		return err
	}
	if attempt == nil {
		return ErrAttemptNotFound
	}
	if attempt.Status == models.AttemptCompleted {
		return ErrInvalidState
	}

	merged := models.MergeAnswers(attempt.Answers.Data(), incoming)
	ok, err := repository.SaveAnswers(ctx, attempt.ID, merged, timeSpentMs)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}

// SubmitResult is what the student sees after a submit, unless the test hides
// results until its window closes.
type SubmitResult struct {
	Score             float64 `json:"score"`
	TotalMarks        float64 `json:"totalMarks"`
	Percentage        int     `json:"percentage"`
	Passed            bool    `json:"passed"`
	ResultsPending    bool    `json:"resultsPending"`
	TerminationReason *string `json:"terminationReason,omitempty"`
}

// Submit grades the attempt and completes it. The client may report a
// warning count and a termination reason (timer expiry, proctoring cap); both
// are stored as advisory data. A second submit is rejected, not reapplied.
func (s *AttemptService) Submit(ctx context.Context, testID, studentID uuid.UUID, incoming []models.AnswerRecord, timeSpentMs int64, warningCount *int, terminationReason *string) (*SubmitResult, error) {
	test, _, attempt, err := s.resolveAccess(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, ErrAttemptNotFound
	}
	if attempt.Status == models.AttemptCompleted {
		return nil, ErrInvalidState
	}

	merged := models.MergeAnswers(attempt.Answers.Data(), incoming)
	if err := s.finalizeWith(ctx, test, attempt, merged, timeSpentMs, warningCount, terminationReason); err != nil {
		return nil, err
	}

	final, err := repository.GetAttempt(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{
		Score:             final.Score,
		TotalMarks:        final.ServedTotalMarks(),
		Percentage:        final.Percentage,
		Passed:            final.Passed,
		TerminationReason: final.TerminationReason,
	}
	if !test.Config.Data().ShowResultsImmediately && !test.WindowClosed(time.Now().UTC()) {
		*result = SubmitResult{ResultsPending: true, TerminationReason: final.TerminationReason}
	}
	return result, nil
}

// finalizeWith grades the given answers against the attempt's snapshot and
// completes it via the CAS write.
func (s *AttemptService) finalizeWith(ctx context.Context, test *models.Test, attempt *models.Attempt, answers []models.AnswerRecord, timeSpentMs int64, warningCount *int, terminationReason *string) error {
	outcome := grading.Grade(attempt.Snapshot.Data(), answers, passingPercentage(test.Config.Data()))

	ok, err := repository.FinalizeAttempt(ctx, attempt.ID, repository.Finalization{
		Answers:           outcome.Answers,
		Score:             outcome.Score,
		Percentage:        outcome.Percentage,
		Passed:            outcome.Passed,
		TimeSpentMs:       timeSpentMs,
		WarningCount:      warningCount,
		TerminationReason: terminationReason,
		SubmittedAt:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}

// Warning records one client-reported attention-lost event and returns the
// new count. At the limit the client is told to auto-submit; the server
// trusts the follow-up submit rather than forcing the transition itself.
func (s *AttemptService) Warning(ctx context.Context, testID, studentID uuid.UUID) (int, bool, error) {
	_, _, attempt, err := s.resolveAccess(ctx, testID, studentID)
	if err != nil {
		return 0, false, err
	}
	if attempt == nil {
		return 0, false, ErrAttemptNotFound
	}

	count, err := repository.IncrementWarningCount(ctx, attempt.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return attempt.WarningCount, false, ErrInvalidState
		}
		return 0, false, err
	}
	return count, count >= warningLimit(), nil
}
