package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/database"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/repository"
)

func setupDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })
}

func intp(n int) *int { return &n }

func seedStudent(t *testing.T, batches ...string) *models.Student {
	t.Helper()
	student := &models.Student{
		Name:    "Student",
		Phone:   uuid.New().String(),
		Batches: batches,
	}
	require.NoError(t, student.SetPassword("secret"))
	require.NoError(t, repository.CreateStudent(context.Background(), student))
	return student
}

func seedTest(t *testing.T, cfg models.TestConfig, dep models.Deployment) *models.Test {
	t.Helper()
	pool := []models.Question{
		{ID: "q1", Type: models.QuestionMCQ, CorrectOption: intp(1), Marks: 4, NegativeMarks: 1},
		{ID: "q2", Type: models.QuestionMCQ, CorrectOption: intp(0), Marks: 4, NegativeMarks: 1},
		{ID: "q3", Type: models.QuestionFillBlank, Range: &models.NumericRange{Min: 15, Max: 15}, Marks: 2},
	}
	test := &models.Test{
		Title:      "Unit Test",
		Subject:    "Mathematics",
		Status:     models.TestDeployed,
		Pool:       datatypes.NewJSONType(pool),
		Config:     datatypes.NewJSONType(cfg),
		Deployment: datatypes.NewJSONType(dep),
	}
	require.NoError(t, repository.CreateTest(context.Background(), test))
	return test
}

func openWindow() models.Deployment {
	now := time.Now().UTC()
	return models.Deployment{
		Batches:         []string{"batch-a"},
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(time.Hour),
		DurationMinutes: 45,
	}
}

func answers(values map[string]string) []models.AnswerRecord {
	out := make([]models.AnswerRecord, 0, len(values))
	for id, v := range values {
		out = append(out, models.AnswerRecord{QuestionID: id, Value: json.RawMessage(v)})
	}
	return out
}

func newService() *AttemptService {
	return NewAttemptService(zap.NewNop())
}

func TestStartCreatesAttemptWithSnapshot(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	cfg := models.TestConfig{ShowResultsImmediately: true}
	test := seedTest(t, cfg, openWindow())
	student := seedStudent(t, "batch-a")

	result, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)

	require.NotNil(t, result.View)
	assert.False(t, result.Resumed)
	assert.Equal(t, models.AttemptInProgress, result.Attempt.Status)
	assert.Len(t, result.Attempt.Snapshot.Data(), 3)
	assert.Len(t, result.View.Questions, 3)
	assert.Equal(t, 10.0, result.View.TotalMarks)
	assert.Equal(t, 45, result.View.DurationMinutes)
}

func TestStartSnapshotIsStable(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	cfg := models.TestConfig{ShuffleQuestions: true, ShowResultsImmediately: true}
	test := seedTest(t, cfg, openWindow())
	student := seedStudent(t, "batch-a")

	first, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)
	firstOrder := make([]string, 0, 3)
	for _, q := range first.View.Questions {
		firstOrder = append(firstOrder, q.ID)
	}

	// Re-entry serves the persisted snapshot, never a fresh shuffle.
	second, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)
	secondOrder := make([]string, 0, 3)
	for _, q := range second.View.Questions {
		secondOrder = append(secondOrder, q.ID)
	}
	assert.Equal(t, firstOrder, secondOrder)
	assert.True(t, second.Resumed)
}

func TestStartResumeLimitAutoSubmits(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{ShowResultsImmediately: true}, openWindow())
	student := seedStudent(t, "batch-a")

	_, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)

	// Save a correct answer so the auto-graded score reflects real work.
	require.NoError(t, svc.Autosave(ctx, test.ID, student.ID, answers(map[string]string{"q1": "1"}), 1000))

	// First re-entry is the allowed resume.
	resumed, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, resumed.Resumed)
	assert.False(t, resumed.AutoSubmitted)
	assert.Equal(t, 1, resumed.Attempt.ResumeCount)

	// Second re-entry crosses the limit: graded from saved answers, terminated.
	final, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, final.AutoSubmitted)
	assert.Nil(t, final.View)
	assert.Equal(t, models.AttemptCompleted, final.Attempt.Status)
	require.NotNil(t, final.Attempt.TerminationReason)
	assert.Equal(t, models.TerminationResumeLimit, *final.Attempt.TerminationReason)
	assert.Equal(t, 4.0, final.Attempt.Score)

	// A further submit is a conflict, not a regrade.
	_, err = svc.Submit(ctx, test.ID, student.ID, nil, 0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidState)

	// Re-entering a terminated attempt keeps reporting the redirect outcome.
	again, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, again.AutoSubmitted)
	assert.Nil(t, again.View)
}

func TestSubmitGradesAndCompletes(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{ShowResultsImmediately: true}, openWindow())
	student := seedStudent(t, "batch-a")

	_, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Autosave(ctx, test.ID, student.ID, answers(map[string]string{"q1": "1"}), 5000))

	// Submit merges the remaining answers over the autosaved set.
	result, err := svc.Submit(ctx, test.ID, student.ID, answers(map[string]string{
		"q2": "1",   // wrong, deducts 1
		"q3": `"15"`, // correct
	}), 9000, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 5.0, result.Score, "4 + 2 - 1")
	assert.Equal(t, 10.0, result.TotalMarks)
	assert.Equal(t, 50, result.Percentage)
	assert.True(t, result.Passed)
	assert.False(t, result.ResultsPending)

	attempt, err := repository.GetAttempt(ctx, test.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptCompleted, attempt.Status)
	assert.NotNil(t, attempt.SubmittedAt)
	assert.Equal(t, int64(9000), attempt.TimeSpentMs)

	// Autosave after completion is rejected.
	err = svc.Autosave(ctx, test.ID, student.ID, answers(map[string]string{"q1": "0"}), 100)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.Submit(ctx, test.ID, student.ID, nil, 0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPoolEditsNeverChangeStartedAttempt(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{ShowResultsImmediately: true}, openWindow())
	student := seedStudent(t, "batch-a")

	_, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)

	// The author rewrites the live pool mid-attempt: q1's answer key flips
	// and the marks are inflated. The started attempt must not notice.
	newPool := []models.Question{
		{ID: "q1", Type: models.QuestionMCQ, CorrectOption: intp(0), Marks: 100, NegativeMarks: 50},
	}
	require.NoError(t, database.DB.WithContext(ctx).Model(&models.Test{}).
		Where("id = ?", test.ID).
		Update("pool", datatypes.NewJSONType(newPool)).Error)

	result, err := svc.Submit(ctx, test.ID, student.ID, answers(map[string]string{
		"q1": "1",    // correct per the snapshot, wrong per the edited pool
		"q3": `"15"`, // correct per the snapshot, gone from the edited pool
	}), 0, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 6.0, result.Score, "graded against the snapshot keys")
	assert.Equal(t, 10.0, result.TotalMarks, "served total ignores the edited marks")
	assert.Equal(t, 60, result.Percentage)
}

func TestSubmitAfterTestClosed(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{ShowResultsImmediately: true}, openWindow())
	student := seedStudent(t, "batch-a")
	bystander := seedStudent(t, "batch-a")

	_, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)

	// The closer flips the test once the window ends.
	require.NoError(t, repository.UpdateTestStatus(ctx, test.ID, models.TestCompleted))

	// The attempt holder still gets their submit in.
	result, err := svc.Submit(ctx, test.ID, student.ID, answers(map[string]string{"q1": "1"}), 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, result.Score)

	// A student with no attempt sees the closed test as missing.
	_, err = svc.Start(ctx, test.ID, bystander.ID)
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestSubmitResultsPendingUntilWindowCloses(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{}, openWindow())
	student := seedStudent(t, "batch-a")

	_, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)

	result, err := svc.Submit(ctx, test.ID, student.ID, answers(map[string]string{"q1": "1"}), 0, nil, nil)
	require.NoError(t, err)

	assert.True(t, result.ResultsPending)
	assert.Equal(t, 0.0, result.Score, "scores are withheld while the window is open")
}

func TestSubmitRecordsClientTermination(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{ShowResultsImmediately: true}, openWindow())
	student := seedStudent(t, "batch-a")

	_, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)

	reason := models.TerminationWarningLimit
	_, err = svc.Submit(ctx, test.ID, student.ID, nil, 0, intp(3), &reason)
	require.NoError(t, err)

	attempt, err := repository.GetAttempt(ctx, test.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, attempt.WarningCount)
	require.NotNil(t, attempt.TerminationReason)
	assert.Equal(t, models.TerminationWarningLimit, *attempt.TerminationReason)
	assert.True(t, attempt.Terminated())
}

func TestWarningThreshold(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{ShowResultsImmediately: true}, openWindow())
	student := seedStudent(t, "batch-a")

	_, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		count, autoSubmit, err := svc.Warning(ctx, test.ID, student.ID)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.False(t, autoSubmit)
	}

	count, autoSubmit, err := svc.Warning(ctx, test.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.True(t, autoSubmit, "the third warning tells the client to submit")
}

func TestAccessChecks(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{}, openWindow())
	outsider := seedStudent(t, "batch-z")

	_, err := svc.Start(ctx, test.ID, outsider.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = svc.View(ctx, uuid.New(), outsider.ID)
	assert.ErrorIs(t, err, ErrTestNotFound)

	// A draft test looks exactly like a missing one.
	draft := seedTest(t, models.TestConfig{}, openWindow())
	require.NoError(t, repository.UpdateTestStatus(ctx, draft.ID, models.TestDraft))
	member := seedStudent(t, "batch-a")
	_, err = svc.View(ctx, draft.ID, member.ID)
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestStartBeforeWindowOpens(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	now := time.Now().UTC()
	dep := models.Deployment{
		Batches:   []string{"batch-a"},
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
	}
	test := seedTest(t, models.TestConfig{}, dep)
	student := seedStudent(t, "batch-a")

	_, err := svc.Start(ctx, test.ID, student.ID)
	assert.ErrorIs(t, err, ErrNotYetOpen)
}

func TestViewPreviewBeforeAttempt(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	cfg := models.TestConfig{MaxQuestionsToAttempt: 2, ShowResultsImmediately: true}
	test := seedTest(t, cfg, openWindow())
	student := seedStudent(t, "batch-a")

	view, err := svc.View(ctx, test.ID, student.ID)
	require.NoError(t, err)

	assert.Equal(t, "not_started", view.AttemptStatus)
	assert.Len(t, view.Questions, 3, "preview never truncates to the attempt cap")

	// The preview must not leak answer keys.
	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correctOption")
	assert.NotContains(t, string(raw), "range")

	started, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)
	assert.Len(t, started.View.Questions, 2, "the snapshot honors the cap")
}

func TestForceComplete(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{ShowResultsImmediately: true}, openWindow())
	student := seedStudent(t, "batch-a")

	_, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Autosave(ctx, test.ID, student.ID, answers(map[string]string{"q1": "1"}), 2000))

	// Window still open: refuse.
	_, err = svc.ForceComplete(ctx, test.ID)
	assert.ErrorIs(t, err, ErrWindowOpen)

	// Close the window, then force.
	dep := test.Deployment.Data()
	dep.EndTime = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, repository.ReopenDeployment(ctx, test.ID, dep.StartTime, dep.EndTime))

	count, err := svc.ForceComplete(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	attempt, err := repository.GetAttempt(ctx, test.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptCompleted, attempt.Status)
	require.NotNil(t, attempt.TerminationReason)
	assert.Equal(t, models.TerminationForced, *attempt.TerminationReason)
	assert.Equal(t, 4.0, attempt.Score, "graded from the autosaved answers")

	// Idempotent: nothing left in progress.
	count, err = svc.ForceComplete(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReassignAllowsFreshAttempt(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{ShowResultsImmediately: true}, openWindow())
	student := seedStudent(t, "batch-a")

	_, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, test.ID, student.ID, answers(map[string]string{"q1": "0"}), 0, nil, nil)
	require.NoError(t, err)

	deleted, err := svc.Reassign(ctx, test.ID, []string{student.Phone})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The student can start over with a brand new snapshot and clean counters.
	fresh, err := svc.Start(ctx, test.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInProgress, fresh.Attempt.Status)
	assert.Equal(t, 0, fresh.Attempt.ResumeCount)
	assert.Empty(t, fresh.Attempt.Answers.Data())
}

func TestReassignValidation(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{}, openWindow())

	_, err := svc.Reassign(ctx, test.ID, nil)
	assert.ErrorIs(t, err, ErrValidation)

	// Unknown phones are a no-op, not an error.
	deleted, err := svc.Reassign(ctx, test.ID, []string{"0000000000"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestReassignMissedReopensWindow(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	test := seedTest(t, models.TestConfig{}, openWindow())
	require.NoError(t, repository.UpdateTestStatus(ctx, test.ID, models.TestCompleted))

	start := time.Now().UTC().Add(time.Hour)
	end := start.Add(3 * time.Hour)

	err := svc.ReassignMissed(ctx, test.ID, end, start)
	assert.ErrorIs(t, err, ErrValidation, "end must be after start")

	require.NoError(t, svc.ReassignMissed(ctx, test.ID, start, end))

	reopened, err := repository.GetTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TestDeployed, reopened.Status)
	assert.Equal(t, start.Unix(), reopened.Deployment.Data().StartTime.Unix())
	assert.Equal(t, end.Unix(), reopened.Deployment.Data().EndTime.Unix())
}

func TestAllowListOverridesBatches(t *testing.T) {
	setupDB(t)
	svc := newService()
	ctx := context.Background()

	listed := seedStudent(t, "batch-z")
	unlisted := seedStudent(t, "batch-a")

	now := time.Now().UTC()
	dep := models.Deployment{
		Batches:   []string{"batch-a"},
		Students:  []string{listed.Phone},
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}
	test := seedTest(t, models.TestConfig{}, dep)

	_, err := svc.View(ctx, test.ID, listed.ID)
	require.NoError(t, err)

	_, err = svc.View(ctx, test.ID, unlisted.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)
}
