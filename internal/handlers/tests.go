package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/services"
)

// TestHandler serves the student-facing attempt endpoints.
type TestHandler struct {
	log      *zap.Logger
	attempts *services.AttemptService
}

func NewTestHandler(log *zap.Logger, attempts *services.AttemptService) *TestHandler {
	return &TestHandler{log: log, attempts: attempts}
}

// studentID pulls the authenticated student's id out of the context set by
// the session middleware.
func studentID(c *gin.Context) (uuid.UUID, bool) {
	student, exists := c.Get("student")
	if !exists {
		return uuid.Nil, false
	}
	return student.(*models.Student).ID, true
}

func testID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid test id"})
		return uuid.Nil, false
	}
	return id, true
}

// View returns the stripped question payload plus any saved attempt state.
func (h *TestHandler) View(c *gin.Context) {
	tid, ok := testID(c)
	if !ok {
		return
	}
	sid, ok := studentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	view, err := h.attempts.View(c.Request.Context(), tid, sid)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Start creates or re-enters an attempt. Past the resume allowance the
// response says the attempt was auto-submitted and the client must redirect
// away from the question view.
func (h *TestHandler) Start(c *gin.Context) {
	tid, ok := testID(c)
	if !ok {
		return
	}
	sid, ok := studentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	result, err := h.attempts.Start(c.Request.Context(), tid, sid)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if result.View == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":            models.AttemptCompleted,
			"redirect":          true,
			"autoSubmitted":     result.AutoSubmitted,
			"terminationReason": result.Attempt.TerminationReason,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      models.AttemptInProgress,
		"resumed":     result.Resumed,
		"resumeCount": result.Attempt.ResumeCount,
		"view":        result.View,
	})
}

type answerPayload struct {
	QuestionID  string          `json:"questionId" binding:"required"`
	Value       json.RawMessage `json:"value"`
	TimeTakenMs int64           `json:"timeTakenMs"`
}

func toRecords(payload []answerPayload) []models.AnswerRecord {
	out := make([]models.AnswerRecord, 0, len(payload))
	for _, p := range payload {
		out = append(out, models.AnswerRecord{
			QuestionID:  p.QuestionID,
			Value:       p.Value,
			TimeTakenMs: p.TimeTakenMs,
		})
	}
	return out
}

type autosaveRequest struct {
	Answers     []answerPayload `json:"answers"`
	TimeSpentMs int64           `json:"timeSpentMs"`
}

// Autosave merges answers without grading. Clients retry it freely.
func (h *TestHandler) Autosave(c *gin.Context) {
	tid, ok := testID(c)
	if !ok {
		return
	}
	sid, ok := studentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req autosaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid autosave payload"})
		return
	}

	if err := h.attempts.Autosave(c.Request.Context(), tid, sid, toRecords(req.Answers), req.TimeSpentMs); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

type submitRequest struct {
	Answers           []answerPayload `json:"answers"`
	TimeSpentMs       int64           `json:"timeSpentMs"`
	WarningCount      *int            `json:"warningCount,omitempty"`
	TerminationReason *string         `json:"terminationReason,omitempty"`
}

// Submit grades and completes the attempt. A repeat submit gets a conflict,
// never a second grading.
func (h *TestHandler) Submit(c *gin.Context) {
	tid, ok := testID(c)
	if !ok {
		return
	}
	sid, ok := studentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submit payload"})
		return
	}

	result, err := h.attempts.Submit(c.Request.Context(), tid, sid, toRecords(req.Answers), req.TimeSpentMs, req.WarningCount, req.TerminationReason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Warning records one attention-lost event. At the limit the client is
// instructed to submit with the proctoring termination reason.
func (h *TestHandler) Warning(c *gin.Context) {
	tid, ok := testID(c)
	if !ok {
		return
	}
	sid, ok := studentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	count, autoSubmit, err := h.attempts.Warning(c.Request.Context(), tid, sid)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"warningCount": count, "autoSubmit": autoSubmit})
}

// Analytics returns the student's cross-test report and batch leaderboard.
func (h *TestHandler) Analytics(c *gin.Context) {
	sid, ok := studentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	report, err := h.attempts.StudentAnalytics(c.Request.Context(), sid)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
