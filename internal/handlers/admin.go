package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/repository"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/services"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/utils"
)

// AdminHandler serves the administrative endpoints: forced completion,
// reassignment, roster management, and results.
type AdminHandler struct {
	log      *zap.Logger
	attempts *services.AttemptService
}

func NewAdminHandler(log *zap.Logger, attempts *services.AttemptService) *AdminHandler {
	return &AdminHandler{log: log, attempts: attempts}
}

// ForceComplete closes out every in-progress attempt on a test whose window
// has ended and reports how many were affected.
func (h *AdminHandler) ForceComplete(c *gin.Context) {
	tid, ok := testID(c)
	if !ok {
		return
	}

	count, err := h.attempts.ForceComplete(c.Request.Context(), tid)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": count})
}

type reassignRequest struct {
	Phones []string `json:"phones" binding:"required"`
}

// Reassign deletes attempts so the named students can retake the test.
func (h *AdminHandler) Reassign(c *gin.Context) {
	tid, ok := testID(c)
	if !ok {
		return
	}

	var req reassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A list of student phones is required"})
		return
	}

	deleted, err := h.attempts.Reassign(c.Request.Context(), tid, req.Phones)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type reassignMissedRequest struct {
	StartTime time.Time `json:"startTime" binding:"required"`
	EndTime   time.Time `json:"endTime" binding:"required"`
}

// ReassignMissed reopens the deployment window; the test reverts to deployed.
func (h *AdminHandler) ReassignMissed(c *gin.Context) {
	tid, ok := testID(c)
	if !ok {
		return
	}

	var req reassignMissedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startTime and endTime are required"})
		return
	}

	if err := h.attempts.ReassignMissed(c.Request.Context(), tid, req.StartTime, req.EndTime); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deployment window reopened"})
}

// Results returns the full analytics payload plus the roster breakdown.
func (h *AdminHandler) Results(c *gin.Context) {
	tid, ok := testID(c)
	if !ok {
		return
	}

	results, err := h.attempts.Results(c.Request.Context(), tid)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// ResultsChart renders the score-percentage histogram as an echarts bar
// chart for quick eyeballing from the admin panel.
func (h *AdminHandler) ResultsChart(c *gin.Context) {
	tid, ok := testID(c)
	if !ok {
		return
	}

	results, err := h.attempts.Results(c.Request.Context(), tid)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    results.Title,
			Subtitle: "Score distribution (percentage buckets)",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	labels := make([]string, 0, 10)
	items := make([]opts.BarData, 0, 10)
	for i, count := range results.Report.Histogram {
		hi := (i + 1) * 10
		labels = append(labels, fmt.Sprintf("%d-%d%%", i*10, hi))
		items = append(items, opts.BarData{Value: count})
	}
	bar.SetXAxis(labels).AddSeries("Students", items)

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := bar.Render(c.Writer); err != nil {
		h.log.Error("Failed to render results chart", zap.Error(err))
	}
}

type createStudentRequest struct {
	Name     string   `json:"name" binding:"required"`
	Phone    string   `json:"phone" binding:"required"`
	Password string   `json:"password" binding:"required"`
	Batches  []string `json:"batches"`
}

// CreateStudent adds a roster entry.
func (h *AdminHandler) CreateStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name, phone, and password are required"})
		return
	}
	if !utils.IsValidPhone(req.Phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	student := &models.Student{
		Name:    req.Name,
		Phone:   req.Phone,
		Batches: req.Batches,
	}
	if err := student.SetPassword(req.Password); err != nil {
		h.log.Error("Failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create student"})
		return
	}
	if err := repository.CreateStudent(c.Request.Context(), student); err != nil {
		h.log.Error("Failed to create student", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "A student with that phone already exists"})
		return
	}
	c.JSON(http.StatusCreated, student)
}
