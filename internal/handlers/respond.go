package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/services"
)

// respondError maps service sentinels onto HTTP statuses with short,
// actionable messages. Anything unrecognized is a 500 and gets logged.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrTestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Test not found"})
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No attempt found for this test"})
	case errors.Is(err, services.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this test"})
	case errors.Is(err, services.ErrNotYetOpen):
		c.JSON(http.StatusForbidden, gin.H{"error": "This test has not opened yet", "code": "not_yet_open"})
	case errors.Is(err, services.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "This attempt has already been submitted"})
	case errors.Is(err, services.ErrWindowOpen):
		c.JSON(http.StatusConflict, gin.H{"error": "The test window is still open"})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
	default:
		log.Error("Unhandled service error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
	}
}
