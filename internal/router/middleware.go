package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/handlers"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/repository"
)

// IdentityLoader checks the session for a student or admin id and loads the
// matching record into the context. A stale id (record deleted since login)
// clears the session so we don't carry zombie sessions around.
func IdentityLoader(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		if raw, ok := session.Get(handlers.SessionStudentID).(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				student, err := repository.GetStudentByID(c.Request.Context(), id)
				if err == nil {
					c.Set("student", student)
					c.Next()
					return
				}
			}
			log.Warn("Session referenced a missing student, clearing it", zap.String("studentID", raw))
			dropSession(session)
			c.Next()
			return
		}

		if raw, ok := session.Get(handlers.SessionAdminID).(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				user, err := repository.GetUserByID(c.Request.Context(), id)
				if err == nil {
					c.Set("admin", user)
					c.Next()
					return
				}
			}
			log.Warn("Session referenced a missing admin, clearing it", zap.String("adminID", raw))
			dropSession(session)
		}

		c.Next()
	}
}

func dropSession(session sessions.Session) {
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	session.Save()
}

// StudentRequired rejects requests without a loaded student identity.
func StudentRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get("student"); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Login required"})
			return
		}
		c.Next()
	}
}

// AdminRequired rejects requests without a loaded admin identity.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get("admin"); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Admin login required"})
			return
		}
		c.Next()
	}
}
