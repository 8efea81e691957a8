package router

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/config"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/handlers"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/services"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Try again later."})
}

func Setup(log *zap.Logger, attempts *services.AttemptService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	store := cookie.NewStore([]byte(config.Conf.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7,
	})
	router.Use(sessions.Sessions("rbmsession", store))

	router.Use(CSRFProtection())
	router.Use(IdentityLoader(log))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
	})

	authHandler := handlers.NewAuthHandler(log)
	testHandler := handlers.NewTestHandler(log, attempts)
	adminHandler := handlers.NewAdminHandler(log, attempts)

	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: 5,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	api := router.Group("/api")
	{
		api.POST("/login", limiter, authHandler.StudentLogin)
		api.POST("/admin/login", limiter, authHandler.AdminLogin)
		api.POST("/logout", authHandler.Logout)

		student := api.Group("/")
		student.Use(StudentRequired())
		{
			student.GET("/tests/:id", testHandler.View)
			student.POST("/tests/:id/start", testHandler.Start)
			student.POST("/tests/:id/autosave", testHandler.Autosave)
			student.POST("/tests/:id/submit", testHandler.Submit)
			student.POST("/tests/:id/warning", testHandler.Warning)
			student.GET("/analytics", testHandler.Analytics)
		}

		admin := api.Group("/admin")
		admin.Use(AdminRequired())
		{
			admin.POST("/students", adminHandler.CreateStudent)
			admin.POST("/tests/:id/force-complete", adminHandler.ForceComplete)
			admin.DELETE("/tests/:id/attempts", adminHandler.Reassign)
			admin.POST("/tests/:id/reassign-missed", adminHandler.ReassignMissed)
			admin.GET("/tests/:id/results", adminHandler.Results)
			admin.GET("/tests/:id/results/chart", adminHandler.ResultsChart)
		}
	}

	return router
}
