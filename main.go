package main

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/config"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/database"
	logger "github.com/rbmathsacademy/rbmathsapp-sub001/internal/logging"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/repository"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/router"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/services"
)

func main() {
	// Bootstrap logger with defaults; config may override rotation settings.
	log, err := logger.Init(logger.Options{MaxSize: 10, MaxBackups: 3, MaxAge: 7, Compress: true})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := config.Init(".", log); err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Rebuild the logger from the loaded logging section so every rotation
	// setting takes effect, not just a changed directory.
	cfg := config.Conf.Logging
	if configured, err := logger.Init(logger.Options{
		Directory:  cfg.Directory,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}); err != nil {
		log.Warn("Keeping bootstrap logger", zap.Error(err))
	} else {
		log = configured
	}

	database.Init(log)

	seed(log)

	services.NewCloser(log).Start()

	attempts := services.NewAttemptService(log)
	r := router.Setup(log, attempts)

	port := ":" + config.Conf.Server.Port
	log.Info("Server listening on http://localhost" + port)
	if err := r.Run(port); err != nil {
		log.Fatal("Failed to run Gin server", zap.Error(err))
	}
}

// seed creates the admin account and loads the question bank on first boot.
// Both are optional and controlled by the seed section of the config.
func seed(log *zap.Logger) {
	ctx := context.Background()
	cfg := config.Conf.Seed

	if cfg.AdminEmail != "" && cfg.AdminPass != "" {
		_, err := repository.GetUserByEmail(ctx, cfg.AdminEmail)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			admin := &models.User{Email: cfg.AdminEmail, Name: "Administrator"}
			if err := admin.SetPassword(cfg.AdminPass); err != nil {
				log.Error("Failed to hash seed admin password", zap.Error(err))
			} else if err := repository.CreateUser(ctx, admin); err != nil {
				log.Error("Failed to create seed admin", zap.Error(err))
			} else {
				log.Info("Seeded admin account", zap.String("email", cfg.AdminEmail))
			}
		}
	}

	if cfg.QuestionBank == "" {
		return
	}
	existing, err := repository.ListTests(ctx)
	if err != nil {
		log.Error("Failed to check existing tests", zap.Error(err))
		return
	}
	if len(existing) > 0 {
		return
	}

	bank, err := models.LoadQuestionBank(cfg.QuestionBank)
	if err != nil {
		log.Error("Failed to load question bank", zap.Error(err))
		return
	}
	for _, bt := range bank.Tests {
		status := models.TestStatus(bt.Status)
		if !status.Valid() {
			status = models.TestDraft
		}
		test := &models.Test{
			Title:      bt.Title,
			Subject:    bt.Subject,
			Status:     status,
			Pool:       datatypes.NewJSONType(bt.Questions),
			Config:     datatypes.NewJSONType(bt.Config),
			Deployment: datatypes.NewJSONType(bt.Deployment),
		}
		if err := repository.CreateTest(ctx, test); err != nil {
			log.Error("Failed to seed test", zap.String("title", bt.Title), zap.Error(err))
			continue
		}
		log.Info("Seeded test", zap.String("title", bt.Title), zap.String("status", status.String()))
	}
}
