package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/database"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
)

func CreateUser(ctx context.Context, user *models.User) error {
	return database.DB.WithContext(ctx).Create(user).Error
}

func GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	result := database.DB.WithContext(ctx).First(&user, "email = ?", email)
	return &user, result.Error
}

func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	result := database.DB.WithContext(ctx).First(&user, "id = ?", id)
	return &user, result.Error
}
