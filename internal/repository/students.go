package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/database"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
)

func CreateStudent(ctx context.Context, student *models.Student) error {
	return database.DB.WithContext(ctx).Create(student).Error
}

func GetStudentByID(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var student models.Student
	result := database.DB.WithContext(ctx).First(&student, "id = ?", id)
	return &student, result.Error
}

func GetStudentByPhone(ctx context.Context, phone string) (*models.Student, error) {
	var student models.Student
	result := database.DB.WithContext(ctx).First(&student, "phone = ?", phone)
	return &student, result.Error
}

func ListStudents(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	err := database.DB.WithContext(ctx).Find(&students).Error
	return students, err
}

func ListStudentsByPhones(ctx context.Context, phones []string) ([]models.Student, error) {
	var students []models.Student
	err := database.DB.WithContext(ctx).Where("phone IN ?", phones).Find(&students).Error
	return students, err
}

// RosterFor filters the full roster down to the students a deployment
// targets. Batch membership lives in a JSON column, so the match runs in Go.
func RosterFor(ctx context.Context, dep models.Deployment) ([]models.Student, error) {
	if len(dep.Students) > 0 {
		return ListStudentsByPhones(ctx, dep.Students)
	}

	all, err := ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	var roster []models.Student
	for _, s := range all {
		if s.InAnyBatch(dep.Batches) {
			roster = append(roster, s)
		}
	}
	return roster, nil
}

// ListBatchStudents returns every student in a single batch.
func ListBatchStudents(ctx context.Context, batch string) ([]models.Student, error) {
	all, err := ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Student
	for _, s := range all {
		if s.InBatch(batch) {
			out = append(out, s)
		}
	}
	return out, nil
}
