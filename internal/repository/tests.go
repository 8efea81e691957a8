package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/database"
	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
)

func CreateTest(ctx context.Context, test *models.Test) error {
	return database.DB.WithContext(ctx).Create(test).Error
}

func GetTest(ctx context.Context, id uuid.UUID) (*models.Test, error) {
	var test models.Test
	result := database.DB.WithContext(ctx).First(&test, "id = ?", id)
	return &test, result.Error
}

func ListTests(ctx context.Context) ([]models.Test, error) {
	var tests []models.Test
	err := database.DB.WithContext(ctx).Order("created_at DESC").Find(&tests).Error
	return tests, err
}

func UpdateTestStatus(ctx context.Context, id uuid.UUID, status models.TestStatus) error {
	return database.DB.WithContext(ctx).Model(&models.Test{}).Where("id = ?", id).Update("status", status).Error
}

// ReopenDeployment rewrites the deployment window and flips the test back to
// deployed, used when missed students get a second window.
func ReopenDeployment(ctx context.Context, id uuid.UUID, start, end time.Time) error {
	test, err := GetTest(ctx, id)
	if err != nil {
		return err
	}
	dep := test.Deployment.Data()
	dep.StartTime = start
	dep.EndTime = end
	test.Deployment = datatypes.NewJSONType(dep)
	test.Status = models.TestDeployed
	return database.DB.WithContext(ctx).Model(test).
		Updates(map[string]interface{}{"deployment": test.Deployment, "status": test.Status}).Error
}

// CloseExpiredTests marks deployed tests whose window has ended as completed
// and returns how many were closed. The end time lives inside the deployment
// JSON document, so the filter runs in Go over the (small) deployed set.
func CloseExpiredTests(ctx context.Context, now time.Time) (int, error) {
	var deployed []models.Test
	if err := database.DB.WithContext(ctx).Where("status = ?", models.TestDeployed).Find(&deployed).Error; err != nil {
		return 0, err
	}

	closed := 0
	for _, t := range deployed {
		if !t.WindowClosed(now) {
			continue
		}
		if err := UpdateTestStatus(ctx, t.ID, models.TestCompleted); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}
