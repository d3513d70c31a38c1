package repository

import (
	"context"
	"retest_backend/internal/model"

	"gorm.io/gorm"
)

type TestResultRepository struct {
	DB *gorm.DB
}

func NewTestResultRepository(db *gorm.DB) *TestResultRepository {
	return &TestResultRepository{DB: db}
}

func (r *TestResultRepository) Create(ctx context.Context, res *model.TestResult) error {
	return r.DB.WithContext(ctx).Create(res).Error
}

func (r *TestResultRepository) FindByID(ctx context.Context, id string) (*model.TestResult, error) {
	var res model.TestResult
	if err := r.DB.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}
