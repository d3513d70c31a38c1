package repository

import (
	"context"
	"retest_backend/internal/model"

	"gorm.io/gorm"
)

// DirectoryRepository 读取其他服务维护的用户和测试，只为把展示字段冗余到成绩行
type DirectoryRepository struct {
	DB *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{DB: db}
}

func (r *DirectoryRepository) WithTx(tx *gorm.DB) *DirectoryRepository {
	if tx == nil {
		return r
	}
	return &DirectoryRepository{DB: tx}
}

func (r *DirectoryRepository) FindUser(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := r.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *DirectoryRepository) FindTest(ctx context.Context, id uint) (*model.Test, error) {
	var t model.Test
	if err := r.DB.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
