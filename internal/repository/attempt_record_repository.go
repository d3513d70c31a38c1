package repository

import (
	"context"
	"errors"
	"retest_backend/internal/model"
	"strings"

	"gorm.io/gorm"
)

type AttemptRecordRepository struct {
	DB *gorm.DB
}

func NewAttemptRecordRepository(db *gorm.DB) *AttemptRecordRepository {
	return &AttemptRecordRepository{DB: db}
}

func (r *AttemptRecordRepository) WithTx(tx *gorm.DB) *AttemptRecordRepository {
	if tx == nil {
		return r
	}
	return &AttemptRecordRepository{DB: tx}
}

// MaxAttemptNumber 已记录的最大作答序号，没有记录时为 0
func (r *AttemptRecordRepository) MaxAttemptNumber(ctx context.Context, studentID, parentTestID uint) (int, error) {
	var n int
	err := r.DB.WithContext(ctx).
		Model(&model.AttemptRecord{}).
		Where("student_id = ? AND parent_test_id = ?", studentID, parentTestID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&n).Error
	return n, err
}

func (r *AttemptRecordRepository) FindBySlot(ctx context.Context, studentID, parentTestID uint, attemptNumber int) (*model.AttemptRecord, error) {
	var rec model.AttemptRecord
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND parent_test_id = ? AND attempt_number = ?", studentID, parentTestID, attemptNumber).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindBySubmissionKey 按幂等键查找同一重测任务下已写入的记录，键只在单个任务内有效
func (r *AttemptRecordRepository) FindBySubmissionKey(ctx context.Context, studentID, parentTestID, assignmentID uint, key string) (*model.AttemptRecord, error) {
	var rec model.AttemptRecord
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND parent_test_id = ? AND retest_assignment_id = ? AND submission_key = ?",
			studentID, parentTestID, assignmentID, key).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *AttemptRecordRepository) Create(ctx context.Context, rec *model.AttemptRecord) error {
	return r.DB.WithContext(ctx).Create(rec).Error
}

func (r *AttemptRecordRepository) ListByStudentAndTest(ctx context.Context, studentID, parentTestID uint) ([]model.AttemptRecord, error) {
	var recs []model.AttemptRecord
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND parent_test_id = ?", studentID, parentTestID).
		Order("attempt_number asc").
		Find(&recs).Error
	return recs, err
}

func (r *AttemptRecordRepository) CountByStudentAndTest(ctx context.Context, studentID, parentTestID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&model.AttemptRecord{}).
		Where("student_id = ? AND parent_test_id = ?", studentID, parentTestID).
		Count(&count).Error
	return count, err
}

// IsDuplicateKey 是否违反唯一约束，未开启错误转换的驱动按错误信息匹配
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "duplicate") || strings.Contains(low, "unique")
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
