package repository

import (
	"context"
	"retest_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BestSummaryRepository struct {
	DB *gorm.DB
}

func NewBestSummaryRepository(db *gorm.DB) *BestSummaryRepository {
	return &BestSummaryRepository{DB: db}
}

// Upsert 按 (student, parentTest) 插入或覆盖汇总
func (r *BestSummaryRepository) Upsert(ctx context.Context, s *model.BestRetestSummary) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "parent_test_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"best_attempt_id",
				"best_attempt_number",
				"best_score",
				"best_max_score",
				"best_percentage",
				"last_percentage",
				"attempts_taken",
				"passed",
				"refreshed_at",
				"updated_at",
			}),
		}).
		Create(s).Error
}

func (r *BestSummaryRepository) Find(ctx context.Context, studentID, parentTestID uint) (*model.BestRetestSummary, error) {
	var s model.BestRetestSummary
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND parent_test_id = ?", studentID, parentTestID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type SummaryTaskRepository struct {
	DB *gorm.DB
}

func NewSummaryTaskRepository(db *gorm.DB) *SummaryTaskRepository {
	return &SummaryTaskRepository{DB: db}
}

func (r *SummaryTaskRepository) WithTx(tx *gorm.DB) *SummaryTaskRepository {
	if tx == nil {
		return r
	}
	return &SummaryTaskRepository{DB: tx}
}

func (r *SummaryTaskRepository) Enqueue(ctx context.Context, studentID, parentTestID uint) (*model.SummaryRefreshTask, error) {
	task := &model.SummaryRefreshTask{
		StudentID:    studentID,
		ParentTestID: parentTestID,
		Status:       model.SummaryTaskPending,
	}
	if err := r.DB.WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

func (r *SummaryTaskRepository) ListPending(ctx context.Context, limit int) ([]model.SummaryRefreshTask, error) {
	var tasks []model.SummaryRefreshTask
	err := r.DB.WithContext(ctx).
		Where("status = ?", model.SummaryTaskPending).
		Order("id asc").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *SummaryTaskRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&model.SummaryRefreshTask{}).
		Where("status = ?", model.SummaryTaskPending).
		Count(&n).Error
	return n, err
}

// MarkDone 关闭该组合下 id 不大于 taskID 的所有待处理任务，一次刷新覆盖全部
func (r *SummaryTaskRepository) MarkDone(ctx context.Context, task *model.SummaryRefreshTask, at time.Time) error {
	return r.DB.WithContext(ctx).
		Model(&model.SummaryRefreshTask{}).
		Where("student_id = ? AND parent_test_id = ? AND status = ? AND id <= ?",
			task.StudentID, task.ParentTestID, model.SummaryTaskPending, task.ID).
		Updates(map[string]interface{}{
			"status":       model.SummaryTaskDone,
			"processed_at": at,
			"attempts":     gorm.Expr("attempts + 1"),
		}).Error
}

// MarkFailed 记录失败原因，超过 maxAttempts 次后标记为 dead
func (r *SummaryTaskRepository) MarkFailed(ctx context.Context, task *model.SummaryRefreshTask, cause error, maxAttempts int) error {
	status := model.SummaryTaskPending
	if task.Attempts+1 >= maxAttempts {
		status = model.SummaryTaskDead
	}
	return r.DB.WithContext(ctx).
		Model(&model.SummaryRefreshTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":     status,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
		}).Error
}

func (r *SummaryTaskRepository) FindByID(ctx context.Context, id uint) (*model.SummaryRefreshTask, error) {
	var t model.SummaryRefreshTask
	if err := r.DB.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
