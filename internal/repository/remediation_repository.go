package repository

import (
	"context"
	"retest_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RemediationRepository struct {
	DB *gorm.DB
}

func NewRemediationRepository(db *gorm.DB) *RemediationRepository {
	return &RemediationRepository{DB: db}
}

// WithTx 返回绑定到 tx 的副本，tx 为 nil 时沿用当前连接
func (r *RemediationRepository) WithTx(tx *gorm.DB) *RemediationRepository {
	if tx == nil {
		return r
	}
	return &RemediationRepository{DB: tx}
}

func (r *RemediationRepository) CreateAssignment(ctx context.Context, a *model.RemediationAssignment) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

func (r *RemediationRepository) CreateTarget(ctx context.Context, t *model.RemediationTarget) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *RemediationRepository) FindAssignment(ctx context.Context, id uint) (*model.RemediationAssignment, error) {
	var a model.RemediationAssignment
	if err := r.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *RemediationRepository) FindTarget(ctx context.Context, assignmentID, studentID uint) (*model.RemediationTarget, error) {
	var t model.RemediationTarget
	err := r.DB.WithContext(ctx).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTargetForUpdate 锁定目标行直到事务结束，必须在 WithTx 绑定的仓库上调用
func (r *RemediationRepository) FindTargetForUpdate(ctx context.Context, assignmentID, studentID uint) (*model.RemediationTarget, error) {
	var t model.RemediationTarget
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type TargetUpdate struct {
	AttemptNumber int
	Passed        bool
	IsCompleted   bool
	Status        model.RetestStatus
	CompletedAt   *time.Time
	LastAttemptAt time.Time
}

// CompareAndSwapTarget 仅当行上仍是 expectedAttemptNumber 时写入，返回影响行数，0 表示已被其他写入抢先
func (r *RemediationRepository) CompareAndSwapTarget(ctx context.Context, targetID uint, expectedAttemptNumber int, u TargetUpdate) (int64, error) {
	updates := map[string]interface{}{
		"attempt_number":  u.AttemptNumber,
		"attempt_count":   u.AttemptNumber,
		"passed":          u.Passed,
		"is_completed":    u.IsCompleted,
		"status":          u.Status,
		"last_attempt_at": u.LastAttemptAt,
	}
	if u.CompletedAt != nil {
		updates["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", *u.CompletedAt)
	}

	res := r.DB.WithContext(ctx).
		Model(&model.RemediationTarget{}).
		Where("id = ? AND attempt_number = ?", targetID, expectedAttemptNumber).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *RemediationRepository) ListTargetsByStudent(ctx context.Context, studentID uint) ([]model.RemediationTarget, error) {
	var targets []model.RemediationTarget
	err := r.DB.WithContext(ctx).
		Preload("Assignment").
		Where("student_id = ?", studentID).
		Order("created_at desc").
		Find(&targets).Error
	return targets, err
}

type AssignmentTargetRow struct {
	model.RemediationTarget
	StudentName  string `json:"studentName"`
	StudentEmail string `json:"studentEmail"`
}

func (r *RemediationRepository) ListTargetsByAssignment(ctx context.Context, assignmentID uint, page, limit int) ([]AssignmentTargetRow, int64, error) {
	var total int64
	base := r.DB.WithContext(ctx).Model(&model.RemediationTarget{}).Where("assignment_id = ?", assignmentID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []AssignmentTargetRow
	err := r.DB.WithContext(ctx).
		Table("remediation_targets t").
		Select("t.*, u.name AS student_name, u.email AS student_email").
		Joins("LEFT JOIN users u ON u.id = t.student_id").
		Where("t.assignment_id = ? AND t.deleted_at IS NULL", assignmentID).
		Order("t.id asc").
		Offset((page - 1) * limit).
		Limit(limit).
		Scan(&rows).Error
	return rows, total, err
}
