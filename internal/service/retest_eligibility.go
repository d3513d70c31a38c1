package service

import (
	"context"
	"retest_backend/internal/model"
	"retest_backend/internal/repository"
	"retest_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

// RetestEligibility 已加锁的目标与所属任务
type RetestEligibility struct {
	Target               *model.RemediationTarget
	Assignment           *model.RemediationAssignment
	EffectiveMaxAttempts int
}

type RetestEligibilityChecker struct {
	Repo *repository.RemediationRepository
}

func NewRetestEligibilityChecker(repo *repository.RemediationRepository) *RetestEligibilityChecker {
	return &RetestEligibilityChecker{Repo: repo}
}

// Load 加行锁读取目标及其任务，tx 必须是提交所在的事务
func (c *RetestEligibilityChecker) Load(ctx context.Context, tx *gorm.DB, assignmentID, studentID uint) (*RetestEligibility, error) {
	repo := c.Repo.WithTx(tx)

	target, err := repo.FindTargetForUpdate(ctx, assignmentID, studentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrNotAssigned
		}
		return nil, util.Persistence("load remediation target", err)
	}

	assignment, err := repo.FindAssignment(ctx, target.AssignmentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrNotAssigned
		}
		return nil, util.Persistence("load remediation assignment", err)
	}
	target.Assignment = assignment

	return &RetestEligibility{
		Target:               target,
		Assignment:           assignment,
		EffectiveMaxAttempts: target.EffectiveMaxAttempts(assignment),
	}, nil
}

// EvaluateEligibility 先判断时间窗口，再判断次数和完成状态。
// 用完次数且未及格的目标即使已标记为 FAILED 也返回次数用尽
func EvaluateEligibility(e *RetestEligibility, now time.Time) error {
	if e == nil || e.Target == nil || e.Assignment == nil {
		return util.ErrNotAssigned
	}
	if !e.Assignment.InWindow(now) {
		return util.ErrWindowClosed
	}
	exhausted := e.Target.AttemptNumber >= e.EffectiveMaxAttempts
	if exhausted && e.Target.Status != model.RetestPassed {
		return util.ErrAttemptsExhausted
	}
	if e.Target.IsCompleted || exhausted {
		return util.ErrAlreadyCompleted
	}
	return nil
}

func (c *RetestEligibilityChecker) Check(ctx context.Context, tx *gorm.DB, assignmentID, studentID uint, now time.Time) (*RetestEligibility, error) {
	e, err := c.Load(ctx, tx, assignmentID, studentID)
	if err != nil {
		return nil, err
	}
	if err := EvaluateEligibility(e, now); err != nil {
		return nil, err
	}
	return e, nil
}
