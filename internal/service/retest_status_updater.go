package service

import (
	"context"
	"retest_backend/internal/model"
	"retest_backend/internal/repository"
	"retest_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

type TargetTransition struct {
	Passed            bool
	NextAttemptNumber int
	Exhausted         bool
	Completes         bool
	Status            model.RetestStatus
	IsCompleted       bool
	CompletedAt       *time.Time
	LastAttemptAt     time.Time
}

// PlanTransition 计算一次评分后目标的下一个状态。作答指针只增不减，已有的 completedAt 不会被覆盖
func PlanTransition(target *model.RemediationTarget, effectiveMaxAttempts int, percentage, threshold float64, now time.Time) TargetTransition {
	passed := percentage >= threshold

	next := target.AttemptNumber + 1
	if passed {
		next = effectiveMaxAttempts
	}
	if next < target.AttemptNumber {
		next = target.AttemptNumber
	}
	exhausted := next >= effectiveMaxAttempts

	status := target.Status
	if status == "" {
		status = model.RetestInProgress
	}

	t := TargetTransition{
		Passed:            passed,
		NextAttemptNumber: next,
		Exhausted:         exhausted,
		Status:            status,
		IsCompleted:       target.IsCompleted,
		CompletedAt:       target.CompletedAt,
		LastAttemptAt:     now,
	}

	if (exhausted || passed) && status == model.RetestInProgress {
		t.Completes = true
		t.IsCompleted = true
		if passed {
			t.Status = model.RetestPassed
		} else {
			t.Status = model.RetestFailed
		}
		if t.CompletedAt == nil {
			at := now
			t.CompletedAt = &at
		}
	}
	return t
}

type RetestStatusUpdater struct {
	Repo *repository.RemediationRepository
}

func NewRetestStatusUpdater(repo *repository.RemediationRepository) *RetestStatusUpdater {
	return &RetestStatusUpdater{Repo: repo}
}

// Apply 目标仍是读取时的作答序号才写入，写入后同步到内存中的 target
func (u *RetestStatusUpdater) Apply(ctx context.Context, tx *gorm.DB, target *model.RemediationTarget, t TargetTransition) error {
	rows, err := u.Repo.WithTx(tx).CompareAndSwapTarget(ctx, target.ID, target.AttemptNumber, repository.TargetUpdate{
		AttemptNumber: t.NextAttemptNumber,
		Passed:        t.Passed,
		IsCompleted:   t.IsCompleted,
		Status:        t.Status,
		CompletedAt:   t.CompletedAt,
		LastAttemptAt: t.LastAttemptAt,
	})
	if err != nil {
		return util.Persistence("update remediation target", err)
	}
	if rows == 0 {
		return util.Persistence("update remediation target", util.ErrConcurrentUpdate)
	}

	passed := t.Passed
	last := t.LastAttemptAt
	target.AttemptNumber = t.NextAttemptNumber
	target.AttemptCount = t.NextAttemptNumber
	target.Passed = &passed
	target.IsCompleted = t.IsCompleted
	target.Status = t.Status
	target.CompletedAt = t.CompletedAt
	target.LastAttemptAt = &last
	return nil
}
