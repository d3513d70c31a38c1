package service

import (
	"context"
	"math"
	"retest_backend/internal/repository"
	"retest_backend/internal/util"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// CalculatePercentage 放大为整数后四舍五入，保留两位小数
// 7/9 -> 77.78.
func CalculatePercentage(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return math.Round(score/maxScore*10000) / 100
}

type AttemptSlot struct {
	AttemptNumber int
	Percentage    float64
	EarlyPass     bool
}

// ResolveAttemptSlot 确定本次提交的作答序号：及格直接占最后一个序号，否则取两个候选中较大的
func ResolveAttemptSlot(percentage, threshold float64, maxRecorded, attemptCount, effectiveMaxAttempts int) (int, bool) {
	if percentage >= threshold {
		return effectiveMaxAttempts, true
	}
	return lo.Max([]int{maxRecorded + 1, attemptCount + 1}), false
}

type ResolveInput struct {
	StudentID    uint
	ParentTestID uint
	Score        float64
	MaxScore     float64
	Threshold    float64
	Eligibility  *RetestEligibility
}

type AttemptNumberResolver struct {
	Attempts *repository.AttemptRecordRepository
}

func NewAttemptNumberResolver(attempts *repository.AttemptRecordRepository) *AttemptNumberResolver {
	return &AttemptNumberResolver{Attempts: attempts}
}

func (r *AttemptNumberResolver) Resolve(ctx context.Context, tx *gorm.DB, in ResolveInput) (AttemptSlot, error) {
	percentage := CalculatePercentage(in.Score, in.MaxScore)

	maxRecorded, err := r.Attempts.WithTx(tx).MaxAttemptNumber(ctx, in.StudentID, in.ParentTestID)
	if err != nil {
		return AttemptSlot{}, util.Persistence("read max attempt number", err)
	}

	slot, early := ResolveAttemptSlot(
		percentage,
		in.Threshold,
		maxRecorded,
		in.Eligibility.Target.AttemptCount,
		in.Eligibility.EffectiveMaxAttempts,
	)
	return AttemptSlot{AttemptNumber: slot, Percentage: percentage, EarlyPass: early}, nil
}
