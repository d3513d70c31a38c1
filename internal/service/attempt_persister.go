package service

import (
	"context"
	"retest_backend/internal/model"
	"retest_backend/internal/repository"
	"retest_backend/internal/util"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const attemptInsertSavepoint = "attempt_insert"

type PersistInput struct {
	StudentID     uint
	ParentTestID  uint
	TestID        uint
	AssignmentID  uint
	AttemptNumber int

	Score      float64
	MaxScore   float64
	Percentage float64
	Passed     bool

	Answers               model.AnswerPayload
	TimeTaken             int
	StartedAt             *time.Time
	SubmittedAt           *time.Time
	IsCompleted           bool
	CaughtCheating        bool
	VisibilityChangeTimes datatypes.JSON
	SubmissionKey         string

	StudentName  string
	StudentEmail string
	TestTitle    string
}

type AttemptScorePersister struct {
	Attempts *repository.AttemptRecordRepository
}

func NewAttemptScorePersister(attempts *repository.AttemptRecordRepository) *AttemptScorePersister {
	return &AttemptScorePersister{Attempts: attempts}
}

// Persist 写入该序号的作答记录；序号已被占用时原样返回已有记录，bool 为 true
func (p *AttemptScorePersister) Persist(ctx context.Context, tx *gorm.DB, in PersistInput) (*model.AttemptRecord, bool, error) {
	repo := p.Attempts.WithTx(tx)

	existing, err := repo.FindBySlot(ctx, in.StudentID, in.ParentTestID, in.AttemptNumber)
	if err == nil {
		return existing, true, nil
	}
	if !repository.IsNotFound(err) {
		return nil, false, util.Persistence("find attempt record", err)
	}

	rec := newAttemptRecord(in)

	// postgres 上 INSERT 失败会中止整个事务，必须先回滚到保存点
	if err := tx.SavePoint(attemptInsertSavepoint).Error; err != nil {
		return nil, false, util.Persistence("savepoint attempt insert", err)
	}
	if err := repo.Create(ctx, rec); err != nil {
		if !repository.IsDuplicateKey(err) {
			return nil, false, util.Persistence("insert attempt record", err)
		}
		if rbErr := tx.RollbackTo(attemptInsertSavepoint).Error; rbErr != nil {
			return nil, false, util.Persistence("rollback attempt insert", rbErr)
		}
		winner, findErr := repo.FindBySlot(ctx, in.StudentID, in.ParentTestID, in.AttemptNumber)
		if findErr != nil {
			return nil, false, util.Persistence("reload attempt record", findErr)
		}
		return winner, true, nil
	}
	return rec, false, nil
}

func newAttemptRecord(in PersistInput) *model.AttemptRecord {
	rec := &model.AttemptRecord{
		StudentID:             in.StudentID,
		ParentTestID:          in.ParentTestID,
		AttemptNumber:         in.AttemptNumber,
		TestID:                in.TestID,
		RetestAssignmentID:    in.AssignmentID,
		Score:                 in.Score,
		MaxScore:              in.MaxScore,
		Percentage:            in.Percentage,
		Passed:                in.Passed,
		Answers:               datatypes.NewJSONType(in.Answers),
		TimeTaken:             in.TimeTaken,
		StartedAt:             in.StartedAt,
		SubmittedAt:           in.SubmittedAt,
		IsCompleted:           in.IsCompleted,
		CaughtCheating:        in.CaughtCheating,
		VisibilityChangeTimes: in.VisibilityChangeTimes,
		StudentName:           in.StudentName,
		StudentEmail:          in.StudentEmail,
		TestTitle:             in.TestTitle,
	}
	if in.SubmissionKey != "" {
		key := in.SubmissionKey
		rec.SubmissionKey = &key
	}
	return rec
}
