package model

import (
	"time"

	"gorm.io/datatypes"
)

// AttemptRecord 重测每次提交的明细，(student_id, parent_test_id, attempt_number) 唯一
// swagger:model AttemptRecord
type AttemptRecord struct {
	UUIDBase

	StudentID          uint `gorm:"uniqueIndex:idx_attempt_slot;index:idx_attempt_student_test;not null" json:"studentId"`
	ParentTestID       uint `gorm:"uniqueIndex:idx_attempt_slot;index:idx_attempt_student_test;not null" json:"parentTestId"`
	AttemptNumber      int  `gorm:"uniqueIndex:idx_attempt_slot;not null" json:"attemptNumber"`
	TestID             uint `gorm:"index;not null" json:"testId"`
	RetestAssignmentID uint `gorm:"index" json:"retestAssignmentId"`

	Score      float64 `json:"score"`
	MaxScore   float64 `json:"maxScore"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `gorm:"default:false" json:"passed"`

	Answers               datatypes.JSONType[AnswerPayload] `json:"answers"`
	TimeTaken             int                               `json:"timeTaken"`
	StartedAt             *time.Time                        `json:"startedAt,omitempty"`
	SubmittedAt           *time.Time                        `json:"submittedAt,omitempty"`
	IsCompleted           bool                              `gorm:"default:false" json:"isCompleted"`
	CaughtCheating        bool                              `gorm:"default:false" json:"caughtCheating"`
	VisibilityChangeTimes datatypes.JSON                    `json:"visibilityChangeTimes,omitempty"`

	// SubmissionKey 客户端传来的 Idempotency-Key，可为空
	SubmissionKey *string `gorm:"size:64;index" json:"-"`

	// 冗余字段，供报表直接读取
	StudentName  string `gorm:"size:100" json:"studentName"`
	StudentEmail string `gorm:"size:100" json:"studentEmail"`
	TestTitle    string `gorm:"size:255" json:"testTitle"`
}

func (AttemptRecord) TableName() string {
	return "attempt_records"
}
