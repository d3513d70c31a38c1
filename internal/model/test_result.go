package model

import (
	"time"

	"gorm.io/datatypes"
)

// TestResult 普通（非重测）提交，每次提交一行，不计作答次数
// swagger:model TestResult
type TestResult struct {
	UUIDBase

	StudentID  uint    `gorm:"index;not null" json:"studentId"`
	TestID     uint    `gorm:"index;not null" json:"testId"`
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"maxScore"`
	Percentage float64 `json:"percentage"`

	Answers               datatypes.JSONType[AnswerPayload] `json:"answers"`
	TimeTaken             int                               `json:"timeTaken"`
	StartedAt             *time.Time                        `json:"startedAt,omitempty"`
	SubmittedAt           *time.Time                        `json:"submittedAt,omitempty"`
	IsCompleted           bool                              `gorm:"default:false" json:"isCompleted"`
	CaughtCheating        bool                              `gorm:"default:false" json:"caughtCheating"`
	VisibilityChangeTimes datatypes.JSON                    `json:"visibilityChangeTimes,omitempty"`

	StudentName  string `gorm:"size:100" json:"studentName"`
	StudentEmail string `gorm:"size:100" json:"studentEmail"`
	TestTitle    string `gorm:"size:255" json:"testTitle"`
}

func (TestResult) TableName() string {
	return "test_results"
}
