package model

import "time"

// BestRetestSummary 学生某试卷重测的最佳成绩汇总，完全由 attempt_records 推导，可重复计算
// swagger:model BestRetestSummary
type BestRetestSummary struct {
	BaseModel

	StudentID    uint `gorm:"uniqueIndex:idx_best_student_test;not null" json:"studentId"`
	ParentTestID uint `gorm:"uniqueIndex:idx_best_student_test;not null" json:"parentTestId"`

	BestAttemptID     string    `gorm:"size:36" json:"bestAttemptId"`
	BestAttemptNumber int       `json:"bestAttemptNumber"`
	BestScore         float64   `json:"bestScore"`
	BestMaxScore      float64   `json:"bestMaxScore"`
	BestPercentage    float64   `json:"bestPercentage"`
	LastPercentage    float64   `json:"lastPercentage"`
	AttemptsTaken     int       `json:"attemptsTaken"`
	Passed            bool      `gorm:"default:false" json:"passed"`
	RefreshedAt       time.Time `json:"refreshedAt"`
}

func (BestRetestSummary) TableName() string {
	return "best_retest_summaries"
}

type SummaryTaskStatus string

const (
	SummaryTaskPending SummaryTaskStatus = "pending"
	SummaryTaskDone    SummaryTaskStatus = "done"
	SummaryTaskDead    SummaryTaskStatus = "dead"
)

// SummaryRefreshTask 与作答记录同一事务写入的 outbox 行，提交后执行，失败由后台任务重试
type SummaryRefreshTask struct {
	BaseModel

	StudentID    uint              `gorm:"index:idx_summary_task_pair;not null" json:"studentId"`
	ParentTestID uint              `gorm:"index:idx_summary_task_pair;not null" json:"parentTestId"`
	Status       SummaryTaskStatus `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	Attempts     int               `gorm:"default:0" json:"attempts"`
	LastError    string            `gorm:"type:text" json:"lastError"`
	ProcessedAt  *time.Time        `json:"processedAt,omitempty"`
}

func (SummaryRefreshTask) TableName() string {
	return "summary_refresh_tasks"
}
