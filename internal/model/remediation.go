package model

import "time"

const DefaultPassingThreshold = 50.0

type RetestStatus string

const (
	RetestInProgress RetestStatus = "IN_PROGRESS"
	RetestPassed     RetestStatus = "PASSED"
	RetestFailed     RetestStatus = "FAILED"
)

func (s RetestStatus) IsTerminal() bool {
	return s == RetestPassed || s == RetestFailed
}

// RemediationAssignment 教师布置的重测任务，创建后只允许教师编辑
// swagger:model RemediationAssignment
type RemediationAssignment struct {
	BaseModel

	TestID           uint      `gorm:"index;not null" json:"testId"`
	TeacherID        uint      `gorm:"index" json:"teacherId"`
	Title            string    `gorm:"size:255" json:"title"`
	MaxAttempts      int       `gorm:"default:1" json:"maxAttempts"`
	WindowStart      time.Time `gorm:"not null" json:"windowStart"`
	WindowEnd        time.Time `gorm:"not null" json:"windowEnd"`
	PassingThreshold float64   `gorm:"default:50" json:"passingThreshold"`
}

func (RemediationAssignment) TableName() string {
	return "remediation_assignments"
}

// Threshold 任务未设置及格线时用 fallback，fallback 也为 0 时用 DefaultPassingThreshold
func (a *RemediationAssignment) Threshold(fallback float64) float64 {
	if a.PassingThreshold > 0 {
		return a.PassingThreshold
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultPassingThreshold
}

// InWindow windowStart <= now <= windowEnd，两端都包含
func (a *RemediationAssignment) InWindow(now time.Time) bool {
	return !now.Before(a.WindowStart) && !now.After(a.WindowEnd)
}

// RemediationTarget 学生个人的重测记录，由布置流程预先创建，提交流程只读取和更新
// swagger:model RemediationTarget
type RemediationTarget struct {
	BaseModel

	AssignmentID uint `gorm:"uniqueIndex:idx_target_assignment_student;not null" json:"assignmentId"`
	StudentID    uint `gorm:"uniqueIndex:idx_target_assignment_student;index;not null" json:"studentId"`

	// AttemptNumber 是权威的作答指针，AttemptCount 只做镜像，两者总是一起写
	AttemptNumber int          `gorm:"not null;default:0" json:"attemptNumber"`
	AttemptCount  int          `gorm:"not null;default:0" json:"attemptCount"`
	IsCompleted   bool         `gorm:"default:false" json:"isCompleted"`
	Passed        *bool        `json:"passed"`
	Status        RetestStatus `gorm:"size:20;not null;default:'IN_PROGRESS'" json:"status"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
	LastAttemptAt *time.Time   `json:"lastAttemptAt,omitempty"`
	MaxAttempts   *int         `json:"maxAttempts,omitempty"`

	Assignment *RemediationAssignment `gorm:"foreignKey:AssignmentID" json:"assignment,omitempty"`
}

func (RemediationTarget) TableName() string {
	return "remediation_targets"
}

// EffectiveMaxAttempts 优先取学生级覆盖值，其次任务默认值，都没有时为 1
func (t *RemediationTarget) EffectiveMaxAttempts(a *RemediationAssignment) int {
	if t.MaxAttempts != nil && *t.MaxAttempts > 0 {
		return *t.MaxAttempts
	}
	if a != nil && a.MaxAttempts > 0 {
		return a.MaxAttempts
	}
	return 1
}
