// Package testutil 各包测试共用的数据库和测试数据
package testutil

import (
	"fmt"
	"retest_backend/internal/model"
	"retest_backend/pkg/database"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 每个测试独立的内存 sqlite，已完成迁移。
// 只保留一个连接，事务会像 mysql 行锁一样串行
func SetupTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type RetestFixture struct {
	Student    *model.User
	Teacher    *model.User
	Test       *model.Test
	Assignment *model.RemediationAssignment
	Target     *model.RemediationTarget
}

type RetestOptions struct {
	MaxAttempts      int
	TargetOverride   *int
	PassingThreshold float64
	WindowStart      time.Time
	WindowEnd        time.Time
}

// SeedRetest 创建学生、教师、测试，以及一个指向该学生的重测任务
func SeedRetest(t testing.TB, db *gorm.DB, opts RetestOptions) *RetestFixture {
	t.Helper()

	suffix := uuid.NewString()[:8]
	student := &model.User{Name: "Student " + suffix, Email: "student-" + suffix + "@example.com", Role: model.Student}
	teacher := &model.User{Name: "Teacher " + suffix, Email: "teacher-" + suffix + "@example.com", Role: model.Teacher}
	require.NoError(t, db.Create(student).Error)
	require.NoError(t, db.Create(teacher).Error)

	test := &model.Test{CreatorID: teacher.ID, Title: "Fractions " + suffix}
	require.NoError(t, db.Create(test).Error)

	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.PassingThreshold == 0 {
		opts.PassingThreshold = model.DefaultPassingThreshold
	}

	assignment := &model.RemediationAssignment{
		TestID:           test.ID,
		TeacherID:        teacher.ID,
		Title:            "Retest " + suffix,
		MaxAttempts:      opts.MaxAttempts,
		WindowStart:      opts.WindowStart,
		WindowEnd:        opts.WindowEnd,
		PassingThreshold: opts.PassingThreshold,
	}
	require.NoError(t, db.Create(assignment).Error)

	target := &model.RemediationTarget{
		AssignmentID: assignment.ID,
		StudentID:    student.ID,
		Status:       model.RetestInProgress,
		MaxAttempts:  opts.TargetOverride,
	}
	require.NoError(t, db.Create(target).Error)

	return &RetestFixture{
		Student:    student,
		Teacher:    teacher,
		Test:       test,
		Assignment: assignment,
		Target:     target,
	}
}

// ReloadTarget 从库中重新读取目标
func ReloadTarget(t testing.TB, db *gorm.DB, id uint) *model.RemediationTarget {
	t.Helper()
	var target model.RemediationTarget
	require.NoError(t, db.First(&target, id).Error)
	return &target
}
