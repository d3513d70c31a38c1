package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"retest_backend/internal/model"
	"retest_backend/internal/repository"
	"retest_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var repoNow = time.Date(2025, 4, 14, 8, 30, 0, 0, time.UTC)

func seed(t *testing.T) (*gorm.DB, *testutil.RetestFixture) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	fx := testutil.SeedRetest(t, db, testutil.RetestOptions{
		MaxAttempts: 3,
		WindowStart: repoNow.Add(-time.Hour),
		WindowEnd:   repoNow.Add(time.Hour),
	})
	return db, fx
}

func attempt(fx *testutil.RetestFixture, n int) *model.AttemptRecord {
	return &model.AttemptRecord{
		StudentID:     fx.Student.ID,
		ParentTestID:  fx.Test.ID,
		TestID:        fx.Test.ID,
		AttemptNumber: n,
		Score:         float64(n),
		MaxScore:      10,
		Percentage:    float64(n * 10),
		Answers:       datatypes.NewJSONType(model.FlatAnswers(nil)),
	}
}

func TestAttemptSlotIsUnique(t *testing.T) {
	db, fx := seed(t)
	repo := repository.NewAttemptRecordRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, attempt(fx, 1)))
	err := repo.Create(ctx, attempt(fx, 1))
	require.Error(t, err)
	assert.True(t, repository.IsDuplicateKey(err))
	assert.False(t, repository.IsNotFound(err))

	n, err := repo.CountByStudentAndTest(ctx, fx.Student.ID, fx.Test.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestIsDuplicateKey(t *testing.T) {
	assert.False(t, repository.IsDuplicateKey(nil))
	assert.True(t, repository.IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, repository.IsDuplicateKey(errors.New("Error 1062 (23000): Duplicate entry '1-2-3' for key 'idx_attempt_slot'")))
	assert.True(t, repository.IsDuplicateKey(errors.New(`ERROR: duplicate key value violates unique constraint "idx_attempt_slot"`)))
	assert.False(t, repository.IsDuplicateKey(errors.New("connection refused")))
}

func TestMaxAttemptNumberAndListing(t *testing.T) {
	db, fx := seed(t)
	repo := repository.NewAttemptRecordRepository(db)
	ctx := context.Background()

	n, err := repo.MaxAttemptNumber(ctx, fx.Student.ID, fx.Test.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, slot := range []int{3, 1} {
		require.NoError(t, repo.Create(ctx, attempt(fx, slot)))
	}

	n, err = repo.MaxAttemptNumber(ctx, fx.Student.ID, fx.Test.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recs, err := repo.ListByStudentAndTest(ctx, fx.Student.ID, fx.Test.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].AttemptNumber)
	assert.Equal(t, 3, recs[1].AttemptNumber)

	rec, err := repo.FindBySlot(ctx, fx.Student.ID, fx.Test.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 30.0, rec.Percentage)

	_, err = repo.FindBySlot(ctx, fx.Student.ID, fx.Test.ID, 2)
	assert.True(t, repository.IsNotFound(err))
}

func TestFindBySubmissionKey(t *testing.T) {
	db, fx := seed(t)
	repo := repository.NewAttemptRecordRepository(db)
	ctx := context.Background()

	key := "b7c4e1"
	rec := attempt(fx, 1)
	rec.SubmissionKey = &key
	rec.RetestAssignmentID = fx.Assignment.ID
	require.NoError(t, repo.Create(ctx, rec))

	found, err := repo.FindBySubmissionKey(ctx, fx.Student.ID, fx.Test.ID, fx.Assignment.ID, key)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)

	_, err = repo.FindBySubmissionKey(ctx, fx.Teacher.ID, fx.Test.ID, fx.Assignment.ID, key)
	assert.True(t, repository.IsNotFound(err))

	// the same key under another assignment of the same test is a new submission
	_, err = repo.FindBySubmissionKey(ctx, fx.Student.ID, fx.Test.ID, fx.Assignment.ID+1, key)
	assert.True(t, repository.IsNotFound(err))
}

func TestCompareAndSwapTarget(t *testing.T) {
	db, fx := seed(t)
	repo := repository.NewRemediationRepository(db)
	ctx := context.Background()

	first := repoNow
	rows, err := repo.CompareAndSwapTarget(ctx, fx.Target.ID, 0, repository.TargetUpdate{
		AttemptNumber: 3,
		Passed:        true,
		IsCompleted:   true,
		Status:        model.RetestPassed,
		CompletedAt:   &first,
		LastAttemptAt: first,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	// wrong expected pointer leaves the row alone
	rows, err = repo.CompareAndSwapTarget(ctx, fx.Target.ID, 0, repository.TargetUpdate{AttemptNumber: 1, Status: model.RetestInProgress})
	require.NoError(t, err)
	assert.Zero(t, rows)

	// completed_at is written once
	later := repoNow.Add(time.Hour)
	rows, err = repo.CompareAndSwapTarget(ctx, fx.Target.ID, 3, repository.TargetUpdate{
		AttemptNumber: 3,
		Passed:        true,
		IsCompleted:   true,
		Status:        model.RetestPassed,
		CompletedAt:   &later,
		LastAttemptAt: later,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	stored := testutil.ReloadTarget(t, db, fx.Target.ID)
	assert.Equal(t, 3, stored.AttemptNumber)
	assert.Equal(t, 3, stored.AttemptCount)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(first))
	require.NotNil(t, stored.LastAttemptAt)
	assert.True(t, stored.LastAttemptAt.Equal(later))
}

func TestFindTargetForUpdateInsideTransaction(t *testing.T) {
	db, fx := seed(t)
	repo := repository.NewRemediationRepository(db)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		target, err := repo.WithTx(tx).FindTargetForUpdate(ctx, fx.Assignment.ID, fx.Student.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, fx.Target.ID, target.ID)
		return nil
	})
	require.NoError(t, err)

	_, err = repo.FindTarget(ctx, fx.Assignment.ID, fx.Teacher.ID)
	assert.True(t, repository.IsNotFound(err))
}

func TestBestSummaryUpsert(t *testing.T) {
	db, fx := seed(t)
	repo := repository.NewBestSummaryRepository(db)
	ctx := context.Background()

	s := &model.BestRetestSummary{
		StudentID:      fx.Student.ID,
		ParentTestID:   fx.Test.ID,
		BestAttemptID:  "a1",
		BestPercentage: 40,
		AttemptsTaken:  1,
		RefreshedAt:    repoNow,
	}
	require.NoError(t, repo.Upsert(ctx, s))

	s2 := &model.BestRetestSummary{
		StudentID:      fx.Student.ID,
		ParentTestID:   fx.Test.ID,
		BestAttemptID:  "a2",
		BestPercentage: 90,
		AttemptsTaken:  2,
		Passed:         true,
		RefreshedAt:    repoNow.Add(time.Minute),
	}
	require.NoError(t, repo.Upsert(ctx, s2))

	var n int64
	require.NoError(t, db.Model(&model.BestRetestSummary{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	found, err := repo.Find(ctx, fx.Student.ID, fx.Test.ID)
	require.NoError(t, err)
	assert.Equal(t, "a2", found.BestAttemptID)
	assert.Equal(t, 90.0, found.BestPercentage)
	assert.Equal(t, 2, found.AttemptsTaken)
	assert.True(t, found.Passed)
}

func TestSummaryTaskLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewSummaryTaskRepository(db)
	ctx := context.Background()

	a, err := repo.Enqueue(ctx, 1, 2)
	require.NoError(t, err)
	b, err := repo.Enqueue(ctx, 1, 2)
	require.NoError(t, err)
	c, err := repo.Enqueue(ctx, 3, 2)
	require.NoError(t, err)

	pending, err := repo.ListPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)

	require.NoError(t, repo.MarkFailed(ctx, c, errors.New("boom"), 1))
	dead, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SummaryTaskDead, dead.Status)
	assert.Equal(t, "boom", dead.LastError)

	require.NoError(t, repo.MarkDone(ctx, b, repoNow))
	for _, id := range []uint{a.ID, b.ID} {
		task, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.SummaryTaskDone, task.Status)
	}

	n, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSummaryCacheWithoutRedis(t *testing.T) {
	ctx := context.Background()
	s := &model.BestRetestSummary{StudentID: 1, ParentTestID: 2}

	var nilCache *repository.SummaryCache
	assert.NoError(t, nilCache.Set(ctx, s))
	assert.NoError(t, nilCache.Invalidate(ctx, 1, 2))
	_, ok := nilCache.Get(ctx, 1, 2)
	assert.False(t, ok)

	disabled := repository.NewSummaryCache(nil, time.Minute)
	assert.NoError(t, disabled.Set(ctx, s))
	_, ok = disabled.Get(ctx, 1, 2)
	assert.False(t, ok)
}

func TestDirectoryLookups(t *testing.T) {
	db, fx := seed(t)
	dir := repository.NewDirectoryRepository(db)
	ctx := context.Background()

	u, err := dir.FindUser(ctx, fx.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, fx.Student.Email, u.Email)

	test, err := dir.FindTest(ctx, fx.Test.ID)
	require.NoError(t, err)
	assert.Equal(t, fx.Test.Title, test.Title)

	_, err = dir.FindUser(ctx, fx.Student.ID+500)
	assert.True(t, repository.IsNotFound(err))
}
