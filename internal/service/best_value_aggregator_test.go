package service

import (
	"context"
	"testing"
	"time"

	"retest_backend/internal/model"
	"retest_backend/internal/repository"
	"retest_backend/internal/testutil"
	"retest_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestAggregator(t *testing.T) (*gorm.DB, *BestValueAggregator) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	agg := NewBestValueAggregator(
		repository.NewAttemptRecordRepository(db),
		repository.NewBestSummaryRepository(db),
		repository.NewSummaryTaskRepository(db),
		repository.NewSummaryCache(nil, time.Minute),
		testRetestConfig(),
	)
	agg.now = func() time.Time { return submitNow }
	return db, agg
}

func recordAttempt(t *testing.T, agg *BestValueAggregator, studentID, parentTestID uint, n int, score float64, passed bool) *model.AttemptRecord {
	t.Helper()
	rec := &model.AttemptRecord{
		StudentID:     studentID,
		ParentTestID:  parentTestID,
		TestID:        parentTestID,
		AttemptNumber: n,
		Score:         score,
		MaxScore:      10,
		Percentage:    CalculatePercentage(score, 10),
		Passed:        passed,
		Answers:       datatypes.NewJSONType(model.FlatAnswers(nil)),
	}
	require.NoError(t, agg.Attempts.Create(context.Background(), rec))
	return rec
}

func TestPickBest(t *testing.T) {
	recs := []model.AttemptRecord{
		{AttemptNumber: 3, Percentage: 60},
		{AttemptNumber: 1, Percentage: 60},
		{AttemptNumber: 2, Percentage: 40},
	}

	best, last := PickBest(recs)
	require.NotNil(t, best)
	assert.Equal(t, 1, best.AttemptNumber, "ties go to the earliest attempt")
	assert.Equal(t, 3, last.AttemptNumber)
	assert.Equal(t, 60.0, last.Percentage)

	best, last = PickBest(nil)
	assert.Nil(t, best)
	assert.Nil(t, last)
}

func TestRefreshIsIdempotent(t *testing.T) {
	db, agg := newTestAggregator(t)
	ctx := context.Background()

	first := recordAttempt(t, agg, 5, 9, 1, 7, false)
	recordAttempt(t, agg, 5, 9, 2, 4, false)

	s1, err := agg.Refresh(ctx, 5, 9)
	require.NoError(t, err)
	s2, err := agg.Refresh(ctx, 5, 9)
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&model.BestRetestSummary{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	stored, err := agg.Summaries.Find(ctx, 5, 9)
	require.NoError(t, err)
	for _, s := range []*model.BestRetestSummary{s1, s2, stored} {
		assert.Equal(t, first.ID, s.BestAttemptID)
		assert.Equal(t, 1, s.BestAttemptNumber)
		assert.Equal(t, 70.0, s.BestPercentage)
		assert.Equal(t, 40.0, s.LastPercentage)
		assert.Equal(t, 2, s.AttemptsTaken)
		assert.False(t, s.Passed)
	}
}

func TestRefreshPicksUpLaterPass(t *testing.T) {
	_, agg := newTestAggregator(t)
	ctx := context.Background()

	recordAttempt(t, agg, 5, 9, 1, 3, false)
	_, err := agg.Refresh(ctx, 5, 9)
	require.NoError(t, err)

	passing := recordAttempt(t, agg, 5, 9, 3, 9, true)
	s, err := agg.Refresh(ctx, 5, 9)
	require.NoError(t, err)

	assert.Equal(t, passing.ID, s.BestAttemptID)
	assert.Equal(t, 90.0, s.BestPercentage)
	assert.Equal(t, 90.0, s.LastPercentage)
	assert.True(t, s.Passed)
}

func TestRefreshWithoutAttempts(t *testing.T) {
	_, agg := newTestAggregator(t)

	_, err := agg.Refresh(context.Background(), 5, 9)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestGetRebuildsMissingSummary(t *testing.T) {
	_, agg := newTestAggregator(t)
	ctx := context.Background()

	rec := recordAttempt(t, agg, 5, 9, 1, 6, true)

	s, err := agg.Get(ctx, 5, 9)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, s.BestAttemptID)

	_, err = agg.Summaries.Find(ctx, 5, 9)
	assert.NoError(t, err)

	_, err = agg.Get(ctx, 5, 10)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestRunTaskClosesEarlierTasksForPair(t *testing.T) {
	db, agg := newTestAggregator(t)
	ctx := context.Background()

	recordAttempt(t, agg, 5, 9, 1, 6, true)
	older, err := agg.Enqueue(ctx, db, 5, 9)
	require.NoError(t, err)
	newer, err := agg.Enqueue(ctx, db, 5, 9)
	require.NoError(t, err)
	other, err := agg.Enqueue(ctx, db, 6, 9)
	require.NoError(t, err)

	require.NoError(t, agg.RunTask(ctx, newer))

	for _, id := range []uint{older.ID, newer.ID} {
		task, err := agg.Tasks.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.SummaryTaskDone, task.Status)
		require.NotNil(t, task.ProcessedAt)
	}

	untouched, err := agg.Tasks.FindByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SummaryTaskPending, untouched.Status)
}

func TestDrainPendingParksDeadTasks(t *testing.T) {
	db, agg := newTestAggregator(t)
	ctx := context.Background()

	cfg := testRetestConfig()
	cfg.OutboxMaxAttempts = 2
	agg.UpdateSettings(cfg)

	failing := &failingRefresher{}
	agg.Refresher = failing

	task, err := agg.Enqueue(ctx, db, 5, 9)
	require.NoError(t, err)

	done, err := agg.DrainPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, done)

	stored, err := agg.Tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SummaryTaskPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Contains(t, stored.LastError, "reporting store unavailable")

	_, err = agg.DrainPending(ctx)
	require.NoError(t, err)

	stored, err = agg.Tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SummaryTaskDead, stored.Status)
	assert.Equal(t, 2, stored.Attempts)

	// dead tasks are no longer picked up
	_, err = agg.DrainPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, failing.calls)

	pending, err := agg.Tasks.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestStartDrainsInBackground(t *testing.T) {
	db, agg := newTestAggregator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testRetestConfig()
	cfg.OutboxInterval = 10 * time.Millisecond
	agg.UpdateSettings(cfg)

	recordAttempt(t, agg, 5, 9, 1, 8, true)
	_, err := agg.Enqueue(context.Background(), db, 5, 9)
	require.NoError(t, err)

	agg.Start(ctx)

	assert.Eventually(t, func() bool {
		n, err := agg.Tasks.CountPending(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 20*time.Millisecond)

	s, err := agg.Summaries.Find(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.True(t, s.Passed)
}
