package service

import (
	"context"
	"retest_backend/internal/config"
	"retest_backend/internal/model"
	"retest_backend/internal/repository"
	"retest_backend/internal/util"
	"retest_backend/pkg/logger"
	"retest_backend/pkg/monitoring"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SummaryRefresher 重建某个 (学生, 原测试) 的最佳成绩汇总
type SummaryRefresher interface {
	Refresh(ctx context.Context, studentID, parentTestID uint) (*model.BestRetestSummary, error)
}

type BestValueAggregator struct {
	Attempts  *repository.AttemptRecordRepository
	Summaries *repository.BestSummaryRepository
	Tasks     *repository.SummaryTaskRepository
	Cache     *repository.SummaryCache

	// Refresher 执行 outbox 任务，nil 时使用聚合器自身
	Refresher SummaryRefresher

	mu       sync.RWMutex
	settings config.RetestConfig
	now      func() time.Time
}

func NewBestValueAggregator(
	attempts *repository.AttemptRecordRepository,
	summaries *repository.BestSummaryRepository,
	tasks *repository.SummaryTaskRepository,
	cache *repository.SummaryCache,
	settings config.RetestConfig,
) *BestValueAggregator {
	return &BestValueAggregator{
		Attempts:  attempts,
		Summaries: summaries,
		Tasks:     tasks,
		Cache:     cache,
		settings:  settings,
		now:       time.Now,
	}
}

func (a *BestValueAggregator) UpdateSettings(cfg config.RetestConfig) {
	a.mu.Lock()
	a.settings = cfg
	a.mu.Unlock()
}

func (a *BestValueAggregator) currentSettings() config.RetestConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// PickBest 返回得分率最高的作答（并列取序号最小）和最近一次作答，recs 顺序不限
func PickBest(recs []model.AttemptRecord) (best, last *model.AttemptRecord) {
	if len(recs) == 0 {
		return nil, nil
	}
	b := lo.MaxBy(recs, func(x, cur model.AttemptRecord) bool {
		if x.Percentage != cur.Percentage {
			return x.Percentage > cur.Percentage
		}
		return x.AttemptNumber < cur.AttemptNumber
	})
	l := lo.MaxBy(recs, func(x, cur model.AttemptRecord) bool {
		return x.AttemptNumber > cur.AttemptNumber
	})
	return &b, &l
}

// Refresh 根据作答记录重新计算汇总并写入，重复执行结果相同
func (a *BestValueAggregator) Refresh(ctx context.Context, studentID, parentTestID uint) (*model.BestRetestSummary, error) {
	recs, err := a.Attempts.ListByStudentAndTest(ctx, studentID, parentTestID)
	if err != nil {
		return nil, util.Persistence("list attempt records", err)
	}
	best, last := PickBest(recs)
	if best == nil {
		return nil, util.ErrNotFound
	}

	summary := &model.BestRetestSummary{
		StudentID:         studentID,
		ParentTestID:      parentTestID,
		BestAttemptID:     best.ID,
		BestAttemptNumber: best.AttemptNumber,
		BestScore:         best.Score,
		BestMaxScore:      best.MaxScore,
		BestPercentage:    best.Percentage,
		LastPercentage:    last.Percentage,
		AttemptsTaken:     len(recs),
		Passed:            lo.SomeBy(recs, func(r model.AttemptRecord) bool { return r.Passed }),
		RefreshedAt:       a.now(),
	}
	if err := a.Summaries.Upsert(ctx, summary); err != nil {
		return nil, util.Persistence("upsert best summary", err)
	}

	if err := a.Cache.Set(ctx, summary); err != nil {
		logger.Log.Warn("Failed to cache best summary",
			zap.Uint("studentID", studentID),
			zap.Uint("parentTestID", parentTestID),
			zap.Error(err))
	}
	return summary, nil
}

// Enqueue 在 tx 中写入 outbox 行，提交后到同步刷新之间崩溃也不会丢
func (a *BestValueAggregator) Enqueue(ctx context.Context, tx *gorm.DB, studentID, parentTestID uint) (*model.SummaryRefreshTask, error) {
	task, err := a.Tasks.WithTx(tx).Enqueue(ctx, studentID, parentTestID)
	if err != nil {
		return nil, util.Persistence("enqueue summary refresh", err)
	}
	return task, nil
}

// RunTask 刷新任务对应的组合。失败时任务保持 pending（次数过多则标记 dead）并返回错误
func (a *BestValueAggregator) RunTask(ctx context.Context, task *model.SummaryRefreshTask) error {
	refresher := a.Refresher
	if refresher == nil {
		refresher = a
	}

	_, err := refresher.Refresh(ctx, task.StudentID, task.ParentTestID)
	if err == nil {
		if markErr := a.Tasks.MarkDone(ctx, task, a.now()); markErr != nil {
			return util.Persistence("mark summary task done", markErr)
		}
		return nil
	}

	monitoring.SummaryRefreshFailures.Inc()
	if cacheErr := a.Cache.Invalidate(ctx, task.StudentID, task.ParentTestID); cacheErr != nil {
		logger.Log.Warn("Failed to invalidate best summary cache", zap.Error(cacheErr))
	}
	if markErr := a.Tasks.MarkFailed(ctx, task, err, a.currentSettings().OutboxMaxAttempts); markErr != nil {
		logger.Log.Error("Failed to record summary refresh failure",
			zap.Uint("taskID", task.ID),
			zap.Error(markErr))
	}
	return err
}

// DrainPending 最多执行一批待处理任务，返回成功数量
func (a *BestValueAggregator) DrainPending(ctx context.Context) (int, error) {
	batch := a.currentSettings().OutboxBatchSize
	if batch <= 0 {
		batch = 50
	}

	tasks, err := a.Tasks.ListPending(ctx, batch)
	if err != nil {
		return 0, util.Persistence("list pending summary tasks", err)
	}

	done := 0
	for i := range tasks {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		// 同组合更早的任务可能已经顺带关闭了这一条
		current, err := a.Tasks.FindByID(ctx, tasks[i].ID)
		if err != nil || current.Status != model.SummaryTaskPending {
			continue
		}
		if err := a.RunTask(ctx, current); err != nil {
			logger.Log.Warn("Summary refresh retry failed",
				zap.Uint("taskID", current.ID),
				zap.Uint("studentID", current.StudentID),
				zap.Uint("parentTestID", current.ParentTestID),
				zap.Int("attempts", current.Attempts+1),
				zap.Error(err))
			continue
		}
		done++
	}

	if pending, err := a.Tasks.CountPending(ctx); err == nil {
		monitoring.SummaryOutboxPending.Set(float64(pending))
	}
	return done, nil
}

// Start 每隔 retest.outbox_interval 处理一次 outbox，直到 ctx 结束
func (a *BestValueAggregator) Start(ctx context.Context) {
	go func() {
		for {
			interval := a.currentSettings().OutboxInterval
			if interval <= 0 {
				interval = 30 * time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
			if n, err := a.DrainPending(ctx); err != nil {
				logger.Log.Error("Summary outbox drain failed", zap.Error(err))
			} else if n > 0 {
				logger.Log.Info("Summary outbox drained", zap.Int("refreshed", n))
			}
		}
	}()
}

// Get 先查缓存再查表，有作答记录但还没有汇总时当场重建
func (a *BestValueAggregator) Get(ctx context.Context, studentID, parentTestID uint) (*model.BestRetestSummary, error) {
	if s, ok := a.Cache.Get(ctx, studentID, parentTestID); ok {
		return s, nil
	}

	s, err := a.Summaries.Find(ctx, studentID, parentTestID)
	if err == nil {
		if cacheErr := a.Cache.Set(ctx, s); cacheErr != nil {
			logger.Log.Warn("Failed to cache best summary", zap.Error(cacheErr))
		}
		return s, nil
	}
	if !repository.IsNotFound(err) {
		return nil, util.Persistence("find best summary", err)
	}
	return a.Refresh(ctx, studentID, parentTestID)
}
