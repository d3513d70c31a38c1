package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"retest_backend/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
)

// SummaryCache 最佳成绩汇总的 redis 缓存，client 为 nil 时所有调用都视为未命中
type SummaryCache struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewSummaryCache(rdb *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{Redis: rdb, TTL: ttl}
}

func summaryKey(studentID, parentTestID uint) string {
	return fmt.Sprintf("retest:best:%d:%d", studentID, parentTestID)
}

func (c *SummaryCache) Get(ctx context.Context, studentID, parentTestID uint) (*model.BestRetestSummary, bool) {
	if c == nil || c.Redis == nil {
		return nil, false
	}
	raw, err := c.Redis.Get(ctx, summaryKey(studentID, parentTestID)).Bytes()
	if err != nil {
		return nil, false
	}
	var s model.BestRetestSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

func (c *SummaryCache) Set(ctx context.Context, s *model.BestRetestSummary) error {
	if c == nil || c.Redis == nil || s == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.Redis.Set(ctx, summaryKey(s.StudentID, s.ParentTestID), raw, c.TTL).Err()
}

func (c *SummaryCache) Invalidate(ctx context.Context, studentID, parentTestID uint) error {
	if c == nil || c.Redis == nil {
		return nil
	}
	return c.Redis.Del(ctx, summaryKey(studentID, parentTestID)).Err()
}
