package service

import (
	"adaptive_exam_backend/pkg/logger"
	"context"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AIUsageService enforces the shared daily cap on AI scoring calls. The
// counter lives in Redis so every instance draws from the same budget; the
// key rolls over at UTC midnight. The limit is atomic because config
// hot-reload rewrites it while scoring calls read it.
type AIUsageService struct {
	Redis *redis.Client
	limit atomic.Int64
}

func NewAIUsageService(rdb *redis.Client, dailyLimit int) *AIUsageService {
	s := &AIUsageService{Redis: rdb}
	s.limit.Store(int64(dailyLimit))
	return s
}

func (s *AIUsageService) Limit() int {
	return int(s.limit.Load())
}

func (s *AIUsageService) SetLimit(dailyLimit int) {
	s.limit.Store(int64(dailyLimit))
}

func usageKey(now time.Time) string {
	return "ai:usage:" + now.UTC().Format("2006-01-02")
}

// Allow reserves one call from today's budget. When Redis is unreachable the
// call is allowed; scoring keeps working, only the cap is lost.
func (s *AIUsageService) Allow(ctx context.Context) (bool, int, error) {
	limit := s.Limit()
	if limit <= 0 {
		return true, -1, nil
	}
	if s.Redis == nil {
		return true, -1, nil
	}

	now := time.Now()
	key := usageKey(now)
	count, err := s.Redis.Incr(ctx, key).Result()
	if err != nil {
		logger.Log.Warn("AI usage counter unavailable, allowing call", zap.Error(err))
		return true, -1, nil
	}
	if count == 1 {
		midnight := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		s.Redis.ExpireAt(ctx, key, midnight)
	}

	if int(count) > limit {
		return false, 0, nil
	}
	return true, limit - int(count), nil
}

// UsedToday reports today's consumed budget.
func (s *AIUsageService) UsedToday(ctx context.Context) (int, error) {
	if s.Redis == nil {
		return 0, nil
	}
	n, err := s.Redis.Get(ctx, usageKey(time.Now())).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
