package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

const reviewerPoolCacheKey = "rec:reviewer_pool"

type poolUserStore interface {
	ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

// ReviewerPoolService resolves the active reviewer pool, caching it in Redis.
// Cache failures degrade to a direct database read.
type ReviewerPoolService struct {
	users  poolUserStore
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewReviewerPoolService constructs the service. The cache client is optional.
func NewReviewerPoolService(users poolUserStore, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *ReviewerPoolService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ReviewerPoolService{users: users, cache: cache, ttl: ttl, logger: logger}
}

// Pool returns the active reviewers.
func (s *ReviewerPoolService) Pool(ctx context.Context) ([]models.User, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, reviewerPoolCacheKey).Bytes()
		if err == nil {
			var users []models.User
			if err := json.Unmarshal(raw, &users); err == nil {
				return users, nil
			}
			s.logger.Warn("corrupt reviewer pool cache entry, refreshing")
		} else if err != redis.Nil {
			s.logger.Warn("reviewer pool cache read failed", zap.Error(err))
		}
	}

	users, err := s.users.ListActiveByRole(ctx, models.RoleReviewer)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviewer pool")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(users); err == nil {
			if err := s.cache.Set(ctx, reviewerPoolCacheKey, raw, s.ttl).Err(); err != nil {
				s.logger.Warn("reviewer pool cache write failed", zap.Error(err))
			}
		}
	}
	return users, nil
}

// Invalidate drops the cached pool, forcing the next read to hit the database.
func (s *ReviewerPoolService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, reviewerPoolCacheKey).Err(); err != nil {
		s.logger.Warn("reviewer pool cache invalidation failed", zap.Error(err))
	}
}
