package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
)

const (
	cacheKeyPrefix    = "timetable"
	generationKey     = "timetable:generation"
	cacheKeySeparator = ":"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService caches read projections of the schedule ledger. Entries are
// keyed by a generation counter that every committed write bumps, so a
// committed write is never hidden behind a stale entry.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool

	// stale is raised when a bump failed; lookups bypass the cache until a
	// later bump succeeds.
	stale atomic.Bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Key builds a cache key for a projection scoped to the current ledger
// generation. ok is false when the cache must be bypassed.
func (s *CacheService) Key(ctx context.Context, projection string, parts ...string) (string, bool) {
	if !s.Enabled() || s.stale.Load() {
		return "", false
	}
	generation, err := s.repo.Counter(ctx, generationKey)
	if err != nil {
		s.logger.Warn("cache generation lookup failed", zap.Error(err))
		return "", false
	}
	segments := append([]string{cacheKeyPrefix, fmt.Sprintf("g%d", generation), projection}, parts...)
	return strings.Join(segments, cacheKeySeparator), true
}

// Get attempts to retrieve a cached entry. It returns true when the cache was
// hit. Failures are logged and reported as a miss.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() || key == "" {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return true
}

// Set stores the value in cache. Failures are logged and otherwise ignored.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() || key == "" {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Bump advances the ledger generation after a committed write. When the
// counter cannot be advanced, cached projections are dropped instead and the
// cache is bypassed until a bump succeeds.
func (s *CacheService) Bump(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	_, err := s.repo.Incr(ctx, generationKey)
	if err == nil {
		s.stale.Store(false)
		return
	}
	s.logger.Warn("cache generation bump failed", zap.Error(err))
	s.stale.Store(true)
	if err := s.repo.DeleteByPattern(ctx, cacheKeyPrefix+cacheKeySeparator+"g*"); err != nil {
		s.logger.Warn("cache invalidate failed", zap.Error(err))
	}
}
