package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lexiread/lexiread-api/internal/models"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
)

const leaderboardCacheKey = "leaderboard:top"

// EventLeaderboardChanged is broadcast whenever a points mutation may have
// reordered the board.
const EventLeaderboardChanged = "leaderboard_changed"

type leaderboardReader interface {
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

type leaderboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Broadcaster pushes server events to connected websocket clients.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// LeaderboardService serves the top-students board through a short-lived
// Redis cache and notifies live clients when it changes.
type LeaderboardService struct {
	repo    leaderboardReader
	cache   leaderboardCache
	hub     Broadcaster
	metrics *MetricsService
	logger  *zap.Logger
	size    int
	ttl     time.Duration
}

// NewLeaderboardService constructs the service. cache and hub are optional.
func NewLeaderboardService(repo leaderboardReader, cache leaderboardCache, hub Broadcaster, size int, ttl time.Duration, logger *zap.Logger) *LeaderboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 10
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LeaderboardService{
		repo:   repo,
		cache:  cache,
		hub:    hub,
		logger: logger,
		size:   size,
		ttl:    ttl,
	}
}

// SetMetrics attaches optional instrumentation.
func (s *LeaderboardService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// Top returns the current board, cache first.
func (s *LeaderboardService) Top(ctx context.Context) ([]models.LeaderboardEntry, error) {
	if s.cache != nil {
		var cached []models.LeaderboardEntry
		if err := s.cache.Get(ctx, leaderboardCacheKey, &cached); err == nil {
			s.metrics.RecordCacheLookup(true)
			return cached, nil
		}
		s.metrics.RecordCacheLookup(false)
	}

	entries, err := s.repo.Leaderboard(ctx, s.size)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leaderboard")
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, leaderboardCacheKey, entries, s.ttl); err != nil {
			s.logger.Warn("leaderboard cache write failed", zap.Error(err))
		}
	}
	return entries, nil
}

// Invalidate drops the cached board and broadcasts the refreshed one.
// Callers fire this after any points mutation; it never fails the caller.
func (s *LeaderboardService) Invalidate(ctx context.Context) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, leaderboardCacheKey); err != nil {
			s.logger.Warn("leaderboard cache invalidation failed", zap.Error(err))
		}
	}

	if s.hub == nil {
		return
	}
	entries, err := s.Top(ctx)
	if err != nil {
		s.logger.Warn("leaderboard refresh after invalidation failed", zap.Error(err))
		s.hub.Broadcast(EventLeaderboardChanged, nil)
		return
	}
	s.hub.Broadcast(EventLeaderboardChanged, entries)
}
