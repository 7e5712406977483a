package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiread/lexiread-api/internal/models"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
)

type mockLeaderboardRepo struct {
	entries []models.LeaderboardEntry
	calls   int
}

func (m *mockLeaderboardRepo) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	m.calls++
	if limit < len(m.entries) {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

type mockCache struct {
	entries map[string][]models.LeaderboardEntry
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]models.LeaderboardEntry)}
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	cached, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*dest.(*[]models.LeaderboardEntry) = cached
	return nil
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.entries[key] = value.([]models.LeaderboardEntry)
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	delete(m.entries, key)
	m.deletes++
	return nil
}

type mockBroadcaster struct {
	events   []string
	payloads []interface{}
}

func (m *mockBroadcaster) Broadcast(event string, payload interface{}) {
	m.events = append(m.events, event)
	m.payloads = append(m.payloads, payload)
}

func board(names ...string) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, len(names))
	for i, name := range names {
		entries[i] = models.LeaderboardEntry{UserID: name, FullName: name, TotalPoints: 100 - i}
	}
	return entries
}

func TestTopCachesResult(t *testing.T) {
	repo := &mockLeaderboardRepo{entries: board("ana", "ben")}
	cache := newMockCache()
	svc := NewLeaderboardService(repo, cache, nil, 10, time.Minute, nil)

	first, err := svc.Top(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 2)
	assert.Equal(t, 1, repo.calls)

	// Second read is served from the cache.
	second, err := svc.Top(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls)
}

func TestTopEmptyBoardIsNotNil(t *testing.T) {
	repo := &mockLeaderboardRepo{}
	svc := NewLeaderboardService(repo, nil, nil, 10, time.Minute, nil)

	entries, err := svc.Top(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestTopHonoursSizeLimit(t *testing.T) {
	repo := &mockLeaderboardRepo{entries: board("ana", "ben", "cleo")}
	svc := NewLeaderboardService(repo, nil, nil, 2, time.Minute, nil)

	entries, err := svc.Top(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestInvalidateDropsCacheAndBroadcasts(t *testing.T) {
	repo := &mockLeaderboardRepo{entries: board("ana")}
	cache := newMockCache()
	hub := &mockBroadcaster{}
	svc := NewLeaderboardService(repo, cache, hub, 10, time.Minute, nil)

	_, err := svc.Top(context.Background())
	require.NoError(t, err)
	require.Contains(t, cache.entries, leaderboardCacheKey)

	svc.Invalidate(context.Background())

	assert.Equal(t, 1, cache.deletes)
	require.Len(t, hub.events, 1)
	assert.Equal(t, EventLeaderboardChanged, hub.events[0])
	assert.Equal(t, board("ana"), hub.payloads[0])

	// The refresh repopulated the cache.
	assert.Contains(t, cache.entries, leaderboardCacheKey)
}

func TestInvalidateWithoutHubOnlyDropsCache(t *testing.T) {
	repo := &mockLeaderboardRepo{entries: board("ana")}
	cache := newMockCache()
	svc := NewLeaderboardService(repo, cache, nil, 10, time.Minute, nil)

	_, err := svc.Top(context.Background())
	require.NoError(t, err)

	svc.Invalidate(context.Background())
	assert.Equal(t, 1, cache.deletes)
	assert.NotContains(t, cache.entries, leaderboardCacheKey)
}
