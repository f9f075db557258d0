package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

type cacheRepoStub struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{data: make(map[string][]byte)}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

func TestAnalyticsCourseStatisticsCachedAndInvalidated(t *testing.T) {
	cacheRepo := newCacheRepoStub()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, zap.NewNop(), true)

	store := newCourseStoreStub()
	store.addCourse("c1", 2, "a").addStudents("a", "b")
	waitlists := newFlakyWaitlistStore()
	clock := newSteppingClock()
	admission := NewAdmissionService(store, store, waitlists, NewCourseLocks(), AdmissionOptions{Cache: cache, Metrics: metrics, Clock: clock.Now})
	waitlist := NewWaitlistService(admission, waitlists, models.PromotionStopOnFirstFailure, nil)
	analytics := NewAnalyticsService(admission, waitlist, cache, time.Minute, nil)
	ctx := context.Background()

	stats, hit, err := analytics.CourseStatistics(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1.0, stats.Metrics["enrolled"])
	assert.Equal(t, 0.0, stats.Metrics["waitlist_active"])

	_, hit, err = analytics.CourseStatistics(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, hit)

	require.NoError(t, admission.EnrollStudent(ctx, "c1", "b"))
	assert.Contains(t, cacheRepo.deleted, "analytics:course:c1:*")

	stats, hit, err = analytics.CourseStatistics(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2.0, stats.Metrics["enrolled"])

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.Enrollments)
	assert.InDelta(t, 1.0/3.0, snapshot.CacheHitRatio, 0.001)
}

func TestAnalyticsCourseStatisticsUnknownCourse(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	analytics := NewAnalyticsService(f.admission, f.waitlist, nil, 0, nil)

	_, _, err := analytics.CourseStatistics(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrCourseNotFound)
}

func TestAnalyticsCourseStatisticsWaitsForCourseWriter(t *testing.T) {
	cacheRepo := newCacheRepoStub()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 2, "a").addStudents("a", "b")
	analytics := NewAnalyticsService(f.admission, f.waitlist, cache, time.Minute, nil)
	ctx := context.Background()

	unlock, err := f.admission.locks.Lock(ctx, "c1")
	require.NoError(t, err)

	done := make(chan *models.CourseStatistics, 1)
	go func() {
		stats, _, err := analytics.CourseStatistics(ctx, "c1")
		if err != nil {
			done <- nil
			return
		}
		done <- stats
	}()

	select {
	case <-done:
		t.Fatal("statistics computed while a writer held the course")
	case <-time.After(50 * time.Millisecond):
	}

	// Seat write performed by the lock holder before it releases the course.
	require.NoError(t, f.store.EnrollStudent(ctx, "c1", "b"))
	unlock()

	select {
	case stats := <-done:
		require.NotNil(t, stats)
		assert.Equal(t, 2.0, stats.Metrics["enrolled"])
	case <-time.After(time.Second):
		t.Fatal("statistics did not complete after the writer released the course")
	}

	var cached models.CourseStatistics
	require.NoError(t, cacheRepo.Get(ctx, courseStatisticsKey("c1"), &cached))
	assert.Equal(t, 2.0, cached.Metrics["enrolled"])
}
