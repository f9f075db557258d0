package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

// AnalyticsService serves read-optimised course statistics with cache integration.
type AnalyticsService struct {
	admission *AdmissionService
	waitlist  *WaitlistService
	cache     *CacheService
	ttl       time.Duration
	logger    *zap.Logger
}

// NewAnalyticsService constructs an analytics service. A nil cache disables caching.
func NewAnalyticsService(admission *AdmissionService, waitlist *WaitlistService, cache *CacheService, ttl time.Duration, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{admission: admission, waitlist: waitlist, cache: cache, ttl: ttl, logger: logger}
}

// CourseStatistics returns seat and waitlist figures for a course. The boolean reports a cache hit.
// A miss is computed and cached under the course lock, so a concurrent mutation either precedes
// the computation or invalidates the entry after it was written.
func (s *AnalyticsService) CourseStatistics(ctx context.Context, courseID string) (*models.CourseStatistics, bool, error) {
	key := courseStatisticsKey(courseID)
	var cached models.CourseStatistics
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	unlock, err := s.admission.locks.Lock(ctx, courseID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	if _, err := s.admission.loadCourse(ctx, courseID); err != nil {
		return nil, false, err
	}
	metrics, err := s.admission.courses.GetCourseStatistics(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Repository(err, "failed to load course statistics")
	}
	queue, err := s.waitlist.GetWaitlistStatistics(ctx, courseID)
	if err != nil {
		return nil, false, err
	}
	if metrics == nil {
		metrics = make(map[string]float64)
	}
	metrics["waitlist_active"] = float64(queue.ActiveCount)
	metrics["waitlist_promoted"] = float64(queue.PromotedCount)
	metrics["waitlist_left"] = float64(queue.LeftCount)
	metrics["waitlist_average_wait_hours"] = queue.AverageWaitHours

	stats := &models.CourseStatistics{
		CourseID:    courseID,
		Metrics:     metrics,
		GeneratedAt: s.admission.now(),
	}
	if err := s.cache.Set(ctx, key, stats, s.ttl); err != nil {
		s.logger.Warn("cache course statistics", zap.String("course_id", courseID), zap.Error(err))
	}
	return stats, false, nil
}
