package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

// WaitlistService keeps a FIFO admission queue per course and promotes its head when seats free up.
type WaitlistService struct {
	admission *AdmissionService
	store     WaitlistStore
	policy    models.PromotionPolicy
	logger    *zap.Logger
}

// NewWaitlistService builds the queue service on top of the admission core. Both services share
// the admission core's course locks.
func NewWaitlistService(admission *AdmissionService, store WaitlistStore, policy models.PromotionPolicy, logger *zap.Logger) *WaitlistService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = models.PromotionStopOnFirstFailure
	}
	return &WaitlistService{admission: admission, store: store, policy: policy, logger: logger}
}

// Policy returns the configured promotion policy.
func (s *WaitlistService) Policy() models.PromotionPolicy {
	return s.policy
}

// AddToWaitlist queues the student behind the current active entries. The course must be full.
func (s *WaitlistService) AddToWaitlist(ctx context.Context, courseID, studentID string) (*models.WaitlistEntry, error) {
	unlock, err := s.admission.locks.Lock(ctx, courseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entry, err := s.addLocked(ctx, courseID, studentID)
	s.admission.recordOutcome("waitlist_join", err)
	if err != nil {
		return nil, err
	}
	s.admission.afterMutation(ctx, courseID)
	s.admission.publish(ctx, models.AdmissionEvent{
		Type:      models.EventWaitlisted,
		CourseID:  courseID,
		StudentID: studentID,
		Position:  entry.Position,
	})
	return entry, nil
}

func (s *WaitlistService) addLocked(ctx context.Context, courseID, studentID string) (*models.WaitlistEntry, error) {
	var violations []*appErrors.Error

	course, err := s.admission.courses.GetCourseByID(ctx, courseID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		course = nil
		violations = append(violations, appErrors.ErrCourseNotFound)
	case err != nil:
		return nil, appErrors.Repository(err, "failed to load course")
	}

	user, err := s.admission.users.GetUserByID(ctx, studentID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		user = nil
		violations = append(violations, appErrors.ErrStudentNotFound)
	case err != nil:
		return nil, appErrors.Repository(err, "failed to load student")
	}

	entries, err := s.store.Get(ctx, courseID)
	if err != nil {
		return nil, appErrors.Repository(err, "failed to load waitlist")
	}

	if course != nil && !course.IsFull() {
		violations = append(violations, appErrors.ErrCourseNotFull)
	}
	if user != nil && !user.IsStudent() {
		violations = append(violations, appErrors.ErrInvalidRole)
	}
	if course != nil && course.HasStudent(studentID) {
		violations = append(violations, appErrors.ErrAlreadyEnrolled)
	}
	if findActive(entries, studentID) >= 0 {
		violations = append(violations, appErrors.ErrAlreadyWaitlisted)
	}
	if len(violations) > 0 {
		return nil, appErrors.Validation(violations...)
	}

	entry := models.WaitlistEntry{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		StudentID: studentID,
		JoinedAt:  s.admission.now(),
		Position:  nextPosition(entries),
		IsActive:  true,
	}
	entries = append(entries, entry)
	if err := s.store.Put(ctx, courseID, entries); err != nil {
		return nil, appErrors.Repository(err, "failed to save waitlist")
	}
	s.admission.metrics.ObserveWaitlistDepth(entry.Position)
	return &entry, nil
}

// RemoveFromWaitlist withdraws the student's active entry and closes the gap it leaves.
func (s *WaitlistService) RemoveFromWaitlist(ctx context.Context, courseID, studentID string) error {
	unlock, err := s.admission.locks.Lock(ctx, courseID)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := s.store.Get(ctx, courseID)
	if err != nil {
		return appErrors.Repository(err, "failed to load waitlist")
	}
	idx := findActive(entries, studentID)
	if idx < 0 {
		s.admission.recordOutcome("waitlist_leave", appErrors.ErrNotOnWaitlist)
		return appErrors.ErrNotOnWaitlist
	}
	deactivate(entries, idx, models.WaitlistRemovalLeft, s.admission.now())
	if err := s.store.Put(ctx, courseID, entries); err != nil {
		return appErrors.Repository(err, "failed to save waitlist")
	}
	s.admission.recordOutcome("waitlist_leave", nil)
	s.admission.afterMutation(ctx, courseID)
	s.admission.publish(ctx, models.AdmissionEvent{Type: models.EventWaitlistLeft, CourseID: courseID, StudentID: studentID})
	return nil
}

// GetWaitlist returns the active queue ordered by position.
func (s *WaitlistService) GetWaitlist(ctx context.Context, courseID string) ([]models.WaitlistEntry, error) {
	entries, err := s.store.Get(ctx, courseID)
	if err != nil {
		return nil, appErrors.Repository(err, "failed to load waitlist")
	}
	return activeQueue(entries), nil
}

// GetWaitlistPosition returns the student's position; ok is false when the student is not queued.
func (s *WaitlistService) GetWaitlistPosition(ctx context.Context, courseID, studentID string) (int, bool, error) {
	entries, err := s.store.Get(ctx, courseID)
	if err != nil {
		return 0, false, appErrors.Repository(err, "failed to load waitlist")
	}
	idx := findActive(entries, studentID)
	if idx < 0 {
		return 0, false, nil
	}
	return entries[idx].Position, true, nil
}

// ProcessWaitlistForAvailableSpot enrolls the head of the queue if a seat is free. It returns the
// promoted entry, or nil when the queue is empty. When the head cannot be enrolled the outcome
// depends on the promotion policy: stop_on_first_failure returns the error and keeps the queue
// intact, advance_to_next_candidate drops heads that fail for student-specific reasons.
func (s *WaitlistService) ProcessWaitlistForAvailableSpot(ctx context.Context, courseID string) (*models.WaitlistEntry, error) {
	unlock, err := s.admission.locks.Lock(ctx, courseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := s.store.Get(ctx, courseID)
	if err != nil {
		return nil, appErrors.Repository(err, "failed to load waitlist")
	}

	skipped := false
	for {
		queue := activeQueue(entries)
		if len(queue) == 0 {
			return nil, s.saveSkipped(ctx, courseID, entries, skipped)
		}

		course, err := s.admission.loadCourse(ctx, courseID)
		if err != nil {
			return nil, s.joinSaveError(ctx, courseID, entries, skipped, err)
		}
		if course.IsFull() {
			return nil, s.joinSaveError(ctx, courseID, entries, skipped,
				appErrors.Clone(appErrors.ErrCourseFull, "no seat available for promotion"))
		}

		head := queue[0]
		next, promoted, enrollErr := s.admission.admitLocked(ctx, s.store, courseID, head.StudentID, entries, models.WaitlistRemovalPromoted)
		entries = next
		if enrollErr == nil {
			s.admission.recordOutcome("promote", nil)
			s.admission.afterMutation(ctx, courseID)
			s.admission.publish(ctx, models.AdmissionEvent{Type: models.EventPromoted, CourseID: courseID, StudentID: head.StudentID})
			return promoted, nil
		}

		s.admission.recordOutcome("promote", enrollErr)
		if errors.Is(enrollErr, appErrors.ErrCompensationFailed) {
			return nil, enrollErr
		}
		if s.policy != models.PromotionAdvanceToNextCandidate || !candidateSpecific(enrollErr) {
			return nil, s.joinSaveError(ctx, courseID, entries, skipped, enrollErr)
		}
		s.logger.Info("skipping waitlist candidate",
			zap.String("course_id", courseID),
			zap.String("student_id", head.StudentID),
			zap.Error(enrollErr),
		)
		deactivate(entries, findActive(entries, head.StudentID), models.WaitlistRemovalSkipped, s.admission.now())
		skipped = true
	}
}

// GetWaitlistStatistics summarises the active queue and its history.
func (s *WaitlistService) GetWaitlistStatistics(ctx context.Context, courseID string) (*models.WaitlistStatistics, error) {
	entries, err := s.store.Get(ctx, courseID)
	if err != nil {
		return nil, appErrors.Repository(err, "failed to load waitlist")
	}
	stats := &models.WaitlistStatistics{CourseID: courseID}
	var waited time.Duration
	for _, e := range entries {
		if e.IsActive {
			stats.ActiveCount++
			if stats.OldestJoinedAt == nil || e.JoinedAt.Before(*stats.OldestJoinedAt) {
				joined := e.JoinedAt
				stats.OldestJoinedAt = &joined
			}
			continue
		}
		stats.InactiveCount++
		if e.RemovalReason == nil {
			continue
		}
		switch *e.RemovalReason {
		case models.WaitlistRemovalPromoted:
			stats.PromotedCount++
			if e.RemovedAt != nil {
				waited += e.RemovedAt.Sub(e.JoinedAt)
			}
		case models.WaitlistRemovalLeft:
			stats.LeftCount++
		}
	}
	if stats.PromotedCount > 0 {
		stats.AverageWaitHours = waited.Hours() / float64(stats.PromotedCount)
	}
	return stats, nil
}

// GetStudentWaitlists returns the student's active entries across all courses, oldest first.
func (s *WaitlistService) GetStudentWaitlists(ctx context.Context, studentID string) ([]models.WaitlistEntry, error) {
	courseIDs, err := s.store.CourseIDs(ctx)
	if err != nil {
		return nil, appErrors.Repository(err, "failed to list waitlisted courses")
	}
	result := make([]models.WaitlistEntry, 0)
	for _, courseID := range courseIDs {
		entries, err := s.store.Get(ctx, courseID)
		if err != nil {
			return nil, appErrors.Repository(err, "failed to load waitlist")
		}
		if idx := findActive(entries, studentID); idx >= 0 {
			result = append(result, entries[idx])
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result, nil
}

// ClearInactiveEntries purges history entries removed more than olderThan ago; olderThan <= 0
// purges all history. It returns the number of purged entries.
func (s *WaitlistService) ClearInactiveEntries(ctx context.Context, olderThan time.Duration) (int, error) {
	courseIDs, err := s.store.CourseIDs(ctx)
	if err != nil {
		return 0, appErrors.Repository(err, "failed to list waitlisted courses")
	}
	cutoff := s.admission.now().Add(-olderThan)
	purged := 0
	for _, courseID := range courseIDs {
		n, err := s.clearCourse(ctx, courseID, olderThan > 0, cutoff)
		if err != nil {
			return purged, err
		}
		purged += n
	}
	if purged > 0 {
		s.logger.Info("cleared inactive waitlist entries", zap.Int("count", purged))
	}
	return purged, nil
}

func (s *WaitlistService) clearCourse(ctx context.Context, courseID string, useCutoff bool, cutoff time.Time) (int, error) {
	unlock, err := s.admission.locks.Lock(ctx, courseID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	entries, err := s.store.Get(ctx, courseID)
	if err != nil {
		return 0, appErrors.Repository(err, "failed to load waitlist")
	}
	kept := make([]models.WaitlistEntry, 0, len(entries))
	for _, e := range entries {
		expired := !e.IsActive && (!useCutoff || e.RemovedAt == nil || e.RemovedAt.Before(cutoff))
		if !expired {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.store.Put(ctx, courseID, kept); err != nil {
		return 0, appErrors.Repository(err, "failed to save waitlist")
	}
	return removed, nil
}

func (s *WaitlistService) saveSkipped(ctx context.Context, courseID string, entries []models.WaitlistEntry, skipped bool) error {
	if !skipped {
		return nil
	}
	if err := s.store.Put(ctx, courseID, entries); err != nil {
		return appErrors.Repository(err, "failed to save skipped waitlist candidates")
	}
	s.admission.afterMutation(ctx, courseID)
	return nil
}

func (s *WaitlistService) joinSaveError(ctx context.Context, courseID string, entries []models.WaitlistEntry, skipped bool, cause error) error {
	if err := s.saveSkipped(ctx, courseID, entries, skipped); err != nil {
		return err
	}
	return cause
}

// candidateSpecific reports whether an enroll failure concerns only the queued student, so the
// next candidate could still succeed.
func candidateSpecific(err error) bool {
	violations := appErrors.Violations(err)
	if len(violations) == 0 {
		return errors.Is(err, appErrors.ErrAlreadyEnrolled)
	}
	for _, v := range violations {
		switch v.Code {
		case appErrors.ErrStudentNotFound.Code, appErrors.ErrInvalidRole.Code, appErrors.ErrAlreadyEnrolled.Code:
		default:
			return false
		}
	}
	return true
}
