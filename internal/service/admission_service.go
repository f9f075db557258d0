package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// courseStore is the persistence contract for courses. EnrollStudent must add the student
// only if a seat is free at write time; the check and the write are one atomic step.
type courseStore interface {
	GetCourseByID(ctx context.Context, id string) (*models.Course, error)
	EnrollStudent(ctx context.Context, courseID, studentID string) error
	UnenrollStudent(ctx context.Context, courseID, studentID string) error
	IsStudentEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	GetEnrolledStudents(ctx context.Context, courseID string) ([]models.User, error)
	GetEnrolledCourses(ctx context.Context, studentID string, limit int) ([]models.Course, error)
	GetCourseStatistics(ctx context.Context, courseID string) (map[string]float64, error)
	GetCourses(ctx context.Context, limit int) ([]models.Course, error)
}

type userReader interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// WaitlistStore keeps the full entry list (active and history) of each course.
// Put replaces the stored list; an empty list removes the course.
type WaitlistStore interface {
	Get(ctx context.Context, courseID string) ([]models.WaitlistEntry, error)
	Put(ctx context.Context, courseID string, entries []models.WaitlistEntry) error
	CourseIDs(ctx context.Context) ([]string, error)
}

// EventPublisher delivers admission facts to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event models.AdmissionEvent) error
}

// AdmissionOptions carries the optional collaborators of the admission core.
type AdmissionOptions struct {
	Events  EventPublisher
	Metrics *MetricsService
	Cache   *CacheService
	Logger  *zap.Logger
	Clock   func() time.Time
}

// AdmissionService gates seat occupancy for courses and moves students between them.
type AdmissionService struct {
	courses  courseStore
	users    userReader
	waitlist WaitlistStore
	locks    *CourseLocks
	events   EventPublisher
	metrics  *MetricsService
	cache    *CacheService
	logger   *zap.Logger
	now      func() time.Time
}

// NewAdmissionService wires the admission core. locks must be shared with the WaitlistService
// operating on the same courses.
func NewAdmissionService(courses courseStore, users userReader, waitlist WaitlistStore, locks *CourseLocks, opts AdmissionOptions) *AdmissionService {
	if locks == nil {
		locks = NewCourseLocks()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &AdmissionService{
		courses:  courses,
		users:    users,
		waitlist: waitlist,
		locks:    locks,
		events:   opts.Events,
		metrics:  opts.Metrics,
		cache:    opts.Cache,
		logger:   opts.Logger,
		now:      opts.Clock,
	}
}

// EnrollStudent admits studentID into courseID. Every violated rule is reported at once.
// A waitlisted student is withdrawn from the course queue in the same critical section.
func (s *AdmissionService) EnrollStudent(ctx context.Context, courseID, studentID string) error {
	if err := s.enroll(ctx, courseID, studentID); err != nil {
		s.recordOutcome("enroll", err)
		return err
	}
	s.recordOutcome("enroll", nil)
	s.afterMutation(ctx, courseID)
	s.publish(ctx, models.AdmissionEvent{Type: models.EventEnrolled, CourseID: courseID, StudentID: studentID})
	return nil
}

// UnenrollStudent releases the student's seat. Unenrolling twice reports NOT_ENROLLED.
// Promotion of the next waitlisted student is left to the caller.
func (s *AdmissionService) UnenrollStudent(ctx context.Context, courseID, studentID string) error {
	if err := s.unenroll(ctx, courseID, studentID); err != nil {
		s.recordOutcome("unenroll", err)
		return err
	}
	s.recordOutcome("unenroll", nil)
	s.afterMutation(ctx, courseID)
	s.publish(ctx, models.AdmissionEvent{Type: models.EventUnenrolled, CourseID: courseID, StudentID: studentID})
	return nil
}

// GetEnrollmentInfo computes the admission view of a course for an optional student.
func (s *AdmissionService) GetEnrollmentInfo(ctx context.Context, courseID, studentID string) (*models.EnrollmentInfo, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	var position *int
	if studentID != "" && !course.HasStudent(studentID) && s.waitlist != nil {
		entries, err := s.waitlist.Get(ctx, courseID)
		if err != nil {
			s.logger.Warn("waitlist lookup failed for enrollment info", zap.String("course_id", courseID), zap.Error(err))
		} else if idx := findActive(entries, studentID); idx >= 0 {
			p := entries[idx].Position
			position = &p
		}
	}
	info := models.NewEnrollmentInfo(course, studentID, position)
	return &info, nil
}

// CanStudentEnroll reports whether the course accepts the student right now. Lookup failures yield false.
func (s *AdmissionService) CanStudentEnroll(ctx context.Context, courseID, studentID string) bool {
	return s.eligibility(ctx, courseID, studentID) == nil
}

// TransferStudent enrolls the student into toCourseID and then releases the seat in fromCourseID.
// If the release fails, the new enrollment is undone before the release error is returned.
// A failed undo is reported as COMPENSATION_FAILED, the student then holds both seats.
func (s *AdmissionService) TransferStudent(ctx context.Context, fromCourseID, toCourseID, studentID string) error {
	if fromCourseID == toCourseID {
		return appErrors.Clone(appErrors.ErrValidation, "source and target course must differ")
	}
	if err := s.eligibility(ctx, toCourseID, studentID); err != nil {
		s.recordOutcome("transfer", err)
		return err
	}
	if err := s.enroll(ctx, toCourseID, studentID); err != nil {
		s.recordOutcome("transfer", err)
		return err
	}

	if err := s.unenroll(ctx, fromCourseID, studentID); err != nil {
		s.recordOutcome("transfer", err)
		if compErr := s.compensate(ctx, toCourseID, studentID); compErr != nil {
			s.metrics.RecordCompensation(false)
			s.logger.Error("transfer compensation failed",
				zap.String("student_id", studentID),
				zap.String("from_course_id", fromCourseID),
				zap.String("to_course_id", toCourseID),
				zap.NamedError("cause", err),
				zap.Error(compErr),
			)
			s.afterMutation(ctx, toCourseID)
			s.publish(ctx, models.AdmissionEvent{
				Type:         models.EventCompensationFailed,
				CourseID:     toCourseID,
				FromCourseID: fromCourseID,
				StudentID:    studentID,
			})
			return appErrors.Compensation(err, compErr)
		}
		s.metrics.RecordCompensation(true)
		s.logger.Warn("transfer rolled back",
			zap.String("student_id", studentID),
			zap.String("from_course_id", fromCourseID),
			zap.String("to_course_id", toCourseID),
			zap.Error(err),
		)
		return err
	}

	s.recordOutcome("transfer", nil)
	s.afterMutation(ctx, fromCourseID)
	s.afterMutation(ctx, toCourseID)
	s.publish(ctx, models.AdmissionEvent{
		Type:         models.EventTransferred,
		CourseID:     toCourseID,
		FromCourseID: fromCourseID,
		StudentID:    studentID,
	})
	return nil
}

// GetCourse returns a course or COURSE_NOT_FOUND.
func (s *AdmissionService) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	return s.loadCourse(ctx, courseID)
}

// GetCourses lists courses.
func (s *AdmissionService) GetCourses(ctx context.Context, limit int) ([]models.Course, error) {
	courses, err := s.courses.GetCourses(ctx, limit)
	if err != nil {
		return nil, appErrors.Repository(err, "failed to list courses")
	}
	return courses, nil
}

// GetEnrolledStudents lists the students holding a seat in the course.
func (s *AdmissionService) GetEnrolledStudents(ctx context.Context, courseID string) ([]models.User, error) {
	if _, err := s.loadCourse(ctx, courseID); err != nil {
		return nil, err
	}
	students, err := s.courses.GetEnrolledStudents(ctx, courseID)
	if err != nil {
		return nil, appErrors.Repository(err, "failed to list enrolled students")
	}
	return students, nil
}

// GetEnrolledCourses lists the courses a student holds a seat in.
func (s *AdmissionService) GetEnrolledCourses(ctx context.Context, studentID string, limit int) ([]models.Course, error) {
	courses, err := s.courses.GetEnrolledCourses(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Repository(err, "failed to list enrolled courses")
	}
	return courses, nil
}

func (s *AdmissionService) enroll(ctx context.Context, courseID, studentID string) error {
	unlock, err := s.locks.Lock(ctx, courseID)
	if err != nil {
		return err
	}
	defer unlock()

	var entries []models.WaitlistEntry
	if s.waitlist != nil {
		if entries, err = s.waitlist.Get(ctx, courseID); err != nil {
			return appErrors.Repository(err, "failed to load waitlist")
		}
	}
	_, _, err = s.admitLocked(ctx, s.waitlist, courseID, studentID, entries, models.WaitlistRemovalEnrolled)
	return err
}

// admitLocked validates the enrollment and writes the seat. An active waitlist entry of the
// student is withdrawn with reason before the seat write and restored if that write fails, so a
// student is never enrolled and queued on the same course. It returns the stored entry list and
// the withdrawn entry, if any. The caller must hold the course lock.
func (s *AdmissionService) admitLocked(ctx context.Context, store WaitlistStore, courseID, studentID string, entries []models.WaitlistEntry, reason models.WaitlistRemovalReason) ([]models.WaitlistEntry, *models.WaitlistEntry, error) {
	if err := s.checkEnrollment(ctx, courseID, studentID); err != nil {
		return entries, nil, err
	}
	idx := findActive(entries, studentID)
	if store == nil || idx < 0 {
		return entries, nil, repositoryResult(s.courses.EnrollStudent(ctx, courseID, studentID), "failed to enroll student")
	}

	next := append([]models.WaitlistEntry(nil), entries...)
	withdrawn := deactivate(next, idx, reason, s.now())
	if err := store.Put(ctx, courseID, next); err != nil {
		return entries, nil, appErrors.Repository(err, "failed to withdraw waitlist entry")
	}

	enrollErr := repositoryResult(s.courses.EnrollStudent(ctx, courseID, studentID), "failed to enroll student")
	if enrollErr == nil {
		return next, &withdrawn, nil
	}
	if err := store.Put(ctx, courseID, entries); err != nil {
		s.logger.Error("waitlist restore failed after rejected enrollment",
			zap.String("course_id", courseID),
			zap.String("student_id", studentID),
			zap.NamedError("cause", enrollErr),
			zap.Error(err),
		)
		return next, nil, appErrors.Compensation(enrollErr, appErrors.Repository(err, "failed to restore waitlist entry"))
	}
	return entries, nil, enrollErr
}

// checkEnrollment evaluates every admission rule in one pass. The caller must hold the course lock.
func (s *AdmissionService) checkEnrollment(ctx context.Context, courseID, studentID string) error {
	var violations []*appErrors.Error

	course, err := s.courses.GetCourseByID(ctx, courseID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		course = nil
		violations = append(violations, appErrors.ErrCourseNotFound)
	case err != nil:
		return appErrors.Repository(err, "failed to load course")
	}

	user, err := s.users.GetUserByID(ctx, studentID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		user = nil
		violations = append(violations, appErrors.ErrStudentNotFound)
	case err != nil:
		return appErrors.Repository(err, "failed to load student")
	}

	if course != nil {
		if course.Status != models.CourseStatusPublished {
			violations = append(violations, appErrors.ErrCourseUnavailable)
		}
		if course.IsFull() {
			violations = append(violations, appErrors.ErrCourseFull)
		}
	}
	if user != nil && !user.IsStudent() {
		violations = append(violations, appErrors.ErrInvalidRole)
	}
	if course != nil && course.HasStudent(studentID) {
		violations = append(violations, appErrors.ErrAlreadyEnrolled)
	}
	if len(violations) > 0 {
		return appErrors.Validation(violations...)
	}
	return nil
}

func (s *AdmissionService) unenroll(ctx context.Context, courseID, studentID string) error {
	unlock, err := s.locks.Lock(ctx, courseID)
	if err != nil {
		return err
	}
	defer unlock()

	enrolled, err := s.courses.IsStudentEnrolled(ctx, courseID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrCourseNotFound
		}
		return appErrors.Repository(err, "failed to check enrollment")
	}
	if !enrolled {
		return appErrors.ErrNotEnrolled
	}
	return repositoryResult(s.courses.UnenrollStudent(ctx, courseID, studentID), "failed to unenroll student")
}

func (s *AdmissionService) compensate(ctx context.Context, courseID, studentID string) error {
	unlock, err := s.locks.Lock(ctx, courseID)
	if err != nil {
		return err
	}
	defer unlock()
	return repositoryResult(s.courses.UnenrollStudent(ctx, courseID, studentID), "failed to undo transfer enrollment")
}

// eligibility returns the first reason the student cannot enroll, or nil.
func (s *AdmissionService) eligibility(ctx context.Context, courseID, studentID string) error {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return err
	}
	switch {
	case course.HasStudent(studentID):
		return appErrors.ErrAlreadyEnrolled
	case course.Status != models.CourseStatusPublished:
		return appErrors.ErrCourseUnavailable
	case course.IsFull():
		return appErrors.ErrCourseFull
	}
	return nil
}

func (s *AdmissionService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, appErrors.Repository(err, "failed to load course")
	}
	return course, nil
}

func (s *AdmissionService) afterMutation(ctx context.Context, courseID string) {
	s.cache.InvalidateCourse(ctx, courseID)
}

func (s *AdmissionService) recordOutcome(operation string, err error) {
	s.metrics.RecordAdmission(operation, outcomeOf(err))
}

func (s *AdmissionService) publish(ctx context.Context, event models.AdmissionEvent) {
	if s.events == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish admission event failed",
			zap.String("type", string(event.Type)),
			zap.String("course_id", event.CourseID),
			zap.Error(err),
		)
	}
}

// repositoryResult passes business outcomes through unchanged and wraps infrastructure failures.
func repositoryResult(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Repository(err, message)
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeOK
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Status < 500 {
		return outcomeRejected
	}
	return outcomeError
}
