package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/internal/repository"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

// courseStoreStub keeps courses in memory and guards EnrollStudent the way the SQL repository does.
type courseStoreStub struct {
	mu      sync.Mutex
	courses map[string]*models.Course
	users   map[string]*models.User

	getErr      error
	enrollErr   map[string]error
	unenrollErr map[string]error
	enrollCalls int
}

func newCourseStoreStub() *courseStoreStub {
	return &courseStoreStub{
		courses:     make(map[string]*models.Course),
		users:       make(map[string]*models.User),
		enrollErr:   make(map[string]error),
		unenrollErr: make(map[string]error),
	}
}

func (s *courseStoreStub) addCourse(id string, capacity int, enrolled ...string) *courseStoreStub {
	s.courses[id] = &models.Course{
		ID:                 id,
		Title:              "Course " + id,
		MaxEnrollment:      capacity,
		EnrolledStudentIDs: pq.StringArray(append([]string{}, enrolled...)),
		Status:             models.CourseStatusPublished,
		CreatedAt:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	return s
}

func (s *courseStoreStub) addUser(id string, role models.UserRole) *courseStoreStub {
	s.users[id] = &models.User{ID: id, FullName: "User " + id, Email: id + "@example.com", Role: role}
	return s
}

func (s *courseStoreStub) addStudents(ids ...string) *courseStoreStub {
	for _, id := range ids {
		s.addUser(id, models.RoleStudent)
	}
	return s
}

func (s *courseStoreStub) enrolled(courseID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.courses[courseID].EnrolledStudentIDs...)
}

func (s *courseStoreStub) GetCourseByID(ctx context.Context, id string) (*models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *course
	clone.EnrolledStudentIDs = append(pq.StringArray{}, course.EnrolledStudentIDs...)
	return &clone, nil
}

func (s *courseStoreStub) EnrollStudent(ctx context.Context, courseID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollCalls++
	if err := s.enrollErr[courseID]; err != nil {
		return err
	}
	course, ok := s.courses[courseID]
	if !ok {
		return appErrors.ErrCourseNotFound
	}
	if course.HasStudent(studentID) {
		return appErrors.ErrAlreadyEnrolled
	}
	if course.IsFull() {
		return appErrors.ErrCourseFull
	}
	course.EnrolledStudentIDs = append(course.EnrolledStudentIDs, studentID)
	return nil
}

func (s *courseStoreStub) UnenrollStudent(ctx context.Context, courseID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unenrollErr[courseID]; err != nil {
		return err
	}
	course, ok := s.courses[courseID]
	if !ok || !course.HasStudent(studentID) {
		return appErrors.ErrNotEnrolled
	}
	kept := course.EnrolledStudentIDs[:0]
	for _, id := range course.EnrolledStudentIDs {
		if id != studentID {
			kept = append(kept, id)
		}
	}
	course.EnrolledStudentIDs = kept
	return nil
}

func (s *courseStoreStub) IsStudentEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[courseID]
	if !ok {
		return false, sql.ErrNoRows
	}
	return course.HasStudent(studentID), nil
}

func (s *courseStoreStub) GetEnrolledStudents(ctx context.Context, courseID string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for _, id := range s.courses[courseID].EnrolledStudentIDs {
		if u, ok := s.users[id]; ok {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (s *courseStoreStub) GetEnrolledCourses(ctx context.Context, studentID string, limit int) ([]models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var courses []models.Course
	for _, c := range s.courses {
		if c.HasStudent(studentID) {
			courses = append(courses, *c)
		}
	}
	return courses, nil
}

func (s *courseStoreStub) GetCourseStatistics(ctx context.Context, courseID string) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.courses[courseID]
	return map[string]float64{
		"enrolled":              float64(c.EnrolledCount()),
		"max_enrollment":        float64(c.MaxEnrollment),
		"available_spots":       float64(c.AvailableSpots()),
		"enrollment_percentage": c.EnrollmentPercentage(),
	}, nil
}

func (s *courseStoreStub) GetCourses(ctx context.Context, limit int) ([]models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var courses []models.Course
	for _, c := range s.courses {
		courses = append(courses, *c)
	}
	return courses, nil
}

func (s *courseStoreStub) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

// flakyWaitlistStore wraps the memory store and fails on demand.
type flakyWaitlistStore struct {
	*repository.MemoryWaitlistStore
	getErr error
	putErr error
	// putErrAt fails only the numbered Put call, counting from 1.
	putErrAt map[int]error
	puts     int
}

func newFlakyWaitlistStore() *flakyWaitlistStore {
	return &flakyWaitlistStore{MemoryWaitlistStore: repository.NewMemoryWaitlistStore()}
}

func (s *flakyWaitlistStore) Get(ctx context.Context, courseID string) ([]models.WaitlistEntry, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryWaitlistStore.Get(ctx, courseID)
}

func (s *flakyWaitlistStore) Put(ctx context.Context, courseID string, entries []models.WaitlistEntry) error {
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	if err := s.putErrAt[s.puts]; err != nil {
		return err
	}
	return s.MemoryWaitlistStore.Put(ctx, courseID, entries)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.AdmissionEvent
	err    error
}

func (r *eventRecorder) Publish(ctx context.Context, event models.AdmissionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *eventRecorder) types() []models.AdmissionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AdmissionEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// steppingClock returns strictly increasing instants so joined_at ordering is deterministic.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type admissionFixture struct {
	store     *courseStoreStub
	waitlists *flakyWaitlistStore
	events    *eventRecorder
	clock     *steppingClock
	admission *AdmissionService
	waitlist  *WaitlistService
}

func newAdmissionFixture(policy models.PromotionPolicy) *admissionFixture {
	f := &admissionFixture{
		store:     newCourseStoreStub(),
		waitlists: newFlakyWaitlistStore(),
		events:    &eventRecorder{},
		clock:     newSteppingClock(),
	}
	f.admission = NewAdmissionService(f.store, f.store, f.waitlists, NewCourseLocks(), AdmissionOptions{
		Events: f.events,
		Clock:  f.clock.Now,
	})
	f.waitlist = NewWaitlistService(f.admission, f.waitlists, policy, nil)
	return f
}

var errBoom = errors.New("connection reset")
