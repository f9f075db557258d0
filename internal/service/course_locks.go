package service

import (
	"context"
	"sync"

	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

// CourseGuard extends the per-course critical section to writers in other processes.
type CourseGuard interface {
	LockCourse(ctx context.Context, courseID string) (unlock func(), err error)
}

// CourseLocks serialises writers per course. Different courses never contend, and idle
// course entries are dropped so the map only holds courses with a writer in flight.
// With a guard, the in-process lock is taken first so each process holds at most one
// guard per course.
type CourseLocks struct {
	mu    sync.Mutex
	locks map[string]*courseLock
	guard CourseGuard
}

type courseLock struct {
	mu   sync.Mutex
	refs int
}

// NewCourseLocks constructs an in-process lock registry.
func NewCourseLocks() *CourseLocks {
	return &CourseLocks{locks: make(map[string]*courseLock)}
}

// NewGuardedCourseLocks constructs a registry whose locks also hold guard for the course.
func NewGuardedCourseLocks(guard CourseGuard) *CourseLocks {
	l := NewCourseLocks()
	l.guard = guard
	return l
}

// Lock blocks until the caller owns courseID and returns the matching unlock func. It fails
// only when the guard cannot be acquired; the in-process lock is released in that case.
func (l *CourseLocks) Lock(ctx context.Context, courseID string) (func(), error) {
	release := l.lockLocal(courseID)
	if l.guard == nil {
		return release, nil
	}
	unguard, err := l.guard.LockCourse(ctx, courseID)
	if err != nil {
		release()
		return nil, appErrors.Repository(err, "failed to lock course")
	}
	return func() {
		unguard()
		release()
	}, nil
}

func (l *CourseLocks) lockLocal(courseID string) func() {
	l.mu.Lock()
	lk, ok := l.locks[courseID]
	if !ok {
		lk = &courseLock{}
		l.locks[courseID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, courseID)
		}
		l.mu.Unlock()
	}
}

func (l *CourseLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
