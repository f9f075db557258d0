package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

func mustLock(t *testing.T, locks *CourseLocks, courseID string) func() {
	t.Helper()
	unlock, err := locks.Lock(context.Background(), courseID)
	require.NoError(t, err)
	return unlock
}

func TestCourseLocksSerialisesSameCourse(t *testing.T) {
	locks := NewCourseLocks()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), "c1")
			if err != nil {
				return
			}
			current := counter
			time.Sleep(time.Microsecond)
			counter = current + 1
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.size())
}

func TestCourseLocksIndependentCourses(t *testing.T) {
	locks := NewCourseLocks()
	unlockA := mustLock(t, locks, "a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		if unlock, err := locks.Lock(context.Background(), "b"); err == nil {
			unlock()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another course blocked")
	}
	assert.Equal(t, 1, locks.size())
}

type guardStub struct {
	mu       sync.Mutex
	err      error
	held     map[string]bool
	acquired []string
}

func (g *guardStub) LockCourse(ctx context.Context, courseID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if g.held == nil {
		g.held = make(map[string]bool)
	}
	g.held[courseID] = true
	g.acquired = append(g.acquired, courseID)
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.held[courseID] = false
	}, nil
}

func TestGuardedCourseLocksHoldGuard(t *testing.T) {
	guard := &guardStub{}
	locks := NewGuardedCourseLocks(guard)

	unlock := mustLock(t, locks, "c1")
	assert.True(t, guard.held["c1"])
	unlock()
	assert.False(t, guard.held["c1"])
	assert.Equal(t, []string{"c1"}, guard.acquired)
	assert.Equal(t, 0, locks.size())
}

func TestGuardedCourseLocksGuardFailureReleasesLocalLock(t *testing.T) {
	guard := &guardStub{err: errors.New("too many connections")}
	locks := NewGuardedCourseLocks(guard)

	_, err := locks.Lock(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRepositoryFailure))
	assert.Equal(t, 0, locks.size())

	guard.mu.Lock()
	guard.err = nil
	guard.mu.Unlock()
	unlock := mustLock(t, locks, "c1")
	unlock()
}

func TestGuardedAdmissionTakesGuardPerMutation(t *testing.T) {
	guard := &guardStub{}
	store := newCourseStoreStub()
	store.addCourse("c1", 2).addStudents("a")
	admission := NewAdmissionService(store, store, newFlakyWaitlistStore(), NewGuardedCourseLocks(guard), AdmissionOptions{})

	require.NoError(t, admission.EnrollStudent(context.Background(), "c1", "a"))
	assert.Equal(t, []string{"c1"}, guard.acquired)

	guard.err = errors.New("lock timeout")
	err := admission.UnenrollStudent(context.Background(), "c1", "a")
	assert.True(t, errors.Is(err, appErrors.ErrRepositoryFailure))
	assert.Equal(t, []string{"a"}, store.enrolled("c1"), "no write without the guard")
}
