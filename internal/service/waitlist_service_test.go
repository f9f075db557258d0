package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

func TestWaitlistJoinAndPromote(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 2, "a", "b").addStudents("a", "b", "c", "d")
	ctx := context.Background()

	c, err := f.waitlist.AddToWaitlist(ctx, "c1", "c")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Position)
	d, err := f.waitlist.AddToWaitlist(ctx, "c1", "d")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Position)

	require.NoError(t, f.admission.UnenrollStudent(ctx, "c1", "a"))
	promoted, err := f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, promoted)
	assert.Equal(t, "c", promoted.StudentID)
	assert.False(t, promoted.IsActive)
	require.NotNil(t, promoted.RemovalReason)
	assert.Equal(t, models.WaitlistRemovalPromoted, *promoted.RemovalReason)

	assert.ElementsMatch(t, []string{"b", "c"}, f.store.enrolled("c1"))
	position, ok, err := f.waitlist.GetWaitlistPosition(ctx, "c1", "d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, position)
	_, ok, err = f.waitlist.GetWaitlistPosition(ctx, "c1", "c")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []models.AdmissionEventType{
		models.EventWaitlisted, models.EventWaitlisted, models.EventUnenrolled, models.EventPromoted,
	}, f.events.types())
}

func TestWaitlistRemoveRestoresQueue(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "x").addStudents("x", "a", "b", "c", "d")
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.waitlist.AddToWaitlist(ctx, "c1", id)
		require.NoError(t, err)
	}
	before, err := f.waitlist.GetWaitlist(ctx, "c1")
	require.NoError(t, err)

	_, err = f.waitlist.AddToWaitlist(ctx, "c1", "d")
	require.NoError(t, err)
	require.NoError(t, f.waitlist.RemoveFromWaitlist(ctx, "c1", "d"))

	after, err := f.waitlist.GetWaitlist(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWaitlistRemoveRenumbers(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "x").addStudents("x", "a", "b", "c")
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.waitlist.AddToWaitlist(ctx, "c1", id)
		require.NoError(t, err)
	}

	require.NoError(t, f.waitlist.RemoveFromWaitlist(ctx, "c1", "a"))
	queue, err := f.waitlist.GetWaitlist(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "b", queue[0].StudentID)
	assert.Equal(t, 1, queue[0].Position)
	assert.Equal(t, "c", queue[1].StudentID)
	assert.Equal(t, 2, queue[1].Position)

	err = f.waitlist.RemoveFromWaitlist(ctx, "c1", "a")
	assert.True(t, errors.Is(err, appErrors.ErrNotOnWaitlist))
}

func TestWaitlistJoinRules(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("open", 3).addCourse("full", 1, "a").
		addStudents("a", "b").addUser("admin", models.RoleAdmin)
	ctx := context.Background()

	_, err := f.waitlist.AddToWaitlist(ctx, "open", "b")
	assert.Equal(t, []string{appErrors.ErrCourseNotFull.Code}, violationCodes(err))

	_, err = f.waitlist.AddToWaitlist(ctx, "full", "a")
	assert.Equal(t, []string{appErrors.ErrAlreadyEnrolled.Code}, violationCodes(err))

	_, err = f.waitlist.AddToWaitlist(ctx, "full", "admin")
	assert.Equal(t, []string{appErrors.ErrInvalidRole.Code}, violationCodes(err))

	_, err = f.waitlist.AddToWaitlist(ctx, "missing", "ghost")
	assert.Equal(t, []string{appErrors.ErrCourseNotFound.Code, appErrors.ErrStudentNotFound.Code}, violationCodes(err))

	_, err = f.waitlist.AddToWaitlist(ctx, "full", "b")
	require.NoError(t, err)
	_, err = f.waitlist.AddToWaitlist(ctx, "full", "b")
	assert.Equal(t, []string{appErrors.ErrAlreadyWaitlisted.Code}, violationCodes(err))
}

func TestWaitlistJoinStoreFailure(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b")
	f.waitlists.putErr = errBoom

	_, err := f.waitlist.AddToWaitlist(context.Background(), "c1", "b")
	assert.True(t, errors.Is(err, appErrors.ErrRepositoryFailure))
	assert.True(t, errors.Is(err, errBoom))
}

func TestProcessWaitlistEmptyQueue(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 2)

	entry, err := f.waitlist.ProcessWaitlistForAvailableSpot(context.Background(), "c1")
	assert.NoError(t, err)
	assert.Nil(t, entry)
}

func TestProcessWaitlistWithoutFreeSeat(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b")
	ctx := context.Background()
	_, err := f.waitlist.AddToWaitlist(ctx, "c1", "b")
	require.NoError(t, err)

	entry, err := f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	assert.Nil(t, entry)
	assert.True(t, errors.Is(err, appErrors.ErrCourseFull))

	queue, err := f.waitlist.GetWaitlist(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

// demoteHead turns the first queued student into an instructor so their promotion fails.
func demoteHead(f *admissionFixture) {
	f.store.users["b"].Role = models.RoleInstructor
}

func TestProcessWaitlistStopOnFirstFailure(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b", "c")
	ctx := context.Background()
	for _, id := range []string{"b", "c"} {
		_, err := f.waitlist.AddToWaitlist(ctx, "c1", id)
		require.NoError(t, err)
	}
	require.NoError(t, f.admission.UnenrollStudent(ctx, "c1", "a"))
	demoteHead(f)

	entry, err := f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	assert.Nil(t, entry)
	assert.True(t, appErrors.HasViolation(err, appErrors.ErrInvalidRole))

	queue, err := f.waitlist.GetWaitlist(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "b", queue[0].StudentID)
	assert.Empty(t, f.store.enrolled("c1"))
}

func TestProcessWaitlistAdvanceToNextCandidate(t *testing.T) {
	f := newAdmissionFixture(models.PromotionAdvanceToNextCandidate)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b", "c", "d")
	ctx := context.Background()
	for _, id := range []string{"b", "c", "d"} {
		_, err := f.waitlist.AddToWaitlist(ctx, "c1", id)
		require.NoError(t, err)
	}
	require.NoError(t, f.admission.UnenrollStudent(ctx, "c1", "a"))
	demoteHead(f)

	entry, err := f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "c", entry.StudentID)
	assert.Equal(t, []string{"c"}, f.store.enrolled("c1"))

	queue, err := f.waitlist.GetWaitlist(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "d", queue[0].StudentID)
	assert.Equal(t, 1, queue[0].Position)

	entries, err := f.waitlists.Get(ctx, "c1")
	require.NoError(t, err)
	reasons := map[string]models.WaitlistRemovalReason{}
	for _, e := range entries {
		if e.RemovalReason != nil {
			reasons[e.StudentID] = *e.RemovalReason
		}
	}
	assert.Equal(t, models.WaitlistRemovalSkipped, reasons["b"])
	assert.Equal(t, models.WaitlistRemovalPromoted, reasons["c"])
}

func TestProcessWaitlistAdvanceStopsOnCourseLevelFailure(t *testing.T) {
	f := newAdmissionFixture(models.PromotionAdvanceToNextCandidate)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b", "c")
	ctx := context.Background()
	for _, id := range []string{"b", "c"} {
		_, err := f.waitlist.AddToWaitlist(ctx, "c1", id)
		require.NoError(t, err)
	}
	require.NoError(t, f.admission.UnenrollStudent(ctx, "c1", "a"))
	f.store.courses["c1"].Status = models.CourseStatusArchived

	_, err := f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	assert.True(t, appErrors.HasViolation(err, appErrors.ErrCourseUnavailable))
	queue, err := f.waitlist.GetWaitlist(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, queue, 2)
}

func TestProcessWaitlistAdvanceDrainsQueue(t *testing.T) {
	f := newAdmissionFixture(models.PromotionAdvanceToNextCandidate)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b")
	ctx := context.Background()
	_, err := f.waitlist.AddToWaitlist(ctx, "c1", "b")
	require.NoError(t, err)
	require.NoError(t, f.admission.UnenrollStudent(ctx, "c1", "a"))
	demoteHead(f)

	entry, err := f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	assert.NoError(t, err)
	assert.Nil(t, entry)

	stats, err := f.waitlist.GetWaitlistStatistics(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveCount)
	assert.Equal(t, 1, stats.InactiveCount)
}

func TestProcessWaitlistWithdrawFailureKeepsHeadQueued(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b")
	ctx := context.Background()
	_, err := f.waitlist.AddToWaitlist(ctx, "c1", "b")
	require.NoError(t, err)
	require.NoError(t, f.admission.UnenrollStudent(ctx, "c1", "a"))

	f.waitlists.putErr = errBoom
	entry, err := f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	assert.Nil(t, entry)
	assert.True(t, errors.Is(err, appErrors.ErrRepositoryFailure))
	assert.Empty(t, f.store.enrolled("c1"))

	f.waitlists.putErr = nil
	assertQueued(t, f, "c1", "b", 1)

	entry, err = f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	require.NoError(t, err, "a later promotion is not blocked by the failed one")
	require.NotNil(t, entry)
	assert.Equal(t, "b", entry.StudentID)
	assert.Equal(t, []string{"b"}, f.store.enrolled("c1"))
}

func TestProcessWaitlistSeatWriteFailureRestoresHead(t *testing.T) {
	f := newAdmissionFixture(models.PromotionAdvanceToNextCandidate)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b", "c")
	ctx := context.Background()
	for _, id := range []string{"b", "c"} {
		_, err := f.waitlist.AddToWaitlist(ctx, "c1", id)
		require.NoError(t, err)
	}
	require.NoError(t, f.admission.UnenrollStudent(ctx, "c1", "a"))

	f.store.enrollErr["c1"] = errBoom
	entry, err := f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	assert.Nil(t, entry)
	assert.True(t, errors.Is(err, appErrors.ErrRepositoryFailure))
	assert.Empty(t, f.store.enrolled("c1"))
	assertQueued(t, f, "c1", "b", 1)
	assertQueued(t, f, "c1", "c", 2)
}

func TestProcessWaitlistRestoreFailure(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b")
	ctx := context.Background()
	_, err := f.waitlist.AddToWaitlist(ctx, "c1", "b")
	require.NoError(t, err)
	require.NoError(t, f.admission.UnenrollStudent(ctx, "c1", "a"))

	f.store.enrollErr["c1"] = errBoom
	f.waitlists.putErrAt = map[int]error{f.waitlists.puts + 2: errors.New("write timeout")}
	_, err = f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	assert.True(t, errors.Is(err, appErrors.ErrCompensationFailed))
	assert.Empty(t, f.store.enrolled("c1"))
}

func TestWaitlistStatistics(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b", "c", "d")
	ctx := context.Background()
	for _, id := range []string{"b", "c", "d"} {
		_, err := f.waitlist.AddToWaitlist(ctx, "c1", id)
		require.NoError(t, err)
	}
	require.NoError(t, f.waitlist.RemoveFromWaitlist(ctx, "c1", "d"))
	require.NoError(t, f.admission.UnenrollStudent(ctx, "c1", "a"))
	_, err := f.waitlist.ProcessWaitlistForAvailableSpot(ctx, "c1")
	require.NoError(t, err)

	stats, err := f.waitlist.GetWaitlistStatistics(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveCount)
	assert.Equal(t, 2, stats.InactiveCount)
	assert.Equal(t, 1, stats.PromotedCount)
	assert.Equal(t, 1, stats.LeftCount)
	require.NotNil(t, stats.OldestJoinedAt)
	assert.Greater(t, stats.AverageWaitHours, 0.0)
}

func TestGetStudentWaitlists(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "a").addCourse("c2", 1, "a").addStudents("a", "b")
	ctx := context.Background()
	_, err := f.waitlist.AddToWaitlist(ctx, "c2", "b")
	require.NoError(t, err)
	_, err = f.waitlist.AddToWaitlist(ctx, "c1", "b")
	require.NoError(t, err)

	entries, err := f.waitlist.GetStudentWaitlists(ctx, "b")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c2", entries[0].CourseID)
	assert.Equal(t, "c1", entries[1].CourseID)

	entries, err = f.waitlist.GetStudentWaitlists(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClearInactiveEntries(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "a").addStudents("a", "b", "c")
	ctx := context.Background()
	for _, id := range []string{"b", "c"} {
		_, err := f.waitlist.AddToWaitlist(ctx, "c1", id)
		require.NoError(t, err)
	}
	require.NoError(t, f.waitlist.RemoveFromWaitlist(ctx, "c1", "b"))

	purged, err := f.waitlist.ClearInactiveEntries(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, purged, "recent history is retained")

	purged, err = f.waitlist.ClearInactiveEntries(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	entries, err := f.waitlists.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].StudentID)
	assert.Equal(t, 1, entries[0].Position)
}

func TestWaitlistPositionsStayDense(t *testing.T) {
	f := newAdmissionFixture(models.PromotionStopOnFirstFailure)
	f.store.addCourse("c1", 1, "seat").addStudents("seat")
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	var queued []string
	for i := 0; i < 200; i++ {
		if len(queued) == 0 || rng.Intn(3) > 0 {
			id := fmt.Sprintf("s%d", i)
			f.store.addStudents(id)
			_, err := f.waitlist.AddToWaitlist(ctx, "c1", id)
			require.NoError(t, err)
			queued = append(queued, id)
		} else {
			idx := rng.Intn(len(queued))
			require.NoError(t, f.waitlist.RemoveFromWaitlist(ctx, "c1", queued[idx]))
			queued = append(queued[:idx], queued[idx+1:]...)
		}

		queue, err := f.waitlist.GetWaitlist(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, queue, len(queued))
		for pos, e := range queue {
			require.Equal(t, pos+1, e.Position)
			require.Equal(t, queued[pos], e.StudentID)
			if pos > 0 {
				require.True(t, queue[pos-1].JoinedAt.Before(e.JoinedAt))
			}
		}
	}
}
