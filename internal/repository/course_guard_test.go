package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresCourseGuardHoldsLockUntilUnlock(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(advisoryLockQuery)).WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	guard := NewPostgresCourseGuard(db, 1, nil)
	unlock, err := guard.LockCourse(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, guard.slots, 1)

	unlock()
	assert.Len(t, guard.slots, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCourseGuardReleasesSlotOnFailure(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(advisoryLockQuery)).WithArgs("c1").WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	guard := NewPostgresCourseGuard(db, 1, nil)
	_, err := guard.LockCourse(context.Background(), "c1")
	require.Error(t, err)
	assert.Len(t, guard.slots, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCourseGuardWaitsForSlot(t *testing.T) {
	db, _, cleanup := newCourseRepoMock(t)
	defer cleanup()

	guard := NewPostgresCourseGuard(db, 1, nil)
	guard.slots <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := guard.LockCourse(ctx, "c1")
	assert.ErrorIs(t, err, context.Canceled)
}
