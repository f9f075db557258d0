package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// PostgresWaitlistStore persists waitlists in the waitlist_entries table.
type PostgresWaitlistStore struct {
	db *sqlx.DB
}

// NewPostgresWaitlistStore constructs the store.
func NewPostgresWaitlistStore(db *sqlx.DB) *PostgresWaitlistStore {
	return &PostgresWaitlistStore{db: db}
}

// Get returns the course's entries, active ones first in queue order.
func (s *PostgresWaitlistStore) Get(ctx context.Context, courseID string) ([]models.WaitlistEntry, error) {
	const query = `SELECT id, course_id, student_id, joined_at, position, is_active, removed_at, removal_reason
FROM waitlist_entries WHERE course_id = $1 ORDER BY is_active DESC, position ASC, joined_at ASC`
	var entries []models.WaitlistEntry
	if err := s.db.SelectContext(ctx, &entries, query, courseID); err != nil {
		return nil, fmt.Errorf("list waitlist entries: %w", err)
	}
	return entries, nil
}

// Put replaces the course's rows inside one transaction so readers never see a half-renumbered queue.
func (s *PostgresWaitlistStore) Put(ctx context.Context, courseID string, entries []models.WaitlistEntry) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin waitlist transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM waitlist_entries WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("clear waitlist entries: %w", err)
	}
	const insertQuery = `INSERT INTO waitlist_entries (id, course_id, student_id, joined_at, position, is_active, removed_at, removal_reason)
VALUES (:id, :course_id, :student_id, :joined_at, :position, :is_active, :removed_at, :removal_reason)`
	for i := range entries {
		entry := entries[i]
		entry.CourseID = courseID
		if _, err = tx.NamedExecContext(ctx, insertQuery, entry); err != nil {
			return fmt.Errorf("insert waitlist entry: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit waitlist: %w", err)
	}
	return nil
}

// CourseIDs lists courses with at least one row.
func (s *PostgresWaitlistStore) CourseIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT course_id FROM waitlist_entries ORDER BY course_id`); err != nil {
		return nil, fmt.Errorf("list waitlist courses: %w", err)
	}
	return ids, nil
}
