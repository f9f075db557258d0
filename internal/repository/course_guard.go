package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const advisoryLockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

// PostgresCourseGuard serialises course writers across API replicas with a transaction-scoped
// advisory lock keyed by course id. Each held lock pins one pooled connection, so at most slots
// locks are held at once and the rest of the pool stays available to the critical sections.
type PostgresCourseGuard struct {
	db     *sqlx.DB
	slots  chan struct{}
	logger *zap.Logger
}

// NewPostgresCourseGuard constructs the guard. slots below one is treated as one.
func NewPostgresCourseGuard(db *sqlx.DB, slots int, logger *zap.Logger) *PostgresCourseGuard {
	if slots < 1 {
		slots = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresCourseGuard{db: db, slots: make(chan struct{}, slots), logger: logger}
}

// LockCourse blocks until the advisory lock for courseID is held. The returned func ends the
// holding transaction, which releases the lock.
func (g *PostgresCourseGuard) LockCourse(ctx context.Context, courseID string) (func(), error) {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// The lock must outlive request cancellation until unlock is called.
	tx, err := g.db.BeginTxx(context.WithoutCancel(ctx), nil)
	if err != nil {
		<-g.slots
		return nil, fmt.Errorf("begin course lock transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, advisoryLockQuery, courseID); err != nil {
		_ = tx.Rollback()
		<-g.slots
		return nil, fmt.Errorf("acquire course lock %s: %w", courseID, err)
	}
	return func() {
		if err := tx.Rollback(); err != nil {
			g.logger.Warn("release course lock", zap.String("course_id", courseID), zap.Error(err))
		}
		<-g.slots
	}, nil
}
