package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
	"github.com/noah-isme/course-admission-api/pkg/jobs"
)

const promotionJobType = "waitlist.promote"

type waitlistPromoter interface {
	ProcessWaitlistForAvailableSpot(ctx context.Context, courseID string) (*models.WaitlistEntry, error)
}

// PromotionConfig tunes the promotion worker pool.
type PromotionConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// PromotionDispatcher fills freed seats from the waitlist in the background. Each scheduled course
// is promoted until the queue is empty or the course is full again.
type PromotionDispatcher struct {
	promoter waitlistPromoter
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewPromotionDispatcher constructs the dispatcher; call Start before Schedule.
func NewPromotionDispatcher(promoter waitlistPromoter, cfg PromotionConfig, logger *zap.Logger) *PromotionDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &PromotionDispatcher{promoter: promoter, logger: logger}
	d.queue = jobs.NewQueue("waitlist-promotion", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return d
}

// Start launches the workers.
func (d *PromotionDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers.
func (d *PromotionDispatcher) Stop() {
	d.queue.Stop()
}

// Schedule requests promotion for courseID. Requests for a course already waiting are merged.
func (d *PromotionDispatcher) Schedule(courseID string) error {
	err := d.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    promotionJobType,
		Key:     courseID,
		Payload: courseID,
	})
	if errors.Is(err, jobs.ErrDuplicate) {
		return nil
	}
	return err
}

func (d *PromotionDispatcher) handle(ctx context.Context, job jobs.Job) error {
	courseID, ok := job.Payload.(string)
	if !ok || courseID == "" {
		return jobs.Permanent(fmt.Errorf("invalid promotion payload %v", job.Payload))
	}
	promoted := 0
	for {
		entry, err := d.promoter.ProcessWaitlistForAvailableSpot(ctx, courseID)
		if err != nil {
			if errors.Is(err, appErrors.ErrCourseFull) && promoted > 0 {
				break
			}
			var appErr *appErrors.Error
			if errors.As(err, &appErr) && appErr.Status < 500 {
				d.logger.Info("waitlist promotion stopped",
					zap.String("course_id", courseID), zap.Int("promoted", promoted), zap.Error(err))
				return jobs.Permanent(err)
			}
			return err
		}
		if entry == nil {
			break
		}
		promoted++
		d.logger.Info("waitlist student promoted",
			zap.String("course_id", courseID),
			zap.String("student_id", entry.StudentID),
			zap.String("job_id", job.ID),
		)
	}
	return nil
}
