package models

import "time"

// WaitlistRemovalReason records why an entry left the active queue.
type WaitlistRemovalReason string

const (
	WaitlistRemovalLeft     WaitlistRemovalReason = "LEFT"
	WaitlistRemovalPromoted WaitlistRemovalReason = "PROMOTED"
	WaitlistRemovalEnrolled WaitlistRemovalReason = "ENROLLED"
	WaitlistRemovalSkipped  WaitlistRemovalReason = "SKIPPED"
)

// WaitlistEntry is a student's place in a course's admission queue.
// Active entries of one course always hold positions 1..N ordered by JoinedAt.
type WaitlistEntry struct {
	ID            string                 `db:"id" json:"id"`
	CourseID      string                 `db:"course_id" json:"course_id"`
	StudentID     string                 `db:"student_id" json:"student_id"`
	JoinedAt      time.Time              `db:"joined_at" json:"joined_at"`
	Position      int                    `db:"position" json:"position"`
	IsActive      bool                   `db:"is_active" json:"is_active"`
	RemovedAt     *time.Time             `db:"removed_at" json:"removed_at,omitempty"`
	RemovalReason *WaitlistRemovalReason `db:"removal_reason" json:"removal_reason,omitempty"`
}

// WaitlistStatistics summarises a course queue.
type WaitlistStatistics struct {
	CourseID         string     `json:"course_id"`
	ActiveCount      int        `json:"active_count"`
	InactiveCount    int        `json:"inactive_count"`
	PromotedCount    int        `json:"promoted_count"`
	LeftCount        int        `json:"left_count"`
	OldestJoinedAt   *time.Time `json:"oldest_joined_at,omitempty"`
	AverageWaitHours float64    `json:"average_wait_hours"`
}

// PromotionPolicy decides what happens when the queue head cannot be enrolled.
type PromotionPolicy string

const (
	// PromotionStopOnFirstFailure returns the head's enroll error and leaves the queue untouched.
	PromotionStopOnFirstFailure PromotionPolicy = "stop_on_first_failure"
	// PromotionAdvanceToNextCandidate drops heads that fail for student-specific reasons and tries the next one.
	PromotionAdvanceToNextCandidate PromotionPolicy = "advance_to_next_candidate"
)

// ParsePromotionPolicy maps a config value onto a policy, defaulting to stop-on-first-failure.
func ParsePromotionPolicy(raw string) PromotionPolicy {
	if PromotionPolicy(raw) == PromotionAdvanceToNextCandidate {
		return PromotionAdvanceToNextCandidate
	}
	return PromotionStopOnFirstFailure
}
