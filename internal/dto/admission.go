package dto

import "github.com/noah-isme/course-admission-api/internal/models"

// EnrollRequest is the payload for enrolling or waitlisting a student.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
}

// TransferRequest moves a student's seat between two courses.
type TransferRequest struct {
	StudentID    string `json:"student_id" validate:"required,max=64"`
	FromCourseID string `json:"from_course_id" validate:"required,max=64"`
	ToCourseID   string `json:"to_course_id" validate:"required,max=64,nefield=FromCourseID"`
}

// CleanupRequest purges waitlist history. OlderThan is a Go duration such as "720h"; empty uses the
// configured retention.
type CleanupRequest struct {
	OlderThan string `json:"older_than"`
}

// EligibilityResponse answers whether a student could enroll right now.
type EligibilityResponse struct {
	CourseID  string `json:"course_id"`
	StudentID string `json:"student_id"`
	CanEnroll bool   `json:"can_enroll"`
}

// WaitlistPositionResponse reports a student's place in a course queue.
type WaitlistPositionResponse struct {
	CourseID   string `json:"course_id"`
	StudentID  string `json:"student_id"`
	Waitlisted bool   `json:"waitlisted"`
	Position   int    `json:"position,omitempty"`
}

// PromotionResponse carries the promoted entry, or nil when nobody was waiting.
type PromotionResponse struct {
	Promoted *models.WaitlistEntry `json:"promoted"`
}

// CleanupResponse reports purged history entries.
type CleanupResponse struct {
	Purged int `json:"purged"`
}
