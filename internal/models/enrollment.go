package models

import (
	"fmt"
	"time"
)

// EnrollmentStatus is the admission state reported for a (course, student) pair.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled    EnrollmentStatus = "ENROLLED"
	EnrollmentStatusNotEnrolled EnrollmentStatus = "NOT_ENROLLED"
	EnrollmentStatusWaitlisted  EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusFull        EnrollmentStatus = "FULL"
	EnrollmentStatusUnavailable EnrollmentStatus = "UNAVAILABLE"
)

// EnrollmentInfo is a computed, never persisted view of a course for one requester.
type EnrollmentInfo struct {
	CourseID         string           `json:"course_id"`
	CourseName       string           `json:"course_name"`
	Status           EnrollmentStatus `json:"status"`
	EnrolledCount    int              `json:"enrolled_count"`
	MaxEnrollment    int              `json:"max_enrollment"`
	AvailableSpots   int              `json:"available_spots"`
	CanEnroll        bool             `json:"can_enroll"`
	Message          string           `json:"message"`
	WaitlistPosition *int             `json:"waitlist_position,omitempty"`
}

// NewEnrollmentInfo derives the view with priority Enrolled > Unavailable > Full > Waitlisted-or-NotEnrolled.
// waitlistPosition is only consulted when the student is not enrolled.
func NewEnrollmentInfo(course *Course, studentID string, waitlistPosition *int) EnrollmentInfo {
	info := EnrollmentInfo{
		CourseID:       course.ID,
		CourseName:     course.Title,
		EnrolledCount:  course.EnrolledCount(),
		MaxEnrollment:  course.MaxEnrollment,
		AvailableSpots: course.AvailableSpots(),
	}
	if info.AvailableSpots < 0 {
		info.AvailableSpots = 0
	}

	enrolled := studentID != "" && course.HasStudent(studentID)
	switch {
	case enrolled:
		info.Status = EnrollmentStatusEnrolled
		info.Message = "You are enrolled in this course"
	case course.Status != CourseStatusPublished:
		info.Status = EnrollmentStatusUnavailable
		info.Message = "This course is not currently available for enrollment"
	case course.IsFull():
		info.Status = EnrollmentStatusFull
		info.Message = "This course is full"
		if waitlistPosition != nil {
			info.Status = EnrollmentStatusWaitlisted
			info.WaitlistPosition = waitlistPosition
			info.Message = fmt.Sprintf("You are #%d on the waitlist", *waitlistPosition)
		}
	default:
		info.Status = EnrollmentStatusNotEnrolled
		info.CanEnroll = true
		info.Message = fmt.Sprintf("%d spots available", info.AvailableSpots)
		if waitlistPosition != nil {
			info.Status = EnrollmentStatusWaitlisted
			info.WaitlistPosition = waitlistPosition
			info.Message = fmt.Sprintf("You are #%d on the waitlist and a spot is open", *waitlistPosition)
		}
	}
	return info
}

// AdmissionEventType names a fact emitted after a successful admission transition.
type AdmissionEventType string

const (
	EventEnrolled           AdmissionEventType = "ENROLLED"
	EventUnenrolled         AdmissionEventType = "UNENROLLED"
	EventWaitlisted         AdmissionEventType = "WAITLISTED"
	EventWaitlistLeft       AdmissionEventType = "WAITLIST_LEFT"
	EventPromoted           AdmissionEventType = "PROMOTED"
	EventTransferred        AdmissionEventType = "TRANSFERRED"
	EventCompensationFailed AdmissionEventType = "COMPENSATION_FAILED"
)

// AdmissionEvent is consumed by notification and analytics collaborators.
type AdmissionEvent struct {
	ID           string             `json:"id"`
	Type         AdmissionEventType `json:"type"`
	CourseID     string             `json:"course_id"`
	StudentID    string             `json:"student_id"`
	FromCourseID string             `json:"from_course_id,omitempty"`
	Position     int                `json:"position,omitempty"`
	OccurredAt   time.Time          `json:"occurred_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
