package models

import (
	"time"

	"github.com/lib/pq"
)

// CourseStatus represents the publication lifecycle of a course.
type CourseStatus string

// Possible course statuses.
const (
	CourseStatusDraft     CourseStatus = "DRAFT"
	CourseStatusPublished CourseStatus = "PUBLISHED"
	CourseStatusSuspended CourseStatus = "SUSPENDED"
	CourseStatusArchived  CourseStatus = "ARCHIVED"
)

// nearlyFullThreshold is the enrollment percentage above which a course is nearly full.
const nearlyFullThreshold = 80.0

// Course is a capacity-bounded offering students enroll into.
type Course struct {
	ID                 string         `db:"id" json:"id"`
	Title              string         `db:"title" json:"title"`
	MaxEnrollment      int            `db:"max_enrollment" json:"max_enrollment"`
	EnrolledStudentIDs pq.StringArray `db:"enrolled_student_ids" json:"enrolled_student_ids"`
	Status             CourseStatus   `db:"status" json:"status"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
}

// EnrolledCount returns the number of occupied seats.
func (c *Course) EnrolledCount() int {
	return len(c.EnrolledStudentIDs)
}

// AvailableSpots returns the free seats; negative only if capacity was lowered below occupancy.
func (c *Course) AvailableSpots() int {
	return c.MaxEnrollment - len(c.EnrolledStudentIDs)
}

// IsFull reports whether no seat is free.
func (c *Course) IsFull() bool {
	return c.AvailableSpots() <= 0
}

// EnrollmentPercentage returns occupancy as a percentage of capacity.
func (c *Course) EnrollmentPercentage() float64 {
	if c.MaxEnrollment <= 0 {
		return 0
	}
	return float64(len(c.EnrolledStudentIDs)) / float64(c.MaxEnrollment) * 100
}

// IsNearlyFull reports occupancy strictly above 80%.
func (c *Course) IsNearlyFull() bool {
	return c.EnrollmentPercentage() > nearlyFullThreshold
}

// CanAcceptEnrollments reports whether the course is published and has a free seat.
func (c *Course) CanAcceptEnrollments() bool {
	return c.Status == CourseStatusPublished && !c.IsFull()
}

// HasStudent reports whether studentID occupies a seat.
func (c *Course) HasStudent(studentID string) bool {
	for _, id := range c.EnrolledStudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}
