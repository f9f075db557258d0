package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

const courseColumns = `id, title, max_enrollment, enrolled_student_ids, status, created_at`

// CourseRepository persists courses and their enrolled-student sets in PostgreSQL.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// GetCourseByID returns a course or sql.ErrNoRows.
func (r *CourseRepository) GetCourseByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return &course, nil
}

// EnrollStudent adds studentID to the course iff a seat is free and the student is not already present.
// The check and the write happen under a row lock, so concurrent callers can never exceed capacity.
func (r *CourseRepository) EnrollStudent(ctx context.Context, courseID, studentID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enroll transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		MaxEnrollment int            `db:"max_enrollment"`
		Enrolled      pq.StringArray `db:"enrolled_student_ids"`
	}
	const lockQuery = `SELECT max_enrollment, enrolled_student_ids FROM courses WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, courseID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.ErrCourseNotFound
		}
		return fmt.Errorf("lock course: %w", err)
	}
	for _, id := range current.Enrolled {
		if id == studentID {
			return appErrors.ErrAlreadyEnrolled
		}
	}
	if len(current.Enrolled) >= current.MaxEnrollment {
		return appErrors.ErrCourseFull
	}

	const updateQuery = `UPDATE courses SET enrolled_student_ids = array_append(enrolled_student_ids, $2), updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, courseID, studentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("append enrolled student: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enroll: %w", err)
	}
	return nil
}

// UnenrollStudent removes studentID from the course; it reports ErrNotEnrolled when nothing changed.
func (r *CourseRepository) UnenrollStudent(ctx context.Context, courseID, studentID string) error {
	const query = `UPDATE courses SET enrolled_student_ids = array_remove(enrolled_student_ids, $2), updated_at = $3
WHERE id = $1 AND $2 = ANY(enrolled_student_ids)`
	result, err := r.db.ExecContext(ctx, query, courseID, studentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("remove enrolled student: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove enrolled student rows: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrNotEnrolled
	}
	return nil
}

// IsStudentEnrolled checks seat membership.
func (r *CourseRepository) IsStudentEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	const query = `SELECT $2 = ANY(enrolled_student_ids) FROM courses WHERE id = $1`
	var enrolled bool
	if err := r.db.GetContext(ctx, &enrolled, query, courseID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, err
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}

// GetEnrolledStudents lists the users occupying seats in a course.
func (r *CourseRepository) GetEnrolledStudents(ctx context.Context, courseID string) ([]models.User, error) {
	const query = `SELECT u.id, u.full_name, u.email, u.role
FROM courses c
JOIN users u ON u.id = ANY(c.enrolled_student_ids)
WHERE c.id = $1
ORDER BY u.full_name ASC`
	var students []models.User
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return students, nil
}

// GetEnrolledCourses lists the newest courses a student occupies a seat in.
func (r *CourseRepository) GetEnrolledCourses(ctx context.Context, studentID string, limit int) ([]models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE $1 = ANY(enrolled_student_ids) ORDER BY created_at DESC LIMIT $2`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, studentID, normaliseLimit(limit)); err != nil {
		return nil, fmt.Errorf("list enrolled courses: %w", err)
	}
	return courses, nil
}

// GetCourseStatistics returns occupancy figures keyed by metric name.
func (r *CourseRepository) GetCourseStatistics(ctx context.Context, courseID string) (map[string]float64, error) {
	const query = `SELECT max_enrollment, cardinality(enrolled_student_ids) AS enrolled FROM courses WHERE id = $1`
	var row struct {
		MaxEnrollment int `db:"max_enrollment"`
		Enrolled      int `db:"enrolled"`
	}
	if err := r.db.GetContext(ctx, &row, query, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("course statistics: %w", err)
	}
	course := models.Course{MaxEnrollment: row.MaxEnrollment, EnrolledStudentIDs: make(pq.StringArray, row.Enrolled)}
	return map[string]float64{
		"enrolled":              float64(row.Enrolled),
		"max_enrollment":        float64(row.MaxEnrollment),
		"available_spots":       float64(course.AvailableSpots()),
		"enrollment_percentage": course.EnrollmentPercentage(),
	}, nil
}

// GetCourses lists the newest courses.
func (r *CourseRepository) GetCourses(ctx context.Context, limit int) ([]models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses ORDER BY created_at DESC LIMIT $1`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, normaliseLimit(limit)); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

func normaliseLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
