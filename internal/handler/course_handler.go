package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/pkg/response"
)

type courseService interface {
	GetCourses(ctx context.Context, limit int) ([]models.Course, error)
	GetCourse(ctx context.Context, courseID string) (*models.Course, error)
	GetEnrolledStudents(ctx context.Context, courseID string) ([]models.User, error)
	GetEnrolledCourses(ctx context.Context, studentID string, limit int) ([]models.Course, error)
}

// CourseHandler exposes read-only course endpoints.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler builds a new handler.
func NewCourseHandler(service courseService) *CourseHandler {
	return &CourseHandler{service: service}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param limit query int false "Maximum number of courses (default 20)"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	limit := parseLimit(c)
	courses, err := h.service.GetCourses(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, &models.Pagination{Page: 1, PageSize: limit, TotalCount: len(courses)})
}

// Get godoc
// @Summary Get a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil, map[string]interface{}{
		"available_spots":       course.AvailableSpots(),
		"enrollment_percentage": course.EnrollmentPercentage(),
		"is_nearly_full":        course.IsNearlyFull(),
	})
}

// Students godoc
// @Summary List students enrolled in a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/students [get]
func (h *CourseHandler) Students(c *gin.Context) {
	students, err := h.service.GetEnrolledStudents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// StudentCourses godoc
// @Summary List courses a student is enrolled in
// @Tags Courses
// @Produce json
// @Param id path string true "Student ID"
// @Param limit query int false "Maximum number of courses (default 20)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/courses [get]
func (h *CourseHandler) StudentCourses(c *gin.Context) {
	courses, err := h.service.GetEnrolledCourses(c.Request.Context(), c.Param("id"), parseLimit(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
