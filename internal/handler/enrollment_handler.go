package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admission-api/internal/dto"
	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/pkg/response"
)

type admissionService interface {
	EnrollStudent(ctx context.Context, courseID, studentID string) error
	UnenrollStudent(ctx context.Context, courseID, studentID string) error
	GetEnrollmentInfo(ctx context.Context, courseID, studentID string) (*models.EnrollmentInfo, error)
	CanStudentEnroll(ctx context.Context, courseID, studentID string) bool
	TransferStudent(ctx context.Context, fromCourseID, toCourseID, studentID string) error
}

// promotionScheduler requests background promotion for a course with a freed seat.
type promotionScheduler interface {
	Schedule(courseID string) error
}

// EnrollmentHandler exposes admission endpoints.
type EnrollmentHandler struct {
	service   admissionService
	scheduler promotionScheduler
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentHandler constructs the handler. A nil scheduler disables automatic promotion.
func NewEnrollmentHandler(service admissionService, scheduler promotionScheduler, validate *validator.Validate, logger *zap.Logger) *EnrollmentHandler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentHandler{service: service, scheduler: scheduler, validator: validate, logger: logger}
}

// Enroll godoc
// @Summary Enroll a student into a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if !bindJSON(c, h.validator, &req, "invalid enrollment payload") {
		return
	}
	courseID := c.Param("id")
	if err := h.service.EnrollStudent(c.Request.Context(), courseID, req.StudentID); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"course_id": courseID, "student_id": req.StudentID})
}

// Unenroll godoc
// @Summary Release a student's seat
// @Tags Enrollments
// @Param id path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/enrollments/{studentId} [delete]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	courseID := c.Param("id")
	if err := h.service.UnenrollStudent(c.Request.Context(), courseID, c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	h.schedulePromotion(courseID)
	response.NoContent(c)
}

// Info godoc
// @Summary Enrollment status of a course for an optional student
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Param studentId query string false "Student ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollment-info [get]
func (h *EnrollmentHandler) Info(c *gin.Context) {
	info, err := h.service.GetEnrollmentInfo(c.Request.Context(), c.Param("id"), c.Query("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

// Eligibility godoc
// @Summary Check whether a student may enroll now
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/eligibility/{studentId} [get]
func (h *EnrollmentHandler) Eligibility(c *gin.Context) {
	courseID, studentID := c.Param("id"), c.Param("studentId")
	response.JSON(c, http.StatusOK, dto.EligibilityResponse{
		CourseID:  courseID,
		StudentID: studentID,
		CanEnroll: h.service.CanStudentEnroll(c.Request.Context(), courseID, studentID),
	}, nil)
}

// Transfer godoc
// @Summary Move a student's seat to another course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.TransferRequest true "Transfer payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /enrollments/transfer [post]
func (h *EnrollmentHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !bindJSON(c, h.validator, &req, "invalid transfer payload") {
		return
	}
	if err := h.service.TransferStudent(c.Request.Context(), req.FromCourseID, req.ToCourseID, req.StudentID); err != nil {
		response.Error(c, err)
		return
	}
	h.schedulePromotion(req.FromCourseID)
	response.JSON(c, http.StatusOK, req, nil)
}

func (h *EnrollmentHandler) schedulePromotion(courseID string) {
	if h.scheduler == nil {
		return
	}
	if err := h.scheduler.Schedule(courseID); err != nil {
		h.logger.Warn("schedule waitlist promotion", zap.String("course_id", courseID), zap.Error(err))
	}
}
