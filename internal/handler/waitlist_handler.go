package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/course-admission-api/internal/dto"
	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
	"github.com/noah-isme/course-admission-api/pkg/response"
)

type waitlistService interface {
	AddToWaitlist(ctx context.Context, courseID, studentID string) (*models.WaitlistEntry, error)
	RemoveFromWaitlist(ctx context.Context, courseID, studentID string) error
	GetWaitlist(ctx context.Context, courseID string) ([]models.WaitlistEntry, error)
	GetWaitlistPosition(ctx context.Context, courseID, studentID string) (int, bool, error)
	ProcessWaitlistForAvailableSpot(ctx context.Context, courseID string) (*models.WaitlistEntry, error)
	GetWaitlistStatistics(ctx context.Context, courseID string) (*models.WaitlistStatistics, error)
	GetStudentWaitlists(ctx context.Context, studentID string) ([]models.WaitlistEntry, error)
	ClearInactiveEntries(ctx context.Context, olderThan time.Duration) (int, error)
}

// WaitlistHandler exposes course queue endpoints.
type WaitlistHandler struct {
	service   waitlistService
	validator *validator.Validate
	retention time.Duration
}

// NewWaitlistHandler builds a new handler. retention is the default age for history cleanup.
func NewWaitlistHandler(service waitlistService, validate *validator.Validate, retention time.Duration) *WaitlistHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &WaitlistHandler{service: service, validator: validate, retention: retention}
}

// Join godoc
// @Summary Join the waitlist of a full course
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.EnrollRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{id}/waitlist [post]
func (h *WaitlistHandler) Join(c *gin.Context) {
	var req dto.EnrollRequest
	if !bindJSON(c, h.validator, &req, "invalid waitlist payload") {
		return
	}
	entry, err := h.service.AddToWaitlist(c.Request.Context(), c.Param("id"), req.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Leave godoc
// @Summary Leave a course waitlist
// @Tags Waitlist
// @Param id path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/waitlist/{studentId} [delete]
func (h *WaitlistHandler) Leave(c *gin.Context) {
	if err := h.service.RemoveFromWaitlist(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary Active waitlist of a course
// @Tags Waitlist
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/waitlist [get]
func (h *WaitlistHandler) List(c *gin.Context) {
	entries, err := h.service.GetWaitlist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Position godoc
// @Summary Waitlist position of a student
// @Tags Waitlist
// @Produce json
// @Param id path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/waitlist/{studentId}/position [get]
func (h *WaitlistHandler) Position(c *gin.Context) {
	courseID, studentID := c.Param("id"), c.Param("studentId")
	position, ok, err := h.service.GetWaitlistPosition(c.Request.Context(), courseID, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.WaitlistPositionResponse{
		CourseID:   courseID,
		StudentID:  studentID,
		Waitlisted: ok,
		Position:   position,
	}, nil)
}

// Promote godoc
// @Summary Promote the head of the waitlist into a free seat
// @Tags Waitlist
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/waitlist/promote [post]
func (h *WaitlistHandler) Promote(c *gin.Context) {
	entry, err := h.service.ProcessWaitlistForAvailableSpot(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.PromotionResponse{Promoted: entry}, nil)
}

// Statistics godoc
// @Summary Waitlist statistics of a course
// @Tags Waitlist
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/waitlist/statistics [get]
func (h *WaitlistHandler) Statistics(c *gin.Context) {
	stats, err := h.service.GetWaitlistStatistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// StudentWaitlists godoc
// @Summary Active waitlist entries of a student
// @Tags Waitlist
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/waitlists [get]
func (h *WaitlistHandler) StudentWaitlists(c *gin.Context) {
	entries, err := h.service.GetStudentWaitlists(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Cleanup godoc
// @Summary Purge waitlist history
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param payload body dto.CleanupRequest false "Cleanup payload"
// @Success 200 {object} response.Envelope
// @Router /waitlists/cleanup [post]
func (h *WaitlistHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cleanup payload"))
			return
		}
	}
	olderThan := h.retention
	if req.OlderThan != "" {
		parsed, err := time.ParseDuration(req.OlderThan)
		if err != nil || parsed < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "older_than must be a non-negative duration"))
			return
		}
		olderThan = parsed
	}
	purged, err := h.service.ClearInactiveEntries(c.Request.Context(), olderThan)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CleanupResponse{Purged: purged}, nil)
}
