package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/internal/service"
	"github.com/noah-isme/course-admission-api/pkg/response"
)

type analyticsService interface {
	CourseStatistics(ctx context.Context, courseID string) (*models.CourseStatistics, bool, error)
}

type rosterExporter interface {
	ExportRoster(ctx context.Context, courseID string, format service.RosterFormat) (*service.RosterExport, error)
}

// AnalyticsHandler exposes course statistics and roster exports.
type AnalyticsHandler struct {
	analytics analyticsService
	exporter  rosterExporter
}

// NewAnalyticsHandler constructs an analytics handler.
func NewAnalyticsHandler(analytics analyticsService, exporter rosterExporter) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, exporter: exporter}
}

// Statistics godoc
// @Summary Seat and waitlist statistics of a course
// @Tags Analytics
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/statistics [get]
func (h *AnalyticsHandler) Statistics(c *gin.Context) {
	stats, cached, err := h.analytics.CourseStatistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, map[string]interface{}{"cached": cached})
}

// ExportRoster godoc
// @Summary Download the roster of a course
// @Tags Analytics
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /courses/{id}/roster/export [get]
func (h *AnalyticsHandler) ExportRoster(c *gin.Context) {
	format := service.RosterFormat(c.DefaultQuery("format", string(service.RosterFormatCSV)))
	result, err := h.exporter.ExportRoster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
