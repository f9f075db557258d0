package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
	"github.com/noah-isme/course-admission-api/pkg/export"
)

// RosterFormat selects the rendering of a roster export.
type RosterFormat string

const (
	RosterFormatCSV RosterFormat = "csv"
	RosterFormatPDF RosterFormat = "pdf"
)

var rosterHeaders = []string{"Seat", "Student ID", "Name", "Email", "Status", "Waitlist Position"}

// RosterExport is a rendered roster ready to be streamed to the client.
type RosterExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService renders course rosters: enrolled students followed by the active waitlist.
type ExportService struct {
	admission *AdmissionService
	waitlist  *WaitlistService
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(admission *AdmissionService, waitlist *WaitlistService, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{admission: admission, waitlist: waitlist, csv: csv, pdf: pdf, logger: logger}
}

// ExportRoster renders the roster of a course in the requested format.
func (s *ExportService) ExportRoster(ctx context.Context, courseID string, format RosterFormat) (*RosterExport, error) {
	if format != RosterFormatCSV && format != RosterFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	course, err := s.admission.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	students, err := s.admission.GetEnrolledStudents(ctx, courseID)
	if err != nil {
		return nil, err
	}
	queue, err := s.waitlist.GetWaitlist(ctx, courseID)
	if err != nil {
		return nil, err
	}

	now := s.admission.now()
	dataset := buildRosterDataset(students, queue)
	dataset.Footer = fmt.Sprintf("Generated %s, %d enrolled, %d waitlisted", now.Format(time.RFC3339), len(students), len(queue))
	var payload []byte
	switch format {
	case RosterFormatCSV:
		payload, err = s.csv.Render(dataset)
	case RosterFormatPDF:
		title := fmt.Sprintf("%s (%d/%d)", course.Title, course.EnrolledCount(), course.MaxEnrollment)
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		s.logger.Error("render roster", zap.String("course_id", courseID), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	return &RosterExport{
		Filename:    rosterFilename(course, format, now),
		ContentType: rosterContentType(format),
		Data:        payload,
	}, nil
}

func buildRosterDataset(students []models.User, queue []models.WaitlistEntry) export.Dataset {
	rows := make([]map[string]string, 0, len(students)+len(queue))
	for i, st := range students {
		rows = append(rows, map[string]string{
			"Seat":       strconv.Itoa(i + 1),
			"Student ID": st.ID,
			"Name":       st.FullName,
			"Email":      st.Email,
			"Status":     string(models.EnrollmentStatusEnrolled),
		})
	}
	for _, e := range queue {
		rows = append(rows, map[string]string{
			"Student ID":        e.StudentID,
			"Status":            string(models.EnrollmentStatusWaitlisted),
			"Waitlist Position": strconv.Itoa(e.Position),
		})
	}
	return export.Dataset{Headers: rosterHeaders, Rows: rows}
}

func rosterFilename(course *models.Course, format RosterFormat, at time.Time) string {
	return fmt.Sprintf("roster_%s_%s.%s", sanitizeFilename(course.ID), at.Format("20060102_150405"), format)
}

func rosterContentType(format RosterFormat) string {
	if format == RosterFormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
