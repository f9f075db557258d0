package handler

import "github.com/gin-gonic/gin"

// Handlers groups the HTTP handlers mounted by RegisterRoutes.
type Handlers struct {
	Courses     *CourseHandler
	Enrollments *EnrollmentHandler
	Waitlist    *WaitlistHandler
	Analytics   *AnalyticsHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts probes at the engine root and the API under prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.GET("/metrics/summary", h.Metrics.Summary)

	api.GET("/courses", h.Courses.List)
	api.GET("/courses/:id", h.Courses.Get)
	api.GET("/courses/:id/students", h.Courses.Students)
	api.GET("/students/:id/courses", h.Courses.StudentCourses)

	api.POST("/courses/:id/enrollments", h.Enrollments.Enroll)
	api.DELETE("/courses/:id/enrollments/:studentId", h.Enrollments.Unenroll)
	api.GET("/courses/:id/enrollment-info", h.Enrollments.Info)
	api.GET("/courses/:id/eligibility/:studentId", h.Enrollments.Eligibility)
	api.POST("/enrollments/transfer", h.Enrollments.Transfer)

	api.POST("/courses/:id/waitlist", h.Waitlist.Join)
	api.GET("/courses/:id/waitlist", h.Waitlist.List)
	api.POST("/courses/:id/waitlist/promote", h.Waitlist.Promote)
	api.GET("/courses/:id/waitlist/statistics", h.Waitlist.Statistics)
	api.DELETE("/courses/:id/waitlist/:studentId", h.Waitlist.Leave)
	api.GET("/courses/:id/waitlist/:studentId/position", h.Waitlist.Position)
	api.GET("/students/:id/waitlists", h.Waitlist.StudentWaitlists)
	api.POST("/waitlists/cleanup", h.Waitlist.Cleanup)

	api.GET("/courses/:id/statistics", h.Analytics.Statistics)
	api.GET("/courses/:id/roster/export", h.Analytics.ExportRoster)
}
