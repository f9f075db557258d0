package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details []*Error `json:"details,omitempty"`
	Err     error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones match their template.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Admission and waitlist rule violations.
var (
	ErrCourseNotFound     = New("COURSE_NOT_FOUND", http.StatusNotFound, "course not found")
	ErrStudentNotFound    = New("STUDENT_NOT_FOUND", http.StatusNotFound, "student not found")
	ErrCourseUnavailable  = New("COURSE_UNAVAILABLE", http.StatusConflict, "course is not accepting enrollments")
	ErrCourseFull         = New("COURSE_FULL", http.StatusConflict, "course is full")
	ErrCourseNotFull      = New("COURSE_NOT_FULL", http.StatusConflict, "course still has available spots")
	ErrInvalidRole        = New("INVALID_ROLE", http.StatusForbidden, "only students can enroll")
	ErrAlreadyEnrolled    = New("ALREADY_ENROLLED", http.StatusConflict, "student already enrolled")
	ErrNotEnrolled        = New("NOT_ENROLLED", http.StatusConflict, "student is not enrolled")
	ErrAlreadyWaitlisted  = New("ALREADY_WAITLISTED", http.StatusConflict, "student already on waitlist")
	ErrNotOnWaitlist      = New("NOT_ON_WAITLIST", http.StatusNotFound, "student is not on waitlist")
	ErrValidationFailed   = New("VALIDATION_FAILED", http.StatusUnprocessableEntity, "enrollment validation failed")
	ErrRepositoryFailure  = New("REPOSITORY_FAILURE", http.StatusInternalServerError, "repository failure")
	ErrCompensationFailed = New("COMPENSATION_FAILED", http.StatusInternalServerError, "transfer compensation failed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Validation aggregates every violated rule into a single VALIDATION_FAILED error.
func Validation(violations ...*Error) *Error {
	clone := *ErrValidationFailed
	clone.Details = append([]*Error(nil), violations...)
	return &clone
}

// Violations returns the rule violations carried by err, or nil.
func Violations(err error) []*Error {
	var e *Error
	if !errors.As(err, &e) || e.Code != ErrValidationFailed.Code {
		return nil
	}
	return e.Details
}

// HasViolation reports whether err is kind itself or a validation failure listing kind.
func HasViolation(err error, kind *Error) bool {
	if errors.Is(err, kind) {
		return true
	}
	for _, v := range Violations(err) {
		if v.Code == kind.Code {
			return true
		}
	}
	return false
}

// Repository wraps an infrastructure failure with context.
func Repository(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, ErrRepositoryFailure.Code, ErrRepositoryFailure.Status, message)
}

// Compensation reports a failed undo step. Both causes are kept; the original is the wrapped error.
func Compensation(original, compensation error) *Error {
	e := Wrap(original, ErrCompensationFailed.Code, ErrCompensationFailed.Status, ErrCompensationFailed.Message)
	e.Details = []*Error{FromError(original), FromError(compensation)}
	return e
}
