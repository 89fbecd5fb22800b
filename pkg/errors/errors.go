package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
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

// Is matches errors sharing the same code so cloned and wrapped copies of a
// sentinel still satisfy errors.Is.
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
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("PERMISSION_DENIED", http.StatusForbidden, "you do not have permission to perform this action")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrTooManyRequests    = New("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "too many requests")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Timetable consistency errors.
var (
	ErrInvalidTeacherRole    = New("INVALID_TEACHER_ROLE", http.StatusBadRequest, "assigned teacher must have the teacher role")
	ErrBreakPeriodConflict   = New("BREAK_PERIOD_CONFLICT", http.StatusBadRequest, "break periods cannot have a subject or teacher")
	ErrMissingSubject        = New("MISSING_SUBJECT", http.StatusBadRequest, "a subject is required for non-break periods")
	ErrDuplicateScheduleSlot = New("DUPLICATE_SCHEDULE_SLOT", http.StatusConflict, "class already has a schedule for this day and time slot")
	ErrScheduleOverlap       = New("SCHEDULE_SLOT_OVERLAP", http.StatusConflict, "time slot overlaps another schedule for this class and day")
	ErrInvalidTimeRange      = New("INVALID_TIME_RANGE", http.StatusBadRequest, "start time must be before end time")
)

// Account token errors.
var (
	ErrInvalidOrExpiredToken = New("INVALID_OR_EXPIRED_TOKEN", http.StatusBadRequest, "invalid or expired token")
	ErrStaleToken            = New("STALE_TOKEN", http.StatusForbidden, "stale token for given user")
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
