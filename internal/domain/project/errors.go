package project

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("project not found")
	ErrNotOwner = errors.New("project belongs to another owner")
)

// ErrorCategory is the failure taxonomy surfaced to clients.
type ErrorCategory string

const (
	CategoryClientInput ErrorCategory = "client_input"
	CategoryTransient   ErrorCategory = "transient"
	CategoryPermanent   ErrorCategory = "permanent"
	CategoryLifecycle   ErrorCategory = "lifecycle"
)

// ProjectError is the last error recorded on a project. Retryable tells the client
// whether re-issuing the same signal can succeed.
type ProjectError struct {
	Message   string        `json:"message"`
	Retryable bool          `json:"retryable"`
	Category  ErrorCategory `json:"category"`
	Code      string        `json:"code"`
	Activity  ActivityKind  `json:"activity,omitempty"`
}

func (e *ProjectError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError is returned by signal validators; it becomes a non-retryable
// client_input ProjectError.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func clientError(code, msg string) *ProjectError {
	return &ProjectError{Message: msg, Retryable: false, Category: CategoryClientInput, Code: code}
}
