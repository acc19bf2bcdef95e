package projectrun

import (
	"context"
	"errors"
	"strings"

	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/providers"
)

// applicationError converts an activity failure into a Temporal application error
// whose type is the provider error kind. Only Transient errors are retried.
func applicationError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := providers.KindOf(err)
	if kind.Retryable() {
		return temporal.NewApplicationErrorWithCause(err.Error(), string(kind), err)
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), string(kind), err)
}

var permanentCodes = map[string]string{
	string(providers.KindContentPolicy): "content_policy",
	string(providers.KindAuth):          "provider_auth",
	string(providers.KindInvalidInput):  "invalid_input",
}

// projectError is how the workflow records a failed activity. Non-retryable provider
// errors are permanent; everything else reached the end of its retry budget and is
// reported as retryable.
func projectError(err error) project.ProjectError {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		if code, ok := permanentCodes[appErr.Type()]; ok {
			return project.ProjectError{
				Message:   failureMessage(appErr.Message()),
				Retryable: false,
				Category:  project.CategoryPermanent,
				Code:      code,
			}
		}
		return project.ProjectError{
			Message:   failureMessage(appErr.Message()),
			Retryable: true,
			Category:  project.CategoryTransient,
			Code:      "retries_exhausted",
		}
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return project.ProjectError{
			Message:   "the operation timed out",
			Retryable: true,
			Category:  project.CategoryTransient,
			Code:      "activity_timeout",
		}
	}
	msg := "the operation failed"
	if err != nil {
		msg = failureMessage(err.Error())
	}
	return project.ProjectError{
		Message:   msg,
		Retryable: true,
		Category:  project.CategoryTransient,
		Code:      "activity_failed",
	}
}

func failureMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "the operation failed"
	}
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
