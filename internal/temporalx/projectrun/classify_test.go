package projectrun

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/providers"
)

func TestApplicationErrorRetryability(t *testing.T) {
	cases := []struct {
		err           error
		wantType      string
		wantRetryable bool
	}{
		{providers.Errorf(providers.KindTransient, "503"), "Transient", true},
		{providers.Errorf(providers.KindContentPolicy, "blocked"), "ContentPolicy", false},
		{providers.Errorf(providers.KindAuth, "bad key"), "Auth", false},
		{providers.Errorf(providers.KindInvalidInput, "no photos"), "InvalidInput", false},
		{errors.New("connection reset"), "Transient", true},
	}
	for _, tc := range cases {
		err := applicationError(tc.err)
		var appErr *temporal.ApplicationError
		if !errors.As(err, &appErr) {
			t.Fatalf("%v: not an application error", tc.err)
		}
		if appErr.Type() != tc.wantType {
			t.Fatalf("%v: type=%s want %s", tc.err, appErr.Type(), tc.wantType)
		}
		if appErr.NonRetryable() == tc.wantRetryable {
			t.Fatalf("%v: non-retryable=%v", tc.err, appErr.NonRetryable())
		}
	}
	if applicationError(nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
	if err := applicationError(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation should pass through, got %v", err)
	}
}

func TestProjectErrorCategories(t *testing.T) {
	perr := projectError(temporal.NewNonRetryableApplicationError("blocked by policy", "ContentPolicy", nil))
	if perr.Category != project.CategoryPermanent || perr.Retryable || perr.Code != "content_policy" {
		t.Fatalf("content policy: %+v", perr)
	}

	perr = projectError(temporal.NewApplicationError("upstream 503", "Transient"))
	if perr.Category != project.CategoryTransient || !perr.Retryable || perr.Code != "retries_exhausted" {
		t.Fatalf("transient: %+v", perr)
	}

	perr = projectError(errors.New(strings.Repeat("x", 400)))
	if perr.Code != "activity_failed" || len(perr.Message) != 300 {
		t.Fatalf("unclassified: code=%s len=%d", perr.Code, len(perr.Message))
	}
}
