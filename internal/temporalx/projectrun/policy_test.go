package projectrun

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
)

func TestDefaultPolicyCoversEveryActivity(t *testing.T) {
	p := DefaultPolicy()
	kinds := []project.ActivityKind{
		project.ActivityValidatePhoto, project.ActivityGenerateDesigns, project.ActivityEditImage,
		project.ActivityIntakeTurn, project.ActivityBuildShoppingList, project.ActivityPurgeProject,
		project.ActivitySyncProjectRecord,
	}
	for _, k := range kinds {
		opts := p.ActivityOptions(k)
		if opts.StartToCloseTimeout <= 0 {
			t.Fatalf("%s: missing start-to-close timeout", k)
		}
		if opts.RetryPolicy == nil || opts.RetryPolicy.MaximumAttempts < 1 {
			t.Fatalf("%s: missing retry budget", k)
		}
	}
	if got := p.ActivityOptions(project.ActivityGenerateDesigns).HeartbeatTimeout; got != 45*time.Second {
		t.Fatalf("generate heartbeat: got %s", got)
	}
}

func TestRetryPolicySkipsPermanentKinds(t *testing.T) {
	rp := DefaultPolicy().ActivityOptions(project.ActivityEditImage).RetryPolicy
	want := map[string]bool{"ContentPolicy": true, "Auth": true, "InvalidInput": true}
	if len(rp.NonRetryableErrorTypes) != len(want) {
		t.Fatalf("non-retryable types: %v", rp.NonRetryableErrorTypes)
	}
	for _, typ := range rp.NonRetryableErrorTypes {
		if !want[typ] {
			t.Fatalf("unexpected non-retryable type %q", typ)
		}
	}
}

func TestLoadPolicyFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := `
activities:
  generate_designs:
    startToClose: 10m
    maxAttempts: 5
lifecycle:
  inactivity: 1h
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}
	gen := p.Activities[project.ActivityGenerateDesigns]
	if gen.StartToClose != 10*time.Minute || gen.MaxAttempts != 5 {
		t.Fatalf("generate overlay not applied: %+v", gen)
	}
	if gen.Heartbeat != 45*time.Second {
		t.Fatalf("unset fields should keep defaults: %+v", gen)
	}
	if p.Lifecycle.Inactivity != time.Hour || p.Lifecycle.PurgeDelay != 48*time.Hour {
		t.Fatalf("lifecycle overlay: %+v", p.Lifecycle)
	}
}

func TestLoadPolicyFileRejectsUnknownActivity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("activities:\n  paint_walls:\n    maxAttempts: 2\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPolicyFile(path); err == nil {
		t.Fatalf("expected error for unknown activity")
	}
}

func TestLoadPolicyFileEmptyPath(t *testing.T) {
	p, err := LoadPolicyFile("")
	if err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}
	if p.Lifecycle.MaxPermanentFailures != 3 {
		t.Fatalf("defaults: %+v", p.Lifecycle)
	}
}

func TestLifecycleFillsZeroValues(t *testing.T) {
	l := Policy{}.lifecycle()
	if l.Inactivity != 48*time.Hour || l.ContinueAsNewHistory != 10000 {
		t.Fatalf("lifecycle defaults: %+v", l)
	}
}
