package projectrun

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.temporal.io/sdk/testsuite"

	"github.com/yungbote/roomforge-backend/internal/chathistory"
	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/platform/dbctx"
	"github.com/yungbote/roomforge-backend/internal/platform/gcp"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
	"github.com/yungbote/roomforge-backend/internal/providers"
	"github.com/yungbote/roomforge-backend/internal/providers/mock"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type memRecords struct {
	mu   sync.Mutex
	rows map[string]project.ProjectRecord
}

func newMemRecords() *memRecords {
	return &memRecords{rows: map[string]project.ProjectRecord{}}
}

func (m *memRecords) Upsert(_ dbctx.Context, rec *project.ProjectRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[rec.ID] = *rec
	return nil
}

func (m *memRecords) Delete(_ dbctx.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memRecords) get(id string) (project.ProjectRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	return rec, ok
}

func newActivities(set providers.Set) (*Activities, *gcp.MemoryBucket, *memRecords) {
	bucket := gcp.NewMemoryBucket()
	records := newMemRecords()
	return &Activities{
		Log:       logger.Nop(),
		Bucket:    bucket,
		Chat:      chathistory.NewBucketStore(bucket),
		Providers: set,
		Records:   records,
	}, bucket, records
}

func put(t *testing.T, b gcp.BucketService, key string) {
	t.Helper()
	if err := b.Upload(context.Background(), key, strings.NewReader("img:"+key), ""); err != nil {
		t.Fatalf("upload %s: %v", key, err)
	}
}

func roomPhoto(projectID, id string) project.Photo {
	return project.Photo{ID: id, StorageKey: project.BlobKey(projectID, project.BlobPhotos, id+".jpg"), Type: project.PhotoTypeRoom}
}

// workflowHarness drives one project workflow in the SDK test environment. Delayed
// callbacks record snapshots; assertions run after the workflow returns.
type workflowHarness struct {
	env     *testsuite.TestWorkflowEnvironment
	acts    *Activities
	bucket  *gcp.MemoryBucket
	records *memRecords

	mu    sync.Mutex
	snaps map[string]project.Project
	errs  []error
}

func newWorkflowHarness(t *testing.T, set providers.Set) *workflowHarness {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.SetStartTime(t0)
	acts, bucket, records := newActivities(set)
	Register(env, acts)
	return &workflowHarness{
		env:     env,
		acts:    acts,
		bucket:  bucket,
		records: records,
		snaps:   map[string]project.Project{},
	}
}

func (h *workflowHarness) signalAt(d time.Duration, sig project.Signal) {
	env, err := project.Encode(sig)
	if err != nil {
		h.fail(err)
		return
	}
	h.env.RegisterDelayedCallback(func() {
		h.env.SignalWorkflow(SignalName, env)
	}, d)
}

func (h *workflowHarness) rawSignalAt(d time.Duration, env project.Envelope) {
	h.env.RegisterDelayedCallback(func() {
		h.env.SignalWorkflow(SignalName, env)
	}, d)
}

func (h *workflowHarness) snapshotAt(d time.Duration, label string) {
	h.env.RegisterDelayedCallback(func() {
		val, err := h.env.QueryWorkflow(QueryName)
		if err != nil {
			h.fail(err)
			return
		}
		var p project.Project
		if err := val.Get(&p); err != nil {
			h.fail(err)
			return
		}
		h.mu.Lock()
		h.snaps[label] = p
		h.mu.Unlock()
	}, d)
}

func (h *workflowHarness) fail(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func (h *workflowHarness) run(t *testing.T, p project.Project, policy Policy) {
	t.Helper()
	h.env.ExecuteWorkflow(WorkflowName, WorkflowInput{Project: p, Policy: policy})
	if !h.env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if err := h.env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	for _, err := range h.errs {
		t.Fatalf("callback error: %v", err)
	}
}

func (h *workflowHarness) snap(t *testing.T, label string) project.Project {
	t.Helper()
	p, ok := h.snaps[label]
	if !ok {
		t.Fatalf("no snapshot %q", label)
	}
	return p
}

// failingStudio fails every edit with kind and can be told to return empty designs.
type failingStudio struct {
	mock.Studio
	editKind    providers.ErrorKind
	emptyDesign bool

	mu        sync.Mutex
	generates int
	edits     int
}

func (s *failingStudio) Generate(ctx context.Context, req providers.GenerateRequest) ([]providers.GeneratedDesign, error) {
	s.mu.Lock()
	s.generates++
	s.mu.Unlock()
	if s.emptyDesign {
		return []providers.GeneratedDesign{{Caption: "blank"}}, nil
	}
	return s.Studio.Generate(ctx, req)
}

func (s *failingStudio) Edit(ctx context.Context, req providers.EditRequest) (providers.Image, error) {
	s.mu.Lock()
	s.edits++
	s.mu.Unlock()
	if s.editKind != "" {
		return providers.Image{}, providers.Errorf(s.editKind, "edit refused")
	}
	return s.Studio.Edit(ctx, req)
}

func (s *failingStudio) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generates, s.edits
}

func withStudio(studio providers.ImageStudio) providers.Set {
	set := mock.New()
	set.Studio = studio
	return set
}

func dbctxBackground() dbctx.Context {
	return dbctx.Background()
}

func historyWith(texts ...string) chathistory.History {
	var h chathistory.History
	for _, txt := range texts {
		h.Messages = append(h.Messages, chathistory.Message{Role: chathistory.RoleUser, Text: txt, At: t0})
	}
	return h
}
