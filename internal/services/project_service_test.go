package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/yungbote/roomforge-backend/internal/data/repos"
	"github.com/yungbote/roomforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/platform/apierr"
	"github.com/yungbote/roomforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/roomforge-backend/internal/platform/dbctx"
	"github.com/yungbote/roomforge-backend/internal/platform/gcp"
)

// fakeEngine applies signals synchronously and never runs activities.
type fakeEngine struct {
	mu        sync.Mutex
	projects  map[string]project.Project
	delivered []project.SignalType
	startErr  error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{projects: map[string]project.Project{}}
}

func (f *fakeEngine) Start(ctx context.Context, p project.Project) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
	return nil
}

func (f *fakeEngine) Snapshot(ctx context.Context, id string) (project.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return p.Clone(), nil
}

func (f *fakeEngine) Signal(ctx context.Context, id string, sig project.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return project.ErrNotFound
	}
	f.delivered = append(f.delivered, sig.Type())
	next, _ := project.Apply(p, sig, p.UpdatedAt)
	f.projects[id] = next
	return nil
}

func (f *fakeEngine) set(p project.Project) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
}

func (f *fakeEngine) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

type serviceFixture struct {
	svc    ProjectService
	engine *fakeEngine
	bucket *gcp.MemoryBucket
	dbc    dbctx.Context
}

func newServiceFixture(t *testing.T, owner string) *serviceFixture {
	t.Helper()
	log := testutil.Logger(t)
	conn := testutil.DB(t)
	engine := newFakeEngine()
	bucket := gcp.NewMemoryBucket()
	svc := NewProjectService(log, repos.New(conn, log).ProjectRecords, engine, bucket)
	ctx := ctxutil.WithOwner(context.Background(), owner)
	return &serviceFixture{svc: svc, engine: engine, bucket: bucket, dbc: dbctx.Context{Ctx: ctx}}
}

func (fx *serviceFixture) create(t *testing.T) project.Project {
	t.Helper()
	p, err := fx.svc.Create(fx.dbc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return *p
}

func wantStatus(t *testing.T, err error, status int, code string) *apierr.Error {
	t.Helper()
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("want api error %d, got %v", status, err)
	}
	if ae.Status != status || (code != "" && ae.Code != code) {
		t.Fatalf("api error: want=%d/%s got=%d/%s (%v)", status, code, ae.Status, ae.Code, ae.Err)
	}
	return ae
}

func TestProjectServiceCreateAndGet(t *testing.T) {
	fx := newServiceFixture(t, "owner-1")
	p := fx.create(t)
	if p.Step != project.StepPhotoUpload || p.OwnerID != "owner-1" {
		t.Fatalf("created project: step=%s owner=%s", p.Step, p.OwnerID)
	}
	got, err := fx.svc.Get(fx.dbc, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != p.ID {
		t.Fatalf("Get id: want=%s got=%s", p.ID, got.ID)
	}
	rows, err := fx.svc.List(fx.dbc, 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("List: rows=%d err=%v", len(rows), err)
	}
}

func TestProjectServiceCreateRollsBackRecord(t *testing.T) {
	fx := newServiceFixture(t, "owner-1")
	fx.engine.startErr = errors.New("temporal unavailable")
	_, err := fx.svc.Create(fx.dbc)
	wantStatus(t, err, http.StatusInternalServerError, "internal_error")
	rows, _ := fx.svc.List(fx.dbc, 10)
	if len(rows) != 0 {
		t.Fatalf("record should be rolled back, have %d", len(rows))
	}
}

func TestProjectServiceHidesForeignProjects(t *testing.T) {
	fx := newServiceFixture(t, "owner-1")
	p := fx.create(t)
	other := dbctx.Context{Ctx: ctxutil.WithOwner(context.Background(), "owner-2")}
	_, err := fx.svc.Get(other, p.ID)
	wantStatus(t, err, http.StatusNotFound, "project_not_found")

	_, err = fx.svc.Get(fx.dbc, "missing")
	wantStatus(t, err, http.StatusNotFound, "project_not_found")
}

func TestProjectServiceSignalOutcomes(t *testing.T) {
	fx := newServiceFixture(t, "owner-1")
	p := fx.create(t)

	// Wrong step: refused and not delivered.
	_, err := fx.svc.Signal(fx.dbc, p.ID, project.Approve{})
	wantStatus(t, err, http.StatusConflict, project.CodeWrongStep)
	if fx.engine.deliveredCount() != 0 {
		t.Fatalf("wrong-step signal must not be delivered")
	}

	// Validation failure: delivered so the workflow records it.
	_, err = fx.svc.Signal(fx.dbc, p.ID, project.ConfirmPhotos{})
	wantStatus(t, err, http.StatusUnprocessableEntity, "not_enough_photos")
	if fx.engine.deliveredCount() != 1 {
		t.Fatalf("invalid signal must be delivered")
	}
	snap, _ := fx.svc.Get(fx.dbc, p.ID)
	if snap.Error == nil || snap.Error.Code != "not_enough_photos" {
		t.Fatalf("workflow should record the validation error: %+v", snap.Error)
	}

	// Busy: retryable conflict.
	busy, _ := fx.engine.Snapshot(context.Background(), p.ID)
	busy.PendingActivity = project.ActivityValidatePhoto
	fx.engine.set(busy)
	_, err = fx.svc.Signal(fx.dbc, p.ID, project.RemovePhoto{PhotoID: "x"})
	if ae := wantStatus(t, err, http.StatusConflict, project.CodeActivityInProgress); !ae.Retryable || ae.Detail != "activity=validate_photo" {
		t.Fatalf("busy conflict: retryable=%v detail=%q", ae.Retryable, ae.Detail)
	}

	// Idempotent duplicate: no-op.
	scan, _ := fx.engine.Snapshot(context.Background(), p.ID)
	scan.PendingActivity = ""
	scan.Step = project.StepIntake
	fx.engine.set(scan)
	res, err := fx.svc.Signal(fx.dbc, p.ID, project.SkipScan{})
	if err != nil || res.Outcome != project.OutcomeNoop {
		t.Fatalf("duplicate skip_scan: outcome=%v err=%v", res, err)
	}
	if res.Current == nil || res.Current.Step != project.StepIntake {
		t.Fatalf("noop should carry the committed snapshot: %+v", res.Current)
	}
}

func TestProjectServiceUploadPhoto(t *testing.T) {
	fx := newServiceFixture(t, "owner-1")
	p := fx.create(t)

	res, err := fx.svc.UploadPhoto(fx.dbc, p.ID, PhotoUpload{
		Type:        project.PhotoTypeRoom,
		ContentType: "image/png",
		Body:        strings.NewReader("png-bytes"),
	})
	if err != nil {
		t.Fatalf("UploadPhoto: %v", err)
	}
	if res.Outcome != project.OutcomeApplied || res.ProjectID != p.ID || res.Current != nil {
		t.Fatalf("an applied signal must not carry a predicted state: %+v", res)
	}
	stored, _ := fx.engine.Snapshot(context.Background(), p.ID)
	if len(stored.Photos) != 1 {
		t.Fatalf("photos after upload: %d", len(stored.Photos))
	}
	key := stored.Photos[0].StorageKey
	if !project.OwnsKey(p.ID, key) || !strings.HasSuffix(key, ".png") {
		t.Fatalf("photo key: %s", key)
	}
	if fx.bucket.Len() != 1 {
		t.Fatalf("photo not stored")
	}

	// Validation never completes in the fake engine; clear it by hand.
	idle, _ := fx.engine.Snapshot(context.Background(), p.ID)
	idle.PendingActivity = ""
	fx.engine.set(idle)

	// A bad photo type is recorded but nothing is stored.
	_, err = fx.svc.UploadPhoto(fx.dbc, p.ID, PhotoUpload{Type: "selfie", Body: strings.NewReader("x")})
	wantStatus(t, err, http.StatusUnprocessableEntity, "invalid_photo_type")
	if fx.bucket.Len() != 1 {
		t.Fatalf("invalid upload must not be stored")
	}
}

func TestProjectServiceDelete(t *testing.T) {
	fx := newServiceFixture(t, "owner-1")
	p := fx.create(t)
	if err := fx.svc.Delete(fx.dbc, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	snap, _ := fx.engine.Snapshot(context.Background(), p.ID)
	if snap.Step != project.StepCancelled {
		t.Fatalf("delete should cancel the project, step=%s", snap.Step)
	}
	wantStatus(t, fx.svc.Delete(fx.dbc, "missing"), http.StatusNotFound, "project_not_found")
}
